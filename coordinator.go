package desmo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubocreate/desmo-go-sdk/internal/buffer"
	"github.com/kubocreate/desmo-go-sdk/internal/clock"
	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/events"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
)

// writeQueueDepth bounds the coordinator's buffer-write worker channel.
// Sized generously above any configured sample rate so a qualifying push
// never blocks its sensor thread under normal operation (spec §4.2.5).
const writeQueueDepth = 512

// readingRouter forwards sensor callbacks to whichever Coordinator is
// currently recording, or drops them when none is (adapters are
// constructed once by the host and outlive any single session).
type readingRouter struct {
	active atomic.Pointer[Coordinator]
}

func (r *readingRouter) OnReading(rd Reading) {
	if co := r.active.Load(); co != nil {
		co.onReading(rd)
	}
}

func (r *readingRouter) bind(co *Coordinator)   { r.active.Store(co) }
func (r *readingRouter) unbind(co *Coordinator) { r.active.CompareAndSwap(co, nil) }

// Coordinator is the per-session telemetry task group described in spec
// §4.2: a fresh instance is created at session start and torn down at
// session stop, never reused across sessions.
type Coordinator struct {
	sessionID string
	cfg       TelemetryConfig
	clk       clock.Clock
	buf       *buffer.Buffer
	q         *queue.Queue
	cs        *contextSnapshotter
	sensors   Sensors
	bus       events.Bus
	router    *readingRouter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeCh chan Sample

	mu                 sync.Mutex
	latestIMU          *IMU
	latestBarometer    *Barometer
	latestMagnetometer *Magnetometer
	haveFirstReading   bool
	lastEmitMonotonic  int64
	bootOffsetNanos    int64
	minIntervalNanos   int64

	mSamplesEmitted metrics.Counter
	mSessionsActive metrics.Gauge
	mBufferDepth    metrics.Gauge
	mBufferDropped  metrics.Counter
}

func newCoordinator(sessionID string, cfg TelemetryConfig, clk clock.Clock, buf *buffer.Buffer, q *queue.Queue, cs *contextSnapshotter, sensors Sensors, bus events.Bus, router *readingRouter, provider metrics.Provider) *Coordinator {
	co := &Coordinator{
		sessionID:        sessionID,
		cfg:              cfg,
		clk:              clk,
		buf:              buf,
		q:                q,
		cs:               cs,
		sensors:          sensors,
		bus:              bus,
		router:           router,
		writeCh:          make(chan Sample, writeQueueDepth),
		minIntervalNanos: cfg.minIntervalNanos(),
	}
	if provider != nil {
		co.mSamplesEmitted = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "samples", Name: "emitted_total", Help: "telemetry samples emitted to the buffer"}})
		co.mSessionsActive = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "sessions", Name: "active", Help: "whether a recording session is active (0/1)"}})
		co.mBufferDepth = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "buffer", Name: "depth", Help: "samples currently held in the in-memory buffer"}})
		co.mBufferDropped = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "buffer", Name: "dropped_total", Help: "samples evicted by buffer overflow or a full write queue"}})
	}
	var lastBufDropped int64
	buf.SetDropHook(func(total int64) {
		delta := total - lastBufDropped
		lastBufDropped = total
		if co.mBufferDropped != nil && delta > 0 {
			co.mBufferDropped.Inc(float64(delta))
		}
	})
	return co
}

// start purges any stale buffer residue, captures the monotonic/wall
// offset, activates every available sensor adapter and launches the
// flush and retry loops (spec §4.2 items 1, 2, 6, 7).
func (co *Coordinator) start() {
	co.ctx, co.cancel = context.WithCancel(context.Background())

	now := co.clk.Now().UnixNano()
	mono := co.clk.MonotonicNanos()
	co.bootOffsetNanos = now - mono

	co.buf.Clear()

	for _, a := range co.sensors.pushAdapters() {
		if a == nil || !a.IsAvailable() {
			continue
		}
		if err := a.Start(co.ctx); err != nil {
			co.publish(events.CategorySensor, "start_failed", events.SeverityWarn, map[string]interface{}{"error": err.Error()})
		}
	}
	if co.sensors.Position != nil && co.sensors.Position.IsAvailable() {
		_ = co.sensors.Position.Start(co.ctx)
	}
	if co.sensors.Activity != nil && co.sensors.Activity.IsAvailable() {
		_ = co.sensors.Activity.Start(co.ctx)
	}

	co.router.bind(co)

	co.wg.Add(3)
	go co.writeLoop()
	go co.flushLoop()
	go co.retryLoop()

	if co.mSessionsActive != nil {
		co.mSessionsActive.Set(1)
	}
}

// flushAndStop drains the buffer into the queue one last time and tears
// down the task group. Called synchronously from stop_session (spec
// §4.1).
func (co *Coordinator) flushAndStop(ctx context.Context) {
	co.router.unbind(co)
	co.cancel()

	for _, a := range co.sensors.pushAdapters() {
		if a != nil {
			a.Stop()
		}
	}
	if co.sensors.Position != nil {
		co.sensors.Position.Stop()
	}
	if co.sensors.Activity != nil {
		co.sensors.Activity.Stop()
	}

	co.wg.Wait()
	co.flushOnce(ctx)

	if co.mSessionsActive != nil {
		co.mSessionsActive.Set(0)
	}
}

// onForeground re-starts sensor adapters the platform may have throttled
// while backgrounded (spec §4.2 item 8).
func (co *Coordinator) onForeground() {
	for _, a := range co.sensors.pushAdapters() {
		if a != nil && a.IsAvailable() {
			_ = a.Start(co.ctx)
		}
	}
	if co.sensors.Activity != nil && co.sensors.Activity.IsAvailable() {
		_ = co.sensors.Activity.Start(co.ctx)
	}
	co.cs.setForeground(true)
}

// onBackground logs the transition without pausing collection (spec
// §4.2 item 9).
func (co *Coordinator) onBackground() {
	co.cs.setForeground(false)
	co.publish(events.CategoryLifecycle, "background", events.SeverityInfo, nil)
}

// onReading is the sensor-thread entry point. It is wrapped in a
// panic-safe boundary: a misbehaving adapter callback is logged and
// swallowed, never propagated to the host (spec §4.2 final paragraph).
func (co *Coordinator) onReading(rd Reading) {
	locked := false
	defer func() {
		if r := recover(); r != nil {
			if locked {
				co.mu.Unlock()
			}
			co.publish(events.CategorySensor, "callback_panic", events.SeverityError, map[string]interface{}{"recovered": fmt.Sprint(r)})
		}
	}()

	switch rd.Kind {
	case ReadingBarometer:
		co.mu.Lock()
		alt := rd.BarometerAltitude
		co.latestBarometer = &Barometer{PressureHPa: rd.BarometerPressure, RelativeAltitude: alt}
		co.mu.Unlock()
		return
	case ReadingMagnetometer:
		co.mu.Lock()
		co.latestMagnetometer = &Magnetometer{X: rd.Vector3[0], Y: rd.Vector3[1], Z: rd.Vector3[2]}
		co.mu.Unlock()
		return
	}

	co.mu.Lock()
	locked = true
	if co.latestIMU == nil {
		co.latestIMU = &IMU{}
	}
	switch rd.Kind {
	case ReadingAccelerometer:
		co.latestIMU.Accel = rd.Vector3
	case ReadingGyroscope:
		co.latestIMU.Gyro = rd.Vector3
	case ReadingGravity:
		co.latestIMU.Gravity = rd.Vector3
	case ReadingRotationVector:
		co.latestIMU.Attitude = rd.Quaternion
	}

	emit := false
	if !co.haveFirstReading {
		co.haveFirstReading = true
		co.lastEmitMonotonic = rd.EventMonotonicNanos
		emit = true
	} else if rd.EventMonotonicNanos-co.lastEmitMonotonic >= co.minIntervalNanos {
		co.lastEmitMonotonic = rd.EventMonotonicNanos
		emit = true
	}
	var sample Sample
	if emit {
		sample = co.buildSampleLocked(rd.EventMonotonicNanos)
	}
	locked = false
	co.mu.Unlock()

	if emit {
		co.scheduleWrite(sample)
	}
}

// buildSampleLocked assembles a Sample from the latest cached readings. Must
// be called with mu held.
func (co *Coordinator) buildSampleLocked(eventNanos int64) Sample {
	s := Sample{
		Ts:           float64(eventNanos+co.bootOffsetNanos) / 1e9,
		IMU:          co.latestIMU,
		Barometer:    co.latestBarometer,
		Magnetometer: co.latestMagnetometer,
	}
	if co.sensors.Position != nil {
		if pos, ok := co.sensors.Position.Latest(); ok {
			p := pos
			s.Position = &p
		}
	}
	ctxv := co.cs.Snapshot()
	s.Context = &ctxv
	return s
}

// scheduleWrite hands a sample to the write worker without blocking the
// calling sensor thread (spec §4.2 item 5). A full channel means the
// worker has fallen far behind; the sample is dropped and logged rather
// than stalling the caller.
func (co *Coordinator) scheduleWrite(s Sample) {
	select {
	case co.writeCh <- s:
	default:
		co.publish(events.CategoryBuffer, "write_dropped", events.SeverityWarn, nil)
		if co.mBufferDropped != nil {
			co.mBufferDropped.Inc(1)
		}
	}
}

func (co *Coordinator) writeLoop() {
	defer co.wg.Done()
	for {
		select {
		case <-co.ctx.Done():
			return
		case s := <-co.writeCh:
			co.buf.Add(s)
			if co.mSamplesEmitted != nil {
				co.mSamplesEmitted.Inc(1)
			}
			if co.mBufferDepth != nil {
				co.mBufferDepth.Set(float64(co.buf.Len()))
			}
		}
	}
}

func (co *Coordinator) flushLoop() {
	defer co.wg.Done()
	t := time.NewTicker(co.cfg.uploadInterval())
	defer t.Stop()
	for {
		select {
		case <-co.ctx.Done():
			return
		case <-t.C:
			co.flushOnce(co.ctx)
		}
	}
}

func (co *Coordinator) flushOnce(ctx context.Context) {
	if !co.buf.IsNotEmpty() {
		return
	}
	samples := co.buf.Drain()
	if len(samples) == 0 {
		return
	}
	if co.mBufferDepth != nil {
		co.mBufferDepth.Set(0)
	}
	if err := queue.Enqueue(co.q, ctx, co.sessionID, samples); err != nil {
		co.publish(events.CategoryUpload, "enqueue_failed", events.SeverityError, map[string]interface{}{"error": err.Error()})
	}
}

func (co *Coordinator) retryLoop() {
	defer co.wg.Done()
	t := time.NewTicker(co.cfg.retryInterval())
	defer t.Stop()
	for {
		select {
		case <-co.ctx.Done():
			return
		case <-t.C:
			if err := co.q.ProcessPending(co.ctx); err != nil {
				co.publish(events.CategoryUpload, "process_pending_failed", events.SeverityError, map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func (co *Coordinator) publish(category, typ, severity string, fields map[string]interface{}) {
	if co.bus == nil {
		return
	}
	co.bus.Publish(events.Event{
		Time:     co.clk.Now(),
		Category: category,
		Type:     typ,
		Severity: severity,
		Fields:   fields,
	})
}
