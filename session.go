package desmo

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kubocreate/desmo-go-sdk/internal/buffer"
	"github.com/kubocreate/desmo-go-sdk/internal/clock"
	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/runtimeconfig"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/events"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/tracing"
)

// sessionState is the controller's internal state, guarded by
// SessionController.mu (spec §4.1 "State machine summary").
type sessionState int

const (
	stateIdle sessionState = iota
	stateStarting
	stateRecording
	stateStopping
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateRecording:
		return "recording"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type startSessionRequest struct {
	DeliveryID         string             `json:"deliveryId"`
	SessionType        SessionType        `json:"sessionType"`
	ExternalRiderID    *string            `json:"externalRiderId,omitempty"`
	Address            *Address           `json:"address,omitempty"`
	Device             Device             `json:"device,omitempty"`
	StartLocation      *Position          `json:"startLocation,omitempty"`
	SensorAvailability SensorAvailability `json:"sensorAvailability,omitempty"`
}

type stopSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// sessionTransport is the narrow contract SessionController depends on.
// transport.Client satisfies it in production; tests substitute a fake so
// the state machine can be exercised without a live HTTP round trip.
type sessionTransport interface {
	Post(ctx context.Context, path string, body any) (status int, respBody []byte, err error)
}

// SessionController owns the single state machine described in spec §4.1.
// Every public entry point serialises under one mutex, so overlapping
// start/stop calls can never both observe the same legal state.
type SessionController struct {
	mu        sync.Mutex
	state     sessionState
	sessionID string

	cfg       Config
	transport sessionTransport
	clk       clock.Clock
	q         *queue.Queue
	bus       events.Bus
	provider  metrics.Provider
	tracer    tracing.Tracer
	overlay   *runtimeconfig.Manager
	cs        *contextSnapshotter
	sensors   Sensors
	device    Device
	router    *readingRouter
	lifecycle *lifecycleAdapter

	coordinator *Coordinator
}

func newSessionController(cfg Config, transportClient sessionTransport, clk clock.Clock, q *queue.Queue, bus events.Bus, provider metrics.Provider, tracer tracing.Tracer, overlay *runtimeconfig.Manager, cs *contextSnapshotter, sensors Sensors, device Device, router *readingRouter, lifecycle *lifecycleAdapter) *SessionController {
	sc := &SessionController{
		state:     stateIdle,
		cfg:       cfg,
		transport: transportClient,
		clk:       clk,
		q:         q,
		bus:       bus,
		provider:  provider,
		tracer:    tracer,
		overlay:   overlay,
		cs:        cs,
		sensors:   sensors,
		device:    device,
		router:    router,
		lifecycle: lifecycle,
	}
	lifecycle.Bind(sc.OnForeground, sc.OnBackground)
	return sc
}

// effectiveTelemetry merges the static configuration with any active
// runtime overlay override (spec §4.14 additions / SPEC_FULL §4.14).
func (sc *SessionController) effectiveTelemetry() TelemetryConfig {
	t := sc.cfg.Telemetry
	if sc.overlay == nil {
		return t
	}
	o := sc.overlay.Current()
	if o.SampleRateHz != 0 {
		t.SampleRateHz = o.SampleRateHz
	}
	if o.UploadIntervalMs != 0 {
		t.UploadIntervalMs = o.UploadIntervalMs
	}
	if o.RetryIntervalMs != 0 {
		t.RetryIntervalMs = o.RetryIntervalMs
	}
	return t
}

// StartSession begins a new recording session (spec §4.1 start_session).
//
// The controller mutex is held from the guard check through the POST
// response (spec §4.1 / §5 "One controller-level mutex... is held across
// the remote call, deliberately preventing overlapping start/stop"). It
// is released before the coordinator is constructed and started, since
// the lock is never held across a coordinator start/stop, only the short
// handshake around the remote call.
func (sc *SessionController) StartSession(ctx context.Context, deliveryID string, sessionType SessionType, externalRiderID *string, address *Address, startLocation *Position) Result[Session] {
	sc.mu.Lock()
	if sc.state != stateIdle {
		actual := sc.state.String()
		sc.mu.Unlock()
		return Err[Session](&InvalidState{Expected: "idle", Actual: actual})
	}
	sc.state = stateStarting

	if startLocation == nil && sc.sensors.Position != nil {
		if pos, ok := sc.sensors.Position.Latest(); ok {
			p := pos
			startLocation = &p
		}
	}

	body := startSessionRequest{
		DeliveryID:         deliveryID,
		SessionType:        sessionType,
		ExternalRiderID:    externalRiderID,
		Address:            address,
		Device:             sc.device,
		StartLocation:      startLocation,
		SensorAvailability: sc.sensors.availability(),
	}

	spanCtx, span := sc.tracer.StartSpan(ctx, "desmo.session.start", map[string]string{"session.type": string(sessionType)})
	status, respBody, err := sc.transport.Post(spanCtx, "/v1/sessions/start", body)
	if err != nil {
		tracing.RecordError(spanCtx, "session_start", err)
		span.End()
		sc.state = stateIdle
		sc.mu.Unlock()
		sc.publish(events.CategorySession, "start_failed", events.SeverityError, map[string]interface{}{"status": status, "error": err.Error()})
		return Err[Session](wrapTransportErr(err))
	}
	span.End()

	var resp Session
	if err := json.Unmarshal(respBody, &resp); err != nil {
		sc.state = stateIdle
		sc.mu.Unlock()
		return Err[Session](&TransportError{Cause: &DecodingError{Cause: err}})
	}
	sc.sessionID = resp.SessionID
	sc.mu.Unlock()

	co := newCoordinator(resp.SessionID, sc.effectiveTelemetry(), sc.clk, buffer.New(0), sc.q, sc.cs, sc.sensors, sc.bus, sc.router, sc.provider)
	co.start()

	sc.mu.Lock()
	sc.coordinator = co
	sc.state = stateRecording
	sc.mu.Unlock()

	sc.publish(events.CategorySession, "started", events.SeverityInfo, map[string]interface{}{"session_id": resp.SessionID})
	return Ok(resp)
}

// StopSession ends the active recording session (spec §4.1 stop_session).
//
// As in StartSession, the mutex is released across the coordinator's
// flush_and_stop (not a "remote call", and potentially slow draining the
// write/flush/retry goroutines) and re-acquired for the POST and the
// final state transition, which are held under one uninterrupted lock.
func (sc *SessionController) StopSession(ctx context.Context) Result[Session] {
	sc.mu.Lock()
	if sc.sessionID == "" {
		sc.mu.Unlock()
		return Err[Session](&NoActiveSession{})
	}
	if sc.state != stateRecording {
		actual := sc.state.String()
		sc.mu.Unlock()
		return Err[Session](&InvalidState{Expected: "recording", Actual: actual})
	}
	sc.state = stateStopping
	sessionID := sc.sessionID
	co := sc.coordinator
	sc.mu.Unlock()

	co.flushAndStop(ctx)

	sc.mu.Lock()
	spanCtx, span := sc.tracer.StartSpan(ctx, "desmo.session.stop", map[string]string{"session.id": sessionID})
	status, respBody, err := sc.transport.Post(spanCtx, "/v1/sessions/stop", stopSessionRequest{SessionID: sessionID})
	if err != nil {
		tracing.RecordError(spanCtx, "session_stop", err)
		span.End()
		sc.state = stateRecording
		sc.mu.Unlock()
		sc.publish(events.CategorySession, "stop_failed", events.SeverityError, map[string]interface{}{"status": status, "error": err.Error()})
		return Err[Session](wrapTransportErr(err))
	}
	span.End()

	var resp Session
	if err := json.Unmarshal(respBody, &resp); err != nil {
		sc.state = stateRecording
		sc.mu.Unlock()
		return Err[Session](&TransportError{Cause: &DecodingError{Cause: err}})
	}

	sc.state = stateIdle
	sc.sessionID = ""
	sc.coordinator = nil
	sc.mu.Unlock()

	sc.publish(events.CategorySession, "stopped", events.SeverityInfo, map[string]interface{}{"session_id": sessionID})
	return Ok(resp)
}

// OnForeground forwards to the coordinator; a no-op while idle (spec
// §4.1 on_foreground).
func (sc *SessionController) OnForeground() {
	sc.mu.Lock()
	co := sc.activeCoordinator()
	sc.mu.Unlock()
	if co != nil {
		co.onForeground()
	}
}

// OnBackground forwards to the coordinator; a no-op while idle (spec
// §4.1 on_background).
func (sc *SessionController) OnBackground() {
	sc.mu.Lock()
	co := sc.activeCoordinator()
	sc.mu.Unlock()
	if co != nil {
		co.onBackground()
	}
}

func (sc *SessionController) activeCoordinator() *Coordinator {
	if sc.state == stateRecording {
		return sc.coordinator
	}
	return nil
}

func (sc *SessionController) publish(category, typ, severity string, fields map[string]interface{}) {
	if sc.bus == nil {
		return
	}
	sc.bus.Publish(events.Event{
		Time:     sc.clk.Now(),
		Category: category,
		Type:     typ,
		Severity: severity,
		Fields:   fields,
	})
}
