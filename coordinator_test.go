package desmo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubocreate/desmo-go-sdk/internal/buffer"
	"github.com/kubocreate/desmo-go-sdk/internal/clock"
	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/store"
)

func newTestCoordinator(t *testing.T, cfg TelemetryConfig) *Coordinator {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st, nopUploader{}, nil, 10, nil)
	cs := newContextSnapshotter(nil, nil, nil, clock.System{})
	return newCoordinator("s1", cfg, clock.System{}, buffer.New(0), q, cs, Sensors{}, nil, &readingRouter{}, nil)
}

// TestThrottleAccuracy covers spec testable property 9: pushes faster than
// the configured sample rate still emit at most rate_hz samples per
// second of sensor-clock time.
func TestThrottleAccuracy(t *testing.T) {
	const rateHz = 10
	co := newTestCoordinator(t, TelemetryConfig{SampleRateHz: rateHz, UploadIntervalMs: 5000, RetryIntervalMs: 30000})

	const pushes = 100
	const deltaNanos = int64(1e7) // 10ms, far faster than the 100ms floor
	for i := 0; i < pushes; i++ {
		co.onReading(Reading{
			Kind:                ReadingAccelerometer,
			EventMonotonicNanos: int64(i) * deltaNanos,
			Vector3:             [3]float64{1, 2, 3},
		})
	}

	emitted := len(co.writeCh)
	windowSeconds := float64(pushes) * float64(deltaNanos) / 1e9
	expected := int(windowSeconds * rateHz)
	require.InDelta(t, expected, emitted, 1)
}

// TestFirstReadingAlwaysEmits ensures the throttle never suppresses the
// very first sample of a session (spec §4.2 item 3 "first reading... resets
// the throttle").
func TestFirstReadingAlwaysEmits(t *testing.T) {
	co := newTestCoordinator(t, TelemetryConfig{SampleRateHz: 1, UploadIntervalMs: 5000, RetryIntervalMs: 30000})
	co.onReading(Reading{Kind: ReadingAccelerometer, EventMonotonicNanos: 0, Vector3: [3]float64{1, 1, 1}})
	require.Equal(t, 1, len(co.writeCh))
}

// TestStaleBufferPurgeOnStart covers spec testable property 10: residue
// left in the buffer by a previous crashed process is discarded the
// moment a new session starts.
func TestStaleBufferPurgeOnStart(t *testing.T) {
	co := newTestCoordinator(t, DefaultConfig("pk_test").Telemetry)

	co.buf.Add(Sample{Ts: 1})
	require.Equal(t, 1, co.buf.Len())

	co.start()
	defer co.flushAndStop(context.Background())

	require.Equal(t, 0, co.buf.Len())
	require.Empty(t, co.buf.Drain())
}

// TestBarometerReadingDoesNotThrottle covers spec §4.2 item 3: barometer
// and magnetometer pushes update the latest cache but never themselves
// qualify for emission.
func TestBarometerReadingDoesNotThrottle(t *testing.T) {
	co := newTestCoordinator(t, TelemetryConfig{SampleRateHz: 50, UploadIntervalMs: 5000, RetryIntervalMs: 30000})

	alt := 12.5
	co.onReading(Reading{Kind: ReadingBarometer, BarometerPressure: 1013.0, BarometerAltitude: &alt})
	require.Equal(t, 0, len(co.writeCh))
	require.NotNil(t, co.latestBarometer)
	require.Equal(t, 1013.0, co.latestBarometer.PressureHPa)
}

// TestPanicSafeCallbackBoundary covers spec §4.2 final paragraph: a
// misbehaving sensor callback must not crash the coordinator.
func TestPanicSafeCallbackBoundary(t *testing.T) {
	co := newTestCoordinator(t, TelemetryConfig{SampleRateHz: 50, UploadIntervalMs: 5000, RetryIntervalMs: 30000})
	co.cs = nil // force buildSampleLocked to panic on the very next qualifying emit

	require.NotPanics(t, func() {
		co.onReading(Reading{Kind: ReadingAccelerometer, EventMonotonicNanos: 0, Vector3: [3]float64{1, 1, 1}})
	})
}
