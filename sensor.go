package desmo

import "context"

// ReadingKind identifies which physical modality a push-style Adapter
// reading carries, so the coordinator can route it to the right
// latest-value slot (spec §4.2.3).
type ReadingKind int

const (
	ReadingAccelerometer ReadingKind = iota
	ReadingGyroscope
	ReadingGravity
	ReadingRotationVector
	ReadingBarometer
	ReadingMagnetometer
)

// Reading is one push from a sensor adapter: a typed payload stamped with
// the sensor subsystem's own monotonic nanosecond clock (never wall time;
// see spec §4.2 "Throttling with sensor-provided monotonic time").
type Reading struct {
	Kind              ReadingKind
	EventMonotonicNanos int64
	Vector3           [3]float64 // accel/gyro/gravity/magnetometer
	Quaternion        [4]float64 // rotation vector: x, y, z, w
	BarometerPressure float64
	BarometerAltitude *float64
}

// Adapter is the uniform contract every physical sensor source satisfies
// (spec §4.5). Implementations live outside this module; the SDK only
// depends on this interface.
type Adapter interface {
	// Start begins delivering readings to the sink registered at
	// construction time. Asynchronous: returns immediately.
	Start(ctx context.Context) error
	// Stop halts delivery. Idempotent.
	Stop()
	// IsAvailable reports whether this modality exists on the device.
	// Activity and location adapters may legitimately return false.
	IsAvailable() bool
}

// PushAdapter is an Adapter for push-style modalities (IMU family,
// barometer, magnetometer): callbacks arrive on the sink supplied to the
// adapter constructor by the host integration, not through this
// interface, matching spec §4.5's "injected callback" contract. This
// interface exists purely so the coordinator can treat all push sources
// uniformly for start/stop/availability.
type PushAdapter = Adapter

// PullAdapter is an Adapter for pull-style modalities (position):
// Latest returns the most recently observed reading without blocking on a
// fresh fix.
type PullAdapter interface {
	Adapter
	Latest() (Position, bool)
}

// ActivityAdapter exposes the latest-observed motion activity string for
// the context snapshotter. May be unavailable (IsAvailable() == false).
type ActivityAdapter interface {
	Adapter
	LatestActivity() string
}

// ReadingSink is the callback contract push-style adapters are constructed
// against (spec §4.5's "injected callback"). The host wires each adapter to
// the sink obtained from the Client before the adapter is ever started;
// this module never constructs adapters itself.
type ReadingSink interface {
	OnReading(r Reading)
}

// Sensors bundles every adapter a Client coordinates across sessions. A
// nil or unavailable field degrades gracefully: the coordinator proceeds
// without that modality (spec §4.5).
type Sensors struct {
	Accelerometer  PushAdapter
	Gyroscope      PushAdapter
	Gravity        PushAdapter
	RotationVector PushAdapter
	Barometer      PushAdapter
	Magnetometer   PushAdapter
	Position       PullAdapter
	Activity       ActivityAdapter
}

func (s Sensors) pushAdapters() []PushAdapter {
	return []PushAdapter{s.Accelerometer, s.Gyroscope, s.Gravity, s.RotationVector, s.Barometer, s.Magnetometer}
}

// availability computes the bitset sent with session start (spec §6
// sensorAvailability).
func (s Sensors) availability() SensorAvailability {
	avail := func(a Adapter) bool { return a != nil && a.IsAvailable() }
	return SensorAvailability{
		HasAccelerometer:  avail(s.Accelerometer),
		HasGyroscope:      avail(s.Gyroscope),
		HasGravity:        avail(s.Gravity),
		HasRotationVector: avail(s.RotationVector),
		HasBarometer:      avail(s.Barometer),
		HasGps:            avail(s.Position),
		HasMagnetometer:   avail(s.Magnetometer),
	}
}
