package desmo

// Sample is the unit of on-device telemetry record. Ts is seconds since
// epoch, derived from a monotonic sensor clock plus a wall/monotonic offset
// captured once at session start (see Coordinator.boot offset handling).
// Every nested payload is omitted, never synthesised, when the device does
// not have the corresponding data for this tick.
type Sample struct {
	Ts           float64       `json:"ts"`
	IMU          *IMU          `json:"imu,omitempty"`
	Barometer    *Barometer    `json:"barometer,omitempty"`
	Magnetometer *Magnetometer `json:"magnetometer,omitempty"`
	Position     *Position     `json:"position,omitempty"`
	Context      *Context      `json:"context,omitempty"`
}

// IMU groups accelerometer, gyroscope, gravity and orientation readings.
// Attitude, when present, is a unit quaternion derived from the platform's
// rotation-vector sensor.
type IMU struct {
	Accel    [3]float64 `json:"accel"`
	Gyro     [3]float64 `json:"gyro"`
	Gravity  [3]float64 `json:"gravity"`
	Attitude [4]float64 `json:"attitude"` // x, y, z, w
}

type Barometer struct {
	PressureHPa      float64  `json:"pressure_hpa"`
	RelativeAltitude *float64 `json:"relative_altitude_m,omitempty"`
}

type Magnetometer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NetworkType enumerates the device's current network connectivity class.
type NetworkType string

const (
	NetworkWifi     NetworkType = "wifi"
	NetworkCellular NetworkType = "cellular"
	NetworkNone     NetworkType = "none"
	NetworkUnknown  NetworkType = "unknown"
)

type Position struct {
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	AccuracyM   *float64 `json:"accuracy_m,omitempty"`
	AltitudeM   *float64 `json:"altitude_m,omitempty"`
	SpeedMps    *float64 `json:"speed_mps,omitempty"`
	BearingDeg  *float64 `json:"bearing_deg,omitempty"`
	Source      string   `json:"source,omitempty"`
}

type Context struct {
	ScreenOn        *bool       `json:"screen_on,omitempty"`
	AppForeground   *bool       `json:"app_foreground,omitempty"`
	BatteryLevel    *float64    `json:"battery_level,omitempty"`
	Charging        *bool       `json:"charging,omitempty"`
	Network         NetworkType `json:"network,omitempty"`
	MotionActivity  string      `json:"motion_activity,omitempty"`
}

// SensorAvailability is a snapshot of which physical modalities are present
// on the device, computed once at session start and sent with the start
// request so the backend knows which Sample fields to expect.
type SensorAvailability struct {
	HasAccelerometer  bool `json:"hasAccelerometer"`
	HasGyroscope      bool `json:"hasGyroscope"`
	HasGravity        bool `json:"hasGravity"`
	HasRotationVector bool `json:"hasRotationVector"`
	HasBarometer      bool `json:"hasBarometer"`
	HasGps            bool `json:"hasGps"`
	HasMagnetometer   bool `json:"hasMagnetometer"`
}

// SessionType enumerates the kind of delivery leg a session records.
type SessionType string

const (
	SessionPickup   SessionType = "pickup"
	SessionDrop     SessionType = "drop"
	SessionTransit  SessionType = "transit"
)

// Address is an optional human-readable location attached to session start.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Device describes the host application/device, sent once at session start.
type Device struct {
	Platform   string `json:"platform"`
	SdkVersion string `json:"sdkVersion"`
	Model      string `json:"model,omitempty"`
	OsVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// Session is the remote identity returned by the backend: a recording
// interval bracketed by /sessions/start and /sessions/stop.
type Session struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
}

type SessionStatus string

const (
	StatusRecording SessionStatus = "recording"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)
