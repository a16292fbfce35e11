package desmo

import (
	"fmt"
	"strings"
	"time"
)

// Environment selects the backend base URL a Client targets.
type Environment string

const (
	EnvironmentSandbox Environment = "sandbox"
	EnvironmentLive     Environment = "live"
)

const (
	sandboxBaseURL = "https://sandbox.ingest.desmo.dev"
	liveBaseURL    = "https://ingest.desmo.dev"
)

func (e Environment) baseURL() string {
	if e == EnvironmentLive {
		return liveBaseURL
	}
	return sandboxBaseURL
}

// TelemetryConfig tunes the sampling/upload cadence of the coordinator.
type TelemetryConfig struct {
	// SampleRateHz bounds how often qualifying IMU pushes may emit a
	// sample. Range 1..=100, default 50.
	SampleRateHz int
	// LocationUpdateMs is the minimum interval the host's location
	// adapter is expected to honor between fixes. Range >=500, default 2000.
	LocationUpdateMs int
	// UploadIntervalMs is the coordinator's flush-loop period. Range
	// >=1000, default 5000.
	UploadIntervalMs int
	// RetryIntervalMs is the coordinator's retry-sweep period, default 30000.
	RetryIntervalMs int
}

// Config is the public construction-time configuration for a Client.
type Config struct {
	ApiKey         string
	Environment    Environment
	LoggingEnabled bool
	Telemetry      TelemetryConfig

	// StoreDir is the directory the durable batch store persists pending
	// batches under. Defaults to "desmo-telemetry" under the user cache
	// directory (or the system temp directory) when empty (see
	// store.DefaultDir).
	StoreDir string
	// MaxAttempts bounds retryable upload attempts before a row is
	// evicted (spec §3 PendingBatch invariant, §4.6 evict_stale).
	MaxAttempts int

	// RuntimeConfigPath, when set, is watched for hot-reloadable overrides
	// (see internal/runtimeconfig). Only Telemetry.SampleRateHz,
	// UploadIntervalMs and RetryIntervalMs are overridden, and the overlay
	// is read when a session starts.
	RuntimeConfigPath string

	// MetricsBackend selects the telemetry metrics implementation:
	// "prom" (default), "otel", or "noop".
	MetricsBackend string
}

// DefaultConfig returns a Config with the spec's documented defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		ApiKey:      apiKey,
		Environment: EnvironmentSandbox,
		Telemetry: TelemetryConfig{
			SampleRateHz:     50,
			LocationUpdateMs: 2000,
			UploadIntervalMs: 5000,
			RetryIntervalMs:  30000,
		},
		MaxAttempts:    10,
		MetricsBackend: "prom",
	}
}

// Validate checks the configuration against the bounds documented in
// spec §6, returning a descriptive error (never panics).
func (c Config) Validate() error {
	if !strings.HasPrefix(c.ApiKey, "pk_") {
		return &InvalidApiKey{Reason: "must have prefix \"pk_\""}
	}
	if c.Environment != EnvironmentSandbox && c.Environment != EnvironmentLive {
		return fmt.Errorf("environment must be %q or %q, got %q", EnvironmentSandbox, EnvironmentLive, c.Environment)
	}
	t := c.Telemetry
	if t.SampleRateHz < 1 || t.SampleRateHz > 100 {
		return fmt.Errorf("telemetry.sample_rate_hz must be in [1,100], got %d", t.SampleRateHz)
	}
	if t.LocationUpdateMs < 500 {
		return fmt.Errorf("telemetry.location_update_ms must be >= 500, got %d", t.LocationUpdateMs)
	}
	if t.UploadIntervalMs < 1000 {
		return fmt.Errorf("telemetry.upload_interval_ms must be >= 1000, got %d", t.UploadIntervalMs)
	}
	if t.RetryIntervalMs < 1000 {
		return fmt.Errorf("telemetry.retry_interval_ms must be >= 1000, got %d", t.RetryIntervalMs)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

// minIntervalNanos returns the minimum nanosecond gap between two qualifying
// sensor emissions at the configured sample rate (spec §4.2 Δt_min).
func (t TelemetryConfig) minIntervalNanos() int64 {
	return int64(1e9) / int64(t.SampleRateHz)
}

// uploadInterval and retryInterval return the configured periods as
// time.Duration for use by the coordinator's timers.
func (t TelemetryConfig) uploadInterval() time.Duration {
	return time.Duration(t.UploadIntervalMs) * time.Millisecond
}

func (t TelemetryConfig) retryInterval() time.Duration {
	return time.Duration(t.RetryIntervalMs) * time.Millisecond
}
