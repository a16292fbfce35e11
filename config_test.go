package desmo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig("pk_test").Validate())
}

func TestValidateRejectsBadApiKey(t *testing.T) {
	cfg := DefaultConfig("sk_test")
	var apiKeyErr *InvalidApiKey
	require.ErrorAs(t, cfg.Validate(), &apiKeyErr)
}

func TestValidateRejectsOutOfRangeSampleRate(t *testing.T) {
	cfg := DefaultConfig("pk_test")
	cfg.Telemetry.SampleRateHz = 0
	require.Error(t, cfg.Validate())

	cfg.Telemetry.SampleRateHz = 101
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsLowIntervals(t *testing.T) {
	cfg := DefaultConfig("pk_test")
	cfg.Telemetry.LocationUpdateMs = 100
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig("pk_test")
	cfg.Telemetry.UploadIntervalMs = 100
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig("pk_test")
	cfg.Telemetry.RetryIntervalMs = 100
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := DefaultConfig("pk_test")
	cfg.Environment = "staging"
	require.Error(t, cfg.Validate())
}
