package desmo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassifierTotality covers spec testable property 5: every status in
// [100,600) lands in exactly one bucket, and any transport error is
// Retryable regardless of status.
func TestClassifierTotality(t *testing.T) {
	for s := 100; s < 600; s++ {
		got := Classify(s, nil)
		switch {
		case s >= 200 && s < 300:
			require.Equal(t, OutcomeSuccess, got, "status %d", s)
		case s >= 400 && s < 500:
			require.Equal(t, OutcomePermanent, got, "status %d", s)
		default:
			require.Equal(t, OutcomeRetryable, got, "status %d", s)
		}
	}
}

func TestClassifierTransportErrorAlwaysRetryable(t *testing.T) {
	require.Equal(t, OutcomeRetryable, Classify(200, errors.New("boom")))
	require.Equal(t, OutcomeRetryable, Classify(0, errors.New("dns failure")))
}

func TestClassifier429IsPermanent(t *testing.T) {
	require.Equal(t, OutcomePermanent, Classify(429, nil))
}
