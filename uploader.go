package desmo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/transport"
)

// telemetryUploader implements queue.Uploader against the core-facing
// transport façade (spec §4.9 wire protocol — telemetry).
type telemetryUploader struct {
	transport *transport.Client
}

type telemetryRequest struct {
	SessionID string          `json:"sessionId"`
	Events    json.RawMessage `json:"events"`
}

func (u *telemetryUploader) Upload(ctx context.Context, sessionID string, events json.RawMessage) (queue.Outcome, error) {
	status, _, err := u.transport.Post(ctx, "/v1/telemetry", telemetryRequest{SessionID: sessionID, Events: events})
	// A non-2xx response carries a real status code: classify it by that
	// status, not as a transport error.
	classifyErr := err
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		classifyErr = nil
	}
	return toQueueOutcome(Classify(status, classifyErr)), err
}

func toQueueOutcome(o Outcome) queue.Outcome {
	switch o {
	case OutcomeSuccess:
		return queue.OutcomeSuccess
	case OutcomePermanent:
		return queue.OutcomePermanent
	default:
		return queue.OutcomeRetryable
	}
}
