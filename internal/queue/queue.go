// Package queue implements the store-and-forward upload queue from spec
// §4.8: persist first, transmit second, retry under the row's original
// session_id regardless of which session is currently active.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kubocreate/desmo-go-sdk/internal/store"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/events"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
)

// Outcome mirrors the root package's classification taxonomy without
// importing it, keeping this package import-cycle free.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

// Uploader performs one telemetry upload attempt and classifies its
// outcome. sessionID is always the row's original session, never the
// currently active one (spec §4.8 "Critically...").
type Uploader interface {
	Upload(ctx context.Context, sessionID string, events json.RawMessage) (Outcome, error)
}

// Queue accepts batches from the coordinator's flush loop, persists them,
// attempts upload, and periodically sweeps the durable store for rows
// that still need retrying.
type Queue struct {
	store    *store.Store
	uploader Uploader
	bus      events.Bus

	maxAttempts int

	mPendingRows   metrics.Gauge
	mSuccess       metrics.Counter
	mRetryable     metrics.Counter
	mPermanent     metrics.Counter
	mUploadLatency func() metrics.Timer
}

// New constructs a Queue. provider may be the metrics no-op provider.
func New(st *store.Store, uploader Uploader, bus events.Bus, maxAttempts int, provider metrics.Provider) *Queue {
	q := &Queue{store: st, uploader: uploader, bus: bus, maxAttempts: maxAttempts}
	if provider != nil {
		q.mPendingRows = provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "store", Name: "pending_rows", Help: "pending telemetry rows"}})
		q.mSuccess = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "uploads", Name: "success_total", Help: "successful telemetry uploads"}})
		q.mRetryable = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "uploads", Name: "retryable_total", Help: "retryable telemetry upload failures"}})
		q.mPermanent = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "uploads", Name: "permanent_total", Help: "permanently rejected telemetry uploads"}})
		q.mUploadLatency = provider.NewTimer(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "uploads", Name: "latency_seconds", Help: "telemetry upload round-trip latency"}})
	}
	return q
}

// upload times and delegates a single upload attempt (spec SPEC_FULL §4.11
// "desmo.uploads.latency_seconds").
func (q *Queue) upload(ctx context.Context, sessionID string, payload json.RawMessage) (Outcome, error) {
	var timer metrics.Timer
	if q.mUploadLatency != nil {
		timer = q.mUploadLatency()
	}
	outcome, err := q.uploader.Upload(ctx, sessionID, payload)
	if timer != nil {
		timer.ObserveDuration()
	}
	return outcome, err
}

// Enqueue persists samples under sessionID, then attempts an immediate
// upload, applying the classification outcome (spec §4.8 enqueue).
func Enqueue[T any](q *Queue, ctx context.Context, sessionID string, samples []T) error {
	payload, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	id, err := q.store.Insert(sessionID, payload, len(samples))
	if err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	q.publishPendingGauge()

	outcome, uerr := q.upload(ctx, sessionID, json.RawMessage(payload))
	return q.applyOutcome(id, sessionID, outcome, uerr)
}

// ProcessPending sweeps the durable store: evicts rows that exhausted
// their retry budget, then re-attempts every remaining row under its
// stored session_id (spec §4.8 process_pending).
func (q *Queue) ProcessPending(ctx context.Context) error {
	if _, err := q.store.EvictStale(q.maxAttempts); err != nil {
		return fmt.Errorf("evict stale rows: %w", err)
	}
	rows := q.store.AllPending()
	q.publishPendingGauge()

	for _, row := range rows {
		outcome, uerr := q.upload(ctx, row.SessionID, json.RawMessage(row.PayloadJSON))
		if err := q.applyOutcome(row.ID, row.SessionID, outcome, uerr); err != nil {
			return err
		}
	}
	return nil
}

// ProcessPendingFor re-attempts the rows of a single session under their
// stored session_id. Unlike ProcessPending it does not evict stale rows
// first.
func (q *Queue) ProcessPendingFor(ctx context.Context, sessionID string) error {
	rows := q.store.PendingFor(sessionID)
	for _, row := range rows {
		outcome, uerr := q.upload(ctx, row.SessionID, json.RawMessage(row.PayloadJSON))
		if err := q.applyOutcome(row.ID, row.SessionID, outcome, uerr); err != nil {
			return err
		}
	}
	q.publishPendingGauge()
	return nil
}

func (q *Queue) applyOutcome(id int64, sessionID string, outcome Outcome, uerr error) error {
	switch outcome {
	case OutcomeSuccess:
		if q.mSuccess != nil {
			q.mSuccess.Inc(1)
		}
		if err := q.store.Delete(id); err != nil {
			return fmt.Errorf("delete uploaded batch: %w", err)
		}
	case OutcomePermanent:
		if q.mPermanent != nil {
			q.mPermanent.Inc(1)
		}
		q.publish(events.Event{
			Category: events.CategoryUpload,
			Type:     "permanent_rejection",
			Severity: events.SeverityWarn,
			Fields:   map[string]interface{}{"session_id": sessionID, "row_id": id, "error": errString(uerr)},
		})
		if err := q.store.Delete(id); err != nil {
			return fmt.Errorf("discard permanently rejected batch: %w", err)
		}
	default: // Retryable
		if q.mRetryable != nil {
			q.mRetryable.Inc(1)
		}
		if err := q.store.IncrementAttempts(id); err != nil {
			return fmt.Errorf("record retry attempt: %w", err)
		}
	}
	q.publishPendingGauge()
	return nil
}

func (q *Queue) publish(ev events.Event) {
	if q.bus != nil {
		q.bus.Publish(ev)
	}
}

func (q *Queue) publishPendingGauge() {
	if q.mPendingRows != nil {
		q.mPendingRows.Set(float64(q.store.Count()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
