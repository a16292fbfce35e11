package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubocreate/desmo-go-sdk/internal/store"
)

type fakeUploader struct {
	mu    sync.Mutex
	fn    func(sessionID string) Outcome
	calls []string
}

func (f *fakeUploader) Upload(ctx context.Context, sessionID string, _ json.RawMessage) (Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sessionID)
	f.mu.Unlock()
	return f.fn(sessionID), nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type sample struct {
	Ts float64 `json:"ts"`
}

func TestEnqueueSuccessDeletesRow(t *testing.T) {
	s := newStore(t)
	up := &fakeUploader{fn: func(string) Outcome { return OutcomeSuccess }}
	q := New(s, up, nil, 10, nil)

	require.NoError(t, Enqueue(q, context.Background(), "s1", []sample{{Ts: 1}}))
	require.Equal(t, 0, s.Count())
}

func TestEnqueueRetryableKeepsRowAndIncrementsAttempts(t *testing.T) {
	s := newStore(t)
	up := &fakeUploader{fn: func(string) Outcome { return OutcomeRetryable }}
	q := New(s, up, nil, 10, nil)

	require.NoError(t, Enqueue(q, context.Background(), "s1", []sample{{Ts: 1}}))
	rows := s.AllPending()
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].AttemptCount)
}

// TestPermanentRejectionDeletesRow covers S5: repeated 400s never grow the
// store.
func TestPermanentRejectionDeletesRow(t *testing.T) {
	s := newStore(t)
	up := &fakeUploader{fn: func(string) Outcome { return OutcomePermanent }}
	q := New(s, up, nil, 10, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, Enqueue(q, context.Background(), "s1", []sample{{Ts: float64(i)}}))
	}
	require.Equal(t, 0, s.Count())
}

// TestProcessPendingRetriesUnderOriginalSession covers S4: rows persisted
// under a prior session are retried under that session's stored id.
func TestProcessPendingRetriesUnderOriginalSession(t *testing.T) {
	s := newStore(t)
	_, err := s.Insert("s-prev", []byte(`[{"ts":1}]`), 1)
	require.NoError(t, err)
	_, err = s.Insert("s-prev", []byte(`[{"ts":2}]`), 1)
	require.NoError(t, err)

	up := &fakeUploader{fn: func(string) Outcome { return OutcomeSuccess }}
	q := New(s, up, nil, 10, nil)

	require.NoError(t, q.ProcessPending(context.Background()))
	require.Equal(t, 0, s.Count())
	require.Equal(t, []string{"s-prev", "s-prev"}, up.calls)
}

// TestRetryCeilingEvictsAfterMaxAttempts covers spec invariant 7.
func TestRetryCeilingEvictsAfterMaxAttempts(t *testing.T) {
	s := newStore(t)
	up := &fakeUploader{fn: func(string) Outcome { return OutcomeRetryable }}
	q := New(s, up, nil, 3, nil)

	require.NoError(t, Enqueue(q, context.Background(), "s1", []sample{{Ts: 1}}))
	require.Equal(t, 1, s.Count())

	// Enqueue left attempt_count at 1; two more retryable sweeps push it to
	// 3, and the eviction pass at the start of the next sweep removes it.
	require.NoError(t, q.ProcessPending(context.Background()))
	require.NoError(t, q.ProcessPending(context.Background()))
	require.NoError(t, q.ProcessPending(context.Background()))
	require.Equal(t, 0, s.Count())
}
