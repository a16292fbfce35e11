package desmo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubocreate/desmo-go-sdk/internal/clock"
	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/store"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/events"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/tracing"
)

// fakeTransport stubs the core-facing HTTP contract so the state machine
// can be driven without a live round trip.
type fakeTransport struct {
	mu        sync.Mutex
	startHits int
	stopFn    func() (int, []byte, error)
	startFn   func() (int, []byte, error)
}

func (f *fakeTransport) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	switch path {
	case "/v1/sessions/start":
		f.mu.Lock()
		f.startHits++
		f.mu.Unlock()
		if f.startFn != nil {
			return f.startFn()
		}
		return 200, []byte(`{"sessionId":"s1","status":"recording"}`), nil
	case "/v1/sessions/stop":
		if f.stopFn != nil {
			return f.stopFn()
		}
		return 200, []byte(`{"sessionId":"s1","status":"completed"}`), nil
	default:
		return 200, []byte(`{}`), nil
	}
}

// nopUploader never succeeds; the session tests below don't exercise the
// retry sweep so any classification is fine.
type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, sessionID string, events json.RawMessage) (queue.Outcome, error) {
	return queue.OutcomeRetryable, nil
}

func newTestController(t *testing.T, ft *fakeTransport) *SessionController {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(nil)
	q := queue.New(st, nopUploader{}, bus, 10, metrics.NewNoop())
	cs := newContextSnapshotter(nil, nil, nil, clock.System{})
	lifecycle := &lifecycleAdapter{}
	tracer := tracing.New("test", false)

	return newSessionController(DefaultConfig("pk_test"), ft, clock.System{}, q, bus, metrics.NewNoop(), tracer, nil, cs, Sensors{}, Device{Platform: "test"}, &readingRouter{}, lifecycle)
}

func TestStartSessionHappyPath(t *testing.T) {
	ft := &fakeTransport{}
	sc := newTestController(t, ft)

	result := sc.StartSession(context.Background(), "d1", SessionDrop, nil, nil, nil)
	session, err := result.Unwrap()
	require.NoError(t, err)
	require.Equal(t, "s1", session.SessionID)
	require.Equal(t, StatusRecording, session.Status)
	require.Equal(t, stateRecording, sc.state)
}

// TestConcurrentStartSessionSingleSuccess covers spec testable property 4
// / seed scenario S2: of C concurrent start_session calls, exactly one
// succeeds and the rest observe InvalidState.
func TestConcurrentStartSessionSingleSuccess(t *testing.T) {
	ft := &fakeTransport{}
	sc := newTestController(t, ft)

	const callers = 10
	var wg sync.WaitGroup
	var successes atomic.Int64
	var invalidStates atomic.Int64

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := sc.StartSession(context.Background(), "d1", SessionDrop, nil, nil, nil)
			if res.IsOk() {
				successes.Add(1)
				return
			}
			var invalid *InvalidState
			if errors.As(res.Error(), &invalid) {
				invalidStates.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, successes.Load())
	require.EqualValues(t, callers-1, invalidStates.Load())
	require.EqualValues(t, 1, ft.startHits)
}

// TestMutexHeldAcrossRemoteCall covers spec §5's "the controller mutex...
// is held across the remote call": a second StartSession must not
// observe the guard (or run at all) until the first call's in-flight
// POST returns, proving the lock spans the whole round trip rather than
// being released beforehand.
func TestMutexHeldAcrossRemoteCall(t *testing.T) {
	enteredPost := make(chan struct{})
	release := make(chan struct{})
	ft := &fakeTransport{
		startFn: func() (int, []byte, error) {
			close(enteredPost)
			<-release
			return 200, []byte(`{"sessionId":"s1","status":"recording"}`), nil
		},
	}
	sc := newTestController(t, ft)

	firstDone := make(chan Result[Session], 1)
	go func() {
		firstDone <- sc.StartSession(context.Background(), "d1", SessionDrop, nil, nil, nil)
	}()
	<-enteredPost // first call is now inside Post, holding sc.mu

	secondDone := make(chan Result[Session], 1)
	go func() {
		secondDone <- sc.StartSession(context.Background(), "d1", SessionDrop, nil, nil, nil)
	}()

	select {
	case <-secondDone:
		t.Fatal("second StartSession returned while the first call's POST was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	<-firstDone
	var second Result[Session]
	select {
	case second = <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second StartSession never unblocked after the first call released the mutex")
	}
	_, err := second.Unwrap()
	var invalid *InvalidState
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 1, ft.startHits)
}

// TestStopSessionFromIdleIsNoActiveSession covers spec §7's
// NoActiveSession taxonomy entry ("stop/flush with no session"),
// distinct from the wrong-state InvalidState case below.
func TestStopSessionFromIdleIsNoActiveSession(t *testing.T) {
	ft := &fakeTransport{}
	sc := newTestController(t, ft)

	result := sc.StopSession(context.Background())
	_, err := result.Unwrap()
	var noSession *NoActiveSession
	require.ErrorAs(t, err, &noSession)
}

// TestStopSessionDuringStartIsInvalidState covers the wrong-state guard
// when a session_id is already held but the controller isn't yet
// "recording" (e.g. a stop racing an in-flight start).
func TestStopSessionDuringStartIsInvalidState(t *testing.T) {
	ft := &fakeTransport{}
	sc := newTestController(t, ft)

	sc.mu.Lock()
	sc.state = stateStarting
	sc.sessionID = "s1"
	sc.mu.Unlock()

	result := sc.StopSession(context.Background())
	_, err := result.Unwrap()
	var invalid *InvalidState
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "recording", invalid.Expected)
	require.Equal(t, "starting", invalid.Actual)
}

// TestStopSessionRollsBackOnFailure covers spec seed scenario S6: a
// failed stop leaves the controller in "recording" so a retry can
// succeed once the transport recovers.
func TestStopSessionRollsBackOnFailure(t *testing.T) {
	ft := &fakeTransport{}
	sc := newTestController(t, ft)

	_, err := sc.StartSession(context.Background(), "d1", SessionDrop, nil, nil, nil).Unwrap()
	require.NoError(t, err)

	failing := true
	ft.stopFn = func() (int, []byte, error) {
		if failing {
			return 0, nil, &fakeNetworkError{}
		}
		return 200, []byte(`{"sessionId":"s1","status":"completed"}`), nil
	}

	_, err = sc.StopSession(context.Background()).Unwrap()
	require.Error(t, err)
	require.Equal(t, stateRecording, sc.state)

	failing = false
	session, err := sc.StopSession(context.Background()).Unwrap()
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, session.Status)
	require.Equal(t, stateIdle, sc.state)
}

type fakeNetworkError struct{}

func (e *fakeNetworkError) Error() string { return "network unreachable" }
