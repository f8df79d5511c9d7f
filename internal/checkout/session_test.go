package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dovepay/internal/domain"
	"dovepay/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers Status from a script; once the script runs out the last
// entry repeats.
type fakeAPI struct {
	initiateErr error
	initiate    *InitiateResult
	// initiateBlocks makes Initiate wait for its context to end.
	initiateBlocks bool
	// statusDelay is slept before every Status answer, ignoring ctx.
	statusDelay time.Duration

	mu       sync.Mutex
	statuses []statusReply
	polls    int32
}

type statusReply struct {
	res *StatusResult
	err error
}

func (f *fakeAPI) Initiate(ctx context.Context, phone, amount string) (*InitiateResult, error) {
	if f.initiateBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	if f.initiate != nil {
		return f.initiate, nil
	}
	return &InitiateResult{Reference: "DP-ABC1234", CorrelationID: "ws_CO_1", CustomerMessage: "Check your phone"}, nil
}

func (f *fakeAPI) Status(ctx context.Context, id string) (*StatusResult, error) {
	atomic.AddInt32(&f.polls, 1)
	if f.statusDelay > 0 {
		time.Sleep(f.statusDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil, ErrNotFound
	}
	r := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return r.res, r.err
}

func (f *fakeAPI) pollCount() int32 {
	return atomic.LoadInt32(&f.polls)
}

func pending() statusReply {
	return statusReply{res: &StatusResult{Status: domain.StatusPending}}
}

func waitDone(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSession_Success(t *testing.T) {
	receipt := "NLJ7RT61SV"
	api := &fakeAPI{statuses: []statusReply{
		{err: ErrNotFound},
		pending(),
		{res: &StatusResult{Status: domain.StatusCompleted, Receipt: &receipt}},
	}}
	var mu sync.Mutex
	var states []State
	s := NewSession(api,
		WithPollInterval(5*time.Millisecond),
		WithTimeout(time.Second),
		WithOnChange(func(snap Snapshot) {
			mu.Lock()
			states = append(states, snap.State)
			mu.Unlock()
		}),
	)

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)

	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "NLJ7RT61SV", snap.Receipt)
	assert.Equal(t, "DP-ABC1234", snap.Reference)
	assert.Equal(t, "ws_CO_1", snap.CorrelationID)
	assert.EqualValues(t, 3, api.pollCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateSending, StateWaiting, StateSuccess}, states)
}

func TestSession_Failed(t *testing.T) {
	reason := "Request cancelled by user"
	api := &fakeAPI{statuses: []statusReply{
		{res: &StatusResult{Status: domain.StatusFailed, FailureReason: &reason}},
	}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Second))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, reason, snap.Message)
}

func TestSession_FailedWithoutReason(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{{res: &StatusResult{Status: domain.StatusFailed}}}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Second))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, domain.DefaultFailureMessage, snap.Message)
}

func TestSession_TimeoutStopsPolling(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{pending()}}
	s := NewSession(api, WithPollInterval(10*time.Millisecond), WithTimeout(60*time.Millisecond))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, domain.TimeoutMessage, snap.Message)

	polls := api.pollCount()
	assert.Greater(t, polls, int32(0))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polls, api.pollCount(), "no polls after timeout")
}

func TestSession_TransientErrorsKeepWaiting(t *testing.T) {
	receipt := "R1"
	api := &fakeAPI{statuses: []statusReply{
		{err: errors.New("connection refused")},
		{err: ErrNotFound},
		{res: &StatusResult{Status: domain.StatusCompleted, Receipt: &receipt}},
	}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Second))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateSuccess, snap.State)
}

func TestSession_CancelReturnsToIdle(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{pending()}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Minute))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	require.Eventually(t, func() bool { return s.Snapshot().State == StateWaiting }, time.Second, time.Millisecond)

	assert.True(t, s.Cancel())
	snap := waitDone(t, s)
	assert.Equal(t, StateIdle, snap.State)

	polls := api.pollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, api.pollCount(), "no polls after cancel")
	assert.False(t, s.Cancel())
}

func TestSession_ParentCancelWhileWaitingReturnsToIdle(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{pending()}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "0712345678", "500"))
	require.Eventually(t, func() bool { return s.Snapshot().State == StateWaiting }, time.Second, time.Millisecond)

	cancel()
	snap := waitDone(t, s)
	assert.Equal(t, StateIdle, snap.State)

	polls := api.pollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, api.pollCount(), "no polls after the parent context ends")

	// The session is reusable.
	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	s.Cancel()
	waitDone(t, s)
}

func TestSession_ParentCancelWhileSendingReturnsToIdle(t *testing.T) {
	s := NewSession(&fakeAPI{initiateBlocks: true})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "0712345678", "500"))
	assert.Equal(t, StateSending, s.Snapshot().State)

	cancel()
	snap := waitDone(t, s)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Message)
}

func TestSession_NonPositiveDurationsUseDefaults(t *testing.T) {
	s := NewSession(&fakeAPI{statuses: []statusReply{pending()}}, WithPollInterval(0), WithTimeout(-time.Second))
	assert.Equal(t, DefaultPollInterval, s.pollInterval)
	assert.Equal(t, DefaultTimeout, s.timeout)

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	require.Eventually(t, func() bool { return s.Snapshot().State == StateWaiting }, time.Second, time.Millisecond)
	assert.True(t, s.Cancel())
	assert.Equal(t, StateIdle, waitDone(t, s).State)
}

func TestSession_LateAnswerAfterDeadlineTimesOut(t *testing.T) {
	receipt := "NLJ7RT61SV"
	api := &fakeAPI{
		statusDelay: 80 * time.Millisecond,
		statuses:    []statusReply{{res: &StatusResult{Status: domain.StatusCompleted, Receipt: &receipt}}},
	}
	s := NewSession(api, WithPollInterval(10*time.Millisecond), WithTimeout(40*time.Millisecond))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, domain.TimeoutMessage, snap.Message)
	assert.Empty(t, snap.Receipt)
	assert.EqualValues(t, 1, api.pollCount())
}

func TestSession_InvalidInputStaysIdle(t *testing.T) {
	s := NewSession(&fakeAPI{})

	assert.ErrorIs(t, s.Start(context.Background(), "12345", "500"), payment.ErrInvalidPhone)
	assert.ErrorIs(t, s.Start(context.Background(), "0712345678", "0"), payment.ErrInvalidAmount)
	assert.ErrorIs(t, s.Start(context.Background(), "0712345678", "250001"), payment.ErrInvalidAmount)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_Busy(t *testing.T) {
	api := &fakeAPI{statuses: []statusReply{pending()}}
	s := NewSession(api, WithPollInterval(5*time.Millisecond), WithTimeout(time.Minute))

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	assert.ErrorIs(t, s.Start(context.Background(), "0712345678", "500"), ErrBusy)
	s.Cancel()
	waitDone(t, s)

	// A new payment may start once the previous one has ended.
	require.NoError(t, s.Start(context.Background(), "0712345678", "100"))
	s.Cancel()
	waitDone(t, s)
}

func TestSession_InitiateError(t *testing.T) {
	api := &fakeAPI{initiateErr: &APIError{StatusCode: 400, Message: "Invalid phone format"}}
	s := NewSession(api)

	require.NoError(t, s.Start(context.Background(), "0712345678", "500"))
	snap := waitDone(t, s)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Invalid phone format", snap.Message)
	assert.Zero(t, api.pollCount())
}

func TestSession_WaitWithoutRun(t *testing.T) {
	s := NewSession(&fakeAPI{})
	snap, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}
