// Package checkout drives one payer's payment from initiation to a terminal
// state by polling the portal until the gateway callback has landed.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"dovepay/internal/domain"
	"dovepay/pkg/payment"
)

type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
	StateWaiting State = "waiting"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 120 * time.Second
)

var ErrBusy = errors.New("a payment is already in progress")

// Snapshot is the observable state of a Session.
type Snapshot struct {
	State         State
	Reference     string
	CorrelationID string
	Message       string
	Receipt       string
}

func (s Snapshot) active() bool {
	return s.State == StateSending || s.State == StateWaiting
}

// Option configures a Session. Non-positive durations fall back to the defaults.
type Option func(*Session)

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.pollInterval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithOnChange registers a callback for every state transition. It runs on
// the session's goroutine (or the caller of Cancel) and must not block.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChange = fn }
}

// Session is the idle → sending → waiting → success|failed state machine.
// Each Start launches one goroutine that owns the poll ticker and the timeout
// timer and stops both when it leaves waiting. Transitions carry the run's
// generation, so a poll that returns after Cancel or timeout is discarded.
type Session struct {
	api          API
	pollInterval time.Duration
	timeout      time.Duration
	onChange     func(Snapshot)

	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(api API, opts ...Option) *Session {
	s := &Session{
		api:          api,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
		snap:         Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Start validates input and begins a payment. It returns immediately; follow
// progress with Wait or WithOnChange. Invalid input leaves the session idle.
func (s *Session) Start(ctx context.Context, phone, amount string) error {
	if !payment.IsValidPhone(phone) {
		return payment.ErrInvalidPhone
	}
	if _, err := payment.ParseAmount(amount); err != nil {
		return err
	}

	s.mu.Lock()
	if s.snap.active() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.snap = Snapshot{State: StateSending}
	snap := s.snap
	s.mu.Unlock()
	s.emit(snap)

	go s.run(runCtx, gen, done, phone, amount)
	return nil
}

// Cancel stops polling and returns to idle. The gateway prompt on the payer's
// phone is not withdrawn and no server record changes. It reports whether a
// payment was in progress.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if !s.snap.active() {
		s.mu.Unlock()
		return false
	}
	s.gen++
	s.stopLocked()
	s.snap = Snapshot{State: StateIdle}
	snap := s.snap
	s.mu.Unlock()
	s.emit(snap)
	return true
}

// Wait blocks until the current run has ended and returns the final snapshot.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return s.Snapshot(), nil
	}
	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, gen uint64, done chan struct{}, phone, amount string) {
	defer close(done)

	res, err := s.api.Initiate(ctx, phone, amount)
	if err != nil {
		if ctx.Err() != nil {
			s.transition(gen, Snapshot{State: StateIdle})
			return
		}
		s.transition(gen, Snapshot{State: StateFailed, Message: initiateMessage(err)})
		return
	}
	waiting := Snapshot{
		State:         StateWaiting,
		Reference:     res.Reference,
		CorrelationID: res.CorrelationID,
		Message:       res.CustomerMessage,
	}
	if !s.transition(gen, waiting) {
		return
	}

	deadline := time.Now().Add(s.timeout)
	timedOut := withState(waiting, StateFailed, domain.TimeoutMessage)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Parent context cancelled: back to idle.
			s.transition(gen, Snapshot{State: StateIdle})
			return
		case <-timer.C:
			s.transition(gen, timedOut)
			return
		case <-ticker.C:
			st, err := s.poll(ctx, deadline, res.CorrelationID)
			if !time.Now().Before(deadline) {
				// Answers that arrive after the deadline are discarded.
				s.transition(gen, timedOut)
				return
			}
			if err != nil {
				// Not found yet, or a transient error: keep waiting.
				continue
			}
			switch st.Status {
			case domain.StatusCompleted:
				next := withState(waiting, StateSuccess, "Payment received")
				if st.Receipt != nil {
					next.Receipt = *st.Receipt
				}
				s.transition(gen, next)
				return
			case domain.StatusFailed:
				msg := domain.DefaultFailureMessage
				if st.FailureReason != nil && *st.FailureReason != "" {
					msg = *st.FailureReason
				}
				s.transition(gen, withState(waiting, StateFailed, msg))
				return
			}
		}
	}
}

// poll runs one status request bounded by the waiting deadline.
func (s *Session) poll(ctx context.Context, deadline time.Time, id string) (*StatusResult, error) {
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return s.api.Status(pollCtx, id)
}

// transition applies next if gen is still the current run and the session is
// active. Leaving waiting and cancelling the run happen under the same lock.
func (s *Session) transition(gen uint64, next Snapshot) bool {
	s.mu.Lock()
	if gen != s.gen || !s.snap.active() {
		s.mu.Unlock()
		return false
	}
	s.snap = next
	if !next.active() {
		s.stopLocked()
	}
	s.mu.Unlock()
	s.emit(next)
	return true
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) emit(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}

func withState(base Snapshot, state State, msg string) Snapshot {
	base.State = state
	base.Message = msg
	return base
}

func initiateMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Failed to initiate payment: " + err.Error()
}
