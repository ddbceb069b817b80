package resilience

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// State is the circuit breaker state.
type State string

const (
	// StateClosed allows calls; failures are counted.
	StateClosed State = "closed"
	// StateOpen refuses calls until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen allows one probing call after the cooldown.
	StateHalfOpen State = "half_open"
)

// BreakerOptions configures a CircuitBreaker.
type BreakerOptions struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int
	// Timeout is the cooldown after which an open circuit admits a probe.
	// Default 60s.
	Timeout time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// Logger receives state-change messages.
	Logger logging.Logger
}

// CircuitBreaker isolates a failing dependency. One instance guards one
// call-site (an agent's model binding, typically) and is shared by all
// callers through that call-site, so every state read and write happens
// under one mutex.
//
// The OPEN -> HALF_OPEN transition is lazy: there is no background timer.
// It is evaluated as a function of (now - lastFailureAt) inside every
// state-reading call, under the same lock as the failure counters.
type CircuitBreaker struct {
	mu            sync.Mutex
	failureCount  int
	state         State
	lastFailureAt time.Time

	threshold int
	timeout   time.Duration
	now       func() time.Time
	logger    logging.Logger
}

// NewCircuitBreaker constructs a closed breaker.
func NewCircuitBreaker(optFns ...func(o *BreakerOptions)) *CircuitBreaker {
	opts := BreakerOptions{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		Clock:            time.Now,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: opts.FailureThreshold,
		timeout:   opts.Timeout,
		now:       opts.Clock,
		logger:    opts.Logger,
	}
}

// stateLocked applies the lazy timed transition and returns the effective
// state. Caller must hold the mutex.
func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && !cb.lastFailureAt.IsZero() {
		if cb.now().Sub(cb.lastFailureAt) >= cb.timeout {
			cb.state = StateHalfOpen
		}
	}
	return cb.state
}

// State returns the effective state after applying the lazy transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// CanExecute reports whether a call may be attempted. It returns false only
// while the breaker is effectively OPEN. Callers that get true must follow
// the attempt with exactly one RecordSuccess or RecordFailure; omitting that
// call leaves the counters stale and is a caller bug, not a breaker fault.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked() != StateOpen
}

// RecordSuccess resets the failure count and closes the circuit. In
// HALF_OPEN this is the probe succeeding.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.state = StateClosed
}

// RecordFailure bumps the consecutive-failure count and opens the circuit at
// the threshold. In HALF_OPEN a single failure re-opens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailureAt = cb.now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.threshold {
		if cb.state != StateOpen {
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failureCount)
		}
		cb.state = StateOpen
	}
}

// Reset restores the breaker to its initial closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.state = StateClosed
	cb.lastFailureAt = time.Time{}
}
