package resilience

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Policy configures retry behavior for a handler.
type Policy struct {
	// MaxRetries bounds attempts per operation key. Default 3.
	MaxRetries int
	// InitialDelay seeds the exponential backoff. Default 1s.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Default 30s.
	MaxDelay time.Duration
	// BackoffFactor is the exponential base. Default 2.0.
	BackoffFactor float64
	// Jitter randomizes each delay within [delay/2, delay]. Off by default;
	// the source material uses fixed exponential backoff, so this is a
	// tunable rather than an assumption.
	Jitter bool
	// RetryOn is the retryable error-kind allowlist. Defaults to
	// Timeout, NetworkError and UpstreamFailure.
	RetryOn []core.ErrorKind
}

// DefaultPolicy returns the documented default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryOn:       []core.ErrorKind{core.KindTimeout, core.KindNetwork, core.KindUpstream},
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = d.BackoffFactor
	}
	if p.RetryOn == nil {
		p.RetryOn = d.RetryOn
	}
	return p
}

// RetryHandler is a pure decision function plus a delay calculator. It never
// invokes the wrapped call: callers increment the attempt counter after each
// failed attempt and reset it on success, which keeps the handler trivially
// testable. State is keyed by a logical operation name such as
// "leader:parse_profile".
type RetryHandler struct {
	mu       sync.Mutex
	policy   Policy
	attempts map[string]int
}

// NewRetryHandler constructs a handler for the given policy (zero-value
// fields fall back to defaults).
func NewRetryHandler(policy Policy) *RetryHandler {
	return &RetryHandler{policy: policy.withDefaults(), attempts: make(map[string]int)}
}

// ShouldRetry reports whether another attempt is allowed: the error kind must
// be in the retryable set and retry budget must remain for the key.
func (r *RetryHandler) ShouldRetry(key string, kind core.ErrorKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts[key] >= r.policy.MaxRetries {
		return false
	}
	for _, k := range r.policy.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

// Delay returns the backoff before the next attempt:
// min(initialDelay * backoffFactor^attemptsSoFar, maxDelay). Deterministic
// given state unless jitter is enabled.
func (r *RetryHandler) Delay(key string) time.Duration {
	r.mu.Lock()
	attempt := r.attempts[key]
	p := r.policy
	r.mu.Unlock()

	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter {
		half := d / 2
		d = half + time.Duration(rand.Int64N(int64(half)+1))
	}
	return d
}

// RecordAttempt bumps the attempt counter for a key.
func (r *RetryHandler) RecordAttempt(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
}

// Attempts returns the attempt counter for a key.
func (r *RetryHandler) Attempts(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

// Reset clears the attempt counter for a key; call it after a success.
func (r *RetryHandler) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}
