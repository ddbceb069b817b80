package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Fallback produces a substitute result for an operation whose guarded call
// could not be completed. Fallbacks are registered per operation key by the
// caller; the resilience layer hard-codes none of them.
type Fallback func(ctx context.Context) (any, error)

// Operation is a fallible unit of work, typically a call to the external
// text-generation service.
type Operation func(ctx context.Context) (any, error)

// GuardOptions configures a Guard.
type GuardOptions struct {
	Logger logging.Logger
	// Sleep overrides the inter-attempt wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Guard composes a circuit breaker, a retry handler and a fallback strategy
// map into the standard guarded-call discipline: ask the breaker, attempt,
// retry with backoff on retryable failures, record the outcome, fall back
// when the call cannot be completed.
type Guard struct {
	breaker *CircuitBreaker
	retry   *RetryHandler

	mu        sync.RWMutex
	fallbacks map[string]Fallback

	sleep  func(ctx context.Context, d time.Duration) error
	logger logging.Logger
}

// NewGuard constructs a Guard around the given breaker and retry handler.
func NewGuard(breaker *CircuitBreaker, retry *RetryHandler, optFns ...func(o *GuardOptions)) *Guard {
	opts := GuardOptions{
		Logger: logging.NoOpLogger{},
		Sleep:  sleepCtx,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Guard{
		breaker:   breaker,
		retry:     retry,
		fallbacks: make(map[string]Fallback),
		sleep:     opts.Sleep,
		logger:    opts.Logger,
	}
}

// Breaker exposes the underlying circuit breaker for state inspection.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }

// RegisterFallback installs the substitute producer for an operation key.
func (g *Guard) RegisterFallback(key string, fb Fallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallbacks[key] = fb
}

func (g *Guard) fallback(key string) (Fallback, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fb, ok := g.fallbacks[key]
	return fb, ok
}

// Do runs op under the guard discipline:
//
//   - breaker refuses -> run the registered fallback without attempting
//   - success -> reset retry state, record success, return the result
//   - retryable failure with budget left -> sleep the backoff, loop
//   - non-retryable failure (validation, unknown) -> record failure and
//     surface the error to the caller immediately, who decides fallback
//     vs. failure
//   - retries exhausted -> record failure, run the fallback; without one,
//     return a RetryExhausted error wrapping the last failure
func (g *Guard) Do(ctx context.Context, key string, op Operation) (any, error) {
	if !g.breaker.CanExecute() {
		g.logger.Warn("circuit open, using fallback", "operation", key)
		if fb, ok := g.fallback(key); ok {
			return fb(ctx)
		}
		return nil, core.Errorf(core.KindRetryExhausted, "circuit open for %q and no fallback registered", key)
	}

	var lastErr error
	for {
		result, err := op(ctx)
		if err == nil {
			g.retry.Reset(key)
			g.breaker.RecordSuccess()
			return result, nil
		}
		lastErr = err

		kind := core.KindOf(err)
		if !g.retry.ShouldRetry(key, kind) {
			break
		}

		delay := g.retry.Delay(key)
		g.retry.RecordAttempt(key)
		g.logger.Warn("retrying operation", "operation", key, "kind", string(kind), "attempt", g.retry.Attempts(key), "delay", delay.String())
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	g.breaker.RecordFailure()

	kind := core.KindOf(lastErr)
	if kind == core.KindValidation || kind == core.KindUnknown {
		return nil, lastErr
	}

	if fb, ok := g.fallback(key); ok {
		g.logger.Info("retries exhausted, using fallback", "operation", key)
		return fb(ctx)
	}
	return nil, core.WrapError(core.KindRetryExhausted, lastErr, "retries exhausted for "+key)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
