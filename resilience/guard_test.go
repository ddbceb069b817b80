package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

func newTestGuard(threshold, maxRetries int) (*Guard, *[]time.Duration) {
	var slept []time.Duration
	cb := NewCircuitBreaker(func(o *BreakerOptions) { o.FailureThreshold = threshold })
	rh := NewRetryHandler(Policy{MaxRetries: maxRetries})
	g := NewGuard(cb, rh, func(o *GuardOptions) {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}
	})
	return g, &slept
}

func TestGuard_Success(t *testing.T) {
	g, slept := newTestGuard(5, 3)

	out, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected outcome: %v %v", out, err)
	}
	if len(*slept) != 0 {
		t.Fatal("no backoff expected on first-attempt success")
	}
	if g.Breaker().State() != StateClosed {
		t.Fatal("breaker must stay closed")
	}
}

func TestGuard_RetryThenSuccess(t *testing.T) {
	g, slept := newTestGuard(5, 3)

	calls := 0
	out, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, core.NewError(core.KindTimeout, "model timed out")
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected outcome: %v %v", out, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoffs %v, got %v", want, *slept)
	}
	for i, w := range want {
		if (*slept)[i] != w {
			t.Fatalf("backoff %d: expected %s, got %s", i, w, (*slept)[i])
		}
	}
	// success clears the per-key counter for the next operation
	if g.retry.Attempts("op") != 0 {
		t.Fatal("retry state must reset on success")
	}
}

func TestGuard_ExhaustedUsesFallback(t *testing.T) {
	g, slept := newTestGuard(5, 2)
	g.RegisterFallback("op", func(ctx context.Context) (any, error) {
		return "substitute", nil
	})

	calls := 0
	out, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		calls++
		return nil, core.NewError(core.KindUpstream, "llm keeps failing")
	})
	if err != nil || out != "substitute" {
		t.Fatalf("expected fallback result, got %v %v", out, err)
	}
	if calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoffs, got %d", len(*slept))
	}
}

func TestGuard_ExhaustedWithoutFallback(t *testing.T) {
	g, _ := newTestGuard(5, 1)

	_, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		return nil, core.NewError(core.KindNetwork, "connection refused")
	})
	if core.KindOf(err) != core.KindRetryExhausted {
		t.Fatalf("expected retry_exhausted, got %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Fatal("exhaustion error must wrap the last failure")
	}
}

func TestGuard_NonRetryableSurfaces(t *testing.T) {
	g, slept := newTestGuard(5, 3)
	g.RegisterFallback("op", func(ctx context.Context) (any, error) {
		return "substitute", nil
	})

	cause := core.NewError(core.KindValidation, "payload malformed")
	calls := 0
	_, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		calls++
		return nil, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("validation failure must surface to the caller, got %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Fatal("non-retryable failure must not be retried")
	}
}

func TestGuard_OpenCircuitShortCircuits(t *testing.T) {
	g, _ := newTestGuard(1, 3)
	g.Breaker().RecordFailure()
	g.RegisterFallback("op", func(ctx context.Context) (any, error) {
		return "substitute", nil
	})

	called := false
	out, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		called = true
		return "ok", nil
	})
	if err != nil || out != "substitute" {
		t.Fatalf("expected fallback, got %v %v", out, err)
	}
	if called {
		t.Fatal("open circuit must not attempt the operation")
	}
}

func TestGuard_OpenCircuitWithoutFallback(t *testing.T) {
	g, _ := newTestGuard(1, 3)
	g.Breaker().RecordFailure()

	_, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if core.KindOf(err) != core.KindRetryExhausted {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestGuard_CancelledSleepAborts(t *testing.T) {
	cb := NewCircuitBreaker()
	rh := NewRetryHandler(Policy{MaxRetries: 3})
	g := NewGuard(cb, rh, func(o *GuardOptions) {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		}
	})

	calls := 0
	_, err := g.Do(context.Background(), "op", func(ctx context.Context) (any, error) {
		calls++
		return nil, core.NewError(core.KindTimeout, "slow")
	})
	if err == nil || calls != 1 {
		t.Fatalf("cancelled backoff must abort the loop: calls=%d err=%v", calls, err)
	}
}
