package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_TypedErrorWins(t *testing.T) {
	err := NewError(KindQueueFull, "inbox full")
	if got := KindOf(err); got != KindQueueFull {
		t.Fatalf("expected queue_full, got %s", got)
	}
	// typed errors survive wrapping
	wrapped := fmt.Errorf("send failed: %w", err)
	if got := KindOf(wrapped); got != KindQueueFull {
		t.Fatalf("expected queue_full through wrap, got %s", got)
	}
}

func TestKindOf_Heuristics(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("context deadline exceeded"), KindTimeout},
		{errors.New("request timeout after 30s"), KindTimeout},
		{errors.New("connection refused"), KindNetwork},
		{errors.New("anthropic api error: 529"), KindUpstream},
		{errors.New("model overloaded"), KindUpstream},
		{errors.New("validation failed for items"), KindValidation},
		{errors.New("something odd"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestError_UnwrapAndWithTask(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(KindUpstream, cause, "generate failed")
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}

	annotated := err.WithTask("top_worker", "task-1")
	if annotated.AgentID != "top_worker" || annotated.TaskID != "task-1" {
		t.Fatalf("unexpected annotation: %+v", annotated)
	}
	// original must stay untouched
	if err.AgentID != "" || err.TaskID != "" {
		t.Fatalf("WithTask mutated the original: %+v", err)
	}
}
