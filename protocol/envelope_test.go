package protocol

import (
	"testing"
)

func TestNewDispatch_RequiredFields(t *testing.T) {
	payload := map[string]any{"category": "top"}

	env, err := NewDispatch("leader", "top_worker", "task-1", "sess-1", payload, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Verb != VerbDispatch || env.MessageID == "" || env.Timestamp.IsZero() {
		t.Fatalf("incomplete envelope: %+v", env)
	}
	if env.TokenBudget != 500 {
		t.Fatalf("expected token budget 500, got %d", env.TokenBudget)
	}

	cases := []struct {
		name string
		fn   func() error
	}{
		{"missing source", func() error { _, err := NewDispatch("", "w", "t", "s", payload, 0); return err }},
		{"missing destination", func() error { _, err := NewDispatch("l", "", "t", "s", payload, 0); return err }},
		{"missing task", func() error { _, err := NewDispatch("l", "w", "", "s", payload, 0); return err }},
		{"missing session", func() error { _, err := NewDispatch("l", "w", "t", "", payload, 0); return err }},
		{"nil payload", func() error { _, err := NewDispatch("l", "w", "t", "s", nil, 0); return err }},
	}
	for _, tc := range cases {
		if tc.fn() == nil {
			t.Fatalf("%s: expected construction error", tc.name)
		}
	}
}

func TestNewResult_RejectsEmptyPayload(t *testing.T) {
	if _, err := NewResult("w", "l", "task-1", "sess-1", map[string]any{}); err == nil {
		t.Fatal("expected error for empty result payload")
	}
	if _, err := NewResult("w", "l", "task-1", "sess-1", nil); err == nil {
		t.Fatal("expected error for nil result payload")
	}
}

func TestNewProgress_Clamps(t *testing.T) {
	env, err := NewProgress("w", "l", "task-1", "sess-1", 1.7, "almost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, msg := env.Progress(); p != 1 || msg != "almost" {
		t.Fatalf("expected clamp to 1, got %v %q", p, msg)
	}

	env, _ = NewProgress("w", "l", "task-1", "sess-1", -0.3, "")
	if p, _ := env.Progress(); p != 0 {
		t.Fatalf("expected clamp to 0, got %v", p)
	}
}

func TestMessageIDs_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		env, err := NewHeartbeat("w", "l", "sess-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, dup := seen[env.MessageID]; dup {
			t.Fatalf("duplicate message id %s", env.MessageID)
		}
		seen[env.MessageID] = struct{}{}
	}
}
