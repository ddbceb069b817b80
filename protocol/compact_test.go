package protocol

import (
	"strings"
	"testing"

	"github.com/hupe1980/taskmesh/core"
)

func sampleProfile() core.Profile {
	return core.Profile{
		Name:       "Alex",
		Gender:     "female",
		Age:        28,
		Occupation: "designer",
		Hobbies:    []string{"hiking"},
		Mood:       "happy",
		Budget:     "medium",
		Season:     "autumn",
		Occasion:   "trip",
	}
}

func TestCompact_Deterministic(t *testing.T) {
	brief := TaskBrief{Category: "top", Instruction: "Recommend upper body garments"}
	a := Compact(sampleProfile(), brief, "long context", 500)
	b := Compact(sampleProfile(), brief, "long context", 500)
	if a != b {
		t.Fatal("compact must be deterministic for identical inputs")
	}
}

func TestCompact_Structure(t *testing.T) {
	brief := TaskBrief{Category: "top", Instruction: "Recommend upper body garments"}
	out := Compact(sampleProfile(), brief, "", 500)

	for _, want := range []string{"Task: top", "Target: Alex", "User Info: ", "Requirement: Recommend upper body garments"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Context:") {
		t.Fatal("no context section expected when context is empty")
	}
}

func TestCompact_TruncatesContextToBudget(t *testing.T) {
	brief := TaskBrief{Category: "top", Instruction: "Recommend upper body garments"}
	context := strings.Repeat("style notes ", 500)

	out := Compact(sampleProfile(), brief, context, 100)
	// roughly 4 chars per token plus slack for the fixed sections
	if len(out) > 100*4+64 {
		t.Fatalf("output exceeds budget: %d chars", len(out))
	}

	// a tiny budget drops the context entirely rather than emitting a stub
	out = Compact(sampleProfile(), brief, context, 10)
	if strings.Contains(out, "Context:") {
		t.Fatal("tiny budget should omit the context section")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("empty string should estimate 0, got %d", got)
	}
	short := EstimateTokens("one two three")
	long := EstimateTokens(strings.Repeat("word ", 100))
	if short <= 0 || long <= short {
		t.Fatalf("estimates not monotonic: short=%d long=%d", short, long)
	}
}

func TestTokenController_Grant(t *testing.T) {
	tc := NewTokenController(500)
	if got := tc.Limit("top_worker"); got != 500 {
		t.Fatalf("expected default 500, got %d", got)
	}

	// grant is capped at twice the current limit
	if got := tc.Grant("top_worker", 5000); got != 1000 {
		t.Fatalf("expected capped grant 1000, got %d", got)
	}
	if got := tc.Limit("top_worker"); got != 1000 {
		t.Fatalf("grant must become the new limit, got %d", got)
	}

	// a modest request is granted verbatim
	if got := tc.Grant("top_worker", 1200); got != 1200 {
		t.Fatalf("expected 1200, got %d", got)
	}
}
