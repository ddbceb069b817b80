package core

import "testing"

func TestProfile_PayloadRoundTrip(t *testing.T) {
	p := Profile{
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

	got := ProfileFromPayload(p.ToPayload())
	if got.Name != "Alex" || got.Age != 28 || len(got.Hobbies) != 1 || got.Hobbies[0] != "hiking" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestProfileFromPayload_DefaultsOnMissing(t *testing.T) {
	got := ProfileFromPayload(nil)
	want := DefaultProfile()
	if got.Name != want.Name || got.Season != want.Season {
		t.Fatalf("expected defaults, got %+v", got)
	}

	// json numbers arrive as float64
	got = ProfileFromPayload(map[string]any{"age": float64(40), "name": "Kim"})
	if got.Age != 40 || got.Name != "Kim" {
		t.Fatalf("expected age 40 and name Kim, got %+v", got)
	}
}

func TestSubstituteRecommendation(t *testing.T) {
	rec := SubstituteRecommendation("shoes")
	if rec.Category != "shoes" {
		t.Fatalf("unexpected category %q", rec.Category)
	}
	if len(rec.Items) == 0 || len(rec.Reasons) == 0 {
		t.Fatalf("substitute must be a complete recommendation: %+v", rec)
	}
}

func TestRecommendationFromPayload_ScalarCoercion(t *testing.T) {
	rec := RecommendationFromPayload(map[string]any{
		"category": "top",
		"items":    "single shirt", // scalar where a list is expected
	})
	if len(rec.Items) != 1 || rec.Items[0] != "single shirt" {
		t.Fatalf("expected scalar coerced to single-element list, got %+v", rec.Items)
	}
}
