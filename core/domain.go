package core

import (
	"fmt"
	"strings"
)

// Profile captures the user facts the leader extracts before decomposing work.
// The dispatch core never interprets these fields; they travel inside the
// opaque envelope payload and feed the instruction compactor.
type Profile struct {
	Name            string   `json:"name"`
	Gender          string   `json:"gender"`
	Age             int      `json:"age"`
	Occupation      string   `json:"occupation"`
	Hobbies         []string `json:"hobbies,omitempty"`
	Mood            string   `json:"mood"`
	StylePreference string   `json:"style_preference,omitempty"`
	Budget          string   `json:"budget"`
	Season          string   `json:"season"`
	Occasion        string   `json:"occasion"`
}

// DefaultProfile is the substitute used when profile extraction is
// unrecoverable. The session still proceeds with neutral facts.
func DefaultProfile() Profile {
	return Profile{
		Name:     "User",
		Gender:   "male",
		Age:      25,
		Mood:     "normal",
		Budget:   "medium",
		Season:   "spring",
		Occasion: "daily",
	}
}

// PromptContext renders the profile as a compact bullet list for prompts.
func (p Profile) PromptContext() string {
	hobbies := "none"
	if len(p.Hobbies) > 0 {
		hobbies = strings.Join(p.Hobbies, ", ")
	}
	lines := []string{
		fmt.Sprintf("- Name: %s", p.Name),
		fmt.Sprintf("- Gender: %s", p.Gender),
		fmt.Sprintf("- Age: %d", p.Age),
		fmt.Sprintf("- Occupation: %s", p.Occupation),
		fmt.Sprintf("- Hobbies: %s", hobbies),
		fmt.Sprintf("- Mood: %s", p.Mood),
		fmt.Sprintf("- Budget: %s", p.Budget),
		fmt.Sprintf("- Season: %s", p.Season),
		fmt.Sprintf("- Occasion: %s", p.Occasion),
	}
	if p.StylePreference != "" {
		lines = append(lines, fmt.Sprintf("- Style preference: %s", p.StylePreference))
	}
	return "User info:\n" + strings.Join(lines, "\n")
}

// ToPayload converts the profile into the generic map shape envelope payloads use.
func (p Profile) ToPayload() map[string]any {
	hobbies := make([]any, len(p.Hobbies))
	for i, h := range p.Hobbies {
		hobbies[i] = h
	}
	return map[string]any{
		"name":       p.Name,
		"gender":     p.Gender,
		"age":        p.Age,
		"occupation": p.Occupation,
		"hobbies":    hobbies,
		"mood":       p.Mood,
		"budget":     p.Budget,
		"season":     p.Season,
		"occasion":   p.Occasion,
	}
}

// ProfileFromPayload rebuilds a Profile from an envelope payload map,
// substituting neutral defaults for anything absent.
func ProfileFromPayload(m map[string]any) Profile {
	p := DefaultProfile()
	if m == nil {
		return p
	}
	if v, ok := m["name"].(string); ok && v != "" {
		p.Name = v
	}
	if v, ok := m["gender"].(string); ok && v != "" {
		p.Gender = v
	}
	switch v := m["age"].(type) {
	case int:
		p.Age = v
	case float64:
		p.Age = int(v)
	}
	if v, ok := m["occupation"].(string); ok {
		p.Occupation = v
	}
	if v, ok := m["mood"].(string); ok && v != "" {
		p.Mood = v
	}
	if v, ok := m["budget"].(string); ok && v != "" {
		p.Budget = v
	}
	if v, ok := m["season"].(string); ok && v != "" {
		p.Season = v
	}
	if v, ok := m["occasion"].(string); ok && v != "" {
		p.Occasion = v
	}
	if raw, ok := m["hobbies"].([]any); ok {
		p.Hobbies = nil
		for _, h := range raw {
			if s, ok := h.(string); ok {
				p.Hobbies = append(p.Hobbies, s)
			}
		}
	}
	return p
}

// Recommendation is the structured result a worker produces for one category.
type Recommendation struct {
	Category   string   `json:"category"`
	Items      []string `json:"items"`
	Colors     []string `json:"colors"`
	Styles     []string `json:"styles"`
	Reasons    []string `json:"reasons"`
	PriceRange string   `json:"price_range,omitempty"`
}

// ToPayload converts the recommendation into an envelope payload map.
func (r Recommendation) ToPayload() map[string]any {
	return map[string]any{
		"category":    r.Category,
		"items":       toAnySlice(r.Items),
		"colors":      toAnySlice(r.Colors),
		"styles":      toAnySlice(r.Styles),
		"reasons":     toAnySlice(r.Reasons),
		"price_range": r.PriceRange,
	}
}

// RecommendationFromPayload rebuilds a Recommendation from a payload map.
func RecommendationFromPayload(m map[string]any) Recommendation {
	r := Recommendation{}
	if m == nil {
		return r
	}
	if v, ok := m["category"].(string); ok {
		r.Category = v
	}
	r.Items = toStringSlice(m["items"])
	r.Colors = toStringSlice(m["colors"])
	r.Styles = toStringSlice(m["styles"])
	r.Reasons = toStringSlice(m["reasons"])
	if v, ok := m["price_range"].(string); ok {
		r.PriceRange = v
	}
	return r
}

// SubstituteRecommendation is the pre-defined default used when a category's
// task is ultimately unrecoverable. The overall session completes with this
// neutral stand-in instead of failing the whole request.
func SubstituteRecommendation(category string) Recommendation {
	return Recommendation{
		Category: category,
		Items:    []string{"classic " + category + " staple"},
		Colors:   []string{"neutral"},
		Styles:   []string{"casual"},
		Reasons:  []string{"default suggestion while the " + category + " specialist was unavailable"},
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out
	case []any:
		var out []string
		for _, e := range vv {
			switch s := e.(type) {
			case string:
				out = append(out, s)
			default:
				out = append(out, fmt.Sprintf("%v", s))
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	default:
		return nil
	}
}
