// Package testutil provides small builders shared by package tests.
package testutil

import "github.com/hupe1980/taskmesh/core"

// Profile returns a deterministic user profile for tests.
func Profile() core.Profile {
	return core.Profile{
		Name:       "Alex",
		Gender:     "female",
		Age:        28,
		Occupation: "designer",
		Hobbies:    []string{"photography", "hiking"},
		Mood:       "happy",
		Budget:     "medium",
		Season:     "autumn",
		Occasion:   "weekend trip",
	}
}

// ResultPayload returns a valid recommendation payload for a category.
func ResultPayload(category string) map[string]any {
	return map[string]any{
		"category": category,
		"items":    []any{"wool " + category},
		"colors":   []any{"navy"},
		"styles":   []any{"casual"},
		"reasons":  []any{"matches the season"},
	}
}

// ModelJSON returns the JSON text a well-behaved model would answer with.
func ModelJSON(category string) string {
	return `{"items":["wool ` + category + `"],"colors":["navy"],"styles":["casual"],"reasons":["matches the season"],"price_range":"$20-$60"}`
}
