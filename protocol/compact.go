package protocol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// DefaultTokenBudget bounds outbound instruction size when no explicit quota
// is configured for a worker.
const DefaultTokenBudget = 500

// TaskBrief is the minimal task description the compactor needs.
type TaskBrief struct {
	Category    string
	Instruction string
}

// TokenController tracks per-agent token quotas and produces budget-bounded
// compact instructions for dispatch payloads.
type TokenController struct {
	mu            sync.RWMutex
	defaultBudget int
	quotas        map[string]int
}

// NewTokenController constructs a controller with the given default budget
// (DefaultTokenBudget when <= 0).
func NewTokenController(defaultBudget int) *TokenController {
	if defaultBudget <= 0 {
		defaultBudget = DefaultTokenBudget
	}
	return &TokenController{defaultBudget: defaultBudget, quotas: make(map[string]int)}
}

// Limit returns the token budget for an agent.
func (tc *TokenController) Limit(agentID string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if q, ok := tc.quotas[agentID]; ok {
		return q
	}
	return tc.defaultBudget
}

// SetLimit overrides the token budget for an agent.
func (tc *TokenController) SetLimit(agentID string, limit int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.quotas[agentID] = limit
}

// Grant answers a quota request: the smaller of the requested amount and
// twice the agent's current limit, so a runaway worker cannot inflate its
// own budget unbounded. The granted value becomes the agent's new limit.
func (tc *TokenController) Grant(agentID string, requested int) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	current := tc.defaultBudget
	if q, ok := tc.quotas[agentID]; ok {
		current = q
	}
	granted := requested
	if granted > current*2 {
		granted = current * 2
	}
	tc.quotas[agentID] = granted
	return granted
}

// Compact produces the fixed-structure abbreviated instruction
// (task/target/key-fields/requirement) within an approximate token budget.
// It is a pure function: same inputs, same output, no failure modes beyond
// truncation of the optional context.
func Compact(profile core.Profile, task TaskBrief, context string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultTokenBudget
	}

	category := task.Category
	if category == "" {
		category = "unknown"
	}
	target := profile.Name
	if target == "" {
		target = "User"
	}
	parts := []string{
		"Task: " + category,
		"Target: " + target,
	}

	var keyInfo []string
	if profile.Gender != "" {
		keyInfo = append(keyInfo, "Gender: "+profile.Gender)
	}
	if profile.Age > 0 {
		keyInfo = append(keyInfo, fmt.Sprintf("Age: %d", profile.Age))
	}
	if profile.Occupation != "" {
		keyInfo = append(keyInfo, "Occupation: "+profile.Occupation)
	}
	if profile.Mood != "" {
		keyInfo = append(keyInfo, "Mood: "+profile.Mood)
	}
	if len(profile.Hobbies) > 0 {
		keyInfo = append(keyInfo, "Hobbies: "+strings.Join(profile.Hobbies, ","))
	}
	if len(keyInfo) > 0 {
		parts = append(parts, "User Info: "+strings.Join(keyInfo, "; "))
	}

	if task.Instruction != "" {
		parts = append(parts, "Requirement: "+task.Instruction)
	}

	if context != "" {
		// Reserve room measured in characters; roughly 4 chars per token.
		budgetChars := maxTokens * 4
		used := 0
		for _, p := range parts {
			used += len(p)
		}
		available := budgetChars - used - 50
		if available > 100 {
			if len(context) > available {
				context = context[:available]
			}
			parts = append(parts, "Context: "+context)
		}
	}

	return strings.Join(parts, "\n")
}

// EstimateTokens returns a word-based token estimate with a byte-length floor,
// good enough for budget checks without a tokenizer dependency.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	words := len(strings.Fields(content))
	wordEstimate := int(float64(words) * 1.33)
	charEstimate := len(content) / 4
	if wordEstimate > charEstimate {
		return wordEstimate
	}
	return charEstimate
}
