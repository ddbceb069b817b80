package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is the normalized input for a single completion call.
type Request struct {
	System    string `json:"system,omitempty"` // System prompt framing the worker's role
	Prompt    string `json:"prompt"`           // Compacted task instruction
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Response is the final output of a completion call.
type Response struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface workers use to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned responses are matched by substring against the prompt, so a
// response registered for "bottom" answers any instruction mentioning it.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	failures  []error
	calls     int
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:     name,
			Provider: "mock",
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for prompts
// containing the given fragment.
func (m *MockModel) AddResponse(fragment, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[fragment] = response
}

// FailNext queues errors to be returned, in order, before any canned
// response is served. Useful for exercising retry behavior.
func (m *MockModel) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = append(m.failures, errs...)
}

// Calls reports how many Generate invocations have been made.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}

	for fragment, response := range m.responses {
		if strings.Contains(req.Prompt, fragment) {
			return &Response{
				ID:           fmt.Sprintf("mock-%d", m.calls),
				Text:         response,
				FinishReason: "stop",
			}, nil
		}
	}

	return &Response{
		ID:           fmt.Sprintf("mock-%d", m.calls),
		Text:         fmt.Sprintf("Mock response to: %s", req.Prompt),
		FinishReason: "stop",
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
