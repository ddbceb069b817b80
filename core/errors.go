package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure for retry and fallback decisions. The kind,
// not the concrete error value, is what the resilience layer reasons about.
type ErrorKind string

const (
	// KindTimeout indicates an operation exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindNetwork indicates a transport level failure (connect, reset, DNS).
	KindNetwork ErrorKind = "network"
	// KindUpstream indicates the external text generation service failed.
	KindUpstream ErrorKind = "upstream_failed"
	// KindValidation indicates a payload failed structural validation.
	KindValidation ErrorKind = "validation"
	// KindAgentNotFound indicates a destination agent is unknown.
	KindAgentNotFound ErrorKind = "agent_not_found"
	// KindQueueFull indicates a destination inbox is at capacity.
	KindQueueFull ErrorKind = "queue_full"
	// KindSerialization indicates a value could not be encoded.
	KindSerialization ErrorKind = "serialization"
	// KindDeserialization indicates a value could not be decoded.
	KindDeserialization ErrorKind = "deserialization"
	// KindRetryExhausted indicates all configured retries were spent.
	KindRetryExhausted ErrorKind = "retry_exhausted"
	// KindInvalidMessage indicates an envelope missing verb-required fields.
	KindInvalidMessage ErrorKind = "invalid_message"
	// KindDuplicate indicates a message identity was already accepted.
	KindDuplicate ErrorKind = "duplicate"
	// KindUnknown is the classification of last resort.
	KindUnknown ErrorKind = "unknown"
)

// Error is the module's error type. It carries a kind for policy decisions
// plus optional agent/task correlation for logging.
type Error struct {
	Kind    ErrorKind
	Message string
	AgentID string
	TaskID  string
	Err     error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying cause.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithTask returns a copy of the error annotated with agent/task correlation.
func (e *Error) WithTask(agentID, taskID string) *Error {
	clone := *e
	clone.AgentID = agentID
	clone.TaskID = taskID
	return &clone
}

// KindOf classifies an arbitrary error. Typed errors win; untyped errors fall
// back to message heuristics so failures surfaced by third party clients still
// land in a useful retry bucket.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return KindNetwork
	case strings.Contains(msg, "llm") || strings.Contains(msg, "model") || strings.Contains(msg, "api error"):
		return KindUpstream
	case strings.Contains(msg, "validation"):
		return KindValidation
	default:
		return KindUnknown
	}
}
