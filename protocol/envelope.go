package protocol

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Verb enumerates the finite set of interaction verbs envelopes carry.
type Verb string

const (
	// VerbDispatch hands a task to a worker (leader -> worker).
	VerbDispatch Verb = "DISPATCH"
	// VerbAck acknowledges receipt of a message.
	VerbAck Verb = "ACK"
	// VerbProgress reports fractional task progress (worker -> leader).
	VerbProgress Verb = "PROGRESS"
	// VerbResult returns a finished task's payload (worker -> leader).
	VerbResult Verb = "RESULT"
	// VerbHeartbeat signals liveness (bidirectional).
	VerbHeartbeat Verb = "HEARTBEAT"
	// VerbQuotaRequest asks the leader for a larger token budget.
	VerbQuotaRequest Verb = "QUOTA_REQUEST"
	// VerbQuotaResponse grants or denies a quota request.
	VerbQuotaResponse Verb = "QUOTA_RESPONSE"
)

// Envelope is the addressed, typed message unit exchanged between agents.
// Treat it as immutable once sent. MessageID is globally unique and serves
// as the queue's deduplication key. Payload is an opaque structured blob;
// the transport never interprets it.
type Envelope struct {
	Verb          Verb           `json:"verb"`
	SourceID      string         `json:"source_id"`
	DestinationID string         `json:"destination_id"`
	TaskID        string         `json:"task_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	TokenBudget   int            `json:"token_budget,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	MessageID     string         `json:"message_id"`
}

func newEnvelope(verb Verb, source, destination string) (Envelope, error) {
	if source == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "envelope requires a source agent id")
	}
	if destination == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "envelope requires a destination agent id")
	}
	return Envelope{
		Verb:          verb,
		SourceID:      source,
		DestinationID: destination,
		Timestamp:     time.Now().UTC(),
		MessageID:     core.NewID(),
	}, nil
}

// NewDispatch builds a DISPATCH envelope. Task, session and a non-nil payload
// are required; tokenBudget caps the instruction size the worker may spend.
func NewDispatch(source, destination, taskID, sessionID string, payload map[string]any, tokenBudget int) (Envelope, error) {
	env, err := newEnvelope(VerbDispatch, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if taskID == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "dispatch requires a task id")
	}
	if sessionID == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "dispatch requires a session id")
	}
	if payload == nil {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "dispatch requires a payload")
	}
	env.TaskID = taskID
	env.SessionID = sessionID
	env.Payload = payload
	env.TokenBudget = tokenBudget
	return env, nil
}

// NewResult builds a RESULT envelope. The payload must be non-empty; an empty
// result is indistinguishable from a lost one and is rejected at construction.
func NewResult(source, destination, taskID, sessionID string, payload map[string]any) (Envelope, error) {
	env, err := newEnvelope(VerbResult, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if taskID == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "result requires a task id")
	}
	if len(payload) == 0 {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "result requires a non-empty payload")
	}
	env.TaskID = taskID
	env.SessionID = sessionID
	env.Payload = payload
	return env, nil
}

// NewProgress builds a PROGRESS envelope. Progress is clamped to [0,1].
func NewProgress(source, destination, taskID, sessionID string, progress float64, message string) (Envelope, error) {
	env, err := newEnvelope(VerbProgress, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if taskID == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "progress requires a task id")
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	env.TaskID = taskID
	env.SessionID = sessionID
	env.Payload = map[string]any{"progress": progress, "message": message}
	return env, nil
}

// NewAck builds an ACK envelope referencing the acknowledged message.
func NewAck(source, destination, taskID, ackedMessageID string) (Envelope, error) {
	env, err := newEnvelope(VerbAck, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if ackedMessageID == "" {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "ack requires the acknowledged message id")
	}
	env.TaskID = taskID
	env.Payload = map[string]any{"ack_message_id": ackedMessageID, "ack_status": "received"}
	return env, nil
}

// NewHeartbeat builds a HEARTBEAT envelope.
func NewHeartbeat(source, destination, sessionID string) (Envelope, error) {
	env, err := newEnvelope(VerbHeartbeat, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	env.SessionID = sessionID
	env.Payload = map[string]any{"at": time.Now().UTC().Format(time.RFC3339Nano)}
	return env, nil
}

// NewQuotaRequest builds a QUOTA_REQUEST envelope asking for a token budget.
func NewQuotaRequest(source, destination, taskID string, requestedTokens int) (Envelope, error) {
	env, err := newEnvelope(VerbQuotaRequest, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if requestedTokens <= 0 {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "quota request requires a positive token count")
	}
	env.TaskID = taskID
	env.Payload = map[string]any{"requested_tokens": requestedTokens}
	return env, nil
}

// NewQuotaResponse builds a QUOTA_RESPONSE envelope granting a token budget.
func NewQuotaResponse(source, destination, taskID string, grantedTokens int) (Envelope, error) {
	env, err := newEnvelope(VerbQuotaResponse, source, destination)
	if err != nil {
		return Envelope{}, err
	}
	if grantedTokens < 0 {
		return Envelope{}, core.NewError(core.KindInvalidMessage, "quota response requires a non-negative token count")
	}
	env.TaskID = taskID
	env.TokenBudget = grantedTokens
	env.Payload = map[string]any{"granted_tokens": grantedTokens}
	return env, nil
}

// Progress extracts the fractional progress from a PROGRESS payload.
func (e Envelope) Progress() (float64, string) {
	if e.Payload == nil {
		return 0, ""
	}
	p, _ := e.Payload["progress"].(float64)
	msg, _ := e.Payload["message"].(string)
	return p, msg
}
