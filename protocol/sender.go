package protocol

import (
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Sender binds an agent identity to a transport and offers verb-specific
// send helpers. The dispatch path injects the compact instruction so every
// outbound task carries a budget-bounded prompt.
type Sender struct {
	agentID string
	tp      Transport
	tokens  *TokenController
	logger  logging.Logger
}

// SenderOptions configures a Sender.
type SenderOptions struct {
	TokenController *TokenController
	Logger          logging.Logger
}

// NewSender constructs a Sender for the given agent.
func NewSender(agentID string, tp Transport, optFns ...func(o *SenderOptions)) *Sender {
	opts := SenderOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TokenController == nil {
		opts.TokenController = NewTokenController(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Sender{agentID: agentID, tp: tp, tokens: opts.TokenController, logger: opts.Logger}
}

// Tokens exposes the sender's token controller so the owner can answer
// quota requests and tune per-agent budgets.
func (s *Sender) Tokens() *TokenController { return s.tokens }

// SendDispatch compacts the instruction for the target's budget, injects it
// into the payload under "compact_instruction" and sends the DISPATCH envelope.
func (s *Sender) SendDispatch(destination, taskID, sessionID string, profile core.Profile, brief TaskBrief, payload map[string]any, context string) (Envelope, error) {
	budget := s.tokens.Limit(destination)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["compact_instruction"] = Compact(profile, brief, context, budget)

	env, err := NewDispatch(s.agentID, destination, taskID, sessionID, payload, budget)
	if err != nil {
		return Envelope{}, err
	}
	if err := s.tp.Send(destination, env); err != nil {
		return Envelope{}, err
	}
	s.logger.Debug("sent dispatch", "destination", destination, "task_id", taskID, "category", brief.Category, "token_budget", budget)
	return env, nil
}

// SendResult sends a RESULT envelope with the given status ("success"/"failed").
func (s *Sender) SendResult(destination, taskID, sessionID string, result map[string]any, status string) (Envelope, error) {
	env, err := NewResult(s.agentID, destination, taskID, sessionID, map[string]any{"result": result, "status": status})
	if err != nil {
		return Envelope{}, err
	}
	if err := s.tp.Send(destination, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// SendProgress sends a PROGRESS envelope.
func (s *Sender) SendProgress(destination, taskID, sessionID string, progress float64, message string) error {
	env, err := NewProgress(s.agentID, destination, taskID, sessionID, progress, message)
	if err != nil {
		return err
	}
	return s.tp.Send(destination, env)
}

// SendHeartbeat refreshes this agent's liveness record and notifies the peer.
func (s *Sender) SendHeartbeat(destination, sessionID string) error {
	s.tp.UpdateHeartbeat(s.agentID)
	env, err := NewHeartbeat(s.agentID, destination, sessionID)
	if err != nil {
		return err
	}
	return s.tp.Send(destination, env)
}

// SendQuotaResponse grants tokens to a requesting agent via the controller
// and tells it the new budget.
func (s *Sender) SendQuotaResponse(destination, taskID string, requested int) error {
	granted := s.tokens.Grant(destination, requested)
	env, err := NewQuotaResponse(s.agentID, destination, taskID, granted)
	if err != nil {
		return err
	}
	return s.tp.Send(destination, env)
}
