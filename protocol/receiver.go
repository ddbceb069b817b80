package protocol

import (
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// Receiver binds an agent's inbox to a transport. Receiving refreshes the
// agent's heartbeat so the queue's liveness table stays current without a
// separate ticker per worker.
type Receiver struct {
	agentID string
	tp      Transport
	autoAck bool
	logger  logging.Logger
}

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// AutoAck acknowledges DISPATCH/RESULT/PROGRESS envelopes on receipt.
	// Workers run with this on; the leader's collector acks explicitly.
	AutoAck bool
	Logger  logging.Logger
}

// NewReceiver constructs a Receiver for the given agent.
func NewReceiver(agentID string, tp Transport, optFns ...func(o *ReceiverOptions)) *Receiver {
	opts := ReceiverOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Receiver{agentID: agentID, tp: tp, autoAck: opts.AutoAck, logger: opts.Logger}
}

// Receive blocks up to timeout for the next envelope addressed to this agent.
// A nil envelope with nil error means the timeout elapsed.
func (r *Receiver) Receive(timeout time.Duration) (*Envelope, error) {
	env, err := r.tp.Receive(r.agentID, timeout, r.autoAck)
	if err != nil {
		return nil, err
	}
	if env != nil {
		r.tp.UpdateHeartbeat(r.agentID)
		r.logger.Debug("received envelope", "agent_id", r.agentID, "verb", string(env.Verb), "message_id", env.MessageID)
	}
	return env, nil
}

// WaitForDispatch receives and returns the next DISPATCH envelope, discarding
// nothing: non-dispatch envelopes are returned as nil so the caller's loop can
// poll again without losing its place in the inbox.
func (r *Receiver) WaitForDispatch(timeout time.Duration) (*Envelope, error) {
	env, err := r.Receive(timeout)
	if err != nil || env == nil {
		return nil, err
	}
	if env.Verb != VerbDispatch {
		return nil, nil
	}
	return env, nil
}
