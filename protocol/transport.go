package protocol

import "time"

// Transport is the subset of message-queue operations the sender and receiver
// helpers need. queue.Queue satisfies it; tests can substitute fakes.
type Transport interface {
	// Send enqueues an envelope for a destination. Duplicates are swallowed.
	Send(destination string, env Envelope) error
	// Receive blocks up to timeout for the destination's next envelope and
	// returns nil (no error) when the timeout elapses. When autoAck is true
	// the transport records acknowledgment of DISPATCH/RESULT/PROGRESS
	// envelopes before returning them.
	Receive(destination string, timeout time.Duration, autoAck bool) (*Envelope, error)
	// UpdateHeartbeat refreshes the liveness record for an agent.
	UpdateHeartbeat(agentID string)
}
