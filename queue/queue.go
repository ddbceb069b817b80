package queue

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/protocol"
)

const (
	// DefaultCapacity is the per-destination inbox capacity.
	DefaultCapacity = 256
	// DefaultMaxRedeliveries bounds how often one envelope is re-enqueued.
	DefaultMaxRedeliveries = 3
	// DefaultHeartbeatWindow is how long an agent may stay silent before
	// IsAlive reports false.
	DefaultHeartbeatWindow = 60 * time.Second
)

// Options configures a Queue.
type Options struct {
	Capacity        int
	MaxRedeliveries int
	HeartbeatWindow time.Duration
	Logger          logging.Logger
	Recorder        core.Recorder
}

// inbox is one destination's FIFO. The channel carries envelopes in send
// order; the metadata map is queue-local and never handed to consumers.
type inbox struct {
	ch   chan protocol.Envelope
	meta map[string]*entryMeta
}

type entryMeta struct {
	deliveryAttempts int
	firstEnqueuedAt  time.Time
	lastAttemptAt    time.Time
}

// Queue is an in-process, per-destination FIFO message queue with
// deduplication by message identity, acknowledgment tracking, redelivery
// bookkeeping and a dead-letter sink. All methods are safe for concurrent
// use; a blocked Receive never blocks other destinations.
type Queue struct {
	mu           sync.Mutex
	inboxes      map[string]*inbox
	seen         map[string]map[string]struct{}
	acked        map[string]time.Time
	redeliveries map[string]int
	dlq          map[string][]DLQEntry
	heartbeats   map[string]time.Time

	capacity        int
	maxRedeliveries int
	hbWindow        time.Duration
	logger          logging.Logger
	recorder        core.Recorder
}

// New constructs a Queue with optional overrides.
func New(optFns ...func(o *Options)) *Queue {
	opts := Options{
		Capacity:        DefaultCapacity,
		MaxRedeliveries: DefaultMaxRedeliveries,
		HeartbeatWindow: DefaultHeartbeatWindow,
		Logger:          logging.NoOpLogger{},
		Recorder:        core.NoopRecorder{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Queue{
		inboxes:         make(map[string]*inbox),
		seen:            make(map[string]map[string]struct{}),
		acked:           make(map[string]time.Time),
		redeliveries:    make(map[string]int),
		dlq:             make(map[string][]DLQEntry),
		heartbeats:      make(map[string]time.Time),
		capacity:        opts.Capacity,
		maxRedeliveries: opts.MaxRedeliveries,
		hbWindow:        opts.HeartbeatWindow,
		logger:          opts.Logger,
		recorder:        opts.Recorder,
	}
}

func (q *Queue) inboxLocked(destination string) *inbox {
	in, ok := q.inboxes[destination]
	if !ok {
		in = &inbox{ch: make(chan protocol.Envelope, q.capacity), meta: make(map[string]*entryMeta)}
		q.inboxes[destination] = in
	}
	return in
}

// Send appends an envelope to the destination's inbox. A message identity
// already accepted for that destination is silently dropped - duplicates are
// an idempotent no-op, not an error to the caller. A full inbox is reported
// as a QueueFull error.
func (q *Queue) Send(destination string, env protocol.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids, ok := q.seen[destination]
	if !ok {
		ids = make(map[string]struct{})
		q.seen[destination] = ids
	}
	if _, dup := ids[env.MessageID]; dup {
		q.logger.Debug("duplicate message dropped", "destination", destination, "message_id", env.MessageID)
		return nil
	}

	in := q.inboxLocked(destination)
	select {
	case in.ch <- env:
	default:
		return core.Errorf(core.KindQueueFull, "inbox for %q is full (capacity %d)", destination, q.capacity)
	}

	ids[env.MessageID] = struct{}{}
	in.meta[env.MessageID] = &entryMeta{firstEnqueuedAt: time.Now().UTC()}
	return nil
}

// Broadcast sends the same envelope to several destinations. Per-destination
// deduplication still applies.
func (q *Queue) Broadcast(destinations []string, env protocol.Envelope) error {
	for _, d := range destinations {
		if err := q.Send(d, env); err != nil {
			return err
		}
	}
	return nil
}

// Receive blocks up to timeout for the destination's next envelope. It
// returns (nil, nil) when the timeout elapses - an empty inbox is not an
// error. With autoAck set, acknowledgment of DISPATCH/RESULT/PROGRESS
// envelopes is recorded before the envelope is returned; other verbs are
// fire-and-forget and never acked.
func (q *Queue) Receive(destination string, timeout time.Duration, autoAck bool) (*protocol.Envelope, error) {
	q.mu.Lock()
	in := q.inboxLocked(destination)
	q.mu.Unlock()

	var env protocol.Envelope
	if timeout <= 0 {
		select {
		case env = <-in.ch:
		default:
			return nil, nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case env = <-in.ch:
		case <-timer.C:
			return nil, nil
		}
	}

	q.mu.Lock()
	if m, ok := in.meta[env.MessageID]; ok {
		m.deliveryAttempts++
		m.lastAttemptAt = time.Now().UTC()
	}
	if autoAck {
		switch env.Verb {
		case protocol.VerbDispatch, protocol.VerbResult, protocol.VerbProgress:
			q.acked[env.MessageID] = time.Now().UTC()
		}
	}
	q.mu.Unlock()

	return &env, nil
}

// Acknowledge records acknowledgment of a message explicitly. Used by
// consumers that receive without autoAck.
func (q *Queue) Acknowledge(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked[messageID] = time.Now().UTC()
}

// Acknowledged reports whether a message has been acknowledged.
func (q *Queue) Acknowledged(messageID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.acked[messageID]
	return ok
}

// ShouldRedeliver reports whether queue-level redelivery budget remains for a
// message. This governs re-delivery of the same envelope and is independent
// of (and composable with) the resilience layer's retry handler, which
// governs re-execution of domain logic.
func (q *Queue) ShouldRedeliver(messageID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.redeliveries[messageID] < q.maxRedeliveries
}

// IncrementRedelivery bumps the redelivery count for a message.
func (q *Queue) IncrementRedelivery(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.redeliveries[messageID]++
}

// ResetRedelivery clears the redelivery count for a message.
func (q *Queue) ResetRedelivery(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.redeliveries, messageID)
}

// Redeliver re-enqueues an envelope at the tail of its destination's inbox,
// bypassing deduplication. Callers must not assume strict causal ordering
// across redeliveries: a redelivered envelope lands behind later sends.
func (q *Queue) Redeliver(destination string, env protocol.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.redeliveries[env.MessageID]++
	in := q.inboxLocked(destination)
	select {
	case in.ch <- env:
	default:
		return core.Errorf(core.KindQueueFull, "inbox for %q is full (capacity %d)", destination, q.capacity)
	}
	if m, ok := in.meta[env.MessageID]; ok {
		m.lastAttemptAt = time.Now().UTC()
	} else {
		in.meta[env.MessageID] = &entryMeta{firstEnqueuedAt: time.Now().UTC()}
	}
	return nil
}

// Len reports the number of envelopes waiting for a destination.
func (q *Queue) Len(destination string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if in, ok := q.inboxes[destination]; ok {
		return len(in.ch)
	}
	return 0
}

// UpdateHeartbeat refreshes the liveness record for an agent.
func (q *Queue) UpdateHeartbeat(agentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats[agentID] = time.Now().UTC()
}

// Heartbeat returns the last recorded heartbeat for an agent.
func (q *Queue) Heartbeat(agentID string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	hb, ok := q.heartbeats[agentID]
	return hb, ok
}

// IsAlive reports whether an agent heartbeated within the configured window.
// An agent with no record yet is assumed alive.
func (q *Queue) IsAlive(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	hb, ok := q.heartbeats[agentID]
	if !ok {
		return true
	}
	return time.Since(hb) < q.hbWindow
}
