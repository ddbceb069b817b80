package queue

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/protocol"
)

// DLQEntry is one dead-lettered message. OriginalEnvelope is nil when the
// entry records an expected-but-never-received message (a collector timing
// out on a task's result).
type DLQEntry struct {
	OriginalEnvelope    *protocol.Envelope
	ErrorReason         string
	RecordedAt          time.Time
	RetryCountAtFailure int
}

// ToDLQ moves a message out of normal flow into the destination's dead-letter
// sink. Pass a nil envelope to record a missing message (the taskID then
// travels in the reason via the recorder fact). Entries are append-only.
func (q *Queue) ToDLQ(destination string, env *protocol.Envelope, reason string) {
	q.mu.Lock()
	retries := 0
	messageID, taskID := "", ""
	if env != nil {
		retries = q.redeliveries[env.MessageID]
		messageID = env.MessageID
		taskID = env.TaskID
	}
	entry := DLQEntry{
		OriginalEnvelope:    env,
		ErrorReason:         reason,
		RecordedAt:          time.Now().UTC(),
		RetryCountAtFailure: retries,
	}
	q.dlq[destination] = append(q.dlq[destination], entry)
	q.mu.Unlock()

	q.logger.Warn("message dead-lettered", "destination", destination, "message_id", messageID, "reason", reason)
	q.recorder.RecordDLQ(core.DLQFact{
		Destination: destination,
		MessageID:   messageID,
		TaskID:      taskID,
		Reason:      reason,
		RetryCount:  retries,
		At:          entry.RecordedAt,
	})
}

// ToDLQMissing records an expected-but-never-received message, typically a
// result that failed to arrive before the collection deadline. There is no
// envelope to preserve, only the task it should have carried.
func (q *Queue) ToDLQMissing(destination, taskID, reason string) {
	q.mu.Lock()
	entry := DLQEntry{
		ErrorReason: reason,
		RecordedAt:  time.Now().UTC(),
	}
	q.dlq[destination] = append(q.dlq[destination], entry)
	q.mu.Unlock()

	q.logger.Warn("missing message dead-lettered", "destination", destination, "task_id", taskID, "reason", reason)
	q.recorder.RecordDLQ(core.DLQFact{
		Destination: destination,
		TaskID:      taskID,
		Reason:      reason,
		At:          entry.RecordedAt,
	})
}

// DLQ returns a copy of the dead-letter entries recorded for a destination.
func (q *Queue) DLQ(destination string) []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.dlq[destination]
	out := make([]DLQEntry, len(entries))
	copy(out, entries)
	return out
}

// DLQSize reports the total number of dead-lettered entries across all
// destinations.
func (q *Queue) DLQSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, entries := range q.dlq {
		n += len(entries)
	}
	return n
}
