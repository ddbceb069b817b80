package core

import "time"

// TaskFact is an append-only statement about a task lifecycle transition.
type TaskFact struct {
	TaskID    string
	SessionID string
	Category  string
	Status    TaskStatus
	AgentID   string
	Detail    string
	At        time.Time
}

// DLQFact records a message (or a missing result) routed to the dead letter sink.
type DLQFact struct {
	Destination string
	MessageID   string
	TaskID      string
	Reason      string
	RetryCount  int
	At          time.Time
}

// ResultFact records a validated result accepted by the leader.
type ResultFact struct {
	SessionID string
	TaskID    string
	Category  string
	Payload   map[string]any
	At        time.Time
}

// Recorder is the boundary towards the persistence collaborator. The dispatch
// core only emits facts; it never queries storage synchronously inside a
// resilience-wrapped call path. Implementations must tolerate being called
// concurrently. Errors are the implementation's problem to log - callers
// treat recording as best effort.
type Recorder interface {
	RecordTask(fact TaskFact)
	RecordDLQ(fact DLQFact)
	RecordResult(fact ResultFact)
}

// NoopRecorder discards all facts. The default when no storage is wired.
type NoopRecorder struct{}

// RecordTask implements Recorder.
func (NoopRecorder) RecordTask(TaskFact) {}

// RecordDLQ implements Recorder.
func (NoopRecorder) RecordDLQ(DLQFact) {}

// RecordResult implements Recorder.
func (NoopRecorder) RecordResult(ResultFact) {}
