package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus enumerates the task state machine. Transitions are monotonic:
// PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}; PENDING or IN_PROGRESS may
// move to CANCELLED. Terminal states never transition again.
type TaskStatus string

const (
	// TaskPending means the task is waiting to be claimed.
	TaskPending TaskStatus = "pending"
	// TaskInProgress means exactly one agent owns the task.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted means the task finished with a result attached.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task finished unsuccessfully.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled means the task was cancelled before completion.
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is the registry's authoritative record of one unit of dispatched work.
//
// Invariants (enforced by registry.Registry, not by this struct):
//   - OwnerAgentID is set at most once, by the single successful claim
//   - Status transitions follow the TaskStatus state machine
//   - RetryCount only increases
type Task struct {
	TaskID       string         `json:"task_id"`
	SessionID    string         `json:"session_id"`
	Category     string         `json:"category"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       TaskStatus     `json:"status"`
	OwnerAgentID string         `json:"owner_agent_id,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a pending task bound to a session and category.
func NewTask(sessionID, category string) *Task {
	now := time.Now().UTC()
	return &Task{
		TaskID:     NewID(),
		SessionID:  sessionID,
		Category:   category,
		Status:     TaskPending,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy safe for handing to callers outside the registry.
func (t *Task) Clone() *Task {
	clone := *t
	if t.Result != nil {
		clone.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			clone.Result[k] = v
		}
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

// NewID generates a globally unique identifier used for tasks, sessions and
// message deduplication.
func NewID() string { return uuid.NewString() }
