package registry

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures a Registry.
type Options struct {
	Recorder core.Recorder
	Logger   logging.Logger
}

// Registry is the authoritative task state store: registration, single-claim
// ownership, status transitions and result/error attachment. All operations
// are linearizable; Claim in particular is a single atomic compare-and-set,
// so concurrent claims on one task yield exactly one winner.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]*core.Task
	recorder core.Recorder
	logger   logging.Logger
}

// New constructs an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Recorder: core.NoopRecorder{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tasks:    make(map[string]*core.Task),
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// RegisterOptions carries optional task attributes.
type RegisterOptions struct {
	Title       string
	Description string
	MaxRetries  int
}

// Register creates a task in PENDING state and returns its id.
func (r *Registry) Register(sessionID, category string, optFns ...func(o *RegisterOptions)) string {
	opts := RegisterOptions{MaxRetries: 3}
	for _, fn := range optFns {
		fn(&opts)
	}

	task := core.NewTask(sessionID, category)
	task.Title = opts.Title
	task.Description = opts.Description
	if opts.MaxRetries > 0 {
		task.MaxRetries = opts.MaxRetries
	}

	r.mu.Lock()
	r.tasks[task.TaskID] = task
	r.mu.Unlock()

	r.recorder.RecordTask(core.TaskFact{
		TaskID:    task.TaskID,
		SessionID: sessionID,
		Category:  category,
		Status:    core.TaskPending,
		At:        task.CreatedAt,
	})
	return task.TaskID
}

// Claim takes exclusive ownership of a pending task. It succeeds only if the
// task exists and is still PENDING; the check and the transition happen under
// one lock, so exactly one of any set of concurrent claimants wins. A false
// return is not an error - the loser simply abandons the task.
func (r *Registry) Claim(agentID, taskID string) bool {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.Status != core.TaskPending {
		r.mu.Unlock()
		return false
	}
	task.Status = core.TaskInProgress
	task.OwnerAgentID = agentID
	task.UpdatedAt = time.Now().UTC()
	fact := core.TaskFact{
		TaskID:    taskID,
		SessionID: task.SessionID,
		Category:  task.Category,
		Status:    core.TaskInProgress,
		AgentID:   agentID,
		At:        task.UpdatedAt,
	}
	r.mu.Unlock()

	r.recorder.RecordTask(fact)
	return true
}

// UpdateStatus moves a task from IN_PROGRESS to a terminal state, attaching
// the result or error message. Any other transition is logged and ignored -
// it indicates a duplicate or late message, not a correctness violation, and
// history must never be silently corrupted. Cancellation goes through Cancel.
func (r *Registry) UpdateStatus(taskID string, status core.TaskStatus, result map[string]any, errorMessage string) bool {
	if !status.Terminal() || status == core.TaskCancelled {
		r.logger.Warn("illegal status update ignored", "task_id", taskID, "status", string(status))
		return false
	}

	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("status update for unknown task ignored", "task_id", taskID)
		return false
	}
	if task.Status != core.TaskInProgress {
		from := task.Status
		r.mu.Unlock()
		r.logger.Warn("illegal transition ignored", "task_id", taskID, "from", string(from), "to", string(status))
		return false
	}

	now := time.Now().UTC()
	task.Status = status
	task.UpdatedAt = now
	task.CompletedAt = &now
	if result != nil {
		task.Result = result
	}
	if errorMessage != "" {
		task.ErrorMessage = errorMessage
	}
	fact := core.TaskFact{
		TaskID:    taskID,
		SessionID: task.SessionID,
		Category:  task.Category,
		Status:    status,
		AgentID:   task.OwnerAgentID,
		Detail:    errorMessage,
		At:        now,
	}
	r.mu.Unlock()

	r.recorder.RecordTask(fact)
	return true
}

// Cancel marks a PENDING or IN_PROGRESS task CANCELLED. Cancellation is
// cooperative: the owner notices on its next status check, nothing is
// forcibly interrupted. Cancelling a terminal task is logged and ignored.
func (r *Registry) Cancel(taskID string) bool {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.Status.Terminal() {
		r.mu.Unlock()
		r.logger.Warn("cancel ignored", "task_id", taskID)
		return false
	}
	now := time.Now().UTC()
	task.Status = core.TaskCancelled
	task.UpdatedAt = now
	task.CompletedAt = &now
	fact := core.TaskFact{
		TaskID:    taskID,
		SessionID: task.SessionID,
		Category:  task.Category,
		Status:    core.TaskCancelled,
		AgentID:   task.OwnerAgentID,
		At:        now,
	}
	r.mu.Unlock()

	r.recorder.RecordTask(fact)
	return true
}

// Get returns a clone of the task, if known.
func (r *Registry) Get(taskID string) (*core.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// Status returns just the task's status, if known.
func (r *Registry) Status(taskID string) (core.TaskStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return "", false
	}
	return task.Status, true
}

// SessionTasks returns clones of all tasks registered for a session.
func (r *Registry) SessionTasks(sessionID string) []*core.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*core.Task
	for _, task := range r.tasks {
		if task.SessionID == sessionID {
			out = append(out, task.Clone())
		}
	}
	return out
}

// PendingTasks returns clones of PENDING tasks, optionally filtered by category.
func (r *Registry) PendingTasks(category string) []*core.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*core.Task
	for _, task := range r.tasks {
		if task.Status != core.TaskPending {
			continue
		}
		if category != "" && task.Category != category {
			continue
		}
		out = append(out, task.Clone())
	}
	return out
}

// RetryFailed resets a FAILED task to PENDING for another claim attempt,
// provided retry budget remains. RetryCount only increases.
func (r *Registry) RetryFailed(taskID string) bool {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok || task.Status != core.TaskFailed || task.RetryCount >= task.MaxRetries {
		r.mu.Unlock()
		return false
	}
	task.Status = core.TaskPending
	task.OwnerAgentID = ""
	task.ErrorMessage = ""
	task.RetryCount++
	task.CompletedAt = nil
	task.UpdatedAt = time.Now().UTC()
	fact := core.TaskFact{
		TaskID:    taskID,
		SessionID: task.SessionID,
		Category:  task.Category,
		Status:    core.TaskPending,
		Detail:    "requeued after failure",
		At:        task.UpdatedAt,
	}
	r.mu.Unlock()

	r.recorder.RecordTask(fact)
	return true
}
