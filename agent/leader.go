package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/validator"
)

// DefaultCollectTimeout is the overall deadline for one collection round.
const DefaultCollectTimeout = 60 * time.Second

// collectPollInterval bounds how long one Receive call may block so the
// collector re-checks the deadline and completion set regularly.
const collectPollInterval = 200 * time.Millisecond

// LeaderOptions configures a Leader.
type LeaderOptions struct {
	TokenBudget    int
	CollectTimeout time.Duration
	Validator      *validator.Validator
	Recorder       core.Recorder
	Logger         logging.Logger
}

// Leader decomposes a session into per-category tasks, dispatches them to
// workers and collects validated results. One leader serves many sessions;
// all state it coordinates lives in the shared registry and queue.
type Leader struct {
	BaseAgent

	queue     *queue.Queue
	registry  *registry.Registry
	validator *validator.Validator
	sender    *protocol.Sender
	receiver  *protocol.Receiver
	recorder  core.Recorder
	logger    logging.Logger

	collectTimeout time.Duration
	routes         map[string]string // category -> worker agent id
}

// NewLeader constructs a Leader bound to the shared queue and registry.
func NewLeader(name string, q *queue.Queue, reg *registry.Registry, optFns ...func(o *LeaderOptions)) (*Leader, error) {
	opts := LeaderOptions{
		TokenBudget:    protocol.DefaultTokenBudget,
		CollectTimeout: DefaultCollectTimeout,
		Recorder:       core.NoopRecorder{},
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Validator == nil {
		v, err := validator.New()
		if err != nil {
			return nil, fmt.Errorf("build default validator: %w", err)
		}
		opts.Validator = v
	}

	tokens := protocol.NewTokenController(opts.TokenBudget)

	l := &Leader{
		BaseAgent: NewBaseAgent(name),
		queue:     q,
		registry:  reg,
		validator: opts.Validator,
		recorder:  opts.Recorder,
		logger:    opts.Logger,

		collectTimeout: opts.CollectTimeout,
		routes:         make(map[string]string),
	}
	l.sender = protocol.NewSender(name, q, func(o *protocol.SenderOptions) {
		o.TokenController = tokens
		o.Logger = opts.Logger
	})
	l.receiver = protocol.NewReceiver(name, q, func(o *protocol.ReceiverOptions) {
		o.Logger = opts.Logger
	})
	l.SetDescription("Coordinates task decomposition, dispatch and result collection")

	return l, nil
}

// AssignWorker routes a category's tasks to a worker agent.
func (l *Leader) AssignWorker(category, agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[category] = agentID
}

// Categories returns the categories with an assigned worker.
func (l *Leader) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.routes))
	for c := range l.routes {
		out = append(out, c)
	}
	return out
}

func (l *Leader) workerFor(category string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dest, ok := l.routes[category]
	return dest, ok
}

// RegisterTasks creates one pending task per category and returns the ids.
func (l *Leader) RegisterTasks(sessionID string, categories []string) []string {
	ids := make([]string, 0, len(categories))
	for _, category := range categories {
		id := l.registry.Register(sessionID, category, func(o *registry.RegisterOptions) {
			o.Title = fmt.Sprintf("Recommend %s wear", category)
		})
		ids = append(ids, id)
	}
	l.logger.Info("tasks registered", "session_id", sessionID, "count", len(ids))
	return ids
}

// Dispatch sends every pending task of the session to its category's worker.
// A category without an assigned worker is a dispatch error; the task stays
// pending so a later dispatch round can pick it up.
func (l *Leader) Dispatch(ctx context.Context, sessionID string, profile core.Profile) error {
	var firstErr error

	for _, task := range l.registry.SessionTasks(sessionID) {
		if task.Status != core.TaskPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		dest, ok := l.workerFor(task.Category)
		if !ok {
			err := core.Errorf(core.KindAgentNotFound, "no worker assigned for category %q", task.Category)
			l.logger.Error("dispatch skipped", "task_id", task.TaskID, "category", task.Category, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		payload := map[string]any{
			"profile":  profile.ToPayload(),
			"category": task.Category,
			"title":    task.Title,
		}
		brief := protocol.TaskBrief{
			Category:    task.Category,
			Instruction: instructionFor(task.Category),
		}

		if _, err := l.sender.SendDispatch(dest, task.TaskID, sessionID, profile, brief, payload, profile.PromptContext()); err != nil {
			l.logger.Error("dispatch failed", "task_id", task.TaskID, "destination", dest, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// CollectResults drains the leader's inbox until every task of the session is
// terminal or the timeout elapses. Arrived results are validated (and
// auto-fixed where possible) before the task completes; tasks still open at
// the deadline are failed and their missing results dead-lettered, one DLQ
// entry per worker destination.
func (l *Leader) CollectResults(ctx context.Context, sessionID string, timeout time.Duration) (map[string]core.Recommendation, error) {
	if timeout <= 0 {
		timeout = l.collectTimeout
	}
	deadline := time.Now().Add(timeout)
	results := make(map[string]core.Recommendation)

	for {
		if l.openTasks(sessionID) == 0 {
			return results, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		poll := collectPollInterval
		if remaining < poll {
			poll = remaining
		}
		env, err := l.receiver.Receive(poll)
		if err != nil {
			return results, err
		}
		if env == nil {
			continue
		}

		switch env.Verb {
		case protocol.VerbResult:
			l.handleResult(env, results)
		case protocol.VerbProgress:
			progress, msg := env.Progress()
			l.logger.Debug("progress", "task_id", env.TaskID, "agent_id", env.SourceID, "progress", progress, "message", msg)
		case protocol.VerbAck:
			if id, ok := env.Payload["ack_message_id"].(string); ok {
				l.queue.Acknowledge(id)
			}
		case protocol.VerbQuotaRequest:
			requested := 0
			if v, ok := env.Payload["requested_tokens"].(float64); ok {
				requested = int(v)
			} else if v, ok := env.Payload["requested_tokens"].(int); ok {
				requested = v
			}
			if err := l.sender.SendQuotaResponse(env.SourceID, env.TaskID, requested); err != nil {
				l.logger.Warn("quota response failed", "agent_id", env.SourceID, "error", err)
			}
		case protocol.VerbHeartbeat:
			// liveness is tracked by the queue on send
		}
	}

	l.failOpenTasks(sessionID)

	return results, nil
}

// Process runs the full round for one session: register a task per routed
// category, dispatch, collect, and substitute defaults for anything that
// failed so the caller always receives a complete set.
func (l *Leader) Process(ctx context.Context, sessionID string, profile core.Profile) (map[string]core.Recommendation, error) {
	categories := l.Categories()
	if len(categories) == 0 {
		return nil, core.NewError(core.KindAgentNotFound, "no workers assigned")
	}

	l.RegisterTasks(sessionID, categories)
	if err := l.Dispatch(ctx, sessionID, profile); err != nil {
		l.logger.Warn("partial dispatch", "session_id", sessionID, "error", err)
	}

	results, err := l.CollectResults(ctx, sessionID, l.collectTimeout)
	if err != nil {
		return results, err
	}

	for _, category := range categories {
		if _, ok := results[category]; !ok {
			results[category] = core.SubstituteRecommendation(category)
		}
	}

	return results, nil
}

// DLQ returns the dead letter entries recorded for a worker destination.
func (l *Leader) DLQ(agentID string) []queue.DLQEntry {
	return l.queue.DLQ(agentID)
}

// handleResult validates and applies one RESULT envelope. Late or duplicate
// results for already terminal tasks are ignored by the registry transition
// rules, so applying them twice is harmless.
func (l *Leader) handleResult(env *protocol.Envelope, results map[string]core.Recommendation) {
	l.queue.Acknowledge(env.MessageID)

	task, ok := l.registry.Get(env.TaskID)
	if !ok {
		l.logger.Warn("result for unknown task", "task_id", env.TaskID, "agent_id", env.SourceID)
		return
	}

	status, _ := env.Payload["status"].(string)
	payload, _ := env.Payload["result"].(map[string]any)

	if status == "failed" || payload == nil {
		reason, _ := env.Payload["error"].(string)
		if reason == "" {
			reason = "worker reported failure"
		}
		l.failTask(task, env, reason)
		return
	}

	res := l.validator.Validate(payload, task.Category, validator.LevelNormal)
	if !res.Valid {
		fixed := l.validator.AutoFix(payload, task.Category)
		if refixed := l.validator.Validate(fixed, task.Category, validator.LevelNormal); refixed.Valid {
			l.logger.Info("result auto-fixed", "task_id", task.TaskID, "category", task.Category, "errors", len(res.Errors))
			payload = fixed
		} else {
			l.failTask(task, env, fmt.Sprintf("invalid result: %v", res.Errors))
			return
		}
	}

	if l.registry.UpdateStatus(task.TaskID, core.TaskCompleted, payload, "") {
		rec := core.RecommendationFromPayload(payload)
		if rec.Category == "" {
			rec.Category = task.Category
		}
		results[task.Category] = rec
		l.recorder.RecordResult(core.ResultFact{
			SessionID: task.SessionID,
			TaskID:    task.TaskID,
			Category:  task.Category,
			Payload:   payload,
			At:        time.Now().UTC(),
		})
		if err := l.ack(env); err != nil {
			l.logger.Debug("result ack failed", "task_id", task.TaskID, "error", err)
		}
	}
}

func (l *Leader) failTask(task *core.Task, env *protocol.Envelope, reason string) {
	l.registry.UpdateStatus(task.TaskID, core.TaskFailed, nil, reason)
	l.queue.ToDLQ(env.SourceID, env, reason)
}

func (l *Leader) ack(env *protocol.Envelope) error {
	ack, err := protocol.NewAck(l.Name(), env.SourceID, env.TaskID, env.MessageID)
	if err != nil {
		return err
	}
	return l.queue.Send(env.SourceID, ack)
}

// openTasks counts the session's non-terminal tasks.
func (l *Leader) openTasks(sessionID string) int {
	n := 0
	for _, task := range l.registry.SessionTasks(sessionID) {
		if !task.Status.Terminal() {
			n++
		}
	}
	return n
}

// failOpenTasks fails every task still open after the collection deadline and
// records the missing result in the worker's dead letter queue. A task never
// claimed by its worker is claimed by the leader first so the failure
// transition stays legal.
func (l *Leader) failOpenTasks(sessionID string) {
	for _, task := range l.registry.SessionTasks(sessionID) {
		if task.Status.Terminal() {
			continue
		}
		dest, ok := l.workerFor(task.Category)
		if !ok {
			dest = task.Category
		}
		l.queue.ToDLQMissing(dest, task.TaskID, "no result received before collection deadline")
		if task.Status == core.TaskPending {
			l.registry.Claim(l.Name(), task.TaskID)
		}
		l.registry.UpdateStatus(task.TaskID, core.TaskFailed, nil, "no result received before collection deadline")
		l.logger.Warn("task failed on collection deadline", "task_id", task.TaskID, "category", task.Category, "destination", dest)
	}
}

// instructionFor phrases the per-category requirement the compactor embeds in
// the dispatch instruction.
func instructionFor(category string) string {
	switch category {
	case "head":
		return "Recommend headwear or hairstyle accessories fitting the user's mood and season"
	case "top":
		return "Recommend upper body garments fitting the user's mood, season and budget"
	case "bottom":
		return "Recommend lower body garments matching the suggested top and the occasion"
	case "shoes":
		return "Recommend footwear matching the outfit, season and budget"
	default:
		return "Recommend " + category + " items fitting the user's profile"
	}
}
