package agent

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/resilience"
)

const (
	// DefaultPollInterval bounds one inbox wait so the worker notices stop
	// requests promptly.
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultHeartbeatInterval is how often an idle worker signals liveness.
	DefaultHeartbeatInterval = 15 * time.Second
)

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Guard             *resilience.Guard
	Logger            logging.Logger
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	SystemPrompt      string
}

// Worker claims dispatched tasks for one category, produces a recommendation
// through a guarded model call and reports the result back to the leader.
type Worker struct {
	BaseAgent

	category string
	leaderID string
	queue    *queue.Queue
	registry *registry.Registry
	model    model.Model
	guard    *resilience.Guard
	sender   *protocol.Sender
	receiver *protocol.Receiver
	logger   logging.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	systemPrompt      string
}

// NewWorker constructs a Worker for one category, reporting to the given leader.
func NewWorker(name, category, leaderID string, q *queue.Queue, reg *registry.Registry, m model.Model, optFns ...func(o *WorkerOptions)) *Worker {
	opts := WorkerOptions{
		Logger:            logging.NoOpLogger{},
		PollInterval:      DefaultPollInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SystemPrompt:      defaultSystemPrompt(category),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Guard == nil {
		breaker := resilience.NewCircuitBreaker(func(o *resilience.BreakerOptions) {
			o.Logger = opts.Logger
		})
		retry := resilience.NewRetryHandler(resilience.DefaultPolicy())
		opts.Guard = resilience.NewGuard(breaker, retry, func(o *resilience.GuardOptions) {
			o.Logger = opts.Logger
		})
	}

	w := &Worker{
		BaseAgent: NewBaseAgent(name),
		category:  category,
		leaderID:  leaderID,
		queue:     q,
		registry:  reg,
		model:     m,
		guard:     opts.Guard,
		logger:    opts.Logger,

		pollInterval:      opts.PollInterval,
		heartbeatInterval: opts.HeartbeatInterval,
		systemPrompt:      opts.SystemPrompt,
	}
	w.sender = protocol.NewSender(name, q, func(o *protocol.SenderOptions) {
		o.Logger = opts.Logger
	})
	w.receiver = protocol.NewReceiver(name, q, func(o *protocol.ReceiverOptions) {
		o.AutoAck = true
		o.Logger = opts.Logger
	})
	w.SetDescription("Produces " + category + " recommendations for dispatched tasks")

	// The fallback keeps a session alive when the model stays unreachable
	// past the retry budget: a neutral default instead of no answer.
	w.guard.RegisterFallback(name, func(context.Context) (any, error) {
		return core.SubstituteRecommendation(category).ToPayload(), nil
	})

	return w
}

// Category returns the category this worker serves.
func (w *Worker) Category() string { return w.category }

// Run processes the worker's inbox until the context is cancelled or Stop is
// called. It blocks; start it in its own goroutine.
func (w *Worker) Run(ctx context.Context) error {
	derived, err := w.Start(ctx)
	if err != nil {
		return err
	}

	lastHeartbeat := time.Now()

	for {
		select {
		case <-derived.Done():
			return nil
		default:
		}

		if time.Since(lastHeartbeat) >= w.heartbeatInterval {
			if err := w.sender.SendHeartbeat(w.leaderID, ""); err != nil {
				w.logger.Debug("heartbeat failed", "agent_id", w.Name(), "error", err)
			}
			lastHeartbeat = time.Now()
		}

		env, err := w.receiver.Receive(w.pollInterval)
		if err != nil {
			w.logger.Error("receive failed", "agent_id", w.Name(), "error", err)
			continue
		}
		if env == nil {
			continue
		}

		switch env.Verb {
		case protocol.VerbDispatch:
			w.handleDispatch(derived, env)
		case protocol.VerbQuotaResponse:
			w.logger.Info("quota granted", "agent_id", w.Name(), "granted", env.TokenBudget)
		case protocol.VerbAck, protocol.VerbHeartbeat:
			// nothing to do
		default:
			w.logger.Debug("unexpected verb ignored", "agent_id", w.Name(), "verb", string(env.Verb))
		}
	}
}

// handleDispatch runs one task end to end: acknowledge, claim, generate,
// report. Losing the claim race is not an error; the task is simply someone
// else's.
func (w *Worker) handleDispatch(ctx context.Context, env *protocol.Envelope) {
	if err := w.ack(env); err != nil {
		w.logger.Debug("dispatch ack failed", "task_id", env.TaskID, "error", err)
	}

	if !w.registry.Claim(w.Name(), env.TaskID) {
		w.logger.Debug("claim lost", "agent_id", w.Name(), "task_id", env.TaskID)
		return
	}

	w.progress(env, 0.1, "task claimed")

	instruction, _ := env.Payload["compact_instruction"].(string)
	if instruction == "" {
		profile := core.ProfileFromPayload(asMap(env.Payload["profile"]))
		instruction = protocol.Compact(profile, protocol.TaskBrief{Category: w.category}, "", env.TokenBudget)
	}

	// A budget the instruction nearly fills means context was truncated;
	// ask for more room before the next round.
	if env.TokenBudget > 0 && protocol.EstimateTokens(instruction)*10 >= env.TokenBudget*9 {
		if err := w.RequestQuota(env.TaskID, env.TokenBudget*2); err != nil {
			w.logger.Debug("quota request failed", "task_id", env.TaskID, "error", err)
		}
	}

	w.progress(env, 0.5, "generating recommendation")

	started := time.Now()
	out, err := w.guard.Do(ctx, w.Name(), func(ctx context.Context) (any, error) {
		resp, err := w.model.Generate(ctx, model.Request{
			System:    w.systemPrompt,
			Prompt:    instruction,
			MaxTokens: 1024,
		})
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	w.logger.Debug("model call finished", "agent_id", w.Name(), "task_id", env.TaskID, "duration", time.Since(started), "error", err)

	if err != nil {
		if _, sendErr := w.sender.SendResult(env.SourceID, env.TaskID, env.SessionID, map[string]any{"category": w.category}, "failed"); sendErr != nil {
			w.logger.Error("failure report lost", "task_id", env.TaskID, "error", sendErr)
		}
		return
	}

	var payload map[string]any
	switch v := out.(type) {
	case map[string]any:
		payload = v // fallback already produced a structured recommendation
	case string:
		payload = w.parseRecommendation(v)
	default:
		payload = core.SubstituteRecommendation(w.category).ToPayload()
	}

	w.progress(env, 0.9, "finalizing result")

	if _, err := w.sender.SendResult(env.SourceID, env.TaskID, env.SessionID, payload, "success"); err != nil {
		w.logger.Error("result send failed", "task_id", env.TaskID, "error", err)
	}
}

// RequestQuota asks the leader for a larger token budget.
func (w *Worker) RequestQuota(taskID string, tokens int) error {
	env, err := protocol.NewQuotaRequest(w.Name(), w.leaderID, taskID, tokens)
	if err != nil {
		return err
	}
	return w.queue.Send(w.leaderID, env)
}

// parseRecommendation extracts the structured recommendation from model
// output. A response with no usable JSON degrades to the category default
// rather than failing the task.
func (w *Worker) parseRecommendation(text string) map[string]any {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidate := text[start : end+1]
		if gjson.Valid(candidate) {
			parsed := gjson.Parse(candidate)
			rec := core.Recommendation{
				Category:   w.category,
				Items:      gjsonStrings(parsed.Get("items")),
				Colors:     gjsonStrings(parsed.Get("colors")),
				Styles:     gjsonStrings(parsed.Get("styles")),
				Reasons:    gjsonStrings(parsed.Get("reasons")),
				PriceRange: parsed.Get("price_range").String(),
			}
			if len(rec.Items) > 0 {
				return rec.ToPayload()
			}
		}
	}

	w.logger.Warn("unparseable model output, using default", "agent_id", w.Name(), "category", w.category)
	return core.SubstituteRecommendation(w.category).ToPayload()
}

func (w *Worker) progress(env *protocol.Envelope, value float64, message string) {
	if err := w.sender.SendProgress(env.SourceID, env.TaskID, env.SessionID, value, message); err != nil {
		w.logger.Debug("progress send failed", "task_id", env.TaskID, "error", err)
	}
}

func (w *Worker) ack(env *protocol.Envelope) error {
	ack, err := protocol.NewAck(w.Name(), env.SourceID, env.TaskID, env.MessageID)
	if err != nil {
		return err
	}
	return w.queue.Send(env.SourceID, ack)
}

func gjsonStrings(res gjson.Result) []string {
	if !res.Exists() {
		return nil
	}
	if res.Type == gjson.String {
		return []string{res.String()}
	}
	var out []string
	for _, item := range res.Array() {
		out = append(out, item.String())
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func defaultSystemPrompt(category string) string {
	return "You are a fashion specialist for the " + category + " category. " +
		"Answer with a single JSON object containing the keys items, colors, styles, reasons (arrays of strings) and price_range (string)."
}
