// Package taskmesh provides a high-level façade over the dispatch mesh:
// a leader, its workers and the shared queue, registry and validator they
// coordinate through. Most applications interact with this package by:
//  1. Creating a TaskMesh via New() (optionally overriding defaults)
//  2. Registering one worker per category (RegisterWorker)
//  3. Starting the mesh and running sessions (Start, Process)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a SQLite recorder and a structured logger.
package taskmesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/resilience"
	"github.com/hupe1980/taskmesh/validator"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Config carries the mesh tunables (retry, breaker, queue, dispatch).
	Config config.Config

	// Recorder persists lifecycle facts (defaults to discard if nil).
	Recorder core.Recorder

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the leader, workers and the
// shared coordination state.
type TaskMesh struct {
	opts     Options
	queue    *queue.Queue
	registry *registry.Registry
	leader   *agent.Leader

	mu      sync.Mutex
	workers []*agent.Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new TaskMesh instance with optional overrides.
func New(optFns ...func(o *Options)) (*TaskMesh, error) {
	opts := Options{
		Config:   config.Default(),
		Recorder: core.NoopRecorder{},
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	q := queue.New(func(o *queue.Options) {
		o.Capacity = opts.Config.Queue.Capacity
		o.MaxRedeliveries = opts.Config.Queue.MaxRedeliveries
		o.HeartbeatWindow = opts.Config.Queue.HeartbeatWindow
		o.Logger = opts.Logger
		o.Recorder = opts.Recorder
	})
	reg := registry.New(func(o *registry.Options) {
		o.Recorder = opts.Recorder
		o.Logger = opts.Logger
	})

	v, err := validator.New(func(o *validator.Options) {
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	leader, err := agent.NewLeader("leader", q, reg, func(o *agent.LeaderOptions) {
		o.TokenBudget = opts.Config.Dispatch.TokenBudget
		o.CollectTimeout = opts.Config.Dispatch.CollectTimeout
		o.Validator = v
		o.Recorder = opts.Recorder
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &TaskMesh{
		opts:     opts,
		queue:    q,
		registry: reg,
		leader:   leader,
	}, nil
}

// RegisterWorker adds a worker for a category backed by the given model and
// routes the category's tasks to it. The worker's resilience guard is built
// from the mesh config.
func (m *TaskMesh) RegisterWorker(category string, mdl model.Model) *agent.Worker {
	name := category + "_worker"

	breaker := resilience.NewCircuitBreaker(func(o *resilience.BreakerOptions) {
		o.FailureThreshold = m.opts.Config.Breaker.FailureThreshold
		o.Timeout = m.opts.Config.Breaker.Timeout
		o.Logger = m.opts.Logger
	})
	retry := resilience.NewRetryHandler(resilience.Policy{
		MaxRetries:    m.opts.Config.Retry.MaxRetries,
		InitialDelay:  m.opts.Config.Retry.InitialDelay,
		MaxDelay:      m.opts.Config.Retry.MaxDelay,
		BackoffFactor: m.opts.Config.Retry.BackoffFactor,
		Jitter:        m.opts.Config.Retry.Jitter,
	})
	guard := resilience.NewGuard(breaker, retry, func(o *resilience.GuardOptions) {
		o.Logger = m.opts.Logger
	})

	w := agent.NewWorker(name, category, m.leader.Name(), m.queue, m.registry, mdl, func(o *agent.WorkerOptions) {
		o.Guard = guard
		o.Logger = m.opts.Logger
	})

	m.mu.Lock()
	m.workers = append(m.workers, w)
	m.mu.Unlock()
	m.leader.AssignWorker(category, name)

	return w
}

// Leader exposes the mesh's leader for direct task control.
func (m *TaskMesh) Leader() *agent.Leader { return m.leader }

// Queue exposes the shared message queue.
func (m *TaskMesh) Queue() *queue.Queue { return m.queue }

// Registry exposes the shared task registry.
func (m *TaskMesh) Registry() *registry.Registry { return m.registry }

// Start launches all registered workers. They run until Stop is called or
// the context is cancelled.
func (m *TaskMesh) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("mesh is already started")
	}
	if len(m.workers) == 0 {
		return fmt.Errorf("no workers registered")
	}

	derived, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w *agent.Worker) {
			defer m.wg.Done()
			if err := w.Run(derived); err != nil {
				m.opts.Logger.Error("worker stopped with error", "agent_id", w.Name(), "error", err)
			}
		}(w)
	}

	return nil
}

// Stop shuts down all workers and waits for them to drain.
func (m *TaskMesh) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	workers := m.workers
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	for _, w := range workers {
		if w.Running() {
			_ = w.Stop()
		}
	}
	m.wg.Wait()
}

// Process runs one full dispatch round for a session and returns the
// per-category recommendations, substituting defaults for failed categories.
func (m *TaskMesh) Process(ctx context.Context, sessionID string, profile core.Profile) (map[string]core.Recommendation, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}
	return m.leader.Process(ctx, sessionID, profile)
}

// CompactInstruction exposes the deterministic instruction transform, mainly
// useful for inspecting what a worker will be asked.
func CompactInstruction(profile core.Profile, category, instruction, context string, maxTokens int) string {
	return protocol.Compact(profile, protocol.TaskBrief{Category: category, Instruction: instruction}, context, maxTokens)
}
