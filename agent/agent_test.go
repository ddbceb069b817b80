package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/hupe1980/taskmesh/resilience"
)

var categories = []string{"head", "top", "bottom", "shoes"}

func TestBaseAgent_StartStop(t *testing.T) {
	b := NewBaseAgent("leader")
	assert.Equal(t, "leader", b.Name())
	assert.False(t, b.Running())

	derived, err := b.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Running())

	_, err = b.Start(context.Background())
	assert.Error(t, err, "double start must fail")

	require.NoError(t, b.Stop())
	assert.False(t, b.Running())
	select {
	case <-derived.Done():
	default:
		t.Fatal("stop must cancel the derived context")
	}

	assert.Error(t, b.Stop(), "double stop must fail")
}

// startWorker runs a worker with fast polling until the test ends.
func startWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newTestWorker(t *testing.T, q *queue.Queue, reg *registry.Registry, category string, m model.Model) *Worker {
	t.Helper()
	retry := resilience.NewRetryHandler(resilience.Policy{MaxRetries: 3})
	breaker := resilience.NewCircuitBreaker()
	guard := resilience.NewGuard(breaker, retry, func(o *resilience.GuardOptions) {
		o.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	})
	return NewWorker(category+"_worker", category, "leader", q, reg, m, func(o *WorkerOptions) {
		o.Guard = guard
		o.PollInterval = 10 * time.Millisecond
	})
}

func TestProcess_AllWorkersSucceed(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg, func(o *LeaderOptions) {
		o.CollectTimeout = 5 * time.Second
	})
	require.NoError(t, err)

	for _, category := range categories {
		m := model.NewMockModel(category + "_model")
		m.AddResponse(category, testutil.ModelJSON(category))
		w := newTestWorker(t, q, reg, category, m)
		leader.AssignWorker(category, w.Name())
		startWorker(t, w)
	}

	results, err := leader.Process(context.Background(), "sess-1", testutil.Profile())
	require.NoError(t, err)
	require.Len(t, results, 4)

	for _, category := range categories {
		rec, ok := results[category]
		require.True(t, ok, "missing category %s", category)
		assert.Equal(t, []string{"wool " + category}, rec.Items)
		assert.Equal(t, category, rec.Category)
	}

	for _, task := range reg.SessionTasks("sess-1") {
		assert.Equal(t, core.TaskCompleted, task.Status, "task %s", task.TaskID)
	}
	for _, category := range categories {
		assert.Empty(t, leader.DLQ(category+"_worker"))
	}
}

func TestCollectResults_DeadlineFailsSilentWorker(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg)
	require.NoError(t, err)

	for _, category := range []string{"head", "top", "bottom"} {
		m := model.NewMockModel(category + "_model")
		m.AddResponse(category, testutil.ModelJSON(category))
		w := newTestWorker(t, q, reg, category, m)
		leader.AssignWorker(category, w.Name())
		startWorker(t, w)
	}

	// shoes is routed but nothing consumes its inbox
	leader.AssignWorker("shoes", "shoes_worker")

	leader.RegisterTasks("sess-1", categories)
	require.NoError(t, leader.Dispatch(context.Background(), "sess-1", testutil.Profile()))

	results, err := leader.CollectResults(context.Background(), "sess-1", time.Second)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NotContains(t, results, "shoes")

	for _, task := range reg.SessionTasks("sess-1") {
		if task.Category == "shoes" {
			assert.Equal(t, core.TaskFailed, task.Status)
		} else {
			assert.Equal(t, core.TaskCompleted, task.Status, "category %s", task.Category)
		}
	}

	entries := leader.DLQ("shoes_worker")
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].OriginalEnvelope)
	assert.Contains(t, entries[0].ErrorReason, "deadline")
}

func TestProcess_ModelOutageYieldsSubstitute(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg, func(o *LeaderOptions) {
		o.CollectTimeout = 5 * time.Second
	})
	require.NoError(t, err)

	m := model.NewMockModel("shoes_model")
	m.FailNext(
		core.NewError(core.KindUpstream, "model unavailable"),
		core.NewError(core.KindUpstream, "model unavailable"),
		core.NewError(core.KindUpstream, "model unavailable"),
		core.NewError(core.KindUpstream, "model unavailable"),
	)
	w := newTestWorker(t, q, reg, "shoes", m)
	leader.AssignWorker("shoes", w.Name())
	startWorker(t, w)

	results, err := leader.Process(context.Background(), "sess-1", testutil.Profile())
	require.NoError(t, err)
	require.Contains(t, results, "shoes")

	// retries exhausted, the guard fallback answers instead of the model
	assert.Equal(t, core.SubstituteRecommendation("shoes").Items, results["shoes"].Items)
	assert.Equal(t, 4, m.Calls(), "initial attempt plus three retries")

	tasks := reg.SessionTasks("sess-1")
	require.Len(t, tasks, 1)
	assert.Equal(t, core.TaskCompleted, tasks[0].Status)
}

func TestCollectResults_UnfixableResultDeadLetters(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg)
	require.NoError(t, err)
	leader.AssignWorker("top", "bad_worker")

	ids := leader.RegisterTasks("sess-1", []string{"top"})
	require.Len(t, ids, 1)
	require.True(t, reg.Claim("bad_worker", ids[0]))

	// colors alone cannot be repaired into a recommendation with items
	env, err := protocol.NewResult("bad_worker", "leader", ids[0], "sess-1", map[string]any{
		"result": map[string]any{"colors": []any{"red"}},
		"status": "success",
	})
	require.NoError(t, err)
	require.NoError(t, q.Send("leader", env))

	results, err := leader.CollectResults(context.Background(), "sess-1", time.Second)
	require.NoError(t, err)
	assert.Empty(t, results)

	status, ok := reg.Status(ids[0])
	require.True(t, ok)
	assert.Equal(t, core.TaskFailed, status)

	entries := leader.DLQ("bad_worker")
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].OriginalEnvelope)
	assert.Equal(t, env.MessageID, entries[0].OriginalEnvelope.MessageID)
}

func TestCollectResults_AutoFixesRepairablePayload(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg)
	require.NoError(t, err)
	leader.AssignWorker("top", "sloppy_worker")

	ids := leader.RegisterTasks("sess-1", []string{"top"})
	require.True(t, reg.Claim("sloppy_worker", ids[0]))

	env, err := protocol.NewResult("sloppy_worker", "leader", ids[0], "sess-1", map[string]any{
		"result": map[string]any{
			"items": "linen shirt", // scalar instead of a list
		},
		"status": "success",
	})
	require.NoError(t, err)
	require.NoError(t, q.Send("leader", env))

	results, err := leader.CollectResults(context.Background(), "sess-1", time.Second)
	require.NoError(t, err)
	require.Contains(t, results, "top")
	assert.Equal(t, []string{"linen shirt"}, results["top"].Items)

	status, _ := reg.Status(ids[0])
	assert.Equal(t, core.TaskCompleted, status)
}

func TestDispatch_UnroutedCategoryKeepsTaskPending(t *testing.T) {
	q := queue.New()
	reg := registry.New()
	leader, err := NewLeader("leader", q, reg)
	require.NoError(t, err)

	ids := leader.RegisterTasks("sess-1", []string{"hat"})
	err = leader.Dispatch(context.Background(), "sess-1", testutil.Profile())
	require.Error(t, err)
	assert.Equal(t, core.KindAgentNotFound, core.KindOf(err))

	status, _ := reg.Status(ids[0])
	assert.Equal(t, core.TaskPending, status)
}
