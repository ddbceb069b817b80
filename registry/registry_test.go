package registry

import (
	"sync"
	"testing"

	"github.com/hupe1980/taskmesh/core"
)

func TestRegister_StartsPending(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "top", func(o *RegisterOptions) {
		o.Title = "Recommend top wear"
		o.MaxRetries = 5
	})

	task, ok := r.Get(id)
	if !ok {
		t.Fatal("registered task not found")
	}
	if task.Status != core.TaskPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.Title != "Recommend top wear" || task.MaxRetries != 5 {
		t.Fatalf("options not applied: %+v", task)
	}
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "top")

	const claimants = 16
	var wg sync.WaitGroup
	wins := make(chan string, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		agent := string(rune('a' + i))
		go func() {
			defer wg.Done()
			if r.Claim(agent, id) {
				wins <- agent
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	task, _ := r.Get(id)
	if task.Status != core.TaskInProgress || task.OwnerAgentID != winners[0] {
		t.Fatalf("winner not recorded: %+v", task)
	}
}

func TestClaim_UnknownTask(t *testing.T) {
	r := New()
	if r.Claim("worker", "no-such-task") {
		t.Fatal("claim of unknown task must fail")
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "top")

	// terminal transition from PENDING is illegal
	if r.UpdateStatus(id, core.TaskCompleted, nil, "") {
		t.Fatal("pending task must not complete without a claim")
	}

	if !r.Claim("worker", id) {
		t.Fatal("claim failed")
	}
	// non-terminal and cancelled targets are rejected outright
	if r.UpdateStatus(id, core.TaskInProgress, nil, "") {
		t.Fatal("non-terminal target must be rejected")
	}
	if r.UpdateStatus(id, core.TaskCancelled, nil, "") {
		t.Fatal("cancellation must go through Cancel")
	}

	result := map[string]any{"items": []any{"linen shirt"}}
	if !r.UpdateStatus(id, core.TaskCompleted, result, "") {
		t.Fatal("in-progress task must complete")
	}
	task, _ := r.Get(id)
	if task.Status != core.TaskCompleted || task.CompletedAt == nil {
		t.Fatalf("completion not recorded: %+v", task)
	}
	if task.Result["items"] == nil {
		t.Fatal("result not attached")
	}

	// late duplicate is ignored, history stays intact
	if r.UpdateStatus(id, core.TaskFailed, nil, "late failure") {
		t.Fatal("terminal task must not transition again")
	}
	if r.Claim("latecomer", id) {
		t.Fatal("completed task must not be claimable")
	}
	task, _ = r.Get(id)
	if task.Status != core.TaskCompleted || task.ErrorMessage != "" {
		t.Fatalf("terminal state corrupted: %+v", task)
	}
}

func TestUpdateStatus_FailureAttachesError(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "shoes")
	r.Claim("worker", id)

	if !r.UpdateStatus(id, core.TaskFailed, nil, "model unreachable") {
		t.Fatal("failure transition rejected")
	}
	task, _ := r.Get(id)
	if task.Status != core.TaskFailed || task.ErrorMessage != "model unreachable" {
		t.Fatalf("failure not recorded: %+v", task)
	}
}

func TestCancel(t *testing.T) {
	r := New()
	pending := r.Register("sess-1", "top")
	claimed := r.Register("sess-1", "bottom")
	r.Claim("worker", claimed)

	if !r.Cancel(pending) {
		t.Fatal("pending task must be cancellable")
	}
	if !r.Cancel(claimed) {
		t.Fatal("in-progress task must be cancellable")
	}
	if r.Cancel(claimed) {
		t.Fatal("terminal task must not be cancellable")
	}
	if r.Claim("other", pending) {
		t.Fatal("cancelled task must not be claimable")
	}
}

func TestRetryFailed(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "head", func(o *RegisterOptions) { o.MaxRetries = 2 })

	for attempt := 0; attempt < 2; attempt++ {
		if !r.Claim("worker", id) {
			t.Fatalf("attempt %d: claim failed", attempt)
		}
		if !r.UpdateStatus(id, core.TaskFailed, nil, "boom") {
			t.Fatalf("attempt %d: fail transition rejected", attempt)
		}
		if !r.RetryFailed(id) {
			t.Fatalf("attempt %d: retry budget should remain", attempt)
		}
		task, _ := r.Get(id)
		if task.Status != core.TaskPending || task.OwnerAgentID != "" || task.ErrorMessage != "" {
			t.Fatalf("attempt %d: requeue did not reset task: %+v", attempt, task)
		}
	}

	r.Claim("worker", id)
	r.UpdateStatus(id, core.TaskFailed, nil, "boom")
	if r.RetryFailed(id) {
		t.Fatal("retry budget of 2 must be exhausted")
	}
	if task, _ := r.Get(id); task.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", task.RetryCount)
	}
}

func TestSessionAndPendingQueries(t *testing.T) {
	r := New()
	a := r.Register("sess-1", "top")
	r.Register("sess-1", "shoes")
	r.Register("sess-2", "top")

	if got := len(r.SessionTasks("sess-1")); got != 2 {
		t.Fatalf("expected 2 session tasks, got %d", got)
	}
	if got := len(r.PendingTasks("")); got != 3 {
		t.Fatalf("expected 3 pending tasks, got %d", got)
	}
	if got := len(r.PendingTasks("top")); got != 2 {
		t.Fatalf("expected 2 pending top tasks, got %d", got)
	}

	r.Claim("worker", a)
	if got := len(r.PendingTasks("top")); got != 1 {
		t.Fatalf("claimed task must leave the pending set, got %d", got)
	}
}

func TestGet_ReturnsClone(t *testing.T) {
	r := New()
	id := r.Register("sess-1", "top")

	task, _ := r.Get(id)
	task.Status = core.TaskCompleted

	fresh, _ := r.Get(id)
	if fresh.Status != core.TaskPending {
		t.Fatal("mutating a returned task must not affect the registry")
	}
}
