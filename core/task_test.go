package core

import "testing"

func TestTaskStatus_Terminal(t *testing.T) {
	terminal := []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []TaskStatus{TaskPending, TaskInProgress}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestNewTask_Defaults(t *testing.T) {
	task := NewTask("sess-1", "top")
	if task.TaskID == "" {
		t.Fatal("expected generated task id")
	}
	if task.Status != TaskPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", task.MaxRetries)
	}
}

func TestTask_CloneIsolation(t *testing.T) {
	task := NewTask("sess-1", "top")
	task.Result = map[string]any{"items": []string{"shirt"}}

	clone := task.Clone()
	clone.Result["items"] = []string{"changed"}
	clone.Status = TaskCompleted

	if task.Status != TaskPending {
		t.Fatalf("clone mutated original status: %s", task.Status)
	}
	if got := task.Result["items"].([]string)[0]; got != "shirt" {
		t.Fatalf("clone mutated original result: %s", got)
	}
}
