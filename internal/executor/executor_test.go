package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flowdag/internal/coordinator"
	"flowdag/internal/coordinator/memcoord"
	"flowdag/internal/model"
	"flowdag/internal/queue"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeExecutor) Execute(ctx context.Context, task model.ExecutableTask) (model.TaskExecutionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return model.TaskExecutionResult{}, errors.New("boom")
	}
	return model.TaskExecutionResult{Status: model.StatusSuccess}, nil
}

func newTestPool(t *testing.T, exec TaskExecutor) (*Pool, coordinator.Client) {
	t.Helper()
	coord := memcoord.New()
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard}
	q := queue.New(coord, "/flowdag", taskType, nil, nil)
	p := New(coord, q, taskType, exec, nil, Config{InstanceName: "test-instance"})
	return p, coord
}

func TestPool_SuccessPersistsResultAndStartedMarker(t *testing.T) {
	exec := &fakeExecutor{}
	p, coord := newTestPool(t, exec)

	runId := model.NewRunId()
	taskId := model.NewTaskId()
	task := model.ExecutableTask{RunId: runId, TaskId: taskId, IsExecutable: true}

	if err := p.q.Enqueue(context.Background(), task, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go p.Run(ctx, 1)

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := coord.Get(ctx, p.completedPath(runId, taskId)); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := coord.Get(context.Background(), p.completedPath(runId, taskId)); err != nil {
		t.Fatalf("expected completion record, got error: %v", err)
	}
	if _, err := coord.Get(context.Background(), p.startedPath(runId, taskId)); err != nil {
		t.Fatalf("expected started marker, got error: %v", err)
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.calls != 1 {
		t.Fatalf("got %d executor calls, want 1", exec.calls)
	}
}

func TestPool_ShortCircuitsOnExistingCompletion(t *testing.T) {
	exec := &fakeExecutor{}
	p, coord := newTestPool(t, exec)

	runId := model.NewRunId()
	taskId := model.NewTaskId()
	task := model.ExecutableTask{RunId: runId, TaskId: taskId, IsExecutable: true}

	if err := coord.Create(context.Background(), p.completedPath(runId, taskId), []byte(`{"status":"SUCCESS"}`)); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	if err := p.handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.calls != 0 {
		t.Fatalf("got %d executor calls, want 0 (should short-circuit)", exec.calls)
	}
}

func TestPool_RunClosedDropsTask(t *testing.T) {
	exec := &fakeExecutor{}
	coord := memcoord.New()
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard}
	q := queue.New(coord, "/flowdag", taskType, nil, nil)
	closedGate := lifecycleGateFunc(func(ctx context.Context, runId model.RunId) (bool, error) {
		return false, nil
	})
	p := New(coord, q, taskType, exec, closedGate, Config{InstanceName: "test-instance"})

	task := model.ExecutableTask{RunId: model.NewRunId(), TaskId: model.NewTaskId(), IsExecutable: true}
	// A closed run must leave the entry for re-dispense rather than
	// silently succeeding, so handle should report a non-poison error.
	if err := p.handle(context.Background(), task); err == nil {
		t.Fatal("expected an error so the queue entry is left for retry, got nil")
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.calls != 0 {
		t.Fatalf("got %d executor calls, want 0 for a closed run", exec.calls)
	}
}

type lifecycleGateFunc func(ctx context.Context, runId model.RunId) (bool, error)

func (f lifecycleGateFunc) IsOpen(ctx context.Context, runId model.RunId) (bool, error) {
	return f(ctx, runId)
}
