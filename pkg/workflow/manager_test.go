package workflow

import (
	"context"
	"testing"
	"time"

	"flowdag/internal/coordinator/memcoord"
	"flowdag/internal/model"
)

type alwaysSucceed struct{}

func (alwaysSucceed) Execute(ctx context.Context, task model.ExecutableTask) (model.TaskExecutionResult, error) {
	return model.TaskExecutionResult{Status: model.StatusSuccess}, nil
}

func newTestManager(t *testing.T, taskType model.TaskType) *Manager {
	t.Helper()
	coord := memcoord.New()
	m := New(coord, Config{
		InstanceName: "test",
		Registrations: []Registration{
			{Type: taskType, Executor: alwaysSucceed{}, Concurrency: 2},
		},
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_LinearChainCompletes(t *testing.T) {
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard, Executable: true}
	m := newTestManager(t, taskType)

	c := &Task{Id: model.NewTaskId(), Type: taskType}
	b := &Task{Id: model.NewTaskId(), Type: taskType, Children: []*Task{c}}
	a := &Task{Id: model.NewTaskId(), Type: taskType, Children: []*Task{b}}

	runId, err := m.SubmitTask(context.Background(), a)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	waitUntil(t, 5*time.Second, func() bool {
		info, err := m.GetRunInfo(context.Background(), runId)
		return err == nil && info != nil && info.CompletionTimeUtc != nil
	})

	result, err := m.GetTaskExecutionResult(context.Background(), runId, c.Id)
	if err != nil {
		t.Fatalf("GetTaskExecutionResult: %v", err)
	}
	if result == nil || result.Status != model.StatusSuccess {
		t.Fatalf("got %+v, want a SUCCESS result", result)
	}
}

func TestManager_CancelRunStopsNewScheduling(t *testing.T) {
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard, Executable: true}
	m := newTestManager(t, taskType)

	b := &Task{Id: model.NewTaskId(), Type: taskType}
	a := &Task{Id: model.NewTaskId(), Type: taskType, Children: []*Task{b}}

	runId, err := m.SubmitTask(context.Background(), a)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	ok, err := m.CancelRun(context.Background(), runId)
	if err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	if !ok {
		t.Fatal("expected CancelRun to find the run")
	}

	waitUntil(t, 2*time.Second, func() bool {
		info, err := m.GetRunInfo(context.Background(), runId)
		return err == nil && info != nil && info.CompletionTimeUtc != nil
	})
}

func TestManager_SubTaskHasIndependentLifecycle(t *testing.T) {
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard, Executable: true}
	m := newTestManager(t, taskType)

	parent := &Task{Id: model.NewTaskId(), Type: taskType}
	parentRunId, err := m.SubmitTask(context.Background(), parent)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	child := &Task{Id: model.NewTaskId(), Type: taskType}
	childRunId, err := m.SubmitSubTask(context.Background(), parentRunId, child)
	if err != nil {
		t.Fatalf("SubmitSubTask: %v", err)
	}

	info, err := m.GetRunInfo(context.Background(), childRunId)
	if err != nil || info == nil {
		t.Fatalf("GetRunInfo: %v, %v", info, err)
	}
	if info.ParentRunId == nil || *info.ParentRunId != parentRunId {
		t.Fatalf("got ParentRunId %v, want %v", info.ParentRunId, parentRunId)
	}
}

func TestManager_CleanRemovesRunState(t *testing.T) {
	taskType := model.TaskType{Name: "job", Version: "v1", Mode: model.ModeStandard, Executable: true}
	m := newTestManager(t, taskType)

	a := &Task{Id: model.NewTaskId(), Type: taskType}
	runId, err := m.SubmitTask(context.Background(), a)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	waitUntil(t, 5*time.Second, func() bool {
		info, err := m.GetRunInfo(context.Background(), runId)
		return err == nil && info != nil && info.CompletionTimeUtc != nil
	})

	ok, err := m.Clean(context.Background(), runId)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if !ok {
		t.Fatal("expected Clean to find the run")
	}

	info, err := m.GetRunInfo(context.Background(), runId)
	if err != nil {
		t.Fatalf("GetRunInfo after clean: %v", err)
	}
	if info != nil {
		t.Fatalf("expected run to be absent after clean, got %+v", info)
	}
}
