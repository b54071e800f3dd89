package scheduler

import (
	"context"
	"testing"
	"time"

	"flowdag/internal/coordinator/memcoord"
	"flowdag/internal/dag"
	"flowdag/internal/model"
)

type recordingQueueFactory struct {
	enqueued []model.TaskId
}

func (f *recordingQueueFactory) Enqueue(ctx context.Context, taskType model.TaskType, task model.ExecutableTask, specialMeta *int64) error {
	f.enqueued = append(f.enqueued, task.TaskId)
	return nil
}

func TestReadyTasks_RootOnlyInitially(t *testing.T) {
	coord := memcoord.New()
	factory := &recordingQueueFactory{}
	l := New(coord, factory, Config{})

	c := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "c", Executable: true}}
	b := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "b", Executable: true}, Children: []*dag.Task{c}}
	a := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "a", Executable: true}, Children: []*dag.Task{b}}

	runId := model.NewRunId()
	tasks, edges, err := dag.Build(runId, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	run := &model.RunnableTask{RunId: runId, Tasks: tasks, Edges: edges, StartTimeUtc: time.Now().UTC()}

	ready, err := l.readyTasks(context.Background(), run)
	if err != nil {
		t.Fatalf("readyTasks: %v", err)
	}
	if len(ready) != 1 || ready[0] != a.Id {
		t.Fatalf("got %v, want only root %v ready", ready, a.Id)
	}
}

func TestReadyTasks_ChildReadyAfterParentCompletes(t *testing.T) {
	coord := memcoord.New()
	factory := &recordingQueueFactory{}
	l := New(coord, factory, Config{})

	b := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "b", Executable: true}}
	a := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "a", Executable: true}, Children: []*dag.Task{b}}

	runId := model.NewRunId()
	tasks, edges, err := dag.Build(runId, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	run := &model.RunnableTask{RunId: runId, Tasks: tasks, Edges: edges, StartTimeUtc: time.Now().UTC()}

	if err := coord.Create(context.Background(), l.completedPath(runId, a.Id), []byte("{}")); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	ready, err := l.readyTasks(context.Background(), run)
	if err != nil {
		t.Fatalf("readyTasks: %v", err)
	}
	if len(ready) != 1 || ready[0] != b.Id {
		t.Fatalf("got %v, want only %v ready", ready, b.Id)
	}
}

func TestReadyTasks_NonExecutableNodeIsTransparent(t *testing.T) {
	coord := memcoord.New()
	factory := &recordingQueueFactory{}
	l := New(coord, factory, Config{})

	leaf := &dag.Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "leaf", Executable: true}}
	group := &dag.Task{Id: model.NewTaskId(), Type: model.NullType, Children: []*dag.Task{leaf}}

	runId := model.NewRunId()
	tasks, edges, err := dag.Build(runId, group)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	run := &model.RunnableTask{RunId: runId, Tasks: tasks, Edges: edges, StartTimeUtc: time.Now().UTC()}

	ready, err := l.readyTasks(context.Background(), run)
	if err != nil {
		t.Fatalf("readyTasks: %v", err)
	}
	if len(ready) != 1 || ready[0] != leaf.Id {
		t.Fatalf("got %v, want the leaf under the structural node ready immediately", ready)
	}
}

func TestEnqueueIfNeeded_OnlyEnqueuesOnce(t *testing.T) {
	coord := memcoord.New()
	factory := &recordingQueueFactory{}
	l := New(coord, factory, Config{})

	runId := model.NewRunId()
	taskId := model.NewTaskId()
	task := model.ExecutableTask{RunId: runId, TaskId: taskId, IsExecutable: true}
	run := &model.RunnableTask{RunId: runId, Tasks: map[model.TaskId]model.ExecutableTask{taskId: task}, StartTimeUtc: time.Now().UTC()}

	for i := 0; i < 3; i++ {
		if err := l.enqueueIfNeeded(context.Background(), run, taskId); err != nil {
			t.Fatalf("enqueueIfNeeded (iteration %d): %v", i, err)
		}
	}

	if len(factory.enqueued) != 1 {
		t.Fatalf("got %d enqueue calls, want exactly 1 across repeated advances", len(factory.enqueued))
	}
}
