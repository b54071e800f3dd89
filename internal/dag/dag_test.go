package dag

import (
	"testing"

	"flowdag/internal/model"
)

func leaf(name string) *Task {
	return &Task{
		Id:   model.NewTaskId(),
		Type: model.TaskType{Name: name, Version: "v1", Executable: true},
	}
}

func TestBuild_LinearChain(t *testing.T) {
	c := leaf("C")
	b := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "B", Executable: true}, Children: []*Task{c}}
	a := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "A", Executable: true}, Children: []*Task{b}}

	runId := model.NewRunId()
	tasks, edges, err := Build(runId, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	for _, e := range edges {
		if _, ok := tasks[e.Parent]; !ok {
			t.Errorf("edge parent %s missing from task map", e.Parent)
		}
		if _, ok := tasks[e.Child]; !ok {
			t.Errorf("edge child %s missing from task map", e.Child)
		}
	}
}

func TestBuild_Diamond(t *testing.T) {
	d := leaf("D")
	b := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "B", Executable: true}, Children: []*Task{d}}
	c := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "C", Executable: true}, Children: []*Task{d}}
	a := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "A", Executable: true}, Children: []*Task{b, c}}

	tasks, edges, err := Build(model.NewRunId(), a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("got %d tasks, want 4 (diamond should not double-count D)", len(tasks))
	}
	if len(edges) != 4 {
		t.Fatalf("got %d edges, want 4", len(edges))
	}
}

func TestBuild_NonExecutableStructuralNode(t *testing.T) {
	leafTask := leaf("work")
	group := &Task{Id: model.NewTaskId(), Type: model.NullType, Children: []*Task{leafTask}}

	tasks, _, err := Build(model.NewRunId(), group)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	groupTask := tasks[group.Id]
	if groupTask.IsExecutable {
		t.Errorf("structural node should not be executable")
	}
	if !groupTask.Type.IsNull() {
		t.Errorf("structural node should carry the null type sentinel")
	}
}

func TestBuild_DuplicateTaskIdRejected(t *testing.T) {
	id := model.NewTaskId()
	child1 := &Task{Id: id, Type: model.TaskType{Name: "x", Executable: true}}
	child2 := &Task{Id: id, Type: model.TaskType{Name: "y", Executable: true}}
	root := &Task{Id: model.NewTaskId(), Type: model.TaskType{Name: "root", Executable: true}, Children: []*Task{child1, child2}}

	_, _, err := Build(model.NewRunId(), root)
	if err == nil {
		t.Fatal("expected error for duplicate task id, got nil")
	}
}
