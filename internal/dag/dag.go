// Package dag flattens a user-supplied Task tree into the
// map-plus-adjacency-list representation the scheduler operates on.
package dag

import (
	"fmt"

	"flowdag/internal/model"
)

// Task is the user-supplied node shape before flattening. A Task whose
// Type is the zero value is treated as non-executable (structural).
type Task struct {
	Id       model.TaskId
	Type     model.TaskType
	Metadata map[string]string
	Children []*Task
}

// Build flattens root into a task map and dependency edge list. Every
// node is visited exactly once; a TaskId repeated within the submission
// is rejected.
func Build(runId model.RunId, root *Task) (map[model.TaskId]model.ExecutableTask, []model.DependencyEdge, error) {
	tasks := make(map[model.TaskId]model.ExecutableTask)
	var edges []model.DependencyEdge

	var visit func(t *Task) error
	visit = func(t *Task) error {
		if _, dup := tasks[t.Id]; dup {
			return fmt.Errorf("dag: duplicate task id %s", t.Id)
		}

		typ := t.Type
		executable := !typ.IsNull()
		tasks[t.Id] = model.ExecutableTask{
			RunId:        runId,
			TaskId:       t.Id,
			Type:         typ,
			Metadata:     t.Metadata,
			IsExecutable: executable,
		}

		for _, child := range t.Children {
			edges = append(edges, model.DependencyEdge{Parent: t.Id, Child: child.Id})
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, nil, err
	}
	return tasks, edges, nil
}
