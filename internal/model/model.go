// Package model defines the domain records that flow through the
// coordinator: tasks, runs, and their execution state.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunId identifies one execution of a submitted DAG. Generated with
// uuid.NewV7 so it sorts roughly by creation time.
type RunId = uuid.UUID

// TaskId identifies a node within a run's DAG. Unique within a run, not
// across runs.
type TaskId = uuid.UUID

// NewRunId returns a fresh time-ordered RunId.
func NewRunId() RunId { return uuid.Must(uuid.NewV7()) }

// NewTaskId returns a fresh time-ordered TaskId.
func NewTaskId() TaskId { return uuid.Must(uuid.NewV7()) }

// QueueMode determines how a TaskType's queue dispenses entries.
type QueueMode string

const (
	ModeStandard QueueMode = "STANDARD"
	ModePriority QueueMode = "PRIORITY"
	ModeDelay    QueueMode = "DELAY"
)

// TaskType names an executable task kind. The zero value (empty Name and
// Version, Executable false) is the "null type" sentinel used for
// structural/grouping tasks — see NullType.
type TaskType struct {
	Name         string
	Version      string
	IsIdempotent bool
	Mode         QueueMode
	Executable   bool
}

// NullType is the sentinel TaskType for non-executable structural nodes.
var NullType = TaskType{}

// IsNull reports whether t is the null/structural sentinel.
func (t TaskType) IsNull() bool {
	return t.Name == "" && t.Version == "" && !t.Executable
}

// SpecialMetaKey is the reserved metadata key carrying the opaque
// priority-or-delay integer consumed by the queue layer and stripped
// before the user task executor sees its metadata.
const SpecialMetaKey = "__flowdag_special_meta__"

// ExecutableTask is a single node of a flattened DAG.
type ExecutableTask struct {
	RunId        RunId
	TaskId       TaskId
	Type         TaskType
	Metadata     map[string]string
	IsExecutable bool
}

// DependencyEdge records that Child depends on Parent having completed.
type DependencyEdge struct {
	Parent TaskId
	Child  TaskId
}

// RunnableTask is the durable, coordinator-stored record of one run.
type RunnableTask struct {
	RunId             RunId
	ParentRunId       *RunId
	Tasks             map[TaskId]ExecutableTask
	Edges             []DependencyEdge
	StartTimeUtc      time.Time
	CompletionTimeUtc *time.Time
}

// Children returns the TaskIds that depend directly on parent.
func (r *RunnableTask) Children(parent TaskId) []TaskId {
	var out []TaskId
	for _, e := range r.Edges {
		if e.Parent == parent {
			out = append(out, e.Child)
		}
	}
	return out
}

// Parents returns the TaskIds that child depends on directly.
func (r *RunnableTask) Parents(child TaskId) []TaskId {
	var out []TaskId
	for _, e := range r.Edges {
		if e.Child == child {
			out = append(out, e.Parent)
		}
	}
	return out
}

// StartedTask records that a worker instance began executing a task.
type StartedTask struct {
	InstanceName string
	StartDateUtc time.Time
}

// ExecutionStatus is the terminal outcome of a task invocation.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
)

// TaskExecutionResult is the atomic completion signal for (RunId, TaskId).
// Its existence at the coordinator is the only thing that means "done".
type TaskExecutionResult struct {
	Status          ExecutionStatus
	Message         string
	ResultMetadata  map[string]string
	CompletionTimeUtc time.Time
}

// RunInfo is the externally-visible projection of a RunnableTask.
type RunInfo struct {
	RunId             RunId
	ParentRunId       *RunId
	StartTimeUtc      time.Time
	CompletionTimeUtc *time.Time
}

// TaskDetails is the static, per-task view of a run's DAG.
type TaskDetails struct {
	TaskId       TaskId
	Type         TaskType
	Metadata     map[string]string
	IsExecutable bool
}

// TaskRunState is the dynamic lifecycle state of one task in a run.
type TaskRunState string

const (
	TaskNotStarted TaskRunState = "NOT_STARTED"
	TaskStarted    TaskRunState = "STARTED"
	TaskCompleted  TaskRunState = "COMPLETED"
)

// TaskInfo is the dynamic started/completed view of one task; the static
// fields are in TaskDetails. A task is "completed" only when both a StartedTask and a
// TaskExecutionResult record exist; "started" if only the former exists;
// else "not started".
type TaskInfo struct {
	TaskId  TaskId
	State   TaskRunState
	Started *StartedTask
	Result  *TaskExecutionResult
}
