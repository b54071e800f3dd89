// Package executor runs a consumer pool over a task type's queue,
// invoking the registered TaskExecutor for each dispensed task and
// persisting its terminal result.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowdag/internal/codec"
	"flowdag/internal/coordinator"
	"flowdag/internal/model"
	"flowdag/internal/observability"
	"flowdag/internal/queue"
)

// TaskExecutor runs a single task to completion. Implementations are
// supplied by the application registering the TaskType; flowdag invokes
// it synchronously within one queue consumer slot.
type TaskExecutor interface {
	Execute(ctx context.Context, task model.ExecutableTask) (model.TaskExecutionResult, error)
}

// LifecycleGate reports whether the owning run is still open for new
// task execution. The pkg/workflow manager implements this against its
// LATENT/STARTED/CLOSED state.
type LifecycleGate interface {
	IsOpen(ctx context.Context, runId model.RunId) (bool, error)
}

// Pool runs TaskExecutor against one TaskType's queue.
type Pool struct {
	coord        coordinator.Client
	basePath     string
	instanceName string
	taskType     model.TaskType
	q            *queue.Queue
	exec         TaskExecutor
	gate         LifecycleGate
	logger       *slog.Logger
	instruments  *observability.Instruments
}

// Config configures a Pool.
type Config struct {
	BasePath     string
	InstanceName string
	Logger       *slog.Logger
	Instruments  *observability.Instruments
}

// New builds a consumer pool for taskType backed by q.
func New(coord coordinator.Client, q *queue.Queue, taskType model.TaskType, exec TaskExecutor, gate LifecycleGate, cfg Config) *Pool {
	if cfg.BasePath == "" {
		cfg.BasePath = "/flowdag"
	}
	if cfg.InstanceName == "" {
		cfg.InstanceName = "unnamed-instance"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		coord:        coord,
		basePath:     cfg.BasePath,
		instanceName: cfg.InstanceName,
		taskType:     taskType,
		q:            q,
		exec:         exec,
		gate:         gate,
		logger:       cfg.Logger.With("component", "executor", "task_type", taskType.Name),
		instruments:  cfg.Instruments,
	}
}

func (p *Pool) startedPath(runId model.RunId, taskId model.TaskId) string {
	return fmt.Sprintf("%s/started/%s/%s", p.basePath, runId, taskId)
}

func (p *Pool) completedPath(runId model.RunId, taskId model.TaskId) string {
	return fmt.Sprintf("%s/completed/%s/%s", p.basePath, runId, taskId)
}

// Run blocks, consuming the queue with concurrency consumers, until ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	errCh := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			errCh <- p.q.Consume(ctx, p.handle)
		}()
	}
	for i := 0; i < concurrency; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return ctx.Err()
}

// handle implements the short-circuit/start/invoke/persist sequence.
// Any step through persisting the completion record can race another
// instance retrying the same task (after a crash mid-execution); an
// ErrAlreadyExists on the completion write is treated as success, since
// it means some instance already recorded a terminal outcome.
func (p *Pool) handle(ctx context.Context, task model.ExecutableTask) error {
	already, err := p.hasCompletion(ctx, task.RunId, task.TaskId)
	if err != nil {
		return err // infra failure, leave entry for retry
	}
	if already {
		return nil // already completed by another instance; remove entry
	}

	if p.gate != nil {
		open, err := p.gate.IsOpen(ctx, task.RunId)
		if err != nil {
			return err
		}
		if !open {
			p.logger.Info("run closed, leaving task for re-dispense", "run", task.RunId, "task", task.TaskId)
			return fmt.Errorf("executor: run %s is closed", task.RunId)
		}
	}

	started := model.StartedTask{InstanceName: p.instanceName, StartDateUtc: time.Now().UTC()}
	encoded, err := codec.EncodeStartedTask(&started)
	if err != nil {
		return err
	}
	if err := p.coord.Create(ctx, p.startedPath(task.RunId, task.TaskId), encoded); err != nil && err != coordinator.ErrAlreadyExists {
		return err
	}

	result, execErr := p.exec.Execute(ctx, task)
	if execErr != nil {
		result = model.TaskExecutionResult{
			Status:            model.StatusFailed,
			Message:           execErr.Error(),
			CompletionTimeUtc: time.Now().UTC(),
		}
	} else if result.CompletionTimeUtc.IsZero() {
		result.CompletionTimeUtc = time.Now().UTC()
	}

	resultBytes, err := codec.EncodeResult(&result)
	if err != nil {
		return err
	}
	if err := p.coord.Create(ctx, p.completedPath(task.RunId, task.TaskId), resultBytes); err != nil && err != coordinator.ErrAlreadyExists {
		return err // infra failure persisting the result, retry
	}
	p.instruments.RecordTaskResult(ctx, p.taskType.Name, result.Status == model.StatusSuccess)

	// A user TaskExecutor error is terminal for this attempt (already
	// recorded as StatusFailed above): the completion record exists
	// either way, so the entry is always removed from here. Whether the
	// overall DAG run should retry a failed task is a scheduler/task-
	// author policy decision, not the queue's.
	return nil
}

func (p *Pool) hasCompletion(ctx context.Context, runId model.RunId, taskId model.TaskId) (bool, error) {
	_, err := p.coord.Get(ctx, p.completedPath(runId, taskId))
	if err == coordinator.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
