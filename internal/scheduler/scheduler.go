// Package scheduler implements the leader-elected control loop that
// advances runs: computing ready tasks, enqueuing them exactly once, and
// marking runs complete.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"flowdag/internal/codec"
	"flowdag/internal/coordinator"
	"flowdag/internal/model"
	"flowdag/internal/observability"

	"github.com/google/uuid"
)

// QueueFactory resolves the durable queue for a TaskType. The manager
// facade supplies this, backed by queue.New for each TaskType.
type QueueFactory interface {
	Enqueue(ctx context.Context, taskType model.TaskType, task model.ExecutableTask, specialMeta *int64) error
}

// Leader runs the control loop that advances every run while it holds
// scheduler leadership.
type Leader struct {
	coord        coordinator.Client
	basePath     string
	queues       QueueFactory
	pollInterval time.Duration
	logger       *slog.Logger
	instruments  *observability.Instruments
}

// Config configures a Leader.
type Config struct {
	BasePath     string
	PollInterval time.Duration
	Logger       *slog.Logger
	Instruments  *observability.Instruments
}

// New constructs a Leader. queues resolves per-TaskType enqueue.
func New(coord coordinator.Client, queues QueueFactory, cfg Config) *Leader {
	if cfg.BasePath == "" {
		cfg.BasePath = "/flowdag"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Leader{
		coord:        coord,
		basePath:     cfg.BasePath,
		queues:       queues,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger.With("component", "scheduler"),
		instruments:  cfg.Instruments,
	}
}

func (l *Leader) runsPath() string      { return l.basePath + "/runs" }
func (l *Leader) runPath(id model.RunId) string {
	return fmt.Sprintf("%s/%s", l.runsPath(), id)
}
func (l *Leader) queuedMarkerPath(runId model.RunId, taskId model.TaskId) string {
	return fmt.Sprintf("%s/queued/%s/%s", l.basePath, runId, taskId)
}
func (l *Leader) completedPath(runId model.RunId, taskId model.TaskId) string {
	return fmt.Sprintf("%s/completed/%s/%s", l.basePath, runId, taskId)
}

// RunStandby campaigns for leadership and, once acquired, runs the
// control loop until the held leadership is lost or ctx is cancelled.
// Callers typically loop on RunStandby so a process keeps re-campaigning
// after an involuntary loss.
func (l *Leader) RunStandby(ctx context.Context, candidateID string) error {
	leadership, err := l.coord.Elect(ctx, l.basePath+"/election/scheduler", candidateID)
	if err != nil {
		return fmt.Errorf("scheduler: campaign: %w", err)
	}
	l.logger.Info("acquired scheduler leadership", "candidate", candidateID)
	defer leadership.Resign(context.Background())

	if err := l.EnqueueUnfinishedMarkers(ctx); err != nil {
		l.logger.Error("recovering unfinished queue markers failed", "error", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-leadership.Done():
			l.logger.Warn("scheduler leadership lost involuntarily")
			cancel()
		case <-loopCtx.Done():
		}
	}()

	return l.runControlLoop(loopCtx)
}

func (l *Leader) runControlLoop(ctx context.Context) error {
	runsWatch := l.coord.Watch(ctx, l.runsPath())
	completedWatch := l.coord.Watch(ctx, l.basePath+"/completed")

	for {
		if err := l.tick(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("scheduler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runsWatch:
		case <-completedWatch:
		case <-time.After(l.pollInterval):
		}
	}
}

// tick performs one scheduling pass: compute and enqueue newly-ready
// tasks across every open run, and close out any run whose executable
// tasks have all completed.
func (l *Leader) tick(ctx context.Context) error {
	l.instruments.RecordSchedulerTick(ctx)

	nodes, err := l.coord.Children(ctx, l.runsPath())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	for _, node := range nodes {
		if err := l.advanceRun(ctx, node); err != nil {
			l.logger.Error("advance run failed", "path", node.Path, "error", err)
		}
	}
	return nil
}

func (l *Leader) advanceRun(ctx context.Context, node coordinator.Node) error {
	run, err := codec.DecodeRunnableTask(node.Value)
	if err != nil {
		return fmt.Errorf("decode run %s: %w", node.Path, err)
	}

	if run.CompletionTimeUtc != nil {
		return nil // already complete; auto-cleaner handles cleanup
	}

	ready, err := l.readyTasks(ctx, run)
	if err != nil {
		return err
	}

	for _, taskId := range ready {
		if err := l.enqueueIfNeeded(ctx, run, taskId); err != nil {
			l.logger.Error("enqueue ready task failed", "run", run.RunId, "task", taskId, "error", err)
		}
	}

	complete, err := l.allExecutableTasksComplete(ctx, run)
	if err != nil {
		return err
	}
	if complete {
		return l.completeRun(ctx, run.RunId)
	}
	return nil
}

// readyTasks computes, in deterministic topological order (ties broken
// by TaskId), the executable tasks whose predecessors are all complete —
// where a non-executable predecessor is itself required to have all of
// its predecessors complete, recursively (a transparent pass-through).
func (l *Leader) readyTasks(ctx context.Context, run *model.RunnableTask) ([]model.TaskId, error) {
	completed := make(map[model.TaskId]bool)
	for taskId, task := range run.Tasks {
		if !task.IsExecutable {
			continue
		}
		ok, err := l.hasCompletionRecord(ctx, run.RunId, taskId)
		if err != nil {
			return nil, err
		}
		completed[taskId] = ok
	}

	var satisfied func(taskId model.TaskId, seen map[model.TaskId]bool) bool
	satisfied = func(taskId model.TaskId, seen map[model.TaskId]bool) bool {
		if seen[taskId] {
			return false // cycle guard; DAGs shouldn't have one
		}
		seen[taskId] = true
		task := run.Tasks[taskId]
		if task.IsExecutable {
			return completed[taskId]
		}
		for _, parent := range run.Parents(taskId) {
			if !satisfied(parent, seen) {
				return false
			}
		}
		return true
	}

	ids := make([]model.TaskId, 0, len(run.Tasks))
	for id := range run.Tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var ready []model.TaskId
	for _, taskId := range ids {
		task := run.Tasks[taskId]
		if !task.IsExecutable {
			continue
		}
		if completed[taskId] {
			continue
		}
		allParentsSatisfied := true
		for _, parent := range run.Parents(taskId) {
			if !satisfied(parent, map[model.TaskId]bool{}) {
				allParentsSatisfied = false
				break
			}
		}
		if allParentsSatisfied {
			ready = append(ready, taskId)
		}
	}
	return ready, nil
}

func (l *Leader) hasCompletionRecord(ctx context.Context, runId model.RunId, taskId model.TaskId) (bool, error) {
	_, err := l.coord.Get(ctx, l.completedPath(runId, taskId))
	if err == coordinator.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// enqueueIfNeeded writes the queued marker (if absent) then enqueues.
// Writing the marker first and enqueuing second means a crash between
// the two steps leaves a marker with no queue entry; the next
// leadership tenure's start-up sweep (EnqueueUnfinishedMarkers) detects
// exactly that and re-enqueues, which is safe because the executor
// short-circuits on an existing completion record.
func (l *Leader) enqueueIfNeeded(ctx context.Context, run *model.RunnableTask, taskId model.TaskId) error {
	markerPath := l.queuedMarkerPath(run.RunId, taskId)
	err := l.coord.Create(ctx, markerPath, nil)
	if err == coordinator.ErrAlreadyExists {
		return nil // already queued at least once
	}
	if err != nil {
		return fmt.Errorf("write queued marker: %w", err)
	}
	return l.enqueueTask(ctx, run, taskId)
}

func (l *Leader) enqueueTask(ctx context.Context, run *model.RunnableTask, taskId model.TaskId) error {
	task := run.Tasks[taskId]
	var specialMeta *int64
	if v, ok := parseSpecialMeta(task); ok {
		specialMeta = &v
	}
	return l.queues.Enqueue(ctx, task.Type, task, specialMeta)
}

func parseSpecialMeta(task model.ExecutableTask) (int64, bool) {
	v, ok := task.Metadata[model.SpecialMetaKey]
	if !ok {
		return 0, false
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// EnqueueUnfinishedMarkers re-enqueues every queued-but-not-completed
// task. Call this once at the start of a new leadership tenure: it is
// the restart-recovery half of the write-marker-then-enqueue sequence.
func (l *Leader) EnqueueUnfinishedMarkers(ctx context.Context) error {
	runNodes, err := l.coord.Children(ctx, l.runsPath())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	for _, runNode := range runNodes {
		run, err := codec.DecodeRunnableTask(runNode.Value)
		if err != nil {
			l.logger.Error("decode run during recovery sweep failed", "path", runNode.Path, "error", err)
			continue
		}
		if run.CompletionTimeUtc != nil {
			continue
		}
		markers, err := l.coord.Children(ctx, fmt.Sprintf("%s/queued/%s", l.basePath, run.RunId))
		if err != nil {
			continue
		}
		for _, marker := range markers {
			taskIdStr := marker.Path[len(marker.Path)-36:]
			taskId, err := parseTaskId(taskIdStr)
			if err != nil {
				continue
			}
			done, err := l.hasCompletionRecord(ctx, run.RunId, taskId)
			if err != nil || done {
				continue
			}
			if err := l.enqueueTask(ctx, run, taskId); err != nil {
				l.logger.Error("recovery re-enqueue failed", "run", run.RunId, "task", taskId, "error", err)
			}
		}
	}
	return nil
}

func (l *Leader) allExecutableTasksComplete(ctx context.Context, run *model.RunnableTask) (bool, error) {
	for taskId, task := range run.Tasks {
		if !task.IsExecutable {
			continue
		}
		done, err := l.hasCompletionRecord(ctx, run.RunId, taskId)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// completeRun conditionally marks run complete, retrying against a
// fresh read on a version conflict.
func (l *Leader) completeRun(ctx context.Context, runId model.RunId) error {
	for {
		node, err := l.coord.Get(ctx, l.runPath(runId))
		if err != nil {
			return err
		}
		run, err := codec.DecodeRunnableTask(node.Value)
		if err != nil {
			return err
		}
		if run.CompletionTimeUtc != nil {
			return nil // a concurrent tenure already completed it
		}
		now := time.Now().UTC()
		run.CompletionTimeUtc = &now
		encoded, err := codec.EncodeRunnableTask(run)
		if err != nil {
			return err
		}
		err = l.coord.UpdateIfVersion(ctx, node.Path, encoded, node.Version)
		if err == coordinator.ErrVersionConflict {
			continue // re-read and retry the decision
		}
		if err != nil {
			return err
		}
		l.logger.Info("run completed", "run", runId)
		l.instruments.RecordRunCompleted(ctx)
		return nil
	}
}

// CancelRun forcibly marks a run complete with no dependency check. It
// does not interrupt in-flight task executions; it only stops new tasks
// of this run from being scheduled. Returns false if the run does not
// exist.
func (l *Leader) CancelRun(ctx context.Context, runId model.RunId) (bool, error) {
	_, err := l.coord.Get(ctx, l.runPath(runId))
	if err == coordinator.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := l.completeRun(ctx, runId); err != nil {
		return false, err
	}
	return true, nil
}

func parseTaskId(s string) (model.TaskId, error) {
	return uuid.Parse(s)
}
