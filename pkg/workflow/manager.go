// Package workflow is flowdag's single exported entry point: a Manager
// that submits DAGs of tasks, tracks their execution across a fleet of
// worker processes, and answers introspection queries, all backed by a
// coordinator.Client.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flowdag/internal/cleaner"
	"flowdag/internal/codec"
	"flowdag/internal/coordinator"
	"flowdag/internal/dag"
	"flowdag/internal/executor"
	"flowdag/internal/model"
	"flowdag/internal/observability"
	"flowdag/internal/queue"
	"flowdag/internal/scheduler"
)

// Task is the user-supplied tree shape submitted to the manager. It
// mirrors internal/dag.Task so callers of this package never need to
// import an internal package.
type Task = dag.Task

// TaskType names an executable task kind and its queue mode.
type TaskType = model.TaskType

// TaskExecutor runs a single task to completion.
type TaskExecutor = executor.TaskExecutor

// RunInfo, TaskDetails, and TaskInfo are the externally-visible
// projections returned by the manager's introspection queries.
type (
	RunInfo     = model.RunInfo
	TaskDetails = model.TaskDetails
	TaskInfo    = model.TaskInfo
)

type lifecycleState int

const (
	stateLatent lifecycleState = iota
	stateStarted
	stateClosed
)

// Registration binds a TaskType to the TaskExecutor and consumer
// concurrency that should run it.
type Registration struct {
	Type        model.TaskType
	Executor    TaskExecutor
	Concurrency int
}

// Config configures a Manager.
type Config struct {
	BasePath      string
	InstanceName  string
	Registrations []Registration
	Logger        *slog.Logger
	Cleaner       *cleaner.Config
	Instruments   *observability.Instruments
}

// Manager is the library's single exported entry point. Construct one
// with New (TaskExecutors are registered through Config.Registrations),
// call Start, and call Close on shutdown.
type Manager struct {
	coord        coordinator.Client
	basePath     string
	instanceName string
	logger       *slog.Logger
	instruments  *observability.Instruments

	mu    sync.Mutex
	state lifecycleState

	registrations []Registration
	queues        map[string]*queue.Queue
	pools         []*executor.Pool
	leader        *scheduler.Leader
	autoCleaner   *cleaner.AutoCleaner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager in the LATENT state.
func New(coord coordinator.Client, cfg Config) *Manager {
	if cfg.BasePath == "" {
		cfg.BasePath = "/flowdag"
	}
	if cfg.InstanceName == "" {
		cfg.InstanceName = "unnamed-instance"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		coord:         coord,
		basePath:      cfg.BasePath,
		instanceName:  cfg.InstanceName,
		logger:        cfg.Logger.With("component", "workflow_manager"),
		instruments:   cfg.Instruments,
		registrations: cfg.Registrations,
		queues:        make(map[string]*queue.Queue),
	}

	queueFactory := &managerQueueFactory{m: m}
	m.leader = scheduler.New(coord, queueFactory, scheduler.Config{
		BasePath:    cfg.BasePath,
		Logger:      cfg.Logger,
		Instruments: cfg.Instruments,
	})

	cleanerCfg := cleaner.Config{BasePath: cfg.BasePath, Logger: cfg.Logger}
	if cfg.Cleaner != nil {
		cleanerCfg = *cfg.Cleaner
		cleanerCfg.BasePath = cfg.BasePath
	}
	m.autoCleaner = cleaner.New(coord, cleanerCfg)

	for _, reg := range cfg.Registrations {
		key := queueKey(reg.Type)
		m.queues[key] = queue.New(coord, cfg.BasePath, reg.Type, cfg.Logger, cfg.Instruments)
	}

	return m
}

func queueKey(t model.TaskType) string {
	return t.Name + "-" + t.Version
}

// managerQueueFactory adapts Manager's queues to scheduler.QueueFactory.
// A task type with no local registration gets a queue built on demand, so
// a process that registers nothing (the scheduler binary) can still lead.
type managerQueueFactory struct{ m *Manager }

func (f *managerQueueFactory) Enqueue(ctx context.Context, taskType model.TaskType, task model.ExecutableTask, specialMeta *int64) error {
	q, ok := f.m.queues[queueKey(taskType)]
	if !ok {
		q = queue.New(f.m.coord, f.m.basePath, taskType, f.m.logger, f.m.instruments)
	}
	return q.Enqueue(ctx, task, specialMeta)
}

// Start transitions LATENT → STARTED exactly once: it campaigns for
// scheduler leadership in the background, starts every registered
// consumer pool, and starts the auto-cleaner. The auto-cleaner runs in
// every started Manager; it is not limited to the process that holds
// scheduler leadership. Calling Start twice returns an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateLatent {
		return errors.New("workflow: Start called outside LATENT state")
	}
	m.state = stateStarted

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for runCtx.Err() == nil {
			if err := m.leader.RunStandby(runCtx, m.instanceName); err != nil && runCtx.Err() == nil {
				m.logger.Error("scheduler leadership tenure ended", "error", err)
				time.Sleep(time.Second)
			}
		}
	}()

	for _, reg := range m.registrations {
		q := m.queues[queueKey(reg.Type)]
		pool := executor.New(m.coord, q, reg.Type, reg.Executor, m, executor.Config{
			BasePath:     m.basePath,
			InstanceName: m.instanceName,
			Logger:       m.logger,
			Instruments:  m.instruments,
		})
		m.pools = append(m.pools, pool)

		concurrency := reg.Concurrency
		m.wg.Add(1)
		go func(pool *executor.Pool, concurrency int) {
			defer m.wg.Done()
			if err := pool.Run(runCtx, concurrency); err != nil && runCtx.Err() == nil {
				m.logger.Error("consumer pool stopped", "error", err)
			}
		}(pool, concurrency)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.autoCleaner.Run(runCtx); err != nil && runCtx.Err() == nil {
			m.logger.Error("auto-cleaner stopped", "error", err)
		}
	}()

	return nil
}

// IsOpen implements executor.LifecycleGate: a run's tasks may only be
// executed while the manager as a whole is STARTED.
func (m *Manager) IsOpen(ctx context.Context, runId model.RunId) (bool, error) {
	m.mu.Lock()
	open := m.state == stateStarted
	m.mu.Unlock()
	return open, nil
}

// Close idempotently shuts down consumers and releases leadership.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	wasStarted := m.state == stateStarted
	m.state = stateClosed
	cancel := m.cancel
	m.mu.Unlock()

	if wasStarted && cancel != nil {
		cancel()
		m.wg.Wait()
	}
	return nil
}

func (m *Manager) runsPath() string { return m.basePath + "/runs" }

func (m *Manager) runPath(runId model.RunId) string {
	return fmt.Sprintf("%s/%s", m.runsPath(), runId)
}

func (m *Manager) requireStarted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateStarted {
		return errors.New("workflow: manager is not STARTED")
	}
	return nil
}

// SubmitTask flattens root into a new run and writes it atomically.
func (m *Manager) SubmitTask(ctx context.Context, root *Task) (model.RunId, error) {
	return m.submit(ctx, root, nil)
}

// SubmitSubTask submits root as a new run whose ParentRunId is
// parentRunId. The sub-run's completion is independent of the parent's.
func (m *Manager) SubmitSubTask(ctx context.Context, parentRunId model.RunId, root *Task) (model.RunId, error) {
	return m.submit(ctx, root, &parentRunId)
}

func (m *Manager) submit(ctx context.Context, root *Task, parentRunId *model.RunId) (model.RunId, error) {
	if err := m.requireStarted(); err != nil {
		return model.RunId{}, err
	}

	runId := model.NewRunId()
	tasks, edges, err := dag.Build(runId, root)
	if err != nil {
		return model.RunId{}, fmt.Errorf("workflow: build dag: %w", err)
	}

	run := &model.RunnableTask{
		RunId:        runId,
		ParentRunId:  parentRunId,
		Tasks:        tasks,
		Edges:        edges,
		StartTimeUtc: time.Now().UTC(),
	}
	encoded, err := codec.EncodeRunnableTask(run)
	if err != nil {
		return model.RunId{}, err
	}
	if err := m.coord.Create(ctx, m.runPath(runId), encoded); err != nil {
		return model.RunId{}, fmt.Errorf("workflow: create run: %w", err)
	}
	return runId, nil
}

// CancelRun forcibly marks runId complete with no dependency check.
// Returns false if the run does not exist.
func (m *Manager) CancelRun(ctx context.Context, runId model.RunId) (bool, error) {
	if err := m.requireStarted(); err != nil {
		return false, err
	}
	return m.leader.CancelRun(ctx, runId)
}

// GetTaskExecutionResult returns taskId's terminal result within runId,
// or (nil, nil) if it hasn't completed yet.
func (m *Manager) GetTaskExecutionResult(ctx context.Context, runId model.RunId, taskId model.TaskId) (*model.TaskExecutionResult, error) {
	node, err := m.coord.Get(ctx, fmt.Sprintf("%s/completed/%s/%s", m.basePath, runId, taskId))
	if err == coordinator.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeResult(node.Value)
}

// GetRunInfo returns the externally-visible projection of one run.
func (m *Manager) GetRunInfo(ctx context.Context, runId model.RunId) (*RunInfo, error) {
	node, err := m.coord.Get(ctx, m.runPath(runId))
	if err == coordinator.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run, err := codec.DecodeRunnableTask(node.Value)
	if err != nil {
		return nil, err
	}
	return &RunInfo{
		RunId:             run.RunId,
		ParentRunId:       run.ParentRunId,
		StartTimeUtc:      run.StartTimeUtc,
		CompletionTimeUtc: run.CompletionTimeUtc,
	}, nil
}

// ListRunInfo returns the externally-visible projection of every run.
func (m *Manager) ListRunInfo(ctx context.Context) ([]RunInfo, error) {
	nodes, err := m.coord.Children(ctx, m.runsPath())
	if err != nil {
		return nil, err
	}
	out := make([]RunInfo, 0, len(nodes))
	for _, node := range nodes {
		run, err := codec.DecodeRunnableTask(node.Value)
		if err != nil {
			m.logger.Error("decode run failed", "path", node.Path, "error", err)
			continue
		}
		out = append(out, RunInfo{
			RunId:             run.RunId,
			ParentRunId:       run.ParentRunId,
			StartTimeUtc:      run.StartTimeUtc,
			CompletionTimeUtc: run.CompletionTimeUtc,
		})
	}
	return out, nil
}

// GetTaskDetails returns the static per-task DAG view of a run.
func (m *Manager) GetTaskDetails(ctx context.Context, runId model.RunId) (map[model.TaskId]TaskDetails, error) {
	node, err := m.coord.Get(ctx, m.runPath(runId))
	if err != nil {
		if err == coordinator.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	run, err := codec.DecodeRunnableTask(node.Value)
	if err != nil {
		return nil, err
	}
	out := make(map[model.TaskId]TaskDetails, len(run.Tasks))
	for id, task := range run.Tasks {
		out[id] = TaskDetails{
			TaskId:       id,
			Type:         task.Type,
			Metadata:     task.Metadata,
			IsExecutable: task.IsExecutable,
		}
	}
	return out, nil
}

// GetTaskInfo returns the dynamic started/completed view of every task
// in a run. A task is COMPLETED only when both a StartedTask and a
// TaskExecutionResult record exist, STARTED if only the former exists,
// else NOT_STARTED.
func (m *Manager) GetTaskInfo(ctx context.Context, runId model.RunId) ([]TaskInfo, error) {
	node, err := m.coord.Get(ctx, m.runPath(runId))
	if err != nil {
		if err == coordinator.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	run, err := codec.DecodeRunnableTask(node.Value)
	if err != nil {
		return nil, err
	}

	out := make([]TaskInfo, 0, len(run.Tasks))
	for id, task := range run.Tasks {
		if !task.IsExecutable {
			continue
		}
		info := TaskInfo{TaskId: id, State: model.TaskNotStarted}

		startedNode, err := m.coord.Get(ctx, fmt.Sprintf("%s/started/%s/%s", m.basePath, runId, id))
		if err == nil {
			started, decErr := codec.DecodeStartedTask(startedNode.Value)
			if decErr == nil {
				info.Started = started
				info.State = model.TaskStarted
			}
		}

		completedNode, err := m.coord.Get(ctx, fmt.Sprintf("%s/completed/%s/%s", m.basePath, runId, id))
		if err == nil {
			result, decErr := codec.DecodeResult(completedNode.Value)
			if decErr == nil {
				info.Result = result
				if info.State == model.TaskStarted {
					info.State = model.TaskCompleted
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Clean removes a run's state immediately, bypassing the auto-cleaner's
// age policy. It does not check that the run has completed. Returns false
// if the run does not exist.
func (m *Manager) Clean(ctx context.Context, runId model.RunId) (bool, error) {
	node, err := m.coord.Get(ctx, m.runPath(runId))
	if err == coordinator.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	run, err := codec.DecodeRunnableTask(node.Value)
	if err != nil {
		return false, err
	}
	for taskId := range run.Tasks {
		m.coord.Delete(ctx, fmt.Sprintf("%s/started/%s/%s", m.basePath, runId, taskId))
		m.coord.Delete(ctx, fmt.Sprintf("%s/completed/%s/%s", m.basePath, runId, taskId))
		m.coord.Delete(ctx, fmt.Sprintf("%s/queued/%s/%s", m.basePath, runId, taskId))
	}
	if err := m.coord.Delete(ctx, m.runPath(runId)); err != nil {
		return false, err
	}
	return true, nil
}
