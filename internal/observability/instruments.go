package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func taskTypeAttr(taskType string) attribute.KeyValue {
	return attribute.String("task_type", taskType)
}

// Instruments holds the counters and gauges flowdag's components
// publish through the meter InitMetrics installed as global. A nil
// *Instruments is valid: every Record method is a no-op on it, so
// components can carry an optional Instruments without a separate
// enabled/disabled flag.
type Instruments struct {
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	QueueDepth     metric.Int64UpDownCounter
	SchedulerTicks metric.Int64Counter
	RunsCompleted  metric.Int64Counter
}

// NewInstruments creates every flowdag metric instrument against meter
// (typically otel.Meter("flowdag")).
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	tasksCompleted, err := meter.Int64Counter("flowdag.tasks.completed",
		metric.WithDescription("Number of tasks that finished with a SUCCESS result"))
	if err != nil {
		return nil, err
	}
	tasksFailed, err := meter.Int64Counter("flowdag.tasks.failed",
		metric.WithDescription("Number of tasks that finished with a FAILED result"))
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64UpDownCounter("flowdag.queue.depth",
		metric.WithDescription("Outstanding entries per task-type queue"))
	if err != nil {
		return nil, err
	}
	schedulerTicks, err := meter.Int64Counter("flowdag.scheduler.ticks",
		metric.WithDescription("Number of scheduler control-loop passes completed"))
	if err != nil {
		return nil, err
	}
	runsCompleted, err := meter.Int64Counter("flowdag.runs.completed",
		metric.WithDescription("Number of runs marked complete"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		TasksCompleted: tasksCompleted,
		TasksFailed:    tasksFailed,
		QueueDepth:     queueDepth,
		SchedulerTicks: schedulerTicks,
		RunsCompleted:  runsCompleted,
	}, nil
}

// RecordTaskResult increments the completed or failed counter by
// outcome, tagged with taskType.
func (i *Instruments) RecordTaskResult(ctx context.Context, taskType string, success bool) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(taskTypeAttr(taskType))
	if success {
		i.TasksCompleted.Add(ctx, 1, attrs)
	} else {
		i.TasksFailed.Add(ctx, 1, attrs)
	}
}

// RecordSchedulerTick increments the scheduler control-loop pass count.
func (i *Instruments) RecordSchedulerTick(ctx context.Context) {
	if i == nil {
		return
	}
	i.SchedulerTicks.Add(ctx, 1)
}

// RecordRunCompleted increments the count of runs marked complete.
func (i *Instruments) RecordRunCompleted(ctx context.Context) {
	if i == nil {
		return
	}
	i.RunsCompleted.Add(ctx, 1)
}

// RecordQueueDepth adjusts taskType's outstanding-entry gauge by delta:
// +1 when an entry is enqueued, -1 when one is removed.
func (i *Instruments) RecordQueueDepth(ctx context.Context, taskType string, delta int64) {
	if i == nil {
		return
	}
	i.QueueDepth.Add(ctx, delta, metric.WithAttributes(taskTypeAttr(taskType)))
}
