// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"

	"flowdag/internal/model"
)

// runCtxKey is the context key for run/task correlation IDs.
type runCtxKey struct{}

type runCtxValue struct {
	runId  model.RunId
	taskId *model.TaskId
}

// New creates a new structured JSON logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithRun returns a new context carrying runId for correlation.
func WithRun(ctx context.Context, runId model.RunId) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runCtxValue{runId: runId})
}

// WithTask returns a new context carrying runId and taskId for
// correlation.
func WithTask(ctx context.Context, runId model.RunId, taskId model.TaskId) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runCtxValue{runId: runId, taskId: &taskId})
}

// FromContext returns a logger with run/task correlation fields
// attached, if the context carries any.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	v, ok := ctx.Value(runCtxKey{}).(runCtxValue)
	if !ok {
		return base
	}
	l := base.With("run_id", v.runId.String())
	if v.taskId != nil {
		l = l.With("task_id", v.taskId.String())
	}
	return l
}
