package logger

import (
	"context"
	"testing"

	"flowdag/internal/model"
)

func TestNew_ReturnsLogger(t *testing.T) {
	if New() == nil {
		t.Error("New() returned nil")
	}
}

func TestFromContext_NoRunReturnsBase(t *testing.T) {
	base := New()
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() on bare context should return the base logger unchanged")
	}
}

func TestFromContext_WithRunAndTask(t *testing.T) {
	base := New()
	runId := model.NewRunId()
	taskId := model.NewTaskId()

	ctx := WithTask(context.Background(), runId, taskId)
	scoped := FromContext(ctx, base)
	if scoped == nil {
		t.Fatal("FromContext() returned nil")
	}
	if scoped == base {
		t.Error("FromContext() with a run/task context should return a derived logger, not the base")
	}
}

func TestWithRun_WithoutTask(t *testing.T) {
	base := New()
	runId := model.NewRunId()

	ctx := WithRun(context.Background(), runId)
	scoped := FromContext(ctx, base)
	if scoped == base {
		t.Error("FromContext() with a run-only context should return a derived logger, not the base")
	}
}
