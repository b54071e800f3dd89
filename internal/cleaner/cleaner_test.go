package cleaner

import (
	"context"
	"testing"
	"time"

	"flowdag/internal/codec"
	"flowdag/internal/coordinator/memcoord"
	"flowdag/internal/model"
)

func seedRun(t *testing.T, coord *memcoord.Client, completedAt *time.Time) model.RunId {
	t.Helper()
	runId := model.NewRunId()
	taskId := model.NewTaskId()
	run := &model.RunnableTask{
		RunId:             runId,
		Tasks:             map[model.TaskId]model.ExecutableTask{taskId: {RunId: runId, TaskId: taskId, IsExecutable: true}},
		StartTimeUtc:      time.Now().UTC().Add(-time.Hour),
		CompletionTimeUtc: completedAt,
	}
	encoded, err := codec.EncodeRunnableTask(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := coord.Create(context.Background(), "/flowdag/runs/"+runId.String(), encoded); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := coord.Create(context.Background(), "/flowdag/completed/"+runId.String()+"/"+taskId.String(), []byte("{}")); err != nil {
		t.Fatalf("create completion: %v", err)
	}
	return runId
}

func TestSweep_RemovesOnlyOldCompletedRuns(t *testing.T) {
	coord := memcoord.New()
	old := time.Now().UTC().Add(-48 * time.Hour)
	oldRun := seedRun(t, coord, &old)
	recent := time.Now().UTC()
	recentRun := seedRun(t, coord, &recent)
	openRun := seedRun(t, coord, nil)

	c := New(coord, Config{Eligible: MinAge(24 * time.Hour)})
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := coord.Get(context.Background(), "/flowdag/runs/"+oldRun.String()); err == nil {
		t.Error("expected old completed run to be removed")
	}
	if _, err := coord.Get(context.Background(), "/flowdag/runs/"+recentRun.String()); err != nil {
		t.Error("expected recently-completed run to survive the sweep")
	}
	if _, err := coord.Get(context.Background(), "/flowdag/runs/"+openRun.String()); err != nil {
		t.Error("expected open run to survive the sweep")
	}
}
