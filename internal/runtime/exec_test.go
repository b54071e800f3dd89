package runtime

import (
	"context"
	"testing"

	"flowdag/internal/model"
)

func TestExecBackend_SuccessExitCode(t *testing.T) {
	backend := NewExecBackend()
	result, err := backend.Execute(context.Background(), ExecOptions{Command: []string{"true"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("got exit code %d, want 0", result.ExitCode)
	}
}

func TestExecBackend_FailureExitCode(t *testing.T) {
	backend := NewExecBackend()
	result, err := backend.Execute(context.Background(), ExecOptions{Command: []string{"false"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatalf("got exit code 0, want non-zero")
	}
}

func TestBackendTaskExecutor_TranslatesExitCodeToStatus(t *testing.T) {
	exec := NewBackendTaskExecutor(NewExecBackend())
	task := model.ExecutableTask{
		Metadata: map[string]string{MetaCommand: "true"},
	}
	result, err := exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("got status %s, want SUCCESS", result.Status)
	}

	task.Metadata[MetaCommand] = "false"
	result, err = exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != model.StatusFailed {
		t.Fatalf("got status %s, want FAILED", result.Status)
	}
}
