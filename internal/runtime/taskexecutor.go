package runtime

import (
	"context"
	"strconv"
	"strings"

	"flowdag/internal/model"
)

// Metadata keys a BackendTaskExecutor reads off an ExecutableTask to
// build ExecOptions. Tasks whose TaskType delegates to a runtime backend
// carry these instead of encoding invocation details in application code.
const (
	MetaImage   = "runtime.image"
	MetaCommand = "runtime.command"
	MetaTimeout = "runtime.timeout_seconds"
)

// BackendTaskExecutor adapts a Backend into an executor.TaskExecutor,
// translating reserved metadata keys into ExecOptions and a process exit
// code into a terminal TaskExecutionResult.
type BackendTaskExecutor struct {
	backend Backend
}

// NewBackendTaskExecutor wraps backend for use as a TaskExecutor.
func NewBackendTaskExecutor(backend Backend) *BackendTaskExecutor {
	return &BackendTaskExecutor{backend: backend}
}

// Execute implements executor.TaskExecutor.
func (b *BackendTaskExecutor) Execute(ctx context.Context, task model.ExecutableTask) (model.TaskExecutionResult, error) {
	opts := optionsFromMetadata(task.Metadata)
	result, err := b.backend.Execute(ctx, opts)
	if err != nil {
		return model.TaskExecutionResult{}, err
	}
	if result.ExitCode != 0 || result.Error != nil {
		msg := "exit code " + strconv.Itoa(result.ExitCode)
		if result.Error != nil {
			msg = result.Error.Error()
		}
		return model.TaskExecutionResult{
			Status:         model.StatusFailed,
			Message:        msg,
			ResultMetadata: map[string]string{"exit_code": strconv.Itoa(result.ExitCode)},
		}, nil
	}
	return model.TaskExecutionResult{
		Status:         model.StatusSuccess,
		ResultMetadata: map[string]string{"exit_code": "0"},
	}, nil
}

func optionsFromMetadata(meta map[string]string) ExecOptions {
	opts := ExecOptions{
		Image:   meta[MetaImage],
		Env:     meta,
		Command: splitCommand(meta[MetaCommand]),
	}
	if v, err := strconv.Atoi(meta[MetaTimeout]); err == nil {
		opts.Timeout = v
	}
	return opts
}

func splitCommand(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
