package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var errNoCommand = errors.New("runtime: no command specified")

func errWithOutput(err error, output []byte) error {
	if len(output) == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, bytes.TrimSpace(output))
}

// ExecBackend runs tasks as raw OS processes. Intended for local
// development and tests; production deployments use DockerBackend or
// KubernetesBackend.
type ExecBackend struct{}

// NewExecBackend returns a process-based Backend.
func NewExecBackend() *ExecBackend {
	return &ExecBackend{}
}

// Execute runs opts.Command (opts.Image is ignored) and waits for exit.
func (e *ExecBackend) Execute(ctx context.Context, opts ExecOptions) (ExitResult, error) {
	if len(opts.Command) == 0 {
		return ExitResult{ExitCode: -1}, errNoCommand
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, opts.Command[0], opts.Command[1:]...)
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return ExitResult{ExitCode: exitErr.ExitCode(), Error: errWithOutput(err, out.Bytes())}, nil
		}
		return ExitResult{ExitCode: -1, Error: err}, err
	}
	return ExitResult{ExitCode: exitCode}, nil
}
