package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerBackend runs tasks as one-shot Docker containers.
type DockerBackend struct {
	client *client.Client
}

// NewDockerBackend dials Docker using the standard environment variables
// (DOCKER_HOST, etc).
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runtime: create docker client: %w", err)
	}
	return &DockerBackend{client: cli}, nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// Execute creates, starts, and waits on a container for opts, pulling
// opts.Image first if it isn't present locally.
func (d *DockerBackend) Execute(ctx context.Context, opts ExecOptions) (ExitResult, error) {
	if _, err := d.client.ImageInspect(ctx, opts.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return ExitResult{ExitCode: -1}, fmt.Errorf("runtime: pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: opts.Image,
		Cmd:   opts.Command,
		Env:   mapToEnvList(opts.Env),
		Tty:   true,
	}
	created, err := d.client.ContainerCreate(ctx, containerConfig, nil, nil, nil, "")
	if err != nil {
		return ExitResult{ExitCode: -1}, fmt.Errorf("runtime: create container: %w", err)
	}
	defer d.client.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return ExitResult{ExitCode: -1}, fmt.Errorf("runtime: start container: %w", err)
	}

	statusCh, errCh := d.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			return ExitResult{ExitCode: int(status.StatusCode), Error: fmt.Errorf("%s", status.Error.Message)}, nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}
