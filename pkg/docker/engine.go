package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/pkg/errors"
)

type (
	// DockerClient defines the Docker operations used by the Engine.
	// This interface is satisfied by *client.Client and allows for easy mocking in tests.
	DockerClient interface {
		ContainerList(context.Context, container.ListOptions) ([]container.Summary, error)
		ContainerStop(context.Context, string, container.StopOptions) error
		ContainerRemove(context.Context, string, container.RemoveOptions) error
	}

	// Engine finds and removes sandboxes started by other processes.
	Engine struct {
		client DockerClient
	}

	// Info describes a running sandbox container.
	Info struct {
		ID      string
		Names   []string
		Image   string
		State   string
		Status  string
		Project string
	}
)

// NewEngine creates a new Engine. The Docker client should be initialized
// before passing it to this constructor.
//
// Example:
//
//	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cli.Close()
//
//	sandboxes, err := docker.NewEngine(cli).List(ctx)
func NewEngine(cl DockerClient) *Engine {
	return &Engine{client: cl}
}

// List returns the running sandbox containers.
func (e *Engine) List(ctx context.Context) ([]*Info, error) {
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("status", "running"),
			filters.Arg("label", LabelSandbox),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running containers")
	}

	res := make([]*Info, len(list))
	for i, c := range list {
		names := make([]string, len(c.Names))
		for j, name := range c.Names {
			names[j] = strings.TrimPrefix(name, "/")
		}

		res[i] = &Info{
			ID:      c.ID,
			Names:   names,
			Image:   c.Image,
			State:   c.State,
			Status:  c.Status,
			Project: c.Labels[LabelSandbox],
		}
	}

	return res, nil
}

// Remove stops and removes a sandbox container.
func (e *Engine) Remove(ctx context.Context, nameOrID string) error {
	timeout := 30
	if err := e.client.ContainerStop(ctx, nameOrID, container.StopOptions{
		Timeout: &timeout,
	}); err != nil {
		return errors.Wrapf(err, "failed to stop container: %s", nameOrID)
	}

	if err := e.client.ContainerRemove(ctx, nameOrID, container.RemoveOptions{
		Force: true,
	}); err != nil {
		return errors.Wrapf(err, "failed to remove container: %s", nameOrID)
	}

	return nil
}
