package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// LabelSandbox marks containers started by Sandbox. Its value is the
	// project directory.
	LabelSandbox = "io.changekeeper.sandbox"

	httpPort = nat.Port("8123/tcp")
)

type (
	// Options represents options for running a ClickHouse sandbox
	Options struct {
		// Image is the ClickHouse server image (default:
		// consts.DefaultClickHouseImage)
		Image string

		// ConfigDir is an optional config.d directory to mount. Relative paths
		// are converted to absolute.
		ConfigDir string

		// Project is recorded in the LabelSandbox label
		Project string
	}

	// Sandbox manages a disposable ClickHouse container that changelogs can be
	// applied to before they reach a real database.
	Sandbox struct {
		options   Options
		container *clickhouse.ClickHouseContainer
	}
)

// New creates a sandbox with the given options.
//
// Example:
//
//	sb := docker.New(docker.Options{Image: "clickhouse/clickhouse-server:25.7"})
//	if err := sb.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer sb.Stop(ctx)
//
//	url, err := sb.URL(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := database.Open(ctx, database.Config{URL: url})
func New(opts Options) *Sandbox {
	if opts.Image == "" {
		opts.Image = consts.DefaultClickHouseImage
	}

	return &Sandbox{options: opts}
}

// Image returns the image the sandbox runs.
func (s *Sandbox) Image() string { return s.options.Image }

// Start starts the ClickHouse container and waits for its HTTP interface.
func (s *Sandbox) Start(ctx context.Context) error {
	if s.container != nil {
		return errors.New("sandbox is already running")
	}

	customizers := []testcontainers.ContainerCustomizer{
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
		testcontainers.CustomizeRequest(testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Labels: map[string]string{LabelSandbox: s.options.Project},
			},
		}),
		testcontainers.WithWaitStrategyAndDeadline(
			5*time.Minute,
			wait.
				NewHTTPStrategy("/").
				WithPort(httpPort).
				WithStatusCodeMatcher(func(status int) bool {
					return status == 200
				}),
		),
	}

	if s.options.ConfigDir != "" {
		absConfigDir, err := filepath.Abs(s.options.ConfigDir)
		if err != nil {
			return errors.Wrapf(err, "failed to get absolute path for ConfigDir: %s", s.options.ConfigDir)
		}

		customizers = append(
			customizers,
			testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
				hostConfig.Mounts = []mount.Mount{
					{
						Type:     mount.TypeBind,
						Source:   absConfigDir,
						Target:   "/etc/clickhouse-server/config.d",
						ReadOnly: true,
					},
				}
			}),
		)
	}

	c, err := clickhouse.Run(ctx, s.options.Image, customizers...)
	if err != nil {
		return errors.Wrap(err, "failed to start ClickHouse sandbox")
	}

	s.container = c
	return nil
}

// Stop stops and removes the container. Stopping a sandbox that is not
// running is a no-op.
func (s *Sandbox) Stop(ctx context.Context) error {
	if s.container == nil {
		return nil
	}

	err := s.container.Terminate(ctx)
	s.container = nil

	return errors.Wrap(err, "failed to stop ClickHouse sandbox")
}

// URL returns a clickhouse:// database URL for the running sandbox.
func (s *Sandbox) URL(ctx context.Context) (string, error) {
	if s.container == nil {
		return "", errors.New("sandbox is not running")
	}

	dsn, err := s.container.ConnectionString(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}

	return dsn, nil
}

// HTTPURL returns the address of the sandbox's HTTP interface.
func (s *Sandbox) HTTPURL(ctx context.Context) (string, error) {
	if s.container == nil {
		return "", errors.New("sandbox is not running")
	}

	host, err := s.container.Host(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get container host")
	}

	port, err := s.container.MappedPort(ctx, httpPort)
	if err != nil {
		return "", errors.Wrap(err, "failed to get container port")
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// ID returns the container id, or an empty string when not running.
func (s *Sandbox) ID() string {
	if s.container == nil {
		return ""
	}

	return s.container.GetContainerID()
}

// IsRunning returns true if the container is currently running
func (s *Sandbox) IsRunning() bool {
	return s.container != nil
}
