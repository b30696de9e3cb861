package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/docker"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

const sandboxStopTimeout = 30 * time.Second

type sandboxParams struct {
	fx.In

	Config *config.Config
}

// sandbox creates the sandbox command group for trying changelogs against a
// disposable ClickHouse server.
//
// Subcommands:
//   - run: start a sandbox, apply the changelog and print its URL
//   - list: show running sandboxes
//   - rm: remove a sandbox by ID or name
//
// Example usage:
//
//	# Start a sandbox, apply the changelog and keep it running until Ctrl-C
//	changekeeper sandbox run
//
//	# Check that the changelog applies cleanly, then remove the sandbox
//	changekeeper sandbox run --exit --contexts test
//
//	# Clean up sandboxes left behind by other processes
//	changekeeper sandbox list
//	changekeeper sandbox rm 3f2a9c
func sandbox(p sandboxParams) *cli.Command {
	return &cli.Command{
		Name:  "sandbox",
		Usage: "Manage disposable ClickHouse sandboxes",
		Commands: []*cli.Command{
			sandboxRun(p),
			sandboxList(),
			sandboxRemove(),
		},
	}
}

func sandboxRun(p sandboxParams) *cli.Command {
	flags := connectionFlags()[1:]
	flags = append(flags,
		&cli.StringFlag{
			Name:  "image",
			Usage: "ClickHouse server image (overrides sandbox.image)",
		},
		&cli.StringFlag{
			Name:  "config-dir",
			Usage: "config.d directory to mount into the server",
		},
		&cli.BoolFlag{
			Name:  "exit",
			Usage: "remove the sandbox once the changelog has been applied",
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Start a sandbox and apply the changelog to it",
		Description: `Start a ClickHouse container with docker, apply the root changelog to it
and print its connection URL. The sandbox runs until the command is
interrupted, or until the update completes when --exit is given. It is
removed when the command exits.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			image := cmd.String("image")
			if image == "" {
				image = p.Config.Sandbox.Image
			}

			project, err := os.Getwd()
			if err != nil {
				return errors.Wrap(err, "failed to determine project directory")
			}

			sb := docker.New(docker.Options{
				Image:     image,
				ConfigDir: cmd.String("config-dir"),
				Project:   project,
			})

			fmt.Fprintf(cmd.Root().Writer, "Starting sandbox (%s)...\n", sb.Image())
			if err := sb.Start(ctx); err != nil {
				return err
			}

			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sandboxStopTimeout)
				defer cancel()

				if err := sb.Stop(stopCtx); err != nil {
					slog.Warn("Failed to stop sandbox", "id", sb.ID(), "err", err)
				}
			}()

			url, err := sb.URL(ctx)
			if err != nil {
				return err
			}

			cfg := *p.Config
			cfg.Database.URL = url
			cfg.Offline = nil

			if err := runUpdate(ctx, cmd, &cfg, func(s *session) (*executor.UpdateResult, error) {
				cl, err := s.changeLog()
				if err != nil {
					return nil, err
				}

				return s.exec.Update(ctx, cl, s.opts)
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "\nSandbox %s is ready: %s\n", green(shortID(sb.ID())), url)
			if cmd.Bool("exit") {
				return nil
			}

			fmt.Fprintln(cmd.Root().Writer, faint("Press Ctrl-C to stop"))
			<-ctx.Done()
			return nil
		},
	}
}

func sandboxList() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Show running sandboxes",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(func(e *docker.Engine) error {
				list, err := e.List(ctx)
				if err != nil {
					return err
				}

				if len(list) == 0 {
					fmt.Fprintln(cmd.Root().Writer, "No sandboxes are running")
					return nil
				}

				t := newTable(cmd.Root().Writer, "ID", "Name", "Image", "Status", "Project")
				for _, info := range list {
					t.AppendRow(table.Row{
						shortID(info.ID),
						strings.Join(info.Names, ", "),
						info.Image,
						info.Status,
						info.Project,
					})
				}
				t.Render()
				return nil
			})
		},
	}
}

func sandboxRemove() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Stop and remove a sandbox",
		ArgsUsage: "<id or name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New("rm requires a sandbox ID or name")
			}

			return withEngine(func(e *docker.Engine) error {
				if err := e.Remove(ctx, id); err != nil {
					return err
				}

				fmt.Fprintf(cmd.Root().Writer, "Removed sandbox %s\n", id)
				return nil
			})
		},
	}
}

func withEngine(fn func(*docker.Engine) error) error {
	cl, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Wrap(err, "failed to create docker client")
	}
	defer func() { _ = cl.Close() }()

	return fn(docker.NewEngine(cl))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}

	return id
}
