package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Config     *config.Config
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates the changekeeper CLI application and registers it with the fx
// lifecycle. The application runs in the background once fx has started, and
// shuts fx down with a non-zero exit code when the command fails. Stopping fx
// (for example on SIGINT) cancels the command's context and waits for it to
// return, so that locks are released and sandboxes removed.
//
// Global Flags:
//   - --dir, -d: Project directory (defaults to current directory)
//   - --config, -c: Configuration file (defaults to changekeeper.yaml)
//   - --log-level: debug, info, warn or error
//
// Example usage:
//
//	changekeeper --dir ./services/api update --contexts prod
//	changekeeper -c deploy/changekeeper.yaml status --verbose
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := NewApp(p.Config, p.Version.Version, p.Commands)

	ctx, cancel := context.WithCancel(p.Ctx)
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				code := 0
				if err := app.Run(ctx, p.Args); err != nil {
					slog.Error("Error running command", "err", err)
					code = 1
				}

				_ = p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return errors.Wrap(stopCtx.Err(), "command did not stop in time")
			}
		},
	})
}

// NewApp returns the root command. The configuration is reloaded in place
// when --dir or --config select a different project, so every command sees
// the same *config.Config.
func NewApp(cfg *config.Config, version string, commands []*cli.Command) *cli.Command {
	commands = slices.Clone(commands)
	slices.SortFunc(commands, func(a, b *cli.Command) int {
		return strings.Compare(a.Name, b.Name)
	})

	return &cli.Command{
		Name:  "changekeeper",
		Usage: "Track, version and deploy database schema changes",
		Description: `changekeeper applies changelogs (YAML, JSON, XML or formatted SQL) to a
database, recording every changeset it runs in a history table so that each
one is applied exactly once, in order, and can be rolled back.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "the project directory",
				Value:       ".",
				DefaultText: "Current directory",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the changekeeper config file",
				Sources: cli.EnvVars(config.EnvConfigFile),
				Value:   config.ConfigFile(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "info",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := setLogLevel(cmd.String("log-level")); err != nil {
				return ctx, err
			}

			if err := os.Chdir(cmd.String("dir")); err != nil {
				return ctx, errors.Wrapf(err, "failed to change to project directory: %s", cmd.String("dir"))
			}

			loaded, err := config.LoadOrDefault(cmd.String("config"))
			if err != nil {
				return ctx, err
			}

			*cfg = *loaded
			return ctx, nil
		},
		Commands: commands,
	}
}

func setLogLevel(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	slog.SetLogLoggerLevel(l)
	return nil
}
