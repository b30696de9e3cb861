package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type initParams struct {
	fx.In

	Config *config.Config
}

// initCmd returns a CLI command that initializes a new changekeeper project
// in the project directory (see --dir).
//
// The initialization process is idempotent - running it multiple times
// will not overwrite existing files, making it safe to run in existing
// directories.
//
// Created structure:
//   - changekeeper.yaml: Configuration file
//   - db/changelog.<format>: Root changelog including everything in db/changes
//   - db/changes/: Directory for changelog files, applied in name order
//
// Example usage:
//
//	# Initialize a project in the current directory
//	changekeeper init
//
//	# Use a formatted SQL root changelog for a local PostgreSQL database
//	changekeeper init --format sql --url postgres://app@localhost:5432/app
func initCmd(p initParams) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a project in the project directory",
		Flags: []cli.Flag{
			urlFlag(),
			&cli.StringFlag{
				Name:  "format",
				Usage: "root changelog format (" + strings.Join(project.Formats(), ", ") + ")",
				Value: "yaml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := project.New(".").Initialize(project.InitOptions{
				DatabaseURL: cmd.String(flagURL),
				Format:      cmd.String("format"),
			})
			if err != nil {
				return err
			}

			*p.Config = *cfg
			fmt.Fprintf(cmd.Root().Writer, "Initialized project with root changelog %s\n", green(cfg.ChangeLog))
			return nil
		},
	}
}
