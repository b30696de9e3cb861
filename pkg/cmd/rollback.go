package cmd

import (
	"context"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type rollbackParams struct {
	fx.In

	Config *config.Config
}

// rollbackCount creates the rollback-count command, which undoes the most
// recently applied changesets using their rollback blocks.
//
// Changes without an explicit rollback are inverted when the change type
// supports it (createTable becomes dropTable, for example). A changeset that
// can be neither rolled back nor inverted stops the rollback.
//
// Example usage:
//
//	changekeeper rollback-count 1
func rollbackCount(p rollbackParams) *cli.Command {
	return &cli.Command{
		Name:      "rollback-count",
		Usage:     "Roll back the last N applied changesets",
		ArgsUsage: "<count>",
		Flags:     connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			count, err := countArg(cmd)
			if err != nil {
				return err
			}

			return runRollback(ctx, cmd, p.Config, func(s *session, cl *changelog.DatabaseChangeLog) ([]*changelog.ChangeSet, error) {
				return s.exec.RollbackCount(ctx, cl, count, s.opts)
			})
		},
	}
}

// rollbackToTag creates the rollback-to-tag command. Every changeset applied
// after the tagged one is rolled back; the tagged changeset stays.
//
// Example usage:
//
//	changekeeper rollback-to-tag v1.2.0
func rollbackToTag(p rollbackParams) *cli.Command {
	return &cli.Command{
		Name:      "rollback-to-tag",
		Usage:     "Roll back every changeset applied after a tag",
		ArgsUsage: "<tag>",
		Flags:     connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tag, err := tagArg(cmd)
			if err != nil {
				return err
			}

			return runRollback(ctx, cmd, p.Config, func(s *session, cl *changelog.DatabaseChangeLog) ([]*changelog.ChangeSet, error) {
				return s.exec.RollbackToTag(ctx, cl, tag, s.opts)
			})
		},
	}
}

func runRollback(
	ctx context.Context,
	cmd *cli.Command,
	cfg *config.Config,
	fn func(*session, *changelog.DatabaseChangeLog) ([]*changelog.ChangeSet, error),
) error {
	return withSession(ctx, cmd, cfg, func(s *session) error {
		cl, err := s.changeLog()
		if err != nil {
			return err
		}

		rolledBack, err := fn(s, cl)
		if !s.cfg.IsOffline() && (err == nil || len(rolledBack) > 0) {
			printChangeSets(s.out, "Rolled back:", "Nothing to roll back", rolledBack)
		}

		return err
	})
}
