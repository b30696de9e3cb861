package cmd

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type updateParams struct {
	fx.In

	Config *config.Config
}

// update creates the update command, which applies every pending changeset
// of the root changelog.
//
// Each changeset runs in its own transaction where the database allows it and
// is recorded in the history table as it completes. The migration lock is
// held for the whole run, so concurrent updates against the same database
// wait for each other.
//
// Example usage:
//
//	# Apply everything
//	changekeeper update
//
//	# Apply only changesets for the prod context that are not labelled slow
//	changekeeper update --contexts prod --labels '!slow'
//
//	# Render the SQL instead of running it (offline mode in changekeeper.yaml)
//	changekeeper update
func update(p updateParams) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Apply all pending changesets",
		Description: `Apply every changeset that has not been applied yet, in changelog order.

Changesets whose context or label expressions do not match the runtime
selection, or whose dbms attribute excludes the target database, are left
alone. runAlways changesets run every time; runOnChange changesets run again
when their checksum changes.`,
		Flags: connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runUpdate(ctx, cmd, p.Config, func(s *session) (*executor.UpdateResult, error) {
				cl, err := s.changeLog()
				if err != nil {
					return nil, err
				}

				return s.exec.Update(ctx, cl, s.opts)
			})
		},
	}
}

// updateCount creates the update-count command.
//
// Example usage:
//
//	changekeeper update-count 2
func updateCount(p updateParams) *cli.Command {
	return &cli.Command{
		Name:      "update-count",
		Usage:     "Apply the next N pending changesets",
		ArgsUsage: "<count>",
		Flags:     connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			count, err := countArg(cmd)
			if err != nil {
				return err
			}

			return runUpdate(ctx, cmd, p.Config, func(s *session) (*executor.UpdateResult, error) {
				cl, err := s.changeLog()
				if err != nil {
					return nil, err
				}

				return s.exec.UpdateCount(ctx, cl, count, s.opts)
			})
		},
	}
}

// updateToTag creates the update-to-tag command. Changesets are applied up to
// and including the one that applies the tag.
//
// Example usage:
//
//	changekeeper update-to-tag v1.2.0
func updateToTag(p updateParams) *cli.Command {
	return &cli.Command{
		Name:      "update-to-tag",
		Usage:     "Apply pending changesets up to the one that applies a tag",
		ArgsUsage: "<tag>",
		Flags:     connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tag, err := tagArg(cmd)
			if err != nil {
				return err
			}

			return runUpdate(ctx, cmd, p.Config, func(s *session) (*executor.UpdateResult, error) {
				cl, err := s.changeLog()
				if err != nil {
					return nil, err
				}

				return s.exec.UpdateToTag(ctx, cl, tag, s.opts)
			})
		},
	}
}

// runUpdate prints whatever part of the result is available, including when
// the update failed part way.
func runUpdate(ctx context.Context, cmd *cli.Command, cfg *config.Config, fn func(*session) (*executor.UpdateResult, error)) error {
	return withSession(ctx, cmd, cfg, func(s *session) error {
		res, err := fn(s)
		if res != nil && !s.cfg.IsOffline() {
			printUpdate(s.out, res)
		}

		return err
	})
}

func countArg(cmd *cli.Command) (int, error) {
	raw := cmd.Args().First()
	if raw == "" {
		return 0, errors.Errorf("%s requires a count", cmd.Name)
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return 0, errors.Errorf("invalid count %q: must be a positive integer", raw)
	}

	return count, nil
}

func tagArg(cmd *cli.Command) (string, error) {
	tag := cmd.Args().First()
	if tag == "" {
		return "", errors.Errorf("%s requires a tag", cmd.Name)
	}

	return tag, nil
}
