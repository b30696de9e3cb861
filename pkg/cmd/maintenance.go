package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type maintenanceParams struct {
	fx.In

	Config *config.Config
}

// tag creates the tag command, which marks the current state of the database
// so that rollback-to-tag can return to it later.
//
// Example usage:
//
//	changekeeper tag v1.2.0
func tag(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Tag the most recently applied changeset",
		ArgsUsage: "<tag>",
		Flags:     []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name, err := tagArg(cmd)
			if err != nil {
				return err
			}

			return withSession(ctx, cmd, p.Config, func(s *session) error {
				if err := s.exec.Tag(ctx, name); err != nil {
					return err
				}

				fmt.Fprintf(s.out, "Tagged database with %s\n", green(name))
				return nil
			})
		},
	}
}

// tagExists creates the tag-exists command.
//
// Example usage:
//
//	changekeeper tag-exists v1.2.0
func tagExists(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:      "tag-exists",
		Usage:     "Check whether a tag has been applied",
		ArgsUsage: "<tag>",
		Flags:     []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name, err := tagArg(cmd)
			if err != nil {
				return err
			}

			return withSession(ctx, cmd, p.Config, func(s *session) error {
				exists, err := s.exec.TagExists(ctx, name)
				if err != nil {
					return err
				}

				if exists {
					fmt.Fprintf(s.out, "The tag %s exists\n", green(name))
				} else {
					fmt.Fprintf(s.out, "The tag %s does not exist\n", yellow(name))
				}

				return nil
			})
		},
	}
}

// changeLogSync creates the changelog-sync command. It records pending
// changesets as applied without running them, which is how an existing
// database is brought under management.
//
// Example usage:
//
//	changekeeper changelog-sync --contexts prod
func changeLogSync(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:  "changelog-sync",
		Usage: "Mark all pending changesets as applied without running them",
		Flags: connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				cl, err := s.changeLog()
				if err != nil {
					return err
				}

				synced, err := s.exec.ChangeLogSync(ctx, cl, s.opts)
				if !s.cfg.IsOffline() && (err == nil || len(synced) > 0) {
					printChangeSets(s.out, "Marked as applied:", "Nothing to sync", synced)
				}

				return err
			})
		},
	}
}

// clearCheckSums creates the clear-checksums command. Stored checksums are
// recomputed by the next update, which accepts the current changelog as-is.
//
// Example usage:
//
//	changekeeper clear-checksums
func clearCheckSums(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:  "clear-checksums",
		Usage: "Remove all stored checksums",
		Flags: []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				if err := s.exec.ClearCheckSums(ctx); err != nil {
					return err
				}

				fmt.Fprintln(s.out, "Cleared all checksums")
				return nil
			})
		},
	}
}

// listLocks creates the list-locks command.
//
// Example usage:
//
//	changekeeper list-locks
func listLocks(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:  "list-locks",
		Usage: "Show who holds the migration lock",
		Flags: []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				locks, err := s.exec.Locks(ctx)
				if err != nil {
					return err
				}

				if len(locks) == 0 {
					fmt.Fprintln(s.out, "The migration lock is free")
					return nil
				}

				t := newTable(s.out, "ID", "Locked By", "Granted")
				for _, l := range locks {
					t.AppendRow(table.Row{l.ID, l.LockedBy, when(l.Granted)})
				}
				t.Render()
				return nil
			})
		},
	}
}

// releaseLocks creates the release-locks command. It clears the migration
// lock unconditionally, for use after a process died while holding it.
//
// Example usage:
//
//	changekeeper release-locks
func releaseLocks(p maintenanceParams) *cli.Command {
	return &cli.Command{
		Name:  "release-locks",
		Usage: "Forcibly release the migration lock",
		Flags: []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				if err := s.exec.ReleaseLocks(ctx); err != nil {
					return err
				}

				fmt.Fprintln(s.out, "Released the migration lock")
				return nil
			})
		},
	}
}
