package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type statusParams struct {
	fx.In

	Config *config.Config
}

// status creates the status command for showing which changesets an update
// would apply.
//
// The status command never takes the migration lock and never writes to the
// database, though it creates the history table when it is missing.
//
// Command flags:
//   - --url: Database URL (overrides database.url)
//   - --changelog: Root changelog (overrides changelog)
//   - --contexts, --labels: Runtime selection
//   - --verbose: Show every changeset with the reasons it will or will not run
//
// Example usage:
//
//	# Show pending changesets
//	changekeeper status
//
//	# Show why each changeset is (or is not) pending
//	changekeeper status --contexts prod --verbose
func status(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show pending changesets",
		Description: `List the changesets that have not been applied to the database.

With --verbose every changeset of the changelog is shown together with its
run status (not ran, already ran, run again or invalid checksum) and the
reasons it would or would not be applied. Rows in the history table that no
longer match a changeset are reported at the end.`,
		Flags: withFlags(connectionFlags(), verboseFlag("show every changeset and why it will or will not run")),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				cl, err := s.changeLog()
				if err != nil {
					return err
				}

				report, err := s.exec.Status(ctx, cl, s.opts)
				if err != nil {
					return err
				}

				printStatus(s.out, redact(s.db.ConnectionURL()), report, cmd.Bool(flagVerbose))
				return nil
			})
		},
	}
}

// history creates the history command, which prints the history table in
// execution order.
//
// Example usage:
//
//	changekeeper history --url postgres://app@localhost:5432/app
func history(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show applied changesets",
		Flags: []cli.Flag{urlFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				rows, err := s.exec.History(ctx)
				if err != nil {
					return err
				}

				printHistory(s.out, rows)
				return nil
			})
		},
	}
}

// validate creates the validate command. It reports every problem with the
// changelog at once: checksum mismatches, duplicate identities, invalid
// changes and failing changeset preconditions.
//
// Example usage:
//
//	changekeeper validate --contexts prod
func validate(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the changelog for errors",
		Flags: connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, p.Config, func(s *session) error {
				cl, err := s.changeLog()
				if err != nil {
					return err
				}

				if err := s.exec.Validate(ctx, cl, s.opts); err != nil {
					return err
				}

				fmt.Fprintln(s.out, green("No validation errors found"))
				return nil
			})
		},
	}
}

// redact hides the password of a database URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
