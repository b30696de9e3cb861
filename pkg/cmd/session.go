package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/urfave/cli/v3"
)

// session holds everything a command needs to act on one database: the
// effective configuration, the connection and an executor wired to it.
type session struct {
	cfg  *config.Config
	db   database.Database
	exec *executor.Executor
	opts executor.Options
	out  io.Writer

	closers []io.Closer
}

// openSession applies the command's flags on top of cfg and connects to the
// database. cfg itself is never modified. In offline mode the rendered SQL is
// written to offline.output when set, otherwise to the command's writer.
//
// Example usage:
//
//	s, err := openSession(ctx, cmd, p.Config)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	cl, err := s.changeLog()
func openSession(ctx context.Context, cmd *cli.Command, cfg *config.Config) (*session, error) {
	effective := *cfg
	if url := cmd.String(flagURL); url != "" {
		effective.Database.URL = url
		effective.Offline = nil
	}
	if path := cmd.String(flagChangeLog); path != "" {
		effective.ChangeLog = path
	}

	contexts, labels, err := effective.Selection(cmd.String(flagContexts), cmd.String(flagLabels))
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:  &effective,
		out:  cmd.Root().Writer,
		opts: executor.Options{Contexts: contexts, Labels: labels},
	}

	sqlOut := s.out
	if effective.IsOffline() && effective.Offline.Output != "" {
		f, err := os.OpenFile(effective.Offline.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, consts.ModeFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open offline output: %s", effective.Offline.Output)
		}

		s.closers = append(s.closers, f)
		sqlOut = f
	}

	db, err := effective.OpenDatabase(ctx, sqlOut)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.db = db
	s.closers = append(s.closers, db)
	s.exec = effective.Executor(db)

	slog.Debug("Opened session",
		"database", db.Dialect().ProductName(),
		"offline", effective.IsOffline(),
		"contexts", contexts.String(),
		"labels", labels.String(),
	)

	return s, nil
}

// changeLog parses the root changelog with the session's selection.
func (s *session) changeLog() (*changelog.DatabaseChangeLog, error) {
	return s.cfg.LoadChangeLog(s.db, s.opts.Contexts, s.opts.Labels)
}

// Close releases the connection and any offline output file.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			slog.Warn("Failed to close session resource", "err", err)
		}
	}
}

// withSession opens a session for the duration of fn.
func withSession(ctx context.Context, cmd *cli.Command, cfg *config.Config, fn func(*session) error) error {
	s, err := openSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}
