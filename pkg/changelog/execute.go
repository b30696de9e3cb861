package changelog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// ExecOptions carries the runtime state a changeset needs to execute.
	ExecOptions struct {
		Contexts selector.Contexts
		Labels   *selector.Expression

		// History answers changeSetExecuted preconditions.
		History precondition.History

		// Runners maps runWith names to alternative databases. The default
		// runner is used when RunWith is empty or "jdbc".
		Runners map[string]database.Database
	}

	commenter interface {
		Comment(text string) error
	}
)

// Execute runs the changeset against db and returns how it ended.
//
// Preconditions are checked first and their policy decides between halting,
// skipping, marking as ran or continuing. The changes then run in order inside
// a transaction when RunInTransaction is set and the database can roll back
// schema changes. The object quoting strategy and auto-commit state of db are
// restored before returning. A failure rolls back and returns
// a MigrationFailedError unless FailOnError is false, in which case the
// changeset is reported as FAILED with a nil error.
//
// Example usage:
//
//	execType, err := cs.Execute(ctx, db, changelog.ExecOptions{Contexts: contexts})
//	if err != nil {
//		return err
//	}
func (cs *ChangeSet) Execute(ctx context.Context, db database.Database, opts ExecOptions) (ExecType, error) {
	cs.StartedAt = time.Now()
	cs.GeneratedSQL = nil
	cs.ErrorMessage = ""
	defer func() { cs.FinishedAt = time.Now() }()

	if cs.ValidationFailed {
		cs.ExecType = ExecMarkRan
		return cs.ExecType, nil
	}

	execType, err := cs.execute(ctx, db, opts)
	if err == nil {
		cs.ExecType = execType
		slog.InfoContext(ctx, "Changeset ran", "changeset", cs.String(), "execType", execType, "duration", time.Since(cs.StartedAt))
		return execType, nil
	}

	cs.ExecType = ExecFailed
	cs.ErrorMessage = err.Error()
	slog.ErrorContext(ctx, "Changeset failed", "changeset", cs.String(), "error", err)

	if !cs.FailOnError {
		slog.InfoContext(ctx, "Continuing because failOnError is false", "changeset", cs.String())
		return ExecFailed, nil
	}

	var mfe *MigrationFailedError
	if errors.As(err, &mfe) {
		return ExecFailed, err
	}

	return ExecFailed, &MigrationFailedError{ChangeSet: cs.String(), Err: err}
}

func (cs *ChangeSet) execute(ctx context.Context, db database.Database, opts ExecOptions) (ExecType, error) {
	target, err := cs.runner(db, opts)
	if err != nil {
		return "", err
	}

	restore, err := cs.configure(ctx, target)
	if err != nil {
		return "", err
	}
	defer restore()

	cs.comment(target)

	action, err := cs.Preconditions.Evaluate(ctx, cs.preconditionEnv(target, opts))
	switch action {
	case precondition.Halt:
		return "", err
	case precondition.Skip:
		return ExecSkipped, nil
	case precondition.MarkRan:
		return ExecMarkRan, nil
	}

	if !target.AutoCommit() {
		if err := target.Begin(ctx); err != nil {
			return "", err
		}
	}

	visitors := cs.visitorsFor(target.ShortName(), opts)
	for _, c := range cs.Changes {
		if !selector.DatabaseMatches(c.Dbms(), target.ShortName(), true) {
			slog.DebugContext(ctx, "Change not included for database", "change", c.Name(), "database", target.ShortName())
			continue
		}

		if err := c.Validate(target); err != nil {
			return "", cs.abort(target, err)
		}

		stmts, err := change.Execute(ctx, target, c, visitors, false)
		cs.GeneratedSQL = append(cs.GeneratedSQL, stmts...)
		if err != nil {
			return "", cs.abort(target, err)
		}
	}

	if !target.AutoCommit() {
		if err := target.Commit(); err != nil {
			return "", cs.abort(target, err)
		}
	}

	return ExecExecuted, nil
}

// ExecuteRollback undoes the changeset. Explicit rollback changes run in
// declared order; otherwise the inverse of each change runs in reverse order.
func (cs *ChangeSet) ExecuteRollback(ctx context.Context, db database.Database, opts ExecOptions) error {
	cs.StartedAt = time.Now()
	defer func() { cs.FinishedAt = time.Now() }()

	target, err := cs.runner(db, opts)
	if err != nil {
		return &RollbackFailedError{ChangeSet: cs.String(), Err: err}
	}

	changes, err := cs.RollbackChanges()
	if err != nil {
		return &RollbackFailedError{ChangeSet: cs.String(), Err: err}
	}

	restore, err := cs.configure(ctx, target)
	if err != nil {
		return &RollbackFailedError{ChangeSet: cs.String(), Err: err}
	}
	defer restore()

	cs.comment(target)
	if !target.AutoCommit() {
		if err := target.Begin(ctx); err != nil {
			return &RollbackFailedError{ChangeSet: cs.String(), Err: err}
		}
	}

	visitors := cs.visitorsFor(target.ShortName(), opts)
	for _, c := range changes {
		if !selector.DatabaseMatches(c.Dbms(), target.ShortName(), true) {
			continue
		}

		if _, err := change.Execute(ctx, target, c, visitors, true); err != nil {
			return &RollbackFailedError{ChangeSet: cs.String(), Err: cs.abort(target, err)}
		}
	}

	if !target.AutoCommit() {
		if err := target.Commit(); err != nil {
			return &RollbackFailedError{ChangeSet: cs.String(), Err: cs.abort(target, err)}
		}
	}

	slog.InfoContext(ctx, "Rolled back changeset", "changeset", cs.String())
	return nil
}

// RollbackChanges returns the changes that undo the changeset.
func (cs *ChangeSet) RollbackChanges() ([]change.Change, error) {
	if len(cs.Rollback) > 0 {
		return cs.Rollback, nil
	}

	var out []change.Change
	for i := len(cs.Changes) - 1; i >= 0; i-- {
		c := cs.Changes[i]
		inv, ok := c.(change.Inverter)
		if !ok {
			if strings.HasSuffix(strings.ToLower(cs.FilePath), ".sql") {
				return nil, errors.Errorf("no rollback defined for %s change in SQL changelog %s", c.Name(), cs.FilePath)
			}

			return nil, errors.Wrapf(change.ErrNoInverse, "%s change", c.Name())
		}

		inverse, err := inv.Inverse()
		if err != nil {
			return nil, errors.Wrapf(err, "%s change", c.Name())
		}

		out = append(out, inverse...)
	}

	return out, nil
}

// SupportsRollback reports whether RollbackChanges would succeed.
func (cs *ChangeSet) SupportsRollback() bool {
	_, err := cs.RollbackChanges()
	return err == nil
}

// configure applies the changeset's object quoting strategy and transaction
// mode to db. The returned func restores the previous settings and must run on
// every exit path.
func (cs *ChangeSet) configure(ctx context.Context, db database.Database) (func(), error) {
	quoting, autoCommit := db.ObjectQuotingStrategy(), db.AutoCommit()

	qs, err := utils.ParseQuotingStrategy(cs.ObjectQuotingStrategy)
	if err != nil {
		return nil, err
	}

	if qs != "" {
		db.SetObjectQuotingStrategy(qs)
	}

	inTx := cs.RunInTransaction && db.SupportsDDLInTransaction()
	if cs.RunInTransaction && !inTx {
		slog.DebugContext(ctx, "Database cannot roll back DDL, running without a transaction", "changeset", cs.String())
	}

	if err := db.SetAutoCommit(!inTx); err != nil {
		db.SetObjectQuotingStrategy(quoting)
		return nil, err
	}

	return func() {
		db.SetObjectQuotingStrategy(quoting)
		if err := db.SetAutoCommit(autoCommit); err != nil {
			slog.WarnContext(ctx, "Failed to restore auto-commit", "changeset", cs.String(), "error", err)
		}
	}, nil
}

func (cs *ChangeSet) runner(db database.Database, opts ExecOptions) (database.Database, error) {
	name := strings.ToLower(strings.TrimSpace(cs.RunWith))
	if name == "" || name == "jdbc" {
		return db, nil
	}

	r, ok := opts.Runners[name]
	if !ok {
		return nil, errors.Errorf("no executor registered for runWith=%s", cs.RunWith)
	}

	return r, nil
}

func (cs *ChangeSet) comment(db database.Database) {
	c, ok := db.(commenter)
	if !ok {
		return
	}

	_ = c.Comment("Changeset " + cs.String())
	if cs.Comments == "" {
		return
	}

	for _, line := range strings.Split(cs.Comments, "\n") {
		_ = c.Comment(line)
	}
}

func (cs *ChangeSet) preconditionEnv(db database.Database, opts ExecOptions) precondition.Env {
	env := precondition.Env{DB: db, History: opts.History, ChangeLogPath: cs.FilePath}
	if cl := cs.ChangeLog; cl != nil && cl.Params() != nil {
		env.Property = func(name string) (any, bool) {
			return cl.Params().Value(name, cl)
		}
	}

	return env
}

func (cs *ChangeSet) visitorsFor(database string, opts ExecOptions) []*change.SQLVisitor {
	var out []*change.SQLVisitor
	for _, v := range cs.Visitors {
		if v.Applies(database, opts.Contexts, opts.Labels) {
			out = append(out, v)
		}
	}

	return out
}

// abort rolls back the open transaction and returns err.
func (cs *ChangeSet) abort(db database.Database, err error) error {
	if rbErr := db.Rollback(); rbErr != nil {
		slog.Warn("Rollback failed", "changeset", cs.String(), "error", rbErr)
	}

	return err
}

// CheckPreconditions evaluates the changelog-level preconditions once, before
// any changeset runs. Only a HALT outcome is returned as an error.
func (cl *DatabaseChangeLog) CheckPreconditions(ctx context.Context, db database.Database, history precondition.History) error {
	env := precondition.Env{DB: db, History: history, ChangeLogPath: cl.FilePath()}
	if cl.params != nil {
		env.Property = func(name string) (any, bool) { return cl.params.Value(name, cl) }
	}

	for _, c := range cl.Preconditions {
		if action, err := c.Evaluate(ctx, env); action == precondition.Halt {
			return errors.Wrapf(err, "changelog %s preconditions failed", cl.FilePath())
		}
	}

	return nil
}
