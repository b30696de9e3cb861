package visitor

import (
	"context"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
)

type (
	// Result records what happened to one visited changeset.
	Result struct {
		ChangeSet *changelog.ChangeSet
		ExecType  changelog.ExecType
	}

	// Update executes changesets and records each outcome in history. A
	// changeset that already has a row is recorded as RERAN.
	//
	// Example usage:
	//
	//	update := visitor.NewUpdate(db, svc, changelog.ExecOptions{Contexts: contexts})
	//	err := iterator.New(cfg).Run(ctx, update)
	Update struct {
		db      database.Database
		history history.Service
		opts    changelog.ExecOptions
		results []Result
	}
)

var _ iterator.Visitor = (*Update)(nil)

// NewUpdate returns an Update visitor. When opts.History is nil, svc answers
// changeSetExecuted preconditions.
func NewUpdate(db database.Database, svc history.Service, opts changelog.ExecOptions) *Update {
	if opts.History == nil {
		opts.History = svc
	}

	return &Update{db: db, history: svc, opts: opts}
}

func (u *Update) Direction() iterator.Direction { return iterator.Forward }

func (u *Update) Visit(ctx context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	log := iterator.Logger(ctx)

	status, err := u.history.RunStatus(ctx, cs)
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "Running changeset", "status", status)
	execType, err := cs.Execute(ctx, u.db, u.opts)
	if err != nil {
		u.results = append(u.results, Result{ChangeSet: cs, ExecType: changelog.ExecFailed})
		return err
	}

	if status != changelog.NotRan && execType == changelog.ExecExecuted {
		execType = changelog.ExecReran
	}

	if err := u.history.SetExecType(ctx, cs, execType); err != nil {
		return err
	}

	u.results = append(u.results, Result{ChangeSet: cs, ExecType: execType})
	return nil
}

// Results lists the visited changesets in execution order.
func (u *Update) Results() []Result { return u.results }

// Count returns how many changesets were recorded as ran.
func (u *Update) Count() int {
	n := 0
	for _, r := range u.results {
		if r.ExecType.Ran() {
			n++
		}
	}

	return n
}
