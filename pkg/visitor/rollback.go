package visitor

import (
	"context"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
)

// Rollback undoes changesets from last to first and removes their history
// rows.
type Rollback struct {
	db         database.Database
	history    history.Service
	opts       changelog.ExecOptions
	rolledBack []*changelog.ChangeSet
}

var _ iterator.Visitor = (*Rollback)(nil)

// NewRollback returns a Rollback visitor.
func NewRollback(db database.Database, svc history.Service, opts changelog.ExecOptions) *Rollback {
	if opts.History == nil {
		opts.History = svc
	}

	return &Rollback{db: db, history: svc, opts: opts}
}

func (r *Rollback) Direction() iterator.Direction { return iterator.Reverse }

func (r *Rollback) Visit(ctx context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	iterator.Logger(ctx).InfoContext(ctx, "Rolling back changeset")

	if err := cs.ExecuteRollback(ctx, r.db, r.opts); err != nil {
		return err
	}

	if err := r.history.RemoveFromHistory(ctx, cs); err != nil {
		return err
	}

	r.rolledBack = append(r.rolledBack, cs)
	return nil
}

// RolledBack lists the changesets undone, in the order they were undone.
func (r *Rollback) RolledBack() []*changelog.ChangeSet { return r.rolledBack }
