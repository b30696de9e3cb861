package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

// RollbackCount undoes the last count applied changesets, most recent first.
//
// Example usage:
//
//	rolledBack, err := exec.RollbackCount(ctx, cl, 2, executor.Options{})
//	if err != nil {
//		var rf *changelog.RollbackFailedError
//		if errors.As(err, &rf) {
//			log.Printf("could not roll back %s", rf.ChangeSet)
//		}
//	}
func (e *Executor) RollbackCount(ctx context.Context, cl *changelog.DatabaseChangeLog, count int, opts Options) ([]*changelog.ChangeSet, error) {
	if count <= 0 {
		return nil, errors.Errorf("rollback count must be positive, got %d", count)
	}

	return e.rollback(ctx, cl, opts, func(ran []*changelog.RanChangeSet) ([]filter.Filter, error) {
		return []filter.Filter{filter.NewCount(count)}, nil
	})
}

// RollbackToTag undoes every changeset applied after the row carrying tag.
// The tagged changeset itself stays applied.
func (e *Executor) RollbackToTag(ctx context.Context, cl *changelog.DatabaseChangeLog, tag string, opts Options) ([]*changelog.ChangeSet, error) {
	if tag == "" {
		return nil, errors.New("rollback to tag requires a tag")
	}

	return e.rollback(ctx, cl, opts, func(ran []*changelog.RanChangeSet) ([]filter.Filter, error) {
		f, err := filter.NewAfterTag(tag, ran)
		if err != nil {
			return nil, err
		}

		return []filter.Filter{f}, nil
	})
}

func (e *Executor) rollback(
	ctx context.Context,
	cl *changelog.DatabaseChangeLog,
	opts Options,
	limit func([]*changelog.RanChangeSet) ([]filter.Filter, error),
) ([]*changelog.ChangeSet, error) {
	var rolledBack []*changelog.ChangeSet

	err := e.locked(ctx, cl, func() error {
		if err := e.validate(ctx, cl, opts, false); err != nil {
			return err
		}

		ran, err := e.history.RanChangeSets(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to load history")
		}

		limits, err := limit(ran)
		if err != nil {
			return err
		}

		// Runtime filters come before the limit so that only changesets
		// matching the current selection count towards it.
		filters := append([]filter.Filter{filter.NewRan(ran)}, filter.Runtime(e.db.ShortName(), opts.Contexts, opts.Labels)...)
		filters = append(filters, limits...)

		e.logger.InfoContext(ctx, "Rolling back changesets", "changelog", cl.FilePath())

		it := iterator.New(e.iterator(cl, iterator.FromHistory(ran, cl), filters))
		rb := visitor.NewRollback(e.db, e.history, e.execOptions(opts))
		runErr := it.Run(ctx, rb)

		rolledBack = rb.RolledBack()
		return runErr
	})

	if e.fastCheck != nil {
		e.fastCheck.Clear()
	}

	if err != nil {
		return rolledBack, err
	}

	e.logger.InfoContext(ctx, "Rollback complete", "changesets", len(rolledBack))
	return rolledBack, nil
}
