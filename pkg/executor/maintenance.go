package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

// Tag labels the most recently applied changeset with tag. On an empty
// history a placeholder row carries the tag.
func (e *Executor) Tag(ctx context.Context, tag string) error {
	if tag == "" {
		return errors.New("tag requires a name")
	}

	return e.locked(ctx, nil, func() error {
		if err := e.history.Tag(ctx, tag); err != nil {
			return errors.Wrapf(err, "failed to tag database with %s", tag)
		}

		e.logger.InfoContext(ctx, "Tagged database", "tag", tag)
		return nil
	})
}

// TagExists reports whether any history row carries tag.
func (e *Executor) TagExists(ctx context.Context, tag string) (bool, error) {
	e.history.Reset()
	return e.history.TagExists(ctx, tag)
}

// ChangeLogSync records every pending changeset as executed without running
// it. Changed runOnChange changesets get their stored checksum replaced.
//
// Example usage:
//
//	synced, err := exec.ChangeLogSync(ctx, cl, executor.Options{})
//	if err != nil {
//		return err
//	}
//
//	fmt.Printf("marked %d changesets as ran\n", len(synced))
func (e *Executor) ChangeLogSync(ctx context.Context, cl *changelog.DatabaseChangeLog, opts Options) ([]*changelog.ChangeSet, error) {
	var synced []*changelog.ChangeSet

	err := e.locked(ctx, cl, func() error {
		ran, err := e.history.RanChangeSets(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to load history")
		}

		it := iterator.New(e.iterator(cl, nil, filter.Pending(e.db.ShortName(), ran, opts.Contexts, opts.Labels)))
		sync := visitor.NewChangeLogSync(e.history)
		runErr := it.Run(ctx, sync)

		synced = sync.Synced()
		return runErr
	})

	if e.fastCheck != nil {
		e.fastCheck.Clear()
	}

	return synced, err
}

// ClearCheckSums removes every stored checksum. They are recomputed from the
// changelog on the next operation that writes history.
func (e *Executor) ClearCheckSums(ctx context.Context) error {
	return e.locked(ctx, nil, func() error {
		if err := e.history.ClearAllCheckSums(ctx); err != nil {
			return errors.Wrap(err, "failed to clear checksums")
		}

		e.logger.InfoContext(ctx, "Cleared all checksums")
		return nil
	})
}
