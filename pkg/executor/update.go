package executor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/fastcheck"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

type (
	// UpdateOptions narrows an update. Count and Tag are mutually exclusive.
	UpdateOptions struct {
		Options

		// Count stops after this many changesets when positive
		Count int

		// Tag stops after the changeset that applied this tag
		Tag string
	}

	// UpdateResult describes one update run.
	UpdateResult struct {
		// Results lists every visited changeset with its outcome
		Results []visitor.Result

		// Failed holds the changeset that stopped the run. Changesets with
		// failOnError=false appear in Results as FAILED instead.
		Failed []*changelog.ChangeSet

		// SkippedDueToFailure lists changesets not attempted because of the
		// failure
		SkippedDueToFailure []*changelog.ChangeSet

		// UpToDate is set when the fast check found nothing to run
		UpToDate bool

		// Duration is the wall time of the run
		Duration time.Duration
	}
)

// Count returns the number of changesets recorded as ran.
func (r *UpdateResult) Count() int {
	n := 0
	for _, res := range r.Results {
		if res.ExecType.Ran() {
			n++
		}
	}

	return n
}

// Update applies every pending changeset.
//
// This method handles the complete update lifecycle:
//   - Returns early without locking when the fast check reports up to date
//   - Acquires the migration lock and prepares the history store
//   - Validates the changelog and checks changelog preconditions
//   - Runs pending changesets in order, recording each outcome
//
// Example usage:
//
//	result, err := exec.Update(ctx, cl, executor.Options{Contexts: contexts})
//	if err != nil {
//		var mf *changelog.MigrationFailedError
//		if errors.As(err, &mf) {
//			log.Printf("changeset %s failed", mf.ChangeSet)
//		}
//		return err
//	}
func (e *Executor) Update(ctx context.Context, cl *changelog.DatabaseChangeLog, opts Options) (*UpdateResult, error) {
	return e.update(ctx, cl, UpdateOptions{Options: opts})
}

// UpdateCount applies the next count pending changesets.
func (e *Executor) UpdateCount(ctx context.Context, cl *changelog.DatabaseChangeLog, count int, opts Options) (*UpdateResult, error) {
	if count <= 0 {
		return nil, errors.Errorf("update count must be positive, got %d", count)
	}

	return e.update(ctx, cl, UpdateOptions{Options: opts, Count: count})
}

// UpdateToTag applies pending changesets up to and including the one that
// applied tag.
func (e *Executor) UpdateToTag(ctx context.Context, cl *changelog.DatabaseChangeLog, tag string, opts Options) (*UpdateResult, error) {
	if tag == "" {
		return nil, errors.New("update to tag requires a tag")
	}

	return e.update(ctx, cl, UpdateOptions{Options: opts, Tag: tag})
}

func (e *Executor) update(ctx context.Context, cl *changelog.DatabaseChangeLog, opts UpdateOptions) (*UpdateResult, error) {
	start := time.Now()
	result := &UpdateResult{}

	if e.fastCheck != nil && opts.Count == 0 && opts.Tag == "" {
		req := fastcheck.Request{
			DB:        e.db,
			History:   e.history,
			ChangeLog: cl,
			Contexts:  opts.Contexts,
			Labels:    opts.Labels,
		}

		if e.fastCheck.IsUpToDate(ctx, req) {
			e.logger.InfoContext(ctx, "Database is up to date, no changesets to execute", "changelog", cl.FilePath())
			result.UpToDate = true
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	err := e.locked(ctx, cl, func() error {
		if err := e.validate(ctx, cl, opts.Options, false); err != nil {
			return err
		}

		if err := cl.CheckPreconditions(ctx, e.db, e.history); err != nil {
			return err
		}

		ran, err := e.history.RanChangeSets(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to load history")
		}

		// The tag filter sees every changeset so an already applied tag still
		// closes the range. The count filter only sees pending ones.
		filters := filter.Pending(e.db.ShortName(), ran, opts.Contexts, opts.Labels)
		switch {
		case opts.Count > 0:
			filters = append(filters, filter.NewCount(opts.Count))
		case opts.Tag != "":
			filters = append([]filter.Filter{filter.NewUpToTag(opts.Tag, ran)}, filters...)
		}

		e.logger.InfoContext(ctx, "Updating database",
			"changelog", cl.FilePath(),
			"contexts", opts.Contexts.String(),
			"labels", opts.Labels.String(),
			"deploymentId", e.history.DeploymentID(),
		)

		it := iterator.New(e.iterator(cl, nil, filters))
		update := visitor.NewUpdate(e.db, e.history, e.execOptions(opts.Options))
		runErr := it.Run(ctx, update)

		result.Results = update.Results()
		result.Failed = it.Failed()
		result.SkippedDueToFailure = it.SkippedDueToFailure()
		return runErr
	})

	if e.fastCheck != nil {
		e.fastCheck.Clear()
	}

	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	e.logger.InfoContext(ctx, "Update complete", "changesets", result.Count(), "duration", result.Duration)
	return result, nil
}
