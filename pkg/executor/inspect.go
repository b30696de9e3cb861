package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

// StatusReport describes every changeset of a changelog relative to history.
type StatusReport struct {
	// ChangeSets holds one entry per changeset in execution order
	ChangeSets []*visitor.ChangeSetStatus

	// Unexpected lists history rows with no matching changeset in the
	// changelog
	Unexpected []*changelog.RanChangeSet
}

// Pending returns the statuses of changesets that would run.
func (r *StatusReport) Pending() []*visitor.ChangeSetStatus {
	var out []*visitor.ChangeSetStatus
	for _, s := range r.ChangeSets {
		if s.WillRun {
			out = append(out, s)
		}
	}

	return out
}

// Status reports which changesets an update would run and, for the others,
// every reason they would not.
//
// Example usage:
//
//	report, err := exec.Status(ctx, cl, executor.Options{Contexts: contexts})
//	if err != nil {
//		return err
//	}
//
//	fmt.Printf("%d changesets have not been applied\n", len(report.Pending()))
func (e *Executor) Status(ctx context.Context, cl *changelog.DatabaseChangeLog, opts Options) (*StatusReport, error) {
	e.history.Reset()

	ran, err := e.history.RanChangeSets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load history")
	}

	status := visitor.NewStatus(e.db.ShortName(), ran)
	it := iterator.NewStatus(e.iterator(cl, nil, filter.Pending(e.db.ShortName(), ran, opts.Contexts, opts.Labels)))
	if err := it.Run(ctx, status); err != nil {
		return nil, err
	}

	report := &StatusReport{ChangeSets: status.Statuses()}
	for _, r := range ran {
		if cl.ChangeSet(r.ChangeLog, r.ID, r.Author) == nil {
			report.Unexpected = append(report.Unexpected, r)
		}
	}

	return report, nil
}

// History lists the history rows in execution order.
func (e *Executor) History(ctx context.Context) ([]*changelog.RanChangeSet, error) {
	e.history.Reset()

	ran, err := e.history.RanChangeSets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load history")
	}

	return ran, nil
}

// Validate checks the changelog against history without changing anything.
// It returns a *visitor.ValidationFailedError listing every problem found:
// checksum mismatches, duplicate identifiers, changeset attribute and change
// validation errors, and failed changelog preconditions.
func (e *Executor) Validate(ctx context.Context, cl *changelog.DatabaseChangeLog, opts Options) error {
	e.history.Reset()
	return e.validate(ctx, cl, opts, true)
}

func (e *Executor) validate(ctx context.Context, cl *changelog.DatabaseChangeLog, opts Options, preconditions bool) error {
	ran, err := e.history.RanChangeSets(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load history")
	}

	v := visitor.NewValidating(e.db, ran, e.allowDuplicates)
	if preconditions {
		v.CheckPreconditions(ctx, cl, e.history)
	}

	it := iterator.New(e.iterator(cl, nil, filter.Runtime(e.db.ShortName(), opts.Contexts, opts.Labels)))
	if err := it.Run(ctx, v); err != nil {
		return err
	}

	if err := v.Err(); err != nil {
		e.logger.ErrorContext(ctx, "Validation failed", "changelog", cl.FilePath())
		return err
	}

	return nil
}
