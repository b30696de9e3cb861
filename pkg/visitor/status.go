package visitor

import (
	"context"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
)

type (
	// ChangeSetStatus explains whether a changeset will run and why.
	ChangeSetStatus struct {
		ChangeSet *changelog.ChangeSet
		WillRun   bool

		// Reasons holds the filter results: the accepting ones when the
		// changeset will run, the denying ones otherwise.
		Reasons []filter.Result

		RunStatus       changelog.RunStatus
		CurrentCheckSum checksum.CheckSum
		StoredCheckSum  checksum.CheckSum
		DateExecuted    time.Time
	}

	// Status records every changeset, run or not. Use it with
	// iterator.NewStatus so denied changesets report all their reasons.
	//
	// Example usage:
	//
	//	status := visitor.NewStatus(db.ShortName(), ran)
	//	if err := iterator.NewStatus(cfg).Run(ctx, status); err != nil {
	//		return err
	//	}
	//
	//	for _, cs := range status.ToRun() {
	//		fmt.Println(cs)
	//	}
	Status struct {
		database string
		ran      []*changelog.RanChangeSet
		statuses []*ChangeSetStatus
	}

	// List collects the changesets that would run.
	List struct {
		changeSets []*changelog.ChangeSet
	}
)

var (
	_ iterator.Visitor        = (*Status)(nil)
	_ iterator.SkippedVisitor = (*Status)(nil)
	_ iterator.Visitor        = (*List)(nil)
)

// NewStatus returns a Status visitor comparing changesets with the history
// rows of the named database.
func NewStatus(database string, ran []*changelog.RanChangeSet) *Status {
	return &Status{database: database, ran: ran}
}

func (s *Status) Direction() iterator.Direction { return iterator.Forward }

func (s *Status) Visit(_ context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, accepted []filter.Result) error {
	s.statuses = append(s.statuses, s.status(cs, true, accepted))
	return nil
}

func (s *Status) Skipped(_ context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, denied []filter.Result) error {
	s.statuses = append(s.statuses, s.status(cs, false, denied))
	return nil
}

// Statuses lists every changeset in changelog order.
func (s *Status) Statuses() []*ChangeSetStatus { return s.statuses }

// ToRun lists the changesets that will run.
func (s *Status) ToRun() []*changelog.ChangeSet {
	var out []*changelog.ChangeSet
	for _, st := range s.statuses {
		if st.WillRun {
			out = append(out, st.ChangeSet)
		}
	}

	return out
}

func (s *Status) status(cs *changelog.ChangeSet, willRun bool, reasons []filter.Result) *ChangeSetStatus {
	st := &ChangeSetStatus{
		ChangeSet:       cs,
		WillRun:         willRun,
		Reasons:         reasons,
		CurrentCheckSum: cs.CheckSum(checksum.Latest, s.database),
	}

	for _, r := range s.ran {
		if r.IsSameAs(cs) {
			st.StoredCheckSum = r.CheckSum
			st.DateExecuted = r.DateExecuted
			st.RunStatus = cs.RunStatus(r, s.database)
			break
		}
	}

	return st
}

// NewList returns an empty List visitor.
func NewList() *List { return &List{} }

func (l *List) Direction() iterator.Direction { return iterator.Forward }

func (l *List) Visit(_ context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	l.changeSets = append(l.changeSets, cs)
	return nil
}

// ChangeSets lists the visited changesets in changelog order.
func (l *List) ChangeSets() []*changelog.ChangeSet { return l.changeSets }
