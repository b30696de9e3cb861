package visitor

import (
	"context"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
)

// ChangeLogSync records changesets as executed without running them. It is
// used to adopt a database whose schema was applied by other means.
type ChangeLogSync struct {
	history history.Service
	synced  []*changelog.ChangeSet
}

var _ iterator.Visitor = (*ChangeLogSync)(nil)

// NewChangeLogSync returns a ChangeLogSync visitor.
func NewChangeLogSync(svc history.Service) *ChangeLogSync {
	return &ChangeLogSync{history: svc}
}

func (s *ChangeLogSync) Direction() iterator.Direction { return iterator.Forward }

func (s *ChangeLogSync) Visit(ctx context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	status, err := s.history.RunStatus(ctx, cs)
	if err != nil {
		return err
	}

	// A changed runOnChange changeset only needs its checksum refreshed.
	if status != changelog.NotRan {
		if err := s.history.ReplaceChecksum(ctx, cs); err != nil {
			return err
		}
	} else if err := s.history.SetExecType(ctx, cs, changelog.ExecExecuted); err != nil {
		return err
	}

	iterator.Logger(ctx).InfoContext(ctx, "Marked changeset as ran")
	s.synced = append(s.synced, cs)
	return nil
}

// Synced lists the changesets recorded.
func (s *ChangeLogSync) Synced() []*changelog.ChangeSet { return s.synced }
