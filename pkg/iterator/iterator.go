package iterator

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
)

const (
	// Forward visits changesets in changelog order, as an update does.
	Forward Direction = iota

	// Reverse visits changesets from last to first, as a rollback does.
	Reverse
)

type (
	// Direction is the order in which changesets are visited.
	Direction int

	// Visitor is called for every changeset the filters accept.
	Visitor interface {
		Direction() Direction
		Visit(ctx context.Context, cs *changelog.ChangeSet, cl *changelog.DatabaseChangeLog, accepted []filter.Result) error
	}

	// SkippedVisitor is implemented by visitors that also want the changesets
	// the filters deny, with the reasons for the denial.
	SkippedVisitor interface {
		Skipped(ctx context.Context, cs *changelog.ChangeSet, cl *changelog.DatabaseChangeLog, denied []filter.Result) error
	}

	// Config controls an iterator.
	Config struct {
		// ChangeLog supplies the changesets, in execution order.
		ChangeLog *changelog.DatabaseChangeLog

		// ChangeSets replaces the changelog's own list when set. FromHistory
		// uses it to walk changesets in the order they ran.
		ChangeSets []*changelog.ChangeSet

		// Filters are evaluated in order for every changeset.
		Filters []filter.Filter

		// Database is the short name of the target, attached to the scoped
		// logger.
		Database string

		// DeploymentID is attached to the scoped logger.
		DeploymentID string

		// AllowDuplicates skips changesets whose identity, labels, contexts and
		// dbms were already visited instead of visiting them again.
		AllowDuplicates bool

		// Logger is the parent of the per-changeset logger. Defaults to
		// slog.Default().
		Logger *slog.Logger
	}

	// ChangeLogIterator visits changesets that every filter accepts. Filters
	// are evaluated in order and evaluation stops at the first denial, so a
	// skipped changeset reports a single reason.
	//
	// Example usage:
	//
	//	it := iterator.New(iterator.Config{
	//		ChangeLog: cl,
	//		Filters:   filters,
	//		Database:  db.ShortName(),
	//	})
	//
	//	if err := it.Run(ctx, visitor.NewUpdate(db, history, opts)); err != nil {
	//		return err
	//	}
	ChangeLogIterator struct {
		cfg      Config
		seen     map[string]bool
		evaluate func(cs *changelog.ChangeSet) ([]filter.Result, []filter.Result)

		failed  []*changelog.ChangeSet
		skipped []*changelog.ChangeSet
	}

	// StatusChangeLogIterator evaluates every filter for every changeset so a
	// skipped changeset reports all the reasons it will not run.
	//
	// Two filters are special cased to avoid contradictory reports. The count
	// filter is only consulted while no other filter has denied the
	// changeset, and a changeset carrying the up-to-tag target that was
	// denied for another reason still closes the tag range.
	StatusChangeLogIterator struct {
		*ChangeLogIterator
	}

	scopeKey struct{}

	scope struct {
		cs     *changelog.ChangeSet
		logger *slog.Logger
	}
)

// New returns an iterator that stops at the first denying filter.
func New(cfg Config) *ChangeLogIterator {
	it := &ChangeLogIterator{cfg: cfg, seen: make(map[string]bool)}
	it.evaluate = it.shortCircuit
	return it
}

// NewStatus returns an iterator that evaluates every filter.
func NewStatus(cfg Config) *StatusChangeLogIterator {
	it := &StatusChangeLogIterator{ChangeLogIterator: New(cfg)}
	it.evaluate = it.exhaustive
	return it
}

// FromHistory returns the changesets of cl recorded in ran, in the order of
// the history rows. Rows without a matching changeset are dropped.
func FromHistory(ran []*changelog.RanChangeSet, cl *changelog.DatabaseChangeLog) []*changelog.ChangeSet {
	out := make([]*changelog.ChangeSet, 0, len(ran))
	for _, r := range ran {
		if cs := cl.ChangeSet(r.ChangeLog, r.ID, r.Author); cs != nil {
			out = append(out, cs)
		}
	}

	return out
}

// Run walks the changesets in the visitor's direction. Accepted changesets
// are passed to Visit; denied ones to Skipped when the visitor implements
// SkippedVisitor. The first error returned by the visitor stops the walk and
// is returned unchanged.
func (it *ChangeLogIterator) Run(ctx context.Context, v Visitor) error {
	list := it.cfg.ChangeSets
	if list == nil && it.cfg.ChangeLog != nil {
		list = it.cfg.ChangeLog.ChangeSets()
	}

	list = slices.Clone(list)
	if v.Direction() == Reverse {
		slices.Reverse(list)
	}

	skipper, _ := v.(SkippedVisitor)
	for i, cs := range list {
		accepted, denied := it.evaluate(cs)
		csCtx := it.scoped(ctx, cs)

		if len(denied) > 0 || it.alreadySaw(cs) {
			if skipper == nil {
				continue
			}

			if err := skipper.Skipped(csCtx, cs, it.cfg.ChangeLog, denied); err != nil {
				return err
			}
			continue
		}

		if err := v.Visit(csCtx, cs, it.cfg.ChangeLog, accepted); err != nil {
			it.failed = append(it.failed, cs)
			it.skipped = append(it.skipped, list[i+1:]...)
			return err
		}

		it.markSeen(cs)
	}

	return nil
}

// Failed returns the changeset whose visit returned an error, if any.
func (it *ChangeLogIterator) Failed() []*changelog.ChangeSet { return it.failed }

// SkippedDueToFailure returns the changesets never visited because an
// earlier visit failed.
func (it *ChangeLogIterator) SkippedDueToFailure() []*changelog.ChangeSet { return it.skipped }

// Filters returns the configured filters.
func (it *ChangeLogIterator) Filters() []filter.Filter { return it.cfg.Filters }

func (it *ChangeLogIterator) shortCircuit(cs *changelog.ChangeSet) ([]filter.Result, []filter.Result) {
	var accepted []filter.Result
	for _, f := range it.cfg.Filters {
		res := f.Accepts(cs)
		if !res.Accepted {
			return accepted, []filter.Result{res}
		}

		accepted = append(accepted, res)
	}

	return accepted, nil
}

func (it *StatusChangeLogIterator) exhaustive(cs *changelog.ChangeSet) ([]filter.Result, []filter.Result) {
	var accepted, denied []filter.Result
	for _, f := range it.cfg.Filters {
		switch f := f.(type) {
		case *filter.Count:
			if len(denied) > 0 {
				continue
			}
		case *filter.UpToTag:
			if len(denied) > 0 && !f.SeenTag() {
				f.Skip(cs)
				continue
			}
		}

		res := f.Accepts(cs)
		if res.Accepted {
			accepted = append(accepted, res)
		} else {
			denied = append(denied, res)
		}
	}

	return accepted, denied
}

func (it *ChangeLogIterator) scoped(ctx context.Context, cs *changelog.ChangeSet) context.Context {
	logger := it.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"changeset", cs.String()}
	if it.cfg.Database != "" {
		attrs = append(attrs, "database", it.cfg.Database)
	}

	if it.cfg.DeploymentID != "" {
		attrs = append(attrs, "deploymentId", it.cfg.DeploymentID)
	}

	return context.WithValue(ctx, scopeKey{}, scope{cs: cs, logger: logger.With(attrs...)})
}

func (it *ChangeLogIterator) alreadySaw(cs *changelog.ChangeSet) bool {
	return it.cfg.AllowDuplicates && it.seen[Key(cs)]
}

func (it *ChangeLogIterator) markSeen(cs *changelog.ChangeSet) {
	it.seen[Key(cs)] = true
}

// Key identifies a changeset together with its labels, contexts and dbms, so
// duplicated identifiers that differ in those attributes are told apart.
func Key(cs *changelog.ChangeSet) string {
	return cs.String() + ":" + cs.Labels.String() + ":" + cs.Contexts.String() + ":" + strings.Join(cs.Dbms, ",")
}

// Logger returns the logger scoped to the changeset being visited, or
// slog.Default() outside a visit.
func Logger(ctx context.Context) *slog.Logger {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		return s.logger
	}

	return slog.Default()
}

// ChangeSet returns the changeset being visited.
func ChangeSet(ctx context.Context) (*changelog.ChangeSet, bool) {
	s, ok := ctx.Value(scopeKey{}).(scope)
	return s.cs, ok
}
