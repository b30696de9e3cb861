package filter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
)

type (
	// ShouldRun accepts changesets that have not been applied yet, those that
	// always run, and runOnChange changesets whose checksum has changed.
	ShouldRun struct {
		Database string
		ran      index
	}

	// Ran accepts only changesets recorded in history. It drives rollbacks.
	Ran struct {
		ran index
	}

	// NotRan accepts only changesets missing from history.
	NotRan struct {
		ran index
	}

	// Count accepts the first Limit changesets it is asked about and denies
	// the rest.
	Count struct {
		Limit int
		seen  int
	}

	// UpToTag accepts changesets up to and including the one that applied Tag,
	// either through a tagDatabase change or a tagged history row.
	UpToTag struct {
		Tag     string
		seenTag bool
		tagged  map[string]bool
	}

	// AfterTag accepts changesets recorded in history after the row carrying
	// Tag. The tagged row itself is kept.
	AfterTag struct {
		Tag   string
		after map[string]bool
	}

	// index finds history rows by changeset identity.
	index map[string]*changelog.RanChangeSet
)

// NewShouldRun returns a ShouldRun filter for the history rows.
func NewShouldRun(database string, ran []*changelog.RanChangeSet) *ShouldRun {
	return &ShouldRun{Database: database, ran: newIndex(ran)}
}

// NewRan returns a Ran filter for the history rows.
func NewRan(ran []*changelog.RanChangeSet) *Ran {
	return &Ran{ran: newIndex(ran)}
}

// NewNotRan returns a NotRan filter for the history rows.
func NewNotRan(ran []*changelog.RanChangeSet) *NotRan {
	return &NotRan{ran: newIndex(ran)}
}

// NewCount returns a filter accepting at most limit changesets.
func NewCount(limit int) *Count {
	return &Count{Limit: limit}
}

// NewUpToTag returns an UpToTag filter. History rows carrying the tag mark
// the changesets they record as the last to run.
func NewUpToTag(tag string, ran []*changelog.RanChangeSet) *UpToTag {
	f := &UpToTag{Tag: tag, tagged: make(map[string]bool)}
	for _, r := range ran {
		if r.Tag != "" && strings.EqualFold(r.Tag, tag) {
			f.tagged[key(r.ChangeLog, r.ID, r.Author)] = true
		}
	}

	return f
}

// NewAfterTag returns an AfterTag filter. The rows must be ordered by
// execution. It fails when no row carries the tag.
//
// Example usage:
//
//	f, err := filter.NewAfterTag("v1.2", ran)
//	if err != nil {
//		return err
//	}
func NewAfterTag(tag string, ran []*changelog.RanChangeSet) (*AfterTag, error) {
	f := &AfterTag{Tag: tag, after: make(map[string]bool)}

	seen := false
	for _, r := range ran {
		matches := strings.EqualFold(r.Tag, tag)
		if seen && !matches {
			f.after[key(r.ChangeLog, r.ID, r.Author)] = true
		}

		if matches {
			seen = true
		}
	}

	if !seen {
		return nil, errors.Errorf("could not find tag '%s' in the database", tag)
	}

	return f, nil
}

func (f *ShouldRun) Accepts(cs *changelog.ChangeSet) Result {
	ran, ok := f.ran.lookup(cs)
	if !ok {
		return Accept(NameShouldRun, "Changeset has not run yet")
	}

	if cs.AlwaysRun {
		return Accept(NameShouldRun, "Changeset always runs")
	}

	if cs.RunOnChange && !cs.IsCheckSumValid(ran.CheckSum, f.Database) {
		return Accept(NameShouldRun, "Changeset checksum changed")
	}

	return Deny(NameShouldRun, "Changeset already ran")
}

func (f *Ran) Accepts(cs *changelog.ChangeSet) Result {
	if _, ok := f.ran.lookup(cs); ok {
		return Accept(NameRan, "Changeset ran")
	}

	return Deny(NameRan, "Changeset has not run")
}

func (f *NotRan) Accepts(cs *changelog.ChangeSet) Result {
	if _, ok := f.ran.lookup(cs); ok {
		return Deny(NameNotRan, "Changeset already ran")
	}

	return Accept(NameNotRan, "Changeset has not run")
}

func (f *Count) Accepts(*changelog.ChangeSet) Result {
	f.seen++
	if f.seen > f.Limit {
		return Deny(NameCount, "Only running %d changesets", f.Limit)
	}

	return Accept(NameCount, "Changeset %d of %d", f.seen, f.Limit)
}

func (f *UpToTag) Accepts(cs *changelog.ChangeSet) Result {
	if f.seenTag {
		return Deny(NameUpToTag, "Changeset is after tag '%s'", f.Tag)
	}

	if f.carriesTag(cs) {
		f.seenTag = true
		return Accept(NameUpToTag, "Changeset is tag '%s'", f.Tag)
	}

	return Accept(NameUpToTag, "Changeset is before tag '%s'", f.Tag)
}

// SeenTag reports whether the changeset carrying the tag has been passed.
func (f *UpToTag) SeenTag() bool {
	return f.seenTag
}

// Skip records cs without evaluating it. A skipped changeset carrying the tag
// still ends the accepted range.
func (f *UpToTag) Skip(cs *changelog.ChangeSet) {
	if f.carriesTag(cs) {
		f.seenTag = true
	}
}

func (f *UpToTag) carriesTag(cs *changelog.ChangeSet) bool {
	if t := cs.Tag(); t != "" && strings.EqualFold(t, f.Tag) {
		return true
	}

	return f.tagged[key(cs.FilePath, cs.ID, cs.Author)]
}

func (f *AfterTag) Accepts(cs *changelog.ChangeSet) Result {
	if f.after[key(cs.FilePath, cs.ID, cs.Author)] {
		return Accept(NameAfterTag, "Changeset is after tag '%s'", f.Tag)
	}

	return Deny(NameAfterTag, "Changeset is at or before tag '%s'", f.Tag)
}

func newIndex(ran []*changelog.RanChangeSet) index {
	idx := make(index, len(ran))
	for _, r := range ran {
		if r.ExecType.Ran() {
			idx[key(r.ChangeLog, r.ID, r.Author)] = r
		}
	}

	return idx
}

func (idx index) lookup(cs *changelog.ChangeSet) (*changelog.RanChangeSet, bool) {
	r, ok := idx[key(cs.FilePath, cs.ID, cs.Author)]
	return r, ok
}

func key(path, id, author string) string {
	return changelog.NormalizePath(path) + "::" + strings.ToLower(id) + "::" + strings.ToLower(author)
}
