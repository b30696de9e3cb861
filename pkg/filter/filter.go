package filter

import (
	"fmt"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

// Filter names reported in Result.Filter.
const (
	NameContext   = "contextFilter"
	NameLabel     = "labelsFilter"
	NameDbms      = "dbmsFilter"
	NameShouldRun = "alreadyRan"
	NameCount     = "countFilter"
	NameUpToTag   = "upToTag"
	NameIgnore    = "ignored"
	NameAfterTag  = "afterTag"
	NameRan       = "ran"
	NameNotRan    = "notRan"
)

type (
	// Filter decides whether a changeset should be visited.
	Filter interface {
		Accepts(cs *changelog.ChangeSet) Result
	}

	// Result is the outcome of a single filter.
	Result struct {
		Accepted bool
		Message  string
		Filter   string
	}

	// Func adapts a function to the Filter interface.
	Func func(cs *changelog.ChangeSet) Result

	// Context accepts changesets whose context expressions, including those
	// inherited from includes, match the runtime contexts.
	Context struct {
		Contexts selector.Contexts
	}

	// Label accepts changesets whose labels satisfy the runtime label
	// expression.
	Label struct {
		Labels *selector.Expression
	}

	// Dbms accepts changesets targeting the named database.
	Dbms struct {
		Database string
	}

	// Ignore rejects changesets marked ignore, directly or by an include.
	Ignore struct{}
)

// Accept builds an accepting Result.
func Accept(filter, format string, args ...any) Result {
	return Result{Accepted: true, Message: fmt.Sprintf(format, args...), Filter: filter}
}

// Deny builds a rejecting Result.
func Deny(filter, format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Filter: filter}
}

func (f Func) Accepts(cs *changelog.ChangeSet) Result { return f(cs) }

func (r Result) String() string {
	verdict := "denied"
	if r.Accepted {
		verdict = "accepted"
	}

	return fmt.Sprintf("%s %s: %s", r.Filter, verdict, r.Message)
}

func (f *Context) Accepts(cs *changelog.ChangeSet) Result {
	if f.Contexts.IsEmpty() {
		return Accept(NameContext, "No runtime context specified, all contexts will run")
	}

	expr := cs.ContextString()
	if expr == "" {
		return Accept(NameContext, "Changeset runs under all contexts")
	}

	if cs.MatchesContexts(f.Contexts) {
		return Accept(NameContext, "Context matches '%s'", f.Contexts)
	}

	return Deny(NameContext, "Context does not match '%s'", f.Contexts)
}

func (f *Label) Accepts(cs *changelog.ChangeSet) Result {
	if f.Labels.IsEmpty() {
		return Accept(NameLabel, "No runtime labels specified, all labels will run")
	}

	labels := cs.EffectiveLabels()
	if labels.IsEmpty() {
		return Accept(NameLabel, "Changeset runs under all labels")
	}

	if f.Labels.Matches(labels) {
		return Accept(NameLabel, "Labels matches '%s'", f.Labels)
	}

	return Deny(NameLabel, "Labels does not match '%s'", f.Labels)
}

func (f *Dbms) Accepts(cs *changelog.ChangeSet) Result {
	if len(cs.Dbms) == 0 {
		return Accept(NameDbms, "Changeset applies to all databases")
	}

	list := strings.Join(cs.Dbms, ", ")
	if selector.DatabaseMatches(cs.Dbms, f.Database, true) {
		return Accept(NameDbms, "Database '%s' matches %s", f.Database, list)
	}

	return Deny(NameDbms, "Database '%s' does not match %s", f.Database, list)
}

func (Ignore) Accepts(cs *changelog.ChangeSet) Result {
	if cs.IsIgnored() {
		return Deny(NameIgnore, "Changeset is ignored")
	}

	return Accept(NameIgnore, "Changeset is not ignored")
}

// Runtime returns the filters selecting changesets for the runtime contexts,
// labels and database, in the order an update applies them after its history
// filter.
func Runtime(database string, contexts selector.Contexts, labels *selector.Expression) []Filter {
	return []Filter{
		&Context{Contexts: contexts},
		&Label{Labels: labels},
		&Dbms{Database: database},
		Ignore{},
	}
}

// Pending returns the chain an update uses: changesets that should run and
// match the runtime selection.
func Pending(database string, ran []*changelog.RanChangeSet, contexts selector.Contexts, labels *selector.Expression) []Filter {
	return append([]Filter{NewShouldRun(database, ran)}, Runtime(database, contexts, labels)...)
}
