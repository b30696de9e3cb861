package visitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
)

type (
	// Validating checks a changelog against history before it runs. It
	// collects every problem instead of stopping at the first, and Err
	// summarises them.
	//
	// Changesets whose changes fail validation and that set onValidationFail
	// to MARK_RAN are flagged with ValidationFailed instead of being reported,
	// so a later update records them without running them.
	//
	// Example usage:
	//
	//	v := visitor.NewValidating(db, ran, false)
	//	v.CheckPreconditions(ctx, cl, svc)
	//	if err := iterator.New(cfg).Run(ctx, v); err != nil {
	//		return err
	//	}
	//
	//	return v.Err()
	Validating struct {
		db              database.Database
		ran             map[string]*changelog.RanChangeSet
		rows            []*changelog.RanChangeSet
		allowDuplicates bool
		seen            map[string]bool

		InvalidCheckSums    []string
		Duplicates          []*changelog.ChangeSet
		ValidationErrors    []string
		FailedPreconditions []string
		ErrorPreconditions  []string
	}

	// ValidationFailedError lists everything Validating found.
	ValidationFailedError struct {
		InvalidCheckSums    []string
		Duplicates          []string
		ValidationErrors    []string
		FailedPreconditions []string
		ErrorPreconditions  []string
	}
)

var _ iterator.Visitor = (*Validating)(nil)

// NewValidating returns a visitor validating against the history rows. When
// allowDuplicates is set, repeated identities are not reported.
func NewValidating(db database.Database, ran []*changelog.RanChangeSet, allowDuplicates bool) *Validating {
	v := &Validating{
		db:              db,
		ran:             make(map[string]*changelog.RanChangeSet, len(ran)),
		rows:            ran,
		allowDuplicates: allowDuplicates,
		seen:            make(map[string]bool),
	}

	for _, r := range ran {
		v.ran[r.String()] = r
	}

	return v
}

// CheckPreconditions evaluates the changelog-level preconditions, recording
// failures and errors rather than applying their policies.
func (v *Validating) CheckPreconditions(ctx context.Context, cl *changelog.DatabaseChangeLog, h precondition.History) {
	env := precondition.Env{DB: v.db, History: h, ChangeLogPath: cl.FilePath()}
	if p := cl.Params(); p != nil {
		env.Property = func(name string) (any, bool) { return p.Value(name, cl) }
	}

	for _, c := range cl.Preconditions {
		r := c.Check(ctx, env)
		switch r.Status {
		case precondition.Failed:
			v.FailedPreconditions = append(v.FailedPreconditions, firstOf(c.OnFailMessage, r.Message))
		case precondition.Errored:
			v.ErrorPreconditions = append(v.ErrorPreconditions, firstOf(c.OnErrorMessage, r.Message))
		}
	}
}

func (v *Validating) Direction() iterator.Direction { return iterator.Forward }

func (v *Validating) Visit(ctx context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	if cs.IsIgnored() {
		iterator.Logger(ctx).InfoContext(ctx, "Not validating ignored changeset")
		return nil
	}

	ran := v.find(cs)
	validate := ran == nil || cs.RunOnChange || cs.AlwaysRun

	if errs := cs.ValidationErrors(); len(errs) > 0 {
		v.ValidationErrors = append(v.ValidationErrors, errs...)
		validate = false
	}

	if validate {
		v.validateChanges(ctx, cs)
	}

	if ran != nil && !cs.RunOnChange && !cs.AlwaysRun && !cs.IsCheckSumValid(ran.CheckSum, v.db.ShortName()) {
		v.InvalidCheckSums = append(v.InvalidCheckSums, fmt.Sprintf("%s was: %s but is now: %s",
			cs, ran.CheckSum, cs.CheckSum(ran.CheckSum.Version(), v.db.ShortName())))
	}

	key := strings.ToLower(cs.String())
	if v.seen[key] && !v.allowDuplicates {
		v.Duplicates = append(v.Duplicates, cs)
	}
	v.seen[key] = true

	return nil
}

// Passed reports whether nothing was found.
func (v *Validating) Passed() bool {
	return len(v.InvalidCheckSums) == 0 &&
		len(v.Duplicates) == 0 &&
		len(v.ValidationErrors) == 0 &&
		len(v.FailedPreconditions) == 0 &&
		len(v.ErrorPreconditions) == 0
}

// Err returns a *ValidationFailedError unless validation passed.
func (v *Validating) Err() error {
	if v.Passed() {
		return nil
	}

	dups := make([]string, len(v.Duplicates))
	for i, cs := range v.Duplicates {
		dups[i] = cs.String()
	}

	return &ValidationFailedError{
		InvalidCheckSums:    v.InvalidCheckSums,
		Duplicates:          dups,
		ValidationErrors:    v.ValidationErrors,
		FailedPreconditions: v.FailedPreconditions,
		ErrorPreconditions:  v.ErrorPreconditions,
	}
}

func (v *Validating) validateChanges(ctx context.Context, cs *changelog.ChangeSet) {
	var errs []string
	for _, c := range cs.Changes {
		if err := c.Validate(v.db); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s: %v", cs, c.Name(), err))
		}
	}

	if len(errs) == 0 {
		return
	}

	if cs.OnValidationFail == changelog.ValidationFailMarkRan {
		iterator.Logger(ctx).InfoContext(ctx, "Skipping changeset due to validation errors", "errors", strings.Join(errs, ", "))
		cs.ValidationFailed = true
		return
	}

	v.ValidationErrors = append(v.ValidationErrors, errs...)
}

func (v *Validating) find(cs *changelog.ChangeSet) *changelog.RanChangeSet {
	if r, ok := v.ran[cs.String()]; ok {
		return r
	}

	for _, r := range v.rows {
		if r.IsSameAs(cs) {
			return r
		}
	}

	return nil
}

func (e *ValidationFailedError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}

		fmt.Fprintf(&sb, "\n  %d %s", len(items), title)
		for _, item := range items {
			sb.WriteString("\n    " + item)
		}
	}

	section("changesets check sum", e.InvalidCheckSums)
	section("changesets had duplicate identifiers", e.Duplicates)
	section("changesets had validation errors", e.ValidationErrors)
	section("preconditions failed", e.FailedPreconditions)
	section("preconditions generated an error", e.ErrorPreconditions)

	return sb.String()
}

func firstOf(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}

	return ""
}
