package changelog

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

const (
	RunOrderDefault RunOrder = ""
	RunOrderFirst   RunOrder = "first"
	RunOrderLast    RunOrder = "last"
)

const (
	ValidationFailHalt    ValidationFailPolicy = "HALT"
	ValidationFailMarkRan ValidationFailPolicy = "MARK_RAN"
)

type (
	// RunOrder moves a changeset to the start or end of the changelog.
	RunOrder string

	// ValidationFailPolicy decides what happens to a changeset that fails
	// validation.
	ValidationFailPolicy string

	// ChangeSet is the unit of change tracked in history.
	ChangeSet struct {
		ID     string
		Author string

		// FilePath is the normalised path used in the changeset identity. It is
		// the logical path when one is set.
		FilePath        string
		LogicalFilePath string

		Changes       []change.Change
		Rollback      []change.Change
		Visitors      []*change.SQLVisitor
		Preconditions *precondition.Container

		Contexts          *selector.Expression
		InheritedContexts []*selector.Expression
		Labels            selector.Labels
		InheritedLabels   selector.Labels
		Dbms              []string

		AlwaysRun        bool
		RunOnChange      bool
		RunInTransaction bool
		FailOnError      bool
		Ignore           bool
		InheritedIgnore  bool

		RunOrder              RunOrder
		RunWith               string
		RunWithSpoolFile      string
		Created               string
		Comments              string
		ObjectQuotingStrategy string
		OnValidationFail      ValidationFailPolicy
		ValidCheckSums        []string

		// ChangeLog is the file the changeset was defined in.
		ChangeLog *DatabaseChangeLog

		// ValidationFailed is set by validation when OnValidationFail is
		// MARK_RAN, causing Execute to mark the changeset as ran.
		ValidationFailed bool

		// Populated by Execute.
		ExecType     ExecType
		GeneratedSQL []string
		ErrorMessage string
		StartedAt    time.Time
		FinishedAt   time.Time

		checksums map[checksumKey]checksum.CheckSum
	}

	checksumKey struct {
		version  checksum.Version
		database string
	}
)

// NewChangeSet returns a changeset with default attributes, owned by cl.
func NewChangeSet(id, author string, cl *DatabaseChangeLog) *ChangeSet {
	cs := &ChangeSet{
		ID:               id,
		Author:           author,
		RunInTransaction: true,
		FailOnError:      true,
		OnValidationFail: ValidationFailHalt,
		ChangeLog:        cl,
	}

	if cl != nil {
		cs.FilePath = cl.FilePath()
	}

	return cs
}

// ParseRunOrder validates a runOrder attribute.
func ParseRunOrder(s string) (RunOrder, error) {
	switch ro := RunOrder(strings.ToLower(strings.TrimSpace(s))); ro {
	case RunOrderDefault, RunOrderFirst, RunOrderLast:
		return ro, nil
	default:
		return "", errors.Errorf("invalid runOrder %q: expected first or last", s)
	}
}

// Load populates the changeset from a changeSet node whose parameters have
// already been expanded. Unknown child nodes that have children of their own
// are rejected when strict is set.
func (cs *ChangeSet) Load(n *node.Node, lc change.LoadContext, strict bool) error {
	if err := cs.loadAttributes(n); err != nil {
		return err
	}

	for _, child := range n.Children {
		if err := cs.loadChild(child, lc, strict); err != nil {
			return err
		}
	}

	return nil
}

func (cs *ChangeSet) loadAttributes(n *node.Node) error {
	var err error
	strs := []struct {
		name string
		dst  *string
	}{
		{"id", &cs.ID},
		{"author", &cs.Author},
		{"runWith", &cs.RunWith},
		{"runWithSpoolFile", &cs.RunWithSpoolFile},
		{"created", &cs.Created},
		{"objectQuotingStrategy", &cs.ObjectQuotingStrategy},
		{"logicalFilePath", &cs.LogicalFilePath},
	}

	for _, s := range strs {
		if *s.dst, err = n.ChildString(s.name, *s.dst); err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(*s.dst)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"alwaysRun", &cs.AlwaysRun},
		{"runAlways", &cs.AlwaysRun},
		{"runOnChange", &cs.RunOnChange},
		{"runInTransaction", &cs.RunInTransaction},
		{"failOnError", &cs.FailOnError},
		{"ignore", &cs.Ignore},
	}

	for _, b := range bools {
		if *b.dst, err = n.ChildBool(b.name, *b.dst); err != nil {
			return err
		}
	}

	rawContexts, err := n.ChildString("contextFilter", "")
	if err != nil {
		return err
	}

	if rawContexts == "" {
		if rawContexts, err = n.ChildString("context", ""); err != nil {
			return err
		}
	}

	if cs.Contexts, err = selector.ParseExpression(rawContexts); err != nil {
		return &node.Error{Path: n.Path(), Message: err.Error()}
	}

	labels, err := n.ChildString("labels", "")
	if err != nil {
		return err
	}
	cs.Labels = selector.NewLabels(labels)

	dbms, err := n.ChildString("dbms", "")
	if err != nil {
		return err
	}
	cs.Dbms = selector.SplitDatabases(dbms)

	runOrder, err := n.ChildString("runOrder", "")
	if err != nil {
		return err
	}
	cs.RunOrder = RunOrder(strings.ToLower(strings.TrimSpace(runOrder)))

	onValidationFail, err := n.ChildString("onValidationFail", string(ValidationFailHalt))
	if err != nil {
		return err
	}

	switch p := ValidationFailPolicy(strings.ToUpper(strings.TrimSpace(onValidationFail))); p {
	case ValidationFailHalt, ValidationFailMarkRan:
		cs.OnValidationFail = p
	default:
		return &node.Error{Path: n.Path(), Message: fmt.Sprintf("invalid onValidationFail %q", onValidationFail)}
	}

	var comments []string
	for _, c := range n.ChildrenNamed("comment") {
		comments = append(comments, c.String())
	}
	cs.Comments = strings.TrimSpace(strings.Join(comments, "\n"))

	if cs.LogicalFilePath != "" {
		cs.FilePath = NormalizePath(cs.LogicalFilePath)
	}

	return nil
}

func (cs *ChangeSet) loadChild(child *node.Node, lc change.LoadContext, strict bool) error {
	switch child.Name {
	case "rollback":
		return cs.loadRollback(child, lc, strict)
	case "validCheckSum", "validCheckSums":
		cs.ValidCheckSums = append(cs.ValidCheckSums, scalars(child)...)
		return nil
	case "modifySql":
		visitors, err := change.LoadSQLVisitors(child)
		if err != nil {
			return err
		}
		cs.Visitors = append(cs.Visitors, visitors...)
		return nil
	case "preConditions":
		c, err := precondition.Load(child)
		if err != nil {
			return err
		}
		cs.Preconditions = c
		return nil
	case "changes":
		for _, c := range child.Children {
			if err := cs.loadChild(c, lc, strict); err != nil {
				return err
			}
		}
		return nil
	}

	c, err := toChange(child, lc, strict)
	if err != nil || c == nil {
		return err
	}

	cs.Changes = append(cs.Changes, c)
	return nil
}

func (cs *ChangeSet) loadRollback(n *node.Node, lc change.LoadContext, strict bool) error {
	refID, err := n.ChildString("changeSetId", "")
	if err != nil {
		return err
	}

	if refID != "" {
		return cs.loadRollbackReference(n, refID)
	}

	found := false
	for _, child := range n.Children {
		c, err := toChange(child, lc, strict)
		if err != nil {
			return err
		}

		if c != nil {
			cs.Rollback = append(cs.Rollback, c)
			found = true
		}
	}

	switch v := n.Value.(type) {
	case nil:
	case string:
		for _, stmt := range change.SplitStatements(v, true, true, ";") {
			cs.Rollback = append(cs.Rollback, &change.SQL{SQL: stmt})
			found = true
		}
	default:
		return &node.Error{Path: n.Path(), Message: fmt.Sprintf("unexpected rollback value %T", v)}
	}

	if !found {
		cs.Rollback = append(cs.Rollback, &change.Empty{})
	}

	return nil
}

func (cs *ChangeSet) loadRollbackReference(n *node.Node, id string) error {
	author, err := n.ChildString("changeSetAuthor", "")
	if err != nil {
		return err
	}

	path, err := n.ChildString("changeSetPath", cs.FilePath)
	if err != nil {
		return err
	}

	var matches []*ChangeSet
	for cl := cs.ChangeLog; cl != nil && len(matches) == 0; cl = cl.Parent() {
		matches = cl.find(path, id, author)
	}

	if len(matches) == 0 {
		return &node.Error{
			Path:    n.Path(),
			Message: fmt.Sprintf("changeset %s::%s::%s does not exist", NormalizePath(path), id, author),
		}
	}

	for _, m := range matches {
		cs.Rollback = append(cs.Rollback, m.Changes...)
	}

	return nil
}

func toChange(n *node.Node, lc change.LoadContext, strict bool) (change.Change, error) {
	c, ok := change.New(n.Name)
	if !ok {
		if strict && n.HasChildren() {
			return nil, &node.Error{
				Path:    n.Path(),
				Message: fmt.Sprintf("unknown change type '%s'", n.Name),
			}
		}

		return nil, nil
	}

	if err := c.Load(n, lc); err != nil {
		return nil, errors.Wrapf(err, "invalid %s change", n.Name)
	}

	return c, nil
}

func scalars(n *node.Node) []string {
	var out []string
	switch v := n.Value.(type) {
	case nil:
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	default:
		out = append(out, n.String())
	}

	for _, c := range n.Children {
		out = append(out, scalars(c)...)
	}

	return out
}

// String returns the changeset identity, path::id::author.
func (cs *ChangeSet) String() string {
	return cs.FilePath + "::" + cs.ID + "::" + cs.Author
}

// StringWithCheckSum appends the current checksum to the identity.
func (cs *ChangeSet) StringWithCheckSum(v checksum.Version, database string) string {
	return fmt.Sprintf("%s::(Checksum: %s)", cs, cs.CheckSum(v, database))
}

// Description summarises the changes for the history table.
func (cs *ChangeSet) Description() string {
	if len(cs.Changes) == 0 {
		return "empty"
	}

	descs := make([]string, 0, len(cs.Changes))
	for _, c := range cs.Changes {
		descs = append(descs, c.Description())
	}

	desc := strings.Join(descs, "; ")
	if len(desc) > 250 {
		desc = desc[:247] + "..."
	}

	return desc
}

// IsSameAs reports whether both changesets share an identity.
func (cs *ChangeSet) IsSameAs(o *ChangeSet) bool {
	return sameIdentity(cs.FilePath, cs.ID, cs.Author, o.FilePath, o.ID, o.Author)
}

// IsIgnored reports whether the changeset or its including changelog is
// marked ignore.
func (cs *ChangeSet) IsIgnored() bool {
	return cs.Ignore || cs.InheritedIgnore
}

// EffectiveLabels returns the changeset labels plus any inherited from
// includes.
func (cs *ChangeSet) EffectiveLabels() selector.Labels {
	if cs.InheritedLabels.IsEmpty() {
		return cs.Labels
	}

	return selector.NewLabels(strings.Join(append(cs.Labels.Values(), cs.InheritedLabels.Values()...), ","))
}

// MatchesContexts reports whether the changeset and every inherited context
// filter admit the runtime contexts.
func (cs *ChangeSet) MatchesContexts(contexts selector.Contexts) bool {
	if !cs.Contexts.Matches(contexts) {
		return false
	}

	for _, e := range cs.InheritedContexts {
		if !e.Matches(contexts) {
			return false
		}
	}

	return true
}

// ContextString renders the changeset's context expression, including
// inherited filters, for the history table.
func (cs *ChangeSet) ContextString() string {
	exprs := append([]*selector.Expression{cs.Contexts}, cs.InheritedContexts...)
	combined, err := selector.And(exprs...)
	if err != nil {
		return cs.Contexts.String()
	}

	return combined.String()
}

// CheckSum computes the changeset checksum with algorithm v for the named
// database. From V9 changes targeted at other databases are excluded. Results
// are cached until ClearCheckSum.
func (cs *ChangeSet) CheckSum(v checksum.Version, database string) checksum.CheckSum {
	key := checksumKey{version: v, database: strings.ToLower(database)}
	if cached, ok := cs.checksums[key]; ok {
		return cached
	}

	var sb strings.Builder
	for _, c := range cs.Changes {
		if v <= checksum.V8 || database == "" || selector.DatabaseMatches(c.Dbms(), database, true) {
			sb.WriteString(c.CheckSum(v).String())
			sb.WriteString(":")
		}
	}

	for _, vis := range cs.Visitors {
		sb.WriteString(vis.CheckSum(v).String())
		sb.WriteString(";")
	}

	sum := checksum.Compute(sb.String(), v)
	if cs.checksums == nil {
		cs.checksums = make(map[checksumKey]checksum.CheckSum)
	}
	cs.checksums[key] = sum

	return sum
}

// ClearCheckSum discards cached checksums.
func (cs *ChangeSet) ClearCheckSum() {
	cs.checksums = nil
}

// IsCheckSumValid reports whether a stored checksum is acceptable for the
// changeset. A zero stored checksum is always valid, as is any wildcard entry
// in ValidCheckSums.
func (cs *ChangeSet) IsCheckSumValid(stored checksum.CheckSum, database string) bool {
	for _, v := range cs.ValidCheckSums {
		if checksum.IsWildcard(v) {
			return true
		}
	}

	if stored.IsZero() {
		return true
	}

	current := cs.CheckSum(stored.Version(), database)
	if current.Equal(stored) {
		return true
	}

	for _, raw := range cs.ValidCheckSums {
		valid, err := checksum.Parse(raw)
		if err != nil {
			continue
		}

		if valid.Equal(current) || valid.Equal(stored) {
			return true
		}
	}

	return false
}

// RunStatus compares the changeset against its history row, which may be
// nil.
func (cs *ChangeSet) RunStatus(ran *RanChangeSet, database string) RunStatus {
	switch {
	case ran == nil:
		return NotRan
	case ran.CheckSum.IsZero():
		return AlreadyRan
	case cs.IsCheckSumValid(ran.CheckSum, database):
		return AlreadyRan
	case cs.RunOnChange:
		return RunAgain
	default:
		return InvalidCheckSum
	}
}

// ValidationErrors reports structural problems that are not parse failures.
func (cs *ChangeSet) ValidationErrors() []string {
	var errs []string
	if cs.ID == "" {
		errs = append(errs, fmt.Sprintf("changeset in %s has no id", cs.FilePath))
	}

	if cs.Author == "" {
		errs = append(errs, fmt.Sprintf("changeset %s has no author", cs))
	}

	if _, err := ParseRunOrder(string(cs.RunOrder)); err != nil {
		errs = append(errs, fmt.Sprintf("changeset %s: %v", cs, err))
	}

	return errs
}

func sameIdentity(pathA, idA, authorA, pathB, idB, authorB string) bool {
	return strings.EqualFold(idA, idB) &&
		strings.EqualFold(authorA, authorB) &&
		NormalizePath(pathA) == NormalizePath(pathB)
}

// Tag returns the tag applied by a tagDatabase change, if any.
func (cs *ChangeSet) Tag() string {
	for _, c := range cs.Changes {
		if t, ok := c.(*change.TagDatabase); ok {
			return t.Tag
		}
	}

	return ""
}
