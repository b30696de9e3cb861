package changelog

import (
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/params"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

// DatabaseChangeLog is one changelog file. After loading, a changelog holds
// its own changesets followed by those of everything it includes, ordered by
// run order.
type DatabaseChangeLog struct {
	PhysicalPath string
	LogicalPath  string

	// Preconditions holds the changelog's own preConditions block followed by
	// those of included changelogs.
	Preconditions []*precondition.Container

	// IncludeContexts, IncludeLabels and IncludeIgnore are inherited from
	// the include that loaded this changelog.
	IncludeContexts *selector.Expression
	IncludeLabels   selector.Labels
	IncludeIgnore   bool

	// Contexts is the changelog-level context attribute.
	Contexts *selector.Expression

	parent *DatabaseChangeLog
	root   *DatabaseChangeLog
	params *params.Parameters

	first   []*ChangeSet
	middle  []*ChangeSet
	last    []*ChangeSet
	skipped []*ChangeSet

	removals    []removal
	currentNode *node.Node
}

// New returns an empty changelog for the file at path.
func New(path string, p *params.Parameters) *DatabaseChangeLog {
	cl := &DatabaseChangeLog{PhysicalPath: NormalizePath(path), params: p}
	cl.root = cl
	return cl
}

func newChild(path string, parent *DatabaseChangeLog) *DatabaseChangeLog {
	return &DatabaseChangeLog{
		PhysicalPath: NormalizePath(path),
		parent:       parent,
		root:         parent.root,
		params:       parent.params,
	}
}

// FilePath is the path used in changeset identities: the logical path when
// set, otherwise the physical path.
func (cl *DatabaseChangeLog) FilePath() string {
	if cl.LogicalPath != "" {
		return cl.LogicalPath
	}

	return cl.PhysicalPath
}

func (cl *DatabaseChangeLog) LogicalFilePath() string  { return cl.FilePath() }
func (cl *DatabaseChangeLog) PhysicalFilePath() string { return cl.PhysicalPath }

// CurrentChangeSetNode returns the changeSet node being loaded, if any.
func (cl *DatabaseChangeLog) CurrentChangeSetNode() *node.Node { return cl.currentNode }

// Parent returns the including changelog, or nil for the root.
func (cl *DatabaseChangeLog) Parent() *DatabaseChangeLog { return cl.parent }

// Root returns the top of the include tree.
func (cl *DatabaseChangeLog) Root() *DatabaseChangeLog { return cl.root }

// Params returns the parameter store shared by the include tree.
func (cl *DatabaseChangeLog) Params() *params.Parameters { return cl.params }

// AddChangeSet places cs according to its run order. First changesets follow
// earlier first ones, last changesets go to the very end and everything else
// goes between the two.
func (cl *DatabaseChangeLog) AddChangeSet(cs *ChangeSet) {
	switch cs.RunOrder {
	case RunOrderFirst:
		cl.first = append(cl.first, cs)
	case RunOrderLast:
		cl.last = append(cl.last, cs)
	default:
		cl.middle = append(cl.middle, cs)
	}
}

// ChangeSets returns the changesets in execution order.
func (cl *DatabaseChangeLog) ChangeSets() []*ChangeSet {
	out := make([]*ChangeSet, 0, len(cl.first)+len(cl.middle)+len(cl.last))
	out = append(out, cl.first...)
	out = append(out, cl.middle...)
	return append(out, cl.last...)
}

// SkippedChangeSets returns changesets excluded by their dbms attribute.
func (cl *DatabaseChangeLog) SkippedChangeSets() []*ChangeSet {
	return append([]*ChangeSet(nil), cl.skipped...)
}

// ChangeSet returns the changeset with the given identity, or nil.
func (cl *DatabaseChangeLog) ChangeSet(path, id, author string) *ChangeSet {
	if found := cl.find(path, id, author); len(found) > 0 {
		return found[0]
	}

	return nil
}

// ClearCheckSums discards every cached changeset checksum.
func (cl *DatabaseChangeLog) ClearCheckSums() {
	for _, cs := range cl.ChangeSets() {
		cs.ClearCheckSum()
	}
}

// find returns the changesets matching path, id and author. A blank author
// matches any author.
func (cl *DatabaseChangeLog) find(path, id, author string) []*ChangeSet {
	var out []*ChangeSet
	for _, cs := range cl.ChangeSets() {
		if author == "" {
			if cs.ID == id && NormalizePath(cs.FilePath) == NormalizePath(path) {
				out = append(out, cs)
			}
			continue
		}

		if sameIdentity(cs.FilePath, cs.ID, cs.Author, path, id, author) {
			out = append(out, cs)
		}
	}

	return out
}

func (cl *DatabaseChangeLog) String() string {
	return cl.FilePath()
}
