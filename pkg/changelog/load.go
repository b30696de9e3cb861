package changelog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/params"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

const (
	MissingIncludeFail MissingIncludePolicy = "FAIL"
	MissingIncludeWarn MissingIncludePolicy = "WARN"
	MissingIncludeSkip MissingIncludePolicy = "SKIP"
)

type (
	// Parser turns a changelog file into a node tree.
	Parser interface {
		// Supports reports whether the parser understands the file at path.
		Supports(path string) bool

		// Parse reads the file at path from fsys.
		Parse(fsys fs.FS, path string) (*node.Node, error)
	}

	// MissingIncludePolicy decides what happens when an included file does
	// not exist.
	MissingIncludePolicy string

	// Handler processes one top-level node kind of a changelog.
	Handler func(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error

	// ParseContext holds the state of one changelog load. It is threaded
	// through every include so that a load has no global state.
	ParseContext struct {
		FS     fs.FS
		Parser Parser
		Params *params.Parameters

		// Strict rejects unknown nodes and change types that have children.
		Strict bool

		// ErrorOnCircularIncludeAll makes repeated includes an error instead
		// of a warning.
		ErrorOnCircularIncludeAll bool

		OnMissingInclude MissingIncludePolicy

		seenDirs  map[string]bool
		modifiers []modifier
	}

	includeOptions struct {
		errorIfMissing bool
		warnUnknown    bool
		contexts       *selector.Expression
		labels         selector.Labels
		ignore         bool
		logicalPath    string
	}

	modifier struct {
		runWith          string
		runWithSpoolFile string
	}

	removal struct {
		change string
		remove string
		dbms   []string
	}
)

// handlers is filled in init since the include handlers call back into load.
var handlers map[string]Handler

func init() {
	handlers = map[string]Handler{
		"changeSet":               handleChangeSet,
		"include":                 handleInclude,
		"includeAll":              handleIncludeAll,
		"preConditions":           handlePreconditions,
		"property":                handleProperty,
		"modifyChangeSets":        handleModifyChangeSets,
		"removeChangeSetProperty": handleRemoveChangeSetProperty,
	}
}

// RegisterHandler adds or replaces the handler for a node kind.
func RegisterHandler(name string, h Handler) {
	handlers[name] = h
}

// ParseMissingIncludePolicy reads an on_missing_include setting. Blank
// yields FAIL.
func ParseMissingIncludePolicy(s string) (MissingIncludePolicy, error) {
	switch p := MissingIncludePolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return MissingIncludeFail, nil
	case MissingIncludeFail, MissingIncludeWarn, MissingIncludeSkip:
		return p, nil
	default:
		return "", errors.Errorf("unknown missing include policy: %s", s)
	}
}

// Load parses the changelog at path and resolves all of its includes.
//
// Example usage:
//
//	pc := &changelog.ParseContext{
//		FS:     os.DirFS("."),
//		Parser: parser.New(),
//		Params: params.New(params.Config{Database: db}),
//		Strict: true,
//	}
//
//	cl, err := pc.Load("db/changelog.yaml")
func (pc *ParseContext) Load(path string) (*DatabaseChangeLog, error) {
	n, err := pc.parse(path)
	if err != nil {
		return nil, err
	}

	return pc.LoadNode(path, n)
}

// LoadNode builds a changelog from an already parsed root node.
func (pc *ParseContext) LoadNode(path string, n *node.Node) (*DatabaseChangeLog, error) {
	if pc.Params == nil {
		pc.Params = params.New(params.Config{})
	}

	cl := New(path, pc.Params)
	if err := pc.load(cl, n); err != nil {
		return nil, err
	}

	return cl, nil
}

func (pc *ParseContext) parse(path string) (*node.Node, error) {
	if pc.Parser == nil {
		return nil, &ParseError{File: path, Message: "no changelog parser configured"}
	}

	if !pc.Parser.Supports(path) {
		return nil, &ParseError{File: path, Message: "unknown changelog format"}
	}

	n, err := pc.Parser.Parse(pc.FS, path)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, err
		}

		return nil, &ParseError{File: path, Err: err}
	}

	return n, nil
}

func (pc *ParseContext) load(cl *DatabaseChangeLog, n *node.Node) error {
	logical, err := n.ChildString("logicalFilePath", "")
	if err != nil {
		return wrapParse(cl, err)
	}

	if logical = strings.TrimSpace(logical); logical != "" {
		cl.LogicalPath = NormalizePath(logical)
	}

	rawContexts, err := contextAttr(n)
	if err != nil {
		return wrapParse(cl, err)
	}

	if cl.Contexts, err = selector.ParseExpression(rawContexts); err != nil {
		return wrapParse(cl, err)
	}

	for _, child := range n.Children {
		h, ok := handlers[child.Name]
		if !ok {
			if pc.Strict && child.HasChildren() {
				return &ParseError{File: cl.PhysicalPath, Message: fmt.Sprintf("unexpected node '%s'", child.Name)}
			}
			continue
		}

		if err := h(pc, cl, child); err != nil {
			return wrapParse(cl, err)
		}
	}

	return nil
}

func (pc *ParseContext) database() string {
	if pc.Params == nil {
		return ""
	}

	return pc.Params.Filter().Database
}

func handleChangeSet(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	cl.currentNode = n
	defer func() { cl.currentNode = nil }()

	expanded, err := pc.expand(cl, n)
	if err != nil {
		return err
	}

	for _, r := range cl.removals {
		r.apply(expanded, pc.database())
	}

	cs := NewChangeSet("", "", cl)
	for c := cl; c != nil; c = c.parent {
		for _, e := range []*selector.Expression{c.Contexts, c.IncludeContexts} {
			if !e.IsEmpty() {
				cs.InheritedContexts = append(cs.InheritedContexts, e)
			}
		}

		if !c.IncludeLabels.IsEmpty() {
			merged := append(cs.InheritedLabels.Values(), c.IncludeLabels.Values()...)
			cs.InheritedLabels = selector.NewLabels(strings.Join(merged, ","))
		}

		cs.InheritedIgnore = cs.InheritedIgnore || c.IncludeIgnore
	}

	lc := change.LoadContext{
		FS:            pc.FS,
		ChangeLogPath: cl.PhysicalPath,
		Expand: func(s string) (string, error) {
			return pc.Params.Expand(s, cl)
		},
	}

	if err := cs.Load(expanded, lc, pc.Strict); err != nil {
		return err
	}

	for i := len(pc.modifiers) - 1; i >= 0; i-- {
		m := pc.modifiers[i]
		if cs.RunWith == "" {
			cs.RunWith = m.runWith
		}

		if cs.RunWithSpoolFile == "" {
			cs.RunWithSpoolFile = m.runWithSpoolFile
		}
	}

	if db := pc.database(); db != "" && !selector.DatabaseMatches(cs.Dbms, db, true) {
		slog.Debug("Skipping changeset for database", "changeset", cs.String(), "database", db)
		cl.skipped = append(cl.skipped, cs)
		return nil
	}

	cl.AddChangeSet(cs)
	return nil
}

// expand returns a copy of n with parameters substituted in every string
// value.
func (pc *ParseContext) expand(cl *DatabaseChangeLog, n *node.Node) (*node.Node, error) {
	out := n.Clone()
	err := out.Walk(func(c *node.Node) error {
		s, ok := c.Value.(string)
		if !ok {
			return nil
		}

		expanded, err := pc.Params.Expand(s, cl)
		if err != nil {
			return err
		}

		c.Value = expanded
		return nil
	})

	return out, err
}

func handlePreconditions(_ *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	c, err := precondition.Load(n)
	if err != nil {
		return err
	}

	cl.Preconditions = append(cl.Preconditions, c)
	return nil
}

func handleInclude(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	file, err := pc.attr(cl, n, "file")
	if err != nil {
		return err
	}

	if file == "" {
		return &SetupError{Message: fmt.Sprintf("include in %s has no file attribute", cl.PhysicalPath)}
	}

	relative, err := n.ChildBool("relativeToChangelogFile", false)
	if err != nil {
		return err
	}

	opts, err := pc.includeOptions(cl, n, "errorIfMissing")
	if err != nil {
		return err
	}

	return pc.include(cl, resolve(cl.PhysicalPath, file, relative), opts)
}

func (pc *ParseContext) includeOptions(cl *DatabaseChangeLog, n *node.Node, missingAttr string) (includeOptions, error) {
	var (
		opts includeOptions
		err  error
	)

	if opts.errorIfMissing, err = n.ChildBool(missingAttr, true); err != nil {
		return opts, err
	}

	if opts.ignore, err = n.ChildBool("ignore", false); err != nil {
		return opts, err
	}

	rawContexts, err := contextAttr(n)
	if err != nil {
		return opts, err
	}

	if rawContexts, err = pc.Params.Expand(rawContexts, cl); err != nil {
		return opts, err
	}

	if opts.contexts, err = selector.ParseExpression(rawContexts); err != nil {
		return opts, err
	}

	labels, err := pc.attr(cl, n, "labels")
	if err != nil {
		return opts, err
	}
	opts.labels = selector.NewLabels(labels)

	if opts.logicalPath, err = pc.attr(cl, n, "logicalFilePath"); err != nil {
		return opts, err
	}

	return opts, nil
}

func (pc *ParseContext) include(cl *DatabaseChangeLog, file string, opts includeOptions) error {
	if base := strings.ToLower(path.Base(file)); base == ".svn" || base == "cvs" {
		return nil
	}

	for p := cl; p != nil; p = p.parent {
		if p.PhysicalPath != file {
			continue
		}

		if pc.ErrorOnCircularIncludeAll {
			return &SetupError{Message: fmt.Sprintf("circular reference detected in '%s'", file)}
		}

		slog.Warn("Skipping circular include", "file", file, "changelog", cl.PhysicalPath)
		return nil
	}

	if pc.FS == nil {
		return &SetupError{Message: fmt.Sprintf("cannot include %s: no file system configured", file)}
	}

	if _, err := fs.Stat(pc.FS, file); err != nil {
		return pc.missingInclude(cl, file, opts, err)
	}

	if pc.Parser == nil || !pc.Parser.Supports(file) {
		if !opts.warnUnknown {
			return &ParseError{File: cl.PhysicalPath, Message: fmt.Sprintf("included file %s is not a recognized changelog format", file)}
		}

		if path.Ext(file) != "" {
			slog.Warn("Included file is not a recognized changelog format", "file", file)
		}
		return nil
	}

	n, err := pc.parse(file)
	if err != nil {
		return err
	}

	child := newChild(file, cl)
	child.IncludeContexts = opts.contexts
	child.IncludeLabels = opts.labels
	child.IncludeIgnore = opts.ignore
	if opts.logicalPath != "" {
		child.LogicalPath = NormalizePath(opts.logicalPath)
	}

	if err := pc.load(child, n); err != nil {
		return err
	}

	cl.Preconditions = append(cl.Preconditions, child.Preconditions...)
	for _, cs := range child.ChangeSets() {
		cl.AddChangeSet(cs)
	}
	cl.skipped = append(cl.skipped, child.skipped...)

	return nil
}

func (pc *ParseContext) missingInclude(cl *DatabaseChangeLog, file string, opts includeOptions, err error) error {
	if !errors.Is(err, fs.ErrNotExist) {
		return &SetupError{Message: fmt.Sprintf("could not read %s", file), Err: err}
	}

	switch {
	case !opts.errorIfMissing, pc.OnMissingInclude == MissingIncludeWarn:
		slog.Warn("Included changelog not found", "file", file, "changelog", cl.PhysicalPath)
		return nil
	case pc.OnMissingInclude == MissingIncludeSkip:
		return nil
	default:
		return &ParseError{File: cl.PhysicalPath, Message: fmt.Sprintf("the file %s was not found", file)}
	}
}

func handleIncludeAll(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	dir, err := pc.attr(cl, n, "path")
	if err != nil {
		return err
	}

	if strings.TrimSpace(dir) == "" {
		return &SetupError{Message: fmt.Sprintf("includeAll in %s has no path attribute", cl.PhysicalPath)}
	}

	relative, err := n.ChildBool("relativeToChangelogFile", false)
	if err != nil {
		return err
	}

	minDepth, err := n.ChildInt("minDepth", 1)
	if err != nil {
		return err
	}

	maxDepth, err := n.ChildInt("maxDepth", math.MaxInt32)
	if err != nil {
		return err
	}

	if maxDepth < minDepth {
		return &SetupError{Message: fmt.Sprintf("maxDepth (%d) must not be less than minDepth (%d)", maxDepth, minDepth)}
	}

	glob, err := pc.attr(cl, n, "filter")
	if err != nil {
		return err
	}

	endsWith, err := pc.attr(cl, n, "endsWithFilter")
	if err != nil {
		return err
	}

	opts, err := pc.includeOptions(cl, n, "errorIfMissingOrEmpty")
	if err != nil {
		return err
	}
	opts.warnUnknown = true

	root := resolve(cl.PhysicalPath, dir, relative)
	key := root + "/"
	if pc.seenDirs[key] && pc.ErrorOnCircularIncludeAll {
		return &SetupError{Message: fmt.Sprintf("circular reference detected in '%s'; disable error_on_circular_include_all to ignore it", key)}
	}

	if pc.seenDirs == nil {
		pc.seenDirs = make(map[string]bool)
	}
	pc.seenDirs[key] = true

	if pc.FS == nil {
		return &SetupError{Message: fmt.Sprintf("cannot include %s: no file system configured", dir)}
	}

	files, err := search(pc.FS, root, minDepth, maxDepth)
	if err != nil && opts.errorIfMissing {
		return &SetupError{Message: fmt.Sprintf("could not find/read changelogs from %s directory", dir), Err: err}
	}

	files = slices.DeleteFunc(files, func(f string) bool {
		if endsWith != "" && !strings.HasSuffix(strings.ToLower(f), strings.ToLower(strings.TrimSpace(endsWith))) {
			return true
		}

		if glob != "" {
			ok, _ := path.Match(glob, path.Base(f))
			return !ok
		}

		return false
	})

	if len(files) == 0 {
		if opts.errorIfMissing {
			return &SetupError{Message: fmt.Sprintf(
				"could not find directory, directory was empty, or no changelogs matched the provided search criteria for includeAll '%s'",
				dir,
			)}
		}
		return nil
	}

	slices.SortFunc(files, includeAllOrder)
	for _, f := range files {
		slog.Debug("Reading resource", "file", f)
		if err := pc.include(cl, f, opts); err != nil {
			return err
		}
	}

	return nil
}

// search lists the files under dir whose depth, counted in path segments
// below dir, is between minDepth and maxDepth.
func search(fsys fs.FS, dir string, minDepth, maxDepth int) ([]string, error) {
	root := dir
	if root == "" {
		root = "."
	}

	var files []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		depth := 0
		if p != root {
			depth = strings.Count(strings.TrimPrefix(p, root+"/"), "/") + 1
			if root == "." {
				depth = strings.Count(p, "/") + 1
			}
		}

		if d.IsDir() {
			if depth >= maxDepth && p != root {
				return fs.SkipDir
			}
			return nil
		}

		if depth >= minDepth && depth <= maxDepth {
			files = append(files, p)
		}

		return nil
	})

	return files, err
}

func handleProperty(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	contexts, err := contextAttr(n)
	if err != nil {
		return err
	}

	labels, err := n.ChildString("labels", "")
	if err != nil {
		return err
	}

	dbms, err := n.ChildString("dbms", "")
	if err != nil {
		return err
	}

	global, err := n.ChildBool("global", true)
	if err != nil {
		return err
	}

	file, err := pc.attr(cl, n, "file")
	if err != nil {
		return err
	}

	if file != "" {
		relative, err := n.ChildBool("relativeToChangelogFile", false)
		if err != nil {
			return err
		}

		props, err := readProperties(pc.FS, resolve(cl.PhysicalPath, file, relative))
		if err != nil {
			return err
		}

		for _, kv := range props {
			if err := pc.Params.Set(kv[0], kv[1], contexts, labels, dbms, global, cl); err != nil {
				return err
			}
		}

		return nil
	}

	name, err := n.ChildString("name", "")
	if err != nil {
		return err
	}

	if strings.TrimSpace(name) == "" {
		return &node.Error{Path: n.Path(), Message: "property requires a name or file"}
	}

	value, err := n.ChildValue("value")
	if err != nil {
		return err
	}

	return pc.Params.Set(strings.TrimSpace(name), value, contexts, labels, dbms, global, cl)
}

func handleModifyChangeSets(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	var (
		m   modifier
		err error
	)

	if m.runWith, err = pc.attr(cl, n, "runWith"); err != nil {
		return err
	}

	if m.runWithSpoolFile, err = pc.attr(cl, n, "runWithSpoolFile"); err != nil {
		return err
	}

	pc.modifiers = append(pc.modifiers, m)
	defer func() { pc.modifiers = pc.modifiers[:len(pc.modifiers)-1] }()

	for _, child := range n.Children {
		switch child.Name {
		case "include":
			err = handleInclude(pc, cl, child)
		case "includeAll":
			err = handleIncludeAll(pc, cl, child)
		default:
			continue
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func handleRemoveChangeSetProperty(pc *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
	var (
		r   removal
		err error
	)

	if r.change, err = pc.attr(cl, n, "change"); err != nil {
		return err
	}

	if r.remove, err = pc.attr(cl, n, "remove"); err != nil {
		return err
	}

	dbms, err := pc.attr(cl, n, "dbms")
	if err != nil {
		return err
	}
	r.dbms = selector.SplitDatabases(dbms)

	if r.change == "" || r.remove == "" {
		return &node.Error{Path: n.Path(), Message: "removeChangeSetProperty requires change and remove"}
	}

	cl.removals = append(cl.removals, r)
	return nil
}

// apply removes the property from every matching change node beneath a
// changeSet node when the database matches.
func (r removal) apply(changeSet *node.Node, database string) {
	if !selector.DatabaseMatches(r.dbms, database, true) {
		return
	}

	_ = changeSet.Walk(func(c *node.Node) error {
		if c.Name == r.change {
			c.Remove(r.remove)
		}
		return nil
	})
}

// attr returns the named child value with parameters expanded.
func (pc *ParseContext) attr(cl *DatabaseChangeLog, n *node.Node, name string) (string, error) {
	raw, err := n.ChildString(name, "")
	if err != nil || raw == "" {
		return raw, err
	}

	v, err := pc.Params.Expand(raw, cl)
	return strings.TrimSpace(v), err
}

func contextAttr(n *node.Node) (string, error) {
	raw, err := n.ChildString("contextFilter", "")
	if err != nil || raw != "" {
		return raw, err
	}

	return n.ChildString("context", "")
}

func wrapParse(cl *DatabaseChangeLog, err error) error {
	var (
		pe *ParseError
		se *SetupError
	)

	if errors.As(err, &pe) || errors.As(err, &se) {
		return err
	}

	return &ParseError{File: cl.PhysicalPath, Err: err}
}
