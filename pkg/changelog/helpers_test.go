package changelog_test

import (
	"io/fs"
	"path"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	. "github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/params"
	"github.com/stretchr/testify/require"
)

// fakeParser serves prebuilt node trees for yaml paths.
type fakeParser map[string]*node.Node

func (p fakeParser) Supports(file string) bool {
	return path.Ext(file) == ".yaml"
}

func (p fakeParser) Parse(_ fs.FS, file string) (*node.Node, error) {
	n, ok := p[file]
	if !ok {
		return nil, errors.Errorf("no fixture for %s", file)
	}

	return n.Clone(), nil
}

func tree(name string, value any, children ...*node.Node) *node.Node {
	n := node.New(name, value)
	for _, c := range children {
		n.Append(c)
	}

	return n
}

func leaf(name string, value any) *node.Node {
	return node.New(name, value)
}

func root(children ...*node.Node) *node.Node {
	return tree("databaseChangeLog", nil, children...)
}

func changeSet(id string, attrs ...*node.Node) *node.Node {
	children := append([]*node.Node{leaf("id", id), leaf("author", "bob")}, attrs...)
	return tree("changeSet", nil, children...)
}

func sqlChange(stmt string) *node.Node {
	return leaf("sql", stmt)
}

// fixtures registers every tree with the parser and creates a matching file
// in the returned filesystem.
func fixtures(files map[string]*node.Node) (fakeParser, fstest.MapFS) {
	p := fakeParser{}
	fsys := fstest.MapFS{}
	for name, n := range files {
		p[name] = n
		fsys[name] = &fstest.MapFile{Data: []byte("# " + name)}
	}

	return p, fsys
}

func parseContext(files map[string]*node.Node, db database.Dialect) *ParseContext {
	p, fsys := fixtures(files)
	cfg := params.Config{}
	if db != nil {
		cfg.Database = database.NewMock(db)
	}

	return &ParseContext{
		FS:                        fsys,
		Parser:                    p,
		Params:                    params.New(cfg),
		Strict:                    true,
		ErrorOnCircularIncludeAll: true,
	}
}

func loadFiles(t *testing.T, files map[string]*node.Node, entry string) *DatabaseChangeLog {
	t.Helper()

	cl, err := parseContext(files, database.PostgreSQL).Load(entry)
	require.NoError(t, err)
	return cl
}

func ids(list []*ChangeSet) []string {
	out := make([]string, 0, len(list))
	for _, cs := range list {
		out = append(out, cs.ID)
	}

	return out
}
