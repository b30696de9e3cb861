package changelog_test

import (
	"fmt"
	"strconv"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	. "github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRunOrderLastBeforeDefault(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			changeSet("A", leaf("runOrder", "last"), sqlChange("SELECT 1")),
			changeSet("B", sqlChange("SELECT 2")),
		),
	}, "db/changelog.yaml")

	require.Equal(t, []string{"B", "A"}, ids(cl.ChangeSets()))
}

func TestRunOrderAcrossIncludes(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			changeSet("root-last", leaf("runOrder", "last")),
			changeSet("root-default"),
			tree("include", nil, leaf("file", "db/child.yaml")),
			changeSet("root-first", leaf("runOrder", "first")),
		),
		"db/child.yaml": root(
			changeSet("child-default"),
			changeSet("child-first", leaf("runOrder", "first")),
			changeSet("child-last", leaf("runOrder", "last")),
		),
	}, "db/changelog.yaml")

	require.Equal(t, []string{
		"child-first", "root-first",
		"root-default", "child-default",
		"root-last", "child-last",
	}, ids(cl.ChangeSets()))
}

func TestRunOrderInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		orders := rapid.SliceOf(rapid.SampledFrom([]RunOrder{RunOrderFirst, RunOrderDefault, RunOrderLast})).Draw(t, "orders")

		cl := New("db/changelog.yaml", nil)
		for i, ro := range orders {
			cs := NewChangeSet(fmt.Sprint(i), "bob", cl)
			cs.RunOrder = ro
			cl.AddChangeSet(cs)
		}

		got := cl.ChangeSets()
		if len(got) != len(orders) {
			t.Fatalf("expected %d changesets, got %d", len(orders), len(got))
		}

		rank := map[RunOrder]int{RunOrderFirst: 0, RunOrderDefault: 1, RunOrderLast: 2}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if rank[prev.RunOrder] > rank[cur.RunOrder] {
				t.Fatalf("%s (%q) sorted before %s (%q)", prev.ID, prev.RunOrder, cur.ID, cur.RunOrder)
			}

			if prev.RunOrder == cur.RunOrder && index(prev) > index(cur) {
				t.Fatalf("relative order of %s and %s not preserved", prev.ID, cur.ID)
			}
		}
	})
}

func index(cs *ChangeSet) int {
	i, _ := strconv.Atoi(cs.ID)
	return i
}

func TestIncludeCircular(t *testing.T) {
	files := map[string]*node.Node{
		"a.yaml": root(changeSet("1"), tree("include", nil, leaf("file", "b.yaml"))),
		"b.yaml": root(changeSet("2"), tree("include", nil, leaf("file", "a.yaml"))),
	}

	_, err := parseContext(files, database.SQLite).Load("a.yaml")
	var se *SetupError
	require.True(t, errors.As(err, &se), "expected a SetupError, got %v", err)
	require.Contains(t, err.Error(), "a.yaml")

	pc := parseContext(files, database.SQLite)
	pc.ErrorOnCircularIncludeAll = false
	cl, err := pc.Load("a.yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, ids(cl.ChangeSets()))
}

func TestIncludeRelativeAndInherited(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("include", nil,
				leaf("file", "changes/001.yaml"),
				leaf("relativeToChangelogFile", true),
				leaf("context", "prod"),
				leaf("labels", "billing"),
				leaf("ignore", true),
			),
		),
		"db/changes/001.yaml": root(changeSet("1", leaf("labels", "core"))),
	}, "db/changelog.yaml")

	list := cl.ChangeSets()
	require.Len(t, list, 1)

	cs := list[0]
	require.Equal(t, "db/changes/001.yaml::1::bob", cs.String())
	require.True(t, cs.IsIgnored())
	require.False(t, cs.MatchesContexts(selector.NewContexts("dev")))
	require.True(t, cs.MatchesContexts(selector.NewContexts("prod")))
	require.Equal(t, []string{"core", "billing"}, cs.EffectiveLabels().Values())
}

func TestIncludeLogicalFilePath(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("include", nil, leaf("file", "db/a.yaml"), leaf("logicalFilePath", "legacy/a.xml")),
			tree("include", nil, leaf("file", "db/b.yaml"), leaf("logicalFilePath", "ignored.xml")),
		),
		"db/a.yaml": root(changeSet("1")),
		"db/b.yaml": root(leaf("logicalFilePath", "/own/b.xml"), changeSet("2")),
	}, "db/changelog.yaml")

	list := cl.ChangeSets()
	require.Equal(t, "legacy/a.xml::1::bob", list[0].String())
	require.Equal(t, "own/b.xml::2::bob", list[1].String())
}

func TestIncludeMissing(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml": root(changeSet("1"), tree("include", nil, leaf("file", "db/missing.yaml"))),
	}

	tests := []struct {
		name   string
		policy MissingIncludePolicy
		err    bool
	}{
		{"fail", MissingIncludeFail, true},
		{"default", "", true},
		{"warn", MissingIncludeWarn, false},
		{"skip", MissingIncludeSkip, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := parseContext(files, database.SQLite)
			pc.OnMissingInclude = tt.policy

			cl, err := pc.Load("db/changelog.yaml")
			if tt.err {
				var pe *ParseError
				require.True(t, errors.As(err, &pe))
				require.Contains(t, err.Error(), "db/missing.yaml was not found")
				return
			}

			require.NoError(t, err)
			require.Len(t, cl.ChangeSets(), 1)
		})
	}

	files["db/changelog.yaml"] = root(tree("include", nil, leaf("file", "db/missing.yaml"), leaf("errorIfMissing", false)))
	_, err := parseContext(files, database.SQLite).Load("db/changelog.yaml")
	require.NoError(t, err)
}

func TestIncludeUnknownFormat(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml": root(tree("include", nil, leaf("file", "db/notes.txt"))),
	}

	pc := parseContext(files, database.SQLite)
	pc.FS.(fstest.MapFS)["db/notes.txt"] = &fstest.MapFile{Data: []byte("notes")}

	_, err := pc.Load("db/changelog.yaml")
	require.ErrorContains(t, err, "not a recognized changelog format")
}

func TestIncludeAll(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml":          root(tree("includeAll", nil, leaf("path", "db/changes"))),
		"db/changes/002_users.yaml":  root(changeSet("2")),
		"db/changes/001_init.yaml":   root(changeSet("1")),
		"db/changes/nested/003.yaml": root(changeSet("3")),
	}

	cl := loadFiles(t, files, "db/changelog.yaml")
	require.Equal(t, []string{"1", "2", "3"}, ids(cl.ChangeSets()))

	tests := []struct {
		name     string
		attrs    []*node.Node
		expected []string
		err      string
	}{
		{
			name:     "max depth",
			attrs:    []*node.Node{leaf("maxDepth", 1)},
			expected: []string{"1", "2"},
		},
		{
			name:     "min depth",
			attrs:    []*node.Node{leaf("minDepth", 2)},
			expected: []string{"3"},
		},
		{
			name:     "ends with filter",
			attrs:    []*node.Node{leaf("endsWithFilter", "users.yaml")},
			expected: []string{"2"},
		},
		{
			name:     "glob filter",
			attrs:    []*node.Node{leaf("filter", "00[13]*.yaml")},
			expected: []string{"1", "3"},
		},
		{
			name:  "invalid depth",
			attrs: []*node.Node{leaf("minDepth", 3), leaf("maxDepth", 2)},
			err:   "maxDepth (2) must not be less than minDepth (3)",
		},
		{
			name:  "nothing matched",
			attrs: []*node.Node{leaf("endsWithFilter", ".xml")},
			err:   "no changelogs matched",
		},
		{
			name:     "nothing matched allowed",
			attrs:    []*node.Node{leaf("endsWithFilter", ".xml"), leaf("errorIfMissingOrEmpty", false)},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := append([]*node.Node{leaf("path", "db/changes/")}, tt.attrs...)
			files["db/changelog.yaml"] = root(tree("includeAll", nil, attrs...))

			cl, err := parseContext(files, database.SQLite).Load("db/changelog.yaml")
			if tt.err != "" {
				require.ErrorContains(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, ids(cl.ChangeSets()))
		})
	}
}

func TestIncludeAllRelativeMissing(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml": root(tree("includeAll", nil, leaf("path", "missing"), leaf("relativeToChangelogFile", true))),
	}

	_, err := parseContext(files, database.SQLite).Load("db/changelog.yaml")
	var se *SetupError
	require.True(t, errors.As(err, &se))
	require.ErrorContains(t, err, "missing")
}

func TestIncludeAllCircular(t *testing.T) {
	files := map[string]*node.Node{
		"changelog.yaml":      root(tree("includeAll", nil, leaf("path", "db"))),
		"db/001.yaml":         root(changeSet("1"), tree("includeAll", nil, leaf("path", "db/nested"), leaf("maxDepth", 1))),
		"db/nested/002.yaml":  root(changeSet("2"), tree("includeAll", nil, leaf("path", "db"), leaf("maxDepth", 1))),
		"db/nested/more.yaml": root(changeSet("3")),
	}

	_, err := parseContext(files, database.SQLite).Load("changelog.yaml")
	var se *SetupError
	require.True(t, errors.As(err, &se), "expected a SetupError, got %v", err)
	require.ErrorContains(t, err, "circular reference detected in 'db/'")
}

func TestProperties(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("property", nil, leaf("name", "table"), leaf("value", "person")),
			tree("property", nil, leaf("name", "table"), leaf("value", "ignored")),
			tree("property", nil, leaf("name", "engine"), leaf("value", "pg-only"), leaf("dbms", "postgresql")),
			tree("property", nil, leaf("name", "engine"), leaf("value", "fallback")),
			tree("property", nil, leaf("file", "app.properties"), leaf("relativeToChangelogFile", true)),
			changeSet("${table}-1", sqlChange("CREATE TABLE ${table} (id INT) -- ${engine} ${region} ${LIQUIBASE_EXECUTION_CHANGESET_ID}")),
		),
	}

	pc := parseContext(files, database.PostgreSQL)
	pc.FS.(fstest.MapFS)["db/app.properties"] = &fstest.MapFile{Data: []byte("# comment\nregion = us-east\n\n! other\nzone: a\n")}

	cl, err := pc.Load("db/changelog.yaml")
	require.NoError(t, err)

	cs := cl.ChangeSets()[0]
	require.Equal(t, "person-1", cs.ID)

	stmts, err := cs.Changes[0].Statements(database.NewMock(database.PostgreSQL))
	require.NoError(t, err)
	require.Equal(t, []string{"CREATE TABLE person (id INT) -- pg-only us-east person-1"}, stmts)

	v, ok := cl.Params().Value("zone", cl)
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestDbmsSkipped(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			changeSet("pg", leaf("dbms", "postgresql")),
			changeSet("sqlite", leaf("dbms", "sqlite")),
			changeSet("not-sqlite", leaf("dbms", "!sqlite")),
		),
	}, "db/changelog.yaml")

	require.Equal(t, []string{"pg", "not-sqlite"}, ids(cl.ChangeSets()))
	require.Equal(t, []string{"sqlite"}, ids(cl.SkippedChangeSets()))
}

func TestModifyChangeSets(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("modifyChangeSets", nil,
				leaf("runWith", "psql"),
				tree("include", nil, leaf("file", "db/child.yaml")),
			),
			changeSet("after"),
		),
		"db/child.yaml": root(
			changeSet("inherits"),
			changeSet("own", leaf("runWith", "sqlcmd")),
		),
	}, "db/changelog.yaml")

	list := cl.ChangeSets()
	require.Equal(t, []string{"inherits", "own", "after"}, ids(list))
	require.Equal(t, "psql", list[0].RunWith)
	require.Equal(t, "sqlcmd", list[1].RunWith)
	require.Empty(t, list[2].RunWith)
}

func TestRemoveChangeSetProperty(t *testing.T) {
	column := tree("columns", nil, tree("column", nil, leaf("name", "id"), leaf("type", "INT")))
	files := map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("removeChangeSetProperty", nil, leaf("change", "createTable"), leaf("remove", "schemaName"), leaf("dbms", "sqlite")),
			changeSet("1", tree("createTable", nil, leaf("schemaName", "app"), leaf("tableName", "person"), column)),
		),
	}

	for db, expected := range map[database.Dialect]string{
		database.SQLite:     `CREATE TABLE "person"`,
		database.PostgreSQL: `CREATE TABLE "app"."person"`,
	} {
		t.Run(db.ShortName(), func(t *testing.T) {
			cl, err := parseContext(files, db).Load("db/changelog.yaml")
			require.NoError(t, err)

			stmts, err := cl.ChangeSets()[0].Changes[0].Statements(database.NewMock(database.PostgreSQL))
			require.NoError(t, err)
			require.Contains(t, stmts[0], expected)
		})
	}
}

func TestStrictParsing(t *testing.T) {
	files := map[string]*node.Node{
		"db/changelog.yaml": root(tree("bogus", nil, leaf("a", "b"))),
	}

	_, err := parseContext(files, database.SQLite).Load("db/changelog.yaml")
	require.ErrorContains(t, err, "unexpected node 'bogus'")

	pc := parseContext(files, database.SQLite)
	pc.Strict = false
	_, err = pc.Load("db/changelog.yaml")
	require.NoError(t, err)

	files["db/changelog.yaml"] = root(changeSet("1", tree("createWidget", nil, leaf("name", "x"))))
	_, err = parseContext(files, database.SQLite).Load("db/changelog.yaml")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.ErrorContains(t, err, "unknown change type 'createWidget'")
}

func TestChangeLogPreconditions(t *testing.T) {
	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			tree("preConditions", nil, tree("dbms", nil, leaf("type", "postgresql"))),
			tree("include", nil, leaf("file", "db/child.yaml")),
		),
		"db/child.yaml": root(
			tree("preConditions", nil, leaf("onFail", "WARN"), tree("tableExists", nil, leaf("tableName", "person"))),
		),
	}, "db/changelog.yaml")

	require.Len(t, cl.Preconditions, 2)
	require.Len(t, cl.Preconditions[1].Preconditions, 1)
}

func TestRegisterHandler(t *testing.T) {
	var notes []string
	RegisterHandler("note", func(_ *ParseContext, cl *DatabaseChangeLog, n *node.Node) error {
		notes = append(notes, cl.PhysicalPath+": "+n.String())
		return nil
	})

	cl := loadFiles(t, map[string]*node.Node{
		"db/changelog.yaml": root(
			leaf("note", "hello"),
			tree("include", nil, leaf("file", "db/child.yaml")),
		),
		"db/child.yaml": root(changeSet("1", sqlChange("SELECT 1"))),
	}, "db/changelog.yaml")

	require.Equal(t, []string{"db/changelog.yaml: hello"}, notes)
	require.Equal(t, []string{"1"}, ids(cl.ChangeSets()))
}
