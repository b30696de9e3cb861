package parser_test

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
	. "github.com/pseudomuto/changekeeper/pkg/parser"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func dump(n *node.Node) string {
	var sb strings.Builder

	var walk func(*node.Node, int)
	walk = func(n *node.Node, depth int) {
		sb.WriteString(strings.Repeat("  ", depth) + n.Name)
		switch v := n.Value.(type) {
		case nil:
		case string:
			fmt.Fprintf(&sb, " = %q", v)
		default:
			fmt.Fprintf(&sb, " = %v (%T)", v, v)
		}
		sb.WriteString("\n")

		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}

	walk(n, 0)
	return sb.String()
}

func TestParseGolden(t *testing.T) {
	tests := []string{"changelog.sql", "changelog.yaml", "changelog.xml"}

	for _, file := range tests {
		t.Run(file, func(t *testing.T) {
			root, err := New().Parse(os.DirFS("testdata"), file)
			require.NoError(t, err)
			golden.Assert(t, dump(root), file+".golden")
		})
	}
}

func TestParseJSONMatchesYAML(t *testing.T) {
	fsys := os.DirFS("testdata")

	y, err := New().Parse(fsys, "changelog.yaml")
	require.NoError(t, err)

	j, err := New().Parse(fsys, "changelog.json")
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(dump(y), dump(j)))
}

func TestSupports(t *testing.T) {
	tests := []struct {
		file string
		want bool
	}{
		{"changelog.yaml", true},
		{"changelog.YML", true},
		{"changelog.json", true},
		{"changelog.xml", true},
		{"001_init.sql", true},
		{"README.md", false},
		{"changelog", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			require.Equal(t, tt.want, New().Supports(tt.file))
		})
	}
}

func TestParseRaw(t *testing.T) {
	fsys := fstest.MapFS{
		"001.sql":   {Data: []byte("CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n")},
		"empty.sql": {Data: []byte("\n\n")},
	}

	root, err := New().Parse(fsys, "001.sql")
	require.NoError(t, err)

	sets := root.ChildrenNamed("changeSet")
	require.Len(t, sets, 1)

	id, _ := sets[0].ChildString("id", "")
	author, _ := sets[0].ChildString("author", "")
	require.Equal(t, RawID, id)
	require.Equal(t, RawAuthor, author)

	sql, _ := sets[0].ChildString("sql", "")
	require.Contains(t, sql, "CREATE TABLE b")

	_, err = New().Parse(fsys, "empty.sql")
	require.Error(t, err)
}

func TestIsFormatted(t *testing.T) {
	require.True(t, IsFormatted([]byte("\n-- liquibase formatted sql\n")))
	require.True(t, IsFormatted([]byte("--LIQUIBASE FORMATTED SQL")))
	require.False(t, IsFormatted([]byte("SELECT 1;\n--liquibase formatted sql")))
	require.False(t, IsFormatted(nil))
}

func TestParseFormattedErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
		msg   string
	}{
		{
			name:  "missing header",
			input: "CREATE TABLE a (id INT);",
			line:  1,
			msg:   "missing formatted SQL header",
		},
		{
			name:  "changeset without id",
			input: "--liquibase formatted sql\n--changeset bob\nSELECT 1;",
			line:  2,
			msg:   "Unexpected formatting at line 2",
		},
		{
			name:  "changeset without SQL",
			input: "--liquibase formatted sql\n--changeset bob:1\n--changeset bob:2\nSELECT 1;",
			line:  2,
			msg:   "no SQL for changeset",
		},
		{
			name:  "unknown precondition",
			input: "--liquibase formatted sql\n--changeset bob:1\n--precondition-bogus x:y\nSELECT 1;",
			line:  3,
			msg:   `unknown precondition "bogus"`,
		},
		{
			name:  "sql check without SQL",
			input: "--liquibase formatted sql\n--changeset bob:1\n--precondition-sql-check expectedResult:0\nSELECT 1;",
			line:  3,
			msg:   "requires SQL",
		},
		{
			name:  "bad ignoreLines",
			input: "--liquibase formatted sql\n--changeset bob:1\n--ignoreLines:lots\nSELECT 1;",
			line:  3,
			msg:   "ignoreLines expects",
		},
		{
			name:  "include without file",
			input: "--liquibase formatted sql\n--include relativeToChangelogFile:true",
			line:  2,
			msg:   "Unexpected formatting",
		},
		{
			name:  "rollback outside changeset",
			input: "--liquibase formatted sql\n--rollback DROP TABLE a;",
			line:  2,
			msg:   "rollback outside of a changeset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormatted("changelog.sql", []byte(tt.input))
			require.Error(t, err)

			var pe *changelog.ParseError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tt.line, pe.Line)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseFormattedQuotedAttributes(t *testing.T) {
	root, err := ParseFormatted("changelog.sql", []byte(`--liquibase formatted sql
--changeset a\:b:1 context:"prod and !eu" labels:x,y
SELECT 1;
--rollback not required
`))
	require.NoError(t, err)

	cs := root.ChildrenNamed("changeSet")[0]
	author, _ := cs.ChildString("author", "")
	ctx, _ := cs.ChildString("context", "")
	labels, _ := cs.ChildString("labels", "")
	require.Equal(t, "a:b", author)
	require.Equal(t, "prod and !eu", ctx)
	require.Equal(t, "x,y", labels)

	rb := cs.ChildrenNamed("rollback")
	require.Len(t, rb, 1)
	require.False(t, rb[0].HasChildren())
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"empty", "", "empty changelog"},
		{"not a mapping", "- a\n- b\n", "expected a mapping"},
		{"missing root", "other: []\n", "missing databaseChangeLog"},
		{"scalar root", "databaseChangeLog: 5\n", "must be a list"},
		{"invalid", "databaseChangeLog: [\n", "invalid document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML("changelog.yaml", []byte(tt.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseXMLErrors(t *testing.T) {
	_, err := ParseXML("changelog.xml", []byte("<changeLog/>"))
	require.ErrorContains(t, err, "expected root element databaseChangeLog")

	_, err = ParseXML("changelog.xml", []byte("<databaseChangeLog>\n<changeSet>\n</databaseChangeLog>"))

	var pe *changelog.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 3, pe.Line)

	_, err = ParseXML("changelog.xml", []byte(""))
	require.ErrorContains(t, err, "missing databaseChangeLog")
}

func TestLoadFormattedChangeLog(t *testing.T) {
	fsys := fstest.MapFS{
		"db/changelog.sql": {Data: []byte(`--liquibase formatted sql
--property name:table value:person

--changeset bob:1 context:prod
CREATE TABLE ${table} (id INT);
--rollback DROP TABLE ${table};

--changeset bob:2 splitStatements:false
INSERT INTO ${table} (id) VALUES (1);
INSERT INTO ${table} (id) VALUES (2);
`)},
	}

	pc := &changelog.ParseContext{FS: fsys, Parser: New(), Strict: true}
	cl, err := pc.Load("db/changelog.sql")
	require.NoError(t, err)

	sets := cl.ChangeSets()
	require.Len(t, sets, 2)

	first := sets[0]
	require.Equal(t, "1", first.ID)
	require.Equal(t, "bob", first.Author)
	require.Equal(t, "prod", first.Contexts.String())
	require.Len(t, first.Changes, 1)
	require.Equal(t, "CREATE TABLE person (id INT);", first.Changes[0].(*change.SQL).SQL)
	require.Len(t, first.Rollback, 1)
	require.Equal(t, "DROP TABLE person;", first.Rollback[0].(*change.SQL).SQL)

	second := sets[1].Changes[0].(*change.SQL)
	require.False(t, second.SplitStatements)
	require.Contains(t, second.SQL, "VALUES (2)")
}
