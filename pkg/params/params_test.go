package params_test

import (
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/node"
	. "github.com/pseudomuto/changekeeper/pkg/params"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type (
	fakeChangeLog struct {
		logical  string
		physical string
		current  *node.Node
	}

	fakeDatabase struct{}
)

func (f *fakeChangeLog) FilePath() string {
	if f.logical != "" {
		return f.logical
	}
	return f.physical
}
func (f *fakeChangeLog) LogicalFilePath() string          { return f.FilePath() }
func (f *fakeChangeLog) PhysicalFilePath() string         { return f.physical }
func (f *fakeChangeLog) CurrentChangeSetNode() *node.Node { return f.current }

func (fakeDatabase) ShortName() string               { return "sqlite" }
func (fakeDatabase) ProductName() string             { return "SQLite" }
func (fakeDatabase) DefaultSchemaName() string       { return "main" }
func (fakeDatabase) DefaultCatalogName() string      { return "" }
func (fakeDatabase) HistoryTableName() string        { return "DATABASECHANGELOG" }
func (fakeDatabase) LockTableName() string           { return "DATABASECHANGELOGLOCK" }
func (fakeDatabase) LineComment() string             { return "--" }
func (fakeDatabase) CurrentDateTimeFunction() string { return "CURRENT_TIMESTAMP" }
func (fakeDatabase) SupportsSchemas() bool           { return false }

func TestValueLookupOrder(t *testing.T) {
	cl := &fakeChangeLog{physical: "db/changelog.yaml"}
	other := &fakeChangeLog{physical: "db/other.yaml"}

	p := New(Config{})
	require.NoError(t, p.Set("table", "global_one", "", "", "", true, nil))
	require.NoError(t, p.Set("table", "global_two", "", "", "", true, nil))
	require.NoError(t, p.Set("table", "local_one", "", "", "", false, cl))
	require.NoError(t, p.Set("table", "local_two", "", "", "", false, cl))

	v, ok := p.Value("TABLE", cl)
	require.True(t, ok)
	require.Equal(t, "local_two", v)

	v, ok = p.Value("table", other)
	require.True(t, ok)
	require.Equal(t, "global_one", v)

	v, ok = p.Value("table", nil)
	require.True(t, ok)
	require.Equal(t, "global_one", v)

	require.False(t, p.HasValue("missing", cl))
	require.Error(t, p.Set("table", "x", "", "", "", false, nil))
}

func TestValueFilters(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Set("engine", "dev_engine", "dev", "", "", true, nil))
	require.NoError(t, p.Set("engine", "pg_engine", "", "", "postgresql", true, nil))
	require.NoError(t, p.Set("engine", "fast_engine", "", "fast", "", true, nil))
	require.NoError(t, p.Set("engine", "default_engine", "", "", "", true, nil))

	p.SetContexts(selector.NewContexts("prod"))
	p.SetDatabase("sqlite")
	p.SetLabels(selector.MustParseExpression("slow"))

	v, _ := p.Value("engine", nil)
	require.Equal(t, "default_engine", v)

	p.SetContexts(selector.NewContexts("dev"))
	v, _ = p.Value("engine", nil)
	require.Equal(t, "dev_engine", v)

	p.SetContexts(selector.NewContexts("prod"))
	p.SetDatabase("postgresql")
	v, _ = p.Value("engine", nil)
	require.Equal(t, "pg_engine", v)

	p.SetDatabase("sqlite")
	p.SetLabels(selector.MustParseExpression("fast"))
	v, _ = p.Value("engine", nil)
	require.Equal(t, "fast_engine", v)

	require.Error(t, p.Set("bad", "x", "dev and", "", "", true, nil))
}

func TestExecutionParameters(t *testing.T) {
	cs := node.New("changeSet", nil)
	cs.AddChild("id", "create-person")
	cs.AddChild("author", "jane")

	cl := &fakeChangeLog{physical: "db/main.yaml", logical: "main", current: cs}
	p := New(Config{})

	out, err := p.Expand(
		"${LIQUIBASE_EXECUTION_CHANGELOG_FILE}:${liquibase_execution_changeset_id}:${LIQUIBASE_EXECUTION_CHANGESET_AUTHOR}",
		cl,
	)
	require.NoError(t, err)
	require.Equal(t, "main:create-person:jane", out)
}

func TestDatabaseSeeding(t *testing.T) {
	p := New(Config{Database: fakeDatabase{}})

	for key, want := range map[string]any{
		"database.typeName":                       "sqlite",
		"database.databaseChangeLogTableName":     "DATABASECHANGELOG",
		"database.databaseChangeLogLockTableName": "DATABASECHANGELOGLOCK",
		"database.defaultSchemaNamePrefix":        ".main",
		"database.supportsSchemas":                false,
	} {
		t.Run(key, func(t *testing.T) {
			v, ok := p.Value(key, nil)
			require.True(t, ok)
			require.Equal(t, want, v)
		})
	}

	require.Equal(t, "sqlite", p.Filter().Database)
}

func TestEnvironmentSeeding(t *testing.T) {
	t.Setenv("CHANGEKEEPER_TEST_SCHEMA", "reporting")

	p := New(Config{IncludeEnv: true})
	out, err := p.Expand("${CHANGEKEEPER_TEST_SCHEMA}.events", nil)
	require.NoError(t, err)
	require.Equal(t, "reporting.events", out)

	p = New(Config{})
	require.False(t, p.HasValue("CHANGEKEEPER_TEST_SCHEMA", nil))
}

func TestGlobalFirstWriteWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key")
		values := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{0,8}`), 1, 10).Draw(t, "values")

		p := New(Config{})
		for _, v := range values {
			p.SetGlobal(key, v)
		}

		got, ok := p.Value(key, nil)
		if !ok || got != values[0] {
			t.Fatalf("expected %q, got %v (found=%v)", values[0], got, ok)
		}
	})
}
