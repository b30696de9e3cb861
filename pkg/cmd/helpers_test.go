package cmd

import (
	"context"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/cmd/testutil"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/stretchr/testify/require"
)

const (
	schemaChanges = `databaseChangeLog:
  - changeSet:
      id: "1"
      author: alice
      changes:
        - createTable:
            tableName: person
            columns:
              - column:
                  name: id
                  type: int
              - column:
                  name: name
                  type: varchar(50)
  - changeSet:
      id: "2"
      author: alice
      changes:
        - tagDatabase:
            tag: v1
`

	dataChanges = `databaseChangeLog:
  - changeSet:
      id: "3"
      author: bob
      changes:
        - sql: INSERT INTO person (id, name) VALUES (1, 'ada')
      rollback: DELETE FROM person WHERE id = 1
  - changeSet:
      id: "4"
      author: bob
      context: test
      labels: slow
      changes:
        - createTable:
            tableName: fixtures
            columns:
              - column:
                  name: id
                  type: int
`
)

// newProject returns a project whose root changelog includes both fixture
// files.
func newProject(t *testing.T) *testutil.ProjectFixture {
	t.Helper()

	return testutil.TestProject(t).WithChanges(map[string]string{
		"001-schema.yaml": schemaChanges,
		"002-data.yaml":   dataChanges,
	})
}

func openDB(t *testing.T, fixture *testutil.ProjectFixture) database.Database {
	t.Helper()

	db, err := database.Open(context.Background(), fixture.Config.DatabaseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func requireTable(t *testing.T, fixture *testutil.ProjectFixture, table string, exists bool) {
	t.Helper()

	ok, err := openDB(t, fixture).TableExists(context.Background(), "", table)
	require.NoError(t, err)
	require.Equal(t, exists, ok, "table %s", table)
}

func countRows(t *testing.T, fixture *testutil.ProjectFixture, table string) int {
	t.Helper()

	rows, err := openDB(t, fixture).Query(context.Background(), "SELECT COUNT(*) AS CNT FROM "+table)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	return rows[0].Int("CNT")
}
