package database_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/utils"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *database.SQLDatabase {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{URL: "sqlite://file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{URL: "oracle://scott@tiger"})
	require.ErrorContains(t, err, "unsupported database url scheme")

	_, err = database.Open(context.Background(), database.Config{URL: "nonsense"})
	require.ErrorContains(t, err, "invalid database url")
}

func TestSQLiteDatabase(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.Equal(t, "sqlite", db.ShortName())
	require.Equal(t, "DATABASECHANGELOG", db.HistoryTableName())
	require.Equal(t, "DATABASECHANGELOGLOCK", db.LockTableName())

	exists, err := db.TableExists(ctx, "", "person")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, db.Exec(ctx, `CREATE TABLE "person" ("id" INTEGER NOT NULL, "name" VARCHAR(35))`))

	exists, err = db.TableExists(ctx, "", "person")
	require.NoError(t, err)
	require.True(t, exists)

	cols, err := db.Columns(ctx, "", "person")
	require.NoError(t, err)
	require.Equal(t, []database.Column{
		{Name: "id", Type: "INTEGER", Nullable: false},
		{Name: "name", Type: "VARCHAR(35)", Size: 35, Nullable: true},
	}, cols)

	require.NoError(t, db.Exec(ctx, `INSERT INTO "person" ("id", "name") VALUES (?, ?)`, 1, "bob"))

	rows, err := db.Query(ctx, `SELECT "id", "name" FROM "person"`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Int("id"))
	require.Equal(t, "bob", rows[0].String("NAME"))

	v, err := db.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, v.Major)
}

func TestSQLiteTransactions(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.NoError(t, db.Exec(ctx, `CREATE TABLE "t" ("id" INTEGER)`))

	require.NoError(t, db.Begin(ctx))
	require.Error(t, db.Begin(ctx))
	require.NoError(t, db.Exec(ctx, `INSERT INTO "t" VALUES (1)`))
	require.NoError(t, db.Rollback())

	rows, err := db.Query(ctx, `SELECT COUNT(*) AS N FROM "t"`)
	require.NoError(t, err)
	require.Equal(t, 0, rows[0].Int("n"))

	require.NoError(t, db.Begin(ctx))
	require.NoError(t, db.Exec(ctx, `INSERT INTO "t" VALUES (1)`))
	require.NoError(t, db.Commit())

	rows, err = db.Query(ctx, `SELECT COUNT(*) AS N FROM "t"`)
	require.NoError(t, err)
	require.Equal(t, 1, rows[0].Int("n"))

	// no open transaction is a no-op
	require.NoError(t, db.Commit())
	require.NoError(t, db.Rollback())
}

func TestSQLiteAutoCommit(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	require.True(t, db.AutoCommit())

	require.NoError(t, db.Exec(ctx, `CREATE TABLE "t" ("id" INTEGER)`))
	require.NoError(t, db.SetAutoCommit(false))
	require.NoError(t, db.Begin(ctx))
	require.NoError(t, db.Exec(ctx, `INSERT INTO "t" VALUES (1)`))

	// Switching auto-commit back on commits the open transaction.
	require.NoError(t, db.SetAutoCommit(true))
	require.NoError(t, db.Rollback())

	rows, err := db.Query(ctx, `SELECT COUNT(*) AS N FROM "t"`)
	require.NoError(t, err)
	require.Equal(t, 1, rows[0].Int("n"))
}

func TestObjectQuotingStrategy(t *testing.T) {
	db := database.NewMock(database.ClickHouse)
	require.Empty(t, db.ObjectQuotingStrategy())
	require.Equal(t, "`events`", db.Quoter().Identifier("events"))

	db.SetObjectQuotingStrategy(utils.QuoteLegacy)
	require.Equal(t, "events", db.Quoter().Identifier("events"))
	require.Equal(t, "`select`", db.Quoter().Identifier("select"))

	require.True(t, database.NewMock(database.PostgreSQL).SupportsDDLInTransaction())
	require.False(t, db.SupportsDDLInTransaction())
}

func TestExecErrorCarriesStatement(t *testing.T) {
	db := openSQLite(t)

	err := db.Exec(context.Background(), "NOT SQL")

	var dbErr *database.Error
	require.True(t, errors.As(err, &dbErr))
	require.Equal(t, "NOT SQL", dbErr.Statement)
	require.Equal(t, dbErr.Err, errors.Cause(err))
}

func TestOffline(t *testing.T) {
	var buf bytes.Buffer
	db := database.NewOffline(database.PostgreSQL, database.Config{}, &buf)

	ctx := context.Background()
	require.NoError(t, db.Comment("Changeset db/a.yaml::1::jane"))
	require.NoError(t, db.Exec(ctx, `INSERT INTO "t" ("a", "b", "c") VALUES ($1, $2, $3);`, "it's", 42, nil))
	require.NoError(t, db.Exec(ctx, `UPDATE "t" SET "d" = $1`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	require.Equal(t,
		"-- Changeset db/a.yaml::1::jane\n"+
			`INSERT INTO "t" ("a", "b", "c") VALUES ('it''s', 42, NULL);`+"\n\n"+
			`UPDATE "t" SET "d" = '2024-01-02 03:04:05.000';`+"\n\n",
		buf.String(),
	)

	_, err := db.Query(ctx, "SELECT 1")
	require.ErrorIs(t, err, database.ErrOffline)
	require.Equal(t, "public", db.DefaultSchemaName())
}

func TestOfflineQuestionMarkPlaceholders(t *testing.T) {
	var buf bytes.Buffer
	db := database.NewOffline(database.SQLite, database.Config{}, &buf)

	require.NoError(t, db.Exec(context.Background(), "INSERT INTO t VALUES (?, ?)", "a", true))
	require.Equal(t, "INSERT INTO t VALUES ('a', TRUE);\n\n", buf.String())
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := database.NewMock(database.SQLite)
	m.Results["FROM person"] = []database.Row{{"ID": int64(7)}}
	m.Failures["DROP"] = errors.New("boom")
	m.Tables["PERSON"] = nil

	require.NoError(t, m.Begin(ctx))
	require.NoError(t, m.Exec(ctx, "CREATE TABLE x (id INT)"))
	require.NoError(t, m.Commit())
	require.Error(t, m.Exec(ctx, "DROP TABLE x"))

	rows, err := m.Query(ctx, "SELECT id FROM person")
	require.NoError(t, err)
	require.Equal(t, 7, rows[0].Int("id"))

	ok, err := m.TableExists(ctx, "", "person")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, []string{"CREATE TABLE x (id INT)"}, m.Executed())
	require.Equal(t, 1, m.Commits)
	require.Equal(t, "mock://sqlite", m.ConnectionURL())
}

func TestRow(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	r := database.Row{
		"A": []byte("bytes"),
		"B": "12",
		"C": nil,
		"D": "2024-05-06 07:08:09",
		"E": ts,
	}

	require.Equal(t, "bytes", r.String("a"))
	require.Equal(t, 12, r.Int("b"))
	require.True(t, r.IsNull("c"))
	require.True(t, r.IsNull("missing"))
	require.Empty(t, r.String("c"))
	require.Equal(t, ts, r.Time("d"))
	require.Equal(t, ts, r.Time("e"))
	require.True(t, r.Time("a").IsZero())
}
