package history_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	. "github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *database.SQLDatabase {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{URL: "sqlite://file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newChangeLog(ids ...string) *changelog.DatabaseChangeLog {
	cl := changelog.New("db/changelog.yaml", nil)
	for _, id := range ids {
		cs := changelog.NewChangeSet(id, "bob", cl)
		cs.Changes = []change.Change{&change.SQL{SQL: "SELECT " + id}}
		cl.AddChangeSet(cs)
	}

	return cl
}

func TestStandardInitCreatesTable(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	svc := NewStandard(db)
	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.Init(ctx))

	cols, err := db.Columns(ctx, "", "DATABASECHANGELOG")
	require.NoError(t, err)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	require.Equal(t, Columns, names)
	require.True(t, svc.IsDatabaseChecksumsCompatible())
}

func TestStandardSetExecType(t *testing.T) {
	ctx := context.Background()
	cl := newChangeLog("1", "2", "3")
	cs := cl.ChangeSets()

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))

	require.NoError(t, svc.SetExecType(ctx, cs[0], changelog.ExecExecuted))
	require.NoError(t, svc.SetExecType(ctx, cs[1], changelog.ExecFailed))
	require.NoError(t, svc.SetExecType(ctx, cs[2], changelog.ExecSkipped))

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)

	row := ran[0]
	require.Equal(t, "db/changelog.yaml", row.ChangeLog)
	require.Equal(t, "1", row.ID)
	require.Equal(t, "bob", row.Author)
	require.Equal(t, changelog.ExecExecuted, row.ExecType)
	require.Equal(t, 1, row.OrderExecuted)
	require.Equal(t, cs[0].CheckSum(checksum.Latest, "sqlite"), row.CheckSum)
	require.Equal(t, svc.DeploymentID(), row.DeploymentID)
	require.Len(t, row.DeploymentID, 10)
	require.False(t, row.DateExecuted.IsZero())

	status, err := svc.RunStatus(ctx, cs[0])
	require.NoError(t, err)
	require.Equal(t, changelog.AlreadyRan, status)

	status, err = svc.RunStatus(ctx, cs[1])
	require.NoError(t, err)
	require.Equal(t, changelog.NotRan, status)

	ok, err := svc.HasRun(ctx, "db/changelog.yaml", "1", "bob")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStandardRerun(t *testing.T) {
	ctx := context.Background()
	cs := newChangeLog("1").ChangeSets()[0]

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))

	cs.Changes = []change.Change{&change.SQL{SQL: "SELECT 2"}}
	cs.ClearCheckSum()
	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecReran))

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)
	require.Equal(t, changelog.ExecReran, ran[0].ExecType)
	require.Equal(t, 2, ran[0].OrderExecuted)
	require.Equal(t, cs.CheckSum(checksum.Latest, "sqlite"), ran[0].CheckSum)
}

func TestStandardRerunRefreshesMetadata(t *testing.T) {
	ctx := context.Background()
	cs := newChangeLog("1").ChangeSets()[0]

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))

	cs.Comments = "now with a tag"
	cs.Contexts = selector.MustParseExpression("prod")
	cs.Labels = selector.NewLabels("billing")
	cs.Changes = append(cs.Changes, &change.TagDatabase{Tag: "v2"})
	cs.ClearCheckSum()
	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecReran))

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)
	require.Equal(t, "now with a tag", ran[0].Comments)
	require.Equal(t, cs.ContextString(), ran[0].Contexts)
	require.Equal(t, cs.EffectiveLabels().String(), ran[0].Labels)
	require.Equal(t, "v2", ran[0].Tag)
	require.Equal(t, svc.DeploymentID(), ran[0].DeploymentID)
}

func TestStandardTag(t *testing.T) {
	ctx := context.Background()
	cs := newChangeLog("1").ChangeSets()[0]

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))

	require.NoError(t, svc.Tag(ctx, "empty"))
	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)
	require.Equal(t, InternalAuthor, ran[0].Author)
	require.Equal(t, InternalPath, ran[0].ChangeLog)
	require.Equal(t, "empty", ran[0].Tag)

	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))
	require.NoError(t, svc.Tag(ctx, "v1"))

	ran, err = svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Equal(t, "v1", ran[1].Tag)

	exists, err := svc.TagExists(ctx, "v1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = svc.TagExists(ctx, "v2")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStandardRemoveFromHistory(t *testing.T) {
	ctx := context.Background()
	cs := newChangeLog("1", "2").ChangeSets()

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.SetExecType(ctx, cs[0], changelog.ExecExecuted))
	require.NoError(t, svc.SetExecType(ctx, cs[1], changelog.ExecMarkRan))
	require.NoError(t, svc.RemoveFromHistory(ctx, cs[0]))

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)
	require.Equal(t, "2", ran[0].ID)
	require.Equal(t, changelog.ExecMarkRan, ran[0].ExecType)
}

func TestStandardChecksums(t *testing.T) {
	ctx := context.Background()
	cl := newChangeLog("1", "2")

	svc := NewStandard(openSQLite(t))
	require.NoError(t, svc.Init(ctx))
	for _, cs := range cl.ChangeSets() {
		require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))
	}

	require.NoError(t, svc.ClearAllCheckSums(ctx))
	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	for _, r := range ran {
		require.True(t, r.CheckSum.IsZero())
	}

	require.NoError(t, svc.UpgradeChecksums(ctx, cl))
	ran, err = svc.RanChangeSets(ctx)
	require.NoError(t, err)
	for i, r := range ran {
		require.Equal(t, cl.ChangeSets()[i].CheckSum(checksum.Latest, "sqlite"), r.CheckSum)
	}
}

func TestStandardUpgradesLegacyTable(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	for _, stmt := range []string{
		`CREATE TABLE "DATABASECHANGELOG" ("ID" VARCHAR(63) NOT NULL, "AUTHOR" VARCHAR(63) NOT NULL,
			"FILENAME" VARCHAR(200) NOT NULL, "DATEEXECUTED" DATETIME NOT NULL, "MD5SUM" VARCHAR(32))`,
		`INSERT INTO "DATABASECHANGELOG" VALUES ('1', 'bob', 'db/changelog.yaml', '2020-01-02 03:04:05', 'd41d8cd98f00b204e9800998ecf8427e')`,
	} {
		require.NoError(t, db.Exec(ctx, stmt))
	}

	svc := NewStandard(db)
	require.NoError(t, svc.Init(ctx))
	require.False(t, svc.IsDatabaseChecksumsCompatible())

	cols, err := db.Columns(ctx, "", "DATABASECHANGELOG")
	require.NoError(t, err)
	require.Len(t, cols, len(Columns))

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Len(t, ran, 1)
	require.Equal(t, changelog.ExecExecuted, ran[0].ExecType)
	require.Equal(t, -1, ran[0].OrderExecuted)
	require.Equal(t, checksum.V7, ran[0].CheckSum.Version())

	next, err := svc.NextSequenceValue(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, next)
}

func TestStandardStatements(t *testing.T) {
	ctx := context.Background()
	cs := newChangeLog("1").ChangeSets()[0]

	db := database.NewMock(database.PostgreSQL)
	db.Tables["DATABASECHANGELOG"] = nil

	svc := NewStandard(db)
	require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecReran))
	require.NoError(t, svc.RemoveFromHistory(ctx, cs))
	require.NoError(t, svc.ClearAllCheckSums(ctx))

	require.Equal(t, []string{
		`UPDATE "public"."DATABASECHANGELOG" SET "DATEEXECUTED" = $1, "ORDEREXECUTED" = $2, "MD5SUM" = $3, "EXECTYPE" = $4, "DEPLOYMENT_ID" = $5 WHERE "ID" = $6 AND "AUTHOR" = $7 AND "FILENAME" = $8`,
		`DELETE FROM "public"."DATABASECHANGELOG" WHERE "ID" = $1 AND "AUTHOR" = $2 AND "FILENAME" = $3`,
		`UPDATE "public"."DATABASECHANGELOG" SET "MD5SUM" = NULL`,
	}, db.Executed())
}

func TestStandardCreateClickHouse(t *testing.T) {
	db := database.NewMock(database.ClickHouse)
	require.NoError(t, NewStandard(db).Init(context.Background()))

	stmts := db.Executed()
	require.Len(t, stmts, 1)
	require.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE `DATABASECHANGELOG`"))
	require.Contains(t, stmts[0], "`MD5SUM` Nullable(String)")
	require.Contains(t, stmts[0], "`DATEEXECUTED` DateTime64(3)")
	require.True(t, strings.HasSuffix(stmts[0], "ENGINE = MergeTree ORDER BY tuple()"))
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	svc := NewStandard(db)
	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.Destroy(ctx))

	exists, err := db.TableExists(ctx, "", "DATABASECHANGELOG")
	require.NoError(t, err)
	require.False(t, exists)

	ran, err := svc.RanChangeSets(ctx)
	require.NoError(t, err)
	require.Empty(t, ran)
}
