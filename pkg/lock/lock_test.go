package lock_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	. "github.com/pseudomuto/changekeeper/pkg/lock"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *database.SQLDatabase {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{URL: "sqlite://file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	first := New(db, Config{Owner: "host-a"})
	second := New(db, Config{Owner: "host-b", Wait: 50 * time.Millisecond, Poll: 10 * time.Millisecond})

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.HasLock())

	locks, err := second.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Equal(t, "host-a", locks[0].LockedBy)
	require.Equal(t, 1, locks[0].ID)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	err = second.WaitForLock(ctx)
	require.True(t, errors.Is(err, ErrTimeout))
	require.Contains(t, err.Error(), "host-a")

	// Only the holder can release.
	require.NoError(t, second.Release(ctx))
	locks, err = first.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)

	require.NoError(t, first.Release(ctx))
	require.False(t, first.HasLock())

	require.NoError(t, second.WaitForLock(ctx))
	require.True(t, second.HasLock())
}

func TestForceRelease(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	holder := New(db, Config{Owner: "host-a"})
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, New(db, Config{}).ForceRelease(ctx))

	locks, err := holder.ListLocks(ctx)
	require.NoError(t, err)
	require.Empty(t, locks)
}

func TestWaitForLockCancelled(t *testing.T) {
	db := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := New(db, Config{Owner: "host-a"}).Acquire(ctx)
	require.NoError(t, err)

	cancel()
	err = New(db, Config{Owner: "host-b", Poll: time.Second}).WaitForLock(ctx)
	require.Error(t, err)
}

func TestListLocksWithoutTable(t *testing.T) {
	locks, err := New(openSQLite(t), Config{}).ListLocks(context.Background())
	require.NoError(t, err)
	require.Empty(t, locks)
}

func TestStatements(t *testing.T) {
	db := database.NewMock(database.PostgreSQL)

	_, err := New(db, Config{Owner: "host-a"}).Acquire(context.Background())
	require.NoError(t, err)

	stmts := db.Executed()
	require.Len(t, stmts, 3)
	require.True(t, strings.HasPrefix(stmts[0], `CREATE TABLE "public"."DATABASECHANGELOGLOCK"`))
	require.Equal(t, `INSERT INTO "public"."DATABASECHANGELOGLOCK" ("ID", "LOCKED") VALUES ($1, $2)`, stmts[1])
	require.Equal(t, `UPDATE "public"."DATABASECHANGELOGLOCK" SET "LOCKED" = $1, "LOCKGRANTED" = $2, "LOCKEDBY" = $3 WHERE "ID" = $4 AND "LOCKED" = $5`, stmts[2])
}

func TestDefaultOwner(t *testing.T) {
	a, b := DefaultOwner(), DefaultOwner()
	require.NotEqual(t, a, b)
	require.Contains(t, a, " (")
}

func TestNoOp(t *testing.T) {
	ctx := context.Background()
	lk := &NoOp{}

	require.NoError(t, lk.WaitForLock(ctx))
	require.True(t, lk.HasLock())
	require.NoError(t, lk.Release(ctx))
	require.False(t, lk.HasLock())

	locks, err := lk.ListLocks(ctx)
	require.NoError(t, err)
	require.Empty(t, locks)
}
