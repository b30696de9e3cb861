package fastcheck_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	. "github.com/pseudomuto/changekeeper/pkg/fastcheck"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
)

// resetCounter counts calls to Reset.
type resetCounter struct {
	*history.Mock
	resets int
}

func (r *resetCounter) Reset() { r.resets++ }

func request(svc history.Service, ids ...string) Request {
	cl := changelog.New("db/changelog.yaml", nil)
	for _, id := range ids {
		cs := changelog.NewChangeSet(id, "bob", cl)
		cs.Changes = []change.Change{&change.SQL{SQL: "SELECT " + id}}
		cl.AddChangeSet(cs)
	}

	return Request{
		DB:        database.NewMock(database.SQLite),
		History:   svc,
		ChangeLog: cl,
		Contexts:  selector.NewContexts("prod"),
	}
}

func TestIsUpToDate(t *testing.T) {
	ctx := context.Background()
	svc := &resetCounter{Mock: history.NewMock("sqlite")}
	req := request(svc, "1", "2")

	fc := New()
	require.False(t, fc.IsUpToDate(ctx, req))
	require.Equal(t, 1, svc.resets)

	for _, cs := range req.ChangeLog.ChangeSets() {
		require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))
	}

	require.True(t, fc.IsUpToDate(ctx, req))
	require.Equal(t, 2, svc.resets)

	// Cached: history is not consulted again.
	svc.Err = errors.New("unreachable")
	require.True(t, fc.IsUpToDate(ctx, req))
	require.Equal(t, 2, svc.resets)

	fc.Clear()
	require.False(t, fc.IsUpToDate(ctx, req))
}

func TestIsUpToDateKeyedBySelection(t *testing.T) {
	ctx := context.Background()
	svc := history.NewMock("sqlite")
	req := request(svc)

	fc := New()
	require.True(t, fc.IsUpToDate(ctx, req))

	other := req
	other.Contexts = selector.NewContexts("test")
	require.NotEqual(t, Key(req), Key(other))

	svc.Err = errors.New("unreachable")
	require.False(t, fc.IsUpToDate(ctx, other))
	require.True(t, fc.IsUpToDate(ctx, req))
}

func TestUnrun(t *testing.T) {
	ctx := context.Background()
	svc := history.NewMock("sqlite")
	req := request(svc, "1", "2", "3")

	cs := req.ChangeLog.ChangeSets()
	require.NoError(t, svc.SetExecType(ctx, cs[0], changelog.ExecExecuted))
	cs[2].Contexts = selector.MustParseExpression("test")

	unrun, err := Unrun(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []*changelog.ChangeSet{cs[1]}, unrun)
}

func TestIsUpToDateIncompatibleChecksums(t *testing.T) {
	ctx := context.Background()
	svc := history.NewMock("sqlite")
	req := request(svc, "1", "2")

	for _, cs := range req.ChangeLog.ChangeSets() {
		require.NoError(t, svc.SetExecType(ctx, cs, changelog.ExecExecuted))
	}

	svc.Rows[0].CheckSum = checksum.Compute("SELECT 1", checksum.V8)
	require.False(t, svc.IsDatabaseChecksumsCompatible())

	fc := New()
	require.False(t, fc.IsUpToDate(ctx, req))

	_, err := Unrun(ctx, req)
	require.ErrorIs(t, err, ErrIncompatibleChecksums)

	// Once upgraded the answer is cached as usual.
	svc.Rows[0].CheckSum = req.ChangeLog.ChangeSets()[0].CheckSum(checksum.Latest, "sqlite")
	require.True(t, fc.IsUpToDate(ctx, req))
}

// catalogDB reports a fixed default catalog.
type catalogDB struct {
	database.Database
	catalog string
}

func (c catalogDB) DefaultCatalogName() string { return c.catalog }

func TestKeyIncludesCatalog(t *testing.T) {
	req := request(history.NewMock("sqlite"))
	a, b := req, req
	a.DB = catalogDB{Database: req.DB, catalog: "main"}
	b.DB = catalogDB{Database: req.DB, catalog: "archive"}

	require.NotEqual(t, Key(a), Key(b))
}
