package iterator_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/change"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	. "github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	direction Direction
	visited   []string
	skipped   map[string][]filter.Result
	failOn    string
	loggers   int
}

func newRecorder(d Direction) *recorder {
	return &recorder{direction: d, skipped: make(map[string][]filter.Result)}
}

func (r *recorder) Direction() Direction { return r.direction }

func (r *recorder) Visit(ctx context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, _ []filter.Result) error {
	if scoped, ok := ChangeSet(ctx); ok && scoped == cs {
		r.loggers++
	}

	if cs.ID == r.failOn {
		return errors.New("boom")
	}

	r.visited = append(r.visited, cs.ID)
	return nil
}

func (r *recorder) Skipped(_ context.Context, cs *changelog.ChangeSet, _ *changelog.DatabaseChangeLog, denied []filter.Result) error {
	r.skipped[cs.ID] = denied
	return nil
}

func changeLog(ids ...string) *changelog.DatabaseChangeLog {
	cl := changelog.New("db/changelog.yaml", nil)
	for _, id := range ids {
		cs := changelog.NewChangeSet(id, "bob", cl)
		cs.Changes = []change.Change{&change.SQL{SQL: "SELECT " + id}}
		cl.AddChangeSet(cs)
	}

	return cl
}

func denyIDs(ids ...string) filter.Filter {
	return filter.Func(func(cs *changelog.ChangeSet) filter.Result {
		for _, id := range ids {
			if cs.ID == id {
				return filter.Deny("ids", "%s is denied", id)
			}
		}

		return filter.Accept("ids", "ok")
	})
}

func TestRunForward(t *testing.T) {
	cl := changeLog("1", "2", "3")
	rec := newRecorder(Forward)

	require.NoError(t, New(Config{ChangeLog: cl, Filters: []filter.Filter{denyIDs("2")}}).Run(context.Background(), rec))
	require.Equal(t, []string{"1", "3"}, rec.visited)
	require.Len(t, rec.skipped["2"], 1)
	require.Equal(t, 2, rec.loggers)
}

func TestRunReverse(t *testing.T) {
	rec := newRecorder(Reverse)
	require.NoError(t, New(Config{ChangeLog: changeLog("1", "2", "3")}).Run(context.Background(), rec))
	require.Equal(t, []string{"3", "2", "1"}, rec.visited)
}

func TestShortCircuit(t *testing.T) {
	second := filter.Func(func(*changelog.ChangeSet) filter.Result {
		t.Fatal("second filter must not run after a denial")
		return filter.Result{}
	})

	rec := newRecorder(Forward)
	it := New(Config{ChangeLog: changeLog("1"), Filters: []filter.Filter{denyIDs("1"), second}})
	require.NoError(t, it.Run(context.Background(), rec))
	require.Len(t, rec.skipped["1"], 1)
}

func TestStatusIsExhaustive(t *testing.T) {
	cl := changeLog("1", "2", "3")
	cl.ChangeSets()[0].Contexts = selector.MustParseExpression("prod")

	rec := newRecorder(Forward)
	it := NewStatus(Config{
		ChangeLog: cl,
		Filters: []filter.Filter{
			&filter.Context{Contexts: selector.NewContexts("dev")},
			denyIDs("1"),
			filter.NewCount(1),
		},
	})

	require.NoError(t, it.Run(context.Background(), rec))
	require.Len(t, rec.skipped["1"], 2)
	require.Equal(t, []string{"2"}, rec.visited)
	require.Equal(t, filter.NameCount, rec.skipped["3"][0].Filter)
}

func TestStatusUpToTagSkip(t *testing.T) {
	cl := changeLog("1", "2", "3")
	cl.ChangeSets()[1].Changes = []change.Change{&change.TagDatabase{Tag: "v1"}}

	rec := newRecorder(Forward)
	it := NewStatus(Config{
		ChangeLog: cl,
		Filters:   []filter.Filter{denyIDs("2"), filter.NewUpToTag("v1", nil)},
	})

	require.NoError(t, it.Run(context.Background(), rec))
	require.Equal(t, []string{"1"}, rec.visited)
	require.Len(t, rec.skipped["2"], 1)
	require.Equal(t, filter.NameUpToTag, rec.skipped["3"][0].Filter)
}

func TestFailureBookkeeping(t *testing.T) {
	rec := newRecorder(Forward)
	rec.failOn = "2"

	it := New(Config{ChangeLog: changeLog("1", "2", "3", "4")})
	require.EqualError(t, it.Run(context.Background(), rec), "boom")
	require.Equal(t, []string{"1"}, rec.visited)
	require.Equal(t, "2", it.Failed()[0].ID)

	var skipped []string
	for _, cs := range it.SkippedDueToFailure() {
		skipped = append(skipped, cs.ID)
	}
	require.Equal(t, []string{"3", "4"}, skipped)
}

func TestAllowDuplicates(t *testing.T) {
	cl := changeLog("1", "1")

	rec := newRecorder(Forward)
	require.NoError(t, New(Config{ChangeLog: cl, AllowDuplicates: true}).Run(context.Background(), rec))
	require.Equal(t, []string{"1"}, rec.visited)

	rec = newRecorder(Forward)
	require.NoError(t, New(Config{ChangeLog: cl}).Run(context.Background(), rec))
	require.Equal(t, []string{"1", "1"}, rec.visited)
}

func TestKey(t *testing.T) {
	cs := changeLog("1").ChangeSets()[0]
	cs.Labels = selector.NewLabels("core")
	cs.Contexts = selector.MustParseExpression("prod")
	cs.Dbms = []string{"sqlite", "postgresql"}

	require.Equal(t, "db/changelog.yaml::1::bob:core:prod:sqlite,postgresql", Key(cs))
}

func TestFromHistory(t *testing.T) {
	cl := changeLog("1", "2", "3")
	ran := []*changelog.RanChangeSet{
		changelog.NewRanChangeSet(cl.ChangeSets()[2], changelog.ExecExecuted, "sqlite"),
		{ChangeLog: "db/other.yaml", ID: "9", Author: "bob"},
		changelog.NewRanChangeSet(cl.ChangeSets()[0], changelog.ExecExecuted, "sqlite"),
	}

	list := FromHistory(ran, cl)
	require.Len(t, list, 2)
	require.Equal(t, "3", list[0].ID)
	require.Equal(t, "1", list[1].ID)
}

func TestLoggerOutsideVisit(t *testing.T) {
	require.NotNil(t, Logger(context.Background()))

	_, ok := ChangeSet(context.Background())
	require.False(t, ok)
}
