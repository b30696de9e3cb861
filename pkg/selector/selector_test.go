package selector_test

import (
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
)

func TestExpressionMatches(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		contexts string
		want     bool
	}{
		{"empty expression", "", "prod", true},
		{"empty runtime", "dev", "", true},
		{"single word", "dev", "dev", true},
		{"single word miss", "dev", "prod", false},
		{"case insensitive", "DEV", "dev", true},
		{"comma is or", "dev, test", "test", true},
		{"or keyword", "dev or test", "test", true},
		{"and", "dev and test", "dev", false},
		{"and satisfied", "dev AND test", "dev,test", true},
		{"bang negation", "!prod", "dev", true},
		{"not keyword", "not prod", "prod", false},
		{"grouping", "(dev or test) and !slow", "test", true},
		{"grouping excluded", "(dev or test) and !slow", "test,slow", false},
		{"words containing keywords", "android, orders", "orders", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := selector.ParseExpression(tt.expr)
			require.NoError(t, err)
			require.Equal(t, tt.want, expr.Matches(selector.NewContexts(tt.contexts)))
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	for _, raw := range []string{"dev and", "(dev", "dev or or test"} {
		_, err := selector.ParseExpression(raw)
		require.Error(t, err, raw)
	}
}

func TestAnd(t *testing.T) {
	parent := selector.MustParseExpression("dev, test")
	child := selector.MustParseExpression("!slow")

	combined, err := selector.And(parent, &selector.Expression{}, child)
	require.NoError(t, err)
	require.Equal(t, "(dev, test) and !slow", combined.String())
	require.True(t, combined.Matches(selector.NewContexts("dev")))
	require.False(t, combined.Matches(selector.NewContexts("dev,slow")))

	single, err := selector.And(nil, child)
	require.NoError(t, err)
	require.Equal(t, "!slow", single.String())
}

func TestSet(t *testing.T) {
	s := selector.NewLabels(" Alpha, beta ,,alpha")
	require.Equal(t, []string{"alpha", "beta"}, s.Values())
	require.True(t, s.Contains("ALPHA"))
	require.Equal(t, "alpha,beta", s.String())
	require.True(t, selector.NewSet("").IsEmpty())
}

func TestDatabaseMatches(t *testing.T) {
	tests := []struct {
		definition string
		db         string
		ifEmpty    bool
		want       bool
	}{
		{"", "sqlite", true, true},
		{"", "sqlite", false, false},
		{"sqlite", "sqlite", true, true},
		{"postgresql", "sqlite", true, false},
		{"postgresql, sqlite", "SQLite", true, true},
		{"!sqlite", "sqlite", true, false},
		{"!sqlite", "postgresql", true, true},
		{"!sqlite, clickhouse", "postgresql", true, false},
		{"all", "clickhouse", true, true},
		{"none", "clickhouse", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.definition+"/"+tt.db, func(t *testing.T) {
			got := selector.DatabaseMatches(selector.SplitDatabases(tt.definition), tt.db, tt.ifEmpty)
			require.Equal(t, tt.want, got)
		})
	}
}
