package utils_test

import (
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/utils"
	"github.com/stretchr/testify/require"
)

func TestQuoterIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		quoter   utils.Quoter
		input    string
		expected string
	}{
		{
			name:     "simple identifier",
			quoter:   utils.DoubleQuote,
			input:    "table",
			expected: `"table"`,
		},
		{
			name:     "qualified identifier",
			quoter:   utils.DoubleQuote,
			input:    "schema.table",
			expected: `"schema"."table"`,
		},
		{
			name:     "already quoted",
			quoter:   utils.DoubleQuote,
			input:    `"table"`,
			expected: `"table"`,
		},
		{
			name:     "partially quoted",
			quoter:   utils.DoubleQuote,
			input:    `"schema".table`,
			expected: `"schema"."table"`,
		},
		{
			name:     "quoted identifier with dot",
			quoter:   utils.DoubleQuote,
			input:    `"my.table"`,
			expected: `"my.table"`,
		},
		{
			name:     "embedded quote doubled",
			quoter:   utils.DoubleQuote,
			input:    `we"ird`,
			expected: `"we""ird"`,
		},
		{
			name:     "backtick three parts",
			quoter:   utils.Backtick,
			input:    "db.schema.table",
			expected: "`db`.`schema`.`table`",
		},
		{
			name:     "empty",
			quoter:   utils.Backtick,
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.quoter.Identifier(tt.input))
		})
	}
}

func TestQuoterQualified(t *testing.T) {
	require.Equal(t, "`analytics`.`events`", utils.Backtick.Qualified("analytics", "events"))
	require.Equal(t, "`events`", utils.Backtick.Qualified("", "events"))
	require.Equal(t, `"app"."person"`, utils.DoubleQuote.Qualified("app", "person"))
}

func TestQuoterIsQuoted(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{input: `"table"`, expected: true},
		{input: "table", expected: false},
		{input: `"db"."table"`, expected: false},
		{input: `"`, expected: false},
		{input: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, utils.DoubleQuote.IsQuoted(tt.input))
		})
	}
}

func TestQuoterStrip(t *testing.T) {
	require.Equal(t, "db.table", utils.Backtick.Strip("`db`.`table`"))
	require.Equal(t, "table", utils.DoubleQuote.Strip(`"table"`))
}

func TestQuoterStrategy(t *testing.T) {
	tests := []struct {
		strategy utils.QuotingStrategy
		input    string
		expected string
	}{
		{strategy: utils.QuoteAllObjects, input: "app.person", expected: `"app"."person"`},
		{strategy: utils.QuoteLegacy, input: "app.person", expected: "app.person"},
		{strategy: utils.QuoteLegacy, input: "app.order", expected: `app."order"`},
		{strategy: utils.QuoteLegacy, input: "first name", expected: `"first name"`},
		{strategy: utils.QuoteLegacy, input: "1st", expected: `"1st"`},
		{strategy: utils.QuoteOnlyReservedWords, input: "first name", expected: "first name"},
		{strategy: utils.QuoteOnlyReservedWords, input: "user", expected: `"user"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.input, func(t *testing.T) {
			q := utils.DoubleQuote.WithStrategy(tt.strategy)
			require.Equal(t, tt.expected, q.Identifier(tt.input))
		})
	}

	require.Equal(t, `"table"`, utils.DoubleQuote.Identifier("table"))
}

func TestParseQuotingStrategy(t *testing.T) {
	qs, err := utils.ParseQuotingStrategy(" legacy ")
	require.NoError(t, err)
	require.Equal(t, utils.QuoteLegacy, qs)

	qs, err = utils.ParseQuotingStrategy("")
	require.NoError(t, err)
	require.Empty(t, qs)

	_, err = utils.ParseQuotingStrategy("sometimes")
	require.ErrorContains(t, err, "unknown object quoting strategy")
}
