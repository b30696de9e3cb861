package utils

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// QuotingStrategy decides which identifiers a Quoter wraps in quotes.
type QuotingStrategy string

const (
	// QuoteAllObjects quotes every identifier. It is the zero value's
	// behaviour.
	QuoteAllObjects QuotingStrategy = "QUOTE_ALL_OBJECTS"

	// QuoteLegacy quotes reserved words and names that are not plain
	// identifiers, e.g. ones with spaces or a leading digit.
	QuoteLegacy QuotingStrategy = "LEGACY"

	// QuoteOnlyReservedWords quotes reserved words only.
	QuoteOnlyReservedWords QuotingStrategy = "QUOTE_ONLY_RESERVED_WORDS"
)

// Quoter quotes SQL identifiers with a dialect specific pair of characters.
type Quoter struct {
	Open  string
	Close string

	// Strategy selects the identifiers to quote. Empty quotes all of them.
	Strategy QuotingStrategy
}

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		ADD ALL ALTER AND ANY AS ASC BETWEEN BY CASE CHECK COLUMN CONSTRAINT
		CREATE CROSS CURRENT_DATE CURRENT_TIME CURRENT_TIMESTAMP DEFAULT DELETE
		DESC DISTINCT DROP ELSE END EXISTS FALSE FOR FOREIGN FROM FULL GRANT
		GROUP HAVING IN INDEX INNER INSERT INTERSECT INTO IS JOIN KEY LEFT LIKE
		LIMIT NOT NULL OFFSET ON OR ORDER OUTER PRIMARY REFERENCES RIGHT SELECT
		SET TABLE THEN TO TRUE UNION UNIQUE UPDATE USER USING VALUES VIEW WHEN
		WHERE WITH`) {
		reservedWords[w] = struct{}{}
	}
}

// ParseQuotingStrategy reads an objectQuotingStrategy value. Blank yields the
// empty strategy, which leaves the current one in place.
func ParseQuotingStrategy(s string) (QuotingStrategy, error) {
	switch qs := QuotingStrategy(strings.ToUpper(strings.TrimSpace(s))); qs {
	case "", QuoteAllObjects, QuoteLegacy, QuoteOnlyReservedWords:
		return qs, nil
	default:
		return "", errors.Errorf("unknown object quoting strategy: %s", s)
	}
}

// IsReservedWord reports whether name is an SQL reserved word.
func IsReservedWord(name string) bool {
	_, ok := reservedWords[strings.ToUpper(name)]
	return ok
}

// WithStrategy returns a copy of q using strategy s.
func (q Quoter) WithStrategy(s QuotingStrategy) Quoter {
	q.Strategy = s
	return q
}

func (q Quoter) needsQuotes(part string) bool {
	switch q.Strategy {
	case QuoteLegacy:
		return IsReservedWord(part) || !plainIdentifier.MatchString(part)
	case QuoteOnlyReservedWords:
		return IsReservedWord(part)
	default:
		return true
	}
}

var (
	// DoubleQuote is the ANSI quoting used by PostgreSQL and SQLite.
	DoubleQuote = Quoter{Open: `"`, Close: `"`}

	// Backtick is the quoting used by ClickHouse.
	Backtick = Quoter{Open: "`", Close: "`"}
)

// Identifier quotes name, handling dotted identifiers by quoting each part.
// Parts the strategy does not require quoting are left as they are.
//
// Examples (DoubleQuote):
//   - "table" -> "\"table\""
//   - "schema.table" -> "\"schema\".\"table\""
//   - "\"table\"" -> "\"table\"" (already quoted, not double quoted)
//   - "" -> ""
func (q Quoter) Identifier(name string) string {
	if name == "" {
		return ""
	}

	// A single quoted identifier may legitimately contain dots.
	if q.IsQuoted(name) {
		return name
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if q.IsQuoted(part) || !q.needsQuotes(part) {
			continue
		}

		parts[i] = q.Open + strings.ReplaceAll(part, q.Close, q.Close+q.Close) + q.Close
	}

	return strings.Join(parts, ".")
}

// Qualified quotes name prefixed by schema. An empty schema yields just the
// quoted name.
//
// Examples (Backtick):
//   - ("analytics", "events") -> "`analytics`.`events`"
//   - ("", "events") -> "`events`"
func (q Quoter) Qualified(schema, name string) string {
	if schema != "" {
		return q.Identifier(schema) + "." + q.Identifier(name)
	}

	return q.Identifier(name)
}

// IsQuoted reports whether s is a single identifier wrapped in quotes.
//
// Examples (DoubleQuote):
//   - "\"table\"" -> true
//   - "table" -> false
//   - "\"db\".\"table\"" -> false (qualified name)
func (q Quoter) IsQuoted(s string) bool {
	if len(s) < len(q.Open)+len(q.Close) {
		return false
	}

	if !strings.HasPrefix(s, q.Open) || !strings.HasSuffix(s, q.Close) {
		return false
	}

	inner := s[len(q.Open) : len(s)-len(q.Close)]
	return !strings.Contains(inner, q.Close)
}

// Strip removes every quote character from s.
func (q Quoter) Strip(s string) string {
	s = strings.ReplaceAll(s, q.Open, "")
	return strings.ReplaceAll(s, q.Close, "")
}
