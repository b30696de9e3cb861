package selector

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

var (
	expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "And", Pattern: `(?i)and\b`},
		{Name: "Or", Pattern: `(?i)or\b`},
		{Name: "Not", Pattern: `(?i)not\b`},
		{Name: "Punct", Pattern: `[(),!]`},
		{Name: "Word", Pattern: `[^\s(),!]+`},
	})

	expressionParser = participle.MustBuild[disjunction](
		participle.Lexer(expressionLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

type (
	// Expression is a parsed context or label expression.
	Expression struct {
		raw  string
		root *disjunction
	}

	disjunction struct {
		Terms []*conjunction `parser:"@@ ( ( ',' | Or ) @@ )*"`
	}

	conjunction struct {
		Factors []*factor `parser:"@@ ( And @@ )*"`
	}

	factor struct {
		Negated *factor      `parser:"  ( '!' | Not ) @@"`
		Group   *disjunction `parser:"| '(' @@ ')'"`
		Word    string       `parser:"| @Word"`
	}
)

// ParseExpression parses raw into an Expression. Blank input yields an empty
// expression that matches everything.
func ParseExpression(raw string) (*Expression, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Expression{}, nil
	}

	root, err := expressionParser.ParseString("", raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid expression %q", raw)
	}

	return &Expression{raw: raw, root: root}, nil
}

// MustParseExpression is like ParseExpression but panics on error.
func MustParseExpression(raw string) *Expression {
	e, err := ParseExpression(raw)
	if err != nil {
		panic(err)
	}

	return e
}

// And combines expressions so that all of them must match. Empty expressions
// are dropped; compound ones are parenthesised.
func And(exprs ...*Expression) (*Expression, error) {
	var parts []string
	for _, e := range exprs {
		if e.IsEmpty() {
			continue
		}
		parts = append(parts, e.raw)
	}

	switch len(parts) {
	case 0:
		return &Expression{}, nil
	case 1:
		return ParseExpression(parts[0])
	}

	for i, p := range parts {
		if isCompound(p) {
			parts[i] = "(" + p + ")"
		}
	}

	return ParseExpression(strings.Join(parts, " and "))
}

// IsEmpty reports whether the expression has no terms.
func (e *Expression) IsEmpty() bool {
	return e == nil || e.root == nil
}

// String returns the expression as written.
func (e *Expression) String() string {
	if e == nil {
		return ""
	}

	return e.raw
}

// Matches evaluates the expression against a set of values. An empty
// expression or an empty set matches.
func (e *Expression) Matches(values Set) bool {
	if e.IsEmpty() || values.IsEmpty() {
		return true
	}

	return e.root.eval(values)
}

func (d *disjunction) eval(values Set) bool {
	for _, t := range d.Terms {
		if t.eval(values) {
			return true
		}
	}

	return false
}

func (c *conjunction) eval(values Set) bool {
	for _, f := range c.Factors {
		if !f.eval(values) {
			return false
		}
	}

	return true
}

func (f *factor) eval(values Set) bool {
	switch {
	case f.Negated != nil:
		return !f.Negated.eval(values)
	case f.Group != nil:
		return f.Group.eval(values)
	default:
		return values.Contains(f.Word)
	}
}

func isCompound(raw string) bool {
	lowered := strings.ToLower(raw)
	return strings.ContainsAny(raw, ", ") || strings.Contains(lowered, " or ") || strings.Contains(lowered, " and ")
}
