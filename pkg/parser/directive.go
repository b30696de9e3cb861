package parser

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

type (
	// attrList is the tail of a directive line: key:value pairs followed by
	// optional free text, which is kept verbatim.
	attrList struct {
		Attrs []*attr `parser:"@@*"`
		Rest  *rest   `parser:"@@?"`
	}

	attr struct {
		Key   string `parser:"@Key"`
		Value string `parser:"( @String | @Bare )?"`
	}

	rest struct {
		Pos    lexer.Position
		Tokens []string `parser:"@( Key | String | Bare | Text )+"`
	}

	// attrs holds parsed attributes in source order.
	attrs struct {
		keys   []string
		values map[string]string
		text   string
	}
)

var (
	directiveLexer = lexer.MustStateful(lexer.Rules{
		"Root": {
			{Name: "Whitespace", Pattern: `\s+`},
			{Name: "Key", Pattern: `[A-Za-z][\w\-]*:`, Action: lexer.Push("Value")},
			{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
			{Name: "Text", Pattern: `\S+`},
		},
		"Value": {
			{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`, Action: lexer.Pop()},
			{Name: "Bare", Pattern: `[^\s"]+`, Action: lexer.Pop()},
			{Name: "Whitespace", Pattern: `\s+`, Action: lexer.Pop()},
		},
	})

	directiveParser = participle.MustBuild[attrList](
		participle.Lexer(directiveLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
)

// parseAttrs splits s into attributes and trailing text.
func parseAttrs(s string) (*attrs, error) {
	out := &attrs{values: make(map[string]string)}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}

	list, err := directiveParser.ParseString("", s)
	if err != nil {
		return nil, err
	}

	for _, a := range list.Attrs {
		key := strings.TrimSuffix(a.Key, ":")
		if _, ok := out.values[key]; !ok {
			out.keys = append(out.keys, key)
		}
		out.values[key] = a.Value
	}

	if list.Rest != nil {
		out.text = strings.TrimSpace(s[list.Rest.Pos.Offset:])
	}

	return out, nil
}

func (a *attrs) get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// lookup is a case insensitive get.
func (a *attrs) lookup(key string) (string, bool) {
	for _, k := range a.keys {
		if strings.EqualFold(k, key) {
			return a.values[k], true
		}
	}

	return "", false
}
