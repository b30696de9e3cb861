package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/precondition"
)

// FormatDocs is linked from formatting errors.
const FormatDocs = "https://docs.liquibase.com/concepts/changelogs/sql-format.html"

var (
	formattedHeader = regexp.MustCompile(`(?i)^\s*--\s*liquibase\s+formatted\b`)
	directiveLine   = regexp.MustCompile(`(?i)^\s*--\s*(changeset|rollback|preconditions|precondition-[\w-]+|comment|validchecksum|ignorelines|property|includeall|include)\b:?(.*)$`)
	changeSetHeader = regexp.MustCompile(`^\s*(?:"([^"]*)"|((?:\\:|[^\s:])+)):(?:"([^"]*)"|(\S+))`)
	rollbackStart   = regexp.MustCompile(`(?i)^\s*/\*\s*liquibase\s+rollback\s*$`)
	blockEnd        = regexp.MustCompile(`^\s*\*/\s*$`)

	// changeSetAttrs are copied onto the changeSet node. The remaining
	// attributes configure the sql change or its rollback.
	changeSetAttrs = map[string]string{
		"runonchange":           "runOnChange",
		"runalways":             "runAlways",
		"context":               "context",
		"contextfilter":         "contextFilter",
		"labels":                "labels",
		"runintransaction":      "runInTransaction",
		"failonerror":           "failOnError",
		"dbms":                  "dbms",
		"ignore":                "ignore",
		"logicalfilepath":       "logicalFilePath",
		"runwith":               "runWith",
		"runwithspoolfile":      "runWithSpoolFile",
		"created":               "created",
		"runorder":              "runOrder",
		"onvalidationfail":      "onValidationFail",
		"objectquotingstrategy": "objectQuotingStrategy",
	}
)

type formatted struct {
	file string
	root *node.Node

	cs       *node.Node
	csLine   int
	csAttrs  *attrs
	body     []string
	rollback []string
	preconds *node.Node

	inRollback bool
	ignoring   bool
	skip       int
}

// IsFormatted reports whether data starts with the formatted SQL header.
func IsFormatted(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		return formattedHeader.MatchString(line)
	}

	return false
}

// ParseFormatted parses a formatted SQL changelog. Each "--changeset
// author:id" line starts a changeset whose body is every following
// non-directive line. Errors carry the offending line number.
//
// Supported directives are changeset, rollback (single line or a
// "/* liquibase rollback" block), preconditions, precondition-<name>,
// comment, validCheckSum, ignoreLines, property, include and includeAll.
func ParseFormatted(file string, data []byte) (*node.Node, error) {
	p := &formatted{file: file, root: node.New(RootName, nil)}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	seenHeader := false
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()

		if !seenHeader {
			if strings.TrimSpace(line) == "" {
				continue
			}

			if !formattedHeader.MatchString(line) {
				return nil, p.errorf(lineNo, "missing formatted SQL header")
			}

			seenHeader = true
			continue
		}

		if err := p.line(lineNo, line); err != nil {
			return nil, err
		}
	}

	if err := sc.Err(); err != nil {
		return nil, &changelog.ParseError{File: file, Err: err}
	}

	if p.inRollback {
		return nil, p.errorf(0, "unterminated rollback block")
	}

	if err := p.flush(); err != nil {
		return nil, err
	}

	return p.root, nil
}

func (p *formatted) line(lineNo int, line string) error {
	switch {
	case p.skip > 0:
		p.skip--
		return nil
	case p.inRollback:
		if blockEnd.MatchString(line) {
			p.inRollback = false
			return nil
		}

		p.rollback = append(p.rollback, line)
		return nil
	case p.ignoring:
		if m := directiveLine.FindStringSubmatch(line); m != nil && strings.EqualFold(m[1], "ignorelines") {
			return p.ignoreLines(lineNo, m[2])
		}
		return nil
	case rollbackStart.MatchString(line):
		if p.cs == nil {
			return p.errorf(lineNo, "rollback outside of a changeset")
		}

		p.inRollback = true
		return nil
	}

	m := directiveLine.FindStringSubmatch(line)
	if m == nil {
		p.sql(line)
		return nil
	}

	rest := m[2]
	switch strings.ToLower(m[1]) {
	case "changeset":
		return p.changeSet(lineNo, rest)
	case "rollback":
		return p.rollbackLine(lineNo, rest)
	case "preconditions":
		return p.preconditions(lineNo, rest)
	case "comment":
		if p.cs != nil {
			p.cs.AddChild("comment", strings.TrimSpace(rest))
		}
		return nil
	case "validchecksum":
		if p.cs == nil {
			return p.errorf(lineNo, "validCheckSum outside of a changeset")
		}

		p.cs.AddChild("validCheckSum", strings.TrimSpace(rest))
		return nil
	case "ignorelines":
		return p.ignoreLines(lineNo, rest)
	case "property":
		return p.property(lineNo, rest)
	case "include":
		return p.include(lineNo, "include", "file", rest)
	case "includeall":
		return p.include(lineNo, "includeAll", "path", rest)
	default:
		return p.precondition(lineNo, strings.ToLower(m[1]), rest)
	}
}

// sql collects a body line. Text before the first changeset is ignored.
func (p *formatted) sql(line string) {
	if p.cs != nil {
		p.body = append(p.body, line)
	}
}

func (p *formatted) changeSet(lineNo int, rest string) error {
	if err := p.flush(); err != nil {
		return err
	}

	m := changeSetHeader.FindStringSubmatch(rest)
	if m == nil {
		return p.unexpected(lineNo)
	}

	author := firstOf(m[1], strings.ReplaceAll(m[2], `\:`, ":"))
	id := firstOf(m[3], m[4])

	a, err := parseAttrs(rest[len(m[0]):])
	if err != nil {
		return p.errorf(lineNo, "invalid changeset attributes: %v", err)
	}

	p.cs = p.root.AddChild("changeSet", nil)
	p.cs.AddChild("id", id)
	p.cs.AddChild("author", author)
	for _, key := range a.keys {
		if name, ok := changeSetAttrs[strings.ToLower(key)]; ok {
			p.cs.AddChild(name, a.values[key])
		}
	}

	p.csLine = lineNo
	p.csAttrs = a
	p.preconds = nil

	return nil
}

func (p *formatted) rollbackLine(lineNo int, rest string) error {
	if p.cs == nil {
		return p.errorf(lineNo, "rollback outside of a changeset")
	}

	if !strings.Contains(strings.ToLower(rest), "changesetid:") {
		p.rollback = append(p.rollback, rest)
		return nil
	}

	a, err := parseAttrs(rest)
	if err != nil {
		return p.errorf(lineNo, "invalid rollback: %v", err)
	}

	if id, ok := a.lookup("changeSetId"); ok {
		ref := p.cs.AddChild("rollback", nil)
		ref.AddChild("changeSetId", id)

		if author, ok := a.lookup("changeSetAuthor"); ok {
			ref.AddChild("changeSetAuthor", author)
		}

		if path, ok := a.lookup("changeSetPath"); ok {
			ref.AddChild("changeSetPath", path)
		}

		return nil
	}

	p.rollback = append(p.rollback, rest)
	return nil
}

func (p *formatted) preconditions(lineNo int, rest string) error {
	a, err := parseAttrs(rest)
	if err != nil {
		return p.errorf(lineNo, "invalid preconditions: %v", err)
	}

	parent := p.root
	if p.cs != nil {
		parent = p.cs
	}

	p.preconds = parent.AddChild("preConditions", nil)
	for _, key := range a.keys {
		p.preconds.AddChild(key, a.values[key])
	}

	return nil
}

func (p *formatted) precondition(lineNo int, directive, rest string) error {
	name := camel(strings.TrimPrefix(directive, "precondition-"))
	if _, ok := precondition.New(name); !ok {
		return p.errorf(lineNo, "unknown precondition %q", name)
	}

	a, err := parseAttrs(rest)
	if err != nil {
		return p.errorf(lineNo, "invalid %s precondition: %v", name, err)
	}

	if p.preconds == nil {
		parent := p.root
		if p.cs != nil {
			parent = p.cs
		}
		p.preconds = parent.AddChild("preConditions", nil)
	}

	pc := p.preconds.AddChild(name, nil)
	for _, key := range a.keys {
		pc.AddChild(key, a.values[key])
	}

	if name == "sqlCheck" {
		if a.text == "" {
			return p.errorf(lineNo, "sql-check precondition requires SQL")
		}

		pc.AddChild("sql", a.text)
	}

	return nil
}

func (p *formatted) ignoreLines(lineNo int, rest string) error {
	arg := strings.ToLower(strings.TrimSpace(rest))
	switch arg {
	case "start":
		p.ignoring = true
	case "end":
		p.ignoring = false
	default:
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return p.errorf(lineNo, "ignoreLines expects start, end or a line count, got %q", arg)
		}
		p.skip = n
	}

	return nil
}

func (p *formatted) property(lineNo int, rest string) error {
	a, err := parseAttrs(rest)
	if err != nil {
		return p.errorf(lineNo, "invalid property: %v", err)
	}

	if _, ok := a.get("name"); !ok {
		if _, ok := a.get("file"); !ok {
			return p.unexpected(lineNo)
		}
	}

	prop := p.root.AddChild("property", nil)
	for _, key := range a.keys {
		prop.AddChild(key, a.values[key])
	}

	return nil
}

func (p *formatted) include(lineNo int, name, required, rest string) error {
	if err := p.flush(); err != nil {
		return err
	}

	a, err := parseAttrs(rest)
	if err != nil {
		return p.errorf(lineNo, "invalid %s: %v", name, err)
	}

	if v, ok := a.get(required); !ok || v == "" {
		return p.unexpected(lineNo)
	}

	inc := p.root.AddChild(name, nil)
	for _, key := range a.keys {
		inc.AddChild(key, a.values[key])
	}

	return nil
}

// flush completes the current changeset with its sql change and rollback.
func (p *formatted) flush() error {
	if p.cs == nil {
		return nil
	}

	defer func() {
		p.cs, p.csAttrs, p.preconds = nil, nil, nil
		p.body, p.rollback = nil, nil
	}()

	sql := strings.TrimSpace(strings.Join(p.body, "\n"))
	if sql == "" {
		id, _ := p.cs.ChildString("id", "")
		author, _ := p.cs.ChildString("author", "")
		return p.errorf(p.csLine, "no SQL for changeset %s::%s::%s", p.file, id, author)
	}

	change := p.cs.AddChild("sql", sql)
	for _, opt := range []string{"splitStatements", "stripComments", "endDelimiter"} {
		if v, ok := p.csAttrs.lookup(opt); ok {
			change.AddChild(opt, v)
		}
	}

	if len(p.rollback) == 0 {
		return nil
	}

	text := strings.TrimSpace(strings.Join(p.rollback, "\n"))
	rb := p.cs.AddChild("rollback", nil)
	if text == "" || strings.EqualFold(text, "empty") || strings.EqualFold(text, "not required") {
		return nil
	}

	rbChange := rb.AddChild("sql", text)
	if v, ok := p.csAttrs.lookup("rollbackSplitStatements"); ok {
		rbChange.AddChild("splitStatements", v)
	}

	if v, ok := p.csAttrs.lookup("rollbackEndDelimiter"); ok {
		rbChange.AddChild("endDelimiter", v)
	}

	if v, ok := p.csAttrs.lookup("stripComments"); ok {
		rbChange.AddChild("stripComments", v)
	}

	return nil
}

func (p *formatted) unexpected(lineNo int) error {
	return p.errorf(lineNo, "Unexpected formatting at line %d. Formatted SQL changelogs require known formats, "+
		"such as '--changeset <authorname>:<changesetId>' and others to be recognized and run. Learn all the options at %s",
		lineNo, FormatDocs)
}

func (p *formatted) errorf(lineNo int, format string, args ...any) error {
	return &changelog.ParseError{File: p.file, Line: lineNo, Message: fmt.Sprintf(format, args...)}
}

// camel turns sql-check into sqlCheck.
func camel(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}

	return strings.Join(parts, "")
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
