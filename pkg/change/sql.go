package change

import (
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/checksum"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/node"
	"github.com/pseudomuto/changekeeper/pkg/selector"
)

type (
	// SQL runs literal SQL.
	SQL struct {
		SQL             string
		SplitStatements bool
		StripComments   bool
		EndDelimiter    string
		DbmsList        []string
		Comment         string
	}

	// SQLFile runs SQL read from a file at load time.
	SQLFile struct {
		SQL
		Path                    string
		RelativeToChangelogFile bool
		Encoding                string
	}
)

var goDelimiter = regexp.MustCompile(`(?im)^\s*go\s*$`)

func (c *SQL) Name() string { return "sql" }

func (c *SQL) Load(n *node.Node, _ LoadContext) error {
	if err := c.loadOptions(n); err != nil {
		return err
	}

	if s, ok := n.Value.(string); ok && strings.TrimSpace(s) != "" {
		c.SQL = s
		return nil
	}

	sql, err := str(n, "sql")
	if err != nil {
		return err
	}

	c.SQL = sql
	return nil
}

func (c *SQL) loadOptions(n *node.Node) error {
	var err error
	if c.SplitStatements, err = n.ChildBool("splitStatements", true); err != nil {
		return err
	}

	if c.StripComments, err = n.ChildBool("stripComments", false); err != nil {
		return err
	}

	if c.EndDelimiter, err = str(n, "endDelimiter"); err != nil {
		return err
	}

	if c.Comment, err = str(n, "comment"); err != nil {
		return err
	}

	dbms, err := str(n, "dbms")
	if err != nil {
		return err
	}

	c.DbmsList = selector.SplitDatabases(dbms)
	return nil
}

func (c *SQL) Validate(database.Database) error {
	if strings.TrimSpace(c.SQL) == "" {
		return errors.New("sql: no SQL provided")
	}

	return nil
}

func (c *SQL) Statements(database.Database) ([]string, error) {
	return SplitStatements(c.SQL, c.SplitStatements, c.StripComments, c.EndDelimiter), nil
}

func (c *SQL) Description() string { return "sql" }
func (c *SQL) Dbms() []string      { return c.DbmsList }

func (c *SQL) CheckSum(v checksum.Version) checksum.CheckSum {
	return checksum.Compute(c.SQL, v)
}

func (c *SQLFile) Name() string { return "sqlFile" }

func (c *SQLFile) Load(n *node.Node, lc LoadContext) error {
	if err := c.loadOptions(n); err != nil {
		return err
	}

	var err error
	if c.Path, err = str(n, "path"); err != nil {
		return err
	}

	if c.RelativeToChangelogFile, err = n.ChildBool("relativeToChangelogFile", false); err != nil {
		return err
	}

	if c.Encoding, err = str(n, "encoding"); err != nil {
		return err
	}

	if c.Path == "" {
		return errors.New("sqlFile is missing required attributes: path")
	}

	if lc.FS == nil {
		return errors.Errorf("sqlFile %s: no resource accessor available", c.Path)
	}

	p := c.Path
	if c.RelativeToChangelogFile {
		p = path.Join(path.Dir(lc.ChangeLogPath), p)
	}
	p = strings.TrimPrefix(path.Clean(p), "/")

	data, err := fs.ReadFile(lc.FS, p)
	if err != nil {
		return errors.Wrapf(err, "sqlFile %s could not be read", p)
	}

	if c.SQL.SQL, err = expand(lc, string(data)); err != nil {
		return err
	}

	return nil
}

func (c *SQLFile) Validate(db database.Database) error {
	if c.Path == "" {
		return errors.New("sqlFile: path is required")
	}

	return c.SQL.Validate(db)
}

func (c *SQLFile) Description() string { return describe("sqlFile", "path", c.Path) }

// SplitStatements breaks sql into executable statements. Delimiters inside
// quotes, comments and dollar-quoted bodies are ignored. With no custom
// delimiter statements end at ";" or a line containing only GO.
func SplitStatements(sql string, split, stripComments bool, endDelimiter string) []string {
	if stripComments {
		sql = StripComments(sql)
	}

	if !split {
		s := strings.TrimSpace(sql)
		if endDelimiter == "" {
			s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		}

		if s == "" {
			return nil
		}
		return []string{s}
	}

	if endDelimiter == "" {
		sql = goDelimiter.ReplaceAllString(sql, ";")
		endDelimiter = ";"
	}

	var (
		out   []string
		start int
	)

	emit := func(s string) {
		s = strings.TrimSpace(s)
		if strings.TrimSpace(StripComments(s)) != "" {
			out = append(out, s)
		}
	}

	scan(sql, func(i int) int {
		if strings.HasPrefix(sql[i:], endDelimiter) {
			emit(sql[start:i])
			start = i + len(endDelimiter)
			return len(endDelimiter)
		}
		return 0
	}, nil)

	emit(sql[start:])
	return out
}

// StripComments removes "--" line comments and "/* */" block comments that
// are not inside quoted text.
func StripComments(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	scan(sql, func(i int) int {
		sb.WriteByte(sql[i])
		return 1
	}, func(quoted string) {
		sb.WriteString(quoted)
	})

	return sb.String()
}

// scan walks sql. top is called for each byte outside quotes and comments and
// returns how many bytes it consumed (0 means "not consumed", the byte is then
// skipped by the scanner). quoted, when set, receives quoted regions verbatim.
// Comments are never passed to either callback.
func scan(sql string, top func(i int) int, quoted func(s string)) {
	i := 0
	for i < len(sql) {
		rest := sql[i:]
		switch {
		case strings.HasPrefix(rest, "--"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return
			}
			i += end
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return
			}
			i += end + 4
		case rest[0] == '\'' || rest[0] == '"' || rest[0] == '`':
			end := closingQuote(rest, rest[0])
			if quoted != nil {
				quoted(rest[:end])
			}
			i += end
		case rest[0] == '$':
			if tag := dollarTag(rest); tag != "" {
				end := strings.Index(rest[len(tag):], tag)
				if end < 0 {
					end = len(rest)
				} else {
					end += 2 * len(tag)
				}
				if quoted != nil {
					quoted(rest[:end])
				}
				i += end
				continue
			}
			fallthrough
		default:
			if n := top(i); n > 0 {
				i += n
			} else {
				i++
			}
		}
	}
}

// closingQuote returns the length of the quoted region starting at s[0],
// treating a doubled quote character as an escape.
func closingQuote(s string, q byte) int {
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}

		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}

		return i + 1
	}

	return len(s)
}

// dollarTag returns a PostgreSQL dollar quote opener such as "$$" or "$body$".
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 1 && c >= '0' && c <= '9'):
			continue
		default:
			return ""
		}
	}

	return ""
}
