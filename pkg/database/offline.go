package database

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrOffline is returned by Offline for operations that need a live
// connection.
var ErrOffline = errors.New("operation requires a database connection")

// Offline is a connectionless Database that writes every executed statement
// to an io.Writer, terminated with a semicolon.
type Offline struct {
	base
	mu sync.Mutex
	w  io.Writer
}

var _ Database = (*Offline)(nil)

// NewOffline returns a Database rendering statements for dialect d to w.
func NewOffline(d Dialect, cfg Config, w io.Writer) *Offline {
	return &Offline{base: newBase(d, cfg), w: w}
}

// Comment writes a line comment to the output.
func (o *Offline) Comment(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, err := fmt.Fprintf(o.w, "%s %s\n", o.LineComment(), text)
	return errors.Wrap(err, "failed to write comment")
}

// Exec writes the statement with bind arguments inlined as literals.
func (o *Offline) Exec(_ context.Context, query string, args ...any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	stmt := strings.TrimRight(strings.TrimSpace(inline(o.dialect, query, args)), ";")
	_, err := fmt.Fprintf(o.w, "%s;\n\n", stmt)
	return errors.Wrap(err, "failed to write statement")
}

func (o *Offline) Query(context.Context, string, ...any) ([]Row, error) {
	return nil, ErrOffline
}

func (o *Offline) TableExists(context.Context, string, string) (bool, error) {
	return false, ErrOffline
}

func (o *Offline) Columns(context.Context, string, string) ([]Column, error) {
	return nil, ErrOffline
}

func (o *Offline) Begin(context.Context) error { return nil }
func (o *Offline) Commit() error               { return nil }
func (o *Offline) Rollback() error             { return nil }
func (o *Offline) Close() error                { return nil }

// inline substitutes bind arguments so the rendered SQL runs standalone.
func inline(d Dialect, query string, args []any) string {
	for i := len(args); i >= 1; i-- {
		lit := literal(args[i-1])
		if p := d.Placeholder(i); p != "?" {
			query = strings.ReplaceAll(query, p, lit)
			continue
		}

		idx := nthIndex(query, "?", i)
		if idx >= 0 {
			query = query[:idx] + lit + query[idx+1:]
		}
	}

	return query
}

func nthIndex(s, sub string, n int) int {
	off := 0
	for k := 1; ; k++ {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			return -1
		}
		if k == n {
			return off + i
		}
		off += i + len(sub)
	}
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05.000") + "'"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}
