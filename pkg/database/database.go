package database

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// Database is a connection to a target database plus its dialect.
	Database interface {
		Dialect() Dialect

		ShortName() string
		ProductName() string
		DefaultSchemaName() string
		DefaultCatalogName() string
		HistoryTableName() string
		LockTableName() string
		LineComment() string
		CurrentDateTimeFunction() string
		SupportsSchemas() bool
		SupportsDDLInTransaction() bool
		ConnectionURL() string

		// Quoter quotes identifiers for the dialect using the current object
		// quoting strategy.
		Quoter() utils.Quoter
		ObjectQuotingStrategy() utils.QuotingStrategy
		SetObjectQuotingStrategy(s utils.QuotingStrategy)

		// AutoCommit reports whether statements commit as they run. Turning
		// it back on commits an open transaction.
		AutoCommit() bool
		SetAutoCommit(on bool) error

		Exec(ctx context.Context, query string, args ...any) error
		Query(ctx context.Context, query string, args ...any) ([]Row, error)

		Begin(ctx context.Context) error
		Commit() error
		Rollback() error

		TableExists(ctx context.Context, schema, table string) (bool, error)
		Columns(ctx context.Context, schema, table string) ([]Column, error)

		Close() error
	}

	// Config describes how to reach a database.
	Config struct {
		// URL selects the driver by scheme: sqlite://, postgres://,
		// postgresql://, clickhouse:// or tcp://.
		URL string

		DefaultSchema string
		HistoryTable  string
		LockTable     string

		// TLS enables mutual TLS for ClickHouse connections.
		TLS *TLSConfig
	}

	// Column describes a table column as reported by the catalog.
	Column struct {
		Name     string
		Type     string
		Size     int
		Nullable bool
	}

	// Row is a result row keyed by upper-cased column name.
	Row map[string]any

	// Error wraps a driver error with the statement that caused it.
	Error struct {
		Statement string
		Err       error
	}

	// base holds the configuration shared by every Database implementation.
	base struct {
		dialect    Dialect
		cfg        Config
		quoting    utils.QuotingStrategy
		autoCommit bool
	}
)

var sizePattern = regexp.MustCompile(`\((\d+)`)

func (e *Error) Error() string {
	return fmt.Sprintf("error executing %q: %v", e.Statement, e.Err)
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

func newBase(d Dialect, cfg Config) base {
	if cfg.HistoryTable == "" {
		cfg.HistoryTable = consts.DefaultHistoryTable
	}

	if cfg.LockTable == "" {
		cfg.LockTable = consts.DefaultLockTable
	}

	if cfg.DefaultSchema == "" {
		cfg.DefaultSchema = d.DefaultSchema()
	}

	return base{dialect: d, cfg: cfg, autoCommit: true}
}

func (b *base) Dialect() Dialect                { return b.dialect }
func (b *base) ShortName() string               { return b.dialect.ShortName() }
func (b *base) ProductName() string             { return b.dialect.ProductName() }
func (b *base) DefaultSchemaName() string       { return b.cfg.DefaultSchema }
func (b *base) DefaultCatalogName() string      { return "" }
func (b *base) HistoryTableName() string        { return b.cfg.HistoryTable }
func (b *base) LockTableName() string           { return b.cfg.LockTable }
func (b *base) LineComment() string             { return "--" }
func (b *base) CurrentDateTimeFunction() string { return b.dialect.CurrentDateTimeFunction() }
func (b *base) SupportsSchemas() bool           { return b.dialect.SupportsSchemas() }
func (b *base) ConnectionURL() string           { return b.cfg.URL }
func (b *base) SupportsDDLInTransaction() bool  { return b.dialect.SupportsDDLInTransaction() }

func (b *base) Quoter() utils.Quoter {
	return b.dialect.Quoter().WithStrategy(b.quoting)
}

func (b *base) ObjectQuotingStrategy() utils.QuotingStrategy     { return b.quoting }
func (b *base) SetObjectQuotingStrategy(s utils.QuotingStrategy) { b.quoting = s }

func (b *base) AutoCommit() bool { return b.autoCommit }

func (b *base) SetAutoCommit(on bool) error {
	b.autoCommit = on
	return nil
}

// String returns the value of column key as a string. NULL becomes "".
func (r Row) String(key string) string {
	switch v := r[strings.ToUpper(key)].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// IsNull reports whether column key is NULL or absent.
func (r Row) IsNull(key string) bool {
	return r[strings.ToUpper(key)] == nil
}

// Int returns the value of column key as an int. NULL and unparsable values
// become 0.
func (r Row) Int(key string) int {
	switch v := r[strings.ToUpper(key)].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		n, _ := strconv.Atoi(strings.TrimSpace(r.String(key)))
		return n
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time returns the value of column key as a time. Text values are parsed
// with the layouts SQLite and the CSV history file use.
func (r Row) Time(key string) time.Time {
	switch v := r[strings.ToUpper(key)].(type) {
	case time.Time:
		return v
	case int64:
		return time.Unix(v, 0).UTC()
	}

	s := r.String(key)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// ParseSize extracts the length from a column type such as VARCHAR(35).
func ParseSize(columnType string) int {
	m := sizePattern.FindStringSubmatch(columnType)
	if m == nil {
		return 0
	}

	n, _ := strconv.Atoi(m[1])
	return n
}
