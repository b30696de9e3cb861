package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLDatabase is a Database backed by database/sql.
type SQLDatabase struct {
	base
	db *sql.DB
	tx *sql.Tx
}

var _ Database = (*SQLDatabase)(nil)

// Open connects to the database described by cfg and verifies the
// connection. The driver is selected from the URL scheme.
//
// Example:
//
//	db, err := database.Open(ctx, database.Config{URL: "postgres://app@localhost/app"})
//	db, err := database.Open(ctx, database.Config{URL: "clickhouse://default:@localhost:9000/default"})
//	db, err := database.Open(ctx, database.Config{URL: "sqlite://file::memory:"})
func Open(ctx context.Context, cfg Config) (*SQLDatabase, error) {
	scheme, rest, ok := strings.Cut(cfg.URL, ":")
	if !ok {
		return nil, errors.Errorf("invalid database url: %q", cfg.URL)
	}

	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)

	switch strings.ToLower(scheme) {
	case "sqlite":
		dialect = SQLite
		db, err = sql.Open("sqlite", strings.TrimPrefix(rest, "//"))
		if err == nil {
			// Every connection to an in-memory database is a new database.
			db.SetMaxOpenConns(1)
		}
	case "postgres", "postgresql":
		dialect = PostgreSQL
		db, err = sql.Open("pgx", cfg.URL)
	case "clickhouse", "tcp":
		dialect = ClickHouse
		db, err = openClickHouse(cfg)
	default:
		return nil, errors.Errorf("unsupported database url scheme: %q", scheme)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s connection", dialect.ProductName())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", dialect.ProductName())
	}

	return New(db, dialect, cfg), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, d Dialect, cfg Config) *SQLDatabase {
	return &SQLDatabase{base: newBase(d, cfg), db: db}
}

func openClickHouse(cfg Config) (*sql.DB, error) {
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid clickhouse dsn")
	}

	if cfg.TLS != nil {
		tlsConfig, err := GetTLSConfig(*cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.TLS = tlsConfig
	}

	// History updates are mutations and must be visible to the next read.
	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}
	opts.Settings["mutations_sync"] = 2

	return clickhouse.OpenDB(opts), nil
}

// DB exposes the underlying pool.
func (d *SQLDatabase) DB() *sql.DB {
	return d.db
}

// Exec runs a statement, inside the open transaction if there is one.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...any) error {
	var err error
	if d.tx != nil {
		_, err = d.tx.ExecContext(ctx, query, args...)
	} else {
		_, err = d.db.ExecContext(ctx, query, args...)
	}

	if err != nil {
		return &Error{Statement: query, Err: err}
	}

	return nil
}

// Query runs a query and materialises every row.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if d.tx != nil {
		rows, err = d.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = d.db.QueryContext(ctx, query, args...)
	}

	if err != nil {
		return nil, &Error{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &Error{Statement: query, Err: err}
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, &Error{Statement: query, Err: err}
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[strings.ToUpper(c)] = values[i]
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Statement: query, Err: err}
	}

	return result, nil
}

// Begin opens a transaction. Engines without transactions ignore the call.
func (d *SQLDatabase) Begin(ctx context.Context) error {
	if !d.dialect.SupportsTransactions() {
		return nil
	}

	if d.tx != nil {
		return errors.New("transaction already open")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	d.tx = tx
	return nil
}

// Commit commits the open transaction, if any.
func (d *SQLDatabase) Commit() error {
	if d.tx == nil {
		return nil
	}

	tx := d.tx
	d.tx = nil
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// Rollback rolls back the open transaction, if any.
func (d *SQLDatabase) Rollback() error {
	if d.tx == nil {
		return nil
	}

	tx := d.tx
	d.tx = nil
	return errors.Wrap(tx.Rollback(), "failed to roll back transaction")
}

// SetAutoCommit switches auto-commit. Turning it on commits an open
// transaction.
func (d *SQLDatabase) SetAutoCommit(on bool) error {
	d.autoCommit = on
	if on {
		return d.Commit()
	}

	return nil
}

// TableExists reports whether table exists in schema (or the default schema).
func (d *SQLDatabase) TableExists(ctx context.Context, schema, table string) (bool, error) {
	query, args := d.dialect.TableExistsQuery(d.schemaOrDefault(schema), table)

	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return false, err
	}

	return len(rows) > 0 && rows[0].Int("CNT") > 0, nil
}

// Columns lists the columns of table in schema (or the default schema).
func (d *SQLDatabase) Columns(ctx context.Context, schema, table string) ([]Column, error) {
	query, args := d.dialect.ColumnsQuery(d.schemaOrDefault(schema), table)

	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return columnsFromRows(rows), nil
}

// Close rolls back any open transaction and closes the pool.
func (d *SQLDatabase) Close() error {
	_ = d.Rollback()
	return d.db.Close()
}

func (d *SQLDatabase) schemaOrDefault(schema string) string {
	if schema == "" {
		return d.cfg.DefaultSchema
	}
	return schema
}

func columnsFromRows(rows []Row) []Column {
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		typ := r.String("DATA_TYPE")
		cols = append(cols, Column{
			Name:     r.String("COLUMN_NAME"),
			Type:     typ,
			Size:     ParseSize(typ),
			Nullable: strings.EqualFold(r.String("IS_NULLABLE"), "YES"),
		})
	}

	return cols
}
