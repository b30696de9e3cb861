package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pseudomuto/changekeeper/pkg/utils"
)

type (
	// Dialect captures the engine specific parts of SQL generation and
	// catalog inspection.
	Dialect interface {
		ShortName() string
		ProductName() string
		Quoter() utils.Quoter
		DefaultSchema() string
		SupportsSchemas() bool
		SupportsTransactions() bool

		// SupportsDDLInTransaction reports whether schema changes can be
		// rolled back with the surrounding transaction.
		SupportsDDLInTransaction() bool
		CurrentDateTimeFunction() string

		// Placeholder returns the bind marker for the n-th (1 based) argument.
		Placeholder(n int) string

		// ColumnType maps a portable column type to the engine's type.
		ColumnType(portable string, nullable bool) string

		// CreateTableSuffix is appended to CREATE TABLE statements.
		CreateTableSuffix(primaryKey []string) string

		// ModifyColumnType returns the statement that changes a column's type,
		// or "" when the engine does not need one.
		ModifyColumnType(schema, table, column, columnType string) string

		// TableExistsQuery returns a query yielding a single count column.
		TableExistsQuery(schema, table string) (string, []any)

		// ColumnsQuery returns a query yielding COLUMN_NAME, DATA_TYPE and
		// IS_NULLABLE ('YES'/'NO') for each column of table.
		ColumnsQuery(schema, table string) (string, []any)

		// VersionQuery returns a query yielding the server version.
		VersionQuery() string

		// UpdateQuery renders an UPDATE of table. where may be empty.
		UpdateQuery(table, set, where string) string
	}

	sqliteDialect     struct{}
	postgresDialect   struct{}
	clickhouseDialect struct{}
)

var (
	SQLite     Dialect = sqliteDialect{}
	PostgreSQL Dialect = postgresDialect{}
	ClickHouse Dialect = clickhouseDialect{}

	typeArgs = regexp.MustCompile(`^([A-Za-z ]+?)\s*(\(.*\))?$`)
)

// DialectFor returns the dialect with the given short name.
func DialectFor(shortName string) (Dialect, bool) {
	switch strings.ToLower(shortName) {
	case "sqlite":
		return SQLite, true
	case "postgresql", "postgres":
		return PostgreSQL, true
	case "clickhouse":
		return ClickHouse, true
	default:
		return nil, false
	}
}

func splitType(portable string) (string, string) {
	m := typeArgs.FindStringSubmatch(strings.TrimSpace(portable))
	if m == nil {
		return strings.ToUpper(strings.TrimSpace(portable)), ""
	}

	return strings.ToUpper(strings.TrimSpace(m[1])), m[2]
}

func (sqliteDialect) ShortName() string               { return "sqlite" }
func (sqliteDialect) ProductName() string             { return "SQLite" }
func (sqliteDialect) Quoter() utils.Quoter            { return utils.DoubleQuote }
func (sqliteDialect) DefaultSchema() string           { return "" }
func (sqliteDialect) SupportsSchemas() bool           { return false }
func (sqliteDialect) SupportsTransactions() bool      { return true }
func (sqliteDialect) SupportsDDLInTransaction() bool  { return true }
func (sqliteDialect) CurrentDateTimeFunction() string { return "CURRENT_TIMESTAMP" }
func (sqliteDialect) Placeholder(int) string          { return "?" }
func (sqliteDialect) CreateTableSuffix([]string) string {
	return ""
}

func (sqliteDialect) ColumnType(portable string, _ bool) string {
	name, args := splitType(portable)
	switch name {
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return "INTEGER"
	default:
		return name + args
	}
}

// SQLite column types are advisory, so resizing is never required.
func (sqliteDialect) ModifyColumnType(_, _, _, _ string) string { return "" }

func (sqliteDialect) TableExistsQuery(_, table string) (string, []any) {
	return "SELECT COUNT(*) AS CNT FROM sqlite_master WHERE type = 'table' AND name = ?", []any{table}
}

func (sqliteDialect) ColumnsQuery(_, table string) (string, []any) {
	return `SELECT name AS COLUMN_NAME, type AS DATA_TYPE,
		CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END AS IS_NULLABLE
		FROM pragma_table_info(?)`, []any{table}
}

func (sqliteDialect) VersionQuery() string { return "SELECT sqlite_version()" }

func (sqliteDialect) UpdateQuery(table, set, where string) string {
	return standardUpdate(table, set, where)
}

func (postgresDialect) ShortName() string               { return "postgresql" }
func (postgresDialect) ProductName() string             { return "PostgreSQL" }
func (postgresDialect) Quoter() utils.Quoter            { return utils.DoubleQuote }
func (postgresDialect) DefaultSchema() string           { return "public" }
func (postgresDialect) SupportsSchemas() bool           { return true }
func (postgresDialect) SupportsTransactions() bool      { return true }
func (postgresDialect) SupportsDDLInTransaction() bool  { return true }
func (postgresDialect) CurrentDateTimeFunction() string { return "NOW()" }
func (postgresDialect) Placeholder(n int) string        { return fmt.Sprintf("$%d", n) }
func (postgresDialect) CreateTableSuffix([]string) string {
	return ""
}

func (postgresDialect) ColumnType(portable string, _ bool) string {
	name, args := splitType(portable)
	switch name {
	case "DATETIME":
		return "TIMESTAMP"
	case "CLOB", "LONGTEXT":
		return "TEXT"
	case "BLOB":
		return "BYTEA"
	case "DOUBLE":
		return "DOUBLE PRECISION"
	case "TINYINT":
		return "SMALLINT"
	default:
		return name + args
	}
}

func (d postgresDialect) ModifyColumnType(schema, table, column, columnType string) string {
	q := d.Quoter()
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
		q.Qualified(schema, table), q.Identifier(column), d.ColumnType(columnType, true))
}

func (postgresDialect) TableExistsQuery(schema, table string) (string, []any) {
	return "SELECT COUNT(*) AS CNT FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
		[]any{schema, table}
}

func (postgresDialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name AS "COLUMN_NAME",
		data_type || COALESCE('(' || character_maximum_length || ')', '') AS "DATA_TYPE",
		is_nullable AS "IS_NULLABLE"
		FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, []any{schema, table}
}

func (postgresDialect) VersionQuery() string { return "SHOW server_version" }

func (postgresDialect) UpdateQuery(table, set, where string) string {
	return standardUpdate(table, set, where)
}

func (clickhouseDialect) ShortName() string               { return "clickhouse" }
func (clickhouseDialect) ProductName() string             { return "ClickHouse" }
func (clickhouseDialect) Quoter() utils.Quoter            { return utils.Backtick }
func (clickhouseDialect) DefaultSchema() string           { return "" }
func (clickhouseDialect) SupportsSchemas() bool           { return false }
func (clickhouseDialect) SupportsTransactions() bool      { return false }
func (clickhouseDialect) SupportsDDLInTransaction() bool  { return false }
func (clickhouseDialect) CurrentDateTimeFunction() string { return "now()" }
func (clickhouseDialect) Placeholder(int) string          { return "?" }

func (d clickhouseDialect) CreateTableSuffix(primaryKey []string) string {
	if len(primaryKey) == 0 {
		return "ENGINE = MergeTree ORDER BY tuple()"
	}

	q := d.Quoter()
	cols := make([]string, len(primaryKey))
	for i, c := range primaryKey {
		cols[i] = q.Identifier(c)
	}

	return fmt.Sprintf("ENGINE = MergeTree ORDER BY (%s)", strings.Join(cols, ", "))
}

func (clickhouseDialect) ColumnType(portable string, nullable bool) string {
	name, args := splitType(portable)

	var t string
	switch name {
	case "VARCHAR", "CHAR", "TEXT", "CLOB", "NVARCHAR", "LONGTEXT", "UUID":
		t = "String"
	case "INT", "INTEGER":
		t = "Int32"
	case "BIGINT":
		t = "Int64"
	case "SMALLINT":
		t = "Int16"
	case "TINYINT":
		t = "Int8"
	case "BOOLEAN", "BOOL":
		t = "Bool"
	case "DATETIME", "TIMESTAMP":
		t = "DateTime64(3)"
	case "DATE":
		t = "Date"
	case "DOUBLE", "FLOAT":
		t = "Float64"
	case "DECIMAL", "NUMERIC":
		t = "Decimal" + args
		if args == "" {
			t = "Decimal(38, 10)"
		}
	default:
		// Already a native type such as LowCardinality(String).
		t = strings.TrimSpace(portable)
	}

	if nullable && !strings.HasPrefix(t, "Nullable(") {
		return "Nullable(" + t + ")"
	}

	return t
}

func (d clickhouseDialect) ModifyColumnType(_, table, column, columnType string) string {
	q := d.Quoter()
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s",
		q.Identifier(table), q.Identifier(column), d.ColumnType(columnType, true))
}

func (clickhouseDialect) TableExistsQuery(_, table string) (string, []any) {
	return "SELECT count() AS CNT FROM system.tables WHERE database = currentDatabase() AND name = ?", []any{table}
}

func (clickhouseDialect) ColumnsQuery(_, table string) (string, []any) {
	return `SELECT name AS COLUMN_NAME, type AS DATA_TYPE,
		if(startsWith(type, 'Nullable'), 'YES', 'NO') AS IS_NULLABLE
		FROM system.columns WHERE database = currentDatabase() AND table = ?
		ORDER BY position`, []any{table}
}

func (clickhouseDialect) VersionQuery() string { return "SELECT version()" }

// ClickHouse applies updates as mutations, which always need a predicate.
func (clickhouseDialect) UpdateQuery(table, set, where string) string {
	if where == "" {
		where = "1"
	}

	return fmt.Sprintf("ALTER TABLE %s UPDATE %s WHERE %s", table, set, where)
}

func standardUpdate(table, set, where string) string {
	if where == "" {
		return fmt.Sprintf("UPDATE %s SET %s", table, set)
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, set, where)
}
