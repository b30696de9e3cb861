package utils

import "strings"

// SQLBuilder provides a fluent interface for building DDL statements. It
// handles identifier quoting for the configured dialect and conditional clause
// building to reduce duplication across change implementations.
//
// Example usage:
//
//	sql := utils.NewSQLBuilder(utils.DoubleQuote).
//		Alter("TABLE").
//		QualifiedName("app", "person").
//		Raw("ADD COLUMN").
//		Name("email").
//		Raw("VARCHAR(255)").
//		String()
//	// Output: ALTER TABLE "app"."person" ADD COLUMN "email" VARCHAR(255);
type SQLBuilder struct {
	quoter Quoter
	parts  []string
}

// NewSQLBuilder creates a new SQLBuilder quoting identifiers with q.
func NewSQLBuilder(q Quoter) *SQLBuilder {
	return &SQLBuilder{
		quoter: q,
		parts:  make([]string, 0, 10),
	}
}

// Create adds a CREATE clause with the specified object type.
//
// Example:
//
//	builder.Create("TABLE")         // CREATE TABLE
//	builder.Create("UNIQUE INDEX")  // CREATE UNIQUE INDEX
func (b *SQLBuilder) Create(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "CREATE", objectType)
	return b
}

// Drop adds a DROP clause with the specified object type.
//
// Example:
//
//	builder.Drop("TABLE")  // DROP TABLE
func (b *SQLBuilder) Drop(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "DROP", objectType)
	return b
}

// Alter adds an ALTER clause with the specified object type.
func (b *SQLBuilder) Alter(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "ALTER", objectType)
	return b
}

// Rename adds a RENAME clause with the specified object type.
func (b *SQLBuilder) Rename(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "RENAME", objectType)
	return b
}

// IfExists adds an IF EXISTS clause.
func (b *SQLBuilder) IfExists() *SQLBuilder {
	b.parts = append(b.parts, "IF", "EXISTS")
	return b
}

// IfNotExists adds an IF NOT EXISTS clause.
func (b *SQLBuilder) IfNotExists() *SQLBuilder {
	b.parts = append(b.parts, "IF", "NOT", "EXISTS")
	return b
}

// Name adds a quoted object name.
//
// Example:
//
//	builder.Name("person")      // "person"
//	builder.Name("app.person")  // "app"."person"
func (b *SQLBuilder) Name(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, b.quoter.Identifier(name))
	}
	return b
}

// QualifiedName adds a name with an optional schema prefix.
//
// Example:
//
//	builder.QualifiedName("", "events")     // "events"
//	builder.QualifiedName("app", "events")  // "app"."events"
func (b *SQLBuilder) QualifiedName(schema, name string) *SQLBuilder {
	if qualified := b.quoter.Qualified(schema, name); qualified != "" {
		b.parts = append(b.parts, qualified)
	}
	return b
}

// To adds a TO clause for rename operations.
//
// Example:
//
//	builder.To("new_name")  // TO "new_name"
func (b *SQLBuilder) To(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, "TO", b.quoter.Identifier(name))
	}
	return b
}

// QualifiedTo adds a TO clause with a schema qualified name.
func (b *SQLBuilder) QualifiedTo(schema, name string) *SQLBuilder {
	if qualified := b.quoter.Qualified(schema, name); qualified != "" {
		b.parts = append(b.parts, "TO", qualified)
	}
	return b
}

// On adds an ON clause naming a table, used by index statements.
func (b *SQLBuilder) On(schema, table string) *SQLBuilder {
	b.parts = append(b.parts, "ON", b.quoter.Qualified(schema, table))
	return b
}

// Columns adds a parenthesised, comma separated list of raw definitions.
//
// Example:
//
//	builder.Columns(`"id" INTEGER`, `"name" TEXT`)  // ("id" INTEGER, "name" TEXT)
func (b *SQLBuilder) Columns(defs ...string) *SQLBuilder {
	if len(defs) > 0 {
		b.parts = append(b.parts, "("+strings.Join(defs, ", ")+")")
	}
	return b
}

// ColumnNames adds a parenthesised list of quoted column names.
func (b *SQLBuilder) ColumnNames(names ...string) *SQLBuilder {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = b.quoter.Identifier(n)
	}
	return b.Columns(quoted...)
}

// Values adds a VALUES clause of already rendered literals.
//
// Example:
//
//	builder.Values("1", "'bob'")  // VALUES (1, 'bob')
func (b *SQLBuilder) Values(literals ...string) *SQLBuilder {
	b.parts = append(b.parts, "VALUES")
	return b.Columns(literals...)
}

// Engine adds an ENGINE clause. Only ClickHouse statements use it.
//
// Example:
//
//	builder.Engine("MergeTree ORDER BY tuple()")  // ENGINE = MergeTree ORDER BY tuple()
func (b *SQLBuilder) Engine(engine string) *SQLBuilder {
	if engine != "" {
		b.parts = append(b.parts, "ENGINE", "=", engine)
	}
	return b
}

// Escaped adds a single quoted string literal.
//
// Example:
//
//	builder.Raw("DEFAULT").Escaped("O'Hara")  // DEFAULT 'O''Hara'
func (b *SQLBuilder) Escaped(value string) *SQLBuilder {
	b.parts = append(b.parts, "'"+strings.ReplaceAll(value, "'", "''")+"'")
	return b
}

// Raw adds raw SQL text to the builder. Use sparingly for constructs that
// don't fit the fluent pattern.
//
// Example:
//
//	builder.Raw("CASCADE")  // CASCADE
func (b *SQLBuilder) Raw(sql string) *SQLBuilder {
	if sql != "" {
		b.parts = append(b.parts, sql)
	}
	return b
}

// String builds and returns the final SQL statement with a semicolon.
func (b *SQLBuilder) String() string {
	if len(b.parts) == 0 {
		return ""
	}
	return strings.Join(b.parts, " ") + ";"
}

// StringWithoutSemicolon builds and returns the statement without a
// terminating semicolon, which is what database/sql drivers expect.
func (b *SQLBuilder) StringWithoutSemicolon() string {
	return strings.Join(b.parts, " ")
}
