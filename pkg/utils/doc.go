// Package utils provides small helpers shared across the changekeeper packages.
//
// # Identifier Quoting (identifier.go)
//
// Generated DDL must quote identifiers the way the target dialect expects.
// A Quoter holds the opening and closing quote characters and knows how to
// quote simple and schema-qualified names without double quoting:
//
//	utils.DoubleQuote.Identifier("person")            // "person"
//	utils.DoubleQuote.Identifier("app.person")        // "app"."person"
//	utils.Backtick.Qualified("analytics", "events")   // `analytics`.`events`
//	utils.Backtick.Identifier("`events`")             // `events`
//
// # SQL Builder (sqlbuilder.go)
//
// SQLBuilder is a fluent helper for assembling DDL statements. It takes the
// Quoter of the target dialect so the same change definition renders correctly
// for SQLite, PostgreSQL and ClickHouse:
//
//	sql := utils.NewSQLBuilder(utils.DoubleQuote).
//		Create("TABLE").
//		IfNotExists().
//		QualifiedName("app", "person").
//		Columns(`"id" INTEGER NOT NULL`, `"name" VARCHAR(255)`).
//		String()
//	// CREATE TABLE IF NOT EXISTS "app"."person" ("id" INTEGER NOT NULL, "name" VARCHAR(255));
//
// # Value Utilities (validation.go)
//
// IsNumericValue and IsBooleanValue classify raw changelog values, and
// SQLLiteral renders a value as a SQL literal:
//
//	utils.SQLLiteral("42")      // 42
//	utils.SQLLiteral("TRUE")    // TRUE
//	utils.SQLLiteral("O'Hara")  // 'O''Hara'
package utils
