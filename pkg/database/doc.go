// Package database is the boundary between changekeeper and the target
// database.
//
// Everything above this package (changes, preconditions, history and lock
// services) talks to a Database, never to database/sql directly. A Database
// pairs a connection with a Dialect that knows how the engine quotes
// identifiers, maps column types and exposes catalog metadata.
//
// Three implementations are provided:
//
//   - SQLDatabase wraps *sql.DB for SQLite (modernc.org/sqlite), PostgreSQL
//     (pgx stdlib) and ClickHouse (clickhouse-go). The driver is picked from
//     the URL scheme.
//   - Offline has a dialect but no connection. Statements are written to an
//     io.Writer instead of being executed, which is how changekeeper renders
//     update SQL for review.
//   - Mock records statements and serves canned query results for tests.
//
// Example usage:
//
//	db, err := database.Open(ctx, database.Config{URL: "sqlite://file:app.db"})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := db.Begin(ctx); err != nil {
//		return err
//	}
//	if err := db.Exec(ctx, `CREATE TABLE "person" ("id" INTEGER)`); err != nil {
//		_ = db.Rollback()
//		return err
//	}
//	return db.Commit()
//
// SQLDatabase keeps at most one open transaction at a time, mirroring the
// single connection model changesets are executed under. Exec and Query run
// inside the open transaction when there is one.
package database
