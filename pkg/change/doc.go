// Package change implements the operations a changeset performs.
//
// A Change is loaded from a parsed node, validated against the target
// database, and rendered into SQL statements through the database's dialect.
// Changes with an Inverse can be rolled back automatically; the rest need an
// explicit rollback block in the changelog.
//
// Supported changes:
//
//	sql            raw SQL, optionally split into statements and stripped of comments
//	sqlFile        raw SQL read from a file
//	createTable    dropTable    renameTable
//	addColumn      dropColumn
//	createIndex    dropIndex
//	insert
//	tagDatabase    tags the history row of its changeset
//	output         writes a message
//	empty          does nothing
//	stop           halts the update
//
// Example usage:
//
//	c, ok := change.New("createTable")
//	if !ok {
//		return errors.New("unknown change")
//	}
//	if err := c.Load(n, change.LoadContext{FS: os.DirFS(".")}); err != nil {
//		return err
//	}
//	sql, err := change.Execute(ctx, db, c, visitors, false)
//
// SQLVisitors (modifySql in a changelog) rewrite the generated SQL of every
// change in a changeset before it is executed.
package change
