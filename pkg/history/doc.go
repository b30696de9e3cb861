// Package history records which changesets ran against a database.
//
// Three implementations of Service are provided:
//
//   - Standard stores rows in a table of the target database and upgrades
//     tables written by older releases.
//   - Offline stores rows in a CSV file next to generated SQL.
//   - Mock keeps rows in memory for tests.
//
// Every implementation shares the same row layout, listed in Columns, and
// the same rules: FAILED and SKIPPED outcomes are never recorded, RERAN
// updates the existing row, and tags are applied to the most recent row.
//
// Example usage:
//
//	svc := history.New(db, history.Config{OfflineFile: cfg.Offline.File})
//	if err := svc.Init(ctx); err != nil {
//		return err
//	}
//
//	ran, err := svc.RanChangeSets(ctx)
//	if err != nil {
//		return err
//	}
package history
