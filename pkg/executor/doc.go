// Package executor runs changelog operations against a database.
//
// The executor ties the changelog model to the history, lock and fast check
// services. Every operation that writes history follows the same lifecycle:
// acquire the migration lock, create or upgrade the history store, bring
// stored checksums up to date, validate, then walk the changelog with an
// iterator and the visitor for the operation.
//
// # Core Components
//
//   - Executor: entry point for every operation
//   - Config: database, history, lock and fast check collaborators
//   - Options: runtime contexts and labels
//   - UpdateResult: outcome of an update run
//   - StatusReport: per changeset status with denial reasons
//
// # Operations
//
//   - Update, UpdateCount, UpdateToTag
//   - RollbackCount, RollbackToTag
//   - Status, History, Validate
//   - Tag, TagExists, ChangeLogSync, ClearCheckSums
//   - Locks, ReleaseLocks
//
// # Usage Example
//
//	db, err := database.Open(ctx, database.Config{URL: "sqlite://file:app.db"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	pc := &changelog.ParseContext{
//		FS:     os.DirFS("."),
//		Parser: parser.New(),
//		Params: params.New(params.Config{Database: db}),
//	}
//
//	cl, err := pc.Load("db/changelog.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	exec := executor.New(executor.Config{DB: db, FastCheck: fastcheck.New()})
//	result, err := exec.Update(ctx, cl, executor.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, r := range result.Results {
//		fmt.Printf("%s: %s\n", r.ChangeSet, r.ExecType)
//	}
//
// # Error Handling
//
// Failures carry the typed errors of the layer that raised them:
// changelog.MigrationFailedError and changelog.RollbackFailedError name the
// changeset, precondition.FailedError reports a halting changelog
// precondition, visitor.ValidationFailedError lists validation problems and
// lock.ErrTimeout is wrapped when the migration lock cannot be acquired.
package executor
