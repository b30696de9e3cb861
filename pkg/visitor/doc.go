// Package visitor holds the actions an iterator applies to changesets.
//
// Each visitor implements iterator.Visitor. Update runs changesets and
// records them in history, Rollback undoes them, ChangeLogSync records them
// without running anything, Status and List collect what would run, and
// Validating checks a changelog against its history before an update.
//
// Example usage:
//
//	it := iterator.New(iterator.Config{ChangeLog: cl, Filters: filters})
//	update := visitor.NewUpdate(db, svc, changelog.ExecOptions{Contexts: contexts})
//	if err := it.Run(ctx, update); err != nil {
//		return err
//	}
//
//	for _, r := range update.Results() {
//		fmt.Println(r.ChangeSet, r.ExecType)
//	}
package visitor
