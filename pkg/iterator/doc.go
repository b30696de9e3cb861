// Package iterator walks the changesets of a changelog through a chain of
// filters and hands each one to a visitor.
//
// Two iterators are provided. ChangeLogIterator stops evaluating filters at
// the first denial and is used for commands that change the database.
// StatusChangeLogIterator evaluates every filter so reports can explain all
// the reasons a changeset will not run.
//
// Each visit receives a context scoped to the changeset. Logger returns a
// logger carrying the changeset identity for that context:
//
//	func (v *myVisitor) Visit(ctx context.Context, cs *changelog.ChangeSet, ...) error {
//		iterator.Logger(ctx).Info("Visiting changeset")
//		return nil
//	}
package iterator
