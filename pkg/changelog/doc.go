// Package changelog models changelogs and the changesets they contain.
//
// A DatabaseChangeLog is built from the node tree a format parser produces.
// Loading walks the tree once and dispatches each top-level node to a
// registered Handler: changeSet, include, includeAll, preConditions,
// property, modifyChangeSets and removeChangeSetProperty. Includes are
// resolved recursively with the parent passed down explicitly, and every
// included changeset is added to the including changelog so the root ends up
// with the complete, ordered list.
//
// Changesets marked runOrder first sort before all others and those marked
// last sort after them. Relative order is otherwise preserved:
//
//	first(a) default(b) last(c) first(d) default(e)  =>  a d b e c
//
// Example usage:
//
//	pc := &changelog.ParseContext{
//		FS:     os.DirFS("."),
//		Parser: parser.New(),
//		Params: params.New(params.Config{Database: db}),
//	}
//
//	cl, err := pc.Load("db/changelog.yaml")
//	if err != nil {
//		return err
//	}
//
//	for _, cs := range cl.ChangeSets() {
//		fmt.Println(cs)
//	}
package changelog
