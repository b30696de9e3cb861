// Package selector implements the matching rules that decide whether a
// changeset (or a changelog parameter) applies to the current run.
//
// Three kinds of selector exist:
//
//   - Contexts and ContextExpression: the runtime supplies a set of contexts
//     ("dev, test") and each changeset carries an expression ("dev and !prod").
//   - Labels and LabelExpression: the reverse. Each changeset carries a set of
//     labels and the runtime supplies the expression.
//   - Database lists: a changeset's dbms attribute ("postgresql, !sqlite")
//     matched against the target dialect's short name.
//
// Expressions are parsed with participle and support `and`, `or`, `not`, `!`,
// parentheses and a top-level comma meaning `or`:
//
//	expr, err := selector.ParseExpression("(dev or test) and !slow")
//	if err != nil {
//		return err
//	}
//
//	expr.Matches(selector.NewContexts("dev"))        // true
//	expr.Matches(selector.NewContexts("test, slow")) // false
//
// An empty expression or an empty runtime set always matches, so changesets
// without a context run everywhere and a run without contexts runs everything.
package selector
