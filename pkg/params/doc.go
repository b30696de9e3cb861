// Package params stores changelog parameters and expands `${...}` expressions
// in changelog text.
//
// Parameters come from three places: the process environment, the
// `database.*` facts describing the target database, and `property`
// declarations inside changelogs. Each parameter may be restricted to
// contexts, labels and databases; a parameter only resolves when its
// restrictions match the filter configured for the run.
//
// # Scopes
//
// Global parameters are visible to every changelog. Local parameters belong to
// a single changelog file, keyed by its logical path. Lookup consults:
//
//  1. the reserved LIQUIBASE_EXECUTION_* keys, resolved from the changelog
//     currently being loaded
//  2. local parameters of the requesting changelog, most recent first
//  3. global parameters, oldest first
//
// The first candidate whose filter matches wins. Because globals are searched
// oldest first, setting an already matching global again never changes the
// value it resolves to.
//
// # Expansion
//
//	p := params.New(params.Config{MissingPolicy: params.PolicyError})
//	_ = p.Set("schema", "app", "", "", "", true, nil)
//
//	out, err := p.Expand("CREATE TABLE ${schema}.person", changeLog)
//	// out == "CREATE TABLE app.person"
//
// Expressions nest (`${prefix_${env}}`), unterminated expressions are copied
// through verbatim, and with escaping enabled `${:name}` produces the literal
// text `${name}`. Missing keys follow the configured Policy.
package params
