// Package filter provides the predicates that decide which changesets an
// iterator visits.
//
// Each Filter returns a Result naming the filter, whether the changeset was
// accepted and a short human readable reason. Filters are evaluated in order;
// see the iterator package for how denials are combined.
//
// Example usage:
//
//	filters := []filter.Filter{
//		filter.NewShouldRun(db.ShortName(), ran),
//		&filter.Context{Contexts: contexts},
//		&filter.Label{Labels: labels},
//		&filter.Dbms{Database: db.ShortName()},
//		filter.Ignore{},
//	}
package filter
