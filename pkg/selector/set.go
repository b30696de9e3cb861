package selector

import (
	"slices"
	"strings"
)

type (
	// Set is an ordered, case-insensitive collection of names.
	Set struct {
		values []string
	}

	// Contexts is the runtime context set.
	Contexts = Set

	// Labels is the set of labels attached to a changeset or parameter.
	Labels = Set
)

// NewSet splits a comma separated list into a Set, dropping blanks and
// duplicates. Values are lower cased.
func NewSet(raw string) Set {
	var s Set
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || slices.Contains(s.values, part) {
			continue
		}

		s.values = append(s.values, part)
	}

	return s
}

// NewContexts returns the runtime contexts described by raw.
func NewContexts(raw string) Contexts {
	return NewSet(raw)
}

// NewLabels returns the labels described by raw.
func NewLabels(raw string) Labels {
	return NewSet(raw)
}

// IsEmpty reports whether the set has no values.
func (s Set) IsEmpty() bool {
	return len(s.values) == 0
}

// Contains reports whether name is in the set, ignoring case.
func (s Set) Contains(name string) bool {
	return slices.Contains(s.values, strings.ToLower(strings.TrimSpace(name)))
}

// Values returns a copy of the values in insertion order.
func (s Set) Values() []string {
	return slices.Clone(s.values)
}

// String renders the set as a comma separated list.
func (s Set) String() string {
	return strings.Join(s.values, ",")
}
