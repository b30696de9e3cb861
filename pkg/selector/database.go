package selector

import (
	"strings"
)

// SplitDatabases parses a comma separated dbms attribute.
func SplitDatabases(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}

	return out
}

// DatabaseMatches reports whether a dbms definition admits the named database.
//
// Rules, checked in order:
//   - an empty definition yields ifEmpty
//   - "none" never matches and "all" always matches
//   - "!name" excludes name
//   - a definition made only of exclusions admits everything else
//   - otherwise the name must be listed
func DatabaseMatches(definition []string, name string, ifEmpty bool) bool {
	if len(definition) == 0 {
		return ifEmpty
	}

	name = strings.ToLower(strings.TrimSpace(name))
	allNegated := true
	for _, d := range definition {
		d = strings.ToLower(strings.TrimSpace(d))
		switch {
		case d == "none":
			return false
		case d == "all":
			return true
		case d == "!"+name:
			return false
		}

		if !strings.HasPrefix(d, "!") {
			allNegated = false
		}
	}

	if allNegated {
		return true
	}

	for _, d := range definition {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}

	return false
}
