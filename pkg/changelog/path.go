package changelog

import (
	"path"
	"regexp"
	"strings"
)

var driveLetter = regexp.MustCompile(`^[A-Za-z]:`)

// NormalizePath converts a changelog reference into the canonical form used
// in changeset identities.
//
// It strips a classpath: prefix and any drive letter, converts backslashes,
// removes a leading slash and collapses "." and ".." segments.
//
// Example usage:
//
//	changelog.NormalizePath(`classpath:db\changes/./001.yaml`) // "db/changes/001.yaml"
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}

	p = strings.TrimPrefix(p, "classpath:")
	p = strings.ReplaceAll(p, `\`, "/")
	p = driveLetter.ReplaceAllString(p, "")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}

	p = path.Clean(p)
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}

	if p == "." || p == ".." {
		return ""
	}

	return p
}

// resolve returns ref relative to the directory of from when relative is
// set, normalised either way.
func resolve(from, ref string, relative bool) string {
	if relative {
		ref = strings.ReplaceAll(strings.TrimSpace(ref), `\`, "/")
		return NormalizePath(path.Join(path.Dir(NormalizePath(from)), ref))
	}

	return NormalizePath(ref)
}

// includeAllOrder sorts paths so that classpath and filesystem layouts
// produce the same order.
func includeAllOrder(a, b string) int {
	return strings.Compare(strings.TrimPrefix(a, "WEB-INF/classes/"), strings.TrimPrefix(b, "WEB-INF/classes/"))
}
