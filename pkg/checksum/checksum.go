package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version identifies a checksum algorithm generation.
type Version int

const (
	V7 Version = 7
	V8 Version = 8
	V9 Version = 9

	// Latest is the version used for new checksums.
	Latest = V9
)

var (
	versionPrefix = regexp.MustCompile(`^(\d+):(.*)$`)
	whitespace    = regexp.MustCompile(`\s+`)
	lineEndings   = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// ParseVersion converts a configured version number to a Version.
func ParseVersion(v int) (Version, error) {
	switch ver := Version(v); ver {
	case V7, V8, V9:
		return ver, nil
	default:
		return 0, errors.Errorf("unsupported checksum version: %d", v)
	}
}

// CheckSum is a version tagged hash.
type CheckSum struct {
	version Version
	hash    string
}

// Compute hashes data with the algorithm for version v.
func Compute(data string, v Version) CheckSum {
	sum := md5.Sum([]byte(Normalize(data, v)))
	return CheckSum{version: v, hash: hex.EncodeToString(sum[:])}
}

// Normalize applies the text normalisation performed by version v before
// hashing.
func Normalize(data string, v Version) string {
	switch {
	case v >= V9:
		return strings.TrimSpace(whitespace.ReplaceAllString(lineEndings.Replace(data), " "))
	case v == V8:
		return strings.TrimSpace(lineEndings.Replace(data))
	default:
		return data
	}
}

// New builds a CheckSum from an already computed hash.
func New(v Version, hash string) CheckSum {
	return CheckSum{version: v, hash: strings.ToLower(hash)}
}

// Parse reads a stored checksum. Values without a version prefix are legacy
// V7 checksums. An empty string yields the zero CheckSum.
func Parse(s string) (CheckSum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CheckSum{}, nil
	}

	m := versionPrefix.FindStringSubmatch(s)
	if m == nil {
		return New(V7, s), nil
	}

	v, err := strconv.Atoi(m[1])
	if err != nil {
		return CheckSum{}, errors.Wrapf(err, "invalid checksum %q", s)
	}

	return New(Version(v), m[2]), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) CheckSum {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return c
}

// Version returns the algorithm version that produced the hash.
func (c CheckSum) Version() Version { return c.version }

// Hash returns the bare hex digest.
func (c CheckSum) Hash() string { return c.hash }

// IsZero reports whether c holds no checksum.
func (c CheckSum) IsZero() bool { return c.hash == "" }

// String renders the stored form, "<version>:<hash>".
func (c CheckSum) String() string {
	if c.IsZero() {
		return ""
	}

	return strconv.Itoa(int(c.version)) + ":" + c.hash
}

// Equal compares version and hash.
func (c CheckSum) Equal(o CheckSum) bool {
	return c.version == o.version && c.hash == o.hash
}

// IsWildcard reports whether a validCheckSum entry accepts any checksum.
// "any", "all" and "*" are accepted with or without the "1:" prefix.
func IsWildcard(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "1:")
	return s == "any" || s == "all" || s == "*"
}
