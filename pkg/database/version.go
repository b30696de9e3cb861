package database

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// VersionInfo represents a parsed server version.
type VersionInfo struct {
	Major int    // Major version number (e.g., 25)
	Minor int    // Minor version number (e.g., 7)
	Patch int    // Patch version number (e.g., 1)
	Raw   string // Raw version string reported by the server
}

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// String returns the version as a string in format "major.minor.patch"
func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsAtLeast checks if this version is at least the specified version
func (v VersionInfo) IsAtLeast(major, minor int) bool {
	if v.Major > major {
		return true
	}
	return v.Major == major && v.Minor >= minor
}

// Version retrieves and parses the server version.
func (d *SQLDatabase) Version(ctx context.Context) (*VersionInfo, error) {
	rows, err := d.Query(ctx, d.dialect.VersionQuery())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s version", d.dialect.ProductName())
	}

	if len(rows) == 0 {
		return nil, errors.Errorf("%s returned no version", d.dialect.ProductName())
	}

	var raw string
	for _, v := range rows[0] {
		raw = fmt.Sprint(v)
	}

	version, err := parseVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s version: %s", d.dialect.ProductName(), raw)
	}

	return version, nil
}

// parseVersion parses a server version string. Versions can be in various
// formats:
// - "25.7.1.3997" (ClickHouse)
// - "16.4 (Debian 16.4-1.pgdg120+2)" (PostgreSQL)
// - "3.46.0" (SQLite)
// - "22.8.2.11-testing" (with suffix)
func parseVersion(versionStr string) (*VersionInfo, error) {
	cleaned := strings.TrimSpace(versionStr)

	// Remove everything after the first space (e.g., "(official build)")
	if spaceIdx := strings.Index(cleaned, " "); spaceIdx != -1 {
		cleaned = cleaned[:spaceIdx]
	}

	// Remove common suffixes like "-testing", "-stable", etc.
	if dashIdx := strings.Index(cleaned, "-"); dashIdx != -1 {
		cleaned = cleaned[:dashIdx]
	}

	matches := versionRegex.FindStringSubmatch(cleaned)
	if len(matches) < 3 {
		return nil, errors.Errorf("invalid version format: %s", versionStr)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])

	patch := 0
	if matches[3] != "" {
		patch, _ = strconv.Atoi(matches[3])
	}

	return &VersionInfo{
		Major: major,
		Minor: minor,
		Patch: patch,
		Raw:   versionStr,
	}, nil
}
