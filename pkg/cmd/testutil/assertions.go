package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/stretchr/testify/require"
)

// RequireValidProject asserts that a project structure is correctly initialized
func RequireValidProject(t *testing.T, projectDir, changeLog string) {
	t.Helper()

	require.DirExists(t, filepath.Join(projectDir, "db"), "db directory should exist")
	require.DirExists(t, filepath.Join(projectDir, "db", "changes"), "changes directory should exist")
	require.FileExists(t, filepath.Join(projectDir, consts.DefaultConfigFile), "changekeeper.yaml should exist")
	require.FileExists(t, filepath.Join(projectDir, filepath.FromSlash(changeLog)), "root changelog should exist")
}

// RequireFileExists asserts that a file exists and optionally checks its content
func RequireFileExists(t *testing.T, path string, checks ...func(content string)) {
	t.Helper()

	require.FileExists(t, path, "File should exist: %s", path)

	if len(checks) > 0 {
		content, err := os.ReadFile(path)
		require.NoError(t, err, "Failed to read file: %s", path)

		for _, check := range checks {
			check(string(content))
		}
	}
}

// RequireFileContains returns a check function that verifies file contains text
func RequireFileContains(t *testing.T, expected string) func(string) {
	return func(content string) {
		require.Contains(t, content, expected, "File should contain: %s", expected)
	}
}

// RequireError asserts that an error occurred and optionally checks the message
func RequireError(t *testing.T, err error, msgContains ...string) {
	t.Helper()

	require.Error(t, err, "Expected an error")

	for _, msg := range msgContains {
		require.Contains(t, err.Error(), msg, "Error message should contain: %s", msg)
	}
}
