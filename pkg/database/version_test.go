package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *VersionInfo
		wantErr  bool
	}{
		{
			name:     "clickhouse four part",
			input:    "25.7.1.3997",
			expected: &VersionInfo{Major: 25, Minor: 7, Patch: 1, Raw: "25.7.1.3997"},
		},
		{
			name:     "postgres with distribution",
			input:    "16.4 (Debian 16.4-1.pgdg120+2)",
			expected: &VersionInfo{Major: 16, Minor: 4, Patch: 0, Raw: "16.4 (Debian 16.4-1.pgdg120+2)"},
		},
		{
			name:     "sqlite",
			input:    "3.46.0",
			expected: &VersionInfo{Major: 3, Minor: 46, Patch: 0, Raw: "3.46.0"},
		},
		{
			name:     "testing suffix",
			input:    "22.8.2.11-testing",
			expected: &VersionInfo{Major: 22, Minor: 8, Patch: 2, Raw: "22.8.2.11-testing"},
		},
		{
			name:    "garbage",
			input:   "latest",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, v)
		})
	}
}

func TestVersionInfoIsAtLeast(t *testing.T) {
	v := VersionInfo{Major: 21, Minor: 10}
	require.True(t, v.IsAtLeast(21, 10))
	require.True(t, v.IsAtLeast(20, 99))
	require.False(t, v.IsAtLeast(21, 11))
	require.False(t, v.IsAtLeast(22, 0))
	require.Equal(t, "21.10.0", v.String())
}
