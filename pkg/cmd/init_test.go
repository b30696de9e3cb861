package cmd

import (
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/cmd/testutil"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/stretchr/testify/require"
)

func TestInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		changeLog string
		url       string
	}{
		{
			name:      "defaults",
			changeLog: "db/changelog.yaml",
			url:       consts.DefaultDatabaseURL,
		},
		{
			name:      "sql changelog",
			args:      []string{"--format", "sql"},
			changeLog: "db/changelog.sql",
			url:       consts.DefaultDatabaseURL,
		},
		{
			name:      "custom url",
			args:      []string{"--format", "XML", "--url", "postgres://app@localhost:5432/app"},
			changeLog: "db/changelog.xml",
			url:       "postgres://app@localhost:5432/app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)

			cfg := config.Default()
			out, err := testutil.RunCommand(t, initCmd(initParams{Config: cfg}), tt.args...)
			require.NoError(t, err)
			require.Contains(t, out, "Initialized project with root changelog "+tt.changeLog)

			testutil.RequireValidProject(t, dir, tt.changeLog)
			testutil.RequireFileExists(t, filepath.Join(dir, consts.DefaultConfigFile),
				testutil.RequireFileContains(t, "changelog: "+tt.changeLog),
				testutil.RequireFileContains(t, "url: "+tt.url),
			)

			// The shared configuration now points at the new project.
			require.Equal(t, tt.changeLog, cfg.ChangeLog)
			require.Equal(t, tt.url, cfg.Database.URL)
		})
	}
}

func TestInitCommand_InvalidFormat(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := testutil.RunCommand(t, initCmd(initParams{Config: config.Default()}), "--format", "toml")
	testutil.RequireError(t, err, `unsupported changelog format "toml"`)
}

func TestInitCommand_ThenUpdate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg := config.Default()
	_, err := testutil.RunCommand(t, initCmd(initParams{Config: cfg}), "--format", "sql")
	require.NoError(t, err)

	fixture := testutil.LoadProject(t, dir).WithChanges(map[string]string{
		"001.sql": "CREATE TABLE widgets (id INTEGER);\n",
	})

	out, err := testutil.RunCommand(t, update(updateParams{Config: cfg}))
	require.NoError(t, err)
	require.Contains(t, out, "1 changeset applied in")
	requireTable(t, fixture, "widgets", true)
}
