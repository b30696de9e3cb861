package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/stretchr/testify/require"
)

// ProjectFixture represents a test project environment with all necessary dependencies
type ProjectFixture struct {
	Dir     string
	Config  *config.Config
	Project *project.Project
	t       *testing.T
}

// TestProject creates an isolated temp directory with an initialized
// changekeeper project backed by a SQLite file, and makes it the working
// directory for the rest of the test.
func TestProject(t *testing.T) *ProjectFixture {
	t.Helper()

	tmpDir := t.TempDir()
	proj := project.New(tmpDir)

	cfg, err := proj.Initialize(project.InitOptions{
		DatabaseURL: "sqlite://file:" + filepath.ToSlash(filepath.Join(tmpDir, "app.db")),
	})
	require.NoError(t, err, "Failed to initialize test project")

	t.Chdir(tmpDir)

	return &ProjectFixture{
		Dir:     tmpDir,
		Config:  cfg,
		Project: proj,
		t:       t,
	}
}

// LoadProject wraps an already initialized project directory.
func LoadProject(t *testing.T, dir string) *ProjectFixture {
	t.Helper()

	proj := project.New(dir)
	cfg, err := config.LoadConfigFile(proj.ConfigPath())
	require.NoError(t, err, "Failed to load config file")

	return &ProjectFixture{
		Dir:     dir,
		Config:  cfg,
		Project: proj,
		t:       t,
	}
}

// WithChanges writes changelog files below db/changes, keyed by file name.
// The root changelog includes them in name order.
func (p *ProjectFixture) WithChanges(files map[string]string) *ProjectFixture {
	p.t.Helper()

	dir := p.GetChangesDir()
	for name, content := range files {
		err := os.WriteFile(filepath.Join(dir, name), []byte(content), consts.ModeFile)
		require.NoError(p.t, err, "Failed to write changelog file: %s", name)
	}

	return p
}

// WithConfig applies fn to the fixture's configuration.
func (p *ProjectFixture) WithConfig(fn func(*config.Config)) *ProjectFixture {
	p.t.Helper()

	fn(p.Config)
	return p
}

// GetChangesDir returns the path to the db/changes directory
func (p *ProjectFixture) GetChangesDir() string {
	return filepath.Join(p.Dir, "db", "changes")
}

// GetConfigPath returns the path to the changekeeper.yaml file
func (p *ProjectFixture) GetConfigPath() string {
	return p.Project.ConfigPath()
}
