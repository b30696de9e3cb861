package project_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/stretchr/testify/require"
)

func TestProjectInitialize(t *testing.T) {
	tests := []struct {
		format    string
		changeLog string
	}{
		{format: "", changeLog: "db/changelog.yaml"},
		{format: "yaml", changeLog: "db/changelog.yaml"},
		{format: "SQL", changeLog: "db/changelog.sql"},
		{format: "xml", changeLog: "db/changelog.xml"},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			dir := t.TempDir()

			cfg, err := project.New(dir).Initialize(project.InitOptions{
				DatabaseURL: "postgres://localhost:5432/app",
				Format:      tt.format,
			})
			require.NoError(t, err)
			require.Equal(t, tt.changeLog, cfg.ChangeLog)
			require.Equal(t, "postgres://localhost:5432/app", cfg.Database.URL)

			require.FileExists(t, filepath.Join(dir, consts.DefaultConfigFile))
			require.FileExists(t, filepath.Join(dir, filepath.FromSlash(tt.changeLog)))
			require.DirExists(t, filepath.Join(dir, "db", "changes"))

			data, err := os.ReadFile(filepath.Join(dir, consts.DefaultConfigFile))
			require.NoError(t, err)
			require.NotContains(t, string(data), "$$")
		})
	}
}

func TestProjectInitializePreservesExisting(t *testing.T) {
	dir := t.TempDir()
	existing := "changelog: db/main.yaml\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, consts.DefaultConfigFile), []byte(existing), consts.ModeFile))

	cfg, err := project.New(dir).Initialize(project.InitOptions{})
	require.NoError(t, err)
	require.Equal(t, "db/main.yaml", cfg.ChangeLog)

	data, err := os.ReadFile(filepath.Join(dir, consts.DefaultConfigFile))
	require.NoError(t, err)
	require.Equal(t, existing, string(data))
}

func TestProjectInitializeErrors(t *testing.T) {
	_, err := project.New(t.TempDir()).Initialize(project.InitOptions{Format: "toml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported changelog format")

	_, err = project.New(filepath.Join(t.TempDir(), "missing")).Initialize(project.InitOptions{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, consts.ModeFile))
	_, err = project.New(file).Initialize(project.InitOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "is not a directory")
}

func TestFormats(t *testing.T) {
	require.Equal(t, []string{"sql", "xml", "yaml"}, project.Formats())
}

func TestScaffoldedProjectRuns(t *testing.T) {
	for _, format := range project.Formats() {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			cfg, err := project.New(dir).Initialize(project.InitOptions{
				DatabaseURL: "sqlite://file::memory:",
				Format:      format,
			})
			require.NoError(t, err)

			change := "databaseChangeLog:\n  - changeSet:\n      id: \"1\"\n      author: alice\n      changes:\n        - sql: CREATE TABLE person (id INT)\n"
			require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "changes", "001-person.yaml"), []byte(change), consts.ModeFile))

			cfg.SearchPath = dir
			db, err := cfg.OpenDatabase(ctx, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			cl, err := cfg.LoadChangeLog(db, selector.Contexts{}, nil)
			require.NoError(t, err)
			require.Len(t, cl.ChangeSets(), 1)

			result, err := cfg.Executor(db).Update(ctx, cl, executor.Options{})
			require.NoError(t, err)
			require.Equal(t, 1, result.Count())
		})
	}
}
