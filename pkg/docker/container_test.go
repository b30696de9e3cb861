package docker_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/docker"
	"github.com/stretchr/testify/require"
)

// skipIfNoDocker skips the test in short mode or when Docker is not available
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Docker tests in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	if err := exec.Command("docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

func writeConfigDir(t *testing.T) string {
	t.Helper()

	configDir := filepath.Join(t.TempDir(), "config.d")
	require.NoError(t, os.MkdirAll(configDir, consts.ModeDir))

	configContent := `<?xml version="1.0"?>
<clickhouse>
    <logger>
        <level>warning</level>
        <console>true</console>
    </logger>
</clickhouse>`

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "logging.xml"), []byte(configContent), consts.ModeFile))
	return configDir
}

func TestNewDefaultsImage(t *testing.T) {
	sb := docker.New(docker.Options{})
	require.Equal(t, consts.DefaultClickHouseImage, sb.Image())
	require.False(t, sb.IsRunning())
	require.Empty(t, sb.ID())

	_, err := sb.URL(context.Background())
	require.Error(t, err)

	_, err = sb.HTTPURL(context.Background())
	require.Error(t, err)

	// Stopping a sandbox that never started is a no-op.
	require.NoError(t, sb.Stop(context.Background()))
}

func TestSandbox_StartStop(t *testing.T) {
	skipIfNoDocker(t)

	sb := docker.New(docker.Options{ConfigDir: writeConfigDir(t), Project: "test"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer func() { _ = sb.Stop(ctx) }()

	require.NoError(t, sb.Start(ctx))
	require.True(t, sb.IsRunning())
	require.NotEmpty(t, sb.ID())
	require.Error(t, sb.Start(ctx))

	url, err := sb.URL(ctx)
	require.NoError(t, err)
	require.Contains(t, url, "clickhouse://")

	httpURL, err := sb.HTTPURL(ctx)
	require.NoError(t, err)
	require.Contains(t, httpURL, "http://")

	db, err := database.Open(ctx, database.Config{URL: url})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.Exec(ctx, "CREATE TABLE sandbox_check (id UInt32) ENGINE = Memory"))
	ok, err := db.TableExists(ctx, "", "sandbox_check")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sb.Stop(ctx))
	require.False(t, sb.IsRunning())
}
