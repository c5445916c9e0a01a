package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad_DefaultsAndFolders(t *testing.T) {
	path := writeConfig(t, `
session_cooldown = "45s"

[[folder]]
id = "f1"
sync_id = "DEMO1234"
local_path = "/home/user/sync"
mode = "twoWay"
exclude_patterns = ["*.tmp", "node_modules/"]
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultStabilityWindow, cfg.StabilityWindow)
	assert.Equal(t, 45*1_000_000_000, int(cfg.SessionCooldown))

	f, ok := cfg.Folders["f1"]
	require.True(t, ok)
	assert.Equal(t, "DEMO1234", f.SyncID)
	assert.Equal(t, ModeTwoWay, f.Mode)
	assert.Equal(t, []string{"*.tmp", "node_modules/"}, f.ExcludePatterns)
}

func TestLoad_RejectsInvalidSyncID(t *testing.T) {
	path := writeConfig(t, `
[[folder]]
id = "f1"
sync_id = "no"
local_path = "/tmp/x"
mode = "twoWay"
`)

	_, err := Load(path, nil)
	require.ErrorIs(t, err, ErrInvalidSyncID)
}

func TestLoad_RejectsDuplicateSyncID(t *testing.T) {
	path := writeConfig(t, `
[[folder]]
id = "f1"
sync_id = "DEMO1234"
local_path = "/tmp/a"
mode = "twoWay"

[[folder]]
id = "f2"
sync_id = "DEMO1234"
local_path = "/tmp/b"
mode = "twoWay"
`)

	_, err := Load(path, nil)
	require.ErrorIs(t, err, ErrDuplicateSyncID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml", nil)
	require.Error(t, err)
}
