package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	paths, err := Default()
	require.NoError(t, err)

	assert.Contains(t, paths.Profile, filepath.Join(".config", "vivaldi"))
	assert.Equal(t, "/dev/shm/vivaldi-profile", paths.Staging)
	assert.Contains(t, paths.BackupDir, "Backups")
	assert.Equal(t, "vivaldi-profile", paths.Prefix)
	assert.Equal(t, "vivaldi-bin", paths.ProcessName)
}

func TestLoadFrom_MissingFileKeepsDefaults(t *testing.T) {
	defaults, err := Default()
	require.NoError(t, err)

	paths, err := loadFrom(filepath.Join(t.TempDir(), "absent.toml"), defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, paths)
}

func TestLoadFrom_PartialOverride(t *testing.T) {
	defaults, err := Default()
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
profile = "/data/browser-profile"
process_name = "chromium"
`), 0644))

	paths, err := loadFrom(file, defaults)
	require.NoError(t, err)

	assert.Equal(t, "/data/browser-profile", paths.Profile)
	assert.Equal(t, "chromium", paths.ProcessName)
	// Untouched keys keep their defaults.
	assert.Equal(t, defaults.Staging, paths.Staging)
	assert.Equal(t, defaults.BackupDir, paths.BackupDir)
	assert.Equal(t, defaults.Prefix, paths.Prefix)
}

func TestLoadFrom_BadTOML(t *testing.T) {
	defaults, err := Default()
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("profile = ["), 0644))

	_, err = loadFrom(file, defaults)
	assert.Error(t, err)
}

func TestLockPath(t *testing.T) {
	p := Paths{Staging: "/dev/shm/vivaldi-profile"}
	assert.Equal(t, "/dev/shm/.vivaldi-profile.lock", p.LockPath())
}
