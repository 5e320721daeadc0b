// Package config builds the immutable path configuration every
// component receives. Paths are resolved once at process start; nothing
// in this program mutates global path state afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Paths is the fixed location set for one profile. The persistent
// profile path never changes identity; the staging path lives on a
// volatile filesystem and must not outlive a loaded profile.
type Paths struct {
	// Profile is the persistent on-disk profile directory.
	Profile string
	// Staging is the RAM copy location, conventionally under /dev/shm.
	Staging string
	// BackupDir holds the timestamped archive containers.
	BackupDir string
	// Prefix names the archive files: <Prefix>-<timestamp>.tar.zst.
	Prefix string
	// ProcessName is the browser binary to probe for in status/load.
	ProcessName string
}

// LockPath is the advisory lock file guarding every lifecycle, backup
// and restore operation against concurrent invocations.
func (p Paths) LockPath() string {
	return filepath.Join(filepath.Dir(p.Staging), "."+filepath.Base(p.Staging)+".lock")
}

// fileConfig is the optional TOML override file. Pointer fields so only
// keys present in the file override the defaults.
type fileConfig struct {
	Profile     *string `toml:"profile"`
	Staging     *string `toml:"staging"`
	BackupDir   *string `toml:"backup_dir"`
	Prefix      *string `toml:"prefix"`
	ProcessName *string `toml:"process_name"`
}

// Default returns the built-in path set derived from the user's home.
func Default() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Paths{
		Profile:     filepath.Join(home, ".config", "vivaldi"),
		Staging:     "/dev/shm/vivaldi-profile",
		BackupDir:   filepath.Join(home, "Backups", "vivaldi-profile-ram"),
		Prefix:      "vivaldi-profile",
		ProcessName: "vivaldi-bin",
	}, nil
}

// Path returns the resolved path to the optional config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "vramctl", "config.toml")
}

// Load returns the defaults overridden by the optional config file.
// A missing file is not an error; the config is always optional.
func Load() (Paths, error) {
	paths, err := Default()
	if err != nil {
		return Paths{}, err
	}
	return loadFrom(Path(), paths)
}

func loadFrom(path string, paths Paths) (Paths, error) {
	if path == "" {
		return paths, nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return paths, nil
		}
		return Paths{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Profile != nil {
		paths.Profile = *fc.Profile
	}
	if fc.Staging != nil {
		paths.Staging = *fc.Staging
	}
	if fc.BackupDir != nil {
		paths.BackupDir = *fc.BackupDir
	}
	if fc.Prefix != nil {
		paths.Prefix = *fc.Prefix
	}
	if fc.ProcessName != nil {
		paths.ProcessName = *fc.ProcessName
	}
	return paths, nil
}
