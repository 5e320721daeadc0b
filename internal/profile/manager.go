// Package profile implements the lifecycle state machine governing the
// transitions between a disk-resident profile and a RAM-resident one
// shadowed over the original path by a bind mount.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vramctl/internal/archive"
	"vramctl/internal/catalog"
	"vramctl/internal/config"
	"vramctl/internal/event"
	"vramctl/internal/mirror"
	"vramctl/internal/mount"
	"vramctl/internal/stats"
	"vramctl/internal/walk"
)

var (
	// ErrAlreadyLoaded reports load on a loaded profile. Non-fatal:
	// callers treat it as a successful no-op.
	ErrAlreadyLoaded = errors.New("profile already loaded in RAM")

	// ErrNotLoaded reports an operation requiring the loaded state
	// (backup, restore) or save on an unloaded profile.
	ErrNotLoaded = errors.New("profile not loaded in RAM")

	// ErrInsufficientRAM reports a profile too large for available memory.
	ErrInsufficientRAM = errors.New("not enough available RAM for profile")
)

// Manager runs lifecycle operations against one profile. Operations are
// serialized by an exclusive advisory lock; none may run concurrently
// against the same ProfileLocation.
type Manager struct {
	Paths    config.Paths
	Checksum bool
	Events   chan<- event.Event
	Stats    *stats.Collector

	// Mount hooks, replaceable in tests; real mounts need privilege.
	isMounted func(string) (bool, error)
	bind      func(ram, persistent string) error
	unbind    func(persistent string) error
}

// NewManager creates a Manager bound to the given paths.
func NewManager(paths config.Paths) *Manager {
	return &Manager{
		Paths:     paths,
		isMounted: mount.IsMounted,
		bind:      mount.Bind,
		unbind:    mount.Unbind,
	}
}

// Catalog returns the backup catalog for this profile.
func (m *Manager) Catalog() catalog.Catalog {
	return catalog.Catalog{Dir: m.Paths.BackupDir, Ext: archive.Ext}
}

// Load mirrors the persistent profile into RAM staging and bind-mounts
// the staging copy over the persistent path. Loading an already-loaded
// profile returns ErrAlreadyLoaded and changes nothing.
func (m *Manager) Load(ctx context.Context) (mirror.Result, error) {
	var res mirror.Result

	lock, err := Acquire(m.Paths.LockPath())
	if err != nil {
		return res, err
	}
	defer lock.Release()

	if _, err := os.Stat(m.Paths.Profile); err != nil {
		if os.IsNotExist(err) {
			return res, fmt.Errorf("profile at %s: %w", m.Paths.Profile, walk.ErrNotFound)
		}
		return res, fmt.Errorf("stat profile: %w", err)
	}

	mounted, err := m.isMounted(m.Paths.Profile)
	if err != nil {
		return res, err
	}
	if mounted {
		return res, ErrAlreadyLoaded
	}

	check, err := m.CheckRAM()
	if err != nil {
		return res, err
	}
	if !check.Fits() {
		return res, fmt.Errorf("profile needs %s, %s available: %w",
			stats.FormatBytes(check.RequiredBytes),
			stats.FormatBytes(int64(check.AvailableBytes)), //nolint:gosec // G115: Available fits in int64 on any real machine
			ErrInsufficientRAM)
	}

	if err := os.MkdirAll(m.Paths.Staging, 0700); err != nil {
		return res, fmt.Errorf("create staging directory: %w", err)
	}

	slog.Debug("mirroring profile into RAM", "src", m.Paths.Profile, "dst", m.Paths.Staging)
	res, err = mirror.Mirror(ctx, m.Paths.Profile, m.Paths.Staging, m.mirrorOptions())
	if err != nil {
		return res, fmt.Errorf("mirror to RAM: %w", err)
	}

	if err := m.bind(m.Paths.Staging, m.Paths.Profile); err != nil {
		return res, err
	}
	return res, nil
}

// Save unmounts the staging copy, mirrors it back to disk and removes
// the RAM copy. The RAM copy is removed only when every file made it
// back to disk; on any per-file failure it is kept, since it is the
// only place the failed files' content still exists. Saving an unloaded
// profile returns ErrNotLoaded, which callers treat as a successful
// no-op.
func (m *Manager) Save(ctx context.Context) (mirror.Result, error) {
	var res mirror.Result

	lock, err := Acquire(m.Paths.LockPath())
	if err != nil {
		return res, err
	}
	defer lock.Release()

	mounted, err := m.isMounted(m.Paths.Profile)
	if err != nil {
		return res, err
	}
	if !mounted {
		return res, ErrNotLoaded
	}

	if err := m.unbind(m.Paths.Profile); err != nil {
		return res, err
	}

	slog.Debug("mirroring RAM copy back to disk", "src", m.Paths.Staging, "dst", m.Paths.Profile)
	res, err = mirror.Mirror(ctx, m.Paths.Staging, m.Paths.Profile, m.mirrorOptions())
	if err != nil {
		// Keep the staging copy: it is the only complete version now.
		return res, fmt.Errorf("mirror to disk (RAM copy kept at %s): %w", m.Paths.Staging, err)
	}

	if len(res.Errors) > 0 {
		// The failed files exist only in the RAM copy now.
		slog.Warn("partial mirror, keeping RAM copy",
			"path", m.Paths.Staging, "failed", len(res.Errors))
		return res, nil
	}

	if err := os.RemoveAll(m.Paths.Staging); err != nil {
		return res, fmt.Errorf("remove RAM copy: %w", err)
	}
	return res, nil
}

// Backup archives the RAM-resident profile into the backup directory
// under a timestamped name. Requires the loaded state.
func (m *Manager) Backup() (string, archive.WriteResult, error) {
	var res archive.WriteResult

	lock, err := Acquire(m.Paths.LockPath())
	if err != nil {
		return "", res, err
	}
	defer lock.Release()

	if err := m.requireLoaded(); err != nil {
		return "", res, err
	}

	dest := filepath.Join(m.Paths.BackupDir, archive.Filename(m.Paths.Prefix, time.Now()))
	slog.Debug("creating backup", "dest", dest)
	res, err = archive.Create(m.Paths.Profile, dest, m.progress())
	if err != nil {
		return "", res, err
	}
	return dest, res, nil
}

// Restore unpacks the given backup over the live profile path.
// Requires the loaded state.
func (m *Manager) Restore(entry catalog.Entry) (archive.ReadResult, error) {
	var res archive.ReadResult

	lock, err := Acquire(m.Paths.LockPath())
	if err != nil {
		return res, err
	}
	defer lock.Release()

	if err := m.requireLoaded(); err != nil {
		return res, err
	}

	slog.Debug("restoring backup", "archive", entry.Path)
	return archive.Extract(entry.Path, m.Paths.Profile, m.progress())
}

// Status is a point-in-time report of the profile's state.
type Status struct {
	Mounted        bool
	ProcessRunning bool
	BackupDir      string
	BackupCount    int
	Latest         *catalog.Entry
}

// LatestAge returns how long ago the newest backup was taken.
func (s Status) LatestAge() time.Duration {
	if s.Latest == nil {
		return 0
	}
	return time.Since(s.Latest.ModTime)
}

// Status reports mount state, browser process state and a catalog
// summary. Mount state is never cached; every call queries the OS.
func (m *Manager) Status() (Status, error) {
	mounted, err := m.isMounted(m.Paths.Profile)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Mounted:        mounted,
		ProcessRunning: processRunning(m.Paths.ProcessName),
		BackupDir:      m.Paths.BackupDir,
	}

	entries, err := m.Catalog().Sorted()
	if err != nil {
		return st, err
	}
	st.BackupCount = len(entries)
	if len(entries) > 0 {
		st.Latest = &entries[0]
	}
	return st, nil
}

// ProcessRunning reports whether the configured browser process is up.
func (m *Manager) ProcessRunning() bool {
	return processRunning(m.Paths.ProcessName)
}

func (m *Manager) requireLoaded() error {
	mounted, err := m.isMounted(m.Paths.Profile)
	if err != nil {
		return err
	}
	if !mounted {
		return ErrNotLoaded
	}
	return nil
}

func (m *Manager) mirrorOptions() mirror.Options {
	return mirror.Options{
		Checksum: m.Checksum,
		Events:   m.Events,
		Stats:    m.Stats,
	}
}

// progress adapts the archive Progress callback onto the stats
// collector and event channel so the presenter renders archive
// operations the same way as mirror passes.
func (m *Manager) progress() archive.Progress {
	var prev int64
	totalSet := false
	return func(done, total int64) {
		if m.Stats != nil {
			if !totalSet {
				m.Stats.SetTotals(0, total)
				totalSet = true
			}
			m.Stats.AddBytesDone(done - prev)
		}
		event.Emit(m.Events, event.Event{Type: event.Progress, Size: done, TotalSize: total})
		prev = done
	}
}
