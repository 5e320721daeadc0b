package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testExt = ".tar.zst"

func addBackup(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("archive"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestEntries_MissingDirIsEmpty(t *testing.T) {
	c := Catalog{Dir: filepath.Join(t.TempDir(), "nope"), Ext: testExt}
	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntries_IgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()
	addBackup(t, dir, "profile-2025-01-01_00-00-00.tar.zst", time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir.tar.zst"), 0755))

	c := Catalog{Dir: dir, Ext: testExt}
	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "profile-2025-01-01_00-00-00.tar.zst", entries[0].Name)
	assert.Equal(t, int64(7), entries[0].Size)
}

func TestLatest_MaxModTime(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	addBackup(t, dir, "profile-2025-01-01_00-00-00.tar.zst", base)
	addBackup(t, dir, "profile-2025-01-02_00-00-00.tar.zst", base.Add(time.Minute))
	addBackup(t, dir, "profile-2025-01-03_00-00-00.tar.zst", base.Add(2*time.Minute))

	c := Catalog{Dir: dir, Ext: testExt}
	latest, err := c.Latest()
	require.NoError(t, err)
	assert.Equal(t, "profile-2025-01-03_00-00-00.tar.zst", latest.Name)
}

func TestLatest_TieBreaksOnName(t *testing.T) {
	dir := t.TempDir()
	at := time.Now().Truncate(time.Second)
	addBackup(t, dir, "profile-2025-01-01_00-00-01.tar.zst", at)
	addBackup(t, dir, "profile-2025-01-01_00-00-02.tar.zst", at)

	c := Catalog{Dir: dir, Ext: testExt}
	latest, err := c.Latest()
	require.NoError(t, err)
	assert.Equal(t, "profile-2025-01-01_00-00-02.tar.zst", latest.Name)
}

func TestLatest_Empty(t *testing.T) {
	c := Catalog{Dir: t.TempDir(), Ext: testExt}
	_, err := c.Latest()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSorted_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	addBackup(t, dir, "profile-a.tar.zst", base)
	addBackup(t, dir, "profile-c.tar.zst", base.Add(2*time.Minute))
	addBackup(t, dir, "profile-b.tar.zst", base.Add(time.Minute))

	c := Catalog{Dir: dir, Ext: testExt}
	sorted, err := c.Sorted()
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, "profile-c.tar.zst", sorted[0].Name)
	assert.Equal(t, "profile-b.tar.zst", sorted[1].Name)
	assert.Equal(t, "profile-a.tar.zst", sorted[2].Name)
}

func TestKeepLatest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	addBackup(t, dir, "profile-1.tar.zst", base)
	addBackup(t, dir, "profile-2.tar.zst", base.Add(time.Minute))
	addBackup(t, dir, "profile-3.tar.zst", base.Add(2*time.Minute))

	c := Catalog{Dir: dir, Ext: testExt}
	deleted, err := c.KeepLatest()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "profile-3.tar.zst", entries[0].Name)
}

func TestKeepLatest_ZeroOrOne(t *testing.T) {
	dir := t.TempDir()
	c := Catalog{Dir: dir, Ext: testExt}

	deleted, err := c.KeepLatest()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	addBackup(t, dir, "profile-only.tar.zst", time.Now())
	deleted, err = c.KeepLatest()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPurgeAll(t *testing.T) {
	dir := t.TempDir()
	addBackup(t, dir, "profile-1.tar.zst", time.Now())
	addBackup(t, dir, "profile-2.tar.zst", time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	c := Catalog{Dir: dir, Ext: testExt}
	deleted, err := c.PurgeAll()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Non-matching files are untouched.
	_, err = os.Stat(filepath.Join(dir, "unrelated.txt"))
	assert.NoError(t, err)
}
