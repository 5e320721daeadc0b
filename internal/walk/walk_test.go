package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWalk_YieldsFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("0123456789"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("01234"), 0644))

	entries, res, err := Collect(root)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), res.Files)
	assert.Equal(t, int64(1), res.Dirs)
	assert.Equal(t, int64(15), res.Bytes)
	assert.Empty(t, res.Skipped)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.RelPath] = e
	}
	assert.Equal(t, int64(10), byPath["a.txt"].Size)
	assert.True(t, byPath["sub"].IsDir)
	assert.Equal(t, int64(5), byPath[filepath.Join("sub", "b.txt")].Size)
}

func TestWalk_IncludesEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	entries, res, err := Collect(root)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "empty", entries[0].RelPath)
	assert.Equal(t, int64(1), res.Dirs)
}

func TestWalk_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"zz.txt", "aa.txt", "mm.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}

	first, _, err := Collect(root)
	require.NoError(t, err)
	second, _, err := Collect(root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "aa.txt", first[0].RelPath)
	assert.Equal(t, "mm.txt", first[1].RelPath)
	assert.Equal(t, "zz.txt", first[2].RelPath)
}

func TestWalk_MissingRoot(t *testing.T) {
	_, _, err := Collect(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalk_YieldsSymlinks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("k"), 0644))
	require.NoError(t, os.Symlink("keep.txt", filepath.Join(root, "link")))

	entries, res, err := Collect(root)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), res.Files)
	assert.Equal(t, int64(1), res.Links)
	assert.Empty(t, res.Skipped)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.RelPath] = e
	}
	assert.Equal(t, "keep.txt", byPath["link"].LinkTarget)
	assert.Empty(t, byPath["keep.txt"].LinkTarget)
}

func TestWalk_SkipsFifos(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, unix.Mkfifo(filepath.Join(root, "pipe"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("k"), 0644))

	entries, res, err := Collect(root)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].RelPath)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0], "pipe")
}

func TestTreeSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), make([]byte, 1000), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "b"), make([]byte, 500), 0644))

	n, err := TreeSize(root)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), n)
}
