package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 30, 5, 0, time.Local)
	assert.Equal(t, "vivaldi-profile-2025-03-09_14-30-05.tar.zst", Filename("vivaldi-profile", at))
}

func TestCreateExtract_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "emptydir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("0123456789"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("01234"), 0600))

	arc := filepath.Join(dir, "backup.tar.zst")
	wres, err := Create(src, arc, nil)
	require.NoError(t, err)
	assert.Empty(t, wres.Errors)
	assert.Equal(t, 4, wres.Entries) // 2 files + 2 dirs
	assert.Equal(t, int64(15), wres.Bytes)

	// No .partial left behind.
	_, err = os.Stat(arc + ".partial")
	assert.True(t, os.IsNotExist(err))

	out := filepath.Join(dir, "out")
	rres, err := Extract(arc, out, nil)
	require.NoError(t, err)
	assert.Empty(t, rres.Errors)
	assert.Equal(t, 4, rres.Entries)
	assert.Equal(t, int64(15), rres.Bytes)

	data, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	data, err = os.ReadFile(filepath.Join(out, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "01234", string(data))

	info, err := os.Stat(filepath.Join(out, "emptydir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtract_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("new content"), 0644))

	arc := filepath.Join(dir, "backup.tar.zst")
	_, err := Create(src, arc, nil)
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.txt"), []byte("old"), 0644))

	_, err = Extract(arc, out, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestCreate_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(filepath.Join(dir, "nope"), filepath.Join(dir, "a.tar.zst"), nil)
	require.Error(t, err)
}

func TestCreate_ProgressMonotonic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "big"), make([]byte, 300*1024), 0644))

	var fractions []float64
	_, err := Create(src, filepath.Join(dir, "a.tar.zst"), func(done, total int64) {
		require.Positive(t, total)
		fractions = append(fractions, float64(done)/float64(total))
	})
	require.NoError(t, err)

	require.NotEmpty(t, fractions)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 0.001)
}

func TestExtract_Corrupt(t *testing.T) {
	dir := t.TempDir()
	arc := filepath.Join(dir, "bad.tar.zst")
	require.NoError(t, os.WriteFile(arc, []byte("this is not zstd"), 0644))

	_, err := Extract(arc, filepath.Join(dir, "out"), nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	arc := filepath.Join(dir, "evil.tar.zst")

	// Hand-craft an archive with an escaping entry and a safe one.
	f, err := os.Create(arc)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	for name, content := range map[string]string{
		"../evil.txt": "pwned",
		"safe.txt":    "fine",
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Size:     int64(len(content)),
			Mode:     0644,
		}))
		_, err = tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "deeper", "out")
	res, err := Extract(arc, out, nil)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrUnsafeEntry)

	// The escaping entry must not exist; the safe one must.
	_, err = os.Stat(filepath.Join(dir, "deeper", "evil.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(out, "safe.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fine", string(data))
}

func TestCreateExtract_PreservesSymlinks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("content"), 0644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "ln")))

	arc := filepath.Join(dir, "backup.tar.zst")
	wres, err := Create(src, arc, nil)
	require.NoError(t, err)
	assert.Empty(t, wres.Errors)
	assert.Equal(t, 2, wres.Entries)

	out := filepath.Join(dir, "out")
	rres, err := Extract(arc, out, nil)
	require.NoError(t, err)
	assert.Empty(t, rres.Errors)
	assert.Equal(t, 2, rres.Entries)

	target, err := os.Readlink(filepath.Join(out, "ln"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)
}

func TestExtract_RejectsEscapingLinkTarget(t *testing.T) {
	dir := t.TempDir()
	arc := filepath.Join(dir, "evil.tar.zst")

	f, err := os.Create(arc)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	for name, target := range map[string]string{
		"bad-abs": "/etc/passwd",
		"bad-rel": "../../outside",
		"ok":      "sub/inside",
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeSymlink,
			Linkname: target,
			Mode:     0777,
		}))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out")
	res, err := Extract(arc, out, nil)
	require.NoError(t, err)

	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.ErrorIs(t, e, ErrUnsafeEntry)
	}

	_, err = os.Lstat(filepath.Join(out, "bad-abs"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(out, "bad-rel"))
	assert.True(t, os.IsNotExist(err))
	target, err := os.Readlink(filepath.Join(out, "ok"))
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("sub/inside"), target)
}

func TestSafeLinkTarget(t *testing.T) {
	for _, tc := range []struct{ name, target string }{
		{"ln", "a.txt"},
		{"sub/ln", "../a.txt"},
		{"sub/ln", "other/b.txt"},
	} {
		assert.NoError(t, safeLinkTarget(tc.name, tc.target), "%s -> %s", tc.name, tc.target)
	}
	for _, tc := range []struct{ name, target string }{
		{"ln", ""},
		{"ln", "/etc/passwd"},
		{"ln", "../escape"},
		{"sub/ln", "../../escape"},
	} {
		assert.ErrorIs(t, safeLinkTarget(tc.name, tc.target), ErrUnsafeEntry, "%s -> %s", tc.name, tc.target)
	}
}

func TestSafeRelPath(t *testing.T) {
	for _, name := range []string{"a.txt", "sub/b.txt", "./c.txt", "sub/../d.txt"} {
		_, err := safeRelPath(name)
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"", "/abs/path", "..", "../escape", "a/../../escape"} {
		_, err := safeRelPath(name)
		assert.ErrorIs(t, err, ErrUnsafeEntry, name)
	}
}
