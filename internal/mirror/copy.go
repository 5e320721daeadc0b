package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"vramctl/internal/stats"
)

const copyChunk = 128 * 1024

// copyFile streams srcPath into dstPath through a temp file in the same
// directory, renamed into place on success so readers never observe a
// half-written file. Mode and mtime are carried over; mtime must match
// the source or the next mirror pass would recopy the file.
func copyFile(srcPath, dstPath string, mode fs.FileMode, modTime time.Time, st *stats.Collector) (int64, error) {
	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmpName := fmt.Sprintf(".%s.%s.vramctl-tmp", filepath.Base(dstPath), uuid.New().String()[:8])
	tmpPath := filepath.Join(dir, tmpName)
	defer os.Remove(tmpPath) // no-op if rename succeeded

	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	var total int64
	buf := make([]byte, copyChunk)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return total, fmt.Errorf("write %s: %w", tmpPath, werr)
			}
			total += int64(n)
			if st != nil {
				st.AddBytesDone(int64(n))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return total, fmt.Errorf("read %s: %w", srcPath, rerr)
		}
	}

	if err := setTimes(tmp, modTime); err != nil {
		tmp.Close()
		return total, fmt.Errorf("set mtime %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return total, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return total, fmt.Errorf("rename %s -> %s: %w", tmpPath, dstPath, err)
	}
	return total, nil
}

func setTimes(f *os.File, modTime time.Time) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(modTime.UnixNano()), // atime: mirror has no use for the original
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(int(f.Fd()), "", times, unix.AT_EMPTY_PATH); err != nil {
		// Fallback: some systems don't support AT_EMPTY_PATH.
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), times, 0); err2 != nil {
			return err
		}
	}
	return nil
}
