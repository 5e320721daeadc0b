package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCorrupt indicates the container could not be decoded.
	ErrCorrupt = errors.New("archive corrupt")

	// ErrUnsafeEntry indicates an entry whose path would escape the
	// destination root. Such entries are rejected, never written.
	ErrUnsafeEntry = errors.New("unsafe archive entry path")
)

// ReadResult summarizes an extraction. A non-empty Errors slice with a
// nil error return means the restore was partial: the remaining entries
// were extracted.
type ReadResult struct {
	Entries int
	Bytes   int64
	Errors  []error
}

// Extract unpacks the archive at archivePath into destRoot, overwriting
// existing files at the same relative paths. Directory entries (trailing
// slash) are created along with any missing parents. Entries whose path
// would escape destRoot are rejected with ErrUnsafeEntry; failures on
// individual entries are collected and extraction continues.
func Extract(archivePath, destRoot string, progress Progress) (ReadResult, error) {
	var res ReadResult

	total, err := uncompressedSize(archivePath)
	if err != nil {
		return res, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return res, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return res, fmt.Errorf("%s: %v: %w", archivePath, err, ErrCorrupt)
	}
	defer zr.Close()

	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return res, fmt.Errorf("create destination root: %w", err)
	}

	var done int64
	buf := make([]byte, copyChunk)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("%s: %v: %w", archivePath, err, ErrCorrupt)
		}

		rel, err := safeRelPath(hdr.Name)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		dest := filepath.Join(destRoot, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(hdr.Mode).Perm()); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("create dir %s: %w", rel, err))
				continue
			}
			res.Entries++

		case tar.TypeReg:
			n, err := extractFile(tr, dest, hdr, buf, func(chunk int64) {
				done += chunk
				if progress != nil {
					progress(done, total)
				}
			})
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("extract %s: %w", rel, err))
				continue
			}
			res.Entries++
			res.Bytes += n

		case tar.TypeSymlink:
			if err := safeLinkTarget(hdr.Name, hdr.Linkname); err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("create dir for %s: %w", rel, err))
				continue
			}
			if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
				res.Errors = append(res.Errors, fmt.Errorf("replace %s: %w", rel, err))
				continue
			}
			if err := os.Symlink(filepath.FromSlash(hdr.Linkname), dest); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("symlink %s: %w", rel, err))
				continue
			}
			res.Entries++

		default:
			// Hard link and device entries are not produced by our
			// writer; a foreign archive's are ignored.
		}
	}

	return res, nil
}

// uncompressedSize enumerates all headers to sum entry sizes for the
// progress denominator. The archive is decoded twice; sizing first keeps
// the fraction meaningful from the first extracted chunk.
func uncompressedSize(archivePath string) (int64, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %v: %w", archivePath, err, ErrCorrupt)
	}
	defer zr.Close()

	var total int64
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %v: %w", archivePath, err, ErrCorrupt)
		}
		if hdr.Typeflag == tar.TypeReg {
			total += hdr.Size
		}
	}
}

func extractFile(tr *tar.Reader, dest string, hdr *tar.Header, buf []byte, chunkDone func(int64)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return 0, err
	}

	var written int64
	for {
		n, rerr := tr.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return written, werr
			}
			written += int64(n)
			chunkDone(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return written, rerr
		}
	}

	if err := out.Close(); err != nil {
		return written, err
	}
	// Restore mtime so a subsequent mirror pass sees the file as the
	// archive recorded it.
	_ = os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
	return written, nil
}

// safeLinkTarget rejects symlink targets that point outside the
// destination root: absolute targets, and relative targets whose join
// with the entry's directory escapes it. Everything written under the
// root then stays under the root, even through extracted symlinks.
func safeLinkTarget(name, target string) error {
	clean := path.Clean(filepath.ToSlash(target))
	if target == "" || path.IsAbs(clean) {
		return fmt.Errorf("%q -> %q: %w", name, target, ErrUnsafeEntry)
	}
	joined := path.Join(path.Dir(path.Clean(name)), clean)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return fmt.Errorf("%q -> %q: %w", name, target, ErrUnsafeEntry)
	}
	return nil
}

// safeRelPath validates an archive entry name and converts it to a
// host-native relative path. Absolute names and names escaping the
// destination via parent traversal are rejected.
func safeRelPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty name: %w", ErrUnsafeEntry)
	}
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeEntry)
	}
	if clean == "." {
		return "", fmt.Errorf("%q: not a file entry: %w", name, ErrUnsafeEntry)
	}
	return filepath.FromSlash(clean), nil
}
