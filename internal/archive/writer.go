// Package archive streams directory trees into zstd-compressed tar
// containers and back, with byte-level progress reporting.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"vramctl/internal/walk"
)

const copyChunk = 128 * 1024

// Progress is invoked after each copied chunk with cumulative bytes
// processed and the total estimated at the start of the operation.
type Progress func(done, total int64)

// WriteResult summarizes an archive creation.
type WriteResult struct {
	Entries int
	Bytes   int64
	Errors  []error // entries skipped because they could not be read
}

// Create walks srcRoot and streams every file and directory (empty
// directories included) into a compressed archive at destPath. Entry
// names are slash-separated paths relative to srcRoot. The archive is
// written to a temporary .partial file beside destPath and renamed into
// place on success, so a failed backup never leaves a corrupt file
// under its final name.
func Create(srcRoot, destPath string, progress Progress) (WriteResult, error) {
	var res WriteResult

	entries, walkRes, err := walk.Collect(srcRoot)
	if err != nil {
		return res, err
	}
	total := walkRes.Bytes
	for _, p := range walkRes.Skipped {
		res.Errors = append(res.Errors, fmt.Errorf("skipped unreadable entry %s", p))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return res, fmt.Errorf("create backup directory: %w", err)
	}

	partial := destPath + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return res, fmt.Errorf("create archive %s: %w", partial, err)
	}
	defer func() {
		f.Close()
		os.Remove(partial) // no-op once renamed
	}()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return res, fmt.Errorf("init zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	var done int64
	buf := make([]byte, copyChunk)
	for _, e := range entries {
		n, err := addEntry(tw, srcRoot, e, buf, func(chunk int64) {
			done += chunk
			if progress != nil {
				progress(done, total)
			}
		})
		if err != nil {
			if n > 0 {
				// A partially written file entry corrupts the tar
				// framing; nothing after it would be recoverable.
				return res, fmt.Errorf("write archive entry %s: %w", e.RelPath, err)
			}
			res.Errors = append(res.Errors, fmt.Errorf("skip %s: %w", e.RelPath, err))
			continue
		}
		res.Entries++
		res.Bytes += n
	}

	if err := tw.Close(); err != nil {
		return res, fmt.Errorf("finalize tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("finalize zstd stream: %w", err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(partial, destPath); err != nil {
		return res, fmt.Errorf("rename archive into place: %w", err)
	}
	return res, nil
}

// addEntry writes one walk entry into the tar stream. Directories become
// explicit zero-length entries so they survive a restore; symlinks are
// recorded by target, never followed. Returns the number of content
// bytes written; a non-zero count with an error means the tar framing is
// broken.
func addEntry(tw *tar.Writer, srcRoot string, e walk.Entry, buf []byte, chunkDone func(int64)) (int64, error) {
	name := filepath.ToSlash(e.RelPath)

	if e.IsDir {
		hdr := &tar.Header{
			Name:     name + "/",
			Typeflag: tar.TypeDir,
			Mode:     int64(e.Mode.Perm()),
			ModTime:  e.ModTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if e.LinkTarget != "" {
		hdr := &tar.Header{
			Name:     name,
			Typeflag: tar.TypeSymlink,
			Linkname: filepath.ToSlash(e.LinkTarget),
			Mode:     int64(e.Mode.Perm()),
			ModTime:  e.ModTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, err
		}
		return 0, nil
	}

	src, err := os.Open(filepath.Join(srcRoot, e.RelPath))
	if err != nil {
		return 0, err
	}
	defer src.Close()

	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Size:     e.Size,
		Mode:     int64(e.Mode.Perm()),
		ModTime:  e.ModTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}

	// Bounded chunks: large profile files must not be loaded whole.
	var written int64
	for written < e.Size {
		want := int64(len(buf))
		if remaining := e.Size - written; remaining < want {
			want = remaining
		}
		n, rerr := io.ReadFull(src, buf[:want])
		if n > 0 {
			if _, werr := tw.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			chunkDone(int64(n))
		}
		if rerr != nil {
			return written, fmt.Errorf("read source (changed during backup?): %w", rerr)
		}
	}
	return written, nil
}
