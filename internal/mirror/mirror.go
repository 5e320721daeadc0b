// Package mirror implements one-way directory synchronization: after
// Mirror(src, dst) the destination tree is an exact copy of the source,
// symlinks included, extraneous destination entries included (they are
// deleted).
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"vramctl/internal/event"
	"vramctl/internal/stats"
	"vramctl/internal/walk"
)

// mtimes within this window count as equal. Filesystems with coarse
// timestamp granularity (FAT, some network mounts) round mtimes.
const mtimeTolerance = 2 * time.Second

// Options controls a mirror pass.
type Options struct {
	// Checksum compares BLAKE3 digests instead of mtime+size. Slower,
	// but catches same-size same-mtime content changes (e.g. after a
	// restore, when mtimes are untrustworthy).
	Checksum bool
	Events   chan<- event.Event
	Stats    *stats.Collector
}

// Result is the outcome of a mirror pass. Per-file errors are collected
// here; only a destination-unusable condition aborts the pass.
type Result struct {
	FilesCopied  int
	FilesSkipped int
	FilesDeleted int
	DirsCreated  int
	BytesCopied  int64
	Errors       []error
}

// Mirror makes dst an exact copy of src. The byte estimate for progress
// is taken once before any copying begins and is not recalculated, so a
// concurrently mutating source can over- or under-report (best-effort).
// A second Mirror over an unchanged tree copies zero files.
func Mirror(ctx context.Context, src, dst string, opts Options) (Result, error) {
	var res Result

	entries, walkRes, err := walk.Collect(src)
	if err != nil {
		return res, err
	}
	for _, p := range walkRes.Skipped {
		res.Errors = append(res.Errors, fmt.Errorf("skipped unreadable entry %s", p))
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return res, fmt.Errorf("create destination %s: %w", dst, err)
	}

	if opts.Stats != nil {
		opts.Stats.SetTotals(walkRes.Files, walkRes.Bytes)
	}
	event.Emit(opts.Events, event.Event{
		Type:      event.ScanComplete,
		Total:     walkRes.Files,
		TotalSize: walkRes.Bytes,
	})

	srcSet := make(map[string]bool, len(entries))
	for _, e := range entries {
		srcSet[e.RelPath] = true
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		dstPath := filepath.Join(dst, e.RelPath)

		if e.IsDir {
			if err := os.MkdirAll(dstPath, e.Mode.Perm()); err != nil {
				return res, fmt.Errorf("create directory %s: %w", dstPath, err)
			}
			res.DirsCreated++
			if opts.Stats != nil {
				opts.Stats.AddDirsCreated(1)
			}
			event.Emit(opts.Events, event.Event{Type: event.DirCreated, Path: e.RelPath})
			continue
		}

		if e.LinkTarget != "" {
			copied, err := copySymlink(dstPath, e.LinkTarget)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("symlink %s: %w", e.RelPath, err))
				if opts.Stats != nil {
					opts.Stats.AddFilesFailed(1)
				}
				event.Emit(opts.Events, event.Event{Type: event.FileFailed, Path: e.RelPath, Error: err})
				continue
			}
			if copied {
				res.FilesCopied++
				if opts.Stats != nil {
					opts.Stats.AddFilesCopied(1)
				}
				event.Emit(opts.Events, event.Event{Type: event.FileCopied, Path: e.RelPath})
			} else {
				res.FilesSkipped++
				if opts.Stats != nil {
					opts.Stats.AddFilesSkipped(1)
				}
				event.Emit(opts.Events, event.Event{Type: event.FileSkipped, Path: e.RelPath})
			}
			continue
		}

		srcPath := filepath.Join(src, e.RelPath)
		same, err := unchanged(srcPath, dstPath, e.Size, e.ModTime, opts.Checksum)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("compare %s: %w", e.RelPath, err))
			continue
		}
		if same {
			res.FilesSkipped++
			if opts.Stats != nil {
				opts.Stats.AddFilesSkipped(1)
				opts.Stats.AddBytesDone(e.Size)
			}
			event.Emit(opts.Events, event.Event{Type: event.FileSkipped, Path: e.RelPath, Size: e.Size})
			continue
		}

		n, err := copyFile(srcPath, dstPath, e.Mode, e.ModTime, opts.Stats)
		if err != nil {
			if destUnusable(err) {
				res.Errors = append(res.Errors, err)
				return res, fmt.Errorf("destination unusable, aborting: %w", err)
			}
			res.Errors = append(res.Errors, fmt.Errorf("copy %s: %w", e.RelPath, err))
			if opts.Stats != nil {
				opts.Stats.AddFilesFailed(1)
			}
			event.Emit(opts.Events, event.Event{Type: event.FileFailed, Path: e.RelPath, Error: err})
			continue
		}

		res.FilesCopied++
		res.BytesCopied += n
		if opts.Stats != nil {
			opts.Stats.AddFilesCopied(1)
		}
		event.Emit(opts.Events, event.Event{Type: event.FileCopied, Path: e.RelPath, Size: n})
	}

	deleted, skipped, err := deleteExtraneous(ctx, src, dst, srcSet, opts)
	res.FilesDeleted = deleted
	for _, p := range skipped {
		res.Errors = append(res.Errors, fmt.Errorf("skipped unreadable entry %s", p))
	}
	if err != nil {
		return res, err
	}

	return res, nil
}

// copySymlink recreates a symlink with the given target at dstPath,
// replacing whatever is there. Reports false when an identical symlink
// already exists, keeping the no-change pass a no-op.
func copySymlink(dstPath, target string) (bool, error) {
	if existing, err := os.Readlink(dstPath); err == nil && existing == target {
		return false, nil
	}
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if err := os.Symlink(target, dstPath); err != nil {
		return false, err
	}
	return true, nil
}

// unchanged reports whether the destination already matches the source
// entry. Default test is size plus mtime within tolerance; checksum mode
// requires equal sizes and equal BLAKE3 digests.
func unchanged(srcPath, dstPath string, size int64, modTime time.Time, checksum bool) (bool, error) {
	info, err := os.Lstat(dstPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() != size {
		return false, nil
	}

	if checksum {
		srcSum, err := HashFile(srcPath)
		if err != nil {
			return false, err
		}
		dstSum, err := HashFile(dstPath)
		if err != nil {
			return false, err
		}
		return srcSum == dstSum, nil
	}

	diff := info.ModTime().Sub(modTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= mtimeTolerance, nil
}

// deleteExtraneous removes destination entries with no source
// counterpart: files and symlinks first, then directories deepest-first.
// Destination entries the walker could not read are returned so the
// caller can surface them.
func deleteExtraneous(ctx context.Context, src, dst string, srcSet map[string]bool, opts Options) (int, []string, error) {
	var files, dirs []string
	walkRes, err := walk.Walk(dst, func(e walk.Entry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if srcSet[e.RelPath] {
			return nil
		}
		if e.IsDir {
			dirs = append(dirs, e.RelPath)
		} else {
			files = append(files, e.RelPath)
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("walk destination for delete: %w", err)
	}

	deleted := 0
	for _, relPath := range files {
		if err := os.Remove(filepath.Join(dst, relPath)); err != nil && !os.IsNotExist(err) {
			return deleted, walkRes.Skipped, fmt.Errorf("delete %s: %w", relPath, err)
		}
		deleted++
		if opts.Stats != nil {
			opts.Stats.AddFilesDeleted(1)
		}
		event.Emit(opts.Events, event.Event{Type: event.FileDeleted, Path: relPath})
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, relPath := range dirs {
		if err := os.RemoveAll(filepath.Join(dst, relPath)); err != nil && !os.IsNotExist(err) {
			return deleted, walkRes.Skipped, fmt.Errorf("delete dir %s: %w", relPath, err)
		}
		deleted++
		if opts.Stats != nil {
			opts.Stats.AddFilesDeleted(1)
		}
		event.Emit(opts.Events, event.Event{Type: event.FileDeleted, Path: relPath})
	}

	return deleted, walkRes.Skipped, nil
}

// destUnusable reports whether err indicates the destination as a whole
// cannot accept writes, as opposed to a single-file failure.
func destUnusable(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, syscall.EDQUOT)
}
