// Package walk enumerates directory trees in a deterministic order.
//
// Both the mirror engine and the archive writer traverse via this package
// so that the two agree on entry order and on the upfront size estimate.
package walk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound indicates the requested root directory does not exist.
var ErrNotFound = errors.New("directory not found")

// Entry describes one file, directory or symlink relative to the walk
// root.
type Entry struct {
	RelPath string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
	// LinkTarget is the symlink destination; empty for files and dirs.
	LinkTarget string
}

// Result summarizes a completed walk.
type Result struct {
	Files   int64
	Dirs    int64
	Links   int64
	Bytes   int64
	Skipped []string // paths that could not be stat'd or read
}

// Walk traverses root depth-first, calling fn for every file, directory
// and symlink below it, empty directories included. Symlinks are
// yielded with their target and never followed. Entries within a
// directory are visited in lexicographic order (os.ReadDir sorts), so
// two walks of an unchanged tree produce the same sequence. Entries
// that cannot be stat'd, and non-regular entries like sockets or fifos,
// are skipped and recorded in Result.Skipped rather than aborting the
// walk. A non-nil error from fn stops the walk.
func Walk(root string, fn func(Entry) error) (Result, error) {
	var res Result

	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return res, fmt.Errorf("%s: %w", root, ErrNotFound)
		}
		return res, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%s: not a directory", root)
	}

	err = walkDir(root, root, &res, fn)
	return res, err
}

func walkDir(root, dir string, res *Result, fn func(Entry) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		res.Skipped = append(res.Skipped, dir)
		return nil
	}

	for _, de := range entries {
		path := filepath.Join(dir, de.Name())

		info, err := de.Info()
		if err != nil {
			res.Skipped = append(res.Skipped, path)
			continue
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			res.Skipped = append(res.Skipped, path)
			continue
		}

		switch {
		case info.IsDir():
			res.Dirs++
			if err := fn(Entry{
				RelPath: relPath,
				Mode:    info.Mode(),
				ModTime: info.ModTime(),
				IsDir:   true,
			}); err != nil {
				return err
			}
			if err := walkDir(root, path, res, fn); err != nil {
				return err
			}

		case info.Mode().IsRegular():
			res.Files++
			res.Bytes += info.Size()
			if err := fn(Entry{
				RelPath: relPath,
				Size:    info.Size(),
				Mode:    info.Mode(),
				ModTime: info.ModTime(),
			}); err != nil {
				return err
			}

		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				res.Skipped = append(res.Skipped, path)
				continue
			}
			res.Links++
			if err := fn(Entry{
				RelPath:    relPath,
				Mode:       info.Mode(),
				ModTime:    info.ModTime(),
				LinkTarget: target,
			}); err != nil {
				return err
			}

		default:
			// Sockets, fifos, devices: not part of the profile data
			// model. Recorded so callers can surface a warning.
			res.Skipped = append(res.Skipped, path)
		}
	}
	return nil
}

// TreeSize returns the total size in bytes of all regular files under root.
func TreeSize(root string) (int64, error) {
	res, err := Walk(root, func(Entry) error { return nil })
	if err != nil {
		return 0, err
	}
	return res.Bytes, nil
}

// Collect walks root and returns all entries in traversal order.
func Collect(root string) ([]Entry, Result, error) {
	var entries []Entry
	res, err := Walk(root, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, res, err
}
