// Package catalog enumerates the archive files in a backup directory
// and applies retention policy to them.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrEmpty indicates an operation that needs at least one backup was
// invoked against an empty catalog.
var ErrEmpty = errors.New("no backups found")

// Entry describes one archive file in the backup directory.
type Entry struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// Catalog reads the set of backups in Dir matching Ext.
type Catalog struct {
	Dir string
	Ext string
}

// Entries lists the archive files in the backup directory. Files not
// matching the extension are ignored. A missing backup directory yields
// an empty catalog, not an error.
func (c Catalog) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory %s: %w", c.Dir, err)
	}

	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), c.Ext) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(c.Dir, de.Name()),
			Name:    de.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return entries, nil
}

// Latest returns the entry with the greatest modification time; ties go
// to the lexicographically greatest filename, which is deterministic
// because timestamps are embedded in the names.
func (c Catalog) Latest() (Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%s: %w", c.Dir, ErrEmpty)
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if newer(e, best) {
			best = e
		}
	}
	return best, nil
}

// Sorted returns the catalog newest-first, the stable order used for
// interactive selection.
func (c Catalog) Sorted() ([]Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return newer(entries[i], entries[j])
	})
	return entries, nil
}

func newer(a, b Entry) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.Name > b.Name
}
