package catalog

import (
	"errors"
	"fmt"
	"os"
)

// KeepLatest deletes every catalog entry except the newest and returns
// the number deleted. A catalog with zero or one entries is left alone.
func (c Catalog) KeepLatest() (int, error) {
	latest, err := c.Latest()
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return 0, nil
		}
		return 0, err
	}

	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, e := range entries {
		if e.Path == latest.Path {
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			return deleted, fmt.Errorf("delete backup %s: %w", e.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

// PurgeAll deletes every catalog entry and returns the number deleted.
// Destructive: the caller is responsible for confirming first.
func (c Catalog) PurgeAll() (int, error) {
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil {
			return deleted, fmt.Errorf("delete backup %s: %w", e.Name, err)
		}
		deleted++
	}
	return deleted, nil
}
