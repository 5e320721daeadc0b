// Package mount manages the bind-mount relationship between the RAM
// copy of the profile and its persistent path.
package mount

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotMounted indicates an unmount was requested for a path that
	// is not currently a mount point.
	ErrNotMounted = errors.New("not a mount point")

	// ErrBusy indicates the mount point has open file handles. The
	// caller must resolve this externally (close the consuming process).
	ErrBusy = errors.New("mount point busy")

	// ErrMountFailed wraps mount(2) failures other than permission.
	ErrMountFailed = errors.New("mount failed")
)

// IsMounted reports whether path is currently a mount point. Any mount
// at that path counts, not just our bind mount.
func IsMounted(path string) (bool, error) {
	points, err := mountPoints(procMountinfo)
	if err != nil {
		return false, err
	}
	target, err := canonical(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, p := range points {
		if p == target {
			return true, nil
		}
	}
	return false, nil
}

// Bind mounts ramPath over persistentPath. Requires elevated privilege;
// on failure the mount table is left unchanged.
func Bind(ramPath, persistentPath string) error {
	if err := unix.Mount(ramPath, persistentPath, "", unix.MS_BIND, ""); err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return fmt.Errorf("bind %s over %s: %w", ramPath, persistentPath, os.ErrPermission)
		}
		return fmt.Errorf("bind %s over %s: %v: %w", ramPath, persistentPath, err, ErrMountFailed)
	}
	return nil
}

// Unbind removes the mount at persistentPath.
func Unbind(persistentPath string) error {
	mounted, err := IsMounted(persistentPath)
	if err != nil {
		return err
	}
	if !mounted {
		return fmt.Errorf("%s: %w", persistentPath, ErrNotMounted)
	}
	if err := unix.Unmount(persistentPath, 0); err != nil {
		switch {
		case errors.Is(err, unix.EBUSY):
			return fmt.Errorf("unmount %s: %w", persistentPath, ErrBusy)
		case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
			return fmt.Errorf("unmount %s: %w", persistentPath, os.ErrPermission)
		default:
			return fmt.Errorf("unmount %s: %w", persistentPath, err)
		}
	}
	return nil
}
