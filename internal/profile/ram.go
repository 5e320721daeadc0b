package profile

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"vramctl/internal/walk"
)

// ramHeadroom is the fit rule: the RAM copy needs the profile's size,
// and the browser keeps growing it while loaded, so require twice that
// to be available.
const ramHeadroom = 2

// RAMCheck compares the profile size against available system memory.
type RAMCheck struct {
	ProfileBytes   int64
	AvailableBytes uint64
	RequiredBytes  int64
}

// Fits reports whether the profile can safely live in RAM.
func (r RAMCheck) Fits() bool {
	return r.RequiredBytes >= 0 && uint64(r.RequiredBytes) <= r.AvailableBytes
}

// CheckRAM sizes the profile tree and reads available memory.
func (m *Manager) CheckRAM() (RAMCheck, error) {
	size, err := walk.TreeSize(m.Paths.Profile)
	if err != nil {
		return RAMCheck{}, err
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return RAMCheck{}, fmt.Errorf("read memory info: %w", err)
	}

	return RAMCheck{
		ProfileBytes:   size,
		AvailableBytes: vm.Available,
		RequiredBytes:  size * ramHeadroom,
	}, nil
}
