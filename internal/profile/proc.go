package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// commLen is the kernel's TASK_COMM_LEN minus the NUL: /proc/<pid>/comm
// truncates process names to 15 bytes.
const commLen = 15

// processRunning reports whether any process has exactly the given comm
// name, like pgrep -x.
func processRunning(name string) bool {
	if len(name) > commLen {
		name = name[:commLen]
	}

	procs, err := os.ReadDir("/proc")
	if err != nil {
		return false
	}
	for _, de := range procs {
		if _, err := strconv.Atoi(de.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", de.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == name {
			return true
		}
	}
	return false
}
