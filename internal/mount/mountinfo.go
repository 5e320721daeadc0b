package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const procMountinfo = "/proc/self/mountinfo"

// mountPoints parses the kernel mountinfo table and returns all mount
// point paths. Line format (proc(5)):
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw
//
// where field 5 is the mount point, with spaces and control characters
// octal-escaped.
func mountPoints(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var points []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		points = append(points, unescapeOctal(fields[4]))
	}
	return points, nil
}

// unescapeOctal reverses the kernel's \ooo escaping of whitespace in
// mountinfo paths (e.g. \040 for space).
func unescapeOctal(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// canonical resolves path to the absolute, symlink-free form the kernel
// reports in mountinfo.
func canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}
