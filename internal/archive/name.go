package archive

import (
	"fmt"
	"time"
)

// Ext is the archive container extension: a tar stream inside zstd.
const Ext = ".tar.zst"

// timeLayout sorts lexicographically and has one-second granularity, so
// archive filenames are unique under normal use.
const timeLayout = "2006-01-02_15-04-05"

// Filename returns the timestamped archive name for a backup taken at t.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", prefix, t.Format(timeLayout), Ext)
}
