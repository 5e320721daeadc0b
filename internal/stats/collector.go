package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks operation statistics using lock-free atomic counters.
// The operation goroutine writes, the presenter goroutine reads.
type Collector struct {
	filesCopied  atomic.Int64
	filesSkipped atomic.Int64
	filesFailed  atomic.Int64
	filesDeleted atomic.Int64
	dirsCreated  atomic.Int64
	bytesDone    atomic.Int64
	bytesTotal   atomic.Int64
	filesTotal   atomic.Int64
	startTime    time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records the upfront size estimate. Called once, before any
// bytes move; the estimate is never recalculated mid-run.
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

func (c *Collector) AddFilesCopied(n int64)  { c.filesCopied.Add(n) }
func (c *Collector) AddFilesSkipped(n int64) { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)  { c.filesFailed.Add(n) }
func (c *Collector) AddFilesDeleted(n int64) { c.filesDeleted.Add(n) }
func (c *Collector) AddDirsCreated(n int64)  { c.dirsCreated.Add(n) }
func (c *Collector) AddBytesDone(n int64)    { c.bytesDone.Add(n) }

// Fraction returns progress in [0,1]: bytes processed over the estimate
// taken at start. Clamped, so a source that grew mid-run reports 1.0 at
// most (best-effort, per the once-only estimate).
func (c *Collector) Fraction() float64 {
	total := c.bytesTotal.Load()
	if total <= 0 {
		return 0
	}
	f := float64(c.bytesDone.Load()) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesCopied  int64
	FilesSkipped int64
	FilesFailed  int64
	FilesDeleted int64
	DirsCreated  int64
	BytesDone    int64
	BytesTotal   int64
	FilesTotal   int64
	Elapsed      time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesCopied:  c.filesCopied.Load(),
		FilesSkipped: c.filesSkipped.Load(),
		FilesFailed:  c.filesFailed.Load(),
		FilesDeleted: c.filesDeleted.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		BytesDone:    c.bytesDone.Load(),
		BytesTotal:   c.bytesTotal.Load(),
		FilesTotal:   c.filesTotal.Load(),
		Elapsed:      time.Since(c.startTime),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"copied=%d skipped=%d failed=%d deleted=%d dirs=%d bytes=%d",
		s.FilesCopied, s.FilesSkipped, s.FilesFailed, s.FilesDeleted,
		s.DirsCreated, s.BytesDone,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
