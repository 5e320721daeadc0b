package ui

import (
	"fmt"
	"io"
	"time"

	"vramctl/internal/event"
	"vramctl/internal/stats"
)

// plainPresenter prints periodic progress lines to stderr and, in
// verbose mode, one line per touched file to stdout.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	verbose bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.errW, "%s: %s\n", ev.Path, errMsg)
	case event.FileCopied:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, stats.FormatBytes(ev.Size))
		}
	case event.FileSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  unchanged\n", ev.Path)
		}
	case event.FileDeleted:
		if p.verbose {
			fmt.Fprintf(p.w, "delete: %s\n", ev.Path)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal <= 0 {
		return
	}
	fmt.Fprintf(p.errW, "progress: %3.0f%%  %s / %s\n",
		p.stats.Fraction()*100,
		stats.FormatBytes(snap.BytesDone),
		stats.FormatBytes(snap.BytesTotal),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// CompletionSummary formats the end-of-operation line.
func CompletionSummary(s stats.Snapshot) string {
	line := fmt.Sprintf("%d files (%s) in %s",
		s.FilesCopied, stats.FormatBytes(s.BytesDone), s.Elapsed.Round(time.Millisecond))
	if s.FilesSkipped > 0 {
		line += fmt.Sprintf(", %d unchanged", s.FilesSkipped)
	}
	if s.FilesDeleted > 0 {
		line += fmt.Sprintf(", %d deleted", s.FilesDeleted)
	}
	if s.FilesFailed > 0 {
		line += fmt.Sprintf(", %d FAILED", s.FilesFailed)
	}
	return line
}
