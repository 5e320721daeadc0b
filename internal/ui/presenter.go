// Package ui renders operation progress and handles the interactive
// backup selection.
package ui

import (
	"io"

	"vramctl/internal/event"
	"vramctl/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Quiet     bool
	Verbose   bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory picks the implementation
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	return &plainPresenter{
		w:       cfg.Writer,
		errW:    cfg.ErrWriter,
		stats:   cfg.Stats,
		verbose: cfg.Verbose,
	}
}
