package ui

import (
	"vramctl/internal/event"
	"vramctl/internal/stats"
)

// quietPresenter drains events without output.
type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string { return "" }
