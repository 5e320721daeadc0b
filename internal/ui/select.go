package ui

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"vramctl/internal/catalog"
	"vramctl/internal/stats"
)

var (
	// ErrCancelled indicates the user aborted the selection before any
	// transfer began.
	ErrCancelled = errors.New("selection cancelled")

	// ErrInvalidSelection indicates an out-of-range or non-numeric choice.
	ErrInvalidSelection = errors.New("invalid selection")
)

// CancelToken aborts a non-interactive selection.
const CancelToken = "q"

// Choose resolves a selection token against entries presented
// newest-first with 1-based indices. The cancel token yields
// ErrCancelled, distinguishable from an out-of-range ErrInvalidSelection.
func Choose(entries []catalog.Entry, token string) (catalog.Entry, error) {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, CancelToken) {
		return catalog.Entry{}, ErrCancelled
	}
	idx, err := strconv.Atoi(token)
	if err != nil || idx < 1 || idx > len(entries) {
		return catalog.Entry{}, fmt.Errorf("%q (1-%d, or %q to cancel): %w",
			token, len(entries), CancelToken, ErrInvalidSelection)
	}
	return entries[idx-1], nil
}

// ChooseInteractive prompts for a backup from entries (newest-first).
func ChooseInteractive(entries []catalog.Entry) (catalog.Entry, error) {
	selector := promptui.Select{
		Label: "Select the backup to restore",
		Items: entries,
		Size:  min(len(entries), 10),
		Templates: &promptui.SelectTemplates{
			Active:   fmt.Sprintf("%s {{ .Name | cyan }}", promptui.IconSelect),
			Inactive: " {{ .Name }}",
			Details: `
{{ "Details:" | bold }}
	{{ "Name:" | bold }}	{{ .Name | cyan }}
	{{ "Created:" | bold }}	{{ .ModTime | cyan }}
`,
			Selected: "{{ .Name }}",
		},
		Stdout: os.Stderr,
	}

	index, _, err := selector.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF) {
			return catalog.Entry{}, ErrCancelled
		}
		return catalog.Entry{}, fmt.Errorf("selection prompt: %w", err)
	}
	return entries[index], nil
}

// ListBackups formats the catalog for display, newest first.
func ListBackups(entries []catalog.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "  %2d) %s  %s  %s\n",
			i+1, e.Name, stats.FormatBytes(e.Size), e.ModTime.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
