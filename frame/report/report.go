// Package report renders allocator statistics, recovery reports and
// directory snapshots as text or JSON.
package report

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/framekit/frame"
)

// Format specifies the output format.
type Format string

const (
	// FormatText outputs aligned, human-readable text.
	FormatText Format = "text"

	// FormatJSON outputs indented JSON.
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" and "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("report: unknown format %q", s)
}

// Options controls rendering.
type Options struct {
	// Format selects text or JSON output.
	// Default: FormatText
	Format Format

	// Language selects digit grouping and percent style of text output.
	// Default: English
	Language language.Tag

	// AllSubtrees lists every subtree in snapshot text output. Otherwise
	// subtrees on the empty list are folded into one line.
	AllSubtrees bool
}

// DefaultOptions returns text output in English.
func DefaultOptions() Options {
	return Options{Format: FormatText, Language: language.English}
}

// Printer writes reports to a writer.
type Printer struct {
	opts Options
	w    io.Writer
	p    *message.Printer
}

// New creates a printer writing to w.
func New(w io.Writer, opts Options) *Printer {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.Language == language.Und {
		opts.Language = language.English
	}
	return &Printer{opts: opts, w: w, p: message.NewPrinter(opts.Language)}
}

// Stats prints allocator statistics.
func (p *Printer) Stats(s frame.Stats) error {
	if p.opts.Format == FormatJSON {
		return p.writeJSON(s)
	}
	return p.statsText(s)
}

// Recovery prints how an allocator was initialized.
func (p *Printer) Recovery(r frame.RecoveryReport) error {
	if p.opts.Format == FormatJSON {
		return p.writeJSON(recoveryJSON(r))
	}
	return p.recoveryText(r)
}

// Snapshot prints the subtree directory and list membership.
func (p *Printer) Snapshot(s frame.Snapshot) error {
	if p.opts.Format == FormatJSON {
		return p.writeJSON(snapshotJSON(s))
	}
	return p.snapshotText(s)
}
