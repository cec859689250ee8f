package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/hyperjump/yomu/internal/models"
)

// DefaultProgressEnabled reports whether stderr is a terminal.
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// IngestProgress renders pipeline progress events for one file at a time as a
// 0-100 bar. When disabled it prints one line per finished file instead.
type IngestProgress struct {
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
	name    string
}

// NewIngestProgress writes to w; pass DefaultProgressEnabled() for enabled.
func NewIngestProgress(w io.Writer, enabled bool) *IngestProgress {
	return &IngestProgress{w: w, enabled: enabled}
}

// Start begins a bar for fileName.
func (p *IngestProgress) Start(fileName string) {
	p.name = fileName
	if !p.enabled {
		return
	}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(Truncate(fileName, 32)),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Update moves the bar to ev.Progress. It is safe to pass as a models.ProgressFunc.
func (p *IngestProgress) Update(ev models.ProgressEvent) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(fmt.Sprintf("%s: %s", Truncate(p.name, 32), ev.Stage))
	_ = p.bar.Set(ev.Progress)
}

// Finish closes the bar and prints the outcome.
func (p *IngestProgress) Finish(err error) {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	if err != nil {
		fmt.Fprintf(p.w, "✗ %s: %v\n", p.name, err)
		return
	}
	fmt.Fprintf(p.w, "✓ %s\n", p.name)
}
