package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/handiism/snap-memories/internal/pipeline"
)

// progressPrinter shows executor events. On a terminal a real run gets a
// progress bar; otherwise, and for dry runs, events are printed one per
// line. handle is never called concurrently.
type progressPrinter struct {
	out     io.Writer
	verbose bool
	useBar  bool
	bar     *progressbar.ProgressBar
}

func newProgressPrinter(out io.Writer, verbose, dryRun bool) *progressPrinter {
	return &progressPrinter{
		out:     out,
		verbose: verbose,
		useBar:  !dryRun && !verbose && isTerminal(out),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *progressPrinter) handle(e pipeline.Event) {
	if p.useBar {
		p.advance(e)
		return
	}

	if e.Level == pipeline.LevelVerbose && !p.verbose {
		return
	}
	if e.Type == pipeline.EventSettled && e.Level == pipeline.LevelSuccess && !p.verbose {
		return
	}
	fmt.Fprintln(p.out, prefix(e.Level)+e.Message)
}

func (p *progressPrinter) advance(e pipeline.Event) {
	switch e.Type {
	case pipeline.EventSettled:
		p.ensureBar(e.Total)
		p.bar.Describe(fmt.Sprintf("%-9s", e.Stage))
		_ = p.bar.Set(e.Settled)
	case pipeline.EventProgress:
		p.ensureBar(e.Total)
		p.bar.Describe(fmt.Sprintf("%-9s %s", e.Stage, e.Message))
	}
}

func (p *progressPrinter) ensureBar(total int) {
	if p.bar != nil {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// finish removes the progress bar before the report is printed.
func (p *progressPrinter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func prefix(level pipeline.ProgressLevel) string {
	switch level {
	case pipeline.LevelError:
		return "✗ "
	case pipeline.LevelWarning:
		return "! "
	case pipeline.LevelSuccess:
		return "✓ "
	case pipeline.LevelInfo:
		return "› "
	default:
		return "  "
	}
}
