// Package report renders the final report of a run.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pipeline"
	"github.com/handiism/snap-memories/internal/planner"
)

// Write renders the input breakdown, per-action counts, every failed or
// skipped action and every skipped input to w.
func Write(w io.Writer, stats *pipeline.RunStatistics) error {
	sections := []string{
		Inputs(stats),
		Actions(stats),
	}
	if s := Problems(stats); s != "" {
		sections = append(sections, s)
	}
	if s := SkippedInputs(stats); s != "" {
		sections = append(sections, s)
	}
	sections = append(sections, Summary(stats))

	_, err := fmt.Fprintln(w, strings.Join(sections, "\n\n"))
	return err
}

// Inputs renders what the scan found.
func Inputs(stats *pipeline.RunStatistics) string {
	c := stats.Inputs
	rows := [][]string{
		{"Archives", strconv.Itoa(c.Archives)},
		{"Remote memories", strconv.Itoa(c.Remote)},
		{"Images", strconv.Itoa(c.Images)},
		{"Videos", strconv.Itoa(c.Videos)},
		{"Overlays", strconv.Itoa(c.Overlays)},
		{"Missing extension", strconv.Itoa(c.MissingExtension)},
	}
	return renderTable("Inputs", []string{"Input", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

// Actions renders outcome counts per action kind. Kinds the plan did not
// use are left out.
func Actions(stats *pipeline.RunStatistics) string {
	var rows [][]string
	for _, kind := range planner.ActionKinds {
		byStatus := stats.Counts[kind]
		ok := byStatus[model.StatusSucceeded]
		skipped := byStatus[model.StatusSkipped]
		failed := byStatus[model.StatusFailed]
		if ok+skipped+failed == 0 {
			continue
		}
		rows = append(rows, []string{kind.String(), strconv.Itoa(ok), strconv.Itoa(skipped), strconv.Itoa(failed)})
	}

	title := "Actions"
	if stats.DryRun {
		title = "Actions (dry run)"
	}
	return renderTable(title,
		[]string{"Action", "Succeeded", "Skipped", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})
}

// Problems renders every failed and skipped action, failures first.
func Problems(stats *pipeline.RunStatistics) string {
	if len(stats.Entries) == 0 {
		return ""
	}

	var failed, skipped [][]string
	for _, e := range stats.Entries {
		row := []string{
			strconv.Itoa(e.ActionID),
			e.Kind.String(),
			subject(e),
			e.Outcome.Status.String(),
			e.Outcome.Reason,
			detail(e.Outcome),
		}
		if e.Outcome.Status == model.StatusFailed {
			failed = append(failed, row)
		} else {
			skipped = append(skipped, row)
		}
	}

	return renderTable("Failed and skipped",
		[]string{"#", "Action", "Memory", "Status", "Reason", "Detail"},
		append(failed, skipped...),
		[]columnAlignment{alignRight})
}

// SkippedInputs renders the inputs left out while scanning and pairing.
func SkippedInputs(stats *pipeline.RunStatistics) string {
	if len(stats.Skipped) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(stats.Skipped))
	for _, s := range stats.Skipped {
		subject := s.Path
		if subject == "" {
			subject = s.Identity
		}
		rows = append(rows, []string{subject, s.Reason, s.Detail})
	}
	return renderTable("Skipped inputs", []string{"Input", "Reason", "Detail"}, rows, nil)
}

// Summary is a one-line overview of the run.
func Summary(stats *pipeline.RunStatistics) string {
	ok := stats.Total(model.StatusSucceeded)
	skipped := stats.Total(model.StatusSkipped)
	failed := stats.Total(model.StatusFailed)

	var b strings.Builder
	switch {
	case stats.DryRun:
		fmt.Fprintf(&b, "Dry run: %d actions planned", ok)
	case stats.Cancelled:
		fmt.Fprintf(&b, "Cancelled: %d succeeded, %d skipped, %d failed", ok, skipped, failed)
	default:
		fmt.Fprintf(&b, "Done: %d succeeded, %d skipped, %d failed", ok, skipped, failed)
	}
	if stats.BytesDownloaded > 0 {
		fmt.Fprintf(&b, ", %s downloaded", humanize.Bytes(uint64(stats.BytesDownloaded)))
	}
	if stats.Duration > 0 {
		fmt.Fprintf(&b, " in %s", stats.Duration.Round(time.Millisecond))
	}
	return b.String()
}

func subject(e pipeline.Entry) string {
	if e.Identity != "" {
		return e.Identity
	}
	return e.Path
}

func detail(o model.Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Detail
}
