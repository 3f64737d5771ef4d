package planner

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Describe returns a one-line, human-readable description of action i.
// Dry runs print exactly these lines.
func (p *Plan) Describe(i int) string {
	a := p.Actions[i]
	switch a.Kind {
	case ActionDownload:
		return fmt.Sprintf("download %s from %s -> %s.*", a.Identity, a.URL, p.rel(a.Output))
	case ActionExtractArchive:
		return fmt.Sprintf("extract %s -> %s/", p.rel(a.Main.Path), p.rel(a.Output))
	case ActionRenameMissingExtension:
		if a.KeepInput {
			return fmt.Sprintf("rename copy of %s -> %s", p.rel(a.Main.Path), p.rel(a.Output))
		}
		return fmt.Sprintf("rename %s -> %s", p.rel(a.Main.Path), filepath.Base(a.Output))
	case ActionCombineImage:
		if a.Deferred {
			return fmt.Sprintf("combine image %s from %s/ -> %s_combined.jpg (copy to %s.* if no overlay)",
				a.Identity, p.rel(a.Main.Path), p.rel(a.Output), p.rel(a.Output))
		}
		return fmt.Sprintf("combine image %s + %s -> %s",
			p.rel(a.Main.Path), p.rel(a.Overlay.Path), p.rel(a.Output))
	case ActionCombineVideo:
		encoders := strings.Join(encoderNames(a), " > ")
		if a.Deferred {
			return fmt.Sprintf("combine video %s from %s/ -> %s_combined.mp4 (copy to %s.* if no overlay) [%s]",
				a.Identity, p.rel(a.Main.Path), p.rel(a.Output), p.rel(a.Output), encoders)
		}
		return fmt.Sprintf("combine video %s + %s -> %s [%s]",
			p.rel(a.Main.Path), p.rel(a.Overlay.Path), p.rel(a.Output), encoders)
	case ActionCopyThrough:
		return fmt.Sprintf("copy %s -> %s", p.rel(a.Main.Path), p.rel(a.Output))
	case ActionApplyMetadata:
		return fmt.Sprintf("apply metadata to %s (%s)", p.rel(a.Main.Path), describeRecord(a))
	case ActionCleanup:
		var targets []string
		for _, t := range a.Targets {
			targets = append(targets, p.rel(t.Path))
		}
		return fmt.Sprintf("cleanup %s", strings.Join(targets, ", "))
	}
	return a.Kind.String()
}

// Render writes the full plan, one action per line, followed by the inputs
// that were skipped.
func (p *Plan) Render(w io.Writer) error {
	for i, a := range p.Actions {
		line := fmt.Sprintf("%4d  %-9s %s", a.ID, a.Stage(), p.Describe(i))
		if len(a.DependsOn) > 0 {
			line += fmt.Sprintf("  (after %s)", joinInts(a.DependsOn))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	for _, s := range p.Skipped {
		subject := s.Path
		if subject == "" {
			subject = s.Identity
		}
		if _, err := fmt.Fprintf(w, "   -  skip      %s: %s\n", subject, s.Reason); err != nil {
			return err
		}
	}
	return nil
}

func describeRecord(a *Action) string {
	if a.Record == nil {
		return "no record"
	}
	s := a.Record.CapturedAt.UTC().Format(time.RFC3339)
	if loc := a.Record.Location; loc != nil {
		s += fmt.Sprintf(", %.5f,%.5f", loc.Latitude, loc.Longitude)
	}
	return s
}

func encoderNames(a *Action) []string {
	var names []string
	for _, enc := range a.Capabilities.Strategies() {
		names = append(names, enc.Name)
	}
	return names
}

// rel shortens paths below the output directory for display.
func (p *Plan) rel(path string) string {
	if p.OutputDir == "" || path == "" {
		return path
	}
	if r, err := filepath.Rel(p.OutputDir, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
