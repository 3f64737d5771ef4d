package pipeline

import (
	"sync"
	"time"

	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/planner"
	"github.com/handiism/snap-memories/internal/scan"
)

// Entry is a failed or skipped action, listed in the final report.
type Entry struct {
	ActionID int
	Kind     planner.ActionKind
	Identity string
	Path     string
	Outcome  model.Outcome
}

// RunStatistics accumulates the outcome of a run. It is safe for concurrent
// use while the run is in progress and read-only afterwards.
type RunStatistics struct {
	mu sync.Mutex

	// Outcomes holds one outcome per plan action, by action ID.
	Outcomes []model.Outcome

	// Counts tallies outcomes by action kind and status.
	Counts map[planner.ActionKind]map[model.Status]int

	// Entries lists failed and skipped actions in settlement order.
	Entries []Entry

	// Skipped lists inputs excluded during scanning and pairing.
	Skipped []model.Skip

	// Inputs is the breakdown of what the scan found.
	Inputs scan.Counts

	// BytesDownloaded sums the size of completed downloads.
	BytesDownloaded int64

	DryRun    bool
	Cancelled bool
	Started   time.Time
	Duration  time.Duration
}

func newRunStatistics(plan *planner.Plan, dryRun bool) *RunStatistics {
	s := &RunStatistics{
		Outcomes: make([]model.Outcome, len(plan.Actions)),
		Counts:   make(map[planner.ActionKind]map[model.Status]int),
		Skipped:  append([]model.Skip(nil), plan.Skipped...),
		Inputs:   plan.Inputs,
		DryRun:   dryRun,
		Started:  time.Now(),
	}
	for _, k := range planner.ActionKinds {
		s.Counts[k] = make(map[model.Status]int)
	}
	return s
}

func (s *RunStatistics) record(a *planner.Action, o model.Outcome, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Outcomes[a.ID] = o
	s.Counts[a.Kind][o.Status]++
	s.BytesDownloaded += bytes

	if o.Status != model.StatusSucceeded {
		path := o.Output
		if path == "" {
			path = a.Output
		}
		s.Entries = append(s.Entries, Entry{
			ActionID: a.ID,
			Kind:     a.Kind,
			Identity: a.Identity,
			Path:     path,
			Outcome:  o,
		})
	}
}

func (s *RunStatistics) finish(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled = cancelled
	s.Duration = time.Since(s.Started)
}

// Total returns the number of settled actions with the given status.
func (s *RunStatistics) Total(status model.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byStatus := range s.Counts {
		n += byStatus[status]
	}
	return n
}

// Failed reports whether any action failed.
func (s *RunStatistics) Failed() bool {
	return s.Total(model.StatusFailed) > 0
}

// Outputs returns the paths of every successfully finalized output file,
// in action order.
func (s *RunStatistics) Outputs(plan *planner.Plan) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range plan.Actions {
		if a.Stage() != planner.StageCombine {
			continue
		}
		if o := s.Outcomes[a.ID]; o.Status == model.StatusSucceeded && o.Output != "" {
			out = append(out, o.Output)
		}
	}
	return out
}

func (s *RunStatistics) outcome(id int) model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Outcomes[id]
}
