package pipeline

import (
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/planner"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// EventType says what happened to an action.
type EventType int

const (
	// EventPlanned is emitted for every action of a dry run.
	EventPlanned EventType = iota

	// EventStarted is emitted when a worker picks an action up.
	EventStarted

	// EventRetry is emitted before a download is attempted again.
	EventRetry

	// EventSettled is emitted once per action with its outcome.
	EventSettled

	// EventProgress reports bytes received by a running download.
	EventProgress
)

// Event is a progress update for one action.
type Event struct {
	Type     EventType
	ActionID int
	Stage    planner.Stage
	Kind     planner.ActionKind
	Identity string

	// Outcome is set for EventSettled and EventPlanned.
	Outcome model.Outcome

	// Description is the action's dry-run line.
	Description string

	// Message is a short human-readable summary.
	Message string
	Level   ProgressLevel

	// Settled and Total count actions across the run.
	Settled int
	Total   int

	// Received and Size are set for EventProgress. Size is -1 when the
	// server sent no Content-Length.
	Received int64
	Size     int64
}

// levelOf picks the display level for a settled outcome.
func levelOf(o model.Outcome) ProgressLevel {
	switch o.Status {
	case model.StatusFailed:
		return LevelError
	case model.StatusSkipped:
		if o.Failing() {
			return LevelWarning
		}
		return LevelVerbose
	default:
		return LevelSuccess
	}
}
