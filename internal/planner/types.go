package planner

import (
	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/scan"
)

// Stage groups actions for ordering and worker pool selection.
type Stage int

const (
	StageDownload Stage = iota
	StageExtract
	StageRename
	StageCombine
	StageMetadata
	StageCleanup
)

// String returns the lowercase stage name.
func (s Stage) String() string {
	switch s {
	case StageDownload:
		return "download"
	case StageExtract:
		return "extract"
	case StageRename:
		return "rename"
	case StageCombine:
		return "combine"
	case StageMetadata:
		return "metadata"
	default:
		return "cleanup"
	}
}

// ActionKind is the closed set of operations a plan can contain.
type ActionKind int

const (
	ActionDownload ActionKind = iota
	ActionExtractArchive
	ActionRenameMissingExtension
	ActionCombineImage
	ActionCombineVideo
	ActionCopyThrough
	ActionApplyMetadata
	ActionCleanup
)

// ActionKinds lists every kind in stage order.
var ActionKinds = []ActionKind{
	ActionDownload,
	ActionExtractArchive,
	ActionRenameMissingExtension,
	ActionCombineImage,
	ActionCombineVideo,
	ActionCopyThrough,
	ActionApplyMetadata,
	ActionCleanup,
}

// String returns the kebab-case kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionDownload:
		return "download"
	case ActionExtractArchive:
		return "extract-archive"
	case ActionRenameMissingExtension:
		return "rename-missing-extension"
	case ActionCombineImage:
		return "combine-image"
	case ActionCombineVideo:
		return "combine-video"
	case ActionCopyThrough:
		return "copy-through"
	case ActionApplyMetadata:
		return "apply-metadata"
	default:
		return "cleanup"
	}
}

// Stage returns the stage the kind belongs to.
func (k ActionKind) Stage() Stage {
	switch k {
	case ActionDownload:
		return StageDownload
	case ActionExtractArchive:
		return StageExtract
	case ActionRenameMissingExtension:
		return StageRename
	case ActionCombineImage, ActionCombineVideo, ActionCopyThrough:
		return StageCombine
	case ActionApplyMetadata:
		return StageMetadata
	default:
		return StageCleanup
	}
}

// NoAction marks a Source that is a literal path.
const NoAction = -1

// Source is an action input: either a path that exists before the run, or
// the output of an earlier action in the same plan.
type Source struct {
	// Path is the literal path, or the planned output of action From.
	Path string

	// From is the index of the producing action, or NoAction.
	From int
}

// Literal returns a Source for a pre-existing path.
func Literal(path string) Source {
	return Source{Path: path, From: NoAction}
}

// IsOutput reports whether the source is produced by another action.
func (s Source) IsOutput() bool {
	return s.From != NoAction
}

// Action is one unit of work. Actions are created by Build and never
// modified afterwards.
type Action struct {
	// ID is the index of the action in Plan.Actions.
	ID int

	Kind     ActionKind
	Identity string

	// Archive is the archive (or download) the action's inputs come from.
	Archive string

	// Main is the primary input. For a deferred combine it is the directory
	// holding the memory's normalized files.
	Main Source

	// Overlay is the overlay input of a combine.
	Overlay Source

	// Targets are the paths removed by a cleanup.
	Targets []Source

	// Output is the planned output path. For a download and a deferred
	// combine the extension (and for the combine, the suffix) is decided
	// at run time; Output is then the path without extension.
	Output string

	// KeepInput makes a rename copy its input to Output instead of moving
	// it. Set for files that live in the input folder.
	KeepInput bool

	// URL is the download location.
	URL string

	// Record is the manifest record for the identity, nil if none matched.
	Record *model.MemoryRecord

	// MediaKind is the expected media kind of the output.
	MediaKind model.Kind

	// Capabilities is the hardware encoder snapshot for video composites.
	Capabilities capability.Set

	// Deferred combines pick their inputs from Main at run time, falling
	// back to a copy when no overlay is found.
	Deferred bool

	// DependsOn lists the IDs of actions that must succeed first.
	DependsOn []int

	deps []*Action
	main *Action
	ovl  *Action
	tgts []*Action
}

// Stage returns the stage of the action.
func (a *Action) Stage() Stage {
	return a.Kind.Stage()
}

// Plan is the ordered list of actions for a run.
type Plan struct {
	// Actions ordered by stage. An action only depends on actions before it.
	Actions []*Action

	// Skipped lists inputs excluded while scanning and pairing.
	Skipped []model.Skip

	// Inputs is the breakdown of what the scan found.
	Inputs scan.Counts

	Capabilities capability.Set
	OutputDir    string
	WorkDir      string
}

// CountByKind returns how many actions of each kind the plan contains.
func (p *Plan) CountByKind() map[ActionKind]int {
	counts := make(map[ActionKind]int, len(ActionKinds))
	for _, a := range p.Actions {
		counts[a.Kind]++
	}
	return counts
}

// Dependents returns, for every action, the IDs of the actions that depend
// on it.
func (p *Plan) Dependents() [][]int {
	out := make([][]int, len(p.Actions))
	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			out[dep] = append(out[dep], a.ID)
		}
	}
	return out
}
