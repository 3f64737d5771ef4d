package model

// Status is the terminal state of an action.
type Status int

const (
	StatusSucceeded Status = iota
	StatusSkipped
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Skip reasons.
const (
	ReasonUnreadable          = "unreadable"
	ReasonUnsupported         = "unsupported-format"
	ReasonNoDownloadLink      = "no-download-link"
	ReasonOrphanOverlay       = "orphan-overlay"
	ReasonAmbiguousPair       = "ambiguous-pair"
	ReasonIncompatiblePair    = "incompatible-pair"
	ReasonMetadataAbsent      = "metadata-absent"
	ReasonMetadataUnsupported = "metadata-unsupported"
	ReasonDependencyFailed    = "dependency-failed"
	ReasonCancelled           = "cancelled"
	ReasonNothingToClean      = "nothing-to-clean"
)

// Failure reasons that are more specific than the error kind.
const (
	ReasonUndecodableInput = "undecodable-input"
	ReasonEncodeExhausted  = "encode-exhausted"
	ReasonToolMissing      = "tool-missing"
	ReasonNotAnArchive     = "not-an-archive"
	ReasonNoUsableMedia    = "no-usable-media"
)

// Outcome is what an action settled as. Each action gets exactly one.
type Outcome struct {
	Status Status

	// Output is the path produced by a successful action.
	Output string

	// Reason explains a skip, or names the failure for a failed action.
	Reason string

	// ErrKind and Err are set for failed actions.
	ErrKind ErrorKind
	Err     error

	// Attempts counts tries (downloads) or encoders tried (video combine).
	Attempts int

	// Detail is free-form text for the report, e.g. the encoder used.
	Detail string
}

// Succeeded returns a successful outcome producing output.
func Succeeded(output string) Outcome {
	return Outcome{Status: StatusSucceeded, Output: output}
}

// Skipped returns a skipped outcome with reason.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Failed returns a failed outcome. The error kind comes from KindOf(err)
// and the reason from ReasonOf(err).
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, ErrKind: KindOf(err), Err: err, Reason: ReasonOf(err)}
}

// Failing reports whether dependents of this outcome must not run.
//
// Failures fail their dependents. So do skips that were themselves caused by
// a failure or by cancellation. Ordinary skips (say, no metadata) do not.
func (o Outcome) Failing() bool {
	switch o.Status {
	case StatusFailed:
		return true
	case StatusSkipped:
		return o.Reason == ReasonDependencyFailed || o.Reason == ReasonCancelled
	default:
		return false
	}
}

// Skip is an input that was excluded before or during planning.
type Skip struct {
	Identity string
	Path     string
	Reason   string
	Detail   string
}
