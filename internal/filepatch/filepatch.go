// Package filepatch implements the per-file review state machine.
//
// A file is Clean when it has no pending content and PendingReview when it
// does. Accept and Reject both return it to Clean:
//
//	Clean --SetPending--> PendingReview --Accept--> Clean (content := pending)
//	                                    --Reject--> Clean (content unchanged)
//
// Pending content is either the full replacement text, which Accept promotes
// verbatim, or a unified diff against the committed content, which Accept
// runs through the patch applier. Every transition is a pure function of its
// input File, so delivering the same transition twice converges on the same
// end state.
package filepatch

import (
	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/patch"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// State is the review state of a file.
type State int

const (
	// Clean means the file has no pending content.
	Clean State = iota

	// PendingReview means the file has pending content awaiting a decision.
	PendingReview
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case PendingReview:
		return "pending"
	default:
		return "unknown"
	}
}

// StateOf returns the review state of f.
func StateOf(f state.File) State {
	if f.HasPending() {
		return PendingReview
	}
	return Clean
}

// Transition is the outcome of a state machine step.
type Transition struct {
	// File is the new file value
	File state.File

	// Changed is false when the step left the file as it was
	Changed bool

	// Applied is set when accepting ran the patch applier
	Applied *patch.Result
}

// IsDiff reports whether pending content is a diff rather than full text.
func IsDiff(pending string) bool {
	return patch.IsUnifiedDiff(pending)
}

// Materialize returns the text the file would hold after Accept. For a
// clean file that is its committed content.
func Materialize(f state.File) string {
	text, _ := materialize(f)
	return text
}

func materialize(f state.File) (string, *patch.Result) {
	if !f.HasPending() {
		return f.Content, nil
	}
	pending := *f.ContentPending
	if !IsDiff(pending) {
		return pending, nil
	}
	res := patch.ApplyDetailed(f.Content, pending)
	return res.Content, &res
}

// Accept promotes the pending change into the committed content.
// Accepting a clean file is a no-op.
func Accept(f state.File) Transition {
	if !f.HasPending() {
		return Transition{File: f}
	}

	text, res := materialize(f)
	f.Content = text
	f.ContentPending = nil
	return Transition{File: f, Changed: true, Applied: res}
}

// Reject discards the pending change. Rejecting a clean file is a no-op.
func Reject(f state.File) Transition {
	if !f.HasPending() {
		return Transition{File: f}
	}

	f.ContentPending = nil
	return Transition{File: f, Changed: true}
}

// SetPending records incoming pending content. Nil clears it.
func SetPending(f state.File, pending *string) Transition {
	if equalPending(f.ContentPending, pending) {
		return Transition{File: f}
	}

	if pending != nil {
		p := *pending
		pending = &p
	}
	f.ContentPending = pending
	return Transition{File: f, Changed: true}
}

// Edit replaces the committed content directly and discards any pending
// change, as when the user saves the file by hand.
func Edit(f state.File, content string) Transition {
	if f.Content == content && !f.HasPending() {
		return Transition{File: f}
	}

	f.Content = content
	f.ContentPending = nil
	return Transition{File: f, Changed: true}
}

// Stats returns the line delta of accepting f's pending change.
func Stats(f state.File) diffstat.Stats {
	if !f.HasPending() {
		return diffstat.Stats{}
	}
	return diffstat.Compute(f.Content, Materialize(f))
}

// IsNoop reports whether f has pending content that changes nothing.
// Such files stay pending until a decision is made, but display no stats.
func IsNoop(f state.File) bool {
	return f.HasPending() && Stats(f).IsZero()
}

func equalPending(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
