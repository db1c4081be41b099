package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/danieljhkim/chartpatch/internal/fsops"
)

// ErrInvalidWorkspace indicates a workspace value breaks a structural invariant.
var ErrInvalidWorkspace = errors.New("invalid workspace")

// NewWorkspace creates an empty workspace at revision 0.
func NewWorkspace(name string, now time.Time) *Workspace {
	return &Workspace{
		ID:        NewID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Files:     []File{},
		Charts:    []Chart{},
	}
}

// HasIncompleteRevision reports whether a revision is still being generated.
func (w *Workspace) HasIncompleteRevision() bool {
	return w.IncompleteRevisionNumber != nil
}

// ActiveRevision returns the incomplete revision if there is one, else the
// current revision. New pending content belongs to this revision.
func (w *Workspace) ActiveRevision() int {
	if w.IncompleteRevisionNumber != nil {
		return *w.IncompleteRevisionNumber
	}
	return w.CurrentRevisionNumber
}

// AllFiles returns loose files followed by each chart's files in order.
// The returned slice is new; the File values share no mutable state.
func (w *Workspace) AllFiles() []File {
	n := len(w.Files)
	for _, c := range w.Charts {
		n += len(c.Files)
	}

	out := make([]File, 0, n)
	out = append(out, w.Files...)
	for _, c := range w.Charts {
		out = append(out, c.Files...)
	}
	return out
}

// Chart returns the chart with the given id.
func (w *Workspace) Chart(id string) (*Chart, bool) {
	for i := range w.Charts {
		if w.Charts[i].ID == id {
			return &w.Charts[i], true
		}
	}
	return nil, false
}

// Clone returns a copy whose slices can be modified without affecting w.
func (w *Workspace) Clone() *Workspace {
	if w == nil {
		return nil
	}

	out := *w
	out.Files = append([]File(nil), w.Files...)
	out.Charts = make([]Chart, len(w.Charts))
	for i, c := range w.Charts {
		c.Files = append([]File(nil), c.Files...)
		out.Charts[i] = c
	}
	if w.IncompleteRevisionNumber != nil {
		rev := *w.IncompleteRevisionNumber
		out.IncompleteRevisionNumber = &rev
	}
	return &out
}

// Validate checks the structural invariants of the workspace:
//   - ids are present and file ids are unique
//   - paths are relative and unique within their container
//   - chart files carry their chart's id
//   - every file revision is <= current, or equals the incomplete revision
func (w *Workspace) Validate() error {
	if err := fsops.ValidateIdentifier(w.ID); err != nil {
		return fmt.Errorf("%w: workspace id: %v", ErrInvalidWorkspace, err)
	}

	seen := make(map[string]bool)
	check := func(f File, chartID string, paths map[string]bool) error {
		if f.ID == "" {
			return fmt.Errorf("%w: file %q has no id", ErrInvalidWorkspace, f.Path)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: duplicate file id %s", ErrInvalidWorkspace, f.ID)
		}
		seen[f.ID] = true

		if err := fsops.ValidateRelPath(f.Path); err != nil {
			return fmt.Errorf("%w: file %s: %v", ErrInvalidWorkspace, f.ID, err)
		}
		if paths[f.Path] {
			return fmt.Errorf("%w: duplicate path %q", ErrInvalidWorkspace, f.Path)
		}
		paths[f.Path] = true

		if f.ChartID != chartID {
			return fmt.Errorf("%w: file %s has chart %q, stored under %q", ErrInvalidWorkspace, f.ID, f.ChartID, chartID)
		}
		if f.RevisionNumber > w.CurrentRevisionNumber &&
			(w.IncompleteRevisionNumber == nil || f.RevisionNumber != *w.IncompleteRevisionNumber) {
			return fmt.Errorf("%w: file %s at revision %d is ahead of workspace revision %d",
				ErrInvalidWorkspace, f.ID, f.RevisionNumber, w.CurrentRevisionNumber)
		}
		return nil
	}

	loose := make(map[string]bool)
	for _, f := range w.Files {
		if err := check(f, "", loose); err != nil {
			return err
		}
	}

	charts := make(map[string]bool)
	for _, c := range w.Charts {
		if c.ID == "" {
			return fmt.Errorf("%w: chart %q has no id", ErrInvalidWorkspace, c.Name)
		}
		if charts[c.ID] {
			return fmt.Errorf("%w: duplicate chart id %s", ErrInvalidWorkspace, c.ID)
		}
		charts[c.ID] = true

		paths := make(map[string]bool)
		for _, f := range c.Files {
			if err := check(f, c.ID, paths); err != nil {
				return err
			}
		}
	}

	return nil
}
