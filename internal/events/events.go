// Package events defines the closed set of updates a session reduces.
//
// Wire events arrive from the push channel or a reconnect backlog and are
// decoded at the boundary by Decode. Local events are produced inside the
// process (accept/reject results, refreshes) and never decoded. The Event
// interface has an unexported method so no other package can add variants,
// which lets the session's reducer switch over a finite set.
package events

import (
	"github.com/danieljhkim/chartpatch/internal/state"
)

// Type names an event variant.
type Type string

const (
	TypePatchUpdated    Type = "patch-updated"
	TypePlanUpdated     Type = "plan-updated"
	TypeRevisionCreated Type = "revision-created"
	TypeRenderStream    Type = "render-stream"

	TypeFileReplaced           Type = "file-replaced"
	TypeWorkspaceReplaced      Type = "workspace-replaced"
	TypeRevisionStateRefreshed Type = "revision-state-refreshed"
)

// Event is a single update to a workspace session.
type Event interface {
	// Type returns the variant name.
	Type() Type

	// WorkspaceID returns the workspace the event belongs to.
	WorkspaceID() string

	sealed()
}

// FilePayload is the file carried by a patch event. ContentPending nil
// means the file has no pending change.
type FilePayload struct {
	ID             string  `json:"id,omitempty"`
	Path           string  `json:"path"`
	ChartID        string  `json:"chartId,omitempty"`
	Content        string  `json:"content"`
	ContentPending *string `json:"contentPending,omitempty"`
}

// ToFile converts the payload into a File at the given revision.
func (p FilePayload) ToFile(rev int) state.File {
	return state.File{
		ID:             p.ID,
		RevisionNumber: rev,
		ChartID:        p.ChartID,
		Path:           p.Path,
		Content:        p.Content,
		ContentPending: p.ContentPending,
	}
}

// PatchUpdated delivers new committed and pending content for one file.
type PatchUpdated struct {
	Workspace      string
	RevisionNumber int
	File           FilePayload
}

// Plan is a generation plan and the files it touches.
type Plan struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Description string       `json:"description,omitempty"`
	ActionFiles []ActionFile `json:"actionFiles,omitempty"`
}

// ActionFile is one planned file action.
type ActionFile struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// PlanUpdated reports progress of a plan.
type PlanUpdated struct {
	Workspace string
	Plan      Plan
}

// RevisionCreated reports a new revision, incomplete while it is generated.
type RevisionCreated struct {
	Workspace      string
	RevisionNumber int
	Incomplete     bool
}

// RenderStream carries a chunk of render output.
type RenderStream struct {
	Workspace string
	RenderID  string
	ChartID   string
	Stdout    string
	Stderr    string
	Done      bool
}

// FileReplaced swaps in a file value produced locally, e.g. by accept,
// reject, a direct edit, or a persistence response.
type FileReplaced struct {
	Workspace string
	File      state.File
}

// WorkspaceReplaced swaps in a whole workspace, e.g. after a sync.
type WorkspaceReplaced struct {
	Workspace *state.Workspace
}

// RevisionStateRefreshed updates only the aggregate revision flags.
type RevisionStateRefreshed struct {
	Workspace                string
	CurrentRevisionNumber    int
	IncompleteRevisionNumber *int
}

func (e PatchUpdated) Type() Type           { return TypePatchUpdated }
func (e PlanUpdated) Type() Type            { return TypePlanUpdated }
func (e RevisionCreated) Type() Type        { return TypeRevisionCreated }
func (e RenderStream) Type() Type           { return TypeRenderStream }
func (e FileReplaced) Type() Type           { return TypeFileReplaced }
func (e WorkspaceReplaced) Type() Type      { return TypeWorkspaceReplaced }
func (e RevisionStateRefreshed) Type() Type { return TypeRevisionStateRefreshed }

func (e PatchUpdated) WorkspaceID() string           { return e.Workspace }
func (e PlanUpdated) WorkspaceID() string            { return e.Workspace }
func (e RevisionCreated) WorkspaceID() string        { return e.Workspace }
func (e RenderStream) WorkspaceID() string           { return e.Workspace }
func (e FileReplaced) WorkspaceID() string           { return e.Workspace }
func (e RevisionStateRefreshed) WorkspaceID() string { return e.Workspace }

func (e WorkspaceReplaced) WorkspaceID() string {
	if e.Workspace == nil {
		return ""
	}
	return e.Workspace.ID
}

func (PatchUpdated) sealed()           {}
func (PlanUpdated) sealed()            {}
func (RevisionCreated) sealed()        {}
func (RenderStream) sealed()           {}
func (FileReplaced) sealed()           {}
func (WorkspaceReplaced) sealed()      {}
func (RevisionStateRefreshed) sealed() {}

// IsWire reports whether the variant travels over the push channel.
func IsWire(e Event) bool {
	switch e.(type) {
	case PatchUpdated, PlanUpdated, RevisionCreated, RenderStream:
		return true
	default:
		return false
	}
}
