package engine

// Trigger tells a batch operation who asked for it.
type Trigger int

const (
	// TriggerUser is an explicit user action. Finding nothing to do is an error.
	TriggerUser Trigger = iota

	// TriggerOpportunistic runs as a side effect, e.g. on save. Finding
	// nothing to do is a no-op.
	TriggerOpportunistic
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerUser:
		return "user"
	case TriggerOpportunistic:
		return "opportunistic"
	default:
		return "unknown"
	}
}

// PatchRequest identifies one file to accept or reject.
type PatchRequest struct {
	// FileID is matched first
	FileID string

	// ChartID and Path identify the file when FileID is empty or unknown
	ChartID string
	Path    string
}

// BatchRequest represents a request to accept or reject every pending file
// of a revision.
type BatchRequest struct {
	WorkspaceID string

	// RevisionNumber selects the revision; nil means the active revision
	RevisionNumber *int

	Trigger Trigger
}

// SaveFileRequest represents a direct edit of a file's committed content.
type SaveFileRequest struct {
	PatchRequest

	Content string

	// RejectRemaining runs an opportunistic reject-all after the save
	RejectRemaining bool
}

// SyncRequest represents a request to reconcile with persistence.
type SyncRequest struct {
	WorkspaceID string

	// Unsynced lists file ids whose local state must be pushed first
	Unsynced []string
}
