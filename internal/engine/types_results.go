package engine

import (
	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/patch"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// PatchResult represents the result of a single-file transition.
type PatchResult struct {
	// File is the file value fed into the session
	File state.File

	// Noop is true when the file had nothing pending
	Noop bool

	// Fallback is true when persistence failed and the transition was local only
	Fallback bool

	// Applied is set when accepting a diff ran the patch applier
	Applied *patch.Result

	// RemoteErr is the persistence failure behind a fallback
	RemoteErr error
}

// BatchResult represents the result of AcceptAll or RejectAll.
type BatchResult struct {
	// RevisionNumber is the revision the batch ran against
	RevisionNumber int

	// Files are the new values of every transitioned file
	Files []state.File

	// Fallback lists ids of files transitioned locally only
	Fallback []string

	// BulkFallback is true when the bulk call failed and files were
	// processed one by one
	BulkFallback bool

	// Refreshed is true when revision state was re-fetched afterwards
	Refreshed bool

	// Err combines the non-blocking remote failures of the batch
	Err error
}

// SyncResult represents the result of a sync.
type SyncResult struct {
	// Pushed lists ids whose local state was written to persistence
	Pushed []string

	// Remaining lists ids that still could not be pushed
	Remaining []string

	// Replaced is true when the session took the fetched workspace wholesale
	Replaced bool

	Err error
}

// StatusResult summarizes pending review state.
type StatusResult struct {
	Workspace *state.Workspace

	// Pending are the files awaiting a decision
	Pending []state.File

	// Stats are the change badges against the revision cycle baseline
	Stats []reconcile.FileStat

	Total diffstat.Stats
}
