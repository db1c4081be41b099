// Package state defines the workspace data model and its local cache.
//
// A Workspace is the aggregate root: it owns a list of loose Files and a
// list of Charts, each Chart owning its own Files. Values are treated as
// immutable once published; every change produces a new Workspace (see the
// reconcile package), so a *Workspace handed to a reader is never mutated.
//
// Key concepts:
//   - File: committed content plus optional pending content awaiting review
//   - Chart: a flat, named grouping of Files
//   - Snapshot: the file tree captured before the first pending change of a
//     revision cycle, used as a stable baseline for diff stats
//   - StateStore: persists a workspace and its snapshot as JSON on disk
package state
