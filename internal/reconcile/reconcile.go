// Package reconcile applies file changes to a workspace tree.
//
// Every operation returns a new *state.Workspace and leaves its input
// untouched. Only the container that holds the changed file is copied: the
// loose file list, or the Charts list plus the one chart's file list. All
// other slices are shared with the input, which is safe because published
// workspaces are never mutated.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	// ErrFileNotFound indicates no file matched the lookup key.
	ErrFileNotFound = errors.New("file not found")

	// ErrChartNotFound indicates a file names a chart the workspace lacks.
	ErrChartNotFound = errors.New("chart not found")
)

// Key identifies a file. ID is matched first; Path (scoped to ChartID) is
// the fallback for files that have not received a durable id yet.
type Key struct {
	ID      string
	ChartID string
	Path    string
}

// KeyOf returns the lookup key for f.
func KeyOf(f state.File) Key {
	return Key{ID: f.ID, ChartID: f.ChartID, Path: f.Path}
}

// Location is where a file lives in the tree.
type Location struct {
	// Chart is the index into Workspace.Charts, or -1 for loose files
	Chart int

	// Index is the position in the container's file list
	Index int
}

// Find looks up a file by id, then by path.
func Find(ws *state.Workspace, key Key) (state.File, Location, bool) {
	if key.ID != "" {
		for i, f := range ws.Files {
			if f.ID == key.ID {
				return f, Location{Chart: -1, Index: i}, true
			}
		}
		for c := range ws.Charts {
			for i, f := range ws.Charts[c].Files {
				if f.ID == key.ID {
					return f, Location{Chart: c, Index: i}, true
				}
			}
		}
	}

	if key.Path == "" {
		return state.File{}, Location{}, false
	}
	if key.ChartID == "" {
		for i, f := range ws.Files {
			if f.Path == key.Path {
				return f, Location{Chart: -1, Index: i}, true
			}
		}
		return state.File{}, Location{}, false
	}
	for c := range ws.Charts {
		if ws.Charts[c].ID != key.ChartID {
			continue
		}
		for i, f := range ws.Charts[c].Files {
			if f.Path == key.Path {
				return f, Location{Chart: c, Index: i}, true
			}
		}
	}
	return state.File{}, Location{}, false
}

// ReplaceFile returns a workspace in which the file matching f's key is
// replaced by f. The replacement keeps the stored file's id when f has none.
func ReplaceFile(ws *state.Workspace, f state.File) (*state.Workspace, error) {
	old, loc, ok := Find(ws, KeyOf(f))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, describe(KeyOf(f)))
	}
	if f.ID == "" {
		f.ID = old.ID
	}
	return put(ws, loc, f), nil
}

// UpsertFile replaces the matching file or inserts f into its container.
// A file inserted without an id gets one derived from its location.
func UpsertFile(ws *state.Workspace, f state.File) (*state.Workspace, error) {
	if _, _, ok := Find(ws, KeyOf(f)); ok {
		return ReplaceFile(ws, f)
	}

	if f.ID == "" {
		f.ID = state.DeriveFileID(ws.ID, f.ChartID, f.Path)
	}

	out := *ws
	if f.ChartID == "" {
		out.Files = appendCopy(ws.Files, f)
		return &out, nil
	}

	for c := range ws.Charts {
		if ws.Charts[c].ID == f.ChartID {
			out.Charts = append([]state.Chart(nil), ws.Charts...)
			chart := out.Charts[c]
			chart.Files = appendCopy(chart.Files, f)
			out.Charts[c] = recompute(chart)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrChartNotFound, f.ChartID)
}

// Transition runs a state machine step on the file matching key and returns
// the new workspace. When the step changes nothing the input workspace is
// returned as is.
func Transition(ws *state.Workspace, key Key, step func(state.File) filepatch.Transition) (*state.Workspace, filepatch.Transition, error) {
	f, loc, ok := Find(ws, key)
	if !ok {
		return ws, filepatch.Transition{}, fmt.Errorf("%w: %s", ErrFileNotFound, describe(key))
	}

	tr := step(f)
	if !tr.Changed {
		return ws, tr, nil
	}
	return put(ws, loc, tr.File), tr, nil
}

// PendingFiles returns every file with pending content at revision rev.
// A negative rev matches any revision.
func PendingFiles(ws *state.Workspace, rev int) []state.File {
	var out []state.File
	for _, f := range ws.AllFiles() {
		if f.HasPending() && (rev < 0 || f.RevisionNumber == rev) {
			out = append(out, f)
		}
	}
	return out
}

// put writes f at loc in a copy of ws.
func put(ws *state.Workspace, loc Location, f state.File) *state.Workspace {
	out := *ws
	if loc.Chart < 0 {
		out.Files = append([]state.File(nil), ws.Files...)
		out.Files[loc.Index] = f
		return &out
	}

	out.Charts = append([]state.Chart(nil), ws.Charts...)
	chart := out.Charts[loc.Chart]
	chart.Files = append([]state.File(nil), chart.Files...)
	chart.Files[loc.Index] = f
	out.Charts[loc.Chart] = recompute(chart)
	return &out
}

// recompute refreshes the aggregate fields of a chart from its files.
func recompute(c state.Chart) state.Chart {
	rev := 0
	for _, f := range c.Files {
		if f.RevisionNumber > rev {
			rev = f.RevisionNumber
		}
	}
	if rev > c.RevisionNumber {
		c.RevisionNumber = rev
	}
	return c
}

func appendCopy(files []state.File, f state.File) []state.File {
	out := make([]state.File, len(files), len(files)+1)
	copy(out, files)
	return append(out, f)
}

func describe(key Key) string {
	switch {
	case key.ID != "":
		return "id " + key.ID
	case key.ChartID != "":
		return fmt.Sprintf("path %s in chart %s", key.Path, key.ChartID)
	default:
		return "path " + key.Path
	}
}
