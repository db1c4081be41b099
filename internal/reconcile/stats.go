package reconcile

import (
	"time"

	"github.com/danieljhkim/chartpatch/internal/diffstat"
	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// FileStat is the change badge of one file.
type FileStat struct {
	File  state.File
	Stats diffstat.Stats

	// Pending is true when the file still awaits a decision
	Pending bool
}

// CaptureSnapshot copies the file tree as the baseline for revision rev.
func CaptureSnapshot(ws *state.Workspace, rev int, now time.Time) *state.Snapshot {
	c := ws.Clone()
	return &state.Snapshot{
		RevisionNumber: rev,
		CapturedAt:     now,
		Files:          c.Files,
		Charts:         c.Charts,
	}
}

// Stats computes a badge for every file whose materialized text differs from
// its baseline. The baseline is the snapshot content when a snapshot is
// given, else the file's committed content. Files whose changes net to zero
// lines are left out, including pending no-op patches.
func Stats(ws *state.Workspace, snap *state.Snapshot) []FileStat {
	var out []FileStat
	for _, f := range ws.AllFiles() {
		s := diffstat.Compute(Baseline(f, snap), filepatch.Materialize(f))
		if s.IsZero() {
			continue
		}
		out = append(out, FileStat{File: f, Stats: s, Pending: f.HasPending()})
	}
	return out
}

// Baseline returns the text f is compared against: its snapshot content, ""
// when the snapshot predates the file, or its committed content without a
// snapshot.
func Baseline(f state.File, snap *state.Snapshot) string {
	if snap == nil {
		return f.Content
	}
	b, _ := snap.Baseline(f.ID, f.ChartID, f.Path)
	return b
}

// Total sums the badges.
func Total(stats []FileStat) diffstat.Stats {
	var total diffstat.Stats
	for _, s := range stats {
		total = total.Add(s.Stats)
	}
	return total
}
