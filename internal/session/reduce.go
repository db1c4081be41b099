package session

import (
	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// apply reduces a batch on the Run goroutine and publishes the result once.
func (s *Session) apply(evs []events.Event) []Outcome {
	prev := s.ws.Load()
	ws := prev

	out := make([]Outcome, len(evs))
	for i, ev := range evs {
		next, o := s.reduce(ws, ev)
		out[i] = o
		if o.Skipped != "" {
			s.logger.Debug("event skipped",
				zap.String("event", string(ev.Type())),
				zap.String("reason", string(o.Skipped)))
			continue
		}
		ws = next
	}

	if ws != prev {
		if ws.UpdatedAt.Equal(prev.UpdatedAt) {
			touched := *ws
			touched.UpdatedAt = s.clock.Now()
			ws = &touched
		}
		s.ws.Store(ws)
		s.publish(ws)
	}
	return out
}

func (s *Session) reduce(ws *state.Workspace, ev events.Event) (*state.Workspace, Outcome) {
	if id := ev.WorkspaceID(); id != "" && id != ws.ID {
		return ws, Outcome{Skipped: SkipOtherWorkspace}
	}

	switch e := ev.(type) {
	case events.PatchUpdated:
		return s.reduceFile(ws, e.File.ToFile(e.RevisionNumber), true)

	case events.FileReplaced:
		return s.reduceFile(ws, e.File, false)

	case events.WorkspaceReplaced:
		if e.Workspace == nil {
			return ws, Outcome{Skipped: SkipInvalid}
		}
		next := e.Workspace.Clone()
		s.markAll(next)
		s.maybeClearSnapshot(next)
		return next, Outcome{Applied: true}

	case events.RevisionCreated:
		return s.reduceRevision(ws, e)

	case events.RevisionStateRefreshed:
		next := *ws
		next.CurrentRevisionNumber = e.CurrentRevisionNumber
		next.IncompleteRevisionNumber = copyInt(e.IncompleteRevisionNumber)
		if equalInt(ws.IncompleteRevisionNumber, next.IncompleteRevisionNumber) &&
			ws.CurrentRevisionNumber == next.CurrentRevisionNumber {
			return ws, Outcome{Skipped: SkipDuplicate}
		}
		s.maybeClearSnapshot(&next)
		return &next, Outcome{Applied: true}

	case events.PlanUpdated:
		s.setPlan(e.Plan)
		return ws, Outcome{}

	case events.RenderStream:
		s.appendRender(e)
		return ws, Outcome{}

	default:
		return ws, Outcome{Skipped: SkipInvalid}
	}
}

// reduceFile upserts a file value. Remote patch events are checked against
// the states already applied for that file and revision: an event that
// would bring back an earlier state is stale and ignored.
func (s *Session) reduceFile(ws *state.Workspace, f state.File, remote bool) (*state.Workspace, Outcome) {
	if err := fsops.ValidateRelPath(f.Path); err != nil {
		return ws, Outcome{Skipped: SkipInvalid}
	}

	existing, _, found := reconcile.Find(ws, reconcile.KeyOf(f))
	id := f.ID
	switch {
	case found:
		id = existing.ID
	case id == "":
		id = state.DeriveFileID(ws.ID, f.ChartID, f.Path)
	}
	if f.ID == "" {
		f.ID = id
	}

	h := s.hasher.HashState(f.Content, f.ContentPending)
	key := seenKey{file: id, rev: f.RevisionNumber}

	if found && sameFile(existing, f) {
		s.markSeen(key, h)
		return ws, Outcome{Skipped: SkipDuplicate}
	}
	if remote {
		if found && existing.RevisionNumber > f.RevisionNumber {
			return ws, Outcome{Skipped: SkipStale}
		}
		if s.seen[key][h] {
			return ws, Outcome{Skipped: SkipStale}
		}
		// A newer revision is already under review.
		if inc := ws.IncompleteRevisionNumber; inc != nil && f.RevisionNumber < *inc && f.RevisionNumber > ws.CurrentRevisionNumber {
			return ws, Outcome{Skipped: SkipStale}
		}
	}

	if f.HasPending() && s.snap.Load() == nil {
		s.snap.Store(reconcile.CaptureSnapshot(ws, f.RevisionNumber, s.clock.Now()))
	}

	next, err := reconcile.UpsertFile(ws, f)
	if err != nil {
		s.logger.Warn("failed to apply file update",
			zap.String("file_id", id),
			zap.String("path", f.Path),
			zap.Error(err))
		return ws, Outcome{Skipped: SkipNotFound}
	}

	if f.RevisionNumber > next.CurrentRevisionNumber &&
		(next.IncompleteRevisionNumber == nil || f.RevisionNumber > *next.IncompleteRevisionNumber) {
		rev := f.RevisionNumber
		next.IncompleteRevisionNumber = &rev
	}

	s.markSeen(key, h)
	return next, Outcome{Applied: true}
}

func (s *Session) reduceRevision(ws *state.Workspace, e events.RevisionCreated) (*state.Workspace, Outcome) {
	next := *ws
	rev := e.RevisionNumber

	if e.Incomplete {
		if rev <= ws.CurrentRevisionNumber {
			return ws, Outcome{Skipped: SkipStale}
		}
		if equalInt(ws.IncompleteRevisionNumber, &rev) {
			return ws, Outcome{Skipped: SkipDuplicate}
		}
		if ws.IncompleteRevisionNumber != nil && rev < *ws.IncompleteRevisionNumber {
			return ws, Outcome{Skipped: SkipStale}
		}
		next.IncompleteRevisionNumber = &rev
	} else {
		if rev < ws.CurrentRevisionNumber {
			return ws, Outcome{Skipped: SkipStale}
		}
		if rev == ws.CurrentRevisionNumber && ws.IncompleteRevisionNumber == nil {
			return ws, Outcome{Skipped: SkipDuplicate}
		}
		next.CurrentRevisionNumber = rev
		if next.IncompleteRevisionNumber != nil && *next.IncompleteRevisionNumber <= rev {
			next.IncompleteRevisionNumber = nil
		}
	}

	// A new revision starts a new review cycle.
	s.snap.Store(nil)
	s.pruneSeen(next.CurrentRevisionNumber)
	return &next, Outcome{Applied: true}
}

// maybeClearSnapshot ends the review cycle once the revision is finalized
// and nothing is pending.
func (s *Session) maybeClearSnapshot(ws *state.Workspace) {
	if ws.IncompleteRevisionNumber == nil && len(reconcile.PendingFiles(ws, -1)) == 0 {
		s.snap.Store(nil)
	}
}

func (s *Session) markSeen(key seenKey, h string) {
	m := s.seen[key]
	if m == nil {
		m = make(map[string]bool)
		s.seen[key] = m
	}
	m[h] = true
}

func (s *Session) markAll(ws *state.Workspace) {
	for _, f := range ws.AllFiles() {
		s.markSeen(seenKey{file: f.ID, rev: f.RevisionNumber}, s.hasher.HashState(f.Content, f.ContentPending))
	}
}

// pruneSeen forgets states of revisions older than rev.
func (s *Session) pruneSeen(rev int) {
	for k := range s.seen {
		if k.rev < rev {
			delete(s.seen, k)
		}
	}
}

func sameFile(a, b state.File) bool {
	return a.ID == b.ID &&
		a.Path == b.Path &&
		a.ChartID == b.ChartID &&
		a.RevisionNumber == b.RevisionNumber &&
		a.Content == b.Content &&
		equalString(a.ContentPending, b.ContentPending)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
