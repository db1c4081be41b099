package session

import (
	"fmt"
	"sort"

	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// Buffer is the review model of an open file: its committed text and the
// text it would have after accept.
type Buffer struct {
	FileID   string
	Path     string
	Original string
	Modified string
}

// Dirty reports whether the buffer shows a change.
func (b Buffer) Dirty() bool {
	return b.Original != b.Modified
}

type bufferEntry struct {
	file   state.File
	buffer Buffer
}

func newBufferEntry(f state.File) *bufferEntry {
	return &bufferEntry{
		file: f,
		buffer: Buffer{
			FileID:   f.ID,
			Path:     f.Path,
			Original: f.Content,
			Modified: filepatch.Materialize(f),
		},
	}
}

// Open returns the buffer for a file, creating it on first use. Buffers are
// kept current on every change until CloseBuffer or Close.
func (s *Session) Open(fileID string) (Buffer, error) {
	f, _, ok := reconcile.Find(s.Workspace(), reconcile.Key{ID: fileID})
	if !ok {
		return Buffer{}, fmt.Errorf("%w: id %s", reconcile.ErrFileNotFound, fileID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return Buffer{}, ErrClosed
	default:
	}

	e, ok := s.buffers[fileID]
	if !ok || !sameFile(e.file, f) {
		e = newBufferEntry(f)
		s.buffers[fileID] = e
	}
	return e.buffer, nil
}

// Buffer returns an open buffer.
func (s *Session) Buffer(fileID string) (Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.buffers[fileID]
	if !ok {
		return Buffer{}, false
	}
	return e.buffer, true
}

// OpenBuffers returns the ids of all open buffers, sorted.
func (s *Session) OpenBuffers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseBuffer disposes the buffer of a file.
func (s *Session) CloseBuffer(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, fileID)
}

// Select marks a file as the focused one and returns its current value.
// OnSelect listeners are told whenever that file is later replaced.
func (s *Session) Select(fileID string) (state.File, error) {
	f, _, ok := reconcile.Find(s.Workspace(), reconcile.Key{ID: fileID})
	if !ok {
		return state.File{}, fmt.Errorf("%w: id %s", reconcile.ErrFileNotFound, fileID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = fileID
	s.selFile = f
	return f, nil
}

// Selected returns the focused file id, or "".
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// publish refreshes buffers and the selection after a new workspace value
// has been stored, then notifies listeners outside the lock.
func (s *Session) publish(ws *state.Workspace) {
	s.mu.Lock()

	for id, e := range s.buffers {
		f, _, ok := reconcile.Find(ws, reconcile.Key{ID: id})
		if !ok {
			delete(s.buffers, id)
			continue
		}
		if !sameFile(e.file, f) {
			s.buffers[id] = newBufferEntry(f)
		}
	}

	onSelect := append([]func(state.File){}, s.onSelect...)
	onChange := append([]func(*state.Workspace){}, s.onChange...)

	var (
		reselect bool
		selFile  state.File
	)
	if s.selected != "" {
		if f, _, ok := reconcile.Find(ws, reconcile.Key{ID: s.selected}); ok && !sameFile(s.selFile, f) {
			s.selFile = f
			selFile = f
			reselect = true
		}
	}

	s.mu.Unlock()

	for _, fn := range onChange {
		fn(ws)
	}
	if reselect {
		for _, fn := range onSelect {
			fn(selFile)
		}
	}
}

// Render is the accumulated output of a render.
type Render struct {
	ID      string
	ChartID string
	Stdout  string
	Stderr  string
	Done    bool
}

func (s *Session) appendRender(e events.RenderStream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.renders[e.RenderID]
	if !ok {
		r = &Render{ID: e.RenderID, ChartID: e.ChartID}
		s.renders[e.RenderID] = r
	}
	if r.Done {
		return
	}
	r.Stdout += e.Stdout
	r.Stderr += e.Stderr
	r.Done = e.Done
}

// Render returns the output of a render seen so far.
func (s *Session) Render(id string) (Render, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.renders[id]
	if !ok {
		return Render{}, false
	}
	return *r, true
}

func (s *Session) setPlan(p events.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID]; !ok {
		s.planOrder = append(s.planOrder, p.ID)
	}
	s.plans[p.ID] = p
}

// Plans returns the latest state of every plan, in first-seen order.
func (s *Session) Plans() []events.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]events.Plan, 0, len(s.planOrder))
	for _, id := range s.planOrder {
		out = append(out, s.plans[id])
	}
	return out
}
