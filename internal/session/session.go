// Package session owns one workspace value and serializes every update to it.
//
// Producers (user actions, the push channel, reconnect replay) call Dispatch
// or Replay from any goroutine. A single Run loop reduces the events in
// arrival order and publishes each resulting workspace with an atomic
// pointer swap, so readers calling Workspace never see a half-applied
// change. Listeners run on the Run goroutine after each publish and must not
// call Dispatch themselves.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/hash"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session closed")

	// ErrRunning indicates Run was called on a session that is already running.
	ErrRunning = errors.New("session already running")
)

const defaultQueueSize = 64

// Options configures a Session.
type Options struct {
	Logger    *zap.Logger
	Clock     clock.Clock
	Hasher    hash.Hasher
	QueueSize int

	// Snapshot restores a baseline captured by an earlier session
	Snapshot *state.Snapshot
}

// Outcome reports what reducing one event did.
type Outcome struct {
	// Applied is true when the workspace value changed
	Applied bool

	// Skipped names why the event was ignored, empty when it was not
	Skipped SkipReason
}

// SkipReason explains an ignored event.
type SkipReason string

const (
	SkipDuplicate      SkipReason = "duplicate"
	SkipStale          SkipReason = "stale"
	SkipNotFound       SkipReason = "not-found"
	SkipOtherWorkspace SkipReason = "other-workspace"
	SkipInvalid        SkipReason = "invalid"
)

// ReplayResult summarizes a replayed backlog.
type ReplayResult struct {
	// Coalesced counts patch events dropped in favor of a later one for the same file
	Coalesced int

	// Outcomes are per reduced event, in order
	Outcomes []Outcome
}

// Applied counts events that changed the workspace.
func (r ReplayResult) Applied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}

type request struct {
	events []events.Event
	reply  chan []Outcome
}

type seenKey struct {
	file string
	rev  int
}

// Session is the single logical owner of a workspace value.
type Session struct {
	logger *zap.Logger
	clock  clock.Clock
	hasher hash.Hasher

	ws   atomic.Pointer[state.Workspace]
	snap atomic.Pointer[state.Snapshot]

	queue     chan request
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	// seen is owned by the Run goroutine.
	seen map[seenKey]map[string]bool

	mu        sync.Mutex
	onChange  []func(*state.Workspace)
	onSelect  []func(state.File)
	selected  string
	selFile   state.File
	buffers   map[string]*bufferEntry
	plans     map[string]events.Plan
	renders   map[string]*Render
	planOrder []string
}

// New creates a session owning ws. The session takes ownership of ws; the
// caller must not modify it afterwards. Without opts.Snapshot, a workspace
// that already has pending files gets its baseline captured immediately.
func New(ws *state.Workspace, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Hasher == nil {
		opts.Hasher = hash.NewSHA256Hasher()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	s := &Session{
		logger:  opts.Logger.With(zap.String("workspace_id", ws.ID)),
		clock:   opts.Clock,
		hasher:  opts.Hasher,
		queue:   make(chan request, opts.QueueSize),
		done:    make(chan struct{}),
		seen:    make(map[seenKey]map[string]bool),
		buffers: make(map[string]*bufferEntry),
		plans:   make(map[string]events.Plan),
		renders: make(map[string]*Render),
	}
	s.ws.Store(ws)
	switch {
	case opts.Snapshot != nil:
		s.snap.Store(opts.Snapshot)
	case len(reconcile.PendingFiles(ws, -1)) > 0:
		// Opened mid-cycle: committed content is the best baseline left.
		s.snap.Store(reconcile.CaptureSnapshot(ws, ws.ActiveRevision(), opts.Clock.Now()))
	}
	s.markAll(ws)
	return s
}

// Workspace returns the current workspace value. It must be treated as
// read-only.
func (s *Session) Workspace() *state.Workspace {
	return s.ws.Load()
}

// Snapshot returns the baseline of the current revision cycle, or nil.
func (s *Session) Snapshot() *state.Snapshot {
	return s.snap.Load()
}

// Stats returns the change badges of the current workspace against the
// revision cycle baseline.
func (s *Session) Stats() []reconcile.FileStat {
	return reconcile.Stats(s.Workspace(), s.Snapshot())
}

// Run reduces dispatched events until ctx is done or Close is called.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case req := <-s.queue:
			req.reply <- s.apply(req.events)
		}
	}
}

// Dispatch submits one event and waits until it has been reduced.
func (s *Session) Dispatch(ctx context.Context, ev events.Event) (Outcome, error) {
	out, err := s.submit(ctx, []events.Event{ev})
	if err != nil {
		return Outcome{}, err
	}
	return out[0], nil
}

// Replay applies a reconnect backlog as one batch. Patch events are
// coalesced to the last one per file before reducing, so a stale event
// earlier in the backlog never overwrites a newer one.
func (s *Session) Replay(ctx context.Context, evs []events.Event) (ReplayResult, error) {
	batch, dropped := coalesce(evs)
	if len(batch) == 0 {
		return ReplayResult{Coalesced: dropped}, nil
	}

	out, err := s.submit(ctx, batch)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{Coalesced: dropped, Outcomes: out}, nil
}

func (s *Session) submit(ctx context.Context, evs []events.Event) ([]Outcome, error) {
	req := request{events: evs, reply: make(chan []Outcome, 1)}

	select {
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.queue <- req:
	}

	select {
	case out := <-req.reply:
		return out, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the session and disposes all open buffers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		for id := range s.buffers {
			delete(s.buffers, id)
		}
		s.onChange = nil
		s.onSelect = nil
	})
}

// OnChange registers a listener called with every new workspace value.
func (s *Session) OnChange(fn func(*state.Workspace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnSelect registers a listener called when the selected file is replaced
// by a new value.
func (s *Session) OnSelect(fn func(state.File)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSelect = append(s.onSelect, fn)
}

// coalesce keeps only the last patch event per file, preserving the order
// of everything that remains.
func coalesce(evs []events.Event) ([]events.Event, int) {
	last := make(map[string]int)
	for i, ev := range evs {
		if pu, ok := ev.(events.PatchUpdated); ok {
			last[patchKey(pu)] = i
		}
	}

	out := make([]events.Event, 0, len(evs))
	dropped := 0
	for i, ev := range evs {
		if pu, ok := ev.(events.PatchUpdated); ok && last[patchKey(pu)] != i {
			dropped++
			continue
		}
		out = append(out, ev)
	}
	return out, dropped
}

func patchKey(e events.PatchUpdated) string {
	if e.File.ID != "" {
		return "id:" + e.File.ID
	}
	return "path:" + e.File.ChartID + "|" + e.File.Path
}
