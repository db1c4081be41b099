package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/engine"
	"github.com/danieljhkim/chartpatch/internal/hash"
	"github.com/danieljhkim/chartpatch/internal/persist"
	"github.com/danieljhkim/chartpatch/internal/session"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// errUnavailable is returned by flakyPersistence while it is down.
var errUnavailable = errors.New("persistence unavailable")

// flakyPersistence forwards to a real store until it is taken down.
type flakyPersistence struct {
	store *persist.Store
	down  atomic.Bool
}

func (p *flakyPersistence) fail() error {
	if p.down.Load() {
		return errUnavailable
	}
	return nil
}

func (p *flakyPersistence) AcceptPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.store.AcceptPatch(ctx, fileID, rev)
}

func (p *flakyPersistence) RejectPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.store.RejectPatch(ctx, fileID, rev)
}

func (p *flakyPersistence) AcceptAllPatches(ctx context.Context, workspaceID string, rev int) ([]state.File, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.store.AcceptAllPatches(ctx, workspaceID, rev)
}

func (p *flakyPersistence) RejectAllPatches(ctx context.Context, workspaceID string, rev int) error {
	if err := p.fail(); err != nil {
		return err
	}
	return p.store.RejectAllPatches(ctx, workspaceID, rev)
}

func (p *flakyPersistence) UpdateFileContent(ctx context.Context, fileID string, rev int, content string) (*state.File, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.store.UpdateFileContent(ctx, fileID, rev, content)
}

func (p *flakyPersistence) GetWorkspace(ctx context.Context, id string) (*state.Workspace, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.store.GetWorkspace(ctx, id)
}

// memStateStore is an in-memory cache store.
type memStateStore struct {
	mu      sync.Mutex
	entries map[string]*state.Cached
}

func newMemStateStore() *memStateStore {
	return &memStateStore{entries: make(map[string]*state.Cached)}
}

func (s *memStateStore) Load(id string) (*state.Cached, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *c
	cp.Workspace = c.Workspace.Clone()
	cp.Unsynced = append([]string(nil), c.Unsynced...)
	return &cp, nil
}

func (s *memStateStore) Save(c *state.Cached) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Workspace = c.Workspace.Clone()
	cp.Unsynced = append([]string(nil), c.Unsynced...)
	s.entries[c.Workspace.ID] = &cp
	return nil
}

func (s *memStateStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memStateStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ state.StateStore = (*memStateStore)(nil)

// testEnv is a store, a session over one of its workspaces, and an engine
// bound to both.
type testEnv struct {
	store  *persist.Store
	remote *flakyPersistence
	sess   *session.Session
	eng    *engine.Engine
	clock  *clock.FakeClock
	ws     *state.Workspace
}

func openStore(t *testing.T, clk clock.Clock) *persist.Store {
	t.Helper()
	s, err := persist.Open(filepath.Join(t.TempDir(), "chartpatch.db"), clk)
	if err != nil {
		t.Fatalf("persist.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// setupTestEnv creates a workspace with one chart, lets seed record pending
// changes, and starts a session on the result.
func setupTestEnv(t *testing.T, seed func(ctx context.Context, s *persist.Store, ws *state.Workspace)) *testEnv {
	t.Helper()
	ctx := context.Background()

	clk := clock.NewFakeClock(testTime)
	store := openStore(t, clk)
	ws, err := store.CreateWorkspace(ctx, "demo", "web")
	if err != nil {
		t.Fatalf("CreateWorkspace() error = %v", err)
	}
	if seed != nil {
		seed(ctx, store, ws)
	}

	env := &testEnv{store: store, remote: &flakyPersistence{store: store}, clock: clk}
	env.start(t, ws.ID, nil)
	return env
}

// start runs a session over the stored workspace.
func (env *testEnv) start(t *testing.T, workspaceID string, snap *state.Snapshot) {
	t.Helper()

	ws, err := env.store.GetWorkspace(context.Background(), workspaceID)
	if err != nil {
		t.Fatalf("GetWorkspace() error = %v", err)
	}
	env.ws = ws

	sess := session.New(ws.Clone(), session.Options{Clock: env.clock, Hasher: hash.NewSHA256Hasher(), Snapshot: snap})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		sess.Close()
	})

	env.sess = sess
	env.eng = engine.New(env.remote, env.remote, sess, nil, engine.Options{
		RemoteTimeout: time.Second,
		Clock:         env.clock,
	})
}

func mustSetPending(t *testing.T, ctx context.Context, s *persist.Store, ws *state.Workspace, chartID, path string, rev int, pending string) *state.File {
	t.Helper()
	f, err := s.SetPendingContent(ctx, ws.ID, chartID, path, rev, pending)
	if err != nil {
		t.Fatalf("SetPendingContent(%s) error = %v", path, err)
	}
	return f
}
