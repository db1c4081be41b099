package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/config"
	"github.com/danieljhkim/chartpatch/internal/engine"
	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/logging"
	"github.com/danieljhkim/chartpatch/internal/persist"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/session"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	_ engine.Persistence     = (*persist.Store)(nil)
	_ engine.WorkspaceGetter = (*persist.Store)(nil)
	_ engine.Dispatcher      = (*session.Session)(nil)
)

// app holds the real implementations of every collaborator.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *persist.Store
	cache  state.StateStore
	clock  clock.Clock
}

// newApp loads configuration and opens the database, cache and log file.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if remoteTimeout > 0 {
		cfg.RemoteTimeout = remoteTimeout
	}

	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Paths.LogFile)
	if err != nil {
		return nil, err
	}

	clk := &clock.RealClock{}
	store, err := persist.Open(cfg.Paths.Database, clk)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		cache:  state.NewFileStateStore(fsops.NewRealFS(), cfg.Paths.Workspaces),
		clock:  clk,
	}, nil
}

// Close releases the database and flushes logs.
func (a *app) Close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}

// reviewSession is an engine bound to a running session for one workspace.
type reviewSession struct {
	app    *app
	sess   *session.Session
	eng    *engine.Engine
	cached *state.Cached
	stop   func()
}

// openSession starts a session for workspaceID.
//
// Algorithm steps:
// 1. Load the local cache entry, if any
// 2. Fetch the workspace from persistence, falling back to the cache
// 3. Overlay files whose last transition never reached persistence
// 4. Restore the cached snapshot when it belongs to the active revision
// 5. Start the session loop and bind an engine to it
func (a *app) openSession(ctx context.Context, workspaceID string) (*reviewSession, error) {
	cached, err := a.cache.Load(workspaceID)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	ws, err := a.store.GetWorkspace(ctx, workspaceID)
	switch {
	case err == nil:
	case errors.Is(err, persist.ErrNotFound):
		return nil, err
	case cached != nil && cached.Workspace != nil:
		a.logger.Warn("persistence unavailable, using cached workspace",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		ws = cached.Workspace.Clone()
	default:
		return nil, err
	}

	if cached == nil {
		cached = &state.Cached{SyncedAt: a.clock.Now()}
	}
	if cached.Workspace != nil {
		for _, id := range cached.Unsynced {
			f, _, ok := reconcile.Find(cached.Workspace, reconcile.Key{ID: id})
			if !ok {
				continue
			}
			if next, err := reconcile.ReplaceFile(ws, f); err == nil {
				ws = next
			}
		}
	}

	var snap *state.Snapshot
	if s := cached.Snapshot; s != nil && ws.HasIncompleteRevision() && s.RevisionNumber == ws.ActiveRevision() {
		snap = s
	}

	sess := session.New(ws, session.Options{Logger: a.logger, Clock: a.clock, Snapshot: snap})
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(runCtx) }()

	eng := engine.New(a.store, a.store, sess, a.logger, engine.Options{
		RemoteTimeout: a.cfg.RemoteTimeout,
		Clock:         a.clock,
	})

	return &reviewSession{
		app:    a,
		sess:   sess,
		eng:    eng,
		cached: cached,
		stop: func() {
			cancel()
			<-done
			sess.Close()
		},
	}, nil
}

// save writes the session state to the cache, recording files that were
// only transitioned locally.
func (r *reviewSession) save(unsynced ...string) error {
	r.cached.Workspace = r.sess.Workspace()
	r.cached.Snapshot = r.sess.Snapshot()
	r.cached.MarkUnsynced(unsynced...)
	if err := r.app.cache.Save(r.cached); err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	return nil
}

// Close stops the session loop.
func (r *reviewSession) Close() {
	r.stop()
}

// patchRequest resolves a file argument: a file id when one matches,
// otherwise a path scoped to chartID.
func patchRequest(ws *state.Workspace, arg, chartID string) engine.PatchRequest {
	if _, _, ok := reconcile.Find(ws, reconcile.Key{ID: arg}); ok {
		return engine.PatchRequest{FileID: arg}
	}
	return engine.PatchRequest{ChartID: chartID, Path: arg}
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
