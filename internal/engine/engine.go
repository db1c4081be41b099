// Package engine provides the review operations of chartpatch.
//
// The engine sits between callers (CLI, review loop) and two collaborators:
// a remote Persistence layer and the Session that owns the in-memory
// workspace. Every operation computes the local transition first, asks
// persistence to perform it under a bounded wait, and then feeds the
// authoritative result, or the local one when persistence failed, into the
// session. A remote failure therefore never leaves a file stuck pending.
//
// Key components:
//   - AcceptPatch/RejectPatch: single-file transitions
//   - AcceptAll/RejectAll: batch transitions for one revision
//   - SaveFile: direct edits of committed content
//   - Sync: pushes locally applied transitions and refreshes the workspace
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/session"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// DefaultRemoteTimeout bounds a persistence call when Options leaves it unset.
const DefaultRemoteTimeout = 10 * time.Second

// Persistence is the remote store of file review state.
type Persistence interface {
	// AcceptPatch commits the pending content of a file.
	AcceptPatch(ctx context.Context, fileID string, revision int) (*state.File, error)

	// RejectPatch discards the pending content of a file.
	RejectPatch(ctx context.Context, fileID string, revision int) (*state.File, error)

	// AcceptAllPatches commits every pending file of a revision.
	AcceptAllPatches(ctx context.Context, workspaceID string, revision int) ([]state.File, error)

	// RejectAllPatches discards every pending file of a revision.
	RejectAllPatches(ctx context.Context, workspaceID string, revision int) error

	// UpdateFileContent replaces the committed content and clears pending.
	UpdateFileContent(ctx context.Context, fileID string, revision int, content string) (*state.File, error)
}

// WorkspaceGetter fetches the authoritative workspace, including the
// revision flags that batch operations can flip.
type WorkspaceGetter interface {
	GetWorkspace(ctx context.Context, workspaceID string) (*state.Workspace, error)
}

// Dispatcher is the session the engine reads from and feeds results into.
type Dispatcher interface {
	Workspace() *state.Workspace
	Snapshot() *state.Snapshot
	Dispatch(ctx context.Context, ev events.Event) (session.Outcome, error)
}

// Options configures an Engine.
type Options struct {
	// RemoteTimeout bounds each persistence call
	RemoteTimeout time.Duration

	Clock clock.Clock
}

// Engine runs review operations against a session.
type Engine struct {
	persist Persistence
	getter  WorkspaceGetter
	sess    Dispatcher
	logger  *zap.Logger
	clock   clock.Clock
	timeout time.Duration
}

// New creates a new Engine with the given dependencies.
func New(
	persist Persistence,
	getter WorkspaceGetter,
	sess Dispatcher,
	logger *zap.Logger,
	opts Options,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = DefaultRemoteTimeout
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}

	return &Engine{
		persist: persist,
		getter:  getter,
		sess:    sess,
		logger:  logger,
		clock:   opts.Clock,
		timeout: opts.RemoteTimeout,
	}
}

// remote runs fn with the remote timeout applied. The wait is bounded even
// when fn ignores its context; a late result is discarded.
func (e *Engine) remote(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.clock.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		e.logger.Debug("remote call finished", zap.Duration("elapsed", e.clock.Now().Sub(start)))
		return err
	case <-ctx.Done():
		return fmt.Errorf("remote call abandoned: %w", ctx.Err())
	}
}

func (e *Engine) warnRemote(op, workspaceID, fileID string, revision int, err error) {
	e.logger.Warn("remote persistence failed, applying locally",
		zap.String("op", op),
		zap.String("workspace_id", workspaceID),
		zap.String("file_id", fileID),
		zap.Int("revision", revision),
		zap.Error(err))
}
