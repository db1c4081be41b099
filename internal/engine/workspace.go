package engine

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// Sync reconciles the session with persistence.
//
// Algorithm steps:
// 1. Push the committed content of every unsynced file (clears remote pending)
// 2. Fetch the authoritative workspace
// 3. If every push succeeded, replace the session workspace wholesale
// 4. Otherwise apply only the revision flags, keeping local fallbacks
func (e *Engine) Sync(ctx context.Context, req *SyncRequest) (*SyncResult, error) {
	ws := e.sess.Workspace()
	if req.WorkspaceID != "" && req.WorkspaceID != ws.ID {
		return nil, fmt.Errorf("%w: session owns %s, request is for %s", ErrWorkspaceMismatch, ws.ID, req.WorkspaceID)
	}

	result := &SyncResult{}
	for _, id := range req.Unsynced {
		f, _, ok := reconcile.Find(ws, reconcile.Key{ID: id})
		if !ok {
			e.logger.Debug("unsynced file no longer in workspace", zap.String("file_id", id))
			continue
		}

		err := e.remote(ctx, func(ctx context.Context) error {
			_, err := e.persist.UpdateFileContent(ctx, f.ID, f.RevisionNumber, f.Content)
			return err
		})
		if err != nil {
			e.warnRemote("sync", ws.ID, f.ID, f.RevisionNumber, err)
			result.Remaining = append(result.Remaining, id)
			result.Err = multierr.Append(result.Err, fmt.Errorf("failed to push %s: %w", id, err))
			continue
		}
		result.Pushed = append(result.Pushed, id)
	}

	var fresh *state.Workspace
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		fresh, err = e.getter.GetWorkspace(ctx, ws.ID)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to fetch workspace: %w", err)
	}

	var ev events.Event = events.WorkspaceReplaced{Workspace: fresh}
	if len(result.Remaining) > 0 {
		ev = events.RevisionStateRefreshed{
			Workspace:                ws.ID,
			CurrentRevisionNumber:    fresh.CurrentRevisionNumber,
			IncompleteRevisionNumber: fresh.IncompleteRevisionNumber,
		}
	}
	if _, err := e.sess.Dispatch(ctx, ev); err != nil {
		return result, fmt.Errorf("failed to update session: %w", err)
	}
	result.Replaced = len(result.Remaining) == 0
	return result, nil
}

// Status summarizes pending review state of the session workspace.
func (e *Engine) Status(ctx context.Context) (*StatusResult, error) {
	ws := e.sess.Workspace()
	stats := reconcile.Stats(ws, e.sess.Snapshot())
	return &StatusResult{
		Workspace: ws,
		Pending:   reconcile.PendingFiles(ws, -1),
		Stats:     stats,
		Total:     reconcile.Total(stats),
	}, nil
}
