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

// AcceptAll accepts every pending file of a revision.
//
// Algorithm steps:
// 1. Collect pending files of the revision (loose and in charts)
// 2. With none: error for a user trigger, no-op for an opportunistic one
// 3. Try the bulk persistence call
// 4. If it fails, transition file by file, each with its own local fallback
// 5. Feed every new file value into the session
// 6. Re-fetch revision state, since accepting can finalize the revision
func (e *Engine) AcceptAll(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	return e.batch(ctx, req, acceptOp, func(ctx context.Context, wsID string, rev int) ([]state.File, error) {
		return e.persist.AcceptAllPatches(ctx, wsID, rev)
	})
}

// RejectAll rejects every pending file of a revision. It follows the same
// steps as AcceptAll.
func (e *Engine) RejectAll(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	return e.batch(ctx, req, rejectOp, func(ctx context.Context, wsID string, rev int) ([]state.File, error) {
		return nil, e.persist.RejectAllPatches(ctx, wsID, rev)
	})
}

type bulkFunc func(ctx context.Context, workspaceID string, revision int) ([]state.File, error)

func (e *Engine) batch(ctx context.Context, req *BatchRequest, o op, bulk bulkFunc) (*BatchResult, error) {
	ws := e.sess.Workspace()
	if req.WorkspaceID != "" && req.WorkspaceID != ws.ID {
		return nil, fmt.Errorf("%w: session owns %s, request is for %s", ErrWorkspaceMismatch, ws.ID, req.WorkspaceID)
	}

	rev := ws.ActiveRevision()
	if req.RevisionNumber != nil {
		rev = *req.RevisionNumber
	}

	pending := reconcile.PendingFiles(ws, rev)
	result := &BatchResult{RevisionNumber: rev}
	if len(pending) == 0 {
		if req.Trigger == TriggerOpportunistic {
			return result, nil
		}
		return nil, fmt.Errorf("%w: %s at revision %d", ErrNoPendingPatches, ws.ID, rev)
	}

	var persisted []state.File
	bulkErr := e.remote(ctx, func(ctx context.Context) error {
		var err error
		persisted, err = bulk(ctx, ws.ID, rev)
		return err
	})

	if bulkErr == nil {
		byID := make(map[string]state.File, len(persisted))
		for _, f := range persisted {
			byID[f.ID] = f
		}
		for _, f := range pending {
			next := o.local(f).File
			if p, ok := byID[f.ID]; ok {
				next = merge(f, p)
			}
			if err := e.publish(ctx, ws.ID, next); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, next)
		}
	} else {
		e.logger.Warn("bulk persistence failed, processing files individually",
			zap.String("op", o.name+"-all"),
			zap.String("workspace_id", ws.ID),
			zap.Int("revision", rev),
			zap.Int("files", len(pending)),
			zap.Error(bulkErr))
		result.BulkFallback = true
		result.Err = multierr.Append(result.Err, fmt.Errorf("failed to %s all: %w", o.name, bulkErr))

		for _, f := range pending {
			res := e.transition(ctx, ws.ID, f, o)
			if res.Fallback {
				result.Fallback = append(result.Fallback, f.ID)
				result.Err = multierr.Append(result.Err, res.RemoteErr)
			}
			if err := e.publish(ctx, ws.ID, res.File); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, res.File)
		}
	}

	result.Refreshed = e.refreshRevision(ctx, ws.ID)
	return result, nil
}

// refreshRevision re-fetches the workspace and applies only its revision
// flags, so locally applied fallbacks are not overwritten.
func (e *Engine) refreshRevision(ctx context.Context, workspaceID string) bool {
	var fresh *state.Workspace
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		fresh, err = e.getter.GetWorkspace(ctx, workspaceID)
		return err
	})
	if err != nil {
		e.logger.Warn("failed to refresh revision state",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		return false
	}

	ev := events.RevisionStateRefreshed{
		Workspace:                workspaceID,
		CurrentRevisionNumber:    fresh.CurrentRevisionNumber,
		IncompleteRevisionNumber: fresh.IncompleteRevisionNumber,
	}
	if _, err := e.sess.Dispatch(ctx, ev); err != nil {
		e.logger.Warn("failed to apply revision state",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		return false
	}
	return true
}
