package engine

import (
	"context"
	"fmt"

	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// SaveFile replaces a file's committed content with a direct edit and
// discards its pending change. Persistence failures fall back to the local
// edit like accept and reject do.
//
// With RejectRemaining set, the save is followed by an opportunistic
// reject-all of the active revision, which does nothing when no other file
// is pending.
func (e *Engine) SaveFile(ctx context.Context, req *SaveFileRequest) (*PatchResult, error) {
	ws := e.sess.Workspace()
	key := reconcile.Key{ID: req.FileID, ChartID: req.ChartID, Path: req.Path}

	f, _, ok := reconcile.Find(ws, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, describeRequest(&req.PatchRequest))
	}

	local := filepatch.Edit(f, req.Content)
	res := &PatchResult{File: local.File, Noop: !local.Changed}
	if !local.Changed {
		return res, nil
	}

	var persisted *state.File
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		persisted, err = e.persist.UpdateFileContent(ctx, f.ID, f.RevisionNumber, req.Content)
		return err
	})
	if err != nil {
		e.warnRemote("save", ws.ID, f.ID, f.RevisionNumber, err)
		res.Fallback = true
		res.RemoteErr = fmt.Errorf("failed to save %s: %w", f.ID, err)
	} else if persisted != nil {
		res.File = merge(f, *persisted)
	}

	if err := e.publish(ctx, ws.ID, res.File); err != nil {
		return nil, err
	}

	if req.RejectRemaining {
		if _, err := e.RejectAll(ctx, &BatchRequest{WorkspaceID: ws.ID, Trigger: TriggerOpportunistic}); err != nil {
			return nil, err
		}
	}
	return res, nil
}
