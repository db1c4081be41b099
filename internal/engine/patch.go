package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// op is one direction of the review state machine plus its remote call.
type op struct {
	name   string
	local  func(state.File) filepatch.Transition
	remote func(p Persistence, ctx context.Context, fileID string, rev int) (*state.File, error)
}

var (
	acceptOp = op{
		name:  "accept",
		local: filepatch.Accept,
		remote: func(p Persistence, ctx context.Context, fileID string, rev int) (*state.File, error) {
			return p.AcceptPatch(ctx, fileID, rev)
		},
	}
	rejectOp = op{
		name:  "reject",
		local: filepatch.Reject,
		remote: func(p Persistence, ctx context.Context, fileID string, rev int) (*state.File, error) {
			return p.RejectPatch(ctx, fileID, rev)
		},
	}
)

// AcceptPatch accepts the pending change of one file.
//
// Algorithm steps:
// 1. Look the file up in the session workspace (id, then path)
// 2. Return a no-op result if nothing is pending
// 3. Compute the local transition
// 4. Ask persistence to accept, bounded by the remote timeout
// 5. Feed the persisted file, or the local one on failure, into the session
func (e *Engine) AcceptPatch(ctx context.Context, req *PatchRequest) (*PatchResult, error) {
	return e.single(ctx, req, acceptOp)
}

// RejectPatch rejects the pending change of one file. It follows the same
// steps as AcceptPatch.
func (e *Engine) RejectPatch(ctx context.Context, req *PatchRequest) (*PatchResult, error) {
	return e.single(ctx, req, rejectOp)
}

func (e *Engine) single(ctx context.Context, req *PatchRequest, o op) (*PatchResult, error) {
	ws := e.sess.Workspace()
	key := reconcile.Key{ID: req.FileID, ChartID: req.ChartID, Path: req.Path}

	f, _, ok := reconcile.Find(ws, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, describeRequest(req))
	}
	if !f.HasPending() {
		return &PatchResult{File: f, Noop: true}, nil
	}

	res := e.transition(ctx, ws.ID, f, o)
	if err := e.publish(ctx, ws.ID, res.File); err != nil {
		return nil, err
	}
	return res, nil
}

// transition performs one file's transition remotely, falling back to the
// local result. It never fails: the remote error is kept on the result.
func (e *Engine) transition(ctx context.Context, workspaceID string, f state.File, o op) *PatchResult {
	local := o.local(f)
	res := &PatchResult{File: local.File, Applied: local.Applied}

	if local.Applied != nil && len(local.Applied.Warnings) > 0 {
		e.logger.Debug("patch applied with warnings",
			zap.String("file_id", f.ID),
			zap.String("strategy", local.Applied.Strategy),
			zap.Strings("warnings", local.Applied.Warnings))
	}

	var persisted *state.File
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		persisted, err = o.remote(e.persist, ctx, f.ID, f.RevisionNumber)
		return err
	})
	if err != nil {
		e.warnRemote(o.name, workspaceID, f.ID, f.RevisionNumber, err)
		res.Fallback = true
		res.RemoteErr = fmt.Errorf("failed to %s %s: %w", o.name, f.ID, err)
		return res
	}

	if persisted != nil {
		res.File = merge(f, *persisted)
	}
	return res
}

// publish feeds a file value into the session.
func (e *Engine) publish(ctx context.Context, workspaceID string, f state.File) error {
	if _, err := e.sess.Dispatch(ctx, events.FileReplaced{Workspace: workspaceID, File: f}); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// merge fills location fields persistence may leave empty.
func merge(local, persisted state.File) state.File {
	if persisted.ID == "" {
		persisted.ID = local.ID
	}
	if persisted.Path == "" {
		persisted.Path = local.Path
	}
	if persisted.ChartID == "" {
		persisted.ChartID = local.ChartID
	}
	return persisted
}

func describeRequest(req *PatchRequest) string {
	switch {
	case req.FileID != "":
		return "id " + req.FileID
	case req.ChartID != "":
		return fmt.Sprintf("path %s in chart %s", req.Path, req.ChartID)
	default:
		return "path " + req.Path
	}
}
