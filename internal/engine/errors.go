package engine

import "errors"

var (
	// ErrNoPendingPatches indicates a user-initiated batch found nothing to do.
	ErrNoPendingPatches = errors.New("no pending patches")

	// ErrFileNotFound indicates the requested file is not in the workspace.
	ErrFileNotFound = errors.New("file not found")

	// ErrWorkspaceMismatch indicates a request for a workspace the session does not own.
	ErrWorkspaceMismatch = errors.New("workspace mismatch")
)
