package state

import "github.com/google/uuid"

// fileNamespace scopes derived file ids.
var fileNamespace = uuid.MustParse("0b6f4c3e-2f55-4a8e-9a0b-6d1f3c2e7a10")

// NewID returns a random identifier for a workspace, chart or file.
func NewID() string {
	return uuid.NewString()
}

// DeriveFileID computes a stable id for a file that arrived without one.
// The same workspace, chart and path always yield the same id, so repeated
// events for a not-yet-persisted file land on a single entry.
func DeriveFileID(workspaceID, chartID, path string) string {
	return uuid.NewSHA1(fileNamespace, []byte(workspaceID+"|"+chartID+"|"+path)).String()
}
