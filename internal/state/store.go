package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danieljhkim/chartpatch/internal/fsops"
)

// Cached is the local copy of a workspace kept between CLI invocations.
type Cached struct {
	// Workspace is the last known workspace value
	Workspace *Workspace `json:"workspace"`

	// Snapshot is the baseline for the current revision cycle, if captured
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// SyncedAt is when the workspace was last fetched from persistence
	SyncedAt time.Time `json:"syncedAt"`

	// Unsynced lists file ids whose last transition was applied locally
	// because persistence failed. They are pushed on the next sync.
	Unsynced []string `json:"unsynced,omitempty"`
}

// MarkUnsynced records file ids that need reconciliation, without duplicates.
func (c *Cached) MarkUnsynced(ids ...string) {
	seen := make(map[string]bool, len(c.Unsynced))
	for _, id := range c.Unsynced {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			c.Unsynced = append(c.Unsynced, id)
			seen[id] = true
		}
	}
}

// StateStore persists cached workspaces.
type StateStore interface {
	// Load loads the cached workspace with the given ID.
	// Returns os.ErrNotExist if it has not been cached.
	Load(id string) (*Cached, error)

	// Save saves the cached workspace atomically.
	Save(c *Cached) error

	// Delete removes the cached workspace. Missing entries are not an error.
	Delete(id string) error

	// List returns the IDs of all cached workspaces.
	List() ([]string, error)
}

// FileStateStore implements StateStore using one JSON file per workspace.
type FileStateStore struct {
	fs            fsops.FS
	workspacesDir string
}

// NewFileStateStore creates a new FileStateStore rooted at workspacesDir.
func NewFileStateStore(fs fsops.FS, workspacesDir string) *FileStateStore {
	return &FileStateStore{
		fs:            fs,
		workspacesDir: workspacesDir,
	}
}

func (s *FileStateStore) path(id string) (string, error) {
	if err := fsops.ValidateIdentifier(id); err != nil {
		return "", fmt.Errorf("invalid workspace id: %w", err)
	}
	return filepath.Join(s.workspacesDir, id+".json"), nil
}

// Load loads the cached workspace with the given ID.
func (s *FileStateStore) Load(id string) (*Cached, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read workspace cache: %w", err)
	}

	var c Cached
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace cache: %w", err)
	}
	if c.Workspace == nil {
		return nil, fmt.Errorf("%w: cache for %s has no workspace", ErrInvalidWorkspace, id)
	}

	return &c, nil
}

// Save saves the cached workspace atomically.
func (s *FileStateStore) Save(c *Cached) error {
	if c == nil || c.Workspace == nil {
		return fmt.Errorf("%w: nothing to save", ErrInvalidWorkspace)
	}
	path, err := s.path(c.Workspace.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace cache: %w", err)
	}

	if err := s.fs.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write workspace cache: %w", err)
	}

	return nil
}

// Delete removes the cached workspace.
func (s *FileStateStore) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete workspace cache: %w", err)
	}

	return nil
}

// List returns the IDs of all cached workspaces.
func (s *FileStateStore) List() ([]string, error) {
	names, err := s.fs.ReadDir(s.workspacesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace cache: %w", err)
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := strings.CutSuffix(name, ".json"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
