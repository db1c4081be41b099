// Package config manages chartpatch configuration and filesystem paths.
//
// Configuration includes the locations of chartpatch data, which can be
// customized via environment variables. The default root is ~/.chartpatch/
// containing workspaces/, the SQLite database and the log file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvRoot overrides the root directory.
	EnvRoot = "CHARTPATCH_ROOT"

	// EnvRemoteTimeout overrides the persistence call timeout (Go duration).
	EnvRemoteTimeout = "CHARTPATCH_REMOTE_TIMEOUT"

	// EnvLogLevel overrides the log level (debug, info, warn, error).
	EnvLogLevel = "CHARTPATCH_LOG_LEVEL"

	DefaultRemoteTimeout = 10 * time.Second
	DefaultLogLevel      = "info"
)

// Paths contains all the filesystem paths used by chartpatch.
type Paths struct {
	// Root is the base directory for all chartpatch data (default: ~/.chartpatch)
	Root string

	// Workspaces is the directory containing the local workspace cache
	Workspaces string

	// Database is the path to the SQLite persistence database
	Database string

	// LogFile is the path to the structured log file
	LogFile string
}

// Config is the resolved chartpatch configuration.
type Config struct {
	Paths         Paths
	RemoteTimeout time.Duration
	LogLevel      string
}

// DefaultPaths returns the default paths for chartpatch.
// Paths can be overridden with environment variables:
// - CHARTPATCH_ROOT: Override the root directory
func DefaultPaths() (*Paths, error) {
	root := os.Getenv(EnvRoot)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		root = filepath.Join(home, ".chartpatch")
	}

	return &Paths{
		Root:       root,
		Workspaces: filepath.Join(root, "workspaces"),
		Database:   filepath.Join(root, "chartpatch.db"),
		LogFile:    filepath.Join(root, "chartpatch.log"),
	}, nil
}

// Load resolves paths and settings from the environment.
func Load() (*Config, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Paths:         *paths,
		RemoteTimeout: DefaultRemoteTimeout,
		LogLevel:      DefaultLogLevel,
	}

	if v := os.Getenv(EnvRemoteTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvRemoteTimeout, v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be positive", EnvRemoteTimeout, v)
		}
		cfg.RemoteTimeout = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// EnsureDirectories creates all necessary directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.Root,
		p.Workspaces,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
