package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPaths(t *testing.T) {
	t.Run("returns paths based on home directory", func(t *testing.T) {
		t.Setenv(EnvRoot, "")

		paths, err := DefaultPaths()
		if err != nil {
			t.Fatalf("DefaultPaths failed: %v", err)
		}

		if paths.Root == "" {
			t.Error("Root should not be empty")
		}
		if paths.Workspaces != filepath.Join(paths.Root, "workspaces") {
			t.Errorf("Workspaces path incorrect: got %s", paths.Workspaces)
		}
		if paths.Database != filepath.Join(paths.Root, "chartpatch.db") {
			t.Errorf("Database path incorrect: got %s", paths.Database)
		}
		if paths.LogFile != filepath.Join(paths.Root, "chartpatch.log") {
			t.Errorf("LogFile path incorrect: got %s", paths.LogFile)
		}
		if filepath.Base(paths.Root) != ".chartpatch" {
			t.Errorf("Root should end with .chartpatch, got: %s", paths.Root)
		}
	})

	t.Run("respects CHARTPATCH_ROOT", func(t *testing.T) {
		root := t.TempDir()
		t.Setenv(EnvRoot, root)

		paths, err := DefaultPaths()
		if err != nil {
			t.Fatalf("DefaultPaths failed: %v", err)
		}
		if paths.Root != root {
			t.Errorf("Root = %s, want %s", paths.Root, root)
		}
	})
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		timeout     string
		level       string
		wantTimeout time.Duration
		wantLevel   string
		wantErr     bool
	}{
		{name: "defaults", wantTimeout: DefaultRemoteTimeout, wantLevel: DefaultLogLevel},
		{name: "overrides", timeout: "250ms", level: "debug", wantTimeout: 250 * time.Millisecond, wantLevel: "debug"},
		{name: "bad duration", timeout: "soon", wantErr: true},
		{name: "negative duration", timeout: "-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvRoot, t.TempDir())
			t.Setenv(EnvRemoteTimeout, tt.timeout)
			t.Setenv(EnvLogLevel, tt.level)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Error("Load() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.RemoteTimeout != tt.wantTimeout {
				t.Errorf("RemoteTimeout = %v, want %v", cfg.RemoteTimeout, tt.wantTimeout)
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Errorf("LogLevel = %s, want %s", cfg.LogLevel, tt.wantLevel)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", ".chartpatch")
	paths := &Paths{Root: root, Workspaces: filepath.Join(root, "workspaces")}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{paths.Root, paths.Workspaces} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Idempotent
	if err := paths.EnsureDirectories(); err != nil {
		t.Errorf("second EnsureDirectories failed: %v", err)
	}
}
