package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/config"
	"github.com/danieljhkim/chartpatch/internal/events"
	"github.com/danieljhkim/chartpatch/internal/persist"
	"github.com/danieljhkim/chartpatch/internal/state"
)

// setupTestEnv points the CLI at a temporary root and returns it.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv(config.EnvRoot, root)
	t.Setenv(config.EnvLogLevel, "debug")
	return root
}

// runCLI executes the root command with fresh flag values and returns
// captured stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)

	var err error
	out := captureStdout(t, func() {
		err = rootCmd.Execute()
	})
	return out, err
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}

func createWorkspace(t *testing.T, charts ...string) *state.Workspace {
	t.Helper()
	args := []string{"workspace", "create", "demo", "--json"}
	for _, c := range charts {
		args = append(args, "--chart", c)
	}
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("workspace create failed: %v", err)
	}
	var ws state.Workspace
	if err := json.Unmarshal([]byte(out), &ws); err != nil {
		t.Fatalf("workspace create produced invalid JSON: %v\n%s", err, out)
	}
	return &ws
}

func openStore(t *testing.T, root string) *persist.Store {
	t.Helper()
	s, err := persist.Open(filepath.Join(root, "chartpatch.db"), &clock.RealClock{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkspaceCreateAndList(t *testing.T) {
	setupTestEnv(t)

	ws := createWorkspace(t, "web", "db")
	if len(ws.Charts) != 2 {
		t.Fatalf("expected 2 charts, got %d", len(ws.Charts))
	}

	out, err := runCLI(t, "workspace", "ls", "--json")
	if err != nil {
		t.Fatalf("workspace ls failed: %v", err)
	}
	var list []persist.Summary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("workspace ls produced invalid JSON: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].ID != ws.ID {
		t.Errorf("unexpected workspace list: %+v", list)
	}
}

func TestAcceptCommand_AppliesPendingContent(t *testing.T) {
	root := setupTestEnv(t)
	ws := createWorkspace(t, "web")
	chartID := ws.Charts[0].ID

	content := writeFile(t, t.TempDir(), "deploy.yaml", "replicas: 3\n")
	if _, err := runCLI(t, "pending", "set", ws.ID, "deploy.yaml", "--chart", chartID, "--content", content); err != nil {
		t.Fatalf("pending set failed: %v", err)
	}

	out, err := runCLI(t, "accept", ws.ID, "deploy.yaml", "--chart", chartID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if !strings.Contains(out, "accepted deploy.yaml") {
		t.Errorf("unexpected accept output:\n%s", out)
	}

	got, err := openStore(t, root).GetWorkspace(context.Background(), ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace failed: %v", err)
	}
	f := got.Charts[0].Files[0]
	if f.Content != "replicas: 3\n" || f.HasPending() {
		t.Errorf("unexpected file after accept: %+v", f)
	}
	if got.CurrentRevisionNumber != 1 || got.HasIncompleteRevision() {
		t.Errorf("expected revision 1 to be finalized, got current=%d incomplete=%v",
			got.CurrentRevisionNumber, got.IncompleteRevisionNumber)
	}
}

func TestAcceptAllCommand_AppliesDiffs(t *testing.T) {
	root := setupTestEnv(t)
	ws := createWorkspace(t)
	dir := t.TempDir()

	// revision 1: two new loose files
	for name, body := range map[string]string{"a.yaml": "one\ntwo\n", "b.yaml": "x\n"} {
		p := writeFile(t, dir, name, body)
		if _, err := runCLI(t, "pending", "set", ws.ID, name, "--content", p); err != nil {
			t.Fatalf("pending set %s failed: %v", name, err)
		}
	}
	if _, err := runCLI(t, "accept-all", ws.ID); err != nil {
		t.Fatalf("accept-all failed: %v", err)
	}

	// revision 2: a diff against a.yaml
	diff := writeFile(t, dir, "a.patch", "--- a/a.yaml\n+++ b/a.yaml\n@@ -1,2 +1,2 @@\n one\n-two\n+three\n")
	if _, err := runCLI(t, "pending", "set", ws.ID, "a.yaml", "--patch", diff); err != nil {
		t.Fatalf("pending set diff failed: %v", err)
	}

	out, err := runCLI(t, "accept-all", ws.ID, "--json")
	if err != nil {
		t.Fatalf("accept-all failed: %v", err)
	}
	var view map[string]any
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("accept-all produced invalid JSON: %v\n%s", err, out)
	}
	if view["revisionNumber"] != float64(2) {
		t.Errorf("revisionNumber = %v, want 2", view["revisionNumber"])
	}

	got, err := openStore(t, root).GetWorkspace(context.Background(), ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace failed: %v", err)
	}
	for _, f := range got.Files {
		if f.Path == "a.yaml" && f.Content != "one\nthree\n" {
			t.Errorf("a.yaml = %q, want %q", f.Content, "one\nthree\n")
		}
	}
	if got.CurrentRevisionNumber != 2 {
		t.Errorf("CurrentRevisionNumber = %d, want 2", got.CurrentRevisionNumber)
	}
}

func TestAcceptAllCommand_NothingPending(t *testing.T) {
	setupTestEnv(t)
	ws := createWorkspace(t)

	if _, err := runCLI(t, "accept-all", ws.ID); err == nil {
		t.Error("expected error when no file is pending")
	}

	out, err := runCLI(t, "accept-all", ws.ID, "--if-pending")
	if err != nil {
		t.Fatalf("accept-all --if-pending failed: %v", err)
	}
	if !strings.Contains(out, "No pending files") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRejectCommand_KeepsContent(t *testing.T) {
	root := setupTestEnv(t)
	ws := createWorkspace(t)
	dir := t.TempDir()

	p := writeFile(t, dir, "values.yaml", "image: v1\n")
	if _, err := runCLI(t, "pending", "set", ws.ID, "values.yaml", "--content", p); err != nil {
		t.Fatalf("pending set failed: %v", err)
	}
	if _, err := runCLI(t, "accept", ws.ID, "values.yaml"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	p = writeFile(t, dir, "values2.yaml", "image: v2\n")
	if _, err := runCLI(t, "pending", "set", ws.ID, "values.yaml", "--content", p); err != nil {
		t.Fatalf("pending set failed: %v", err)
	}
	if _, err := runCLI(t, "reject", ws.ID, "values.yaml"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	got, err := openStore(t, root).GetWorkspace(context.Background(), ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace failed: %v", err)
	}
	if f := got.Files[0]; f.Content != "image: v1\n" || f.HasPending() {
		t.Errorf("unexpected file after reject: %+v", f)
	}
}

func TestDiffCommand_ShowsPending(t *testing.T) {
	setupTestEnv(t)
	ws := createWorkspace(t)

	p := writeFile(t, t.TempDir(), "values.yaml", "a: 1\nb: 2\n")
	if _, err := runCLI(t, "pending", "set", ws.ID, "values.yaml", "--content", p); err != nil {
		t.Fatalf("pending set failed: %v", err)
	}

	out, err := runCLI(t, "diff", ws.ID, "--name-only")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if strings.TrimSpace(out) != "values.yaml" {
		t.Errorf("diff --name-only = %q", out)
	}
}

func TestPendingSetCommand_InvalidArgs(t *testing.T) {
	setupTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing source", []string{"pending", "set", "ws", "a.yaml"}},
		{"both sources", []string{"pending", "set", "ws", "a.yaml", "--patch", "x", "--content", "y"}},
		{"missing path", []string{"pending", "set", "ws"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAcceptCommand_UnknownWorkspace(t *testing.T) {
	setupTestEnv(t)

	if _, err := runCLI(t, "accept", "missing", "a.yaml"); err == nil {
		t.Error("expected error for unknown workspace")
	}
}

func TestPatchStatCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "one\ntwo\n")
	b := writeFile(t, dir, "b.txt", "one\nthree\nfour\n")

	out, err := runCLI(t, "patch", "stat", a, b, "--json")
	if err != nil {
		t.Fatalf("patch stat failed: %v", err)
	}
	var stats map[string]int
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("patch stat produced invalid JSON: %v\n%s", err, out)
	}
	if stats["additions"] != 2 || stats["deletions"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestCommandHelp(t *testing.T) {
	commands := [][]string{
		{"workspace"}, {"pending", "set"}, {"accept"}, {"accept-all"},
		{"diff"}, {"save"}, {"review"}, {"events", "replay"}, {"patch", "apply"},
	}

	for _, cmd := range commands {
		t.Run(strings.Join(cmd, " "), func(t *testing.T) {
			out, err := runCLI(t, append(cmd, "--help")...)
			if err != nil {
				t.Errorf("Execute() for %v --help error = %v", cmd, err)
			}
			if out == "" {
				t.Errorf("expected help output for %v, got empty", cmd)
			}
		})
	}
}

func TestEventsReplayCommand(t *testing.T) {
	root := setupTestEnv(t)
	ws := createWorkspace(t)

	pending := "image: v2\n"
	data, err := events.Encode(events.PatchUpdated{
		Workspace:      ws.ID,
		RevisionNumber: 1,
		File:           events.FilePayload{Path: "values.yaml", ContentPending: &pending},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	backlog := writeFile(t, t.TempDir(), "events.jsonl", string(data)+"\n{not json}\n")

	out, err := runCLI(t, "events", "replay", ws.ID, backlog, "--json")
	if err != nil {
		t.Fatalf("events replay failed: %v", err)
	}
	var view map[string]any
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("events replay produced invalid JSON: %v\n%s", err, out)
	}
	if view["decoded"] != float64(1) || view["persisted"] != float64(1) {
		t.Errorf("unexpected replay output: %v", view)
	}

	got, err := openStore(t, root).GetWorkspace(context.Background(), ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace failed: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0].Pending() != pending {
		t.Errorf("unexpected files after replay: %+v", got.Files)
	}

	if _, err := runCLI(t, "events", "replay", ws.ID, filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for a missing events file")
	}
}
