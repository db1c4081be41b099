package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/hash"
	"github.com/danieljhkim/chartpatch/internal/reconcile"
	"github.com/danieljhkim/chartpatch/internal/session"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var testTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// mockPersistence is an in-memory Persistence and WorkspaceGetter.
type mockPersistence struct {
	mu sync.Mutex

	ws       *state.Workspace
	failFile map[string]error
	bulkErr  error
	getErr   error
	delay    time.Duration

	calls []string
}

func newMockPersistence(ws *state.Workspace) *mockPersistence {
	return &mockPersistence{ws: ws.Clone(), failFile: make(map[string]error)}
}

func (m *mockPersistence) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockPersistence) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockPersistence) step(ctx context.Context, call, fileID string, fn func(state.File) state.File) (*state.File, error) {
	m.record(call + ":" + fileID)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFile[fileID]; err != nil {
		return nil, err
	}
	f, _, ok := reconcile.Find(m.ws, reconcile.Key{ID: fileID})
	if !ok {
		return nil, fmt.Errorf("no file %s", fileID)
	}
	next := fn(f)
	ws, err := reconcile.ReplaceFile(m.ws, next)
	if err != nil {
		return nil, err
	}
	m.ws = ws
	return &next, nil
}

func (m *mockPersistence) AcceptPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	return m.step(ctx, "accept", fileID, func(f state.File) state.File {
		f.Content = f.Pending()
		f.ContentPending = nil
		return f
	})
}

func (m *mockPersistence) RejectPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	return m.step(ctx, "reject", fileID, func(f state.File) state.File {
		f.ContentPending = nil
		return f
	})
}

func (m *mockPersistence) UpdateFileContent(ctx context.Context, fileID string, rev int, content string) (*state.File, error) {
	return m.step(ctx, "update", fileID, func(f state.File) state.File {
		f.Content = content
		f.ContentPending = nil
		return f
	})
}

func (m *mockPersistence) AcceptAllPatches(ctx context.Context, wsID string, rev int) ([]state.File, error) {
	m.record("accept-all")
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	var out []state.File
	for _, f := range reconcile.PendingFiles(m.ws, rev) {
		next, err := m.AcceptPatch(ctx, f.ID, rev)
		if err != nil {
			return nil, err
		}
		out = append(out, *next)
	}
	m.finalize()
	return out, nil
}

func (m *mockPersistence) RejectAllPatches(ctx context.Context, wsID string, rev int) error {
	m.record("reject-all")
	if m.bulkErr != nil {
		return m.bulkErr
	}
	for _, f := range reconcile.PendingFiles(m.ws, rev) {
		if _, err := m.RejectPatch(ctx, f.ID, rev); err != nil {
			return err
		}
	}
	m.finalize()
	return nil
}

func (m *mockPersistence) finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws.IncompleteRevisionNumber != nil {
		m.ws.CurrentRevisionNumber = *m.ws.IncompleteRevisionNumber
		m.ws.IncompleteRevisionNumber = nil
	}
}

func (m *mockPersistence) GetWorkspace(ctx context.Context, id string) (*state.Workspace, error) {
	m.record("get")
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ws.Clone(), nil
}

func pendingWorkspace() *state.Workspace {
	incomplete := 2
	return &state.Workspace{
		ID:                       "ws-1",
		CurrentRevisionNumber:    1,
		IncompleteRevisionNumber: &incomplete,
		UpdatedAt:                testTime.Add(-time.Hour),
		Charts: []state.Chart{
			{
				ID:             "c-web",
				RevisionNumber: 2,
				Files: []state.File{
					{ID: "f-1", ChartID: "c-web", Path: "Chart.yaml", RevisionNumber: 2, Content: "name: web\n", ContentPending: strPtr("name: web\nversion: 2\n")},
					{ID: "f-2", ChartID: "c-web", Path: "values.yaml", RevisionNumber: 2, Content: "replicas: 1\n", ContentPending: strPtr("replicas: 3\n")},
					{ID: "f-3", ChartID: "c-web", Path: "templates/svc.yaml", RevisionNumber: 2, Content: "", ContentPending: strPtr("kind: Service\n")},
				},
			},
		},
	}
}

func setupEngine(t *testing.T, ws *state.Workspace, opts Options) (*Engine, *mockPersistence, *session.Session) {
	t.Helper()

	mock := newMockPersistence(ws)
	sess := session.New(ws, session.Options{Clock: clock.NewFakeClock(testTime), Hasher: hash.NewFakeHasher()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		sess.Close()
	})

	if opts.Clock == nil {
		opts.Clock = clock.NewFakeClock(testTime)
	}
	return New(mock, mock, sess, nil, opts), mock, sess
}

func fileByID(t *testing.T, ws *state.Workspace, id string) state.File {
	t.Helper()
	f, _, ok := reconcile.Find(ws, reconcile.Key{ID: id})
	if !ok {
		t.Fatalf("file %s not found", id)
	}
	return f
}

func TestAcceptPatch_Remote(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})

	res, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "f-2"})
	if err != nil {
		t.Fatalf("AcceptPatch() error = %v", err)
	}
	if res.Fallback || res.Noop {
		t.Errorf("AcceptPatch() fallback=%v noop=%v, want false/false", res.Fallback, res.Noop)
	}

	got := fileByID(t, sess.Workspace(), "f-2")
	if got.HasPending() || got.Content != "replicas: 3\n" {
		t.Errorf("session file = %+v, want accepted", got)
	}
	remote := fileByID(t, mock.ws, "f-2")
	if remote.HasPending() {
		t.Error("remote file still pending")
	}
}

func TestAcceptPatch_ByPath(t *testing.T) {
	eng, _, sess := setupEngine(t, pendingWorkspace(), Options{})

	_, err := eng.AcceptPatch(context.Background(), &PatchRequest{ChartID: "c-web", Path: "values.yaml"})
	if err != nil {
		t.Fatalf("AcceptPatch() error = %v", err)
	}
	if fileByID(t, sess.Workspace(), "f-2").HasPending() {
		t.Error("file still pending after accept by path")
	}
}

func TestRejectPatch_FallbackOnRemoteError(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})
	mock.failFile["f-1"] = errors.New("backend unavailable")

	res, err := eng.RejectPatch(context.Background(), &PatchRequest{FileID: "f-1"})
	if err != nil {
		t.Fatalf("RejectPatch() error = %v, want nil", err)
	}
	if !res.Fallback {
		t.Error("RejectPatch() Fallback = false, want true")
	}
	if res.RemoteErr == nil {
		t.Error("RejectPatch() RemoteErr = nil")
	}

	got := fileByID(t, sess.Workspace(), "f-1")
	if got.HasPending() || got.Content != "name: web\n" {
		t.Errorf("session file = %+v, want rejected locally", got)
	}
}

func TestAcceptPatch_TimeoutFallsBack(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{RemoteTimeout: 20 * time.Millisecond})
	mock.delay = time.Second

	start := time.Now()
	res, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "f-3"})
	if err != nil {
		t.Fatalf("AcceptPatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("AcceptPatch() took %v, want bounded by timeout", elapsed)
	}
	if !res.Fallback {
		t.Error("AcceptPatch() Fallback = false, want true")
	}
	if !errors.Is(res.RemoteErr, context.DeadlineExceeded) {
		t.Errorf("RemoteErr = %v, want deadline exceeded", res.RemoteErr)
	}
	if got := fileByID(t, sess.Workspace(), "f-3"); got.Content != "kind: Service\n" {
		t.Errorf("content = %q, want accepted locally", got.Content)
	}
}

func TestAcceptPatch_DiffPending(t *testing.T) {
	ws := pendingWorkspace()
	ws.Charts[0].Files[1].ContentPending = strPtr("--- a/values.yaml\n+++ b/values.yaml\n@@ -1 +1 @@\n-replicas: 1\n+replicas: 5\n")
	eng, mock, sess := setupEngine(t, ws, Options{})
	mock.failFile["f-2"] = errors.New("offline")

	res, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "f-2"})
	if err != nil {
		t.Fatalf("AcceptPatch() error = %v", err)
	}
	if res.Applied == nil {
		t.Fatal("AcceptPatch() Applied = nil for diff pending")
	}
	if got := fileByID(t, sess.Workspace(), "f-2").Content; got != "replicas: 5\n" {
		t.Errorf("content = %q, want %q", got, "replicas: 5\n")
	}
}

func TestSinglePatch_NotFoundAndNoop(t *testing.T) {
	eng, mock, _ := setupEngine(t, pendingWorkspace(), Options{})

	_, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "missing"})
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("AcceptPatch(missing) error = %v, want ErrFileNotFound", err)
	}

	if _, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "f-1"}); err != nil {
		t.Fatal(err)
	}
	calls := len(mock.calls)
	res, err := eng.RejectPatch(context.Background(), &PatchRequest{FileID: "f-1"})
	if err != nil {
		t.Fatalf("RejectPatch(clean) error = %v", err)
	}
	if !res.Noop {
		t.Error("RejectPatch(clean) Noop = false, want true")
	}
	if len(mock.calls) != calls {
		t.Error("clean file reached persistence")
	}
}

func TestAcceptAll_Bulk(t *testing.T) {
	eng, _, sess := setupEngine(t, pendingWorkspace(), Options{})

	res, err := eng.AcceptAll(context.Background(), &BatchRequest{WorkspaceID: "ws-1", Trigger: TriggerUser})
	if err != nil {
		t.Fatalf("AcceptAll() error = %v", err)
	}
	if res.BulkFallback {
		t.Error("BulkFallback = true, want false")
	}
	if len(res.Files) != 3 {
		t.Errorf("len(Files) = %d, want 3", len(res.Files))
	}
	if !res.Refreshed {
		t.Error("Refreshed = false, want true")
	}

	ws := sess.Workspace()
	if len(reconcile.PendingFiles(ws, -1)) != 0 {
		t.Error("pending files remain after accept-all")
	}
	if ws.HasIncompleteRevision() || ws.CurrentRevisionNumber != 2 {
		t.Errorf("revision = %d incomplete=%v, want finalized at 2", ws.CurrentRevisionNumber, ws.IncompleteRevisionNumber)
	}
	if sess.Snapshot() != nil {
		t.Error("snapshot kept after revision finalized")
	}
}

func TestAcceptAll_PartialFailureIsolated(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})
	mock.bulkErr = errors.New("bulk endpoint down")
	mock.failFile["f-2"] = errors.New("row locked")

	res, err := eng.AcceptAll(context.Background(), &BatchRequest{Trigger: TriggerUser})
	if err != nil {
		t.Fatalf("AcceptAll() error = %v", err)
	}
	if !res.BulkFallback {
		t.Error("BulkFallback = false, want true")
	}
	if len(res.Fallback) != 1 || res.Fallback[0] != "f-2" {
		t.Errorf("Fallback = %v, want [f-2]", res.Fallback)
	}
	if n := len(multierr.Errors(res.Err)); n != 2 {
		t.Errorf("len(errors) = %d, want 2 (bulk + f-2)", n)
	}

	for _, id := range []string{"f-1", "f-3"} {
		if fileByID(t, mock.ws, id).HasPending() {
			t.Errorf("remote %s still pending", id)
		}
	}
	if !fileByID(t, mock.ws, "f-2").HasPending() {
		t.Error("remote f-2 changed despite failure")
	}

	ws := sess.Workspace()
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		if fileByID(t, ws, id).HasPending() {
			t.Errorf("session %s still pending", id)
		}
	}
	if got := fileByID(t, ws, "f-2").Content; got != "replicas: 3\n" {
		t.Errorf("f-2 content = %q, want local accept", got)
	}
}

func TestBatch_Empty(t *testing.T) {
	ws := pendingWorkspace()
	for i := range ws.Charts[0].Files {
		ws.Charts[0].Files[i].ContentPending = nil
	}
	eng, mock, _ := setupEngine(t, ws, Options{})

	tests := []struct {
		name    string
		run     func(context.Context, *BatchRequest) (*BatchResult, error)
		trigger Trigger
		wantErr bool
	}{
		{"accept user", eng.AcceptAll, TriggerUser, true},
		{"reject user", eng.RejectAll, TriggerUser, true},
		{"accept opportunistic", eng.AcceptAll, TriggerOpportunistic, false},
		{"reject opportunistic", eng.RejectAll, TriggerOpportunistic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.run(context.Background(), &BatchRequest{Trigger: tt.trigger})
			if tt.wantErr {
				if !errors.Is(err, ErrNoPendingPatches) {
					t.Errorf("error = %v, want ErrNoPendingPatches", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v, want nil", err)
			}
			if len(res.Files) != 0 {
				t.Errorf("len(Files) = %d, want 0", len(res.Files))
			}
		})
	}

	if len(mock.calls) != 0 {
		t.Errorf("persistence calls = %v, want none", mock.calls)
	}
}

func TestBatch_WorkspaceMismatch(t *testing.T) {
	eng, _, _ := setupEngine(t, pendingWorkspace(), Options{})

	_, err := eng.RejectAll(context.Background(), &BatchRequest{WorkspaceID: "other", Trigger: TriggerUser})
	if !errors.Is(err, ErrWorkspaceMismatch) {
		t.Errorf("error = %v, want ErrWorkspaceMismatch", err)
	}
}

func TestRejectAll_RefreshFailureKeepsFiles(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})
	mock.getErr = errors.New("timeout")

	res, err := eng.RejectAll(context.Background(), &BatchRequest{Trigger: TriggerUser})
	if err != nil {
		t.Fatalf("RejectAll() error = %v", err)
	}
	if res.Refreshed {
		t.Error("Refreshed = true, want false")
	}
	if len(reconcile.PendingFiles(sess.Workspace(), -1)) != 0 {
		t.Error("pending files remain after reject-all")
	}
	if got := fileByID(t, sess.Workspace(), "f-3").Content; got != "" {
		t.Errorf("new file content = %q, want empty after reject", got)
	}
}

func TestSaveFile(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})

	res, err := eng.SaveFile(context.Background(), &SaveFileRequest{
		PatchRequest:    PatchRequest{FileID: "f-1"},
		Content:         "name: web\nversion: 9\n",
		RejectRemaining: true,
	})
	if err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	if res.Fallback {
		t.Error("Fallback = true, want false")
	}

	ws := sess.Workspace()
	if got := fileByID(t, ws, "f-1").Content; got != "name: web\nversion: 9\n" {
		t.Errorf("content = %q", got)
	}
	if len(reconcile.PendingFiles(ws, -1)) != 0 {
		t.Error("remaining pending files not rejected")
	}
	if got := fileByID(t, mock.ws, "f-1").Content; got != "name: web\nversion: 9\n" {
		t.Errorf("remote content = %q", got)
	}
}

func TestSync_PushesUnsynced(t *testing.T) {
	eng, mock, sess := setupEngine(t, pendingWorkspace(), Options{})
	mock.failFile["f-1"] = errors.New("offline")

	if _, err := eng.AcceptPatch(context.Background(), &PatchRequest{FileID: "f-1"}); err != nil {
		t.Fatal(err)
	}

	// Still offline: flags only, local state kept.
	res, err := eng.Sync(context.Background(), &SyncRequest{Unsynced: []string{"f-1"}})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Replaced || len(res.Remaining) != 1 {
		t.Errorf("Sync() replaced=%v remaining=%v, want false/[f-1]", res.Replaced, res.Remaining)
	}
	if fileByID(t, sess.Workspace(), "f-1").HasPending() {
		t.Error("local fallback overwritten by sync")
	}

	delete(mock.failFile, "f-1")
	res, err = eng.Sync(context.Background(), &SyncRequest{Unsynced: []string{"f-1"}})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.Replaced || len(res.Pushed) != 1 {
		t.Errorf("Sync() replaced=%v pushed=%v, want true/[f-1]", res.Replaced, res.Pushed)
	}
	if got := fileByID(t, mock.ws, "f-1"); got.HasPending() || got.Content != "name: web\nversion: 2\n" {
		t.Errorf("remote f-1 = %+v, want pushed content", got)
	}
}

func TestStatus(t *testing.T) {
	eng, _, _ := setupEngine(t, pendingWorkspace(), Options{})

	st, err := eng.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(st.Pending) != 3 {
		t.Errorf("len(Pending) = %d, want 3", len(st.Pending))
	}
	if st.Total.Additions == 0 {
		t.Error("Total.Additions = 0, want > 0")
	}
}
