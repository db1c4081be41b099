// Package persist is the SQLite-backed persistence collaborator of the
// review engine. It stores workspaces, charts and per-revision file rows,
// applies review transitions with the same state machine the engine uses
// locally, and finalizes a revision once its last pending file is resolved.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/danieljhkim/chartpatch/internal/clock"
	"github.com/danieljhkim/chartpatch/internal/filepatch"
	"github.com/danieljhkim/chartpatch/internal/fsops"
	"github.com/danieljhkim/chartpatch/internal/state"
)

var (
	// ErrNotFound indicates the workspace, chart or file row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleRevision indicates pending content for a revision older than
	// the file's latest row.
	ErrStaleRevision = errors.New("stale revision")
)

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// Summary is one row of ListWorkspaces.
type Summary struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	UpdatedAt                time.Time `json:"updatedAt"`
	CurrentRevisionNumber    int       `json:"currentRevisionNumber"`
	IncompleteRevisionNumber *int      `json:"incompleteRevisionNumber,omitempty"`
	Files                    int       `json:"files"`
	Pending                  int       `json:"pending"`
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite persistence store.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = &clock.RealClock{}
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CreateWorkspace creates an empty workspace with the named charts.
func (s *Store) CreateWorkspace(ctx context.Context, name string, charts ...string) (*state.Workspace, error) {
	ws := state.NewWorkspace(name, s.clock.Now())
	for _, c := range charts {
		ws.Charts = append(ws.Charts, state.Chart{ID: state.NewID(), Name: c, Files: []state.File{}})
	}
	if err := s.ImportWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	return s.GetWorkspace(ctx, ws.ID)
}

// ImportWorkspace stores ws, replacing any workspace with the same id.
// Files without an id get one derived from their location.
func (s *Store) ImportWorkspace(ctx context.Context, ws *state.Workspace) error {
	ws = ws.Clone()
	assignIDs(ws)
	if err := ws.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, ws.ID); err != nil {
			return fmt.Errorf("failed to replace workspace %s: %w", ws.ID, err)
		}

		created := ws.CreatedAt
		if created.IsZero() {
			created = s.clock.Now()
		}
		updated := ws.UpdatedAt
		if updated.IsZero() {
			updated = created
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workspaces (id, name, created_at, updated_at, current_revision, incomplete_revision)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ws.ID, ws.Name,
			created.UTC().Format(time.RFC3339Nano), updated.UTC().Format(time.RFC3339Nano),
			ws.CurrentRevisionNumber, nullInt(ws.IncompleteRevisionNumber),
		)
		if err != nil {
			return fmt.Errorf("failed to insert workspace %s: %w", ws.ID, err)
		}

		for i, c := range ws.Charts {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO charts (id, workspace_id, name, position) VALUES (?, ?, ?, ?)`,
				c.ID, ws.ID, c.Name, i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert chart %s: %w", c.ID, err)
			}
		}

		for _, f := range ws.AllFiles() {
			if err := insertFile(ctx, tx, ws.ID, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWorkspace loads the latest view of a workspace.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*state.Workspace, error) {
	return getWorkspace(ctx, s.db, id)
}

// ListWorkspaces returns a summary of every workspace, most recently
// updated first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.updated_at, w.current_revision, w.incomplete_revision,
		       (SELECT COUNT(*) FROM latest_files f WHERE f.workspace_id = w.id),
		       (SELECT COUNT(*) FROM latest_files f WHERE f.workspace_id = w.id AND f.content_pending IS NOT NULL)
		FROM workspaces w
		ORDER BY w.updated_at DESC, w.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			updated    string
			incomplete sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &updated, &sum.CurrentRevisionNumber, &incomplete, &sum.Files, &sum.Pending); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		sum.UpdatedAt = parseTime(updated)
		sum.IncompleteRevisionNumber = intPtr(incomplete)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes a workspace with its charts and files.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPendingContent records pending content (full text or a unified diff)
// for the file at path in revision rev, creating the file when it does not
// exist yet. A revision newer than the workspace's current one becomes its
// incomplete revision.
func (s *Store) SetPendingContent(ctx context.Context, workspaceID, chartID, path string, rev int, pending string) (*state.File, error) {
	if err := fsops.ValidateRelPath(path); err != nil {
		return nil, err
	}

	var out state.File
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ws, err := getWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if chartID != "" {
			if _, ok := ws.Chart(chartID); !ok {
				return fmt.Errorf("chart %s: %w", chartID, ErrNotFound)
			}
		}

		f, err := latestByPath(ctx, tx, workspaceID, chartID, path)
		switch {
		case errors.Is(err, ErrNotFound):
			f = state.File{ID: state.DeriveFileID(workspaceID, chartID, path), ChartID: chartID, Path: path, RevisionNumber: rev}
		case err != nil:
			return err
		case f.RevisionNumber > rev:
			return fmt.Errorf("%w: %s is at revision %d, got %d", ErrStaleRevision, path, f.RevisionNumber, rev)
		}

		existing := f.RevisionNumber == rev && err == nil
		f = filepatch.SetPending(f, &pending).File
		f.RevisionNumber = rev
		if existing {
			if err := updateFile(ctx, tx, f); err != nil {
				return err
			}
		} else if err := insertFile(ctx, tx, workspaceID, f); err != nil {
			return err
		}

		if rev > ws.CurrentRevisionNumber && (ws.IncompleteRevisionNumber == nil || *ws.IncompleteRevisionNumber < rev) {
			_, err := tx.ExecContext(ctx, `UPDATE workspaces SET incomplete_revision = ? WHERE id = ?`, rev, workspaceID)
			if err != nil {
				return fmt.Errorf("failed to open revision %d: %w", rev, err)
			}
		}
		out = f
		return s.touch(ctx, tx, workspaceID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptPatch commits the pending content of a file row.
func (s *Store) AcceptPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	return s.transition(ctx, fileID, rev, filepatch.Accept)
}

// RejectPatch discards the pending content of a file row.
func (s *Store) RejectPatch(ctx context.Context, fileID string, rev int) (*state.File, error) {
	return s.transition(ctx, fileID, rev, filepatch.Reject)
}

// UpdateFileContent replaces the committed content of a file row and clears
// its pending content.
func (s *Store) UpdateFileContent(ctx context.Context, fileID string, rev int, content string) (*state.File, error) {
	return s.transition(ctx, fileID, rev, func(f state.File) filepatch.Transition {
		return filepatch.Edit(f, content)
	})
}

func (s *Store) transition(ctx context.Context, fileID string, rev int, step func(state.File) filepatch.Transition) (*state.File, error) {
	var out state.File
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		f, wsID, err := fileRow(ctx, tx, fileID, rev)
		if err != nil {
			return err
		}

		t := step(f)
		out = t.File
		if !t.Changed {
			return nil
		}
		if err := updateFile(ctx, tx, t.File); err != nil {
			return err
		}
		if err := finalize(ctx, tx, wsID); err != nil {
			return err
		}
		return s.touch(ctx, tx, wsID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptAllPatches commits every pending file of a revision.
func (s *Store) AcceptAllPatches(ctx context.Context, workspaceID string, rev int) ([]state.File, error) {
	return s.transitionAll(ctx, workspaceID, rev, filepatch.Accept)
}

// RejectAllPatches discards every pending file of a revision.
func (s *Store) RejectAllPatches(ctx context.Context, workspaceID string, rev int) error {
	_, err := s.transitionAll(ctx, workspaceID, rev, filepatch.Reject)
	return err
}

func (s *Store) transitionAll(ctx context.Context, workspaceID string, rev int, step func(state.File) filepatch.Transition) ([]state.File, error) {
	var out []state.File
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE id = ?`, workspaceID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to look up workspace %s: %w", workspaceID, err)
		}
		if exists == 0 {
			return fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
		}

		files, err := queryFiles(ctx, tx,
			`SELECT id, revision_number, chart_id, path, content, content_pending FROM latest_files
			 WHERE workspace_id = ? AND revision_number = ? AND content_pending IS NOT NULL
			 ORDER BY chart_id, path`,
			workspaceID, rev)
		if err != nil {
			return err
		}

		for _, f := range files {
			t := step(f)
			if err := updateFile(ctx, tx, t.File); err != nil {
				return err
			}
			out = append(out, t.File)
		}
		if err := finalize(ctx, tx, workspaceID); err != nil {
			return err
		}
		return s.touch(ctx, tx, workspaceID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) touch(ctx context.Context, q querier, workspaceID string) error {
	if _, err := q.ExecContext(ctx, `UPDATE workspaces SET updated_at = ? WHERE id = ?`, s.now(), workspaceID); err != nil {
		return fmt.Errorf("failed to touch workspace %s: %w", workspaceID, err)
	}
	return nil
}

// finalize promotes the incomplete revision once none of its files is
// pending.
func finalize(ctx context.Context, q querier, workspaceID string) error {
	var incomplete sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT incomplete_revision FROM workspaces WHERE id = ?`, workspaceID).Scan(&incomplete)
	if err != nil {
		return fmt.Errorf("failed to read revision state: %w", err)
	}
	if !incomplete.Valid {
		return nil
	}

	var pending int
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM latest_files WHERE workspace_id = ? AND revision_number = ? AND content_pending IS NOT NULL`,
		workspaceID, incomplete.Int64,
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("failed to count pending files: %w", err)
	}
	if pending > 0 {
		return nil
	}

	_, err = q.ExecContext(ctx,
		`UPDATE workspaces SET current_revision = incomplete_revision, incomplete_revision = NULL WHERE id = ?`,
		workspaceID)
	if err != nil {
		return fmt.Errorf("failed to finalize revision %d: %w", incomplete.Int64, err)
	}
	return nil
}

func getWorkspace(ctx context.Context, q querier, id string) (*state.Workspace, error) {
	var (
		ws         state.Workspace
		created    string
		updated    string
		incomplete sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, current_revision, incomplete_revision FROM workspaces WHERE id = ?`, id,
	).Scan(&ws.ID, &ws.Name, &created, &updated, &ws.CurrentRevisionNumber, &incomplete)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %s: %w", id, err)
	}
	ws.CreatedAt = parseTime(created)
	ws.UpdatedAt = parseTime(updated)
	ws.IncompleteRevisionNumber = intPtr(incomplete)
	ws.Files = []state.File{}
	ws.Charts = []state.Chart{}

	rows, err := q.QueryContext(ctx, `SELECT id, name FROM charts WHERE workspace_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load charts: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		c := state.Chart{Files: []state.File{}}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan chart: %w", err)
		}
		index[c.ID] = len(ws.Charts)
		ws.Charts = append(ws.Charts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load charts: %w", err)
	}

	files, err := queryFiles(ctx, q,
		`SELECT id, revision_number, chart_id, path, content, content_pending FROM latest_files
		 WHERE workspace_id = ? ORDER BY path`, id)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		i, ok := index[f.ChartID]
		if f.ChartID == "" || !ok {
			ws.Files = append(ws.Files, f)
			continue
		}
		c := &ws.Charts[i]
		c.Files = append(c.Files, f)
		if f.RevisionNumber > c.RevisionNumber {
			c.RevisionNumber = f.RevisionNumber
		}
	}
	sort.SliceStable(ws.Files, func(i, j int) bool { return ws.Files[i].Path < ws.Files[j].Path })

	return &ws, nil
}

func queryFiles(ctx context.Context, q querier, query string, args ...any) ([]state.File, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var out []state.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (state.File, error) {
	var (
		f       state.File
		pending sql.NullString
	)
	if err := row.Scan(&f.ID, &f.RevisionNumber, &f.ChartID, &f.Path, &f.Content, &pending); err != nil {
		return state.File{}, fmt.Errorf("failed to scan file: %w", err)
	}
	if pending.Valid {
		p := pending.String
		f.ContentPending = &p
	}
	return f, nil
}

func fileRow(ctx context.Context, q querier, fileID string, rev int) (state.File, string, error) {
	var wsID string
	row := q.QueryRowContext(ctx,
		`SELECT id, revision_number, chart_id, path, content, content_pending, workspace_id FROM files
		 WHERE id = ? AND revision_number = ?`, fileID, rev)

	var (
		f       state.File
		pending sql.NullString
	)
	err := row.Scan(&f.ID, &f.RevisionNumber, &f.ChartID, &f.Path, &f.Content, &pending, &wsID)
	if errors.Is(err, sql.ErrNoRows) {
		return state.File{}, "", fmt.Errorf("file %s at revision %d: %w", fileID, rev, ErrNotFound)
	}
	if err != nil {
		return state.File{}, "", fmt.Errorf("failed to load file %s: %w", fileID, err)
	}
	if pending.Valid {
		p := pending.String
		f.ContentPending = &p
	}
	return f, wsID, nil
}

func latestByPath(ctx context.Context, q querier, workspaceID, chartID, path string) (state.File, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, revision_number, chart_id, path, content, content_pending FROM latest_files
		 WHERE workspace_id = ? AND chart_id = ? AND path = ?`, workspaceID, chartID, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return state.File{}, fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	return f, err
}

func insertFile(ctx context.Context, q querier, workspaceID string, f state.File) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO files (id, revision_number, workspace_id, chart_id, path, content, content_pending)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RevisionNumber, workspaceID, f.ChartID, f.Path, f.Content, nullString(f.ContentPending),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file %s: %w", f.Path, err)
	}
	return nil
}

func updateFile(ctx context.Context, q querier, f state.File) error {
	_, err := q.ExecContext(ctx,
		`UPDATE files SET content = ?, content_pending = ? WHERE id = ? AND revision_number = ?`,
		f.Content, nullString(f.ContentPending), f.ID, f.RevisionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", f.ID, err)
	}
	return nil
}

func assignIDs(ws *state.Workspace) {
	if ws.ID == "" {
		ws.ID = state.NewID()
	}
	for i := range ws.Files {
		if ws.Files[i].ID == "" {
			ws.Files[i].ID = state.DeriveFileID(ws.ID, "", ws.Files[i].Path)
		}
	}
	for ci := range ws.Charts {
		c := &ws.Charts[ci]
		if c.ID == "" {
			c.ID = state.NewID()
		}
		for i := range c.Files {
			c.Files[i].ChartID = c.ID
			if c.Files[i].ID == "" {
				c.Files[i].ID = state.DeriveFileID(ws.ID, c.ID, c.Files[i].Path)
			}
		}
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
