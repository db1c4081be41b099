package persist

// Schema creates the persistence tables. Files keep one row per revision in
// which they changed; the workspace view is the latest row of each file.
const Schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	current_revision    INTEGER NOT NULL DEFAULT 0,
	incomplete_revision INTEGER
);

CREATE TABLE IF NOT EXISTS charts (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	position     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id              TEXT NOT NULL,
	revision_number INTEGER NOT NULL,
	workspace_id    TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	chart_id        TEXT NOT NULL DEFAULT '',
	path            TEXT NOT NULL,
	content         TEXT NOT NULL,
	content_pending TEXT,
	PRIMARY KEY (id, revision_number)
);

CREATE INDEX IF NOT EXISTS idx_charts_workspace ON charts(workspace_id);
CREATE INDEX IF NOT EXISTS idx_files_workspace ON files(workspace_id, chart_id, path);

CREATE VIEW IF NOT EXISTS latest_files AS
SELECT f.* FROM files f
WHERE f.revision_number = (SELECT MAX(g.revision_number) FROM files g WHERE g.id = f.id);
`
