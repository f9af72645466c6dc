package taskindex

// schema holds the task index's relational layout: tasks (one row per
// content-addressed task, keyed by its hash), builds (append-only numbered
// snapshots), and targets (a build's named roots). Index.migrate applies
// the statements in order inside one transaction.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		hash        TEXT PRIMARY KEY,
		command     TEXT NOT NULL,
		inputs_json TEXT NOT NULL,
		state       TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS task_outputs (
		task_hash TEXT NOT NULL REFERENCES tasks(hash) ON DELETE CASCADE,
		path      TEXT NOT NULL,
		blob_hash TEXT NOT NULL,
		PRIMARY KEY (task_hash, path)
	)`,
	`CREATE TABLE IF NOT EXISTS builds (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS targets (
		build_id  INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
		path      TEXT NOT NULL,
		task_hash TEXT NOT NULL REFERENCES tasks(hash),
		PRIMARY KEY (build_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_targets_build ON targets(build_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
}
