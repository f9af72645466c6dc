// Package taskindex persists task and build records in a SQLite database,
// implementing the "task index" half of the cellar described in spec §4.3.
package taskindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
)

// Index wraps a SQLite connection holding the task/build/target relations.
// The underlying file format is shared freely between local and remote
// cellars: a sync operation is just copying rows.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at path and applies
// pending schema migrations. A single connection is enforced: SQLite only
// supports one writer at a time, and the scheduler already serializes
// writes through the cellar adapter, so contention here would only hide a
// design bug upstream.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: open")
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, zerr.Wrap(err, "taskindex: ping")
	}

	idx := &Index{db: db}
	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// OpenInDir opens the index at the conventional "index.db" path under dir.
func OpenInDir(ctx context.Context, dir string) (*Index, error) {
	return Open(ctx, filepath.Join(dir, "index.db"))
}

func (idx *Index) migrate(ctx context.Context) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "taskindex: begin migration")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return zerr.Wrap(err, "taskindex: migrate")
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

type taskInputsJSON struct {
	Inputs     map[string]string    `json:"inputs"`
	Symlinks   map[string]string    `json:"symlinks,omitempty"`
	Children   map[string]string    `json:"children,omitempty"`
	ChildLinks map[string][2]string `json:"childlinks,omitempty"`
}

// PutTask inserts or replaces a task record. Outputs are written separately
// via SealTask once the task reaches StateDone, matching the spec's
// invariant that outputs only exist for DONE tasks.
func (idx *Index) PutTask(ctx context.Context, rec *domain.TaskRecord) error {
	childLinks := make(map[string][2]string, len(rec.ChildLinks))
	for k, v := range rec.ChildLinks {
		childLinks[k] = [2]string{v.Child.String(), v.Path.String()}
	}
	payload := taskInputsJSON{
		Inputs:     hashMapToStrings(rec.Inputs),
		Symlinks:   rec.Symlinks,
		Children:   hashMapToStrings(rec.Children),
		ChildLinks: childLinks,
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return zerr.Wrap(err, "taskindex: marshal inputs")
	}

	_, err = idx.db.ExecContext(ctx, `
		INSERT INTO tasks (hash, command, inputs_json, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			command=excluded.command,
			inputs_json=excluded.inputs_json,
			state=excluded.state,
			updated_at=CURRENT_TIMESTAMP
	`, rec.Hash.String(), rec.Command, string(blob), string(rec.State))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "taskindex: put task"), "hash", rec.Hash.String())
	}
	return nil
}

// SetState transitions a task's state without touching its inputs.
func (idx *Index) SetState(ctx context.Context, hash hashutil.Hash, state domain.State) error {
	res, err := idx.db.ExecContext(ctx, `
		UPDATE tasks SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE hash = ?
	`, string(state), hash.String())
	if err != nil {
		return zerr.Wrap(err, "taskindex: set state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return zerr.Wrap(err, "taskindex: rows affected")
	}
	if n == 0 {
		return zerr.With(domain.ErrTaskNotFound, "hash", hash.String())
	}
	return nil
}

// SealTask marks a task DONE and records its outputs transactionally. Called
// once per task, per invariant 3 (outputs are set exactly when entering
// StateDone).
func (idx *Index) SealTask(ctx context.Context, hash hashutil.Hash, outputs map[string]hashutil.Hash) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "taskindex: seal: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE hash = ?
	`, string(domain.StateDone), hash.String())
	if err != nil {
		return zerr.Wrap(err, "taskindex: seal: update state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zerr.With(domain.ErrTaskNotFound, "hash", hash.String())
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_outputs (task_hash, path, blob_hash) VALUES (?, ?, ?)
		ON CONFLICT(task_hash, path) DO UPDATE SET blob_hash = excluded.blob_hash
	`)
	if err != nil {
		return zerr.Wrap(err, "taskindex: seal: prepare outputs")
	}
	defer stmt.Close() //nolint:errcheck

	for path, h := range outputs {
		if _, err := stmt.ExecContext(ctx, hash.String(), path, h.String()); err != nil {
			return zerr.Wrap(err, "taskindex: seal: insert output")
		}
	}

	return tx.Commit()
}

// GetTask loads a task record by hash, including its outputs if sealed.
func (idx *Index) GetTask(ctx context.Context, hash hashutil.Hash) (*domain.TaskRecord, error) {
	var command, inputsJSON, state string
	err := idx.db.QueryRowContext(ctx, `
		SELECT command, inputs_json, state FROM tasks WHERE hash = ?
	`, hash.String()).Scan(&command, &inputsJSON, &state)
	if err == sql.ErrNoRows {
		return nil, zerr.With(domain.ErrTaskNotFound, "hash", hash.String())
	}
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: get task")
	}

	var payload taskInputsJSON
	if err := json.Unmarshal([]byte(inputsJSON), &payload); err != nil {
		return nil, zerr.Wrap(err, "taskindex: unmarshal inputs")
	}

	rec := &domain.TaskRecord{
		Hash:       hash,
		Command:    command,
		Inputs:     stringsToHashMap(payload.Inputs),
		Symlinks:   payload.Symlinks,
		Children:   stringsToHashMap(payload.Children),
		ChildLinks: make(map[string]domain.ChildLink, len(payload.ChildLinks)),
		State:      domain.State(state),
	}
	for k, v := range payload.ChildLinks {
		rec.ChildLinks[k] = domain.ChildLink{
			Child: domain.NewInternedString(v[0]),
			Path:  domain.NewInternedString(v[1]),
		}
	}

	if rec.State.Skippable() {
		outputs, err := idx.getOutputs(ctx, hash)
		if err != nil {
			return nil, err
		}
		rec.Outputs = outputs
	}

	return rec, nil
}

func (idx *Index) getOutputs(ctx context.Context, hash hashutil.Hash) (map[string]hashutil.Hash, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT path, blob_hash FROM task_outputs WHERE task_hash = ?
	`, hash.String())
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: get outputs")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]hashutil.Hash)
	for rows.Next() {
		var path, blobHash string
		if err := rows.Scan(&path, &blobHash); err != nil {
			return nil, zerr.Wrap(err, "taskindex: scan output")
		}
		out[path] = hashutil.Hash(blobHash)
	}
	return out, rows.Err()
}

// Exists reports whether a task hash is already recorded, independent of state.
func (idx *Index) Exists(ctx context.Context, hash hashutil.Hash) (bool, error) {
	var one int
	err := idx.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE hash = ?`, hash.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, zerr.Wrap(err, "taskindex: exists")
	}
	return true, nil
}

// CreateBuild inserts a new build row and its targets transactionally,
// returning the assigned build id.
func (idx *Index) CreateBuild(ctx context.Context, targets map[string]hashutil.Hash) (int64, error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, zerr.Wrap(err, "taskindex: create build: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `INSERT INTO builds DEFAULT VALUES`)
	if err != nil {
		return 0, zerr.Wrap(err, "taskindex: create build: insert")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, zerr.Wrap(err, "taskindex: create build: last insert id")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO targets (build_id, path, task_hash) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, zerr.Wrap(err, "taskindex: create build: prepare targets")
	}
	defer stmt.Close() //nolint:errcheck

	for path, h := range targets {
		if _, err := stmt.ExecContext(ctx, id, path, h.String()); err != nil {
			return 0, zerr.Wrap(err, "taskindex: create build: insert target")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, zerr.Wrap(err, "taskindex: create build: commit")
	}
	return id, nil
}

// GetBuildTargets returns a build's virtual-path-to-task-hash mapping.
func (idx *Index) GetBuildTargets(ctx context.Context, buildID int64) (domain.Tree, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT path, task_hash FROM targets WHERE build_id = ?`, buildID)
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: get build targets")
	}
	defer rows.Close() //nolint:errcheck

	tree := make(domain.Tree)
	for rows.Next() {
		var path, taskHash string
		if err := rows.Scan(&path, &taskHash); err != nil {
			return nil, zerr.Wrap(err, "taskindex: scan target")
		}
		tree[path] = hashutil.Hash(taskHash)
	}
	return tree, rows.Err()
}

// LastBuildID returns the most recently created build's id, or 0 if none exist.
func (idx *Index) LastBuildID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := idx.db.QueryRowContext(ctx, `SELECT MAX(id) FROM builds`).Scan(&id)
	if err != nil {
		return 0, zerr.Wrap(err, "taskindex: last build id")
	}
	return id.Int64, nil
}

// ListTasks returns every recorded task hash alongside its state, for the
// "list tasks" CLI command and for gc's retention computation.
func (idx *Index) ListTasks(ctx context.Context) (map[hashutil.Hash]domain.State, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT hash, state FROM tasks`)
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: list tasks")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[hashutil.Hash]domain.State)
	for rows.Next() {
		var hash, state string
		if err := rows.Scan(&hash, &state); err != nil {
			return nil, zerr.Wrap(err, "taskindex: scan task")
		}
		out[hashutil.Hash(hash)] = domain.State(state)
	}
	return out, rows.Err()
}

// ListBuildIDs returns every build id, oldest first.
func (idx *Index) ListBuildIDs(ctx context.Context) ([]int64, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM builds ORDER BY id`)
	if err != nil {
		return nil, zerr.Wrap(err, "taskindex: list builds")
	}
	defer rows.Close() //nolint:errcheck

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, zerr.Wrap(err, "taskindex: scan build id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteTasks removes task rows (and their outputs, via cascade) for gc.
func (idx *Index) DeleteTasks(ctx context.Context, hashes []hashutil.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "taskindex: delete tasks: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM tasks WHERE hash = ?`)
	if err != nil {
		return zerr.Wrap(err, "taskindex: delete tasks: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, h.String()); err != nil {
			return zerr.Wrap(err, "taskindex: delete task")
		}
	}
	return tx.Commit()
}

// ResetTask reverts a task to StateClean, dropping any recorded outputs, so
// it will be re-executed on the next run that reaches it.
func (idx *Index) ResetTask(ctx context.Context, hash hashutil.Hash) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "taskindex: reset: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_outputs WHERE task_hash = ?`, hash.String()); err != nil {
		return zerr.Wrap(err, "taskindex: reset: delete outputs")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE hash = ?
	`, string(domain.StateClean), hash.String())
	if err != nil {
		return zerr.Wrap(err, "taskindex: reset: update state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zerr.With(domain.ErrTaskNotFound, "hash", hash.String())
	}
	return tx.Commit()
}

func hashMapToStrings(m map[string]hashutil.Hash) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func stringsToHashMap(m map[string]string) map[string]hashutil.Hash {
	out := make(map[string]hashutil.Hash, len(m))
	for k, v := range m {
		out[k] = hashutil.Hash(v)
	}
	return out
}
