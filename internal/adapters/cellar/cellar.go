// Package cellar bridges the blob store and task index into the four
// operations the scheduler and session need, per spec §4.7: store_build,
// seal_task, checkout, and get_tree.
package cellar

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.trai.ch/cellar/internal/adapters/blobstore"
	"go.trai.ch/cellar/internal/adapters/taskindex"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm = 0o750
)

// Cellar pairs a blob store with a task index to give the scheduler a single
// persistence boundary. Either half can point at a shared, rsync-compatible
// directory so a local and a remote cellar have an identical on-disk shape.
type Cellar struct {
	blobs *blobstore.Store
	index *taskindex.Index
}

// Open opens or creates a cellar rooted at dir, with "objects/" holding
// blobs and "index.db" holding the task index.
func Open(ctx context.Context, dir string) (*Cellar, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, zerr.Wrap(err, "cellar: mkdir root")
	}
	blobs, err := blobstore.NewStore(dir)
	if err != nil {
		return nil, err
	}
	index, err := taskindex.OpenInDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &Cellar{blobs: blobs, index: index}, nil
}

// Close releases the underlying task index connection.
func (c *Cellar) Close() error {
	return c.index.Close()
}

// TaskStatus reports a task's recorded hash and state, used by the scheduler
// to decide whether a ready task can be skipped.
type TaskStatus struct {
	Hash  hashutil.Hash
	State domain.State
}

// StoreBlobs idempotently writes raw bytes into the blob store without
// touching the task index, for callers (e.g. adapters/profile) that need a
// file's hash available before any task referencing it is constructed.
// Writes fan out across a bounded pool: the underlying store's
// write-temp-then-rename scheme is safe for concurrent writers (spec
// §4.2), so there is no reason to serialize independent inputs.
func (c *Cellar) StoreBlobs(data map[string][]byte) error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for path, bytes := range data {
		path, bytes := path, bytes
		g.Go(func() error {
			if _, err := c.blobs.StoreBytes(bytes); err != nil {
				return zerr.With(zerr.Wrap(err, "cellar: store blob"), "path", path)
			}
			return nil
		})
	}
	return g.Wait()
}

// StoreBuild writes new tasks (insert-or-ignore against existing state), a
// new build row, its targets, and any referenced raw input blobs, returning
// the current (hash, state) of every affected task so the caller can decide
// which to skip versus (re)execute.
func (c *Cellar) StoreBuild(
	ctx context.Context,
	tasks []*domain.TaskRecord,
	targets map[string]hashutil.Hash,
	rawInputs map[string][]byte,
) (map[hashutil.Hash]TaskStatus, int64, error) {
	for path, data := range rawInputs {
		if _, err := c.blobs.StoreBytes(data); err != nil {
			return nil, 0, zerr.With(zerr.Wrap(err, "cellar: store raw input"), "path", path)
		}
	}

	statuses := make(map[hashutil.Hash]TaskStatus, len(tasks))
	for _, t := range tasks {
		exists, err := c.index.Exists(ctx, t.Hash)
		if err != nil {
			return nil, 0, err
		}
		if !exists {
			if t.State == "" {
				t.State = domain.StateClean
			}
			if err := c.index.PutTask(ctx, t); err != nil {
				return nil, 0, err
			}
		}
		rec, err := c.index.GetTask(ctx, t.Hash)
		if err != nil {
			return nil, 0, err
		}
		statuses[t.Hash] = TaskStatus{Hash: rec.Hash, State: rec.State}
	}

	buildID, err := c.index.CreateBuild(ctx, targets)
	if err != nil {
		return nil, 0, err
	}

	return statuses, buildID, nil
}

// SealTask stores each output blob then atomically marks the task DONE with
// those outputs, per spec invariant 3.
func (c *Cellar) SealTask(ctx context.Context, hash hashutil.Hash, outputFiles map[string][]byte) error {
	outputs := make(map[string]hashutil.Hash, len(outputFiles))
	for path, data := range outputFiles {
		h, err := c.blobs.StoreBytes(data)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "cellar: seal: store output"), "path", path)
		}
		outputs[path] = h
	}
	return c.index.SealTask(ctx, hash, outputs)
}

// MarkRunning transitions a task to RUNNING before handing it to an executor.
func (c *Cellar) MarkRunning(ctx context.Context, hash hashutil.Hash) error {
	return c.index.SetState(ctx, hash, domain.StateRunning)
}

// MarkError transitions a task to ERROR after a failed execution.
func (c *Cellar) MarkError(ctx context.Context, hash hashutil.Hash) error {
	return c.index.SetState(ctx, hash, domain.StateError)
}

// MergeRemoteDone merges a remote engine's DONE report into the local index
// as DONEREMOTE without re-executing, per spec §7's check/fetch semantics.
func (c *Cellar) MergeRemoteDone(ctx context.Context, hash hashutil.Hash, outputs map[string]hashutil.Hash) error {
	rec, err := c.index.GetTask(ctx, hash)
	if err != nil {
		return err
	}
	if rec.State.Skippable() {
		return nil
	}
	if err := c.index.SealTask(ctx, hash, outputs); err != nil {
		return err
	}
	return c.index.SetState(ctx, hash, domain.StateDoneRemote)
}

// ResetTask reverts a task to CLEAN, dropping any sealed outputs.
func (c *Cellar) ResetTask(ctx context.Context, hash hashutil.Hash) error {
	return c.index.ResetTask(ctx, hash)
}

// GetTask loads a single task record by hash.
func (c *Cellar) GetTask(ctx context.Context, hash hashutil.Hash) (*domain.TaskRecord, error) {
	return c.index.GetTask(ctx, hash)
}

// GetTree reconstructs a mapping from virtual path to task hash by walking
// the most recent build's targets, optionally narrowed to the given hashes.
func (c *Cellar) GetTree(ctx context.Context, hashes []hashutil.Hash) (domain.Tree, error) {
	buildID, err := c.index.LastBuildID(ctx)
	if err != nil {
		return nil, err
	}
	if buildID == 0 {
		return domain.Tree{}, nil
	}
	tree, err := c.index.GetBuildTargets(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return tree, nil
	}
	want := make(map[hashutil.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		want[h] = struct{}{}
	}
	out := make(domain.Tree, len(tree))
	for path, h := range tree {
		if _, ok := want[h]; ok {
			out[path] = h
		}
	}
	return out, nil
}

// ListTasks returns every recorded task hash and state, for `list tasks`
// and for gc's retention computation.
func (c *Cellar) ListTasks(ctx context.Context) (map[hashutil.Hash]domain.State, error) {
	return c.index.ListTasks(ctx)
}

// ListBuilds returns every build id, oldest first.
func (c *Cellar) ListBuilds(ctx context.Context) ([]int64, error) {
	return c.index.ListBuildIDs(ctx)
}

// GC removes blobs and task rows not reachable from any retained build.
// Per the design decision recorded for this cellar, ERROR tasks referenced
// by the current build are retained alongside DONE/DONEREMOTE tasks so a
// subsequent `run` can report their last failure without recomputing inputs.
func (c *Cellar) GC(ctx context.Context, keepBuilds int) (removedTasks, removedBlobs int, err error) {
	builds, err := c.index.ListBuildIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	if keepBuilds < 0 {
		keepBuilds = 0
	}
	cutoff := len(builds) - keepBuilds
	if cutoff < 0 {
		cutoff = 0
	}
	toDrop := builds[:cutoff]
	toKeep := builds[cutoff:]

	reachable := make(map[hashutil.Hash]struct{})
	for _, id := range toKeep {
		tree, err := c.index.GetBuildTargets(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		for _, h := range tree {
			reachable[h] = struct{}{}
		}
	}

	all, err := c.index.ListTasks(ctx)
	if err != nil {
		return 0, 0, err
	}

	var drop []hashutil.Hash
	retainBlobs := make(map[hashutil.Hash]struct{})
	for hash := range all {
		if _, keep := reachable[hash]; keep {
			rec, err := c.index.GetTask(ctx, hash)
			if err != nil {
				return 0, 0, err
			}
			retainBlobs[hash] = struct{}{}
			for _, h := range rec.Inputs {
				retainBlobs[h] = struct{}{}
			}
			for _, h := range rec.Outputs {
				retainBlobs[h] = struct{}{}
			}
			continue
		}
		// An ERROR task is retained only while it is still reachable from a
		// kept build's target set (handled above); once nothing retained
		// points at it, it is collected like any other unreferenced task.
		drop = append(drop, hash)
	}

	if err := c.index.DeleteTasks(ctx, drop); err != nil {
		return 0, 0, err
	}
	_ = toDrop // build rows themselves are left for history; only tasks/blobs are reclaimed

	removedBlobs, err = c.blobs.GC(retainBlobs)
	if err != nil {
		return len(drop), removedBlobs, err
	}
	return len(drop), removedBlobs, nil
}

// Checkout materializes the build identified by the Nth-most-recent
// selection (nth=0 is latest) into root, creating one directory per virtual
// task path matched by patterns. Each directory holds either symlinks to the
// task's input/output blobs (default) or copies when nolink is true.
// Duplicate tasks reachable under multiple paths are written once and then
// referenced by directory-level symlinks, so no blob is ever copied twice
// and no path exists as two independent real directories.
func (c *Cellar) Checkout(ctx context.Context, root string, patterns []string, nth int, nolink bool) error {
	builds, err := c.index.ListBuildIDs(ctx)
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		return zerr.New("checkout: no builds recorded")
	}
	idx := len(builds) - 1 - nth
	if idx < 0 {
		return zerr.With(zerr.New("checkout: nth build does not exist"), "nth", nth)
	}
	buildID := builds[idx]

	tree, err := c.index.GetBuildTargets(ctx, buildID)
	if err != nil {
		return err
	}
	if len(patterns) > 0 {
		tree = tree.Match(patterns)
	}

	materialized := make(map[hashutil.Hash]string) // task hash -> real directory already written
	for path, hash := range tree {
		dest := filepath.Join(root, filepath.FromSlash(path))
		if err := c.checkoutTask(ctx, dest, hash, nolink, materialized); err != nil {
			return zerr.With(err, "path", path)
		}
	}
	return nil
}

func (c *Cellar) checkoutTask(
	ctx context.Context,
	dest string,
	hash hashutil.Hash,
	nolink bool,
	materialized map[hashutil.Hash]string,
) error {
	if real, ok := materialized[hash]; ok {
		if real == dest {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
			return zerr.Wrap(err, "checkout: mkdir parent")
		}
		return symlinkReplacing(real, dest)
	}

	rec, err := c.index.GetTask(ctx, hash)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, dirPerm); err != nil {
		return zerr.Wrap(err, "checkout: mkdir task dir")
	}

	blobs := make(map[string]hashutil.Hash, len(rec.Inputs)+len(rec.Outputs))
	for name, h := range rec.Inputs {
		blobs[name] = h
	}
	for name, h := range rec.Outputs {
		blobs[name] = h
	}

	for name, h := range blobs {
		target := filepath.Join(dest, filepath.FromSlash(name))
		if err := containedIn(dest, target); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
			return zerr.Wrap(err, "checkout: mkdir output parent")
		}
		if nolink {
			if err := copyBlob(c.blobs, h, target); err != nil {
				return err
			}
			continue
		}
		if err := symlinkReplacing(c.blobs.Path(h), target); err != nil {
			return err
		}
	}

	materialized[hash] = dest
	return nil
}

// MaterializeTask checks out a single task's inputs into dir, independent of
// any build record. The shelltask rule and the `go` worker
// (app.runRemoteTask) use this to prepare a sandbox for a task about to
// execute, before that task's own outputs exist.
func (c *Cellar) MaterializeTask(ctx context.Context, dir string, hash hashutil.Hash, nolink bool) error {
	return c.checkoutTask(ctx, dir, hash, nolink, make(map[hashutil.Hash]string))
}

// containedIn guards against an output path escaping its task directory.
func containedIn(root, path string) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return zerr.Wrap(err, "checkout: resolve root")
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return zerr.Wrap(err, "checkout: resolve path")
	}
	rel, err := filepath.Rel(rootAbs, pathAbs)
	if err != nil {
		return zerr.Wrap(err, "checkout: resolve relative path")
	}
	if strings.HasPrefix(rel, "..") {
		return zerr.With(zerr.New("checkout: output path escapes task directory"), "path", path)
	}
	return nil
}

func symlinkReplacing(target, linkPath string) error {
	_ = os.Remove(linkPath)
	if err := os.Symlink(target, linkPath); err != nil {
		return zerr.Wrap(err, "checkout: symlink")
	}
	return nil
}

func copyBlob(store *blobstore.Store, h hashutil.Hash, dest string) error {
	rc, err := store.Get(h)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck

	//nolint:gosec // dest is derived from a checked, contained task path
	f, err := os.Create(dest)
	if err != nil {
		return zerr.Wrap(err, "checkout: create copy")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, rc); err != nil {
		return zerr.Wrap(err, "checkout: copy blob")
	}
	return nil
}
