package app

import (
	"context"
	"net/http"
	"os"

	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/adapters/executor"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
)

// Submit registers a queue with the named remote scheduler and records its
// URL to <cafdir>/LAST_QUEUE, per spec §6's `submit`/`--last` contract.
// The actual task hand-off happens out of band: a `go` worker elsewhere
// polls the returned queue and reports completions back to it.
func (a *App) Submit(ctx context.Context, queueName string) (string, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	q, ok := cfg.Queues[queueName]
	if !ok {
		return "", zerr.With(domain.ErrRemoteNotExists, "queue", queueName)
	}

	rem, err := executor.NewRemote(ctx, http.DefaultClient, q.Host, q.Token, a.Logger)
	if err != nil {
		return "", zerr.Wrap(err, "submit: register queue")
	}
	url := rem.QueueURL()
	if err := a.RecordQueue(url); err != nil {
		return "", err
	}
	a.appendLog("submit " + queueName)
	return url, nil
}

// Go runs this host as a remote worker against one queue: it registers,
// then loops polling the queue-announcer for task hashes, running each
// against a task record already present in this cafdir's cellar (e.g.
// synced in by a prior `fetch`), and reporting the outcome back — spec
// §6's "Remote" mode, "otherwise identical" to the local state machine
// beyond where tasks come from.
func (a *App) Go(ctx context.Context, queueHost, token string, maxTasks int) error {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return err
	}
	defer cel.Close() //nolint:errcheck

	rem, err := executor.NewRemote(ctx, http.DefaultClient, queueHost, token, a.Logger)
	if err != nil {
		return zerr.Wrap(err, "go: register queue")
	}
	a.appendLog("go " + queueHost)

	for handled := 0; maxTasks <= 0 || handled < maxTasks; {
		if err := ctx.Err(); err != nil {
			return err
		}
		hash, err := rem.PollNext(ctx)
		if err != nil {
			return zerr.Wrap(err, "go: poll queue")
		}
		if hash == "" {
			continue
		}

		h, err := hashutil.ParseHash(hash)
		if err != nil {
			a.Logger.Warn("go: queue offered unparseable hash: " + err.Error())
			continue
		}
		rec, err := cel.GetTask(ctx, h)
		if err != nil {
			a.Logger.Warn("go: unknown task " + hash + ": " + err.Error())
			continue
		}

		state := string(rec.State)
		if rec.State != domain.StateDone && rec.State != domain.StateDoneRemote {
			if execErr := a.runRemoteTask(ctx, cel, h, rec); execErr != nil {
				a.Logger.Error(execErr)
				state = string(domain.StateError)
			} else {
				state = string(domain.StateDone)
			}
		}
		if err := rem.Report(ctx, hash, state); err != nil {
			return zerr.Wrap(err, "go: report completion")
		}
		handled++
	}
	return nil
}

// runRemoteTask executes a task's command in a scratch sandbox on behalf
// of a queue request, then seals it with an empty output set, which marks
// it DONE locally without recording any output files: the TaskRecord
// schema only carries a declared output list once a task is already DONE
// (invariant 3 in domain.TaskRecord), so a CLEAN record pulled off the
// queue carries no output manifest to collect against — the requesting side
// learns the result from Report and picks up artifacts through its own
// rsync fetch, not through this worker's local index.
func (a *App) runRemoteTask(ctx context.Context, cel *cellar.Cellar, hash hashutil.Hash, rec *domain.TaskRecord) error {
	if err := cel.MarkRunning(ctx, hash); err != nil {
		return err
	}
	sandbox, err := os.MkdirTemp("", "cellar-remote-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(sandbox) //nolint:errcheck

	if err := cel.MaterializeTask(ctx, sandbox, hash, false); err != nil {
		_ = cel.MarkError(ctx, hash)
		return err
	}
	if err := a.Executor.Execute(ctx, sandbox, rec.Command, nil); err != nil {
		_ = cel.MarkError(ctx, hash)
		return err
	}
	return cel.SealTask(ctx, hash, map[string][]byte{})
}

// Check reports whether a named remote is configured in config.ini,
// returning ErrRemoteNotExists otherwise. It does not contact the remote
// and does not compare task hashes or states. The rsync/SSH transport
// itself is an external collaborator (spec §1's Non-goals).
func (a *App) Check(name string) error {
	_, err := a.RemotePath(name)
	return err
}

// Fetch and Update describe rsync-over-SSH synchronization against a
// named remote (spec §6's "Remote sync boundary"); the transport itself
// is an external collaborator this engine does not implement, so both
// validate the remote exists and otherwise no-op, leaving the actual
// file transfer to the external rsync invocation the CLI wraps.
func (a *App) Fetch(_ context.Context, name string) error {
	_, err := a.RemotePath(name)
	return err
}

func (a *App) Update(_ context.Context, name string) error {
	_, err := a.RemotePath(name)
	return err
}

// ArchiveSave materializes the latest build into dir as a self-contained
// snapshot, reusing Checkout with nolink=true so the archive survives the
// cellar being garbage-collected later.
func (a *App) ArchiveSave(ctx context.Context, dir string) error {
	return a.Checkout(ctx, dir, nil, 0, true)
}
