// Package app wires the cellar, session, scheduler, and profile/config
// adapters into the operations cmd/cellar's subcommands call directly.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/adapters/config"
	"go.trai.ch/cellar/internal/adapters/profile"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/core/session"
	"go.trai.ch/cellar/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// DefaultCafDir is the directory name spec §6 names for persistent state,
// resolved relative to the current working directory unless overridden by
// --cafdir.
const DefaultCafDir = ".caf"

// App holds the adapters a CLI command needs and exposes one method per
// spec §6 subcommand (`conf` through ConfGet/ConfSet).
type App struct {
	Logger   ports.Logger
	Config   *config.Loader
	Profiles *profile.Loader
	Executor ports.Executor
	Tel      ports.Telemetry // may be nil

	CafDir string
}

// New creates an App. cafDir is normally DefaultCafDir joined onto the
// working directory the CLI was invoked from.
func New(logger ports.Logger, cfg *config.Loader, profiles *profile.Loader, exec ports.Executor, tel ports.Telemetry, cafDir string) *App {
	return &App{Logger: logger, Config: cfg, Profiles: profiles, Executor: exec, Tel: tel, CafDir: cafDir}
}

// Init creates a fresh cafdir: the objects/ tree, index.db, and an empty
// config.ini, per spec §6's persistent state layout.
func (a *App) Init(ctx context.Context) error {
	cel, err := cellar.Open(ctx, a.CafDir)
	if err != nil {
		return zerr.Wrap(err, "init: create cellar")
	}
	defer cel.Close() //nolint:errcheck

	configPath := filepath.Join(a.CafDir, "config.ini")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		empty := &config.Config{Remotes: map[string]config.Remote{}, Queues: map[string]config.Queue{}}
		if err := a.Config.Save(configPath, empty); err != nil {
			return zerr.Wrap(err, "init: write config.ini")
		}
	}
	return nil
}

// openCellar opens the existing cafdir, or returns domain.ErrCellarMissing
// if it has never been initialized.
func (a *App) openCellar(ctx context.Context) (*cellar.Cellar, error) {
	if _, err := os.Stat(a.CafDir); os.IsNotExist(err) {
		return nil, zerr.With(domain.ErrCellarMissing, "cafdir", a.CafDir)
	}
	return cellar.Open(ctx, a.CafDir)
}

func (a *App) loadConfig() (*config.Config, error) {
	return a.Config.Load(filepath.Join(a.CafDir, "config.ini"))
}

// appendLog appends one line to <cafdir>/log, matching the append-only
// `<timestamp>: <argv>` audit trail spec §6 describes.
func (a *App) appendLog(line string) {
	f, err := os.OpenFile(filepath.Join(a.CafDir, "log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		a.Logger.Warn("could not open log file: " + err.Error())
		return
	}
	defer f.Close() //nolint:errcheck
	fmt.Fprintf(f, "%s: %s\n", time.Now().UTC().Format(time.RFC3339), line)
}

// RunOptions configures Run/Make.
type RunOptions struct {
	Parallelism   int
	WorkspaceRoot string
}

func (o RunOptions) normalized() RunOptions {
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.WorkspaceRoot == "" {
		o.WorkspaceRoot = "."
	}
	return o
}

// Run loads cellarfile.yaml, compiles the named profiles into a session
// graph, and drives them to completion through the concurrent scheduler.
// It is `run`/`make`'s shared implementation (`make` is a spec-named alias
// of `run`).
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) ([]any, error) {
	if len(targetNames) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}
	opts = opts.normalized()

	cel, err := a.openCellar(ctx)
	if err != nil {
		return nil, err
	}
	defer cel.Close() //nolint:errcheck

	cellarfilePath, err := a.Profiles.Find(opts.WorkspaceRoot)
	if err != nil {
		return nil, zerr.Wrap(err, "run: find cellarfile")
	}
	cf, err := a.Profiles.Load(cellarfilePath)
	if err != nil {
		return nil, err
	}

	sess, err := session.Open()
	if err != nil {
		return nil, zerr.Wrap(err, "run: open session")
	}
	defer sess.Close()

	sandboxRoot, err := os.MkdirTemp("", "cellar-sandbox-")
	if err != nil {
		return nil, zerr.Wrap(err, "run: create sandbox root")
	}
	defer os.RemoveAll(sandboxRoot) //nolint:errcheck

	tasks, err := profile.Build(ctx, cel, a.Executor, sess, cf, opts.WorkspaceRoot, sandboxRoot, targetNames)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(sess, a.Logger, a.Tel, scheduler.Options{Parallelism: opts.Parallelism})
	results, err := sched.Run(ctx, tasks...)
	if err != nil {
		return nil, zerr.Wrap(err, "run: execution failed")
	}

	a.appendLog(fmt.Sprintf("run %v", targetNames))
	return results, nil
}

// Checkout materializes the nth-most-recent build's targets (nth=0 latest)
// matching patterns into dir.
func (a *App) Checkout(ctx context.Context, dir string, patterns []string, nth int, nolink bool) error {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return err
	}
	defer cel.Close() //nolint:errcheck
	return cel.Checkout(ctx, dir, patterns, nth, nolink)
}

// Reset clears a task's state back to CLEAN so the next run re-executes it.
func (a *App) Reset(ctx context.Context, hash string) error {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return err
	}
	defer cel.Close() //nolint:errcheck

	h, err := hashutil.ParseHash(hash)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "reset: parse hash"), "hash", hash)
	}
	return cel.ResetTask(ctx, h)
}

// Status reports a task's recorded state.
func (a *App) Status(ctx context.Context, hash string) (domain.State, error) {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return "", err
	}
	defer cel.Close() //nolint:errcheck

	h, err := hashutil.ParseHash(hash)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "status: parse hash"), "hash", hash)
	}
	rec, err := cel.GetTask(ctx, h)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// ListTasks returns every task hash and its state.
func (a *App) ListTasks(ctx context.Context) (map[string]domain.State, error) {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return nil, err
	}
	defer cel.Close() //nolint:errcheck

	tasks, err := cel.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.State, len(tasks))
	for h, s := range tasks {
		out[string(h)] = s
	}
	return out, nil
}

// ListBuilds returns every recorded build id.
func (a *App) ListBuilds(ctx context.Context) ([]int64, error) {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return nil, err
	}
	defer cel.Close() //nolint:errcheck
	return cel.ListBuilds(ctx)
}

// ListProfiles returns every profile name declared in cellarfile.yaml.
func (a *App) ListProfiles(workspaceRoot string) ([]string, error) {
	path, err := a.Profiles.Find(workspaceRoot)
	if err != nil {
		return nil, err
	}
	cf, err := a.Profiles.Load(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cf.Profiles))
	for name := range cf.Profiles {
		names = append(names, name)
	}
	return names, nil
}

// ListRemotes returns the remote names declared in config.ini.
func (a *App) ListRemotes() ([]string, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Remotes))
	for name := range cfg.Remotes {
		names = append(names, name)
	}
	return names, nil
}

// GC runs cellar garbage collection, retaining the keepBuilds most recent
// builds (and, per the gc() retention decision, any ERROR task reachable
// from them).
func (a *App) GC(ctx context.Context, keepBuilds int) (removedTasks, removedBlobs int, err error) {
	cel, err := a.openCellar(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer cel.Close() //nolint:errcheck
	return cel.GC(ctx, keepBuilds)
}

// ConfGet returns one `core` section value from config.ini.
func (a *App) ConfGet(key string) (string, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	switch key {
	case "cache":
		return cfg.Core.Cache, nil
	case "curl":
		return cfg.Core.Curl, nil
	case "tmpdir":
		return cfg.Core.Tmpdir, nil
	default:
		return "", zerr.With(domain.ErrConfigParseFailed, "key", key)
	}
}

// ConfSet persists one `core` section value to config.ini.
func (a *App) ConfSet(key, value string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	switch key {
	case "cache":
		cfg.Core.Cache = value
	case "curl":
		cfg.Core.Curl = value
	case "tmpdir":
		cfg.Core.Tmpdir = value
	default:
		return zerr.With(domain.ErrConfigParseFailed, "key", key)
	}
	return a.Config.Save(filepath.Join(a.CafDir, "config.ini"), cfg)
}

// RemoteAdd persists a named remote (host, path) to config.ini.
func (a *App) RemoteAdd(name, host, path string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]config.Remote)
	}
	cfg.Remotes[name] = config.Remote{Host: host, Path: path}
	return a.Config.Save(filepath.Join(a.CafDir, "config.ini"), cfg)
}

// RemotePath returns the configured path for a named remote.
func (a *App) RemotePath(name string) (string, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	r, ok := cfg.Remotes[name]
	if !ok {
		return "", zerr.With(domain.ErrRemoteNotExists, "remote", name)
	}
	return r.Path, nil
}

// LastQueue reads the URL of the last queue `submit` reported to, per
// spec §6's `--last` flag and `<cafdir>/LAST_QUEUE` file.
func (a *App) LastQueue() (string, error) {
	data, err := os.ReadFile(filepath.Join(a.CafDir, "LAST_QUEUE"))
	if err != nil {
		return "", zerr.Wrap(err, "no previous queue recorded")
	}
	return string(data), nil
}

// RecordQueue persists the URL of a freshly submitted queue.
func (a *App) RecordQueue(url string) error {
	return os.WriteFile(filepath.Join(a.CafDir, "LAST_QUEUE"), []byte(url), 0o600)
}
