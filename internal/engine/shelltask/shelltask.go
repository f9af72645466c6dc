// Package shelltask builds the one concrete future.Rule this engine ships:
// a rule whose function runs a shell command against a cellar-checked-out
// sandbox and seals its declared outputs back into the cellar, caching on
// the resulting task's content-addressed hash. Every other rule a caller
// registers is a plain in-process Go function (spec §3's "pure rules");
// this is the one that touches the filesystem and an executor.
//
// A shelltask.Rule's returned future result is the task's own hashutil.Hash
// once sealed, not its output bytes — a dependent shelltask looks up the
// hash's ChildRef.PathInChild output through the cellar rather than
// threading file content through memory.
package shelltask

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/future"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// ChildRef declares that a sandbox input path is another shelltask's output.
type ChildRef struct {
	// Task is the future.Task producing the referenced output. It must be
	// a task built by New (or anything else whose Result() is a
	// hashutil.Hash of a sealed TaskRecord).
	Task *future.Task
	// PathInChild is the output path within the child's own sandbox.
	PathInChild string
}

// Spec describes the sandbox and invocation of one shell-backed task.
type Spec struct {
	// Command is the literal shell invocation (spec §3's "command" field;
	// empty is valid for rules that only materialize files).
	Command string
	// Inputs maps sandbox-relative path to an already-stored blob hash.
	Inputs map[string]hashutil.Hash
	// Children maps sandbox-relative path to another task's output.
	Children map[string]ChildRef
	// Outputs lists sandbox-relative paths to seal once Command exits 0.
	Outputs []string
}

// New builds a future.Rule for spec plus the ordered argument list the
// caller must pass to session.CreateTask so the child futures this task
// depends on are registered as its args (wiring the DAG edges the session
// and scheduler traverse).
//
// ctx is captured by the returned rule's closure and used for every
// Execute call the rule makes when invoked; callers construct the whole
// graph for one run under a single ctx so that cancelling it reaches
// in-flight shell commands (exec.CommandContext kills the child process)
// without future.RuleFunc itself needing a context parameter.
func New(ctx context.Context, cel *cellar.Cellar, exec ports.Executor, sandboxRoot string, name string, spec Spec) (future.Rule, []any) {
	childPaths := make([]string, 0, len(spec.Children))
	for p := range spec.Children {
		childPaths = append(childPaths, p)
	}
	sort.Strings(childPaths)

	args := make([]any, len(childPaths))
	for i, p := range childPaths {
		args[i] = spec.Children[p].Task
	}

	fn := func(argValues []any) (any, error) {
		return run(ctx, cel, exec, sandboxRoot, spec, childPaths, argValues)
	}

	return future.NewRule("shell:"+name, fn), args
}

func run(ctx context.Context, cel *cellar.Cellar, exec ports.Executor, sandboxRoot string, spec Spec, childPaths []string, argValues []any) (any, error) {
	inputs := make(map[string]hashutil.Hash, len(spec.Inputs)+len(childPaths))
	for p, h := range spec.Inputs {
		inputs[p] = h
	}
	children := make(map[string]hashutil.Hash, len(childPaths))
	childLinks := make(map[string]domain.ChildLink, len(childPaths))
	for i, p := range childPaths {
		childHash, ok := argValues[i].(hashutil.Hash)
		if !ok {
			return nil, zerr.With(zerr.New("shelltask: child argument is not a task hash"), "path", p)
		}
		ref := spec.Children[p]
		childRec, err := cel.GetTask(ctx, childHash)
		if err != nil {
			return nil, zerr.Wrap(err, "shelltask: load child task")
		}
		blobHash, ok := childRec.Outputs[ref.PathInChild]
		if !ok {
			return nil, zerr.With(zerr.New("shelltask: child output not found"), "path", ref.PathInChild)
		}
		inputs[p] = blobHash
		children[p] = childHash
		childLinks[p] = domain.ChildLink{
			Child: domain.NewInternedString(childHash.String()),
			Path:  domain.NewInternedString(ref.PathInChild),
		}
	}

	rec := &domain.TaskRecord{
		Command:    spec.Command,
		Inputs:     inputs,
		Children:   children,
		ChildLinks: childLinks,
		State:      domain.StateClean,
	}
	hash, err := rec.ComputeHash()
	if err != nil {
		return nil, zerr.Wrap(err, "shelltask: compute hash")
	}
	rec.Hash = hash

	if existing, err := cel.GetTask(ctx, hash); err == nil && existing.State.Skippable() {
		return hash, nil
	}

	if _, _, err := cel.StoreBuild(ctx, []*domain.TaskRecord{rec}, nil, nil); err != nil {
		return nil, zerr.Wrap(err, "shelltask: store task")
	}
	if err := cel.MarkRunning(ctx, hash); err != nil {
		return nil, zerr.Wrap(err, "shelltask: mark running")
	}

	sandbox := filepath.Join(sandboxRoot, hash.String())
	if err := os.MkdirAll(sandbox, 0o750); err != nil {
		_ = cel.MarkError(ctx, hash)
		return nil, zerr.Wrap(err, "shelltask: mkdir sandbox")
	}
	if err := cel.MaterializeTask(ctx, sandbox, hash, false); err != nil {
		_ = cel.MarkError(ctx, hash)
		return nil, zerr.Wrap(err, "shelltask: materialize inputs")
	}

	if err := exec.Execute(ctx, sandbox, spec.Command, nil); err != nil {
		_ = cel.MarkError(ctx, hash)
		return nil, zerr.With(zerr.Wrap(err, "shelltask: execute"), "task", hash.String())
	}

	outputFiles := make(map[string][]byte, len(spec.Outputs))
	for _, p := range spec.Outputs {
		data, err := os.ReadFile(filepath.Join(sandbox, filepath.FromSlash(p)))
		if err != nil {
			_ = cel.MarkError(ctx, hash)
			return nil, zerr.With(zerr.Wrap(err, "shelltask: read declared output"), "path", p)
		}
		outputFiles[p] = data
	}
	if err := cel.SealTask(ctx, hash, outputFiles); err != nil {
		return nil, zerr.Wrap(err, "shelltask: seal")
	}

	return hash, nil
}
