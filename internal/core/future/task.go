package future

import (
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
)

// Task is a Future bound to a Rule and its argument futures. Its identity is
// the SHA-1 of the canonical JSON array [ruleName, argHashes...] (spec §3).
type Task struct {
	*base

	rule Rule
	args []Future
	hash hashutil.Hash

	// adopted is set when the rule function returns another Future; Task
	// becomes done only once adopted is, and takes on its value (spec §4.4).
	adopted Future
}

// NewTask constructs a Task future for rule applied to args. The caller
// (normally session.CreateTask) is responsible for hash-based dedup; NewTask
// always allocates a fresh node.
func NewTask(rule Rule, args []Future) (*Task, error) {
	argHashes := make([]hashutil.Hash, len(args))
	for i, a := range args {
		argHashes[i] = a.HashID()
	}
	hash, err := hashutil.HashTask(rule.Name, argHashes)
	if err != nil {
		return nil, err
	}

	t := &Task{
		base: newBase(),
		rule: rule,
		args: args,
		hash: hash,
	}

	for _, a := range args {
		addPending(t, t.base, a)
	}

	return t, nil
}

// HashID returns the task's content-addressed identity.
func (t *Task) HashID() hashutil.Hash { return t.hash }

// SetResult overrides base to keep symmetric embedding semantics explicit;
// Task's own completion is normally driven by Invoke, not external callers.
func (t *Task) SetResult(v any) error {
	return setResult(t, t.base, v)
}

// Invoke runs the rule function against the current (ready) results of its
// argument futures. It must only be called once the Task is Ready(). If the
// rule returns a Future, Task adopts it: Task becomes done only once that
// Future is done, and takes on its value (spec §4.4 composite-graph rule).
// Otherwise Task's own result is set immediately to the returned value.
func (t *Task) Invoke() error {
	values := make([]any, len(t.args))
	for i, a := range t.args {
		v, ok := a.Result()
		if !ok {
			return zerr.New("task invoke: argument not done")
		}
		values[i] = v
	}

	result, err := t.rule.Fn(values)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "rule failure"), "rule", t.rule.Name)
	}

	if sub, ok := result.(Future); ok {
		t.adopted = sub
		sub.AddDoneCallback(func() {
			v, _ := sub.Result()
			_ = t.SetResult(v)
		})
		return nil
	}

	return t.SetResult(result)
}

// Adopted returns the Future this Task is tracking, if its rule returned
// one, and whether it has adopted a sub-future at all.
func (t *Task) Adopted() (Future, bool) {
	return t.adopted, t.adopted != nil
}

// RuleName returns the fully-qualified rule name this task was created from.
func (t *Task) RuleName() string { return t.rule.Name }
