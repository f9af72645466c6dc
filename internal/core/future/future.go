// Package future implements the in-memory graph nodes of a session: Task,
// Template, and Indexor, all satisfying the Future capability set described
// in the engine's design notes (a tagged-variant sum type rather than
// runtime inheritance).
package future

import (
	"sync"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
)

// unset is the sentinel identifying a Future whose result has not been set.
type unset struct{}

// Unset is the sentinel value for "no result yet".
var Unset any = unset{}

// Future is the abstract node type shared by Task, Template, and Indexor.
// Implementations embed *base to get the callback/notification machinery;
// HashID and the execution-specific behavior differ per variant.
type Future interface {
	// HashID is the future's stable content-addressed identity.
	HashID() hashutil.Hash
	// Ready reports whether the future has no pending dependencies.
	Ready() bool
	// Done reports whether the future's result has been set.
	Done() bool
	// Result returns the current result and whether it has been set.
	Result() (any, bool)
	// AddReadyCallback enqueues cb to run when the future becomes ready.
	// If the future is already ready, cb runs immediately (spec §4.4).
	AddReadyCallback(cb func())
	// AddDoneCallback enqueues cb to run when the future's result is set.
	// Must not be called after the future is already done.
	AddDoneCallback(cb func())
	// SetResult sets the future's result. The future must be ready; it is
	// an error to call this twice (spec invariant 5).
	SetResult(v any) error
}

// base implements the shared bookkeeping described in spec §3/§4.4:
// pending/dependents sets, the UNSET sentinel, and ordered callback queues.
// It is embedded (not inherited from) by Task, Template, and Indexor.
type base struct {
	mu sync.Mutex

	pending    map[hashutil.Hash]Future
	dependents []Future

	result any // Unset until SetResult is called

	readyCallbacks []func()
	doneCallbacks  []func()
	firedReady     bool
}

func newBase() *base {
	return &base{
		pending: make(map[hashutil.Hash]Future),
		result:  Unset,
	}
}

// Ready reports whether pending is empty (spec invariant 6).
func (b *base) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) == 0
}

// Done reports whether the result has been set (invariant 5).
func (b *base) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, set := b.result.(unset)
	return !set
}

// Result returns the current result and whether it is set.
func (b *base) Result() (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, set := b.result.(unset); set {
		return nil, false
	}
	return b.result, true
}

// AddReadyCallback fires cb immediately if already ready, matching spec
// §4.4's "if already ready, invoke immediately; else enqueue".
func (b *base) AddReadyCallback(cb func()) {
	b.mu.Lock()
	ready := len(b.pending) == 0
	if !ready {
		b.readyCallbacks = append(b.readyCallbacks, cb)
	}
	b.mu.Unlock()
	if ready {
		cb()
	}
}

// AddDoneCallback enqueues cb, or runs it immediately if the future is
// already done. Per spec, callers must not register after done, but we are
// defensive and simply fire immediately rather than lose the callback.
func (b *base) AddDoneCallback(cb func()) {
	b.mu.Lock()
	if _, set := b.result.(unset); !set {
		b.mu.Unlock()
		cb()
		return
	}
	b.doneCallbacks = append(b.doneCallbacks, cb)
	b.mu.Unlock()
}

// addPending registers dep as a not-yet-done dependency and records self as
// one of dep's dependents, wiring the notification edge described in the
// design notes (id->id edges in an arena, not owning pointers).
func addPending(self Future, b *base, dep Future) {
	if dep.Done() {
		return
	}
	b.mu.Lock()
	b.pending[dep.HashID()] = dep
	b.mu.Unlock()
	registerDependent(dep, self)
}

// registerDependent appends self to dep's dependents list via the concrete
// type's base, since Future itself does not expose dependents.
func registerDependent(dep Future, self Future) {
	if d, ok := dep.(interface{ addDependent(Future) }); ok {
		d.addDependent(self)
	}
}

func (b *base) addDependent(self Future) {
	b.mu.Lock()
	b.dependents = append(b.dependents, self)
	b.mu.Unlock()
}

// notifyDependentsDone is called by a future once its result is set; it pops
// itself out of each dependent's pending set, and if that empties the
// dependent's pending set, fires the dependent's ready-callbacks. Spec
// ordering: "dependents are notified before done-callbacks."
func notifyDependentsDone(self Future, b *base) {
	b.mu.Lock()
	dependents := append([]Future(nil), b.dependents...)
	b.mu.Unlock()

	for _, dep := range dependents {
		becameReady := popPending(dep, self.HashID())
		if becameReady {
			fireReady(dep)
		}
	}
}

func popPending(f Future, id hashutil.Hash) bool {
	base, ok := f.(interface{ popPending(hashutil.Hash) bool })
	if !ok {
		return false
	}
	return base.popPending(id)
}

func (b *base) popPending(id hashutil.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return false
	}
	delete(b.pending, id)
	return len(b.pending) == 0
}

func fireReady(f Future) {
	rf, ok := f.(interface{ fireReadyCallbacks() })
	if !ok {
		return
	}
	rf.fireReadyCallbacks()
}

// fireReadyCallbacks runs every registered ready-callback exactly once, in
// registration order (spec §5 ordering guarantee).
func (b *base) fireReadyCallbacks() {
	b.mu.Lock()
	if b.firedReady {
		b.mu.Unlock()
		return
	}
	b.firedReady = true
	cbs := b.readyCallbacks
	b.readyCallbacks = nil
	b.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// setResult implements the shared part of SetResult: must be ready, must
// not already be done, stores the value, then notifies dependents before
// firing done-callbacks (spec §5 ordering guarantee).
func setResult(self Future, b *base, v any) error {
	b.mu.Lock()
	if len(b.pending) != 0 {
		b.mu.Unlock()
		return domain.ErrFutureNotReady
	}
	if _, set := b.result.(unset); !set {
		b.mu.Unlock()
		return domain.ErrFutureAlreadyDone
	}
	b.result = v
	cbs := b.doneCallbacks
	b.doneCallbacks = nil
	b.mu.Unlock()

	notifyDependentsDone(self, b)

	for _, cb := range cbs {
		cb()
	}
	return nil
}
