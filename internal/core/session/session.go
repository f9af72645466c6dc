// Package session implements the per-invocation registry described in spec
// §4.5: a process-wide, single-active scope that dedupes tasks by hash,
// holds the ready queue, and hosts the DAG under construction.
package session

import (
	"sync"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/future"
	"go.trai.ch/zerr"
)

var (
	globalMu     sync.Mutex
	globalActive bool
)

// Session is a scoped, in-process context for constructing and evaluating a
// task graph. Only one Session may be active process-wide at a time; Open
// enforces this with a mutex rather than implicit global state, per design
// notes §9.
type Session struct {
	mu      sync.Mutex
	tasks   map[string]*future.Task
	pending map[string]*future.Task
	waiting []*future.Task
	ready   chan struct{}
}

// Open acquires the process-wide active-session slot and returns a new
// Session. Callers must defer sess.Close() to guarantee release on every
// exit path, including panics propagating past the caller.
func Open() (*Session, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalActive {
		return nil, domain.ErrSessionActive
	}
	globalActive = true

	return &Session{
		tasks:   make(map[string]*future.Task),
		pending: make(map[string]*future.Task),
		ready:   make(chan struct{}, 1),
	}, nil
}

// Close releases the process-wide active-session slot. It is safe to call
// more than once.
func (s *Session) Close() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalActive = false
}

// CreateTask wraps each arg into a Future, computes the task's hash, and
// either returns the already-registered Task with that hash (dedup by
// identity, spec invariant 1 and the idempotence guarantee in spec §5) or
// registers and returns a new one.
func (s *Session) CreateTask(rule future.Rule, args ...any) (*future.Task, error) {
	wrapped := make([]future.Future, len(args))
	for i, a := range args {
		f, err := future.WrapInput(a)
		if err != nil {
			return nil, zerr.Wrap(err, "create task: wrap argument")
		}
		wrapped[i] = f
	}

	candidate, err := future.NewTask(rule, wrapped)
	if err != nil {
		return nil, zerr.Wrap(err, "create task: compute identity")
	}

	key := candidate.HashID().String()

	s.mu.Lock()
	if existing, ok := s.tasks[key]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.tasks[key] = candidate
	s.pending[key] = candidate
	s.mu.Unlock()

	candidate.AddReadyCallback(func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.waiting = append(s.waiting, candidate)
		s.mu.Unlock()
		s.signalReady()
	})

	return candidate, nil
}

// popWaiting removes and returns the next ready-but-unexecuted task, FIFO,
// or nil if none are waiting.
func (s *Session) popWaiting() *future.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiting) == 0 {
		return nil
	}
	t := s.waiting[0]
	s.waiting = s.waiting[1:]
	return t
}

// signalReady wakes one blocked ReadySignal waiter, if any. The channel is
// buffered to depth 1 so bursts of ready-callbacks never block the caller
// that fired them (often another task's done-callback).
func (s *Session) signalReady() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// PopReady is the exported, concurrency-driver-facing form of popWaiting:
// it removes and returns the next ready-but-unexecuted task, FIFO, along
// with whether one was available. Used by engine/scheduler to dispatch
// work across a worker pool instead of the single-threaded Eval loop.
func (s *Session) PopReady() (*future.Task, bool) {
	t := s.popWaiting()
	return t, t != nil
}

// ReadySignal returns a channel that receives a value whenever a task
// transitions to waiting. It is a hint, not a guarantee: callers should
// drain PopReady in a loop after each receive, since one signal may
// correspond to several newly-ready tasks.
func (s *Session) ReadySignal() <-chan struct{} {
	return s.ready
}

// Pending reports how many registered tasks are still waiting on at least
// one dependency. A scheduler is done driving this session once Pending is
// zero, no task is waiting, and no task is in flight.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Waiting reports how many tasks are ready but not yet popped/invoked.
func (s *Session) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

// Eval normalizes value to a Future, then repeatedly pops and runs ready
// tasks until none remain waiting, and returns the Future's result. This is
// the single-threaded default scheduler described in spec §4.5; the
// concurrent variant lives in engine/scheduler.
func (s *Session) Eval(value any) (any, error) {
	target, err := future.WrapInput(value)
	if err != nil {
		return nil, err
	}

	for {
		t := s.popWaiting()
		if t == nil {
			break
		}
		if err := t.Invoke(); err != nil {
			return nil, zerr.With(err, "task", t.RuleName())
		}
	}

	v, ok := target.Result()
	if !ok {
		return nil, zerr.New("eval: future never resolved")
	}
	return v, nil
}

// TaskCount returns the number of distinct tasks registered in this session.
func (s *Session) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns a snapshot of every task registered in this session, keyed
// by hash string, for callers (e.g. the cellar adapter) that need to persist
// the whole graph rather than just the evaluated target.
func (s *Session) Tasks() map[string]*future.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*future.Task, len(s.tasks))
	for k, v := range s.tasks {
		out[k] = v
	}
	return out
}
