// Package scheduler implements the concurrent driver described in spec
// §4.6/§5: it pops ready tasks off a session, dispatches each to a bounded
// worker pool, and feeds results back until every requested target is
// done. It is deliberately ignorant of *how* a task executes (that is
// entirely the rule function's business, see engine/shelltask) — its job
// is pure DAG traversal, concurrency, cancellation, and bookkeeping.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.trai.ch/cellar/internal/core/future"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/core/session"
	"go.trai.ch/zerr"
)

// DefaultConsecutiveErrorLimit aborts a run after this many task failures
// in a row, per spec §4.6, unless overridden by Options.
const DefaultConsecutiveErrorLimit = 5

// Options configures one Scheduler run.
type Options struct {
	// Parallelism bounds the number of tasks invoked concurrently. <=0
	// means 1 (sequential, but still through the same driver loop as the
	// concurrent path rather than session.Eval, so telemetry/limits apply
	// uniformly).
	Parallelism int
	// ConsecutiveErrorLimit aborts the run once this many task failures
	// have occurred back-to-back with no intervening success. 0 means
	// DefaultConsecutiveErrorLimit; negative disables the limit.
	ConsecutiveErrorLimit int
	// TaskTimeout bounds how long Run waits for any single in-flight task
	// before recording it as failed and moving on. It does not interrupt
	// the task itself (future.RuleFunc has no cancellation hook of its
	// own) — a timed-out task's goroutine keeps running in the background
	// and its eventual result, if any, is discarded. Real process-level
	// cancellation for shelltask rules comes from cancelling the ctx given
	// to shelltask.New at graph-construction time, not from this field.
	TaskTimeout time.Duration
}

func (o Options) normalized() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.ConsecutiveErrorLimit == 0 {
		o.ConsecutiveErrorLimit = DefaultConsecutiveErrorLimit
	}
	return o
}

// Scheduler drives one session's ready queue to completion.
type Scheduler struct {
	sess   *session.Session
	logger ports.Logger
	tel    ports.Telemetry
	opts   Options
}

// New creates a Scheduler over sess. tel may be nil (telemetry becomes a
// no-op).
func New(sess *session.Session, logger ports.Logger, tel ports.Telemetry, opts Options) *Scheduler {
	return &Scheduler{sess: sess, logger: logger, tel: tel, opts: opts.normalized()}
}

type taskResult struct {
	task *future.Task
	err  error
}

// Run evaluates every target concurrently, respecting Options, and returns
// each target's resolved value in order, or the first error encountered
// (joined with any others if several tasks failed before the run stopped).
// Cancelling ctx is a "soft" cancel: Run stops dispatching new tasks and
// returns once the in-flight ones report back, but does not itself kill
// them — for shelltask rules, that only happens if ctx is the same one
// passed to shelltask.New, since that ctx reaches exec.CommandContext.
func (s *Scheduler) Run(ctx context.Context, targets ...*future.Task) ([]any, error) {
	resultsCh := make(chan taskResult, s.opts.Parallelism)
	var active int
	var consecutiveErrors int
	var runErr error

	dispatch := func(t *future.Task) {
		active++
		var vtx ports.Vertex
		if s.tel != nil {
			_, vtx = s.tel.Record(ctx, t.RuleName())
		}

		done := make(chan error, 1)
		go func() {
			done <- t.Invoke()
		}()

		go func() {
			var err error
			if s.opts.TaskTimeout > 0 {
				select {
				case err = <-done:
				case <-time.After(s.opts.TaskTimeout):
					err = zerr.With(zerr.New("scheduler: task timed out"), "task", t.RuleName())
				}
			} else {
				err = <-done
			}
			if vtx != nil {
				vtx.Complete(err)
			}
			resultsCh <- taskResult{task: t, err: err}
		}()
	}

loop:
	for {
		// EXECUTE: fill remaining worker slots with ready tasks, unless ctx
		// was cancelled — a soft cancel stops new dispatch immediately even
		// while it waits for already-running tasks to report back.
		if ctx.Err() == nil {
			for active < s.opts.Parallelism {
				t, ok := s.sess.PopReady()
				if !ok {
					break
				}
				dispatch(t)
			}
		}

		done := allDone(targets)
		if done {
			break loop
		}
		if active == 0 && s.sess.Waiting() == 0 {
			// Nothing in flight or ready and targets still aren't all done:
			// the graph can never reach them (e.g. a target was never
			// registered against this session, or it depends on a task that
			// failed and so left its dependents pending).
			runErr = errors.Join(runErr, zerr.New("scheduler: ready queue exhausted before all targets resolved"))
			break loop
		}

		select {
		case <-ctx.Done():
			if active == 0 {
				runErr = errors.Join(runErr, ctx.Err())
				break loop
			}
			// Soft cancel: drain in-flight results, stop dispatching more.
			res := <-resultsCh
			active--
			runErr = s.handleResult(res, &consecutiveErrors, runErr)
			if s.opts.ConsecutiveErrorLimit > 0 && consecutiveErrors >= s.opts.ConsecutiveErrorLimit {
				break loop
			}
		case res := <-resultsCh:
			active--
			runErr = s.handleResult(res, &consecutiveErrors, runErr)
			if s.opts.ConsecutiveErrorLimit > 0 && consecutiveErrors >= s.opts.ConsecutiveErrorLimit {
				break loop
			}
		case <-s.sess.ReadySignal():
			// Loop around; the EXECUTE step above will pick up whatever
			// became ready.
		}
	}

	if runErr != nil {
		return nil, runErr
	}

	out := make([]any, len(targets))
	for i, t := range targets {
		v, ok := t.Result()
		if !ok {
			return nil, zerr.With(zerr.New("scheduler: target never resolved"), "task", t.RuleName())
		}
		out[i] = v
	}
	return out, nil
}

func (s *Scheduler) handleResult(res taskResult, consecutiveErrors *int, runErr error) error {
	if res.err != nil {
		*consecutiveErrors++
		if s.logger != nil {
			s.logger.Error(zerr.With(zerr.Wrap(res.err, "task failed"), "task", res.task.RuleName()))
		}
		return errors.Join(runErr, res.err)
	}
	*consecutiveErrors = 0
	return runErr
}

func allDone(targets []*future.Task) bool {
	for _, t := range targets {
		if !t.Done() {
			return false
		}
	}
	return true
}
