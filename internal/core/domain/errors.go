package domain

import "go.trai.ch/zerr"

// Sentinel errors for the kinds enumerated in the engine's error-handling
// design. Callers attach context with zerr.With. ErrRuleFailure,
// ErrCancelled and ErrTimeout name error kinds but are not returned by
// Task.Invoke or the scheduler: a failing rule surfaces as its own error
// wrapped with context, and a scheduler timeout as a separate error with
// its own message.
var (
	// ErrTaskNotFound is returned when a requested task hash has no record.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrGraphCycle is returned when creating a task would close a cycle.
	ErrGraphCycle = zerr.New("graph cycle")

	// ErrRuleFailure names the kind for a user rule/executor panic or non-nil error.
	ErrRuleFailure = zerr.New("rule failure")

	// ErrCancelled is returned when a task is aborted by cancellation.
	ErrCancelled = zerr.New("cancelled")

	// ErrTimeout is a RuleFailure with a distinguished cause.
	ErrTimeout = zerr.New("task timeout")

	// ErrCellarMissing is returned when an operation needs a cellar but
	// none is initialized at the working directory.
	ErrCellarMissing = zerr.New("cellar not initialized")

	// ErrHashMismatch is returned when a retrieved blob's content hash
	// differs from the address it was fetched by.
	ErrHashMismatch = zerr.New("blob hash mismatch")

	// ErrRemoteNotExists is returned when a named remote is not configured.
	ErrRemoteNotExists = zerr.New("remote not configured")

	// ErrBlobNotFound is returned by the file store when a hash is unknown.
	ErrBlobNotFound = zerr.New("blob not found")

	// ErrFutureAlreadyDone is returned by SetResult on an already-set future.
	ErrFutureAlreadyDone = zerr.New("future already done")

	// ErrFutureNotReady is returned by SetResult on a future with pending deps.
	ErrFutureNotReady = zerr.New("future not ready")

	// ErrSessionActive is returned when a second session tries to become active.
	ErrSessionActive = zerr.New("a session is already active")

	// ErrNoSessionActive is returned when an operation requires an active session.
	ErrNoSessionActive = zerr.New("no session is active")

	// ErrConfigParseFailed is returned when config.ini cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config.ini")

	// ErrNoTargetsSpecified is returned when a run/make command names no targets.
	ErrNoTargetsSpecified = zerr.New("no targets specified")
)
