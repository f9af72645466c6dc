// Package ports defines the narrow interfaces that stay genuinely
// pluggable: task execution and telemetry. Everything else the old
// static-graph engine abstracted behind a port (config loading, hashing,
// input resolution, build-info storage) is now owned outright by a single
// concrete package (hashutil, taskindex, cellar) and no longer needs a
// seam — see DESIGN.md.
package ports

import "context"

// Executor runs a task's command inside an already-materialized sandbox
// directory and reports the outcome. The calling rule (engine/shelltask)
// checks out inputs before calling Execute and seals declared output paths
// into the cellar afterward; Execute itself only drives the process.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs command in dir with the given environment ("KEY=VALUE"
	// entries). Returns an error if the process cannot be started or exits
	// non-zero.
	Execute(ctx context.Context, dir string, command string, env []string) error
}
