// Package executor provides the pluggable task-execution adapters: a local
// shell executor and a remote HTTP-queue executor, both satisfying
// ports.Executor.
package executor

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// Shell implements ports.Executor by running a task's command string
// through "sh -c" in its checked-out sandbox directory.
type Shell struct {
	logger ports.Logger
}

// NewShell creates a new Shell executor.
func NewShell(logger ports.Logger) *Shell {
	return &Shell{logger: logger}
}

// Execute runs command in dir via "sh -c", merging env on top of the
// ambient process environment the way the previous static-graph executor
// merged a hermetic environment over os.Environ().
func (e *Shell) Execute(ctx context.Context, dir string, command string, env []string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // command is a declared task invocation, not untrusted input
	cmd.Dir = dir
	cmd.Env = append(append([]string(nil), os.Environ()...), env...)
	cmd.Stdout = &logWriter{logger: e.logger, isErr: false}
	cmd.Stderr = &logWriter{logger: e.logger, isErr: true}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
	}

	return nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

type logWriter struct {
	logger ports.Logger
	isErr  bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.isErr {
			w.logger.Error(zerr.New(line))
		} else {
			w.logger.Info(line)
		}
	}
	return len(p), nil
}
