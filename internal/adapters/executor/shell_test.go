package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/executor"
)

type nullLogger struct{}

func (nullLogger) Info(string)  {}
func (nullLogger) Warn(string)  {}
func (nullLogger) Error(error)  {}

func TestShell_ExecuteWritesFile(t *testing.T) {
	dir := t.TempDir()
	sh := executor.NewShell(nullLogger{})

	err := sh.Execute(context.Background(), dir, "echo hi > out.txt", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestShell_ExecuteReturnsErrorOnFailure(t *testing.T) {
	dir := t.TempDir()
	sh := executor.NewShell(nullLogger{})

	err := sh.Execute(context.Background(), dir, "exit 3", nil)
	assert.Error(t, err)
}

func TestShell_ExecuteEmptyCommandIsNoop(t *testing.T) {
	dir := t.TempDir()
	sh := executor.NewShell(nullLogger{})
	assert.NoError(t, sh.Execute(context.Background(), dir, "", nil))
}
