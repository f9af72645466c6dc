package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })
}

func withArgs(t *testing.T, args []string) {
	t.Helper()
	original := os.Args
	os.Args = args
	t.Cleanup(func() { os.Args = original })
}

func TestRun_InitThenRunIntegration(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "cellarfile.yaml"), []byte(
		"profiles:\n  build:\n    cmd: \"echo hi > out.txt\"\n    target: [\"out.txt\"]\n",
	), 0o600))

	withArgs(t, []string{"cellar", "init"})
	assert.Equal(t, 0, run())

	withArgs(t, []string{"cellar", "run", "build"})
	assert.Equal(t, 0, run())
}

func TestRun_MissingCellarIsFatal(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	withArgs(t, []string{"cellar", "run", "build"})
	assert.Equal(t, 1, run())
}

func TestRun_InvalidUsageExitsTwo(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	withArgs(t, []string{"cellar", "list", "bogus"})
	assert.Equal(t, 2, run())
}
