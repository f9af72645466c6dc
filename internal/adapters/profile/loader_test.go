package profile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/adapters/executor"
	"go.trai.ch/cellar/internal/adapters/profile"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/cellar/internal/core/session"
)

type nullLogger struct{}

func (nullLogger) Info(string) {}
func (nullLogger) Warn(string) {}
func (nullLogger) Error(error) {}

func TestLoader_FindWalksUpward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, profile.FileName), []byte("profiles: {}\n"), 0o600))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	l := profile.NewLoader(nullLogger{})
	found, err := l.Find(sub)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, profile.FileName), found)
}

func TestBuild_SingleProfileRuns(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "in.txt"), []byte("hello"), 0o600))

	cel, err := cellar.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer cel.Close()

	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	cf := &profile.Cellarfile{
		Profiles: map[string]*profile.ProfileDTO{
			"build": {Cmd: "cat in.txt > out.txt", Input: []string{"in.txt"}, Target: []string{"out.txt"}},
		},
	}

	tasks, err := profile.Build(ctx, cel, executor.NewShell(nullLogger{}), sess, cf, workspace, t.TempDir(), []string{"build"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	v, err := sess.Eval(tasks[0])
	require.NoError(t, err)
	hash := v.(hashutil.Hash)

	rec, err := cel.GetTask(ctx, hash)
	require.NoError(t, err)
	assert.Contains(t, rec.Outputs, "out.txt")
}

func TestBuild_DependentProfileSeesChildOutput(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()

	cel, err := cellar.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer cel.Close()

	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	cf := &profile.Cellarfile{
		Profiles: map[string]*profile.ProfileDTO{
			"base":    {Cmd: "echo base > base.txt", Target: []string{"base.txt"}},
			"derived": {Cmd: "cat base.txt > derived.txt", Target: []string{"derived.txt"}, DependsOn: []string{"base"}},
		},
	}

	tasks, err := profile.Build(ctx, cel, executor.NewShell(nullLogger{}), sess, cf, workspace, t.TempDir(), []string{"derived"})
	require.NoError(t, err)

	v, err := sess.Eval(tasks[0])
	require.NoError(t, err)
	rec, err := cel.GetTask(ctx, v.(hashutil.Hash))
	require.NoError(t, err)
	assert.Contains(t, rec.Outputs, "derived.txt")
}

func TestBuild_CycleIsRejected(t *testing.T) {
	ctx := context.Background()
	cel, err := cellar.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer cel.Close()

	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	cf := &profile.Cellarfile{
		Profiles: map[string]*profile.ProfileDTO{
			"a": {DependsOn: []string{"b"}},
			"b": {DependsOn: []string{"a"}},
		},
	}

	_, err = profile.Build(ctx, cel, executor.NewShell(nullLogger{}), sess, cf, t.TempDir(), t.TempDir(), []string{"a"})
	assert.Error(t, err)
}
