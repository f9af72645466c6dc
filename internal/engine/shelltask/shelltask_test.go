package shelltask_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/adapters/executor"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/cellar/internal/core/session"
	"go.trai.ch/cellar/internal/engine/shelltask"
)

type nullLogger struct{}

func (nullLogger) Info(string) {}
func (nullLogger) Warn(string) {}
func (nullLogger) Error(error) {}

func TestShelltask_RunsOnceAndSealsOutput(t *testing.T) {
	ctx := context.Background()
	cel, err := cellar.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer cel.Close()

	sh := executor.NewShell(nullLogger{})

	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	rule, args := shelltask.New(ctx, cel, sh, t.TempDir(), "greet", shelltask.Spec{
		Command: "echo hi > out.txt",
		Outputs: []string{"out.txt"},
	})

	task, err := sess.CreateTask(rule, args...)
	require.NoError(t, err)

	v, err := sess.Eval(task)
	require.NoError(t, err)

	hash, ok := v.(hashutil.Hash)
	require.True(t, ok)

	rec, err := cel.GetTask(ctx, hash)
	require.NoError(t, err)
	assert.Len(t, rec.Outputs, 1)
}

func TestShelltask_ChildOutputBecomesParentInput(t *testing.T) {
	ctx := context.Background()
	cel, err := cellar.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer cel.Close()

	sh := executor.NewShell(nullLogger{})
	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	childRule, childArgs := shelltask.New(ctx, cel, sh, t.TempDir(), "child", shelltask.Spec{
		Command: "echo child > result.txt",
		Outputs: []string{"result.txt"},
	})
	childTask, err := sess.CreateTask(childRule, childArgs...)
	require.NoError(t, err)

	parentRule, parentArgs := shelltask.New(ctx, cel, sh, t.TempDir(), "parent", shelltask.Spec{
		Command: "cat dep/result.txt > out.txt",
		Children: map[string]shelltask.ChildRef{
			"dep/result.txt": {Task: childTask, PathInChild: "result.txt"},
		},
		Outputs: []string{"out.txt"},
	})
	parentTask, err := sess.CreateTask(parentRule, parentArgs...)
	require.NoError(t, err)

	v, err := sess.Eval(parentTask)
	require.NoError(t, err)

	hash := v.(hashutil.Hash)
	rec, err := cel.GetTask(ctx, hash)
	require.NoError(t, err)
	assert.Contains(t, rec.Outputs, "out.txt")
}
