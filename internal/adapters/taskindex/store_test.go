package taskindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/taskindex"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
)

func openTestIndex(t *testing.T) *taskindex.Index {
	t.Helper()
	idx, err := taskindex.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_PutAndGetTask(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	rec := &domain.TaskRecord{
		Hash:    hashutil.MustParseHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Command: "echo hi",
		Inputs:  map[string]hashutil.Hash{"in.txt": hashutil.MustParseHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")},
		State:   domain.StateClean,
	}
	require.NoError(t, idx.PutTask(ctx, rec))

	got, err := idx.GetTask(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, rec.Command, got.Command)
	assert.Equal(t, rec.Inputs, got.Inputs)
	assert.Nil(t, got.Outputs)
}

func TestIndex_SealTaskRecordsOutputsOnlyWhenDone(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	rec := &domain.TaskRecord{
		Hash:    hashutil.MustParseHash("cccccccccccccccccccccccccccccccccccccccc"),
		Command: "build",
		State:   domain.StateRunning,
	}
	require.NoError(t, idx.PutTask(ctx, rec))

	outHash := hashutil.MustParseHash("dddddddddddddddddddddddddddddddddddddddd")
	require.NoError(t, idx.SealTask(ctx, rec.Hash, map[string]hashutil.Hash{"out.bin": outHash}))

	got, err := idx.GetTask(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, got.State)
	assert.Equal(t, outHash, got.Outputs["out.bin"])
}

func TestIndex_GetTaskNotFound(t *testing.T) {
	idx := openTestIndex(t)
	_, err := idx.GetTask(context.Background(), hashutil.MustParseHash("eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"))
	assert.Error(t, err)
}

func TestIndex_CreateBuildAndGetTargets(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	h := hashutil.MustParseHash("1111111111111111111111111111111111111111")
	rec := &domain.TaskRecord{Hash: h, Command: "noop", State: domain.StateDone}
	require.NoError(t, idx.PutTask(ctx, rec))

	buildID, err := idx.CreateBuild(ctx, map[string]hashutil.Hash{"//app:bin": h})
	require.NoError(t, err)
	assert.NotZero(t, buildID)

	tree, err := idx.GetBuildTargets(ctx, buildID)
	require.NoError(t, err)
	assert.Equal(t, h, tree["//app:bin"])

	last, err := idx.LastBuildID(ctx)
	require.NoError(t, err)
	assert.Equal(t, buildID, last)
}

func TestIndex_ResetTaskClearsOutputs(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	h := hashutil.MustParseHash("2222222222222222222222222222222222222222")
	require.NoError(t, idx.PutTask(ctx, &domain.TaskRecord{Hash: h, Command: "noop", State: domain.StateRunning}))
	require.NoError(t, idx.SealTask(ctx, h, map[string]hashutil.Hash{"o": hashutil.MustParseHash("3333333333333333333333333333333333333333")}))

	require.NoError(t, idx.ResetTask(ctx, h))

	got, err := idx.GetTask(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClean, got.State)
	assert.Empty(t, got.Outputs)
}

func TestIndex_ListTasksAndExists(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	h := hashutil.MustParseHash("4444444444444444444444444444444444444444")
	require.NoError(t, idx.PutTask(ctx, &domain.TaskRecord{Hash: h, Command: "x", State: domain.StateError}))

	exists, err := idx.Exists(ctx, h)
	require.NoError(t, err)
	assert.True(t, exists)

	tasks, err := idx.ListTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateError, tasks[h])
}
