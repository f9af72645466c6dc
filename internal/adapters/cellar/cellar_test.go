package cellar_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/cellar"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
)

func openTestCellar(t *testing.T) *cellar.Cellar {
	t.Helper()
	c, err := cellar.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCellar_StoreBuildThenSealTask(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	taskHash := hashutil.MustParseHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	rec := &domain.TaskRecord{Hash: taskHash, Command: "echo hi", State: domain.StateClean}

	statuses, buildID, err := c.StoreBuild(ctx,
		[]*domain.TaskRecord{rec},
		map[string]hashutil.Hash{"//app:bin": taskHash},
		map[string][]byte{"seed.txt": []byte("seed data")},
	)
	require.NoError(t, err)
	assert.NotZero(t, buildID)
	assert.Equal(t, domain.StateClean, statuses[taskHash].State)

	require.NoError(t, c.MarkRunning(ctx, taskHash))
	require.NoError(t, c.SealTask(ctx, taskHash, map[string][]byte{"out.bin": []byte("result")}))

	got, err := c.GetTask(ctx, taskHash)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, got.State)
	assert.Len(t, got.Outputs, 1)
}

func TestCellar_StoreBuildSkipsReinsertingExistingTask(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	taskHash := hashutil.MustParseHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	rec := &domain.TaskRecord{Hash: taskHash, Command: "echo hi", State: domain.StateClean}

	_, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{rec}, map[string]hashutil.Hash{"//a": taskHash}, nil)
	require.NoError(t, err)
	require.NoError(t, c.SealTask(ctx, taskHash, map[string][]byte{"out": []byte("x")}))

	statuses, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{rec}, map[string]hashutil.Hash{"//a": taskHash}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, statuses[taskHash].State, "re-storing must not clobber an already-DONE task")
}

func TestCellar_GetTreeAndMatch(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	h := hashutil.MustParseHash("cccccccccccccccccccccccccccccccccccccccc")
	rec := &domain.TaskRecord{Hash: h, Command: "noop", State: domain.StateDone}
	_, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{rec}, map[string]hashutil.Hash{"//app/bin": h}, nil)
	require.NoError(t, err)

	tree, err := c.GetTree(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, h, tree["//app/bin"])

	narrowed, err := c.GetTree(ctx, []hashutil.Hash{h})
	require.NoError(t, err)
	assert.Len(t, narrowed, 1)
}

func TestCellar_CheckoutSymlinksBlobs(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	h := hashutil.MustParseHash("dddddddddddddddddddddddddddddddddddddddd")
	rec := &domain.TaskRecord{Hash: h, Command: "noop", State: domain.StateRunning}
	_, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{rec}, map[string]hashutil.Hash{"//app:bin": h}, nil)
	require.NoError(t, err)
	require.NoError(t, c.SealTask(ctx, h, map[string][]byte{"bin": []byte("binary content")}))

	root := t.TempDir()
	require.NoError(t, c.Checkout(ctx, root, []string{"**"}, 0, false))

	linkPath := filepath.Join(root, "app:bin", "bin")
	info, err := os.Lstat(linkPath)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeSymlink)

	data, err := os.ReadFile(linkPath)
	require.NoError(t, err)
	assert.Equal(t, "binary content", string(data))
}

func TestCellar_CheckoutNolinkCopies(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	h := hashutil.MustParseHash("eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	rec := &domain.TaskRecord{Hash: h, Command: "noop", State: domain.StateRunning}
	_, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{rec}, map[string]hashutil.Hash{"//x": h}, nil)
	require.NoError(t, err)
	require.NoError(t, c.SealTask(ctx, h, map[string][]byte{"f": []byte("copied")}))

	root := t.TempDir()
	require.NoError(t, c.Checkout(ctx, root, nil, 0, true))

	info, err := os.Lstat(filepath.Join(root, "x", "f"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode()&os.ModeSymlink)
}

func TestCellar_GCRetainsReachableAndDropsOrphans(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	keep := hashutil.MustParseHash("1111111111111111111111111111111111111111")
	drop := hashutil.MustParseHash("2222222222222222222222222222222222222222")

	_, _, err := c.StoreBuild(ctx,
		[]*domain.TaskRecord{{Hash: keep, Command: "a", State: domain.StateDone}},
		map[string]hashutil.Hash{"//keep": keep},
		nil,
	)
	require.NoError(t, err)
	_, _, err = c.StoreBuild(ctx,
		[]*domain.TaskRecord{{Hash: drop, Command: "b", State: domain.StateDone}},
		nil,
		nil,
	)
	require.NoError(t, err)

	removedTasks, _, err := c.GC(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, removedTasks)

	_, err = c.GetTask(ctx, keep)
	assert.NoError(t, err)
	_, err = c.GetTask(ctx, drop)
	assert.Error(t, err)
}

func TestCellar_ResetTask(t *testing.T) {
	ctx := context.Background()
	c := openTestCellar(t)

	h := hashutil.MustParseHash("3333333333333333333333333333333333333333")
	_, _, err := c.StoreBuild(ctx, []*domain.TaskRecord{{Hash: h, Command: "x", State: domain.StateRunning}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.SealTask(ctx, h, map[string][]byte{"o": []byte("v")}))

	require.NoError(t, c.ResetTask(ctx, h))

	got, err := c.GetTask(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClean, got.State)
}
