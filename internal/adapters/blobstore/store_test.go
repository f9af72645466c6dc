package blobstore_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/blobstore"
	"go.trai.ch/cellar/internal/core/hashutil"
)

func TestStore_StoreBytesAndGet(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	h, err := store.StoreBytes([]byte("hello world"))
	require.NoError(t, err)
	assert.True(t, store.Has(h))

	rc, err := store.Get(h)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStore_ShardedLayout(t *testing.T) {
	root := t.TempDir()
	store, err := blobstore.NewStore(root)
	require.NoError(t, err)

	h, err := store.StoreBytes([]byte("shard me"))
	require.NoError(t, err)

	dir, rest := h.ShardPath()
	want := filepath.Join(root, "objects", dir, rest)
	_, statErr := os.Stat(want)
	assert.NoError(t, statErr)
}

func TestStore_StoreBytesIdempotent(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	h1, err := store.StoreBytes([]byte("same content"))
	require.NoError(t, err)
	h2, err := store.StoreBytes([]byte("same content"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(hashutil.HashBytes([]byte("never stored")))
	assert.Error(t, err)
}

func TestStore_StorePathMove(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload bytes"), 0o600))

	h, err := store.StorePath(src, true)
	require.NoError(t, err)
	assert.True(t, store.Has(h))
	_, statErr := os.Stat(src)
	assert.Error(t, statErr, "source should be removed after a move-ingest")
}

func TestStore_VerifyContent(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	h, err := store.StoreBytes([]byte("verify me"))
	require.NoError(t, err)
	assert.NoError(t, store.VerifyContent(h))
}

func TestStore_GC(t *testing.T) {
	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	keep, err := store.StoreBytes([]byte("keep"))
	require.NoError(t, err)
	drop, err := store.StoreBytes([]byte("drop"))
	require.NoError(t, err)

	removed, err := store.GC(map[hashutil.Hash]struct{}{keep: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, store.Has(keep))
	assert.False(t, store.Has(drop))
}
