package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalStagingStore {
	t.Helper()
	store, err := NewLocalStagingStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalStagingPutGet(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	data := []byte("sku,name\nA-1,Widget\n")
	staged, err := store.Put(ctx, "inventory", data)
	require.NoError(t, err)
	assert.Equal(t, "inventory", staged.Source)
	assert.Equal(t, int64(len(data)), staged.Size)

	got, file, err := store.Get(ctx, "inventory")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "inventory", file.Source)
}

func TestLocalStagingPutReplaces(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "vendors", []byte("old"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "vendors", []byte("new"))
	require.NoError(t, err)

	got, _, err := store.Get(ctx, "vendors")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestLocalStagingGetMissing(t *testing.T) {
	store := newLocalStore(t)
	_, _, err := store.Get(context.Background(), "boms")
	assert.ErrorIs(t, err, ErrNotStaged)
}

func TestLocalStagingDelete(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "inventory", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "inventory"))

	_, _, err = store.Get(ctx, "inventory")
	assert.ErrorIs(t, err, ErrNotStaged)

	// Deleting again is fine.
	assert.NoError(t, store.Delete(ctx, "inventory"))
}

func TestLocalStagingList(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "vendors", []byte("v"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "inventory", []byte("i"))
	require.NoError(t, err)

	files, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "inventory", files[0].Source)
	assert.Equal(t, "vendors", files[1].Source)
}

func TestLocalStagingPathTraversal(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "../escape", []byte("x"))
	require.NoError(t, err)

	// The file lands inside the staging dir, not outside it.
	files, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "escape", files[0].Source)
}
