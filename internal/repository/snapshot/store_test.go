package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// setupTestStore creates a store in a temporary directory.
func setupTestStore(t *testing.T, keep int) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, keep, zap.NewNop())
	require.NoError(t, err)
	return store, dir
}

// newTestSnapshot builds a snapshot with n two-dimensional chunks.
func newTestSnapshot(t *testing.T, id string, n int) *vectorindex.Snapshot {
	t.Helper()
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		c := chunk.New("manual.pdf:1", i, "passage text", map[string]string{"source": "manual.pdf", "page_number": "1"})
		chunks[i] = c.WithEmbedding([]float32{float32(i), 0.5})
	}
	snap, err := vectorindex.NewSnapshot(id, time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), vectorindex.MetricCosine, 1, chunks)
	require.NoError(t, err)
	return snap
}

func TestStore_LoadWithoutCurrent(t *testing.T) {
	store, _ := setupTestStore(t, 0)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, store.CurrentID())
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, _ := setupTestStore(t, 0)
	ctx := context.Background()
	orig := newTestSnapshot(t, "build-1", 3)

	require.NoError(t, store.Save(ctx, orig))
	assert.Equal(t, "build-1", store.CurrentID())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, orig.ID(), loaded.ID())
	assert.True(t, orig.BuiltAt().Equal(loaded.BuiltAt()))
	assert.Equal(t, orig.Metric(), loaded.Metric())
	assert.Equal(t, orig.Dimension(), loaded.Dimension())
	assert.Equal(t, orig.DocumentCount(), loaded.DocumentCount())
	require.Equal(t, orig.ChunkCount(), loaded.ChunkCount())

	for i, c := range loaded.Chunks() {
		want := orig.Chunks()[i]
		assert.Equal(t, want.ID(), c.ID())
		assert.Equal(t, want.DocumentID(), c.DocumentID())
		assert.Equal(t, want.Ordinal(), c.Ordinal())
		assert.Equal(t, want.Text(), c.Text())
		assert.Equal(t, want.Metadata(), c.Metadata())
		assert.Equal(t, want.Embedding(), c.Embedding())
	}
}

func TestStore_SaveReplacesCurrent(t *testing.T) {
	store, dir := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSnapshot(t, "build-1", 1)))
	require.NoError(t, store.Save(ctx, newTestSnapshot(t, "build-2", 2)))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "build-2", loaded.ID())
	assert.Equal(t, 2, loaded.ChunkCount())

	_, err = os.Stat(filepath.Join(dir, snapshotsDir, "build-1"+fileExt))
	assert.NoError(t, err, "previous snapshot should be retained with keep=2")
}

func TestStore_PrunesOldSnapshots(t *testing.T) {
	store, dir := setupTestStore(t, 1)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestSnapshot(t, "build-1", 1)))
	require.NoError(t, store.Save(ctx, newTestSnapshot(t, "build-2", 1)))

	entries, err := os.ReadDir(filepath.Join(dir, snapshotsDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "build-2"+fileExt, entries[0].Name())
}

func TestStore_RemovesStalePartials(t *testing.T) {
	store, dir := setupTestStore(t, 0)
	stale := filepath.Join(dir, snapshotsDir, "crashed"+fileExt+partialSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("garbage"), 0o600))

	require.NoError(t, store.Save(context.Background(), newTestSnapshot(t, "build-1", 1)))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_EmptySnapshot(t *testing.T) {
	store, _ := setupTestStore(t, 0)
	ctx := context.Background()
	empty, err := vectorindex.NewSnapshot("empty", time.Now(), vectorindex.MetricDot, 0, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, empty))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.ChunkCount())
	assert.Equal(t, vectorindex.MetricDot, loaded.Metric())
}

func TestStore_MissingSnapshotFileIsCorrupt(t *testing.T) {
	store, dir := setupTestStore(t, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("ghost\n"), 0o600))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSnapshotCorrupt)
}

func TestStore_GarbageFileIsCorrupt(t *testing.T) {
	store, dir := setupTestStore(t, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotsDir, "bad"+fileExt), []byte("not a database"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("bad"), 0o600))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSnapshotCorrupt)
}

func TestStore_InvalidCurrentIsCorrupt(t *testing.T) {
	store, dir := setupTestStore(t, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("../escape"), 0o600))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSnapshotCorrupt)
}

func TestStore_UnreadableCurrentIsCorrupt(t *testing.T) {
	store, dir := setupTestStore(t, 0)
	require.NoError(t, os.Mkdir(filepath.Join(dir, currentFile), 0o750))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSnapshotCorrupt)

	index := vectorindex.New(vectorindex.MetricCosine, vectorindex.WithPersister(store))
	err = index.Restore(context.Background())
	assert.ErrorIs(t, err, domain.ErrSnapshotCorrupt)
	assert.False(t, index.Ready())

	_, err = index.UpsertSnapshot(context.Background(), newTestSnapshot(t, "ignored", 2).Chunks(), 1)
	require.NoError(t, err)
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.ChunkCount())
}

func TestStore_IndexRestore(t *testing.T) {
	store, _ := setupTestStore(t, 0)
	ctx := context.Background()

	writer := vectorindex.New(vectorindex.MetricCosine, vectorindex.WithPersister(store))
	c := chunk.New("a.txt", 0, "alpha", nil)
	_, err := writer.UpsertSnapshot(ctx, []chunk.Chunk{c.WithEmbedding([]float32{1, 0})}, 1)
	require.NoError(t, err)

	reader := vectorindex.New(vectorindex.MetricCosine, vectorindex.WithPersister(store))
	require.NoError(t, reader.Restore(ctx))

	stats := reader.Stats()
	assert.True(t, stats.Ready)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, writer.Stats().BuildID, stats.BuildID)
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("", 0, nil)
	assert.Error(t, err)
}
