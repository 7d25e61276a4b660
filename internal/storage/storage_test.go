package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/dispute-triage/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ embedding.Store = (*SQLiteStorage)(nil)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	var indexCount int
	require.NoError(t, store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_embeddings_created_at'
	`).Scan(&indexCount))
	assert.Equal(t, 1, indexCount)
}

func TestEmbeddings_SaveAndGet(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, found, err := store.GetEmbedding(ctx, "local:hashing-4", "charged twice")
	require.NoError(t, err)
	assert.False(t, found)

	vec := []float32{0.5, -0.25, 0, 1}
	require.NoError(t, store.SaveEmbedding(ctx, "local:hashing-4", "charged twice", vec))

	got, found, err := store.GetEmbedding(ctx, "local:hashing-4", "charged twice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, vec, got)

	_, found, err = store.GetEmbedding(ctx, "openai:text-embedding-3-small", "charged twice")
	require.NoError(t, err)
	assert.False(t, found, "vectors are scoped by model")

	replacement := []float32{1, 1, 1, 1}
	require.NoError(t, store.SaveEmbedding(ctx, "local:hashing-4", "charged twice", replacement))
	got, _, err = store.GetEmbedding(ctx, "local:hashing-4", "charged twice")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	count, err := store.CountEmbeddings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmbeddings_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		model  string
		vector []float32
		want   error
	}{
		{name: "empty model", model: " ", vector: []float32{1}, want: ErrEmptyString},
		{name: "empty vector", model: "m", vector: nil, want: ErrInvalidVector},
		{name: "nan component", model: "m", vector: []float32{float32(math.NaN())}, want: ErrInvalidVector},
		{name: "inf component", model: "m", vector: []float32{float32(math.Inf(1))}, want: ErrInvalidVector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveEmbedding(ctx, tt.model, "text", tt.vector)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, store.SaveEmbedding(nil, "m", "t", []float32{1}), ErrNilContext)
}

func TestEmbeddings_CorruptBlob(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO embeddings (model, text_hash, dims, vector, created_at) VALUES (?, ?, ?, ?, ?)`,
		"m", textHash("bad"), 3, []byte{1, 2, 3}, 0)
	require.NoError(t, err)

	_, _, err = store.GetEmbedding(ctx, "m", "bad")
	assert.ErrorIs(t, err, ErrCorruptVector)
}

func TestEmbeddings_Prune(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	require.NoError(t, store.SaveEmbedding(ctx, "m", "old", []float32{1}))

	store.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, store.SaveEmbedding(ctx, "m", "new", []float32{2}))

	removed, err := store.PruneEmbeddings(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := store.CountEmbeddings(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, found, err := store.GetEmbedding(ctx, "m", "new")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveEmbedding(ctx, "m", "text", []float32{0.1, 0.2}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.GetEmbedding(ctx, "m", "text")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{0.1, 0.2}, got)
	assert.Equal(t, path, reopened.Path())
}
