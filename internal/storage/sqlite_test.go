package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/code-connoisseur/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"), 4, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	assert.NotNil(t, store.db)

	version, err := currentVersion(context.Background(), store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	require.NoError(t, ApplyMigrations(context.Background(), store.db))

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	require.NoError(t, RollbackMigration(ctx, store.db))
	version, err := currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version.String())

	require.NoError(t, ApplyMigrations(ctx, store.db))
	version, err = currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestSQLiteStore_PersistAndResolve(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	meta, err := store.Persist(ctx, "main", makeEmbedded(10, 3, 0), WithProvenance("openai", "text-embedding-3-small"))
	require.NoError(t, err)
	assert.Equal(t, 10, meta.ChunkCount)
	assert.Equal(t, 3, meta.BatchCount)
	assert.Equal(t, 3, meta.Dimension)
	assert.Equal(t, "openai", meta.Provider)

	loc, err := store.Resolve(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loc.Source)
	assert.Equal(t, 10, loc.Metadata.ChunkCount)
	assert.Equal(t, "text-embedding-3-small", loc.Metadata.Model)
	assert.Equal(t, FormatVersion, loc.Metadata.FormatVersion)

	_, err = store.Resolve(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ScanKeepsStorageOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	chunks := makeEmbedded(9, 2, 0)
	_, err := store.Persist(ctx, "ordered", chunks)
	require.NoError(t, err)

	loc, err := store.Resolve(ctx, "ordered")
	require.NoError(t, err)

	var got []types.EmbeddedChunk
	require.NoError(t, store.Scan(ctx, loc, func(c types.EmbeddedChunk) error {
		got = append(got, c)
		return nil
	}))
	assert.Equal(t, chunks, got)
}

func TestSQLiteStore_GetAndAppend(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	_, err := store.Persist(ctx, "grow", makeEmbedded(5, 2, 0))
	require.NoError(t, err)
	meta, err := store.Persist(ctx, "grow", makeEmbedded(3, 2, 5))
	require.NoError(t, err)
	assert.Equal(t, 8, meta.ChunkCount)
	assert.Equal(t, 3, meta.BatchCount)

	got, err := store.Get(ctx, "grow", "chunk-6")
	require.NoError(t, err)
	assert.Equal(t, "fn6", got.Metadata.Name)
	assert.Equal(t, "src/module0/file.ts", got.Metadata.Path)

	_, err = store.Get(ctx, "grow", "chunk-99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RejectsInvalidAppends(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, err := store.Persist(ctx, "strict", makeEmbedded(3, 2, 0))
	require.NoError(t, err)

	_, err = store.Persist(ctx, "strict", makeEmbedded(2, 2, 2))
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = store.Persist(ctx, "strict", makeEmbedded(2, 4, 10))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	loc, err := store.Resolve(ctx, "strict")
	require.NoError(t, err)
	assert.Equal(t, 3, loc.Metadata.ChunkCount)
}

func TestSQLiteStore_ListAndDrop(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	for _, name := range []string{"b", "a", "c"} {
		_, err := store.Persist(ctx, name, makeEmbedded(2, 2, 0))
		require.NoError(t, err)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "c", list[2].Name)

	require.NoError(t, store.Drop(ctx, "b"))
	require.NoError(t, store.Drop(ctx, "b"))
	_, err = store.Resolve(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	// chunk ids are scoped per index
	_, err = store.Persist(ctx, "b", makeEmbedded(2, 2, 0))
	require.NoError(t, err)
}

func TestSQLiteStore_SearchNative(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	chunks := []types.EmbeddedChunk{
		{ID: "same", Vector: []float32{1, 0, 0}, Metadata: types.ChunkMetadata{Path: "a.ts", Kind: types.KindFunction, Name: "same"}},
		{ID: "close", Vector: []float32{0.9, 0.1, 0}, Metadata: types.ChunkMetadata{Path: "a.ts", Kind: types.KindFunction, Name: "close"}},
		{ID: "far", Vector: []float32{0, 0, 1}, Metadata: types.ChunkMetadata{Path: "b.ts", Kind: types.KindClass, Name: "far"}},
		{ID: "opposite", Vector: []float32{-1, 0, 0}, Metadata: types.ChunkMetadata{Path: "b.ts", Kind: types.KindClass, Name: "opposite"}},
	}
	_, err := store.Persist(ctx, "search", chunks)
	require.NoError(t, err)
	loc, err := store.Resolve(ctx, "search")
	require.NoError(t, err)

	results, err := store.SearchNative(ctx, loc, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "same", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "a.ts", results[1].Metadata.Path)

	limited, err := store.SearchNative(ctx, loc, []float32{1, 0, 0}, 0.5, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	fallback, err := store.searchFallback(ctx, loc, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, fallback, len(results))
	for i := range results {
		assert.Equal(t, fallback[i].ID, results[i].ID)
		assert.InDelta(t, fallback[i].Score, results[i].Score, 1e-5)
	}
}

func TestOpen(t *testing.T) {
	project := t.TempDir()

	s, err := Open(Config{Backend: BackendFile, ProjectRoot: project})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{Backend: BackendSQLite, ProjectRoot: project})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.FileExists(t, filepath.Join(project, ".code-connoisseur", "index.db"))
	require.NoError(t, s.Close())

	_, err = Open(Config{Backend: "redis"})
	assert.Error(t, err)
}

func TestSQLiteStore_RejectsInvalidText(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	chunks := []types.EmbeddedChunk{{
		ID:       "bad",
		Vector:   []float32{1, 0},
		Metadata: types.ChunkMetadata{Path: "a.py", Kind: types.KindFile, Name: "a.py", Code: "caf\xe9"},
	}}
	_, err := store.Persist(ctx, "main", chunks)
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = store.Resolve(ctx, "main")
	assert.ErrorIs(t, err, ErrNotFound)
}
