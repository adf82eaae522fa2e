package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-graph/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func testChunk(file string, start, end int, symbol, content string) types.Chunk {
	return types.Chunk{
		ID:        types.MakeChunkID(file, start, end),
		FilePath:  file,
		StartLine: start,
		EndLine:   end,
		Symbol:    symbol,
		Kind:      types.KindFunction,
		Content:   content,
		Language:  types.LangGo,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestReplaceChunks(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	first := testChunk("auth/login.go", 1, 20, "auth.Login", "func Login() {}")
	first.Imports = []string{"errors", "auth/session"}
	first.Docstring = "Login authenticates a user"
	first.Kind = types.KindMethod
	second := testChunk("auth/logout.go", 3, 9, "", "// package notes")
	second.Kind = types.KindComment

	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{first, second}))

	got, err := storage.GetChunk(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *got)

	got, err = storage.GetChunk(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Symbol)
	assert.Nil(t, got.Imports)

	// A second replace drops chunks not in the new set
	third := testChunk("auth/token.go", 1, 4, "auth.Token", "func Token() {}")
	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{third, first}))

	_, err = storage.GetChunk(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := storage.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestReplaceChunks_DuplicateRollsBack(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	kept := testChunk("a.go", 1, 2, "a.A", "func A() {}")
	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{kept}))

	dup := testChunk("b.go", 1, 2, "b.B", "func B() {}")
	err := storage.ReplaceChunks(ctx, []types.Chunk{dup, dup})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	all, err := storage.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.ID, all[0].ID)
}

func TestGetChunk_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetChunk(context.Background(), "missing.go:1:2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertEmbedding(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	c := testChunk("a.go", 1, 2, "a.A", "func A() {}")
	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{c}))

	emb := &Embedding{
		ChunkID:   c.ID,
		Vector:    SerializeVector([]float32{1, 0, 0}),
		Dimension: 3,
		Provider:  "local",
		Model:     "hash-v1",
	}
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))
	assert.False(t, emb.CreatedAt.IsZero())

	emb.Vector = SerializeVector([]float32{0, 1, 0})
	emb.Model = "hash-v2"
	require.NoError(t, storage.UpsertEmbedding(ctx, emb))

	got, err := storage.GetEmbedding(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-v2", got.Model)
	assert.Equal(t, []float32{0, 1, 0}, deserializeVector(got.Vector))

	_, err = storage.GetEmbedding(ctx, "missing.go:1:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertEmbedding_CascadesOnReplace(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	c := testChunk("a.go", 1, 2, "a.A", "func A() {}")
	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{c}))
	require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
		ChunkID: c.ID, Vector: SerializeVector([]float32{1}), Dimension: 1, Provider: "p", Model: "m",
	}))

	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{c}))
	_, err := storage.GetEmbedding(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndexState(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.GetIndexState(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := &IndexState{
		Generation:  7,
		BuiltAt:     builtAt,
		ChunkCount:  12,
		NodeCount:   10,
		EdgeCount:   31,
		Fingerprint: math.MaxUint64 - 5,
	}
	require.NoError(t, storage.SaveIndexState(ctx, state))

	state.Generation = 8
	require.NoError(t, storage.SaveIndexState(ctx, state))

	got, err := storage.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got.Generation)
	assert.Equal(t, uint64(math.MaxUint64-5), got.Fingerprint)
	assert.True(t, builtAt.Equal(got.BuiltAt))
	assert.Equal(t, 12, got.ChunkCount)
	assert.Equal(t, 10, got.NodeCount)
	assert.Equal(t, 31, got.EdgeCount)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.ChunksCount)
	assert.Nil(t, status.IndexState)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.EmbeddingsAvailable)

	c := testChunk("a.go", 1, 2, "a.A", "func A() {}")
	require.NoError(t, storage.ReplaceChunks(ctx, []types.Chunk{c}))
	require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
		ChunkID: c.ID, Vector: SerializeVector([]float32{1}), Dimension: 1, Provider: "p", Model: "m",
	}))
	require.NoError(t, storage.SaveIndexState(ctx, &IndexState{Generation: 1, BuiltAt: time.Now()}))

	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ChunksCount)
	assert.Equal(t, 1, status.EmbeddingsCount)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.True(t, status.Health.FTSIndexesBuilt)
	require.NotNil(t, status.IndexState)
	assert.Equal(t, uint64(1), status.IndexState.Generation)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	// Test commit
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	committed := testChunk("a.go", 1, 2, "a.A", "func A() {}")
	require.NoError(t, tx.ReplaceChunks(ctx, []types.Chunk{committed}))
	require.NoError(t, tx.SaveIndexState(ctx, &IndexState{Generation: 1, BuiltAt: time.Now()}))
	require.NoError(t, tx.Commit())

	_, err = storage.GetChunk(ctx, committed.ID)
	require.NoError(t, err)

	// Test rollback
	tx2, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	rolled := testChunk("b.go", 1, 2, "b.B", "func B() {}")
	require.NoError(t, tx2.ReplaceChunks(ctx, []types.Chunk{rolled}))

	// Reads inside the transaction see its writes
	_, err = tx2.GetChunk(ctx, rolled.ID)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())

	_, err = storage.GetChunk(ctx, rolled.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetChunk(ctx, committed.ID)
	assert.NoError(t, err)
}

func TestTx_Unsupported(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	tx, err := storage.BeginTx(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(context.Background())
	assert.Error(t, err)
	assert.Error(t, tx.Close())
}
