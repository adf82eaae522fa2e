package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/internal/parser"
	"github.com/dshills/gocontext-graph/internal/storage"
	"github.com/dshills/gocontext-graph/pkg/types"
)

// mockEmbedder implements embedder.Embedder for testing. The vector of a
// text is [len(text), 1].
type mockEmbedder struct {
	generateBatchErr error
	callCount        int
	batchSizes       []int
	mu               sync.Mutex

	// entered and release block GenerateBatch when set
	entered chan struct{}
	release chan struct{}
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := m.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generateBatchErr != nil {
		return nil, m.generateBatchErr
	}

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &embedder.Embedding{
			Vector:    []float32{float32(len(text)), 1},
			Dimension: 2,
			Provider:  "mock",
			Model:     "test-v1",
		}
	}

	m.callCount++
	m.batchSizes = append(m.batchSizes, len(req.Texts))

	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   "mock",
		Model:      "test-v1",
	}, nil
}

func (m *mockEmbedder) Dimension() int {
	return 2
}

func (m *mockEmbedder) Provider() string {
	return "mock"
}

func (m *mockEmbedder) Model() string {
	return "test-v1"
}

func (m *mockEmbedder) Close() error {
	return nil
}

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

type staticExtractor map[string]parser.Refs

func (s staticExtractor) Supports(types.Language) bool { return true }

func (s staticExtractor) Extract(_ types.Language, content string) (parser.Refs, error) {
	return s[content], nil
}

// extractor: A calls B, B uses T
var extractor = staticExtractor{
	"func A() { B() }": {Calls: []string{"pkg.B"}},
	"func B(t T) {}":   {Types: []string{"pkg.T"}},
}

func testChunks() []types.Chunk {
	mk := func(symbol, content string, start, end int, kind types.ChunkKind) types.Chunk {
		return types.Chunk{
			ID:        types.MakeChunkID("pkg/pkg.go", start, end),
			FilePath:  "pkg/pkg.go",
			StartLine: start,
			EndLine:   end,
			Symbol:    symbol,
			Kind:      kind,
			Content:   content,
			Language:  types.LangGo,
		}
	}
	return []types.Chunk{
		mk("pkg.A", "func A() { B() }", 1, 3, types.KindFunction),
		mk("pkg.B", "func B(t T) {}", 5, 7, types.KindFunction),
		mk("pkg.T", "type T struct{}", 9, 9, types.KindStruct),
	}
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestIndexer(t testing.TB, store storage.Storage, emb embedder.Embedder, cfg Config) *Indexer {
	t.Helper()
	if cfg.Extractor == nil {
		cfg.Extractor = extractor
	}
	return New(store, emb, graph.NewHandle(), cfg)
}

// TestNew verifies indexer initialization
func TestNew(t *testing.T) {
	idx := New(setupTestStorage(t), nil, nil, Config{})

	assert.NotNil(t, idx.Graphs())
	assert.Positive(t, idx.workers)
	assert.Equal(t, embedder.DefaultBatchSize, idx.batchSize)
	assert.False(t, idx.Rebuilding())
	assert.False(t, idx.Freshness().Built())

	idx = New(setupTestStorage(t), nil, nil, Config{BatchSize: embedder.MaxBatchSize + 1, Workers: 3})
	assert.Equal(t, embedder.DefaultBatchSize, idx.batchSize)
	assert.Equal(t, 3, idx.workers)
}

func TestRebuild_Success(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, emb, Config{})

	stats, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Embedded)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 2, stats.Edges)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.NotZero(t, stats.Fingerprint)
	assert.Positive(t, stats.EstimatedTokens)

	// Store
	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Equal(t, 3, status.EmbeddingsCount)
	require.NotNil(t, status.IndexState)
	assert.Equal(t, uint64(1), status.IndexState.Generation)
	assert.Equal(t, stats.Fingerprint, status.IndexState.Fingerprint)
	assert.Equal(t, 2, status.IndexState.EdgeCount)

	c := testChunks()[0]
	e, err := store.GetEmbedding(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{float32(len(EmbeddingText(&c))), 1}, storage.DeserializeVector(e.Vector))
	assert.Equal(t, "mock", e.Provider)

	// Graph
	snap, err := idx.Graphs().Require()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	got, ok := snap.Chunk(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.Symbol, got.Symbol)

	f := idx.Freshness()
	assert.True(t, f.Built())
	assert.False(t, f.Stale)
	assert.Equal(t, stats.Fingerprint, f.Fingerprint)
	assert.Equal(t, status.IndexState.BuiltAt.Unix(), f.BuiltAt.Unix())
}

func TestRebuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder(), Config{})

	first, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	second, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), second.Generation)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestRebuild_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockEmbedder(), Config{})

	_, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)

	chunks := testChunks()[:2]
	stats, err := idx.Rebuild(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 1, stats.Edges, "B uses T no longer resolves")

	_, err = store.GetChunk(ctx, testChunks()[2].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetEmbedding(ctx, testChunks()[2].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRebuild_EmbeddingFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, emb, Config{})

	first, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)

	emb.generateBatchErr = fmt.Errorf("%w: quota exceeded", embedder.ErrProviderFailed)
	_, err = idx.Rebuild(ctx, testChunks()[:1])
	assert.ErrorIs(t, err, types.ErrEmbeddingFailure)
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)

	assert.Equal(t, first.Generation, idx.Freshness().Generation)
	chunks, err := store.ListChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.False(t, idx.Rebuilding(), "lock released after failure")
}

func TestRebuild_DuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockEmbedder(), Config{})

	_, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)

	chunks := append(testChunks(), testChunks()[0])
	_, err = idx.Rebuild(ctx, chunks)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	assert.Equal(t, uint64(1), idx.Freshness().Generation)
	state, err := store.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Generation)
}

func TestRebuild_InvalidChunk(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder(), Config{})

	chunks := testChunks()
	chunks[1].StartLine = 0
	_, err := idx.Rebuild(context.Background(), chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")
}

func TestRebuild_NoEmbedder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, nil, Config{})

	stats, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	assert.Zero(t, stats.Embedded)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Zero(t, status.EmbeddingsCount)
}

func TestRebuild_Empty(t *testing.T) {
	emb := newMockEmbedder()
	idx := newTestIndexer(t, setupTestStorage(t), emb, Config{})

	stats, err := idx.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Zero(t, emb.getCallCount())
}

func TestRebuild_BatchProcessing(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, emb, Config{BatchSize: 50, Workers: 4})

	chunks := make([]types.Chunk, 120)
	for i := range chunks {
		chunks[i] = types.Chunk{
			ID:        fmt.Sprintf("gen/f%03d.go:1:1", i),
			FilePath:  fmt.Sprintf("gen/f%03d.go", i),
			StartLine: 1,
			EndLine:   1,
			Content:   strings.Repeat("x", i+1),
			Language:  types.LangGo,
		}
	}

	stats, err := idx.Rebuild(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 120, stats.Embedded)
	assert.Equal(t, 3, emb.getCallCount())
	assert.ElementsMatch(t, []int{50, 50, 20}, emb.batchSizes)

	// Vectors land on their own chunk regardless of batch completion order
	for _, i := range []int{0, 49, 50, 119} {
		e, err := store.GetEmbedding(ctx, chunks[i].ID)
		require.NoError(t, err)
		assert.Equal(t, float32(i+1), storage.DeserializeVector(e.Vector)[0], "chunk %d", i)
	}
}

func TestRebuild_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := newTestIndexer(t, setupTestStorage(t), nil, Config{})
	_, err := idx.Rebuild(ctx, testChunks())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, idx.Freshness().Built())
}

func TestRebuild_ConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder()
	emb.entered = make(chan struct{})
	emb.release = make(chan struct{})
	idx := newTestIndexer(t, setupTestStorage(t), emb, Config{Workers: 1})

	done := make(chan error, 1)
	go func() {
		_, err := idx.Rebuild(ctx, testChunks())
		done <- err
	}()

	<-emb.entered
	assert.True(t, idx.Rebuilding())

	_, err := idx.Rebuild(ctx, testChunks())
	assert.ErrorIs(t, err, ErrRebuildInProgress)
	_, err = idx.RebuildFromStore(ctx)
	assert.ErrorIs(t, err, ErrRebuildInProgress)

	close(emb.release)
	require.NoError(t, <-done)
	assert.False(t, idx.Rebuilding())
}

func TestRebuildFromStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := newMockEmbedder()

	original := newTestIndexer(t, store, emb, Config{})
	_, err := original.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	built, err := original.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	calls := emb.getCallCount()

	// A fresh process sharing the store
	restarted := newTestIndexer(t, store, emb, Config{})
	stats, err := restarted.RebuildFromStore(ctx)
	require.NoError(t, err)

	assert.Equal(t, built.Generation, stats.Generation)
	assert.Equal(t, built.Fingerprint, stats.Fingerprint)
	assert.Equal(t, built.Nodes, stats.Nodes)
	assert.Equal(t, built.Edges, stats.Edges)
	assert.Equal(t, calls, emb.getCallCount(), "no re-embedding")

	before := original.Freshness()
	after := restarted.Freshness()
	assert.Equal(t, before.Generation, after.Generation)
	assert.Equal(t, before.BuiltAt.Unix(), after.BuiltAt.Unix())

	// The next rebuild continues the persisted generation
	next, err := restarted.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	assert.Equal(t, built.Generation+1, next.Generation)
}

func TestRebuildFromStore_NothingIndexed(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), nil, Config{})

	_, err := idx.RebuildFromStore(context.Background())
	assert.ErrorIs(t, err, types.ErrGraphNotBuilt)
	assert.False(t, idx.Freshness().Built())
}

func TestMarkStale(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndexer(t, setupTestStorage(t), nil, Config{})

	idx.MarkStale()
	f := idx.Freshness()
	assert.True(t, f.Stale)
	assert.False(t, f.Built())

	_, err := idx.Rebuild(ctx, testChunks())
	require.NoError(t, err)
	assert.False(t, idx.Freshness().Stale)

	idx.MarkStale()
	idx.MarkStale()
	assert.True(t, idx.Freshness().Stale)
}

func TestOnPublish(t *testing.T) {
	var published []uint64
	idx := newTestIndexer(t, setupTestStorage(t), nil, Config{
		OnPublish: func(s *graph.Snapshot) { published = append(published, s.Generation) },
	})

	for range 2 {
		_, err := idx.Rebuild(context.Background(), testChunks())
		require.NoError(t, err)
	}
	_, err := idx.Rebuild(context.Background(), []types.Chunk{{ID: "bad"}})
	require.Error(t, err)

	assert.Equal(t, []uint64{1, 2}, published)
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name  string
		chunk types.Chunk
		want  string
	}{
		{"all parts", types.Chunk{ID: "x", Symbol: "pkg.F", Docstring: "F does f.", Content: "func F() {}"}, "pkg.F\nF does f.\nfunc F() {}"},
		{"content only", types.Chunk{ID: "x", Content: "x := 1"}, "x := 1"},
		{"blank parts skipped", types.Chunk{ID: "x", Symbol: " ", Content: "body"}, "body"},
		{"falls back to id", types.Chunk{ID: "a.go:1:2"}, "a.go:1:2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbeddingText(&tt.chunk))
		})
	}
}

func TestErrRebuildInProgress(t *testing.T) {
	wrapped := fmt.Errorf("index_chunks: %w", ErrRebuildInProgress)
	assert.True(t, errors.Is(wrapped, ErrRebuildInProgress))
}
