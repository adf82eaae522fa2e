package storage

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// testingTB is a subset of testing.TB that both *testing.T and *testing.B implement
type testingTB interface {
	Helper()
	Errorf(format string, args ...interface{})
	FailNow()
}

// setupVectorTestData stores n chunks with 384-dimension embeddings
func setupVectorTestData(tb testingTB, ctx context.Context, s *SQLiteStorage, n int) []string {
	tb.Helper()
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		chunks[i] = testChunk(fmt.Sprintf("pkg/file%03d.go", i), 1, 10, fmt.Sprintf("pkg.Func%d", i), "func body")
	}
	if err := s.ReplaceChunks(ctx, chunks); err != nil {
		tb.Errorf("failed to store chunks: %v", err)
		tb.FailNow()
	}

	ids := make([]string, n)
	for i, c := range chunks {
		vector := make([]float32, 384)
		for j := range vector {
			vector[j] = float32(math.Sin(float64(i*384+j) * 0.01))
		}
		err := s.UpsertEmbedding(ctx, &Embedding{
			ChunkID: c.ID, Vector: serializeVector(vector), Dimension: 384, Provider: "test", Model: "test",
		})
		if err != nil {
			tb.Errorf("failed to store embedding: %v", err)
			tb.FailNow()
		}
		ids[i] = c.ID
	}
	return ids
}

func TestSearchVector(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	chunks := []types.Chunk{
		testChunk("a.go", 1, 2, "a.A", "a"),
		testChunk("b.go", 1, 2, "b.B", "b"),
		testChunk("c.go", 1, 2, "c.C", "c"),
		testChunk("d.go", 1, 2, "d.D", "d"),
	}
	require.NoError(t, s.ReplaceChunks(ctx, chunks))
	vectors := [][]float32{
		{1, 0, 0},
		{0.8, 0.6, 0},
		{0, 1, 0},
		{0.8, 0.6, 0}, // same direction as b
	}
	for i, c := range chunks {
		require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{
			ChunkID: c.ID, Vector: serializeVector(vectors[i]), Dimension: 3, Provider: "p", Model: "m",
		}))
	}

	results, err := s.SearchVector(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, chunks[0].ID, results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	// Equal scores fall back to chunk id order
	assert.Equal(t, chunks[1].ID, results[1].ChunkID)
	assert.Equal(t, chunks[3].ID, results[2].ChunkID)
	assert.InDelta(t, 0.8, results[1].SimilarityScore, 1e-6)
}

// TestVectorSearchEdgeCases tests edge cases and error conditions
func TestVectorSearchEdgeCases(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()
	setupVectorTestData(t, ctx, s, 3)

	testCases := []struct {
		name        string
		queryVector []float32
		limit       int
		wantLen     int
	}{
		{name: "empty query vector", queryVector: []float32{}, limit: 10},
		{name: "zero limit", queryVector: make([]float32, 384), limit: 0},
		{name: "negative limit", queryVector: make([]float32, 384), limit: -1},
		{name: "dimension mismatch", queryVector: []float32{1, 2}, limit: 10},
		{name: "zero vector scores zero", queryVector: make([]float32, 384), limit: 10, wantLen: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := s.SearchVector(ctx, tc.queryVector, tc.limit)
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Len(t, results, tc.wantLen)
		})
	}
}

// TestVectorSearchOptimization verifies that the optimized vector search produces
// identical results to the fallback implementation
func TestVectorSearchOptimization(t *testing.T) {
	if !VectorExtensionAvailable {
		t.Skip("Skipping test: sqlite-vec extension not available")
	}
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()
	setupVectorTestData(t, ctx, s, 20)

	query := make([]float32, 384)
	for i := range query {
		query[i] = float32(i) * 0.01
	}

	optimized, err := searchVectorOptimized(ctx, s.db, query, 10)
	if err != nil {
		t.Skipf("vector extension not loaded: %v", err)
	}
	fallback, err := searchVectorFallback(ctx, s.db, query, 10)
	require.NoError(t, err)

	require.Len(t, optimized, len(fallback))
	for i := range optimized {
		assert.Equal(t, fallback[i].ChunkID, optimized[i].ChunkID)
		assert.InDelta(t, fallback[i].SimilarityScore, optimized[i].SimilarityScore, 1e-4)
	}
}

func TestSearchText(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	login := testChunk("auth/login.go", 1, 20, "auth.Login", "func Login(user string) error { return validatePassword(user) }")
	login.Docstring = "Login authenticates a user"
	cache := testChunk("cache/lru.go", 1, 30, "cache.Evict", "func Evict() { lru.removeOldest() }")
	token := testChunk("auth/token.go", 1, 9, "auth.Refresh", "func Refresh() { user token refresh }")
	require.NoError(t, s.ReplaceChunks(ctx, []types.Chunk{login, cache, token}))

	results, err := s.SearchText(ctx, "authenticates user", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, login.ID, results[0].ChunkID)
	ids := []string{results[0].ChunkID, results[1].ChunkID}
	assert.NotContains(t, ids, cache.ID)
	for _, r := range results {
		assert.Greater(t, r.BM25Score, 0.0)
		assert.LessOrEqual(t, r.BM25Score, 1.0)
	}

	results, err = s.SearchText(ctx, "Evict", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, cache.ID, results[0].ChunkID)
}

func TestSearchText_OperatorsAreLiteral(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	c := testChunk("q.go", 1, 3, "q.Not", "func Not() { NEAR the OR gate }")
	require.NoError(t, s.ReplaceChunks(ctx, []types.Chunk{c}))

	for _, q := range []string{`NOT`, `"gate`, `gate*`, `(OR) AND`, `col:gate`} {
		t.Run(q, func(t *testing.T) {
			results, err := s.SearchText(ctx, q, 5)
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}

	results, err := s.SearchText(ctx, `*** ()`, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"parse", `"parse"`},
		{"user login", `"user" OR "login"`},
		{`a"b`, `"a" OR "b"`},
		{"NOT near_miss", `"NOT" OR "near_miss"`},
		{"foo(*)", `"foo"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFTSQuery(tt.in))
		})
	}
}

func TestVectorSerialization(t *testing.T) {
	original := []float32{0, 1.5, -2.25, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := SerializeVector(original)
	assert.Len(t, blob, len(original)*4)
	assert.Equal(t, original, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalizeBM25(t *testing.T) {
	assert.Equal(t, 1.0, normalizeBM25(0))
	assert.InDelta(t, 0.5, normalizeBM25(-50), 1e-12)
	assert.Greater(t, normalizeBM25(-1), normalizeBM25(-10))
}

// BenchmarkVectorSearchFallback benchmarks the fallback vector search
func BenchmarkVectorSearchFallback(b *testing.B) {
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(b, err)
	defer s.Close()

	ctx := context.Background()
	setupVectorTestData(b, ctx, s, 200)

	queryVector := make([]float32, 384)
	for i := range queryVector {
		queryVector[i] = float32(i) * 0.01
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := searchVectorFallback(ctx, s.db, queryVector, 10); err != nil {
			b.Fatal(err)
		}
	}
}
