package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocontext-graph/internal/assembler"
	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/fusion"
	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/internal/storage"
	"github.com/dshills/gocontext-graph/pkg/types"
)

const (
	// DefaultLimit applies when a request asks for zero or fewer results
	DefaultLimit = 10
	// MaxLimit caps the results of one query
	MaxLimit = 100
	// DefaultCandidateMultiplier sizes each source's candidate pool as a
	// multiple of the requested limit
	DefaultCandidateMultiplier = 4
	// DefaultCacheSize is the number of cached single-query rankings
	DefaultCacheSize = 1000
)

// Positions of the fused sources in RankedResult.Ranks
const (
	SourceSemantic = 0
	SourceLexical  = 1
)

// LexicalMatcher ranks chunks by full-text relevance
type LexicalMatcher interface {
	SearchText(ctx context.Context, query string, limit int) ([]storage.TextResult, error)
}

// VectorIndex ranks chunks by similarity to a query embedding
type VectorIndex interface {
	SearchVector(ctx context.Context, vector []float32, limit int) ([]storage.VectorResult, error)
}

// ChunkStore resolves chunks missing from the graph snapshot
type ChunkStore interface {
	GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error)
}

// Dependencies are the collaborators a Searcher queries. Graphs is
// required; a nil Embedder or Vectors disables the semantic source and a
// nil Lexical disables the lexical source.
type Dependencies struct {
	Lexical  LexicalMatcher
	Vectors  VectorIndex
	Embedder embedder.Embedder
	Graphs   *graph.Handle
	Chunks   ChunkStore
}

// Config tunes ranking and concurrency. Zero values select defaults.
type Config struct {
	K                   float64
	SemanticWeight      float64
	LexicalWeight       float64
	CandidateMultiplier int
	Workers             int
	CacheSize           int
	Assembler           assembler.Config
	Logger              *slog.Logger
}

// Searcher answers single and batch queries by fusing lexical and semantic
// candidates, optionally enriching hits from the current code graph
type Searcher struct {
	lexical  LexicalMatcher
	vectors  VectorIndex
	embedder embedder.Embedder
	graphs   *graph.Handle
	chunks   ChunkStore

	fuser          *fusion.Fuser
	assembler      *assembler.Assembler
	semanticWeight float64
	lexicalWeight  float64
	multiplier     int
	workers        int

	cache  *lru.Cache[[32]byte, []types.RankedResult]
	logger *slog.Logger
}

// New creates a Searcher
func New(deps Dependencies, cfg Config) *Searcher {
	if deps.Graphs == nil {
		deps.Graphs = graph.NewHandle()
	}
	if cfg.SemanticWeight <= 0 {
		cfg.SemanticWeight = fusion.DefaultSemanticWeight
	}
	if cfg.LexicalWeight <= 0 {
		cfg.LexicalWeight = fusion.DefaultLexicalWeight
	}
	cfg.CandidateMultiplier = max(cfg.CandidateMultiplier, DefaultCandidateMultiplier)
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Only fails for non-positive sizes
	cache, _ := lru.New[[32]byte, []types.RankedResult](cfg.CacheSize)

	return &Searcher{
		lexical:        deps.Lexical,
		vectors:        deps.Vectors,
		embedder:       deps.Embedder,
		graphs:         deps.Graphs,
		chunks:         deps.Chunks,
		fuser:          fusion.New(cfg.K),
		assembler:      assembler.New(cfg.Assembler),
		semanticWeight: cfg.SemanticWeight,
		lexicalWeight:  cfg.LexicalWeight,
		multiplier:     cfg.CandidateMultiplier,
		workers:        cfg.Workers,
		cache:          cache,
		logger:         cfg.Logger,
	}
}

// Search returns up to limit fused results for query. Results for an
// unchanged generation are served from cache.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]types.RankedResult, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	return s.searchCached(ctx, query, normalizeLimit(limit), s.graphs.Load())
}

// SearchWithContext searches and attaches graph neighbors to every hit.
// The strategy is validated before any retrieval.
func (s *Searcher) SearchWithContext(ctx context.Context, query string, limit int, strategy assembler.Strategy) ([]types.EnrichedResult, error) {
	return s.SearchWithContextAt(ctx, s.snapshot(), query, limit, strategy)
}

// SearchWithContextAt is SearchWithContext answered from snap. Callers that
// report on the result pass the snapshot they report from, so one request
// sees one generation.
func (s *Searcher) SearchWithContextAt(ctx context.Context, snap *graph.Snapshot, query string, limit int, strategy assembler.Strategy) ([]types.EnrichedResult, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	hits, err := s.searchCached(ctx, query, normalizeLimit(limit), snap)
	if err != nil {
		return nil, err
	}
	return s.assembler.AssembleAll(hits, snap, s.lookup(ctx, snap), strategy.Depth()), nil
}

// SearchBatch searches every query with one shared embedding call. The
// output has one item per query in input order, duplicates included. An
// embedding failure fails the whole batch; source failures are reported in
// the affected item only.
func (s *Searcher) SearchBatch(ctx context.Context, queries []string, limit int) ([]types.BatchItem[[]types.RankedResult], error) {
	return runBatch(ctx, s, queries, limit, func(_ context.Context, hits []types.RankedResult) []types.RankedResult {
		return hits
	})
}

// SearchBatchWithContext is SearchBatch followed by enrichment of every
// hit. All queries see the same graph generation.
func (s *Searcher) SearchBatchWithContext(ctx context.Context, queries []string, limit int, strategy assembler.Strategy) ([]types.BatchItem[[]types.EnrichedResult], error) {
	return s.SearchBatchWithContextAt(ctx, s.snapshot(), queries, limit, strategy)
}

// SearchBatchWithContextAt is SearchBatchWithContext answered from snap
func (s *Searcher) SearchBatchWithContextAt(ctx context.Context, snap *graph.Snapshot, queries []string, limit int, strategy assembler.Strategy) ([]types.BatchItem[[]types.EnrichedResult], error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return runBatch(ctx, s, queries, limit, func(ctx context.Context, hits []types.RankedResult) []types.EnrichedResult {
		return s.assembler.AssembleAll(hits, snap, s.lookup(ctx, snap), strategy.Depth())
	})
}

// Snapshot returns the generation queries are currently answered from, or
// nil before the first publish
func (s *Searcher) Snapshot() *graph.Snapshot {
	return s.graphs.Load()
}

// GraphStats reports the node and edge counts of the current generation
func (s *Searcher) GraphStats() (nodes, edges int) {
	snap := s.graphs.Load()
	if snap == nil || snap.Graph == nil {
		return 0, 0
	}
	st := snap.Graph.Stats()
	return st.Nodes, st.Edges
}

// Freshness describes the generation queries are currently answered from
func (s *Searcher) Freshness() types.Freshness {
	snap := s.graphs.Load()
	if snap == nil {
		return types.Freshness{}
	}
	return types.Freshness{
		Generation:  snap.Generation,
		BuiltAt:     snap.BuiltAt,
		Fingerprint: snap.Fingerprint,
	}
}

// InvalidateCache drops every cached ranking
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

// runBatch validates the batch, embeds all queries in one pass and fans the
// per-query work out over a bounded pool
func runBatch[T any](ctx context.Context, s *Searcher, queries []string, limit int, finish func(context.Context, []types.RankedResult) T) ([]types.BatchItem[T], error) {
	for i, q := range queries {
		if err := validateQuery(q); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}
	limit = normalizeLimit(limit)

	vectors, err := s.embedBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	out := make([]types.BatchItem[T], len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var vector []float32
			if vectors != nil {
				vector = vectors[i]
			}
			hits, err := s.rank(gctx, q, vector, limit)
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Results = finish(gctx, hits)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("searcher.batch", slog.Int("queries", len(queries)), slog.Int("limit", limit))
	return out, nil
}

func (s *Searcher) searchCached(ctx context.Context, query string, limit int, snap *graph.Snapshot) ([]types.RankedResult, error) {
	key := cacheKey(query, limit, generationOf(snap))
	if cached, ok := s.cache.Get(key); ok {
		return copyResults(cached), nil
	}

	var vector []float32
	var embErr error
	var wg sync.WaitGroup
	if s.semanticEnabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vector, embErr = s.embedQuery(ctx, query)
		}()
	}
	lexical, lexErr := s.lexicalIDs(ctx, query, s.poolSize(limit))
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if embErr != nil {
		return nil, embErr
	}

	results, err := s.fuse(ctx, query, vector, lexical, lexErr, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, copyResults(results))
	return results, nil
}

// rank runs one query of a batch whose embedding is already computed
func (s *Searcher) rank(ctx context.Context, query string, vector []float32, limit int) ([]types.RankedResult, error) {
	lexical, lexErr := s.lexicalIDs(ctx, query, s.poolSize(limit))
	return s.fuse(ctx, query, vector, lexical, lexErr, limit)
}

// fuse retrieves semantic candidates for vector and merges them with the
// lexical candidates. One failed source degrades the ranking; two fail it.
func (s *Searcher) fuse(ctx context.Context, query string, vector []float32, lexical []string, lexErr error, limit int) ([]types.RankedResult, error) {
	semantic, semErr := s.semanticIDs(ctx, vector, s.poolSize(limit))
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case semErr != nil && lexErr != nil:
		return nil, fmt.Errorf("%w: semantic: %w; lexical: %w", types.ErrAllSourcesFailed, semErr, lexErr)
	case semErr != nil:
		s.logSourceDown("semantic", query, semErr)
	case lexErr != nil:
		s.logSourceDown("lexical", query, lexErr)
	}

	lists := make([]fusion.List, 2)
	lists[SourceSemantic] = fusion.List{Name: "semantic", Weight: s.semanticWeight, IDs: semantic}
	lists[SourceLexical] = fusion.List{Name: "lexical", Weight: s.lexicalWeight, IDs: lexical}
	results := s.fuser.Fuse(lists...)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Searcher) logSourceDown(source, query string, err error) {
	// Not configured is a deployment choice, not an outage
	level := slog.LevelWarn
	if errors.Is(err, errSourceDisabled) {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "searcher.source_unavailable",
		slog.String("source", source), slog.String("query", query), slog.Any("error", err))
}

var errSourceDisabled = fmt.Errorf("%w: not configured", types.ErrCandidateSourceUnavailable)

func (s *Searcher) semanticEnabled() bool {
	return s.embedder != nil && s.vectors != nil
}

func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailure, err)
	}
	return emb.Vector, nil
}

// embedBatch returns one vector per query, or nil when the semantic source
// is disabled
func (s *Searcher) embedBatch(ctx context.Context, queries []string) ([][]float32, error) {
	if !s.semanticEnabled() || len(queries) == 0 {
		return nil, nil
	}
	vectors, err := embedder.EmbedAll(ctx, s.embedder, queries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailure, err)
	}
	return vectors, nil
}

func (s *Searcher) semanticIDs(ctx context.Context, vector []float32, pool int) ([]string, error) {
	if !s.semanticEnabled() {
		return nil, errSourceDisabled
	}
	results, err := s.vectors.SearchVector(ctx, vector, pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCandidateSourceUnavailable, err)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids, nil
}

func (s *Searcher) lexicalIDs(ctx context.Context, query string, pool int) ([]string, error) {
	if s.lexical == nil {
		return nil, errSourceDisabled
	}
	results, err := s.lexical.SearchText(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCandidateSourceUnavailable, err)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids, nil
}

func (s *Searcher) poolSize(limit int) int {
	return limit * s.multiplier
}

// snapshot loads the current generation for enrichment. A missing graph is
// logged and enrichment degrades to bare hits.
func (s *Searcher) snapshot() *graph.Snapshot {
	snap, err := s.graphs.Require()
	if err != nil {
		s.logger.Debug("searcher.enrich_without_graph", slog.Any("error", err))
	}
	return snap
}

func (s *Searcher) lookup(ctx context.Context, snap *graph.Snapshot) assembler.ChunkLookup {
	return chunkLookup{ctx: ctx, snap: snap, store: s.chunks}
}

// chunkLookup reads the snapshot's chunk table first and the store second
type chunkLookup struct {
	ctx   context.Context
	snap  *graph.Snapshot
	store ChunkStore
}

func (l chunkLookup) Chunk(id string) (types.Chunk, bool) {
	if c, ok := l.snap.Chunk(id); ok {
		return c, true
	}
	if l.store == nil {
		return types.Chunk{}, false
	}
	c, err := l.store.GetChunk(l.ctx, id)
	if err != nil || c == nil {
		return types.Chunk{}, false
	}
	return *c, true
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return types.ErrEmptyQuery
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func generationOf(snap *graph.Snapshot) uint64 {
	if snap == nil {
		return 0
	}
	return snap.Generation
}

// cacheKey hashes a query with the parameters that change its answer
func cacheKey(query string, limit int, generation uint64) [32]byte {
	var data strings.Builder
	data.WriteString(query)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(limit))
	data.WriteString("|")
	data.WriteString(strconv.FormatUint(generation, 10))
	return sha256.Sum256([]byte(data.String()))
}

// copyResults deep-copies rankings so cached entries never alias caller data
func copyResults(src []types.RankedResult) []types.RankedResult {
	dst := make([]types.RankedResult, len(src))
	for i, r := range src {
		dst[i] = r
		dst[i].Ranks = append([]int(nil), r.Ranks...)
	}
	return dst
}
