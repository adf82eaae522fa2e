package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocontext-graph/internal/chunker"
	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/internal/parser"
	"github.com/dshills/gocontext-graph/internal/storage"
	"github.com/dshills/gocontext-graph/pkg/types"
)

// ErrRebuildInProgress is returned when a rebuild is requested while another
// one is running
var ErrRebuildInProgress = errors.New("rebuild already in progress")

// Indexer coordinates the rebuild pipeline: embed -> build graph -> persist -> publish
type Indexer struct {
	store    storage.Storage
	embedder embedder.Embedder
	graphs   *graph.Handle
	builder  *graph.Builder

	lock  IndexLock
	stale atomic.Bool

	workers   int
	batchSize int
	onPublish func(*graph.Snapshot)
	logger    *slog.Logger
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int              // Concurrent embedding calls (default: runtime.NumCPU())
	BatchSize int              // Texts per embedding call (default: embedder.DefaultBatchSize)
	Extractor parser.Extractor // Reference extractor (default: tree-sitter registry)
	Logger    *slog.Logger

	// OnPublish runs after every new generation is installed
	OnPublish func(*graph.Snapshot)
}

// Statistics contains statistics about one rebuild
type Statistics struct {
	Chunks          int
	Embedded        int
	Nodes           int
	Edges           int
	Unresolved      int
	ParseFailures   int
	Unsupported     int
	EstimatedTokens int
	Generation      uint64
	Fingerprint     uint64
	Duration        time.Duration
}

// New creates a new Indexer. A nil embedder indexes without vectors, leaving
// search to the lexical source.
func New(store storage.Storage, emb embedder.Embedder, graphs *graph.Handle, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if graphs == nil {
		graphs = graph.NewHandle()
	}

	opts := []graph.BuilderOption{graph.WithWorkers(cfg.Workers), graph.WithLogger(cfg.Logger)}
	if cfg.Extractor != nil {
		opts = append(opts, graph.WithExtractor(cfg.Extractor))
	}

	return &Indexer{
		store:     store,
		embedder:  emb,
		graphs:    graphs,
		builder:   graph.NewBuilder(opts...),
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		onPublish: cfg.OnPublish,
		logger:    cfg.Logger,
	}
}

// Graphs returns the handle new generations are published to
func (idx *Indexer) Graphs() *graph.Handle {
	return idx.graphs
}

// Rebuild replaces the whole index with chunks. Chunks, embeddings and the
// index state are committed in one transaction; the graph is published only
// after the commit succeeds. On error the previous generation stays current.
func (idx *Indexer) Rebuild(ctx context.Context, chunks []types.Chunk) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrRebuildInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("chunk %d (%s): %w", i, chunks[i].ID, err)
		}
	}

	vectors, err := idx.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	g, bstats, err := idx.builder.BuildWithStats(ctx, chunks)
	if err != nil {
		return nil, err
	}

	builtAt := time.Now()
	state := &storage.IndexState{
		Generation:  idx.nextGeneration(),
		BuiltAt:     builtAt,
		ChunkCount:  len(chunks),
		NodeCount:   bstats.Nodes,
		EdgeCount:   bstats.Edges,
		Fingerprint: graph.Fingerprint(g),
	}
	if err := idx.persist(ctx, chunks, vectors, state); err != nil {
		return nil, err
	}

	snap := idx.publish(ctx, g, chunks, builtAt, state.Generation)
	idx.stale.Store(false)

	stats := newStatistics(chunks, bstats, snap, time.Since(start))
	stats.Embedded = len(vectors)
	idx.logger.Info("indexer.rebuilt",
		slog.Uint64("generation", stats.Generation),
		slog.Int("chunks", stats.Chunks),
		slog.Int("embedded", stats.Embedded),
		slog.Int("nodes", stats.Nodes),
		slog.Int("edges", stats.Edges),
		slog.Duration("elapsed", stats.Duration))
	return stats, nil
}

// RebuildFromStore rebuilds the graph from persisted chunks without
// re-embedding, continuing the persisted generation. It returns
// types.ErrGraphNotBuilt when nothing was ever indexed.
func (idx *Indexer) RebuildFromStore(ctx context.Context) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrRebuildInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	state, err := idx.store.GetIndexState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no persisted index: %w", types.ErrGraphNotBuilt)
	}
	if err != nil {
		return nil, fmt.Errorf("load index state: %w", err)
	}

	chunks, err := idx.store.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	g, bstats, err := idx.builder.BuildWithStats(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if idx.graphs.Load() == nil && state.Generation > 1 {
		idx.graphs.Restore(state.Generation - 1)
	}
	snap := idx.publish(ctx, g, chunks, state.BuiltAt, idx.nextGeneration())

	if snap.Fingerprint != state.Fingerprint {
		idx.logger.Warn("indexer.fingerprint_changed",
			slog.String("persisted", fmt.Sprintf("%016x", state.Fingerprint)),
			slog.String("rebuilt", fmt.Sprintf("%016x", snap.Fingerprint)))
	}
	if snap.Generation != state.Generation || snap.Fingerprint != state.Fingerprint {
		state.Generation = snap.Generation
		state.Fingerprint = snap.Fingerprint
		state.NodeCount, state.EdgeCount = bstats.Nodes, bstats.Edges
		if err := idx.store.SaveIndexState(ctx, state); err != nil {
			return nil, fmt.Errorf("save index state: %w", err)
		}
	}

	stats := newStatistics(chunks, bstats, snap, time.Since(start))
	idx.logger.Info("indexer.restored",
		slog.Uint64("generation", stats.Generation),
		slog.Int("chunks", stats.Chunks),
		slog.Int("nodes", stats.Nodes),
		slog.Int("edges", stats.Edges))
	return stats, nil
}

// MarkStale records that sources changed after the current generation was
// built. The next successful rebuild clears it.
func (idx *Indexer) MarkStale() {
	if !idx.stale.Swap(true) {
		idx.logger.Info("indexer.marked_stale")
	}
}

// Freshness describes the current generation
func (idx *Indexer) Freshness() types.Freshness {
	f := types.Freshness{Stale: idx.stale.Load()}
	snap := idx.graphs.Load()
	if snap == nil || snap.Graph == nil {
		return f
	}
	f.Generation = snap.Generation
	f.BuiltAt = snap.BuiltAt
	f.Fingerprint = snap.Fingerprint
	return f
}

// Rebuilding reports whether a rebuild is running
func (idx *Indexer) Rebuilding() bool {
	return idx.lock.Held()
}

// RebuildStarted returns when the running rebuild began, or the zero time
func (idx *Indexer) RebuildStarted() time.Time {
	return idx.lock.Since()
}

func (idx *Indexer) nextGeneration() uint64 {
	if snap := idx.graphs.Load(); snap != nil {
		return snap.Generation + 1
	}
	return 1
}

// embed returns one vector per chunk, or nil when no embedder is configured.
// Batches run on a bounded pool; any failure fails the rebuild.
func (idx *Indexer) embed(ctx context.Context, chunks []types.Chunk) ([][]float32, error) {
	if idx.embedder == nil || len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = EmbeddingText(&chunks[i])
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for start := 0; start < len(texts); start += idx.batchSize {
		end := min(start+idx.batchSize, len(texts))
		g.Go(func() error {
			out, err := embedder.EmbedAll(gctx, idx.embedder, texts[start:end])
			if err != nil {
				return fmt.Errorf("chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailure, err)
	}
	return vectors, nil
}

// persist replaces chunks, embeddings and index state in one transaction
func (idx *Indexer) persist(ctx context.Context, chunks []types.Chunk, vectors [][]float32, state *storage.IndexState) error {
	tx, err := idx.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ReplaceChunks(ctx, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	for i, vector := range vectors {
		err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   chunks[i].ID,
			Vector:    storage.SerializeVector(vector),
			Dimension: len(vector),
			Provider:  idx.embedder.Provider(),
			Model:     idx.embedder.Model(),
		})
		if err != nil {
			return fmt.Errorf("store embedding for %s: %w", chunks[i].ID, err)
		}
	}
	if err := tx.SaveIndexState(ctx, state); err != nil {
		return fmt.Errorf("save index state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// publish installs the next generation. The lock guarantees no other
// indexer publishes concurrently, so want only differs when the handle is
// shared with another publisher.
func (idx *Indexer) publish(ctx context.Context, g *graph.CodeGraph, chunks []types.Chunk, builtAt time.Time, want uint64) *graph.Snapshot {
	snap := idx.graphs.PublishAt(g, chunks, builtAt)
	if snap.Generation != want {
		idx.logger.WarnContext(ctx, "indexer.generation_mismatch",
			slog.Uint64("expected", want), slog.Uint64("published", snap.Generation))
	}
	if idx.onPublish != nil {
		idx.onPublish(snap)
	}
	return snap
}

func newStatistics(chunks []types.Chunk, bstats *graph.BuildStats, snap *graph.Snapshot, elapsed time.Duration) *Statistics {
	stats := &Statistics{
		Chunks:        len(chunks),
		Nodes:         bstats.Nodes,
		Edges:         bstats.Edges,
		Unresolved:    bstats.Unresolved,
		ParseFailures: bstats.ParseFailures,
		Unsupported:   bstats.Unsupported,
		Generation:    snap.Generation,
		Fingerprint:   snap.Fingerprint,
		Duration:      elapsed,
	}
	for i := range chunks {
		stats.EstimatedTokens += chunker.EstimateTokenCount(chunks[i].Content)
	}
	return stats
}

// EmbeddingText is the text embedded for a chunk: symbol, docstring and
// content, falling back to the chunk id when all are empty
func EmbeddingText(c *types.Chunk) string {
	var parts []string
	for _, p := range []string{c.Symbol, c.Docstring, c.Content} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return c.ID
	}
	return strings.Join(parts, "\n")
}
