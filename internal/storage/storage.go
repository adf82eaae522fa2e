package storage

import (
	"context"
	"time"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// Storage defines the interface for persisting and querying indexed chunks
type Storage interface {
	// Chunk operations
	ReplaceChunks(ctx context.Context, chunks []types.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error)
	ListChunks(ctx context.Context) ([]types.Chunk, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int) ([]TextResult, error)

	// Index state operations
	SaveIndexState(ctx context.Context, state *IndexState) error
	GetIndexState(ctx context.Context) (*IndexState, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ChunkID   string
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// IndexState records the last published graph generation, so a restarted
// process can report freshness and restore the generation counter.
type IndexState struct {
	Generation  uint64
	BuiltAt     time.Time
	ChunkCount  int
	NodeCount   int
	EdgeCount   int
	Fingerprint uint64
	UpdatedAt   time.Time
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   string
	BM25Score float64
}

// Status contains statistics about the index
type Status struct {
	ChunksCount     int
	EmbeddingsCount int
	IndexState      *IndexState // nil before the first build
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}
