package graph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// Snapshot is one published graph generation together with the chunk table
// it was built from. Snapshots are never mutated after publication.
type Snapshot struct {
	Generation  uint64
	BuiltAt     time.Time
	Graph       *CodeGraph
	Fingerprint uint64

	chunks map[string]types.Chunk
}

// Chunk returns a chunk of the generation by id
func (s *Snapshot) Chunk(id string) (types.Chunk, bool) {
	if s == nil {
		return types.Chunk{}, false
	}
	c, ok := s.chunks[id]
	return c, ok
}

// ChunkCount returns the number of chunks in the generation
func (s *Snapshot) ChunkCount() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// Handle holds the current snapshot. Readers call Load once per request and
// keep the pointer for the whole request; Publish swaps atomically.
type Handle struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes publishers
	now     func() time.Time
}

// NewHandle creates an empty handle
func NewHandle() *Handle {
	return &Handle{now: time.Now}
}

// Load returns the current snapshot, or nil before the first publish
func (h *Handle) Load() *Snapshot {
	if h == nil {
		return nil
	}
	return h.current.Load()
}

// Require returns the current snapshot or types.ErrGraphNotBuilt
func (h *Handle) Require() (*Snapshot, error) {
	s := h.Load()
	if s == nil || s.Graph == nil {
		return nil, types.ErrGraphNotBuilt
	}
	return s, nil
}

// Publish installs g and chunks as the next generation and returns it
func (h *Handle) Publish(g *CodeGraph, chunks []types.Chunk) *Snapshot {
	return h.PublishAt(g, chunks, h.now())
}

// PublishAt is Publish with an explicit build time, used when restoring a
// persisted index.
func (h *Handle) PublishAt(g *CodeGraph, chunks []types.Chunk, builtAt time.Time) *Snapshot {
	table := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		table[c.ID] = c
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var gen uint64 = 1
	if prev := h.current.Load(); prev != nil {
		gen = prev.Generation + 1
	}
	s := &Snapshot{
		Generation:  gen,
		BuiltAt:     builtAt,
		Graph:       g,
		Fingerprint: Fingerprint(g),
		chunks:      table,
	}
	h.current.Store(s)
	return s
}

// Restore sets the generation counter so the next publish continues from a
// persisted generation. It has no effect once a snapshot exists.
func (h *Handle) Restore(generation uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current.Load() != nil || generation == 0 {
		return
	}
	h.current.Store(&Snapshot{Generation: generation})
}
