package assembler

import (
	"cmp"
	"slices"

	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/pkg/types"
)

// DefaultMaxRelated caps the related chunks attached to one hit
const DefaultMaxRelated = 10

// Weights scores each relationship kind. Kinds missing from the table score 0.
type Weights map[types.Relationship]float64

// DefaultWeights returns the standard relationship weights
func DefaultWeights() Weights {
	return Weights{
		types.Calls:    1.0,
		types.Uses:     0.8,
		types.Contains: 0.7,
		types.Extends:  0.6,
		types.Imports:  0.5,
		types.TestedBy: 0.4,
	}
}

// ChunkLookup resolves chunk ids to chunks for line accounting
type ChunkLookup interface {
	Chunk(id string) (types.Chunk, bool)
}

// Config controls context assembly
type Config struct {
	Weights    Weights
	MaxRelated int
	Direction  graph.Direction
}

// Assembler enriches ranked hits with graph neighbors
type Assembler struct {
	weights    Weights
	maxRelated int
	direction  graph.Direction
}

// New creates an Assembler, filling unset config fields with defaults
func New(cfg Config) *Assembler {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if cfg.MaxRelated <= 0 {
		cfg.MaxRelated = DefaultMaxRelated
	}
	return &Assembler{
		weights:    cfg.Weights,
		maxRelated: cfg.MaxRelated,
		direction:  cfg.Direction,
	}
}

// Relevance scores a related node: 1/(distance+1) times the weight of the
// relationship it was reached through.
func (a *Assembler) Relevance(distance int, kind types.Relationship) float64 {
	return 1.0 / float64(distance+1) * a.weights[kind]
}

// Assemble attaches up to MaxRelated graph neighbors of hit within the
// strategy's depth. An invalid strategy is the only error. A missing graph or
// a hit with no node yields the hit alone.
//
// lookup supplies line counts; when nil the snapshot's own chunk table is
// used.
func (a *Assembler) Assemble(hit types.RankedResult, snap *graph.Snapshot, lookup ChunkLookup, strategy Strategy) (types.EnrichedResult, error) {
	if err := strategy.Validate(); err != nil {
		return types.EnrichedResult{}, err
	}
	return a.assemble(hit, snap, a.lookupFor(snap, lookup), strategy.Depth()), nil
}

// AssembleBatch enriches every hit of every query, preserving order
func (a *Assembler) AssembleBatch(hits [][]types.RankedResult, snap *graph.Snapshot, lookup ChunkLookup, strategy Strategy) ([][]types.EnrichedResult, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	lookup = a.lookupFor(snap, lookup)
	out := make([][]types.EnrichedResult, len(hits))
	for i, query := range hits {
		out[i] = a.AssembleAll(query, snap, lookup, strategy.Depth())
	}
	return out, nil
}

// AssembleAll enriches one query's hits with an already validated depth
func (a *Assembler) AssembleAll(hits []types.RankedResult, snap *graph.Snapshot, lookup ChunkLookup, depth int) []types.EnrichedResult {
	lookup = a.lookupFor(snap, lookup)
	out := make([]types.EnrichedResult, len(hits))
	for i, hit := range hits {
		out[i] = a.assemble(hit, snap, lookup, depth)
	}
	return out
}

func (a *Assembler) lookupFor(snap *graph.Snapshot, lookup ChunkLookup) ChunkLookup {
	if lookup != nil {
		return lookup
	}
	if snap != nil {
		return snap
	}
	return nil
}

func (a *Assembler) assemble(hit types.RankedResult, snap *graph.Snapshot, lookup ChunkLookup, depth int) types.EnrichedResult {
	result := types.EnrichedResult{
		Primary:    hit,
		TotalLines: lineCount(lookup, hit.ChunkID),
	}
	if snap == nil || snap.Graph == nil {
		return result
	}
	g := snap.Graph

	seed, ok := g.NodeForChunk(hit.ChunkID)
	if !ok {
		return result
	}

	reached := g.RelatedDirected(seed, depth, a.direction)
	related := make([]types.RelatedChunk, 0, len(reached))
	for _, r := range reached {
		n, ok := g.Node(r.Node)
		if !ok || n.ChunkID == hit.ChunkID {
			continue
		}
		related = append(related, types.RelatedChunk{
			ChunkID:   n.ChunkID,
			Name:      n.Name,
			Distance:  r.Distance,
			Kind:      r.Kind,
			Relevance: a.Relevance(r.Distance, r.Kind),
			LineCount: lineCount(lookup, n.ChunkID),
		})
	}

	slices.SortFunc(related, func(x, y types.RelatedChunk) int {
		return cmp.Or(
			cmp.Compare(y.Relevance, x.Relevance),
			cmp.Compare(x.Distance, y.Distance),
			cmp.Compare(x.ChunkID, y.ChunkID),
		)
	})
	if len(related) > a.maxRelated {
		related = related[:a.maxRelated]
	}

	for _, rc := range related {
		result.TotalLines += rc.LineCount
	}
	result.Related = related
	return result
}

func lineCount(lookup ChunkLookup, chunkID string) int {
	if lookup == nil {
		return 0
	}
	c, ok := lookup.Chunk(chunkID)
	if !ok {
		return 0
	}
	return c.LineCount()
}
