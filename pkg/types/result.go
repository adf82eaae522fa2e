package types

// RankedResult is one fused search hit
type RankedResult struct {
	ChunkID string
	Score   float64

	// Ranks holds the 1-based rank of the chunk in each fused source, in the
	// order the sources were supplied. Zero means the source did not return it.
	Ranks []int
}

// Rank returns the rank of the result in source i, or 0 when absent
func (r RankedResult) Rank(i int) int {
	if i < 0 || i >= len(r.Ranks) {
		return 0
	}
	return r.Ranks[i]
}

// RelatedChunk is a chunk reached from a primary hit through the code graph
type RelatedChunk struct {
	ChunkID   string
	Name      string
	Distance  int
	Kind      Relationship
	Relevance float64
	LineCount int
}

// EnrichedResult bundles a primary hit with its relevance halo
type EnrichedResult struct {
	Primary RankedResult
	Related []RelatedChunk

	// TotalLines sums the line spans of the primary and every retained related chunk
	TotalLines int
}

// BatchItem is the outcome for one position of a batch request. Err is set
// when that position failed on its own; sibling positions are unaffected.
type BatchItem[T any] struct {
	Results T
	Err     error
}
