package fusion

import (
	"cmp"
	"math"
	"slices"

	"github.com/dshills/gocontext-graph/pkg/types"
)

const (
	// DefaultK is the RRF smoothing constant
	DefaultK = 60.0

	// DefaultSemanticWeight weights the embedding similarity list
	DefaultSemanticWeight = 0.7

	// DefaultLexicalWeight weights the full-text list
	DefaultLexicalWeight = 0.3

	// minNormalizeDelta is the smallest score spread Normalize rescales
	minNormalizeDelta = 1e-6
)

// List is one ranked candidate list. The position of an ID is its 1-based
// rank; a repeated ID keeps its first position.
type List struct {
	Name   string
	Weight float64
	IDs    []string
}

// Fuser merges ranked lists with weighted Reciprocal Rank Fusion
type Fuser struct {
	k float64
}

// New creates a Fuser. k <= 0 uses DefaultK.
func New(k float64) *Fuser {
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		k = DefaultK
	}
	return &Fuser{k: k}
}

// K returns the smoothing constant in use
func (f *Fuser) K() float64 {
	return f.k
}

// Fuse combines lists into one ranking.
// RRF formula: score(d) = Σ weight_i / (k + rank_i(d)), absent contributing 0.
//
// Results are ordered by descending score. Ties go to the item with the
// better rank in the first list, then the second, and so on, an absent rank
// counting as worse than any present one; remaining ties order by chunk ID.
// Each result's Ranks holds its rank per list in list order.
func (f *Fuser) Fuse(lists ...List) []types.RankedResult {
	type entry struct {
		score float64
		ranks []int
	}

	entries := make(map[string]*entry)
	order := make([]string, 0)

	for li, list := range lists {
		for pos, id := range list.IDs {
			if id == "" {
				continue
			}
			e, ok := entries[id]
			if !ok {
				e = &entry{ranks: make([]int, len(lists))}
				entries[id] = e
				order = append(order, id)
			}
			// Duplicate within the same list keeps its first rank
			if e.ranks[li] != 0 {
				continue
			}
			rank := pos + 1
			e.ranks[li] = rank
			e.score += list.Weight / (f.k + float64(rank))
		}
	}

	results := make([]types.RankedResult, 0, len(order))
	for _, id := range order {
		e := entries[id]
		results = append(results, types.RankedResult{ChunkID: id, Score: e.score, Ranks: e.ranks})
	}

	slices.SortFunc(results, compareResults)
	return results
}

// FuseBatch fuses each query's lists independently, preserving order
func (f *Fuser) FuseBatch(batch [][]List) [][]types.RankedResult {
	out := make([][]types.RankedResult, len(batch))
	for i, lists := range batch {
		out[i] = f.Fuse(lists...)
	}
	return out
}

func compareResults(a, b types.RankedResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	for i := 0; i < max(len(a.Ranks), len(b.Ranks)); i++ {
		if c := cmp.Compare(rankKey(a.Rank(i)), rankKey(b.Rank(i))); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ChunkID, b.ChunkID)
}

// rankKey maps absent (0) to the worst possible rank
func rankKey(rank int) int {
	if rank <= 0 {
		return math.MaxInt
	}
	return rank
}

// Normalize rescales scores to [0,1] by min-max. Non-finite scores become 0.
// When every finite score is (nearly) equal they all become 1. The input is
// not modified.
func Normalize(results []types.RankedResult) []types.RankedResult {
	out := slices.Clone(results)
	if len(out) == 0 {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range out {
		if isFinite(r.Score) {
			lo = math.Min(lo, r.Score)
			hi = math.Max(hi, r.Score)
		}
	}

	for i := range out {
		s := out[i].Score
		switch {
		case !isFinite(s):
			out[i].Score = 0
		case hi-lo < minNormalizeDelta:
			out[i].Score = 1
		default:
			out[i].Score = (s - lo) / (hi - lo)
		}
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
