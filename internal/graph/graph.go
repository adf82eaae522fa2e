package graph

import (
	"cmp"
	"slices"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// NodeID indexes a node within one graph generation
type NodeID int32

// Node is one declared symbol
type Node struct {
	ID       NodeID
	Name     string
	ChunkID  string
	Kind     types.ChunkKind
	FilePath string
	Language types.Language
}

// Edge is a directed, typed relationship between two nodes
type Edge struct {
	From NodeID
	To   NodeID
	Kind types.Relationship
}

// Stats summarizes a graph
type Stats struct {
	Nodes  int
	Edges  int
	ByKind map[types.Relationship]int
}

// CodeGraph is an immutable directed multigraph over symbols. Nodes live in
// a flat table; adjacency lists are keyed by node index and sorted by
// (kind, other endpoint) so traversal order is fixed at build time.
//
// A CodeGraph is safe for concurrent use once built.
type CodeGraph struct {
	nodes   []Node
	out     [][]Edge
	in      [][]Edge
	byName  map[string]NodeID
	byChunk map[string]NodeID
	edges   int
}

// newCodeGraph freezes nodes and edges into a CodeGraph. Duplicate
// (from, to, kind) edges collapse to one; edges naming unknown nodes are
// dropped.
func newCodeGraph(nodes []Node, edges []Edge) *CodeGraph {
	g := &CodeGraph{
		nodes:   nodes,
		out:     make([][]Edge, len(nodes)),
		in:      make([][]Edge, len(nodes)),
		byName:  make(map[string]NodeID, len(nodes)),
		byChunk: make(map[string]NodeID, len(nodes)),
	}
	for _, n := range nodes {
		g.byName[n.Name] = n.ID
		g.byChunk[n.ChunkID] = n.ID
	}

	valid := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if g.has(e.From) && g.has(e.To) && e.Kind.Valid() {
			valid = append(valid, e)
		}
	}
	slices.SortFunc(valid, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.To, b.To))
	})
	valid = slices.Compact(valid)

	for _, e := range valid {
		g.out[e.From] = append(g.out[e.From], e)
		g.in[e.To] = append(g.in[e.To], e)
	}
	for i := range g.in {
		slices.SortFunc(g.in[i], func(a, b Edge) int {
			return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.From, b.From))
		})
	}
	g.edges = len(valid)
	return g
}

func (g *CodeGraph) has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Node returns the node with the given id
func (g *CodeGraph) Node(id NodeID) (Node, bool) {
	if g == nil || !g.has(id) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Nodes returns a copy of the node table in id order
func (g *CodeGraph) Nodes() []Node {
	if g == nil {
		return nil
	}
	return slices.Clone(g.nodes)
}

// Lookup resolves a qualified name to its node
func (g *CodeGraph) Lookup(name string) (NodeID, bool) {
	if g == nil {
		return 0, false
	}
	id, ok := g.byName[name]
	return id, ok
}

// NodeForChunk returns the node declared by a chunk, if any
func (g *CodeGraph) NodeForChunk(chunkID string) (NodeID, bool) {
	if g == nil {
		return 0, false
	}
	id, ok := g.byChunk[chunkID]
	return id, ok
}

// NeighborsOut returns the outgoing edges of id, restricted to kinds when given
func (g *CodeGraph) NeighborsOut(id NodeID, kinds ...types.Relationship) []Edge {
	if g == nil || !g.has(id) {
		return nil
	}
	return filterKinds(g.out[id], kinds)
}

// NeighborsIn returns the incoming edges of id, restricted to kinds when given
func (g *CodeGraph) NeighborsIn(id NodeID, kinds ...types.Relationship) []Edge {
	if g == nil || !g.has(id) {
		return nil
	}
	return filterKinds(g.in[id], kinds)
}

func filterKinds(edges []Edge, kinds []types.Relationship) []Edge {
	if len(kinds) == 0 {
		return slices.Clone(edges)
	}
	var out []Edge
	for _, e := range edges {
		if slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Stats reports node and edge counts
func (g *CodeGraph) Stats() Stats {
	s := Stats{ByKind: make(map[types.Relationship]int)}
	if g == nil {
		return s
	}
	s.Nodes = len(g.nodes)
	s.Edges = g.edges
	for _, edges := range g.out {
		for _, e := range edges {
			s.ByKind[e.Kind]++
		}
	}
	return s
}
