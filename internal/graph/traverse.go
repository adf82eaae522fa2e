package graph

import (
	"cmp"
	"slices"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// Reach is a node discovered by a traversal
type Reach struct {
	Node     NodeID
	Distance int
	// Kind is the relationship of the edge the node was first discovered on
	Kind types.Relationship
}

// Direction selects which edges a traversal follows
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	}
	return "unknown"
}

// Related runs a breadth-first traversal over outgoing edges from seed and
// returns every node within maxDepth hops in discovery order. Each node is
// reported once, for the first edge that reached it. The seed itself is
// never reported. maxDepth <= 0 or an unknown seed yields nil.
func (g *CodeGraph) Related(seed NodeID, maxDepth int) []Reach {
	return g.RelatedDirected(seed, maxDepth, Outgoing)
}

// RelatedDirected is Related with a choice of edge direction. With Both,
// outgoing edges of a node are expanded before its incoming edges.
func (g *CodeGraph) RelatedDirected(seed NodeID, maxDepth int, dir Direction) []Reach {
	return g.bfs(seed, maxDepth, dir, nil)
}

func (g *CodeGraph) bfs(seed NodeID, maxDepth int, dir Direction, kinds []types.Relationship) []Reach {
	if g == nil || maxDepth <= 0 || !g.has(seed) {
		return nil
	}

	visited := make([]bool, len(g.nodes))
	visited[seed] = true

	var result []Reach
	frontier := []NodeID{seed}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []NodeID
		visit := func(to NodeID, kind types.Relationship) {
			if visited[to] {
				return
			}
			if len(kinds) > 0 && !slices.Contains(kinds, kind) {
				return
			}
			visited[to] = true
			result = append(result, Reach{Node: to, Distance: depth, Kind: kind})
			next = append(next, to)
		}
		for _, id := range frontier {
			if dir == Outgoing || dir == Both {
				for _, e := range g.out[id] {
					visit(e.To, e.Kind)
				}
			}
			if dir == Incoming || dir == Both {
				for _, e := range g.in[id] {
					visit(e.From, e.Kind)
				}
			}
		}
		frontier = next
	}
	return result
}

// Callees returns the nodes id calls directly, in id order
func (g *CodeGraph) Callees(id NodeID) []NodeID {
	return targets(g.NeighborsOut(id, types.Calls), func(e Edge) NodeID { return e.To })
}

// Callers returns the nodes that call id directly, in id order
func (g *CodeGraph) Callers(id NodeID) []NodeID {
	return targets(g.NeighborsIn(id, types.Calls), func(e Edge) NodeID { return e.From })
}

// RelatedTests returns the test nodes linked to id by TestedBy edges
func (g *CodeGraph) RelatedTests(id NodeID) []NodeID {
	return targets(g.NeighborsOut(id, types.TestedBy), func(e Edge) NodeID { return e.To })
}

// TransitiveUsages returns every node that depends on id through Calls or
// Uses edges within maxDepth hops, nearest first.
func (g *CodeGraph) TransitiveUsages(id NodeID, maxDepth int) []Reach {
	return g.bfs(id, maxDepth, Incoming, []types.Relationship{types.Calls, types.Uses})
}

func targets(edges []Edge, end func(Edge) NodeID) []NodeID {
	if len(edges) == 0 {
		return nil
	}
	ids := make([]NodeID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, end(e))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// EntryPoints returns nodes that call something but are called by nothing,
// excluding tests. Results are sorted by name.
func (g *CodeGraph) EntryPoints() []Node {
	if g == nil {
		return nil
	}
	var out []Node
	for _, n := range g.nodes {
		if len(g.NeighborsOut(n.ID, types.Calls)) == 0 || len(g.NeighborsIn(n.ID, types.Calls)) > 0 {
			continue
		}
		if len(g.NeighborsIn(n.ID, types.TestedBy)) > 0 {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Hotspot is a node with its incoming edge count
type Hotspot struct {
	Node     Node
	InDegree int
}

// Hotspots returns the limit most depended-upon nodes, by incoming edge
// count then name. limit <= 0 returns all nodes with any incoming edge.
func (g *CodeGraph) Hotspots(limit int) []Hotspot {
	if g == nil {
		return nil
	}
	var out []Hotspot
	for _, n := range g.nodes {
		if d := len(g.in[n.ID]); d > 0 {
			out = append(out, Hotspot{Node: n, InDegree: d})
		}
	}
	slices.SortFunc(out, func(a, b Hotspot) int {
		return cmp.Or(cmp.Compare(b.InDegree, a.InDegree), cmp.Compare(a.Node.Name, b.Node.Name))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
