package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-graph/pkg/types"
)

func testNodes(n int) []Node {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{ID: NodeID(i), Name: fmt.Sprintf("n%02d", i), ChunkID: fmt.Sprintf("c%02d", i), Kind: types.KindFunction}
	}
	return nodes
}

func TestNewCodeGraph_DedupesAndDropsInvalid(t *testing.T) {
	g := newCodeGraph(testNodes(3), []Edge{
		{From: 0, To: 1, Kind: types.Calls},
		{From: 0, To: 1, Kind: types.Calls},
		{From: 0, To: 1, Kind: types.Uses},
		{From: 0, To: 7, Kind: types.Calls},
		{From: 2, To: 2, Kind: types.Calls},
		{From: 1, To: 2, Kind: types.Relationship(42)},
	})

	stats := g.Stats()
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 2, stats.ByKind[types.Calls])
	assert.Equal(t, 1, stats.ByKind[types.Uses])

	assert.Equal(t, []Edge{{From: 0, To: 1, Kind: types.Calls}, {From: 0, To: 1, Kind: types.Uses}}, g.NeighborsOut(0))
	assert.Equal(t, []Edge{{From: 0, To: 1, Kind: types.Uses}}, g.NeighborsOut(0, types.Uses))
	assert.Equal(t, []Edge{{From: 2, To: 2, Kind: types.Calls}}, g.NeighborsIn(2))
	assert.Nil(t, g.NeighborsOut(99))
}

func TestRelated_DiscoveryKindFollowsEdgeOrder(t *testing.T) {
	// 0 reaches 1 by both uses and calls; calls sorts first
	g := newCodeGraph(testNodes(2), []Edge{
		{From: 0, To: 1, Kind: types.Uses},
		{From: 0, To: 1, Kind: types.Calls},
	})
	assert.Equal(t, []Reach{{Node: 1, Distance: 1, Kind: types.Calls}}, g.Related(0, 3))
}

func TestRelated_Deterministic(t *testing.T) {
	g := randomGraph(40, 120, 11)
	for id := NodeID(0); id < 40; id++ {
		first := g.Related(id, 3)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, g.Related(id, 3))
		}
	}
}

func randomGraph(nodes, edges int, seed int64) *CodeGraph {
	rng := rand.New(rand.NewSource(seed))
	var es []Edge
	for i := 0; i < edges; i++ {
		es = append(es, Edge{
			From: NodeID(rng.Intn(nodes)),
			To:   NodeID(rng.Intn(nodes)),
			Kind: types.AllRelationships[rng.Intn(len(types.AllRelationships))],
		})
	}
	return newCodeGraph(testNodes(nodes), es)
}

// shortestPaths computes unbounded BFS distances by relaxation
func shortestPaths(g *CodeGraph, seed NodeID) map[NodeID]int {
	dist := map[NodeID]int{seed: 0}
	for changed := true; changed; {
		changed = false
		for _, n := range g.Nodes() {
			d, ok := dist[n.ID]
			if !ok {
				continue
			}
			for _, e := range g.NeighborsOut(n.ID) {
				if cur, seen := dist[e.To]; !seen || d+1 < cur {
					dist[e.To] = d + 1
					changed = true
				}
			}
		}
	}
	return dist
}

func TestRelated_ShortestPaths(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		g := randomGraph(30, 70, seed)
		for id := NodeID(0); id < 30; id++ {
			want := shortestPaths(g, id)
			for depth := 1; depth <= 4; depth++ {
				got := g.Related(id, depth)
				seen := make(map[NodeID]bool)
				for _, r := range got {
					require.False(t, seen[r.Node], "node reported twice")
					seen[r.Node] = true
					assert.Equal(t, want[r.Node], r.Distance)
					assert.LessOrEqual(t, r.Distance, depth)
					assert.NotEqual(t, id, r.Node)
				}
				for n, d := range want {
					if n != id && d <= depth {
						assert.True(t, seen[n], "node %d at distance %d missing for depth %d", n, d, depth)
					}
				}
			}
		}
	}
}

func TestRelated_DiscoveryOrderIsNonDecreasingDistance(t *testing.T) {
	g := randomGraph(25, 80, 3)
	for id := NodeID(0); id < 25; id++ {
		prev := 0
		for _, r := range g.Related(id, 5) {
			assert.GreaterOrEqual(t, r.Distance, prev)
			prev = r.Distance
		}
	}
}

func TestRelatedDirected(t *testing.T) {
	// 0 -> 1 -> 2, 3 -> 1
	g := newCodeGraph(testNodes(4), []Edge{
		{From: 0, To: 1, Kind: types.Calls},
		{From: 1, To: 2, Kind: types.Uses},
		{From: 3, To: 1, Kind: types.Calls},
	})

	assert.Equal(t, []Reach{{Node: 2, Distance: 1, Kind: types.Uses}}, g.RelatedDirected(1, 1, Outgoing))
	assert.Equal(t, []Reach{
		{Node: 0, Distance: 1, Kind: types.Calls},
		{Node: 3, Distance: 1, Kind: types.Calls},
	}, g.RelatedDirected(1, 1, Incoming))
	assert.Equal(t, []Reach{
		{Node: 2, Distance: 1, Kind: types.Uses},
		{Node: 0, Distance: 1, Kind: types.Calls},
		{Node: 3, Distance: 1, Kind: types.Calls},
	}, g.RelatedDirected(1, 1, Both))
	assert.Equal(t, "both", Both.String())
}

func TestAnalytics(t *testing.T) {
	// main -> run -> load, main -> load, test -> run, run tested_by test
	nodes := []Node{
		{ID: 0, Name: "load", ChunkID: "c0"},
		{ID: 1, Name: "main", ChunkID: "c1"},
		{ID: 2, Name: "run", ChunkID: "c2"},
		{ID: 3, Name: "TestRun", ChunkID: "c3"},
		{ID: 4, Name: "Config", ChunkID: "c4"},
	}
	g := newCodeGraph(nodes, []Edge{
		{From: 1, To: 2, Kind: types.Calls},
		{From: 1, To: 0, Kind: types.Calls},
		{From: 2, To: 0, Kind: types.Calls},
		{From: 3, To: 2, Kind: types.Calls},
		{From: 2, To: 3, Kind: types.TestedBy},
		{From: 0, To: 4, Kind: types.Uses},
	})

	assert.Equal(t, []NodeID{0, 2}, g.Callees(1))
	assert.Equal(t, []NodeID{1, 2}, g.Callers(0))
	assert.Equal(t, []NodeID{3}, g.RelatedTests(2))

	entries := g.EntryPoints()
	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].Name)

	usages := g.TransitiveUsages(4, 3)
	var names []string
	for _, r := range usages {
		n, _ := g.Node(r.Node)
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"load", "main", "run", "TestRun"}, names)

	hot := g.Hotspots(2)
	require.Len(t, hot, 2)
	assert.Equal(t, "load", hot[0].Node.Name)
	assert.Equal(t, 2, hot[0].InDegree)
	assert.Equal(t, "run", hot[1].Node.Name)
}
