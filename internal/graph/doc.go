// Package graph builds and queries the code relationship graph.
//
// A Builder turns a complete chunk set into an immutable CodeGraph in two
// passes: every chunk declaring a qualified symbol becomes a node, then each
// chunk's source is run through the parser and the references it contains are
// resolved against the node table into typed edges (calls, uses, imports,
// contains, extends, tested_by). References that cannot be resolved are
// dropped.
//
//	b := graph.NewBuilder(graph.WithWorkers(8))
//	g, err := b.Build(ctx, chunks)
//	if err != nil {
//	    return err // only on cancellation
//	}
//	id, _ := g.Lookup("store.Load")
//	for _, r := range g.Related(id, 2) {
//	    n, _ := g.Node(r.Node)
//	    fmt.Println(n.Name, r.Distance, r.Kind)
//	}
//
// # Determinism
//
// Node ids are assigned in (name, chunk id) order and adjacency lists are
// sorted by (kind, endpoint) when the graph is frozen, so builds over the
// same chunks produce identical graphs regardless of input order and
// traversals report the same discovery kind for equal-distance nodes.
//
// # Snapshots
//
// Queries read the graph through a Handle. Publish swaps in a new Snapshot
// atomically; a query that loaded the previous snapshot keeps using it.
package graph
