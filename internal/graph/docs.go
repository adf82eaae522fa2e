package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/dshills/gocontext-graph/pkg/types"
)

// MaxDocNeighbors caps the neighbors listed per relationship in a document
const MaxDocNeighbors = 12

// Document is a deterministic text rendering of one node and its outgoing
// neighborhood, suitable for lexical indexing.
type Document struct {
	Node Node
	Text string
	Hash uint64
}

// Documents renders one document per node, sorted by node name. The output
// is a pure function of the graph.
func (g *CodeGraph) Documents() []Document {
	if g == nil {
		return nil
	}
	docs := make([]Document, 0, len(g.nodes))
	for _, n := range g.nodes {
		text := g.document(n)
		docs = append(docs, Document{Node: n, Text: text, Hash: xxh3.HashString(text)})
	}
	slices.SortFunc(docs, func(a, b Document) int { return cmp.Compare(a.Node.Name, b.Node.Name) })
	return docs
}

func (g *CodeGraph) document(n Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", n.Name, n.Kind, n.FilePath)

	for _, kind := range types.AllRelationships {
		var names []string
		for _, e := range g.out[n.ID] {
			if e.Kind == kind {
				names = append(names, g.nodes[e.To].Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		slices.Sort(names)
		names = slices.Compact(names)
		if len(names) > MaxDocNeighbors {
			names = names[:MaxDocNeighbors]
		}
		fmt.Fprintf(&b, "%s: %s\n", kind, strings.Join(names, ", "))
	}
	return b.String()
}

// Fingerprint hashes the document stream of g. Two builds over the same
// chunks produce the same fingerprint. A nil graph hashes to 0.
func Fingerprint(g *CodeGraph) uint64 {
	if g == nil {
		return 0
	}
	h := xxh3.New()
	for _, d := range g.Documents() {
		_, _ = h.WriteString(d.Text)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
