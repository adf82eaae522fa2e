package graph

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocontext-graph/internal/parser"
	"github.com/dshills/gocontext-graph/pkg/types"
)

// Builder constructs a CodeGraph from a complete chunk set
type Builder struct {
	extractor parser.Extractor
	workers   int
	logger    *slog.Logger
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithExtractor replaces the tree-sitter extractor
func WithExtractor(e parser.Extractor) BuilderOption {
	return func(b *Builder) { b.extractor = e }
}

// WithWorkers bounds the number of chunks extracted concurrently
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger used for build diagnostics
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		extractor: parser.NewRegistry(),
		workers:   runtime.NumCPU(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildStats reports what a build absorbed
type BuildStats struct {
	Chunks        int
	Nodes         int
	Edges         int
	Duplicates    int
	Unsupported   int
	ParseFailures int
	Unresolved    int
	Duration      time.Duration
}

// Build runs the two-pass build. Pass 1 registers a node for every chunk that
// declares a symbol; pass 2 extracts references per chunk and resolves them
// against the pass 1 table. References that resolve to nothing are dropped.
//
// The result does not depend on chunk order. Build only fails when ctx is
// cancelled.
func (b *Builder) Build(ctx context.Context, chunks []types.Chunk) (*CodeGraph, error) {
	g, _, err := b.BuildWithStats(ctx, chunks)
	return g, err
}

// BuildWithStats is Build, also returning build diagnostics
func (b *Builder) BuildWithStats(ctx context.Context, chunks []types.Chunk) (*CodeGraph, *BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{Chunks: len(chunks)}

	sym := newSymbolTable(chunks)
	stats.Duplicates = sym.duplicates
	for _, name := range sym.duplicateNames {
		b.logger.Debug("graph.duplicate_symbol", "name", name)
	}

	var unsupported, parseFailures, unresolved atomic.Int64
	slots := make([][]Edge, len(sym.nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range sym.nodes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n := &sym.nodes[i]
			chunk := sym.chunks[i]

			var refs parser.Refs
			if b.extractor.Supports(chunk.Language) {
				r, err := b.extractor.Extract(chunk.Language, chunk.Content)
				if err != nil {
					parseFailures.Add(1)
					b.logger.Debug("graph.extract_failed", "chunk", chunk.ID, "error", err)
				} else {
					refs = r
				}
			} else {
				unsupported.Add(1)
			}

			edges, missed := sym.edgesFor(n, chunk, refs)
			if missed > 0 {
				unresolved.Add(int64(missed))
				b.logger.Debug("graph.unresolved", "chunk", chunk.ID, "refs", missed, "error", types.ErrSymbolUnresolved)
			}
			slots[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}

	var edges []Edge
	for _, s := range slots {
		edges = append(edges, s...)
	}
	edges = append(edges, sym.containsEdges()...)

	graph := newCodeGraph(sym.nodes, edges)

	stats.Unsupported = int(unsupported.Load())
	stats.ParseFailures = int(parseFailures.Load())
	stats.Unresolved = int(unresolved.Load())
	st := graph.Stats()
	stats.Nodes, stats.Edges = st.Nodes, st.Edges
	stats.Duration = time.Since(start)

	b.logger.Info("graph.built",
		"chunks", stats.Chunks,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"unresolved", stats.Unresolved,
		"elapsed", stats.Duration)

	return graph, stats, nil
}

// symbolTable is the pass 1 index. It is read-only once built.
type symbolTable struct {
	nodes  []Node
	chunks []*types.Chunk // parallel to nodes

	byName   map[string]NodeID
	bySimple map[string][]NodeID

	duplicates     int
	duplicateNames []string
}

func newSymbolTable(chunks []types.Chunk) *symbolTable {
	ordered := make([]*types.Chunk, 0, len(chunks))
	for i := range chunks {
		if chunks[i].HasSymbol() {
			ordered = append(ordered, &chunks[i])
		}
	}
	slices.SortFunc(ordered, func(a, b *types.Chunk) int {
		return cmp.Or(cmp.Compare(symbolOf(a), symbolOf(b)), cmp.Compare(a.ID, b.ID))
	})

	t := &symbolTable{
		byName:   make(map[string]NodeID, len(ordered)),
		bySimple: make(map[string][]NodeID),
	}
	for _, c := range ordered {
		name := symbolOf(c)
		if _, dup := t.byName[name]; dup {
			t.duplicates++
			t.duplicateNames = append(t.duplicateNames, name)
			continue
		}
		id := NodeID(len(t.nodes))
		t.nodes = append(t.nodes, Node{
			ID:       id,
			Name:     name,
			ChunkID:  c.ID,
			Kind:     c.Kind,
			FilePath: c.FilePath,
			Language: c.Language,
		})
		t.chunks = append(t.chunks, c)
		t.byName[name] = id
		simple := simpleName(name)
		t.bySimple[simple] = append(t.bySimple[simple], id)
	}
	return t
}

func symbolOf(c *types.Chunk) string {
	return strings.TrimSpace(c.Symbol)
}

// edgesFor resolves one chunk's references into edges and reports how many
// references could not be resolved.
func (t *symbolTable) edgesFor(n *Node, chunk *types.Chunk, refs parser.Refs) ([]Edge, int) {
	var edges []Edge
	missed := 0
	add := func(to NodeID, ok bool, kind types.Relationship) {
		if !ok {
			missed++
			return
		}
		edges = append(edges, Edge{From: n.ID, To: to, Kind: kind})
	}

	for _, ref := range refs.Calls {
		to, ok := t.resolve(ref, n)
		add(to, ok, types.Calls)
	}
	for _, ref := range refs.Types {
		to, ok := t.resolve(ref, n)
		if ok && to == n.ID {
			continue
		}
		add(to, ok, types.Uses)
	}
	for _, ref := range refs.Extends {
		to, ok := t.resolve(ref, n)
		if ok && to == n.ID {
			continue
		}
		add(to, ok, types.Extends)
	}

	imports := slices.Concat(refs.Imports, chunk.Imports)
	slices.Sort(imports)
	for _, ref := range slices.Compact(imports) {
		to, ok := t.resolveImport(ref)
		if ok && to == n.ID {
			continue
		}
		add(to, ok, types.Imports)
	}

	if subjects := parser.SubjectNames(simpleName(n.Name)); len(subjects) > 0 && t.isTestChunk(chunk) {
		for _, s := range subjects {
			if to, ok := t.resolve(s, n); ok && to != n.ID && !t.isTestNode(to) {
				edges = append(edges, Edge{From: to, To: n.ID, Kind: types.TestedBy})
				break
			}
		}
	}
	return edges, missed
}

func (t *symbolTable) isTestChunk(c *types.Chunk) bool {
	if parser.IsTestFile(c.FilePath) {
		return true
	}
	// Go tests live only in _test files
	return c.Language != types.LangGo && parser.IsTestName(simpleName(symbolOf(c)))
}

func (t *symbolTable) isTestNode(id NodeID) bool {
	return t.isTestChunk(t.chunks[id]) && parser.IsTestName(simpleName(t.nodes[id].Name))
}

// resolve maps a reference written inside from to a node. Lookup order:
// the exact qualified name, the name within each enclosing scope of from,
// then the trailing segment among all symbols, narrowed to from's file or
// scope when ambiguous. Ambiguous references stay unresolved.
func (t *symbolTable) resolve(ref string, from *Node) (NodeID, bool) {
	ref = stripReceiver(strings.TrimSpace(ref))
	if ref == "" {
		return 0, false
	}
	if id, ok := t.byName[ref]; ok {
		return id, true
	}
	_, _, sep := splitQualifier(from.Name)
	if sep == "" {
		sep = "."
	}
	for _, scope := range qualifierChain(from.Name) {
		if id, ok := t.byName[scope+sep+ref]; ok {
			return id, true
		}
	}

	operand, simple, _ := splitQualifier(ref)
	candidates := t.bySimple[simple]
	switch len(candidates) {
	case 0:
		return 0, false
	case 1:
		return candidates[0], true
	}

	if id, ok := t.unique(candidates, func(c Node) bool { return c.FilePath == from.FilePath }); ok {
		return id, true
	}
	fromScope, _, _ := splitQualifier(from.Name)
	if id, ok := t.unique(candidates, func(c Node) bool {
		q, _, _ := splitQualifier(c.Name)
		return q == fromScope
	}); ok {
		return id, true
	}
	if operand != "" {
		if id, ok := t.unique(candidates, func(c Node) bool {
			q, _, _ := splitQualifier(c.Name)
			return simpleName(q) == operand
		}); ok {
			return id, true
		}
	}
	return 0, false
}

// resolveImport maps an import path to a module-level node
func (t *symbolTable) resolveImport(path string) (NodeID, bool) {
	for _, name := range importCandidates(path) {
		if id, ok := t.byName[name]; ok && t.nodes[id].Kind.IsModuleLevel() {
			return id, true
		}
	}
	cands := importCandidates(path)
	if len(cands) == 0 {
		return 0, false
	}
	last := cands[len(cands)-1]
	return t.unique(t.bySimple[last], func(c Node) bool { return c.Kind.IsModuleLevel() })
}

func (t *symbolTable) unique(ids []NodeID, keep func(Node) bool) (NodeID, bool) {
	found, n := NodeID(0), 0
	for _, id := range ids {
		if keep(t.nodes[id]) {
			found = id
			n++
		}
	}
	return found, n == 1
}

// containsEdges derives structural nesting. A node's parent is the nearest
// enclosing scope that is itself a node; failing that, the smallest chunk in
// the same file whose line range strictly encloses it.
func (t *symbolTable) containsEdges() []Edge {
	byFile := make(map[string][]NodeID)
	for _, n := range t.nodes {
		byFile[n.FilePath] = append(byFile[n.FilePath], n.ID)
	}

	var edges []Edge
	for i, n := range t.nodes {
		if parent, ok := t.scopeParent(n); ok {
			edges = append(edges, Edge{From: parent, To: n.ID, Kind: types.Contains})
			continue
		}
		if parent, ok := t.enclosing(NodeID(i), byFile[n.FilePath]); ok {
			edges = append(edges, Edge{From: parent, To: n.ID, Kind: types.Contains})
		}
	}
	return edges
}

func (t *symbolTable) scopeParent(n Node) (NodeID, bool) {
	for _, scope := range qualifierChain(n.Name) {
		if id, ok := t.byName[scope]; ok && id != n.ID {
			return id, true
		}
	}
	return 0, false
}

func (t *symbolTable) enclosing(id NodeID, sameFile []NodeID) (NodeID, bool) {
	inner := t.chunks[id]
	best, bestSpan, found := NodeID(0), 0, false
	for _, other := range sameFile {
		if other == id {
			continue
		}
		outer := t.chunks[other]
		if outer.StartLine > inner.StartLine || outer.EndLine < inner.EndLine {
			continue
		}
		if outer.StartLine == inner.StartLine && outer.EndLine == inner.EndLine {
			continue
		}
		span := outer.EndLine - outer.StartLine
		if !found || span < bestSpan || (span == bestSpan && other < best) {
			best, bestSpan, found = other, span, true
		}
	}
	return best, found
}
