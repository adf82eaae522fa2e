package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gocontext-graph/internal/graph"
)

// Depth bounds for explain_symbol usages
const (
	DefaultUsageDepth = 2
	MaxUsageDepth     = 5
)

// Entry points and hotspots listed by graph_stats
const statsListLimit = 10

type symbolRef struct {
	Name     string `json:"name"`
	ChunkID  string `json:"chunk_id"`
	Kind     string `json:"kind,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Distance int    `json:"distance,omitempty"`
	Via      string `json:"via,omitempty"`
}

// handleExplainSymbol handles the explain_symbol tool invocation
func (s *Server) handleExplainSymbol(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	symbol := strings.TrimSpace(getStringDefault(args, "symbol", ""))
	chunkID := strings.TrimSpace(getStringDefault(args, "chunk_id", ""))
	if symbol == "" && chunkID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "symbol or chunk_id is required", map[string]interface{}{
			"param": "symbol",
		})
	}

	depth := getIntDefault(args, "depth", DefaultUsageDepth)
	if depth < 1 || depth > MaxUsageDepth {
		return nil, newMCPError(ErrorCodeInvalidParams, "depth must be between 1 and 5", map[string]interface{}{
			"param": "depth",
			"value": depth,
		})
	}

	snap, err := s.graphs.Require()
	if err != nil {
		return nil, newMCPError(ErrorCodeGraphNotBuilt, "index not built", map[string]interface{}{
			"reason": "run index_chunks first",
		})
	}
	g := snap.Graph

	var id graph.NodeID
	var found bool
	if symbol != "" {
		id, found = g.Lookup(symbol)
	}
	if !found && chunkID != "" {
		id, found = g.NodeForChunk(chunkID)
	}
	if !found {
		return nil, newMCPError(ErrorCodeSymbolNotFound, "symbol not found", map[string]interface{}{
			"symbol":   symbol,
			"chunk_id": chunkID,
		})
	}
	node, _ := g.Node(id)

	usages := make([]symbolRef, 0)
	for _, r := range g.TransitiveUsages(id, depth) {
		ref := refFor(g, r.Node)
		ref.Distance, ref.Via = r.Distance, r.Kind.String()
		usages = append(usages, ref)
	}

	response := map[string]interface{}{
		"generation": snap.Generation,
		"symbol":     refFor(g, id),
		"callers":    refsFor(g, g.Callers(id)),
		"callees":    refsFor(g, g.Callees(id)),
		"tests":      refsFor(g, g.RelatedTests(id)),
		"usages":     usages,
		"depth":      depth,
	}
	if c, ok := snap.Chunk(node.ChunkID); ok {
		response["start_line"], response["end_line"] = c.StartLine, c.EndLine
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func refFor(g *graph.CodeGraph, id graph.NodeID) symbolRef {
	n, _ := g.Node(id)
	return symbolRef{Name: n.Name, ChunkID: n.ChunkID, Kind: string(n.Kind), FilePath: n.FilePath}
}

func refsFor(g *graph.CodeGraph, ids []graph.NodeID) []symbolRef {
	out := make([]symbolRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, refFor(g, id))
	}
	return out
}

// graphShape lists where execution enters the graph and what it leans on most
func graphShape(g *graph.CodeGraph) (entryPoints []symbolRef, hotspots []map[string]interface{}) {
	entryPoints = make([]symbolRef, 0)
	for i, n := range g.EntryPoints() {
		if i == statsListLimit {
			break
		}
		entryPoints = append(entryPoints, refFor(g, n.ID))
	}
	hotspots = make([]map[string]interface{}, 0)
	for _, h := range g.Hotspots(statsListLimit) {
		hotspots = append(hotspots, map[string]interface{}{
			"name":      h.Node.Name,
			"chunk_id":  h.Node.ChunkID,
			"file_path": h.Node.FilePath,
			"in_degree": h.InDegree,
		})
	}
	return entryPoints, hotspots
}
