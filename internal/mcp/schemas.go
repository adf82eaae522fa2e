package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexChunksTool returns the tool definition for index_chunks
func indexChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_chunks",
		Description: "Rebuild the search index and code graph from a JSONL file of chunk records",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSONL file with one chunk record per line",
				},
				"root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute project root; records without content are read from files under it",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed code with natural language or identifier queries and attach related code from the graph",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"queries": map[string]interface{}{
					"type":        "array",
					"description": "Several queries answered as one batch; results keep input order",
					"items":       map[string]interface{}{"type": "string"},
					"maxItems":    MaxQueries,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results per query (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Graph expansion: direct (1 hop), extended (2), deep (3) or custom:N",
					"default":     "extended",
				},
			},
		},
	}
}

// graphStatsTool returns the tool definition for graph_stats
func graphStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "graph_stats",
		Description: "Report code graph size, index freshness and storage health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// explainSymbolTool returns the tool definition for explain_symbol
func explainSymbolTool() mcp.Tool {
	return mcp.Tool{
		Name:        "explain_symbol",
		Description: "Show the callers, callees, tests and transitive dependents of one symbol in the code graph",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol": map[string]interface{}{
					"type":        "string",
					"description": "Symbol name as it appears in chunk records",
				},
				"chunk_id": map[string]interface{}{
					"type":        "string",
					"description": "Chunk id, used when symbol is absent or unknown",
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Hops followed when collecting dependents (1-5)",
					"default":     DefaultUsageDepth,
					"minimum":     1,
					"maximum":     MaxUsageDepth,
				},
			},
		},
	}
}
