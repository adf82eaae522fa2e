package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gocontext-graph/internal/assembler"
	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/internal/indexer"
	"github.com/dshills/gocontext-graph/internal/searcher"
	"github.com/dshills/gocontext-graph/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeChunksNotFound    = -32001 // Chunk file missing or unreadable
	ErrorCodeRebuildInProgress = -32002 // Another rebuild is already running
	ErrorCodeGraphNotBuilt     = -32003 // No generation has been built
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
	ErrorCodeSymbolNotFound    = -32005 // No node for the named symbol
)

// MaxQueries caps the queries of one search_code call
const MaxQueries = 32

// handleIndexChunks handles the index_chunks tool invocation
func (s *Server) handleIndexChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validateFile(path); err != nil {
		return nil, newMCPError(ErrorCodeChunksNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	root := getStringDefault(args, "root", "")
	if root != "" && !filepath.IsAbs(root) {
		return nil, newMCPError(ErrorCodeInvalidParams, "root must be absolute", map[string]interface{}{
			"param": "root",
			"value": root,
		})
	}

	if s.indexer.Rebuilding() {
		return nil, rebuildInProgress()
	}

	chunks, err := s.newChunker(root).LoadFile(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "failed to load chunks", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats, err := s.indexer.Rebuild(ctx, chunks)
	if errors.Is(err, indexer.ErrRebuildInProgress) {
		return nil, rebuildInProgress()
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":          true,
		"chunks":           stats.Chunks,
		"embedded":         stats.Embedded,
		"nodes":            stats.Nodes,
		"edges":            stats.Edges,
		"unresolved":       stats.Unresolved,
		"estimated_tokens": stats.EstimatedTokens,
		"generation":       stats.Generation,
		"fingerprint":      fmt.Sprintf("%016x", stats.Fingerprint),
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if stats.ParseFailures > 0 || stats.Unsupported > 0 {
		response["parse_failures"] = stats.ParseFailures
		response["unsupported_language"] = stats.Unsupported
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation. Either query or
// queries is required; queries runs as one batch.
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	queries, batch, err := parseQueries(args)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	strategy := s.strategy
	if raw := getStringDefault(args, "strategy", ""); raw != "" {
		strategy, err = assembler.ParseStrategy(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{
				"param":   "strategy",
				"value":   raw,
				"allowed": []string{"direct", "extended", "deep", "custom:N"},
			})
		}
	}

	// One snapshot answers the whole request, including the reported generation
	snap := s.searcher.Snapshot()
	if snap == nil || snap.Graph == nil {
		return nil, newMCPError(ErrorCodeGraphNotBuilt, "index not built", map[string]interface{}{
			"reason": "run index_chunks first",
		})
	}

	var items []types.BatchItem[[]types.EnrichedResult]
	if batch {
		items, err = s.searcher.SearchBatchWithContextAt(ctx, snap, queries, limit, strategy)
	} else {
		var results []types.EnrichedResult
		results, err = s.searcher.SearchWithContextAt(ctx, snap, queries[0], limit, strategy)
		items = []types.BatchItem[[]types.EnrichedResult]{{Results: results}}
	}
	if err != nil {
		return nil, searchError(err)
	}

	out := make([]queryResult, len(items))
	for i, item := range items {
		out[i] = buildQueryResult(snap, queries[i], item)
	}
	response := map[string]interface{}{
		"generation": snap.Generation,
		"stale":      s.indexer.Freshness().Stale,
		"strategy":   strategy.String(),
		"results":    out,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGraphStats handles the graph_stats tool invocation
func (s *Server) handleGraphStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, edges := s.searcher.GraphStats()
	byKind := make(map[string]int)
	entryPoints, hotspots := []symbolRef{}, []map[string]interface{}{}
	if snap := s.graphs.Load(); snap != nil && snap.Graph != nil {
		for kind, n := range snap.Graph.Stats().ByKind {
			byKind[kind.String()] = n
		}
		entryPoints, hotspots = graphShape(snap.Graph)
	}

	f := s.indexer.Freshness()
	freshness := map[string]interface{}{
		"built":      f.Built(),
		"generation": f.Generation,
		"stale":      f.Stale,
		"rebuilding": s.indexer.Rebuilding(),
	}
	if started := s.indexer.RebuildStarted(); !started.IsZero() {
		freshness["rebuild_started_at"] = started.UTC().Format(time.RFC3339)
	}
	if f.Built() {
		freshness["built_at"] = f.BuiltAt.UTC().Format(time.RFC3339)
		freshness["fingerprint"] = fmt.Sprintf("%016x", f.Fingerprint)
	}

	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"nodes":     nodes,
		"edges":     edges,
		"by_kind":      byKind,
		"entry_points": entryPoints,
		"hotspots":     hotspots,
		"freshness":    freshness,
		"storage": map[string]interface{}{
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}
	if r, ok := s.embedder.(embedder.CacheReporter); ok {
		if cs, enabled := r.CacheStats(); enabled {
			response["embedding_cache"] = map[string]interface{}{
				"size":   cs.Size,
				"hits":   cs.Hits,
				"misses": cs.Misses,
			}
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

type queryResult struct {
	Query string      `json:"query"`
	Error string      `json:"error,omitempty"`
	Hits  []hitResult `json:"hits"`
}

type hitResult struct {
	ChunkID    string          `json:"chunk_id"`
	FilePath   string          `json:"file_path,omitempty"`
	StartLine  int             `json:"start_line,omitempty"`
	EndLine    int             `json:"end_line,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	Score      float64         `json:"score"`
	Semantic   int             `json:"semantic_rank,omitempty"`
	Lexical    int             `json:"lexical_rank,omitempty"`
	TotalLines int             `json:"total_lines"`
	Related    []relatedResult `json:"related,omitempty"`
}

type relatedResult struct {
	ChunkID   string  `json:"chunk_id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Distance  int     `json:"distance"`
	Relevance float64 `json:"relevance"`
	LineCount int     `json:"line_count"`
}

func buildQueryResult(snap *graph.Snapshot, query string, item types.BatchItem[[]types.EnrichedResult]) queryResult {
	qr := queryResult{Query: query, Hits: []hitResult{}}
	if item.Err != nil {
		qr.Error = item.Err.Error()
		return qr
	}

	for _, r := range item.Results {
		hit := hitResult{
			ChunkID:    r.Primary.ChunkID,
			Score:      r.Primary.Score,
			Semantic:   r.Primary.Rank(searcher.SourceSemantic),
			Lexical:    r.Primary.Rank(searcher.SourceLexical),
			TotalLines: r.TotalLines,
		}
		if c, ok := snap.Chunk(r.Primary.ChunkID); ok {
			hit.FilePath, hit.StartLine, hit.EndLine, hit.Symbol = c.FilePath, c.StartLine, c.EndLine, c.Symbol
		}
		for _, rel := range r.Related {
			hit.Related = append(hit.Related, relatedResult{
				ChunkID:   rel.ChunkID,
				Name:      rel.Name,
				Kind:      rel.Kind.String(),
				Distance:  rel.Distance,
				Relevance: rel.Relevance,
				LineCount: rel.LineCount,
			})
		}
		qr.Hits = append(qr.Hits, hit)
	}
	return qr
}

// parseQueries reads query or queries. The bool reports batch mode.
func parseQueries(args map[string]interface{}) ([]string, bool, error) {
	if raw, ok := args["queries"]; ok {
		list, ok := raw.([]interface{})
		if !ok || len(list) == 0 {
			return nil, false, newMCPError(ErrorCodeInvalidParams, "queries must be a non-empty array of strings", map[string]interface{}{
				"param": "queries",
			})
		}
		if len(list) > MaxQueries {
			return nil, false, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("at most %d queries allowed", MaxQueries), map[string]interface{}{
				"param": "queries",
				"value": len(list),
			})
		}
		queries := make([]string, len(list))
		for i, v := range list {
			q, ok := v.(string)
			if !ok || strings.TrimSpace(q) == "" {
				return nil, false, newMCPError(ErrorCodeEmptyQuery, "queries cannot contain empty entries", map[string]interface{}{
					"param": "queries",
					"index": i,
				})
			}
			queries[i] = q
		}
		return queries, true, nil
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, false, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return []string{query}, false, nil
}

// searchError maps search failures to protocol errors
func searchError(err error) error {
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	case errors.Is(err, types.ErrInvalidStrategyDepth):
		return newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, types.ErrGraphNotBuilt):
		return newMCPError(ErrorCodeGraphNotBuilt, "index not built", nil)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{"error": err.Error()})
	}
}

func rebuildInProgress() error {
	return newMCPError(ErrorCodeRebuildInProgress, "a rebuild is already in progress", nil)
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateFile checks that path is an absolute, readable regular file
func validateFile(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrNotFile
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotFile         = errors.New("path is a directory")
)
