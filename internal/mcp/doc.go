// Package mcp implements the Model Context Protocol (MCP) server for
// gocontext-graph.
//
// The server exposes four tools over stdio:
//   - index_chunks: Rebuild the index and code graph from a JSONL chunk file
//   - search_code: Hybrid search with graph context, for one query or a batch
//   - graph_stats: Graph size, freshness and storage health
//   - explain_symbol: Callers, callees, tests and dependents of one symbol
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Tool: index_chunks
//
//	Request:
//	{
//	  "path": "/abs/path/chunks.jsonl",
//	  "root": "/abs/path/project"
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "chunks": 1240,
//	  "embedded": 1240,
//	  "nodes": 1240,
//	  "edges": 3810,
//	  "unresolved": 412,
//	  "generation": 3,
//	  "fingerprint": "9f1c2a7be04d55e1",
//	  "duration_ms": 5230
//	}
//
// Each line of the file is one chunk record. Records without content are
// read from root when it is given. A rebuild replaces every chunk; the
// previous generation keeps serving until the new one is published.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "query": "validate user password",
//	  "limit": 10,
//	  "strategy": "extended"
//	}
//
// "queries" takes an array instead of "query" and answers every entry in
// one batch. Results come back in input order, one entry per query.
//
//	Response:
//	{
//	  "generation": 3,
//	  "stale": false,
//	  "strategy": "extended",
//	  "results": [{
//	    "query": "validate user password",
//	    "hits": [{
//	      "chunk_id": "auth/login.go:10-42",
//	      "file_path": "auth/login.go",
//	      "symbol": "Login",
//	      "score": 0.0161,
//	      "semantic_rank": 1,
//	      "lexical_rank": 2,
//	      "total_lines": 61,
//	      "related": [{"chunk_id": "...", "kind": "calls", "distance": 1, ...}]
//	    }]
//	  }]
//	}
//
// # Tool: graph_stats
//
// Takes no parameters and reports node and edge counts, edges by kind,
// the published generation and whether the index is stale. It also lists
// up to ten entry points (nodes that call but are never called) and the ten
// nodes with the most incoming edges.
//
// # Tool: explain_symbol
//
//	Request:
//	{
//	  "symbol": "CheckPassword",
//	  "depth": 2
//	}
//
//	Response:
//	{
//	  "generation": 3,
//	  "symbol": {"name": "CheckPassword", "chunk_id": "...", "file_path": "auth/password.go"},
//	  "callers": [{"name": "Login", ...}],
//	  "callees": [],
//	  "tests": [{"name": "TestCheckPassword", ...}],
//	  "usages": [{"name": "Login", "distance": 1, "via": "calls", ...}]
//	}
//
// chunk_id may be given instead of symbol.
//
// # Error Handling
//
// Handlers return MCPError with JSON-RPC codes:
//
//	-32602  Invalid params (limit out of range, unknown strategy)
//	-32603  Internal error
//	-32001  Chunk file missing or unreadable
//	-32002  Rebuild already in progress
//	-32003  Index not built
//	-32004  Empty query
//	-32005  Symbol not found
package mcp
