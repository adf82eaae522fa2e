// Package searcher implements hybrid code search over a lexical index, a
// vector index and the current code graph.
//
// Every query retrieves two candidate lists in parallel:
//   - Semantic: the query embedding ranked against stored chunk vectors
//   - Lexical: BM25 full-text matches from SQLite FTS5
//
// The lists are merged with weighted Reciprocal Rank Fusion (see package
// fusion). The semantic list is always passed first, so Ranks[0] is the
// semantic rank and Ranks[1] the lexical rank.
//
// # Basic Usage
//
//	s := searcher.New(searcher.Dependencies{
//	    Lexical:  store,
//	    Vectors:  store,
//	    Embedder: emb,
//	    Graphs:   handle,
//	    Chunks:   store,
//	}, searcher.Config{})
//
//	hits, err := s.Search(ctx, "parse config file", 10)
//
//	enriched, err := s.SearchWithContext(ctx, "parse config file", 10, assembler.Extended())
//
// # Degradation
//
// A failing or unconfigured source is logged and the query is answered from
// the other one. When both fail the query returns types.ErrAllSourcesFailed.
// A failed query embedding is not degraded: it returns
// types.ErrEmbeddingFailure.
//
// # Batches
//
// SearchBatch embeds all queries with one provider pass and ranks them on a
// bounded worker pool. Results keep input order and duplicates. An embedding
// failure fails the batch; a query whose sources both fail carries its error
// in its own BatchItem.
//
// # Caching
//
// Single-query rankings are cached in an LRU keyed by query, limit and graph
// generation, so publishing a new generation bypasses stale entries.
// InvalidateCache drops everything.
package searcher
