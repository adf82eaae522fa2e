// Package indexer rebuilds the searchable index and the code graph from a
// set of chunks.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, graph.NewHandle(), indexer.Config{})
//	stats, err := idx.Rebuild(ctx, chunks)
//
// # Rebuild Pipeline
//
// A rebuild runs in this order:
//
//  1. Validate every chunk
//  2. Embed chunk text in batches (parallel, bounded by Config.Workers)
//  3. Build the code graph
//  4. Persist chunks, embeddings and index state in one transaction
//  5. Publish the graph as the next generation
//
// A failure at any step leaves the store and the published generation as
// they were. Readers never observe a half-built graph.
//
// # Restart
//
// RebuildFromStore rebuilds the graph from persisted chunks and publishes
// it under the persisted generation number, so a restarted server reports
// the same generation as before.
//
// # Concurrency
//
// One rebuild runs at a time. A second caller gets ErrRebuildInProgress
// instead of queueing. MarkStale flags the published generation as out of
// date until the next successful rebuild.
package indexer
