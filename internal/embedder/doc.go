// Package embedder generates vector embeddings for chunks and queries.
//
// Three providers are available. Jina AI and OpenAI are remote and share
// one HTTP implementation. The local provider needs no network: it hashes
// identifier tokens (split at camelCase and underscores) into 384 signed
// buckets, which is deterministic and good enough to rank chunks that
// share vocabulary with a query.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "func ParseFile(path string) error { ... }",
//	})
//
// # Batch Processing
//
// GenerateBatch accepts up to MaxBatchSize texts and returns embeddings in
// input order. EmbedAll splits larger inputs and fails as a whole if any
// call fails:
//
//	vectors, err := embedder.EmbedAll(ctx, emb, texts)
//
// # Provider Selection
//
// New picks a provider from Config:
//
//  1. Config.Provider when set
//  2. Else Jina when JinaAPIKey is set
//  3. Else OpenAI when OpenAIAPIKey is set
//  4. Else the local provider
//
// Config.Endpoint points a remote provider at any server speaking the same
// JSON protocol.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by SHA-256 of model and text. The
// cache stores and returns copies, so callers may modify vectors freely.
// Remote providers only send cache misses to the API.
//
// # Error Handling
//
// Remote calls are retried with exponential backoff (3 attempts, 100ms
// doubling up to 5s). Exhausted retries return ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // the remote API is unavailable
//	}
//
// Context cancellation stops retries immediately and returns the context
// error.
package embedder
