package embedder

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
)

// LocalModel names the feature-hashing embedding scheme
const LocalModel = "hashed-tokens-v1"

// LocalProvider embeds text offline by hashing identifier tokens into a
// fixed number of signed buckets. Texts sharing vocabulary land close
// together, so it serves as a deterministic semantic source without a model.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     LocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Check cache
	hash := ComputeHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	// Cache the result
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// embed accumulates every token and every adjacent token pair into a
// bucket chosen by its hash, with the sign taken from another hash bit
func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := Tokenize(text)
	add := func(feature string, weight float32) {
		h := xxh3.HashString(feature)
		bucket := int(h % uint64(l.dimension))
		if h&(1<<63) != 0 {
			weight = -weight
		}
		vector[bucket] += weight
	}
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// Tokenize lowercases text and splits it into words, breaking identifiers
// at underscores and camelCase boundaries. "parseHTTPRequest" yields
// parse, http, request.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, w := range words {
		for _, part := range splitCamel(w) {
			tokens = append(tokens, strings.ToLower(part))
		}
	}
	return tokens
}

func splitCamel(word string) []string {
	runes := []rune(word)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		lowerToUpper := unicode.IsLower(prev) && unicode.IsUpper(cur)
		// The last capital of an acronym starts the next word: HTTPRequest
		acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(cur) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1])
		digitEdge := unicode.IsDigit(prev) != unicode.IsDigit(cur)
		if lowerToUpper || acronymEnd || digitEdge {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

// CacheStats reports the embedding cache, if one is configured
func (l *LocalProvider) CacheStats() (CacheStats, bool) {
	return l.cache.Stats(), l.cache != nil
}
