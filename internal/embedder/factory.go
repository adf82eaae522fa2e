package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	// Provider is jina, openai or local. Empty selects by available keys.
	Provider     string
	JinaAPIKey   string
	OpenAIAPIKey string

	// Endpoint overrides the provider's default URL
	Endpoint  string
	CacheSize int
}

// New creates an embedder from configuration.
// Priority:
// 1. cfg.Provider (jina, openai, local)
// 2. Available API keys: Jina first, then OpenAI
// 3. Local provider when no key is set
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch DetectProvider(cfg) {
	case ProviderJina:
		return newRemote(cfg, ProviderJina, cache)
	case ProviderOpenAI:
		return newRemote(cfg, ProviderOpenAI, cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

func newRemote(cfg Config, provider string, cache *Cache) (Embedder, error) {
	var p *HTTPProvider
	var err error
	if provider == ProviderJina {
		p, err = NewJinaProvider(cfg.JinaAPIKey, cache)
	} else {
		p, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cache)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		p.cfg.Endpoint = cfg.Endpoint
	}
	return p, nil
}

// DetectProvider returns the provider New would use for cfg
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(strings.TrimSpace(cfg.Provider))
	}
	if cfg.JinaAPIKey != "" {
		return ProviderJina
	}
	if cfg.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
