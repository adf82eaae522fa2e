package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dshills/gocontext-graph/internal/assembler"
	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/fusion"
	"github.com/dshills/gocontext-graph/internal/indexer"
	"github.com/dshills/gocontext-graph/internal/searcher"
)

// Environment variables
const (
	EnvDBPath            = "GOCONTEXT_DB_PATH"
	EnvEmbeddingProvider = "GOCONTEXT_EMBEDDING_PROVIDER"
	EnvRRFK              = "GOCONTEXT_RRF_K"
	EnvSemanticWeight    = "GOCONTEXT_SEMANTIC_WEIGHT"
	EnvLexicalWeight     = "GOCONTEXT_LEXICAL_WEIGHT"
	EnvStrategy          = "GOCONTEXT_STRATEGY"
	EnvMaxRelated        = "GOCONTEXT_MAX_RELATED"
	EnvWorkers           = "GOCONTEXT_WORKERS"
	EnvCacheSize         = "GOCONTEXT_CACHE_SIZE"
	EnvLogLevel          = "GOCONTEXT_LOG_LEVEL"
)

// DefaultDBFile is the database location under the user's home directory
const DefaultDBFile = ".gocontext/graph.db"

// ErrInvalidConfig is returned for values that fail to parse or validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process configuration
type Config struct {
	DBPath   string
	LogLevel slog.Level

	Embedding EmbeddingConfig
	Search    SearchConfig
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider     string
	JinaAPIKey   string
	OpenAIAPIKey string
	CacheSize    int
}

// SearchConfig tunes ranking and enrichment
type SearchConfig struct {
	K              float64
	SemanticWeight float64
	LexicalWeight  float64
	Strategy       assembler.Strategy
	MaxRelated     int
	Workers        int
	CacheSize      int
}

// Load reads an optional .env file into the environment and then parses
// the environment. A missing .env is ignored.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.Getenv)
}

// LoadFile parses an env file. Variables already set in the process
// environment take precedence over the file.
func LoadFile(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return FromLookup(func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	})
}

// FromLookup builds a Config from getenv, applying defaults for unset
// variables
func FromLookup(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }
	p := parser{get: get}

	cfg := &Config{
		DBPath: firstNonEmpty(get(EnvDBPath), defaultDBPath()),
		Embedding: EmbeddingConfig{
			Provider:     strings.ToLower(get(EnvEmbeddingProvider)),
			JinaAPIKey:   get(embedder.EnvJinaAPIKey),
			OpenAIAPIKey: get(embedder.EnvOpenAIAPIKey),
		},
		Search: SearchConfig{
			K:              p.float(EnvRRFK, fusion.DefaultK),
			SemanticWeight: p.float(EnvSemanticWeight, fusion.DefaultSemanticWeight),
			LexicalWeight:  p.float(EnvLexicalWeight, fusion.DefaultLexicalWeight),
			MaxRelated:     p.int(EnvMaxRelated, assembler.DefaultMaxRelated),
			Workers:        p.int(EnvWorkers, runtime.NumCPU()),
			CacheSize:      p.int(EnvCacheSize, searcher.DefaultCacheSize),
		},
	}
	cfg.Embedding.CacheSize = cfg.Search.CacheSize

	strategy, err := assembler.ParseStrategy(firstNonEmpty(get(EnvStrategy), "extended"))
	if err != nil {
		p.fail(EnvStrategy, err)
	}
	cfg.Search.Strategy = strategy

	if err := cfg.LogLevel.UnmarshalText([]byte(firstNonEmpty(get(EnvLogLevel), "info"))); err != nil {
		p.fail(EnvLogLevel, err)
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, key, msg string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s %s", ErrInvalidConfig, key, msg))
		}
	}

	switch c.Embedding.Provider {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal:
	default:
		check(false, EnvEmbeddingProvider, fmt.Sprintf("must be jina, openai or local, got %q", c.Embedding.Provider))
	}
	check(c.DBPath != "", EnvDBPath, "must not be empty")
	check(c.Search.K > 0, EnvRRFK, "must be positive")
	check(c.Search.SemanticWeight > 0, EnvSemanticWeight, "must be positive")
	check(c.Search.LexicalWeight > 0, EnvLexicalWeight, "must be positive")
	check(c.Search.MaxRelated > 0, EnvMaxRelated, "must be positive")
	check(c.Search.Workers > 0, EnvWorkers, "must be positive")
	check(c.Search.CacheSize > 0, EnvCacheSize, "must be positive")
	return errors.Join(errs...)
}

// EmbedderConfig maps onto embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:     c.Embedding.Provider,
		JinaAPIKey:   c.Embedding.JinaAPIKey,
		OpenAIAPIKey: c.Embedding.OpenAIAPIKey,
		CacheSize:    c.Embedding.CacheSize,
	}
}

// SearcherConfig maps onto searcher.New
func (c *Config) SearcherConfig(logger *slog.Logger) searcher.Config {
	return searcher.Config{
		K:              c.Search.K,
		SemanticWeight: c.Search.SemanticWeight,
		LexicalWeight:  c.Search.LexicalWeight,
		Workers:        c.Search.Workers,
		CacheSize:      c.Search.CacheSize,
		Assembler:      assembler.Config{MaxRelated: c.Search.MaxRelated},
		Logger:         logger,
	}
}

// IndexerConfig maps onto indexer.New
func (c *Config) IndexerConfig(logger *slog.Logger) indexer.Config {
	return indexer.Config{
		Workers: c.Search.Workers,
		Logger:  logger,
	}
}

// parser accumulates the first error per variable while filling defaults
type parser struct {
	get func(string) string
	err error
}

func (p *parser) fail(key string, err error) {
	p.err = errors.Join(p.err, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	raw := p.get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDBFile
	}
	return filepath.Join(home, DefaultDBFile)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
