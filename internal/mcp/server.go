package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gocontext-graph/internal/assembler"
	"github.com/dshills/gocontext-graph/internal/chunker"
	"github.com/dshills/gocontext-graph/internal/config"
	"github.com/dshills/gocontext-graph/internal/embedder"
	"github.com/dshills/gocontext-graph/internal/graph"
	"github.com/dshills/gocontext-graph/internal/indexer"
	"github.com/dshills/gocontext-graph/internal/searcher"
	"github.com/dshills/gocontext-graph/internal/storage"
	"github.com/dshills/gocontext-graph/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "gocontext-graph"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	graphs   *graph.Handle
	strategy assembler.Strategy
	logger   *slog.Logger
}

// Components are the collaborators a Server exposes as tools
type Components struct {
	Storage  storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher

	// Strategy is used when a search request names none
	Strategy assembler.Strategy
	Logger   *slog.Logger
}

// NewServer wires storage, the embedder, the indexer and the searcher from
// cfg and restores the last persisted generation, if any
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Shared by indexer and searcher so both see the same cache
	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	graphs := graph.NewHandle()
	srch := searcher.New(searcher.Dependencies{
		Lexical:  store,
		Vectors:  store,
		Embedder: emb,
		Graphs:   graphs,
		Chunks:   store,
	}, cfg.SearcherConfig(logger))

	icfg := cfg.IndexerConfig(logger)
	icfg.OnPublish = func(*graph.Snapshot) { srch.InvalidateCache() }
	idx := indexer.New(store, emb, graphs, icfg)

	s := New(Components{
		Storage:  store,
		Embedder: emb,
		Indexer:  idx,
		Searcher: srch,
		Strategy: cfg.Search.Strategy,
		Logger:   logger,
	})

	if _, err := idx.RebuildFromStore(ctx); err != nil && !errors.Is(err, types.ErrGraphNotBuilt) {
		_ = s.Close()
		return nil, fmt.Errorf("failed to restore index: %w", err)
	}

	logger.Info("mcp.server_ready",
		slog.String("db", cfg.DBPath),
		slog.String("embedder", emb.Provider()),
		slog.String("model", emb.Model()),
		slog.String("storage", storage.BuildMode),
		slog.Uint64("generation", idx.Freshness().Generation))
	return s, nil
}

// New creates a Server over already constructed components
func New(c Components) *Server {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Strategy.Validate() != nil {
		c.Strategy = assembler.Extended()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:  c.Storage,
		embedder: c.Embedder,
		indexer:  c.Indexer,
		searcher: c.Searcher,
		graphs:   c.Indexer.Graphs(),
		strategy: c.Strategy,
		logger:   c.Logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the embedder and storage
func (s *Server) Close() error {
	var errs []error
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.storage != nil {
		errs = append(errs, s.storage.Close())
	}
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexChunksTool(), s.handleIndexChunks)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(graphStatsTool(), s.handleGraphStats)
	s.mcp.AddTool(explainSymbolTool(), s.handleExplainSymbol)
}

func (s *Server) newChunker(root string) *chunker.Chunker {
	return chunker.New(chunker.WithRoot(root), chunker.WithLogger(s.logger))
}
