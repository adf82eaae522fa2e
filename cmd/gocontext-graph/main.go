package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/gocontext-graph/internal/config"
	"github.com/dshills/gocontext-graph/internal/mcp"
	"github.com/dshills/gocontext-graph/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("GoContext Graph Server\n")
		fmt.Printf("Version: %s (%s)\n", version, mcp.ServerVersion)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gocontext-graph: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout is reserved for the MCP protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("server.starting",
		slog.String("version", version),
		slog.String("build_mode", storage.BuildMode),
		slog.String("driver", storage.DriverName),
		slog.Bool("vector_extension", storage.VectorExtensionAvailable))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := mcp.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server.stopped")
	return nil
}
