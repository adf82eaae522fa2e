package types

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrEmptyQuery     = errors.New("query cannot be empty")

	// ErrGraphNotBuilt is reported when a query arrives before any graph build.
	// Callers degrade to unenriched results.
	ErrGraphNotBuilt = errors.New("code graph not built")

	// ErrSymbolUnresolved marks a reference that names no indexed symbol
	ErrSymbolUnresolved = errors.New("symbol unresolved")

	ErrEmbeddingFailure           = errors.New("embedding failed")
	ErrCandidateSourceUnavailable = errors.New("candidate source unavailable")
	ErrInvalidStrategyDepth       = errors.New("strategy depth must be positive")
)

// ErrAllSourcesFailed is returned when every candidate source failed for a
// query. It matches ErrCandidateSourceUnavailable under errors.Is.
var ErrAllSourcesFailed = fmt.Errorf("all candidate sources failed: %w", ErrCandidateSourceUnavailable)
