package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/gocontext-graph/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Chunk operations

// replaceChunksWithQuerier deletes every stored chunk (cascading to
// embeddings) and inserts chunks in order
func (s *SQLiteStorage) replaceChunksWithQuerier(ctx context.Context, q querier, chunks []types.Chunk) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	query := `
		INSERT INTO chunks (id, file_path, start_line, end_line, symbol, kind, language,
		                    content, docstring, imports, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for i := range chunks {
		c := &chunks[i]
		hash := sha256.Sum256([]byte(c.Content))
		_, err := q.ExecContext(ctx, query,
			c.ID, c.FilePath, c.StartLine, c.EndLine, nullString(c.Symbol), string(c.Kind), string(c.Language),
			c.Content, nullString(c.Docstring), nullString(strings.Join(c.Imports, "\n")), hash[:], now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("chunk %s: %w", c.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// ReplaceChunks swaps the stored chunk set for chunks in one transaction
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, chunks []types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.replaceChunksWithQuerier(ctx, tx, chunks); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const chunkColumns = `id, file_path, start_line, end_line, symbol, kind, language, content, docstring, imports`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var c types.Chunk
	var symbol, docstring, imports sql.NullString
	var kind, language string
	err := row.Scan(&c.ID, &c.FilePath, &c.StartLine, &c.EndLine, &symbol, &kind, &language,
		&c.Content, &docstring, &imports)
	if err != nil {
		return nil, err
	}
	c.Symbol = symbol.String
	c.Kind = types.ChunkKind(kind)
	c.Language = types.Language(language)
	c.Docstring = docstring.String
	if imports.String != "" {
		c.Imports = strings.Split(imports.String, "\n")
	}
	return &c, nil
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`
	c, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// listChunksWithQuerier returns chunks in insertion order
func (s *SQLiteStorage) listChunksWithQuerier(ctx context.Context, q querier) ([]types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks ORDER BY seq`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]types.Chunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier())
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var e Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&e.ChunkID, &e.Vector, &e.Dimension, &e.Provider, &e.Model, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), queryVector, limit)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit)
}

// Index state operations

func (s *SQLiteStorage) saveIndexStateWithQuerier(ctx context.Context, q querier, state *IndexState) error {
	query := `
		INSERT INTO index_state (id, generation, built_at, chunk_count, node_count, edge_count, fingerprint, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation = excluded.generation,
			built_at = excluded.built_at,
			chunk_count = excluded.chunk_count,
			node_count = excluded.node_count,
			edge_count = excluded.edge_count,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	// Fingerprints use the full uint64 range, which SQLite integers cannot hold
	_, err := q.ExecContext(ctx, query,
		int64(state.Generation), state.BuiltAt.UTC(), state.ChunkCount, state.NodeCount, state.EdgeCount,
		strconv.FormatUint(state.Fingerprint, 16), now)
	if err != nil {
		return fmt.Errorf("failed to save index state: %w", err)
	}
	state.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) SaveIndexState(ctx context.Context, state *IndexState) error {
	return s.saveIndexStateWithQuerier(ctx, s.querier(), state)
}

func (s *SQLiteStorage) getIndexStateWithQuerier(ctx context.Context, q querier) (*IndexState, error) {
	query := `
		SELECT generation, built_at, chunk_count, node_count, edge_count, fingerprint, updated_at
		FROM index_state
		WHERE id = 1
	`
	var st IndexState
	var generation int64
	var fingerprint string
	err := q.QueryRowContext(ctx, query).Scan(
		&generation, &st.BuiltAt, &st.ChunkCount, &st.NodeCount, &st.EdgeCount, &fingerprint, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Generation = uint64(generation)
	st.Fingerprint, err = strconv.ParseUint(fingerprint, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored fingerprint %q: %w", fingerprint, err)
	}
	return &st, nil
}

func (s *SQLiteStorage) GetIndexState(ctx context.Context) (*IndexState, error) {
	return s.getIndexStateWithQuerier(ctx, s.querier())
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunksCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	status.Health.DatabaseAccessible = true

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&status.EmbeddingsCount); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	status.Health.EmbeddingsAvailable = status.EmbeddingsCount > 0

	var ftsRows int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_fts").Scan(&ftsRows); err == nil {
		status.Health.FTSIndexesBuilt = ftsRows > 0
	}

	state, err := s.getIndexStateWithQuerier(ctx, q)
	switch {
	case err == nil:
		status.IndexState = state
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction wrappers

func (t *sqliteTx) ReplaceChunks(ctx context.Context, chunks []types.Chunk) error {
	return t.storage.replaceChunksWithQuerier(ctx, t.querier(), chunks)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunks(ctx context.Context) ([]types.Chunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit)
}

func (t *sqliteTx) SaveIndexState(ctx context.Context, state *IndexState) error {
	return t.storage.saveIndexStateWithQuerier(ctx, t.querier(), state)
}

func (t *sqliteTx) GetIndexState(ctx context.Context) (*IndexState, error) {
	return t.storage.getIndexStateWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close transaction, use Commit or Rollback")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// Helpers

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return isConstraintError(err) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
