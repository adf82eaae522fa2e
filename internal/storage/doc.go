// Package storage provides SQLite-based persistence for indexed chunks.
//
// The storage layer manages:
//   - Code chunks as delivered by the chunk extractor
//   - Vector embeddings for chunks
//   - The FTS5 full-text index over symbol, content and docstring
//   - The state of the last published graph generation
//
// # Database Schema
//
// Tables:
//   - chunks: chunk metadata and content, keyed by the "path:start:end" ID
//   - embeddings: one vector per chunk, removed with its chunk
//   - chunks_fts: FTS5 index kept in sync by triggers
//   - index_state: single row with generation, counts and fingerprint
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("/home/me/.gocontext/graph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Replace the whole chunk set; embeddings of dropped chunks go with them
//	err = db.ReplaceChunks(ctx, chunks)
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.ReplaceChunks(ctx, chunks); err != nil {
//	    return err
//	}
//	if err := tx.SaveIndexState(ctx, state); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Search
//
// SearchVector ranks stored embeddings by cosine similarity. SearchText runs
// a BM25 query where every word of the input is an alternative, so operators
// and punctuation in user queries are never interpreted. Both order ties by
// chunk ID.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3 and computes
// cosine distance in SQL when the sqlite-vec extension is loaded:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go Build (default or purego tag) uses modernc.org/sqlite and
// computes similarity in Go:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
