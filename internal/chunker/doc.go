// Package chunker loads chunk records produced by an external chunk
// extractor and normalizes them for indexing.
//
// Input is JSON Lines, one record per line:
//
//	{"file_path":"auth/login.go","start_line":10,"end_line":42,"symbol":"auth.Login","kind":"function","content":"func Login(...) {...}","imports":["net/http"]}
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithRoot("/path/to/project"))
//	chunks, err := c.LoadFile("chunks.jsonl")
//	if err != nil {
//	    return err
//	}
//
// # Normalization
//
//   - A missing id becomes "path:start:end"
//   - A missing or unknown language tag is inferred from the file extension
//   - Unknown kinds become "other"
//   - Imports are trimmed, deduplicated and capped at types.MaxChunkImports
//   - With WithRoot set, records without content read their line range from disk
//
// Records that fail validation reject the whole file with ErrInvalidRecord.
// Repeated ids keep the first record.
package chunker
