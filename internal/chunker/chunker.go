package chunker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/gocontext-graph/pkg/types"
)

const (
	// MaxRecordBytes bounds one JSONL line
	MaxRecordBytes = 8 << 20

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// ErrInvalidRecord is returned for chunk records that cannot be indexed
var ErrInvalidRecord = errors.New("invalid chunk record")

// Record is one chunk as produced by an external chunk extractor, one JSON
// object per line
type Record struct {
	ID        string   `json:"id,omitempty"`
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Symbol    string   `json:"symbol,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Content   string   `json:"content,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Docstring string   `json:"docstring,omitempty"`
	Language  string   `json:"language,omitempty"`
}

// Chunker turns chunk records into normalized chunks
type Chunker struct {
	root   string
	logger *slog.Logger
}

// Option configures a Chunker
type Option func(*Chunker)

// WithRoot resolves relative file paths against root when a record carries
// no content and its lines must be read from disk
func WithRoot(root string) Option {
	return func(c *Chunker) { c.root = root }
}

// WithLogger sets the logger used for skipped records
func WithLogger(l *slog.Logger) Option {
	return func(c *Chunker) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFile reads and normalizes a JSONL chunk file
func (c *Chunker) LoadFile(path string) ([]types.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := ReadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Normalize(records)
}

// ReadJSONL decodes one record per non-blank line
func ReadJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxRecordBytes)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}

// Normalize converts records to chunks. Missing ids are derived from the
// location, languages are inferred from the path when absent, imports are
// deduplicated and capped at types.MaxChunkImports. A record that still fails
// validation fails the whole set; a repeated id keeps the first record.
func (c *Chunker) Normalize(records []Record) ([]types.Chunk, error) {
	chunks := make([]types.Chunk, 0, len(records))
	seen := make(map[string]int, len(records))

	for i, rec := range records {
		chunk, err := c.normalize(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidRecord, i, err)
		}
		if first, dup := seen[chunk.ID]; dup {
			c.logger.Warn("chunker.duplicate_id",
				slog.String("chunk_id", chunk.ID), slog.Int("record", i), slog.Int("first", first))
			continue
		}
		seen[chunk.ID] = i
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (c *Chunker) normalize(rec Record) (types.Chunk, error) {
	path := filepath.ToSlash(strings.TrimSpace(rec.FilePath))
	chunk := types.Chunk{
		ID:        strings.TrimSpace(rec.ID),
		FilePath:  path,
		StartLine: rec.StartLine,
		EndLine:   rec.EndLine,
		Symbol:    strings.TrimSpace(rec.Symbol),
		Kind:      ParseKind(rec.Kind),
		Content:   rec.Content,
		Imports:   normalizeImports(rec.Imports),
		Docstring: strings.TrimSpace(rec.Docstring),
		Language:  parseLanguage(rec.Language, path),
	}
	if chunk.ID == "" && path != "" {
		chunk.ID = types.MakeChunkID(path, rec.StartLine, rec.EndLine)
	}
	if err := chunk.Validate(); err != nil {
		return types.Chunk{}, err
	}

	if chunk.Content == "" && c.root != "" {
		content, err := c.readLines(path, chunk.StartLine, chunk.EndLine)
		if err != nil {
			return types.Chunk{}, err
		}
		chunk.Content = content
	}
	return chunk, nil
}

// readLines extracts the 1-based inclusive line range of a source file
func (c *Chunker) readLines(path string, start, end int) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.root, filepath.FromSlash(path))
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if start > len(lines) {
		return "", fmt.Errorf("start line %d beyond end of %s (%d lines)", start, path, len(lines))
	}
	endIdx := min(end, len(lines))
	return strings.Join(lines[start-1:endIdx], "\n"), nil
}

var kinds = map[string]types.ChunkKind{
	"function":  types.KindFunction,
	"func":      types.KindFunction,
	"method":    types.KindMethod,
	"struct":    types.KindStruct,
	"interface": types.KindInterface,
	"type":      types.KindType,
	"class":     types.KindClass,
	"const":     types.KindConst,
	"var":       types.KindVar,
	"module":    types.KindModule,
	"package":   types.KindPackage,
	"comment":   types.KindComment,
	"other":     types.KindOther,
}

// ParseKind maps a record's kind label to a ChunkKind. Unknown labels
// become KindOther.
func ParseKind(s string) types.ChunkKind {
	if k, ok := kinds[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	return types.KindOther
}

var knownLanguages = []types.Language{
	types.LangGo, types.LangPython, types.LangJavaScript,
	types.LangTypeScript, types.LangTSX, types.LangJava,
}

func parseLanguage(tag, path string) types.Language {
	lang := types.Language(strings.ToLower(strings.TrimSpace(tag)))
	if slices.Contains(knownLanguages, lang) {
		return lang
	}
	return types.LanguageFromPath(path)
}

func normalizeImports(imports []string) []string {
	var out []string
	for _, imp := range imports {
		imp = strings.TrimSpace(imp)
		if imp == "" || slices.Contains(out, imp) {
			continue
		}
		out = append(out, imp)
		if len(out) == types.MaxChunkImports {
			break
		}
	}
	return out
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
