package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MaxChunkImports caps the relevant imports carried per chunk
const MaxChunkImports = 5

// ChunkKind represents the kind of code a chunk holds
type ChunkKind string

const (
	KindFunction  ChunkKind = "function"
	KindMethod    ChunkKind = "method"
	KindStruct    ChunkKind = "struct"
	KindInterface ChunkKind = "interface"
	KindType      ChunkKind = "type"
	KindClass     ChunkKind = "class"
	KindConst     ChunkKind = "const"
	KindVar       ChunkKind = "var"
	KindModule    ChunkKind = "module"
	KindPackage   ChunkKind = "package"
	KindComment   ChunkKind = "comment"
	KindOther     ChunkKind = "other"
)

// IsModuleLevel reports whether chunks of this kind can be the target of an import
func (k ChunkKind) IsModuleLevel() bool {
	return k == KindModule || k == KindPackage
}

// Language is the language tag attached to a chunk
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJava       Language = "java"
	LangUnknown    Language = "unknown"
)

var extLanguages = map[string]Language{
	".go":   LangGo,
	".py":   LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   LangTypeScript,
	".mts":  LangTypeScript,
	".tsx":  LangTSX,
	".java": LangJava,
}

// LanguageFromPath guesses a language tag from a file extension
func LanguageFromPath(path string) Language {
	if lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// Chunk is a semantically bounded source unit produced by the chunk extractor.
// Chunks are immutable once indexed.
type Chunk struct {
	ID        string
	FilePath  string
	StartLine int
	EndLine   int

	// Symbol is the qualified symbol name, empty for chunks that declare nothing
	Symbol string
	Kind   ChunkKind

	Content   string
	Imports   []string
	Docstring string
	Language  Language
}

// MakeChunkID builds the canonical "path:start:end" chunk identifier
func MakeChunkID(path string, start, end int) string {
	return fmt.Sprintf("%s:%d:%d", path, start, end)
}

// LineCount returns the number of source lines the chunk spans
func (c *Chunk) LineCount() int {
	n := c.EndLine - c.StartLine + 1
	if n < 1 {
		return 1
	}
	return n
}

// HasSymbol reports whether the chunk declares a named symbol
func (c *Chunk) HasSymbol() bool {
	return strings.TrimSpace(c.Symbol) != ""
}

// Validate checks the chunk carries the minimum metadata needed for indexing
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.FilePath == "" {
		return errors.New("file path is required")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if len(c.Imports) > MaxChunkImports {
		return fmt.Errorf("at most %d imports allowed, got %d", MaxChunkImports, len(c.Imports))
	}
	return nil
}
