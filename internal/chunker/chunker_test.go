package chunker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-graph/pkg/types"
)

func TestNew(t *testing.T) {
	c := New()
	assert.NotNil(t, c)
	assert.NotNil(t, c.logger)
}

func TestReadJSONL(t *testing.T) {
	input := `{"id":"a","file_path":"a.go","start_line":1,"end_line":3,"symbol":"pkg.A","kind":"function","content":"func A() {}"}

{"file_path":"b.py","start_line":4,"end_line":9,"kind":"class"}
`
	records, err := ReadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "pkg.A", records[0].Symbol)
	assert.Equal(t, "func A() {}", records[0].Content)
	assert.Equal(t, "b.py", records[1].FilePath)
	assert.Equal(t, 9, records[1].EndLine)
}

func TestReadJSONL_Malformed(t *testing.T) {
	input := `{"file_path":"a.go","start_line":1,"end_line":3}
{"file_path": oops}
`
	_, err := ReadJSONL(strings.NewReader(input))
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNormalize(t *testing.T) {
	c := New()

	tests := []struct {
		name   string
		record Record
		check  func(t *testing.T, chunk types.Chunk)
	}{
		{
			name:   "derives id from location",
			record: Record{FilePath: "internal/auth/login.go", StartLine: 10, EndLine: 42},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, "internal/auth/login.go:10:42", chunk.ID)
			},
		},
		{
			name:   "keeps explicit id",
			record: Record{ID: " abc ", FilePath: "a.go", StartLine: 1, EndLine: 1},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, "abc", chunk.ID)
			},
		},
		{
			name:   "language from path",
			record: Record{FilePath: "web/app.tsx", StartLine: 1, EndLine: 2},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, types.LangTSX, chunk.Language)
			},
		},
		{
			name:   "explicit language wins",
			record: Record{FilePath: "build/script", StartLine: 1, EndLine: 2, Language: "Python"},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, types.LangPython, chunk.Language)
			},
		},
		{
			name:   "unknown language tag falls back to path",
			record: Record{FilePath: "main.go", StartLine: 1, EndLine: 2, Language: "golang"},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, types.LangGo, chunk.Language)
			},
		},
		{
			name:   "kind labels",
			record: Record{FilePath: "a.go", StartLine: 1, EndLine: 2, Kind: " Method "},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, types.KindMethod, chunk.Kind)
			},
		},
		{
			name:   "unknown kind",
			record: Record{FilePath: "a.go", StartLine: 1, EndLine: 2, Kind: "macro"},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, types.KindOther, chunk.Kind)
			},
		},
		{
			name: "imports deduplicated and capped",
			record: Record{FilePath: "a.go", StartLine: 1, EndLine: 2,
				Imports: []string{"fmt", " fmt", "", "os", "io", "net/http", "strings", "sort"}},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, []string{"fmt", "os", "io", "net/http", "strings"}, chunk.Imports)
			},
		},
		{
			name:   "windows separators",
			record: Record{FilePath: `pkg\util.go`, StartLine: 3, EndLine: 4},
			check: func(t *testing.T, chunk types.Chunk) {
				assert.Equal(t, filepath.ToSlash(`pkg\util.go`), chunk.FilePath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := c.Normalize([]Record{tt.record})
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			tt.check(t, chunks[0])
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	c := New()

	tests := []struct {
		name   string
		record Record
	}{
		{"no path or id", Record{StartLine: 1, EndLine: 2}},
		{"id without path", Record{ID: "x", StartLine: 1, EndLine: 2}},
		{"zero lines", Record{FilePath: "a.go"}},
		{"inverted range", Record{FilePath: "a.go", StartLine: 9, EndLine: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := Record{FilePath: "ok.go", StartLine: 1, EndLine: 1}
			_, err := c.Normalize([]Record{ok, tt.record})
			assert.ErrorIs(t, err, ErrInvalidRecord)
			assert.Contains(t, err.Error(), "record 1")
		})
	}
}

func TestNormalize_DuplicateKeepsFirst(t *testing.T) {
	c := New()
	chunks, err := c.Normalize([]Record{
		{FilePath: "a.go", StartLine: 1, EndLine: 5, Symbol: "first"},
		{FilePath: "b.go", StartLine: 1, EndLine: 5},
		{FilePath: "a.go", StartLine: 1, EndLine: 5, Symbol: "second"},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Symbol)
	assert.Equal(t, "b.go:1:5", chunks[1].ID)
}

func TestNormalize_ReadsContentFromRoot(t *testing.T) {
	tmpDir := t.TempDir()
	content := `package testpkg

import "fmt"

// Greet prints a greeting message
func Greet(name string) {
	fmt.Println("Hello, " + name)
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "greet.go"), []byte(content), 0644))

	c := New(WithRoot(tmpDir))
	chunks, err := c.Normalize([]Record{
		{FilePath: "greet.go", StartLine: 6, EndLine: 8, Symbol: "testpkg.Greet"},
		{FilePath: "greet.go", StartLine: 1, EndLine: 1, Content: "inline"},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "func Greet(name string) {\n\tfmt.Println(\"Hello, \" + name)\n}", chunks[0].Content)
	assert.Equal(t, "inline", chunks[1].Content)

	_, err = c.Normalize([]Record{{FilePath: "greet.go", StartLine: 50, EndLine: 60}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = c.Normalize([]Record{{FilePath: "missing.go", StartLine: 1, EndLine: 2}})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "chunks.jsonl")
	data := `{"file_path":"svc/user.go","start_line":1,"end_line":20,"symbol":"svc.UserService","kind":"struct","content":"type UserService struct{}"}
{"file_path":"svc/user.go","start_line":22,"end_line":30,"symbol":"svc.UserService.Get","kind":"method","content":"func (s *UserService) Get() {}"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	chunks, err := New().LoadFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "svc/user.go:22:30", chunks[1].ID)
	assert.Equal(t, types.KindStruct, chunks[0].Kind)
	assert.Equal(t, types.LangGo, chunks[1].Language)

	_, err = New().LoadFile(filepath.Join(tmpDir, "nope.jsonl"))
	assert.Error(t, err)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 3, EstimateTokenCount("func main() {}"))
}
