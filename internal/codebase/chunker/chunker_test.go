package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const pythonAuth = `import hashlib

SALT = "x"


def hash_password(password):
    return hashlib.sha256((SALT + password).encode()).hexdigest()


def login(user, password):
    if user.password_hash != hash_password(password):
        raise PermissionError("bad credentials")
    return True


class Session:
    def __init__(self, user):
        self.user = user
`

// requireContiguous verifies chunks never overlap and only whitespace lies between them.
func requireContiguous(t *testing.T, src string, chunks []Chunk) {
	t.Helper()

	cursor := 0
	for idx, chunk := range chunks {
		require.Equal(t, idx, chunk.Index)
		require.GreaterOrEqual(t, chunk.StartByte, cursor, "chunk %d overlaps its predecessor", idx)
		require.Empty(t, strings.TrimSpace(src[cursor:chunk.StartByte]), "chunk %d leaves a gap", idx)
		require.Equal(t, src[chunk.StartByte:chunk.EndByte], chunk.Content)
		require.LessOrEqual(t, chunk.StartLine, chunk.EndLine)
		cursor = chunk.EndByte
	}
	require.Empty(t, strings.TrimSpace(src[cursor:]))
}

// TestSplitPythonDefinitions verifies python files are split along definitions.
func TestSplitPythonDefinitions(t *testing.T) {
	t.Parallel()

	c := New(DefaultRegistry(), Options{})
	res := c.Split(context.Background(), "auth.py", pythonAuth)
	require.NoError(t, res.Warning)
	require.Equal(t, StrategyAST, res.Strategy)
	require.Equal(t, "python", res.Language)
	requireContiguous(t, pythonAuth, res.Chunks)

	names := map[string]string{}
	for _, chunk := range res.Chunks {
		names[chunk.Name] = chunk.Kind
	}
	require.Equal(t, KindFunction, names["login"])
	require.Equal(t, KindFunction, names["hash_password"])
	require.Equal(t, KindClass, names["Session"])
	require.Equal(t, KindModule, res.Chunks[0].Kind)
	require.Contains(t, res.Chunks[0].Content, "import hashlib")
}

// TestSplitLargeClassDescendsIntoMethods verifies oversized definitions split at nested definitions.
func TestSplitLargeClassDescendsIntoMethods(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("class Repo:\n    table = 'users'\n\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "    def method_%d(self):\n", i)
		for j := 0; j < 5; j++ {
			fmt.Fprintf(&b, "        value_%d = %d\n", j, j)
		}
		b.WriteString("        return value_0\n\n")
	}
	src := b.String()

	c := New(DefaultRegistry(), Options{MaxLines: 10, MaxBytes: 4000})
	res := c.Split(context.Background(), "repo.py", src)
	require.Equal(t, StrategyAST, res.Strategy)
	requireContiguous(t, src, res.Chunks)

	var methods int
	for _, chunk := range res.Chunks {
		require.LessOrEqual(t, chunk.EndLine-chunk.StartLine+1, 10)
		if chunk.Kind == KindFunction && strings.HasPrefix(chunk.Name, "method_") {
			methods++
		}
	}
	require.Equal(t, 6, methods)
	require.Equal(t, "Repo", res.Chunks[0].Name)
	require.Equal(t, KindClass, res.Chunks[0].Kind)
}

// TestSplitGoDefinitions verifies the go grammar captures functions, methods and types.
func TestSplitGoDefinitions(t *testing.T) {
	t.Parallel()

	src := "package auth\n\ntype User struct {\n\tName string\n}\n\nfunc (u *User) Login(pw string) bool {\n\treturn pw != \"\"\n}\n\nfunc New() *User { return &User{} }\n"
	res := New(DefaultRegistry(), Options{}).Split(context.Background(), "auth.go", src)
	require.Equal(t, StrategyAST, res.Strategy)
	requireContiguous(t, src, res.Chunks)

	kinds := map[string]string{}
	for _, chunk := range res.Chunks {
		kinds[chunk.Name] = chunk.Kind
	}
	require.Equal(t, KindType, kinds["User"])
	require.Equal(t, KindMethod, kinds["Login"])
	require.Equal(t, KindFunction, kinds["New"])
}

// TestSplitFallsBackToWindows verifies unknown languages use bounded line windows.
func TestSplitFallsBackToWindows(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("line %03d", i))
	}
	src := strings.Join(lines, "\n") + "\n"

	res := New(DefaultRegistry(), Options{MaxLines: 50}).Split(context.Background(), "notes.txt", src)
	require.Equal(t, StrategyWindow, res.Strategy)
	require.Equal(t, "text", res.Language)
	require.Len(t, res.Chunks, 4)
	require.Equal(t, 1, res.Chunks[0].StartLine)
	require.Equal(t, 50, res.Chunks[0].EndLine)
	require.Equal(t, 200, res.Chunks[3].EndLine)
	for _, chunk := range res.Chunks {
		require.Equal(t, KindWindow, chunk.Kind)
	}
	requireContiguous(t, src, res.Chunks)
}

// TestSplitRespectsMaxBytes verifies windows and single long lines stay within the byte bound.
func TestSplitRespectsMaxBytes(t *testing.T) {
	t.Parallel()

	src := strings.Repeat("a", 250) + "\n" + strings.Repeat("é", 10) + "\nshort\n"
	res := New(nil, Options{MaxBytes: 100}).Split(context.Background(), "data.json", src)
	require.Equal(t, StrategyWindow, res.Strategy)
	requireContiguous(t, src, res.Chunks)

	for _, chunk := range res.Chunks {
		require.LessOrEqual(t, len(chunk.Content), 100)
		require.True(t, strings.ToValidUTF8(chunk.Content, "") == chunk.Content)
	}
	require.Equal(t, 1, res.Chunks[0].StartLine)
	require.Equal(t, 1, res.Chunks[2].EndLine)
}

// TestSplitEmptyContent verifies whitespace-only files produce zero chunks.
func TestSplitEmptyContent(t *testing.T) {
	t.Parallel()

	c := New(DefaultRegistry(), Options{})
	require.Empty(t, c.Split(context.Background(), "empty.py", "").Chunks)
	require.Empty(t, c.Split(context.Background(), "blank.go", "\n\n   \n").Chunks)
}

// TestChunkEmbeddingText verifies file context is prepended.
func TestChunkEmbeddingText(t *testing.T) {
	t.Parallel()

	text := Chunk{Kind: KindFunction, Name: "login", Content: "def login(): pass"}.EmbeddingText("auth.py", "python")
	require.Equal(t, "File: auth.py\nLanguage: python\nfunction: login\ndef login(): pass", text)
}

// TestNest verifies partial overlaps and duplicate spans are dropped.
func TestNest(t *testing.T) {
	t.Parallel()

	roots := nest([]*span{
		{start: 0, end: 10, name: "outer"},
		{start: 0, end: 10, name: "dup"},
		{start: 2, end: 4, name: "inner"},
		{start: 8, end: 12, name: "partial"},
		{start: 12, end: 14, name: "next"},
	})
	require.Len(t, roots, 2)
	require.Equal(t, "outer", roots[0].name)
	require.Len(t, roots[0].children, 1)
	require.Equal(t, "inner", roots[0].children[0].name)
	require.Equal(t, "next", roots[1].name)
}
