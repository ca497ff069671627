package codebase

import (
	"context"
	"strings"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/JxTIN21/Codebase/internal/library/llm"
	"github.com/JxTIN21/Codebase/library/log"
)

func testSynthesisSettings() SynthesisSettings {
	return testSettings().Synthesis
}

// blockingGenerator waits until the context is done.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSynthesizeNoHits(t *testing.T) {
	gen := &stubGenerator{text: "unused"}
	s := NewSynthesizer(gen, "m", testSynthesisSettings(), log.Logger.Named("test"))

	out := s.Synthesize(context.Background(), "anything", nil)
	require.Equal(t, noRelevantCodeExplanation, out.Explanation)
	require.False(t, out.Degraded)
	require.Empty(t, out.Examples)
	require.Empty(t, gen.requests)
}

func TestSynthesizeContextBudget(t *testing.T) {
	settings := testSynthesisSettings()
	hits := make([]ChunkHit, 0, 8)
	for i := 0; i < 8; i++ {
		hits = append(hits, ChunkHit{
			FilePath: string(rune('a'+i)) + ".go",
			Score:    float64(i) / 10,
			Content:  strings.Repeat("z", 2000),
		})
	}
	s := NewSynthesizer(nil, "m", settings, log.Logger.Named("test"))

	ctxText := s.buildContext(hits)
	require.LessOrEqual(t, len(ctxText), settings.ContextBudgetChars)
	require.Equal(t, settings.ContextChunks, strings.Count(ctxText, "\n---"))
	require.True(t, strings.HasPrefix(ctxText, "File: a.go\n"))
	require.NotContains(t, ctxText, strings.Repeat("z", settings.ContextCharsPerChunk+1))

	settings.ContextBudgetChars = 1000
	s = NewSynthesizer(nil, "m", settings, log.Logger.Named("test"))
	require.Equal(t, 1, strings.Count(s.buildContext(hits), "\n---"))
}

func TestSynthesizeOrdersByScore(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	s := NewSynthesizer(gen, "m", testSynthesisSettings(), log.Logger.Named("test"))

	hits := []ChunkHit{
		{FilePath: "low.go", Score: 0.2, Content: "func low() {}"},
		{FilePath: "high.go", Score: 0.9, Content: "func high() {}"},
	}
	out := s.Synthesize(context.Background(), "q", hits)
	require.False(t, out.Degraded)
	require.Equal(t, "Code from high.go", out.Examples[0].Title)

	for _, req := range gen.requests {
		if req.System != "" {
			require.Less(t, strings.Index(req.Prompt, "high.go"), strings.Index(req.Prompt, "low.go"))
		}
	}
}

func TestSynthesizeExamplesOnlyForCode(t *testing.T) {
	s := NewSynthesizer(nil, "m", testSynthesisSettings(), log.Logger.Named("test"))
	hits := []ChunkHit{
		{FilePath: "README.md", Score: 0.9, Content: "Just some prose about the project"},
		{FilePath: "app.js", Score: 0.8, Content: "export function run() { return 1 }"},
		{FilePath: "main.py", Score: 0.7, Content: "def main():\n    pass\n" + strings.Repeat("#", 600)},
		{FilePath: "late.py", Score: 0.1, Content: "def late(): pass"},
	}

	out := s.Synthesize(context.Background(), "q", hits)
	require.True(t, out.Degraded)
	require.Len(t, out.Examples, 2)
	require.Equal(t, "app.js", out.Examples[0].FilePath)
	require.Equal(t, "main.py", out.Examples[1].FilePath)
	require.Len(t, out.Examples[1].Code, 500)
	require.Contains(t, out.Explanation, "README.md")
}

func TestSynthesizeTimeout(t *testing.T) {
	settings := testSynthesisSettings()
	settings.Timeout = 50 * time.Millisecond
	s := NewSynthesizer(blockingGenerator{}, "m", settings, log.Logger.Named("test"))

	start := time.Now()
	out := s.Synthesize(context.Background(), "q", []ChunkHit{{FilePath: "a.go", Score: 0.5, Content: "func a() {}"}})
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, out.Degraded)
	require.Contains(t, out.DegradedReason, "timed out")
	require.Equal(t, "Code section from a.go", out.Examples[0].Explanation)
}

func TestSynthesizeExampleFailureOnly(t *testing.T) {
	gen := &selectiveGenerator{}
	s := NewSynthesizer(gen, "m", testSynthesisSettings(), log.Logger.Named("test"))

	out := s.Synthesize(context.Background(), "q", []ChunkHit{{FilePath: "a.go", Score: 0.5, Content: "func a() {}"}})
	require.Equal(t, "main answer", out.Explanation)
	require.False(t, out.Degraded)
	require.Empty(t, out.DegradedReason)
	require.Len(t, out.Examples, 1)
	require.Equal(t, "Code section from a.go", out.Examples[0].Explanation)
}

// selectiveGenerator answers the main explanation and fails example requests.
type selectiveGenerator struct{}

func (selectiveGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	if req.System != "" {
		return "main answer", nil
	}
	return "", errors.New("quota exceeded")
}
