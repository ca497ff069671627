package codebase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JxTIN21/Codebase/internal/library/llm"
)

const (
	noRelevantCodeExplanation = "No relevant code found for your query."

	explanationSystemPrompt = `You are a senior software engineer helping developers understand their codebase. You will be given a query about a codebase and relevant code snippets. Your task is to provide a clear, comprehensive explanation that answers the query.

Guidelines:
1. Be specific and technical when appropriate
2. Reference specific files and code patterns
3. Explain the "why" behind implementation choices
4. If you see architectural patterns, mention them
5. Keep explanations practical and actionable
6. If the code shows security considerations, highlight them
7. Format your response clearly with proper structure
8. Be concise but thorough`

	explanationPromptTemplate = `Query: %s

Relevant Code:
%s

Please provide a comprehensive explanation that answers the query based on the provided code snippets.`

	examplePromptTemplate = `Explain this code snippet in the context of the query: "%s"

Code:
%s

Provide a brief, technical explanation of what this code does and how it relates to the query.`

	examplePromptCodeChars = 400
)

// codeIndicators mark a chunk as code worth showing as an example.
var codeIndicators = []string{
	"def ", "function ", "const ", "class ", "public ", "private ",
	"async ", "export ", "import ", "=>", "{", "}",
}

// Synthesis is the generated part of a search result.
type Synthesis struct {
	Explanation    string
	Examples       []CodeExample
	Degraded       bool
	DegradedReason string
}

// Synthesizer turns retrieved chunks into an explanation and code examples.
type Synthesizer struct {
	generator Generator
	model     string
	settings  SynthesisSettings
	logger    logSDK.Logger
}

// NewSynthesizer creates a synthesizer. A nil generator always yields degraded results.
func NewSynthesizer(generator Generator, model string, settings SynthesisSettings, logger logSDK.Logger) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		model:     model,
		settings:  settings,
		logger:    logger,
	}
}

// Synthesize never fails. Generation problems are reported through Degraded
// while verbatim examples are still returned.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, hits []ChunkHit) Synthesis {
	if len(hits) == 0 {
		return Synthesis{Explanation: noRelevantCodeExplanation, Examples: []CodeExample{}}
	}

	ranked := append([]ChunkHit(nil), hits...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	out := Synthesis{Examples: s.selectExamples(ranked)}
	switch {
	case !s.settings.Enabled:
		out.degrade("explanation generation is disabled")
	case s.generator == nil:
		out.degrade("no generation provider configured")
	}
	if out.Degraded {
		out.Explanation = fallbackExplanation(ranked)
		return out
	}

	sctx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	var (
		pool        errgroup.Group
		mainErr     error
		exampleErrs = make([]error, len(out.Examples))
	)
	pool.Go(func() error {
		out.Explanation, mainErr = s.generator.Generate(sctx, llm.Request{
			Model:       s.model,
			System:      explanationSystemPrompt,
			Prompt:      fmt.Sprintf(explanationPromptTemplate, query, s.buildContext(ranked)),
			MaxTokens:   s.settings.MaxTokens,
			Temperature: s.settings.Temperature,
		})
		return nil
	})
	for i := range out.Examples {
		pool.Go(func() error {
			example := &out.Examples[i]
			text, err := s.generator.Generate(sctx, llm.Request{
				Model:       s.model,
				Prompt:      fmt.Sprintf(examplePromptTemplate, query, truncateText(example.Code, examplePromptCodeChars, "")),
				MaxTokens:   s.settings.ExampleMaxTokens,
				Temperature: s.settings.Temperature,
			})
			if err == nil && strings.TrimSpace(text) == "" {
				err = errors.New("empty response")
			}
			if err != nil {
				exampleErrs[i] = err
				example.Explanation = "Code section from " + example.FilePath
				return nil
			}
			example.Explanation = strings.TrimSpace(text)
			return nil
		})
	}
	_ = pool.Wait()

	if mainErr == nil && strings.TrimSpace(out.Explanation) == "" {
		mainErr = errors.New("empty response")
	}
	if mainErr != nil {
		s.logger.Warn("generate explanation", zap.Error(mainErr))
		out.degrade(degradedReason(sctx, "explanation", mainErr))
		out.Explanation = fallbackExplanation(ranked)
	} else {
		out.Explanation = strings.TrimSpace(out.Explanation)
	}
	// a failed example keeps its fallback caption and does not degrade the answer
	for i, err := range exampleErrs {
		if err != nil {
			s.logger.Debug("generate example explanation", zap.Error(err), zap.String("path", out.Examples[i].FilePath))
		}
	}

	return out
}

// degrade marks the synthesis degraded, keeping the first reason.
func (s *Synthesis) degrade(reason string) {
	if !s.Degraded {
		s.DegradedReason = reason
	}
	s.Degraded = true
}

func degradedReason(ctx context.Context, step string, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return step + " generation timed out"
	}
	return fmt.Sprintf("%s generation failed: %s", step, err.Error())
}

// buildContext formats the best chunks within the context budget.
func (s *Synthesizer) buildContext(ranked []ChunkHit) string {
	parts := make([]string, 0, s.settings.ContextChunks)
	used := 0
	for i, hit := range ranked {
		if i >= s.settings.ContextChunks {
			break
		}
		part := fmt.Sprintf("File: %s\n%s\n---", hit.FilePath, truncateText(hit.Content, s.settings.ContextCharsPerChunk, ""))
		if used+len(part) > s.settings.ContextBudgetChars && len(parts) > 0 {
			break
		}
		parts = append(parts, part)
		used += len(part) + 1
	}
	return strings.Join(parts, "\n")
}

// selectExamples picks code-looking chunks among the best hits, verbatim.
func (s *Synthesizer) selectExamples(ranked []ChunkHit) []CodeExample {
	examples := make([]CodeExample, 0, s.settings.Examples)
	for i, hit := range ranked {
		if i >= s.settings.Examples {
			break
		}
		if !looksLikeCode(hit.Content) {
			continue
		}
		examples = append(examples, CodeExample{
			Title:    "Code from " + hit.FilePath,
			Code:     truncateText(hit.Content, s.settings.ExampleChars, ""),
			FilePath: hit.FilePath,
		})
	}
	return examples
}

func looksLikeCode(content string) bool {
	for _, indicator := range codeIndicators {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return false
}

// fallbackExplanation lists the ranked files when no explanation could be generated.
func fallbackExplanation(ranked []ChunkHit) string {
	var b strings.Builder
	b.WriteString("An explanation could not be generated. The most relevant files are:\n")
	seen := make(map[string]bool)
	for _, hit := range ranked {
		if seen[hit.FilePath] {
			continue
		}
		seen[hit.FilePath] = true
		fmt.Fprintf(&b, "- %s (relevance %.2f)\n", hit.FilePath, hit.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}
