package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

const defaultWrapWidth = 100

// FormatResult lays out a search result as markdown: explanation, ranked files, examples.
func FormatResult(result *codebase.SearchResult) string {
	if result == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Explanation\n\n")
	sb.WriteString(strings.TrimSpace(result.Explanation))
	sb.WriteString("\n\n")
	if result.Degraded {
		fmt.Fprintf(&sb, "> degraded: %s\n\n", result.DegradedReason)
	}

	if len(result.RelevantFiles) > 0 {
		sb.WriteString("## Relevant files\n\n")
		for i, file := range result.RelevantFiles {
			fmt.Fprintf(&sb, "%d. `%s` (lines %d-%d, score %.2f)\n",
				i+1, file.FilePath, file.StartLine, file.EndLine, file.RelevanceScore)
		}
		sb.WriteString("\n")
	}

	for _, example := range result.CodeExamples {
		fmt.Fprintf(&sb, "### %s\n\n", example.Title)
		if example.FilePath != "" {
			fmt.Fprintf(&sb, "_%s_\n\n", example.FilePath)
		}
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", fenceLanguage(result, example.FilePath),
			strings.TrimRight(example.Code, "\n"))
		if example.Explanation != "" {
			sb.WriteString(example.Explanation)
			sb.WriteString("\n\n")
		}
	}

	return sb.String()
}

// fenceLanguage picks the code fence language of the ranked file with path.
func fenceLanguage(result *codebase.SearchResult, path string) string {
	for _, file := range result.RelevantFiles {
		if file.FilePath == path {
			return file.Language
		}
	}
	return ""
}

// RenderMarkdown renders md for the terminal. The raw markdown is returned when rendering fails.
func RenderMarkdown(md string, width int) string {
	if width <= 0 {
		width = defaultWrapWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}

	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
