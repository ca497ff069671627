package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

type fakeBackend struct {
	items    []codebase.CodebaseSummary
	listErr  error
	result   *codebase.SearchResult
	searched []codebase.SearchRequest
}

func (f *fakeBackend) List(context.Context) ([]codebase.CodebaseSummary, error) {
	return f.items, f.listErr
}

func (f *fakeBackend) Search(_ context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error) {
	f.searched = append(f.searched, req)
	return f.result, nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelPickQueryAndShowAnswer(t *testing.T) {
	backend := &fakeBackend{
		items: []codebase.CodebaseSummary{{ID: "cb-1", Name: "shop", Status: codebase.StatusReady}},
		result: &codebase.SearchResult{
			Query:       "auth",
			Explanation: "Login is handled in auth.py.",
			RelevantFiles: []codebase.RelevantFile{
				{FilePath: "auth.py", Language: "python", RelevanceScore: 0.9, StartLine: 1, EndLine: 4},
			},
		},
	}

	m := NewModel(backend)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	require.Equal(t, ViewRunning, m.state)

	m, _ = update(t, m, m.loadCodebases()())
	require.Equal(t, ViewCodebases, m.state)
	require.Len(t, m.codebases.Items(), 1)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ViewQuery, m.state)
	require.Equal(t, "cb-1", m.selected.ID)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("auth")})
	require.Equal(t, "auth", m.query.Value())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ViewRunning, m.state)
	require.NotNil(t, cmd)

	m, _ = update(t, m, m.runSearch("cb-1", "auth")())
	require.Equal(t, ViewResult, m.state)
	require.Equal(t, "auth", m.lastQuery)
	require.Equal(t, []codebase.SearchRequest{{CodebaseID: "cb-1", Query: "auth"}}, backend.searched)
	require.Contains(t, m.View(), "auth")
}

func TestModelListErrorShowsErrorView(t *testing.T) {
	m := NewModel(&fakeBackend{listErr: errors.New("db down")})
	m, _ = update(t, m, m.loadCodebases()())
	require.Equal(t, ViewError, m.state)
	require.Contains(t, m.View(), "db down")
}

func TestQueryViewDoesNotQuitOnQ(t *testing.T) {
	m := NewModel(&fakeBackend{items: []codebase.CodebaseSummary{{ID: "cb-1", Name: "shop"}}})
	m, _ = update(t, m, m.loadCodebases()())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.False(t, m.quitting)
	require.Equal(t, "q", m.query.Value())
}

func TestFormatResult(t *testing.T) {
	md := FormatResult(&codebase.SearchResult{
		Explanation:    "Handled in auth.py.",
		Degraded:       true,
		DegradedReason: "generation disabled",
		RelevantFiles: []codebase.RelevantFile{
			{FilePath: "auth.py", Language: "python", RelevanceScore: 0.75, StartLine: 3, EndLine: 9},
		},
		CodeExamples: []codebase.CodeExample{
			{Title: "login", Code: "def login():\n    pass\n", FilePath: "auth.py"},
		},
	})

	require.Contains(t, md, "## Explanation")
	require.Contains(t, md, "> degraded: generation disabled")
	require.Contains(t, md, "1. `auth.py` (lines 3-9, score 0.75)")
	require.Contains(t, md, "```python\ndef login():\n    pass\n```")
	require.Empty(t, FormatResult(nil))
}
