package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

const backendTimeout = 2 * time.Minute

// Backend is the part of the codebase service the TUI talks to.
type Backend interface {
	List(ctx context.Context) ([]codebase.CodebaseSummary, error)
	Search(ctx context.Context, req codebase.SearchRequest) (*codebase.SearchResult, error)
}

// ViewState represents the current view state of the TUI
type ViewState int

const (
	// ViewCodebases lists the known codebases
	ViewCodebases ViewState = iota
	// ViewQuery asks for a question about the selected codebase
	ViewQuery
	// ViewRunning is shown while a backend call is in flight
	ViewRunning
	// ViewResult shows the rendered answer
	ViewResult
	// ViewError shows a failed backend call
	ViewError
)

// CodebaseItem is one row of the codebase picker (implements list.Item)
type CodebaseItem struct {
	summary codebase.CodebaseSummary
}

// Title returns the codebase name and status
func (i CodebaseItem) Title() string {
	return fmt.Sprintf("%s  %s", i.summary.Name, StatusBadge(i.summary.Status))
}

// Description returns the id and size of the codebase
func (i CodebaseItem) Description() string {
	return fmt.Sprintf("%s · %d files · %d chunks",
		i.summary.ID, i.summary.TotalFiles, i.summary.ChunkCount)
}

// FilterValue returns the filter value
func (i CodebaseItem) FilterValue() string { return i.summary.Name }

type codebasesLoadedMsg struct {
	items []codebase.CodebaseSummary
	err   error
}

type searchDoneMsg struct {
	query  string
	result *codebase.SearchResult
	err    error
}

// Model is the main TUI model following the Bubble Tea architecture
type Model struct {
	backend Backend
	state   ViewState

	codebases list.Model
	selected  *codebase.CodebaseSummary
	query     textinput.Model
	spinner   spinner.Model
	answer    viewport.Model

	lastQuery string
	busy      string
	err       error

	width  int
	height int

	quitting bool
}

// keyMap defines the key bindings for the TUI
type keyMap struct {
	Enter   key.Binding
	Back    key.Binding
	Refresh key.Binding
	Quit    key.Binding
	ForceQ  key.Binding
}

var keys = keyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	// text inputs swallow "q"
	ForceQ: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// NewModel creates a TUI model backed by backend.
func NewModel(backend Backend) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(primaryColor).
		BorderForeground(primaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(secondaryColor)

	picker := list.New(nil, delegate, 0, 0)
	picker.Title = "Codebases"
	picker.SetShowStatusBar(false)
	picker.Styles.Title = GetHeaderStyle()

	query := textinput.New()
	query.Placeholder = "where is authentication handled?"
	query.CharLimit = 1000
	query.Width = 60
	query.Prompt = "❯ "
	query.PromptStyle = GetInputLabelStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = GetProgressStyle()

	return Model{
		backend:   backend,
		state:     ViewRunning,
		codebases: picker,
		query:     query,
		spinner:   sp,
		answer:    viewport.New(0, 0),
		busy:      "Loading codebases...",
	}
}

// Init loads the codebase list
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCodebases())
}

func (m Model) loadCodebases() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		items, err := backend.List(ctx)
		return codebasesLoadedMsg{items: items, err: err}
	}
}

func (m Model) runSearch(codebaseID, query string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		result, err := backend.Search(ctx, codebase.SearchRequest{
			CodebaseID: codebaseID,
			Query:      query,
		})
		return searchDoneMsg{query: query, result: result, err: err}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.codebases.SetSize(msg.Width-4, msg.Height-4)
		m.answer.Width = msg.Width - 4
		m.answer.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case ViewCodebases:
			return m.handleCodebases(msg)
		case ViewQuery:
			return m.handleQuery(msg)
		case ViewResult, ViewError:
			return m.handleResult(msg)
		case ViewRunning:
			if key.Matches(msg, keys.ForceQ) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case codebasesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = ViewError
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.items))
		for _, summary := range msg.items {
			items = append(items, CodebaseItem{summary: summary})
		}
		m.state = ViewCodebases
		return m, m.codebases.SetItems(items)

	case searchDoneMsg:
		m.lastQuery = msg.query
		if msg.err != nil {
			m.err = msg.err
			m.state = ViewError
			return m, nil
		}
		m.answer.SetContent(RenderMarkdown(FormatResult(msg.result), m.answer.Width))
		m.answer.GotoTop()
		m.state = ViewResult
		return m, nil
	}

	if m.state == ViewQuery {
		var cmd tea.Cmd
		m.query, cmd = m.query.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleCodebases handles key events in the codebase picker
func (m Model) handleCodebases(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.codebases.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.codebases, cmd = m.codebases.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Refresh):
		m.state = ViewRunning
		m.busy = "Loading codebases..."
		return m, tea.Batch(m.spinner.Tick, m.loadCodebases())

	case key.Matches(msg, keys.Enter):
		if item, ok := m.codebases.SelectedItem().(CodebaseItem); ok {
			summary := item.summary
			m.selected = &summary
			m.state = ViewQuery
			m.query.SetValue("")
			return m, m.query.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.codebases, cmd = m.codebases.Update(msg)
	return m, cmd
}

// handleQuery handles key events while typing a question
func (m Model) handleQuery(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.ForceQ):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Back):
		m.query.Blur()
		m.state = ViewCodebases
		return m, nil

	case key.Matches(msg, keys.Enter):
		query := strings.TrimSpace(m.query.Value())
		if query == "" || m.selected == nil {
			return m, nil
		}
		m.query.Blur()
		m.state = ViewRunning
		m.busy = "Searching " + m.selected.Name + "..."
		return m, tea.Batch(m.spinner.Tick, m.runSearch(m.selected.ID, query))
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

// handleResult handles key events in the answer and error views
func (m Model) handleResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Back), key.Matches(msg, keys.Enter):
		m.err = nil
		if m.selected == nil {
			m.state = ViewRunning
			m.busy = "Loading codebases..."
			return m, tea.Batch(m.spinner.Tick, m.loadCodebases())
		}
		m.state = ViewQuery
		return m, m.query.Focus()
	}

	var cmd tea.Cmd
	m.answer, cmd = m.answer.Update(msg)
	return m, cmd
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return GetSubtitleStyle().Render("Goodbye! 👋\n")
	}

	switch m.state {
	case ViewCodebases:
		return m.renderCodebases()
	case ViewQuery:
		return m.renderQuery()
	case ViewRunning:
		return m.renderRunning()
	case ViewResult:
		return m.renderResult()
	case ViewError:
		return m.renderError()
	default:
		return "Unknown state"
	}
}

func (m Model) renderCodebases() string {
	if len(m.codebases.Items()) == 0 {
		return GetBoxStyle().Render(lipgloss.JoinVertical(lipgloss.Left,
			GetHeaderStyle().Render("Codebases"),
			GetSubtitleStyle().Render("Nothing indexed yet. Run `codebase index <dir>` first."),
			"",
			GetHelpStyle().Render("r refresh • q quit"),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.codebases.View(),
		GetHelpStyle().Render("↑/↓ navigate • / filter • enter select • r refresh • q quit"),
	)
}

func (m Model) renderQuery() string {
	var sb strings.Builder
	sb.WriteString(GetHeaderStyle().Render("🔎 "+m.selected.Name) + "\n")
	sb.WriteString(GetSubtitleStyle().Render(m.selected.ID) + "  " + StatusBadge(m.selected.Status) + "\n\n")
	sb.WriteString(GetInputLabelStyle().Render("Question:") + "\n")
	sb.WriteString(m.query.View() + "\n\n")
	sb.WriteString(GetHelpStyle().Render("enter: search • esc: back • ctrl+c: quit"))
	return GetBoxStyle().Render(sb.String())
}

func (m Model) renderRunning() string {
	return GetBoxStyle().Render(
		lipgloss.JoinVertical(lipgloss.Center,
			m.spinner.View()+" "+m.busy,
			GetSubtitleStyle().Render("Please wait..."),
		),
	)
}

func (m Model) renderResult() string {
	title := GetSuccessStyle().Render("✅ " + m.lastQuery)
	help := GetHelpStyle().Render("↑/↓ scroll • enter/esc: new question • q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, m.answer.View(), help)
}

func (m Model) renderError() string {
	msg := "unknown error"
	if m.err != nil {
		msg = m.err.Error()
	}
	return GetBoxStyle().Render(
		lipgloss.JoinVertical(lipgloss.Left,
			GetErrorStyle().Render("❌ request failed"),
			"",
			GetSubtitleStyle().Render(msg),
			"",
			GetHelpStyle().Render("enter/esc: back • q: quit"),
		),
	)
}
