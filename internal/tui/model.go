package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"exemplar/internal/embedding"
	"exemplar/internal/extract"
	"exemplar/internal/generate"
	"exemplar/internal/service"
)

// RetrievalPort is the TUI-facing subset of the retrieval service.
type RetrievalPort interface {
	RetrieveContext(ctx context.Context, query string, k int) []string
	Refresh(ctx context.Context) error
	Status() service.Status
}

// Options tunes the TUI.
type Options struct {
	TopK int
	// Engine is optional; without it the TUI only shows retrieved examples.
	Engine         generate.Engine
	RequestTimeout time.Duration
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   RetrievalPort
	opts      Options
	input     textinput.Model
	viewport  viewport.Model
	contexts  []string
	reply     string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

type answerMsg struct {
	query    string
	contexts []string
	reply    string
	err      error
}

type refreshMsg struct{ err error }

// New creates a new TUI model instance.
func New(svc RetrievalPort, opts Options) Model {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe an image or ask a question, then press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: svc, opts: opts, input: ti, viewport: vp, status: statusLine(svc.Status())}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + help, status, query box, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.busy = false
		m.contexts = msg.contexts
		m.reply = msg.reply
		m.cursor = 0
		m.lastQuery = msg.query
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case len(msg.contexts) == 0:
			m.status = fmt.Sprintf("No examples found for %q", msg.query)
		default:
			m.status = fmt.Sprintf("%d examples for %q", len(msg.contexts), msg.query)
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case refreshMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Refresh failed: " + msg.err.Error()
		} else {
			m.status = "Refreshed. " + statusLine(m.service.Status())
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Working..."
				return m, m.ask(q)
			}
		case "ctrl+r":
			if !m.busy {
				m.busy = true
				m.status = "Refreshing index..."
				return m, m.refresh()
			}
			return m, nil
		case "down":
			if len(m.contexts) > 0 {
				m.cursor = (m.cursor + 1) % len(m.contexts)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.contexts) > 0 {
				m.cursor = (m.cursor - 1 + len(m.contexts)) % len(m.contexts)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) tea.Cmd {
	svc, opts := m.service, m.opts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
		defer cancel()
		contexts := svc.RetrieveContext(ctx, query, opts.TopK)
		if opts.Engine == nil {
			return answerMsg{query: query, contexts: contexts}
		}
		reply, err := opts.Engine.Generate(ctx, query, contexts)
		return answerMsg{query: query, contexts: contexts, reply: reply, err: err}
	}
}

func (m Model) refresh() tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		return refreshMsg{err: svc.Refresh(context.Background())}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Exemplar")
	help := helpStyle.Render("enter: ask  up/down: browse examples  ctrl+r: refresh index  ctrl+c: quit")
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + help + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	var b strings.Builder
	if m.reply != "" {
		b.WriteString(titleStyle.Render("Reply"))
		b.WriteString("\n")
		if v, ok := extract.JSON(m.reply); ok {
			b.WriteString(extract.PrettyValue(v))
		} else {
			b.WriteString(m.reply)
		}
		b.WriteString("\n\n")
	}
	if len(m.contexts) == 0 {
		b.WriteString("No examples yet.")
		return b.String()
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Example %d/%d", m.cursor+1, len(m.contexts))))
	b.WriteString("\n")
	b.WriteString(highlightBestLine(m.contexts[m.cursor], m.lastQuery))
	return b.String()
}

func statusLine(st service.Status) string {
	if !st.Ready {
		if st.LastError != "" {
			return "Index unavailable: " + st.LastError
		}
		return "Index empty. Press ctrl+r to build it."
	}
	return fmt.Sprintf("Index ready: %d examples.", st.Entries)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightBestLine emphasizes the line sharing the most tokens with query.
func highlightBestLine(text, query string) string {
	lines := strings.Split(text, "\n")
	qTokens := embedding.TokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx, bestScore := -1, 0
	for i, l := range lines {
		if score := tokenOverlapScore(qTokens, l); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		lines[bestIdx] = highlightStyle.Render(lines[bestIdx])
	}
	return strings.Join(lines, "\n")
}

func tokenOverlapScore(queryTokens map[string]struct{}, line string) int {
	score := 0
	for t := range embedding.TokenSet(line) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
