package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tablerag/internal/engine"
)

// EnginePort is the TUI-facing subset of the engine.
type EnginePort interface {
	Answer(ctx context.Context, query string, opts engine.QueryOptions) engine.AnswerResult
}

type exchange struct {
	question string
	answer   engine.AnswerResult
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	eng        EnginePort
	input      textinput.Model
	viewport   viewport.Model
	history    []exchange
	banner     string
	status     string
	ready      bool
	searchOnly bool
}

// New creates a new TUI model instance. The banner is shown above the chat
// transcript, typically the ingest report.
func New(eng EnginePort, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your data and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{eng: eng, input: ti, viewport: vp, banner: banner, status: "Ready. Tab toggles search-only mode."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + banner
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				res := m.eng.Answer(context.Background(), q, engine.QueryOptions{IncludeContext: !m.searchOnly})
				m.history = append(m.history, exchange{question: q, answer: res})
				m.status = statusLine(res)
				m.input.SetValue("")
				m.viewport.SetContent(m.renderTranscript())
				m.viewport.GotoBottom()
				return m, nil
			}
		case "tab":
			m.searchOnly = !m.searchOnly
			if m.searchOnly {
				m.status = "Search-only mode: raw matches, no LLM call."
			} else {
				m.status = "Grounded mode: answers generated from retrieved fragments."
			}
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the chat transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("TableRAG")
	banner := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.banner)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + banner + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + ex.question))
		b.WriteString("\n")
		if ex.answer.Error != "" {
			b.WriteString(errorStyle.Render("Error: " + ex.answer.Error))
			continue
		}
		b.WriteString(ex.answer.Content)
		if footer := answerFooter(ex.answer); footer != "" {
			b.WriteString("\n")
			b.WriteString(footerStyle.Render(footer))
		}
	}
	return b.String()
}

func answerFooter(res engine.AnswerResult) string {
	var parts []string
	if res.ResultCount > 0 {
		parts = append(parts, fmt.Sprintf("%d fragments from %s", res.ResultCount, strings.Join(res.Sources, ", ")))
	}
	if res.Provider != "" {
		parts = append(parts, fmt.Sprintf("via %s/%s", res.Provider, res.Model))
	}
	if res.Degraded {
		parts = append(parts, "degraded search")
	}
	if res.Validation != nil && !res.Validation.IsValid {
		parts = append(parts, fmt.Sprintf("validation confidence %.1f", res.Validation.Confidence))
	}
	return strings.Join(parts, " | ")
}

func statusLine(res engine.AnswerResult) string {
	if res.Error != "" {
		return "Error: " + res.Error
	}
	return fmt.Sprintf("Answered using %d fragments (threshold %.2f).", res.ResultCount, res.Threshold)
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	footerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
