package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/client"
	"docchat/internal/models"
)

// Model is the Bubble Tea model for the document chat client. It owns the
// conversation cache for exactly one document view; quitting tears the
// cache down with it.
type Model struct {
	sender *client.Sender
	cache  *client.ConversationCache

	input    textinput.Model
	viewport viewport.Model
	status   string
	failed   bool
	ready    bool
}

func New(sender *client.Sender, cache *client.ConversationCache) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about this document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		sender:   sender,
		cache:    cache,
		input:    ti,
		viewport: vp,
		status:   "Connected. Ask a question.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved - ch
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderConversation())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			question := strings.TrimSpace(m.input.Value())
			if question != "" {
				m.cache.SetInput(question)
				err := client.RunExchange(context.Background(), m.sender, m.cache, question)
				if err != nil {
					m.status = "Error: " + err.Error() + " (your question was kept in the input)"
					m.failed = true
					m.input.SetValue(m.cache.Input())
				} else {
					m.status = "Answered."
					m.failed = false
					m.input.SetValue("")
				}
				m.viewport.SetContent(m.renderConversation())
				m.viewport.GotoBottom()
				return m, nil
			}
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

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docchat") + " " + hintStyle.Render(m.cache.DocumentID())
	conversation := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}
	return header + "\n" + conversation + "\n" + input + "\n" + status
}

// renderConversation shows the cached page oldest-first, so the newest
// turn sits at the bottom next to the input.
func (m Model) renderConversation() string {
	turns := m.cache.Turns()
	if len(turns) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	lines := make([]string, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		label := assistantLabelStyle.Render("assistant")
		if t.Role == models.RoleUser {
			label = userLabelStyle.Render("you")
		}
		text := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2)).Render(t.Text)
		lines = append(lines, label, text, "")
	}
	return strings.Join(lines, "\n")
}
