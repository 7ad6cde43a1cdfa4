package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View composes the scrollable feed, prompt bar, and status bar.
func (m Model) View() string {
	if !m.ready || m.feed == nil {
		return "Initializing..."
	}
	parts := []string{m.feed.View()}
	if m.mode == ModeHITL && m.hitlRequest != nil {
		parts = append(parts, renderHITLPrompt(m.hitlRequest, m.width))
	}
	parts = append(parts, m.renderPromptBar(), m.statusBar.View(m.width, m.streaming, m.spinner.View()))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return welcomeStyle.Width(m.width).Render("Type a message to talk to the copilot, or /help for commands.")
	}
	rendered := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		rendered = append(rendered, RenderMessage(msg, m.width))
	}
	return strings.Join(rendered, "\n")
}

func (m Model) renderPromptBar() string {
	prefix := "> "
	hint := dimStyle.Render(" / for commands | tab toggles reasoning | ctrl+l to clear")

	switch m.mode {
	case ModeCommand:
		prefix = "/ "
		hint = dimStyle.Render(" Enter to run | Esc to cancel")
	case ModeHITL:
		return promptBarStyle.Width(m.width).Render(dimStyle.Render("y/enter to confirm | n/esc to cancel"))
	}

	return promptBarStyle.Width(m.width).Render(prefix + m.input.View() + " " + hint)
}
