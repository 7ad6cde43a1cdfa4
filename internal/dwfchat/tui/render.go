package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexcodex/dwfcopilot/framework"
)

// RenderMessage converts a Message into a styled string for the viewport.
func RenderMessage(msg Message, width int) string {
	var b strings.Builder
	b.WriteString(renderMessageHeader(msg))
	b.WriteString("\n")

	switch msg.Role {
	case RoleUser:
		b.WriteString(textStyle.Render(msg.Content.Text))
	case RoleAgent:
		b.WriteString(renderAgentMessage(msg))
	case RoleTool:
		b.WriteString(toolStyle.Render(msg.Content.Text))
	case RoleSystem:
		b.WriteString(dimStyle.Render(msg.Content.Text))
	}

	if msg.Metadata.Duration > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s | %d chars", formatDuration(msg.Metadata.Duration), msg.Metadata.Chars)))
	}

	boxWidth := max(0, width-4)
	return messageBoxStyle.Width(boxWidth).Render(b.String())
}

func renderMessageHeader(msg Message) string {
	timestamp := msg.Timestamp.Format("15:04:05")
	roleText := "System"
	switch msg.Role {
	case RoleUser:
		roleText = "You"
	case RoleAgent:
		roleText = "Copilot"
	case RoleTool:
		roleText = "Tool"
	}
	return headerStyle.Render(fmt.Sprintf("[%s] %s", timestamp, roleText))
}

func renderAgentMessage(msg Message) string {
	var b strings.Builder
	if msg.Content.Thinking != "" || msg.Content.Reasoning {
		b.WriteString(renderThinkingSection(msg.Content))
		b.WriteString("\n\n")
	}
	if msg.Content.Text != "" {
		b.WriteString(textStyle.Render(msg.Content.Text))
	}
	if msg.Content.Action != "" {
		if msg.Content.Text != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(renderDataPanel(msg.Content.Action, msg.Content.Data))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderThinkingSection(content MessageContent) string {
	expanded := content.Expanded["thinking"]
	header := "Reasoning"
	if content.Reasoning {
		header = "Reasoning..."
	}
	toggle := "[-]"
	if !expanded {
		toggle = "[+]"
	}
	title := sectionHeaderStyle.Render(header) + " " + dimStyle.Render(toggle)
	if !expanded {
		return title + "\n" + dimStyle.Render(fmt.Sprintf("%d chars, tab to expand", len(content.Thinking)))
	}
	return title + "\n" + thinkingStyle.Render(strings.TrimSpace(content.Thinking))
}

// renderDataPanel lists the payload arguments as key: value lines.
func renderDataPanel(action string, data []string) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Action: " + action))
	if len(data) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("(no data)"))
		return b.String()
	}
	for _, line := range data {
		b.WriteString("\n")
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			b.WriteString(line)
			continue
		}
		b.WriteString(dataKeyStyle.Render(key+":") + " " + value)
	}
	return b.String()
}

// renderHITLPrompt shows the pending request with its labels.
func renderHITLPrompt(req *framework.PendingHitlRequest, width int) string {
	if req == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(req.Message))
	if lines := framework.FormatToolArgs(req.Data); len(lines) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Join(lines, "\n")))
	}
	b.WriteString("\n")
	b.WriteString(buttonStyle.Render("[y] "+req.ConfirmText) + "  " + buttonStyle.Render("[n] "+req.CancelText))
	return hitlBoxStyle.Width(max(0, width-4)).Render(b.String())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
