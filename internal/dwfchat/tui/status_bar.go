package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/dwfcopilot/framework"
)

// StatusBar renders workspace, endpoint and session metadata plus activity
// counters.
type StatusBar struct {
	workspace  string
	endpoint   string
	session    string
	replies    int
	duration   time.Duration
	lastUpdate time.Time
	counters   *framework.CounterTelemetry
}

// View renders the bar; spin is shown while a reply is streaming.
func (s StatusBar) View(width int, streaming bool, spin string) string {
	left := fmt.Sprintf("%s | %s | %s",
		truncate(s.workspace, 20),
		truncate(s.endpoint, 40),
		truncate(s.session, 8),
	)
	if streaming {
		left = spin + " " + left
	}
	right := fmt.Sprintf("%d replies | %s", s.replies, formatDuration(s.duration))
	if s.counters != nil {
		right = fmt.Sprintf("%d tools | %d skipped | %s",
			s.counters.Count(framework.EventToolResult),
			s.counters.Count(framework.EventEnvelopeSkipped),
			right,
		)
	}
	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}
	return statusStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:1]
	}
	return s[:n-1] + "…"
}
