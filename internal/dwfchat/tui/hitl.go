package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/dwfcopilot/copilot"
	"github.com/lexcodex/dwfcopilot/framework"
)

type hitlEventMsg struct{ event framework.HITLEvent }

func (m Model) hitlEvents() <-chan framework.HITLEvent {
	return m.hitlCh
}

func listenHITLEvents(ch <-chan framework.HITLEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return hitlEventMsg{event: ev}
	}
}

// handleHITLEvent reports lifecycle events of this session that the renderer
// does not already show.
func (m Model) handleHITLEvent(msg hitlEventMsg) (tea.Model, tea.Cmd) {
	next := listenHITLEvents(m.hitlCh)
	ev := msg.event
	if ev.SessionID != m.session.ID() || ev.Request == nil {
		return m, next
	}
	if ev.Type == framework.HITLEventSuperseded {
		m = m.addSystemMessage(fmt.Sprintf("Replaced pending request: %s", ev.Request.Action))
	}
	return m, next
}

// handleHITLMode answers the pending request: y/enter confirms, n/esc
// cancels. Other keys are ignored.
func (m Model) handleHITLMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		return m.confirmPending()
	case "n", "N", "esc":
		return m.cancelPending()
	}
	return m, nil
}

// hitlAnswer is a y/n pressed while the turn that raised the request was
// still streaming. It is applied when that turn ends.
type hitlAnswer int

const (
	answerNone hitlAnswer = iota
	answerConfirm
	answerCancel
)

func (m Model) confirmPending() (Model, tea.Cmd) {
	if m.streaming {
		return m.queueAnswer(answerConfirm), nil
	}
	m.mode = ModeNormal
	m.hitlRequest = nil
	m.hitlAnswer = answerNone
	return m.startTurn(func(ctx context.Context, r copilot.Renderer) error {
		_, err := m.chat.Confirm(ctx, m.session, r)
		return err
	})
}

func (m Model) cancelPending() (Model, tea.Cmd) {
	if m.streaming {
		return m.queueAnswer(answerCancel), nil
	}
	m.mode = ModeNormal
	m.hitlRequest = nil
	m.hitlAnswer = answerNone
	return m.startTurn(func(ctx context.Context, r copilot.Renderer) error {
		return m.chat.Cancel(ctx, m.session, r)
	})
}

func (m Model) queueAnswer(answer hitlAnswer) Model {
	if m.hitlAnswer == answer {
		return m
	}
	m.hitlAnswer = answer
	verb := "confirm"
	if answer == answerCancel {
		verb = "cancel"
	}
	return m.addSystemMessage(fmt.Sprintf("Will %s once the reply finishes.", verb)).refreshFeedContent()
}

// applyQueuedAnswer runs the answer queued during streaming, if any.
func (m Model) applyQueuedAnswer() (Model, tea.Cmd) {
	answer := m.hitlAnswer
	m.hitlAnswer = answerNone
	if m.hitlRequest == nil {
		return m, nil
	}
	switch answer {
	case answerConfirm:
		return m.confirmPending()
	case answerCancel:
		return m.cancelPending()
	}
	return m, nil
}
