package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/dwfcopilot/framework"
)

// Init fulfills the Bubble Tea Model interface.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, listenHITLEvents(m.hitlEvents()))
}

// Update applies incoming Bubble Tea messages to mutate the Model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "ctrl+l":
			m.messages = nil
			return m.refreshFeedContent(), nil
		}
		switch m.mode {
		case ModeCommand:
			return m.handleCommandMode(msg)
		case ModeHITL:
			return m.handleHITLMode(msg)
		default:
			return m.handleNormalMode(msg)
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case StreamStartMsg:
		m.streamBuf = NewMessageBuilder()
		return m.continueStream()
	case StreamEventMsg:
		return m.handleStreamEvent(msg)
	case StreamErrorMsg:
		m.renderedErr = msg.Error
		m = m.addSystemMessage(fmt.Sprintf("agent error: %v", msg.Error))
		return m.continueStream()
	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)
	case PayloadMsg:
		return m.handlePayload(msg)
	case ToolResultMsg:
		m = m.addMessage(RoleTool, fmt.Sprintf("%s: %s", msg.Action, msg.Result))
		return m.continueStream()
	case HitlRequestMsg:
		m.mode = ModeHITL
		m.hitlRequest = msg.Request
		m.input.SetValue("")
		return m.continueStream()
	case NoticeMsg:
		m = m.addSystemMessage(msg.Text)
		return m.continueStream()
	case turnDoneMsg:
		return m.handleTurnDone(msg)
	case hitlEventMsg:
		return m.handleHITLEvent(msg)
	}
	return m, nil
}

// handleResize adjusts the feed/input layout on terminal resize events.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	statusBarHeight := 1
	promptBarHeight := 1
	feedHeight := max(1, msg.Height-statusBarHeight-promptBarHeight)

	if !m.ready {
		v := viewport.New(msg.Width, feedHeight)
		m.feed = &v
		m.ready = true
	} else {
		m.feed.Width = msg.Width
		m.feed.Height = feedHeight
	}
	m.input.Width = max(10, msg.Width-4)
	return m.refreshFeedContent(), nil
}

func (m Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes && msg.String() == "/" && strings.TrimSpace(m.input.Value()) == "" {
		m.mode = ModeCommand
		m.input.SetValue("/")
		m.input.CursorEnd()
		return m, nil
	}
	switch msg.String() {
	case "enter":
		return m.submitPrompt()
	case "up", "down", "pgup", "pgdown", "home", "end":
		var cmd tea.Cmd
		*m.feed, cmd = m.feed.Update(msg)
		m.autoFollow = m.feed.AtBottom()
		return m, cmd
	case "tab":
		return m.toggleReasoning(), nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		raw := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		m.mode = ModeNormal
		if raw == "" || raw == "/" {
			return m, nil
		}
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		name, args := parseCommand(raw)
		return handleCommand(m, name, args)
	case "esc":
		m.mode = ModeNormal
		m.input.SetValue("")
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) handleStreamEvent(msg StreamEventMsg) (tea.Model, tea.Cmd) {
	if m.streamBuf == nil {
		m.streamBuf = NewMessageBuilder()
	}
	m.streamBuf.AddEvent(msg.Event)
	m = m.replaceStreaming(m.streamBuf.BuildPartial())
	return m.continueStream()
}

func (m Model) handleStreamComplete(msg StreamCompleteMsg) (tea.Model, tea.Cmd) {
	if m.streamBuf == nil {
		m.streamBuf = NewMessageBuilder()
	}
	final := m.streamBuf.Build(msg.Full)
	m.streamBuf = nil
	if final.Content.Text == "" && final.Content.Thinking == "" {
		m = m.dropStreaming()
	} else {
		m = m.replaceStreaming(final)
	}
	m.statusBar.replies++
	m.statusBar.lastUpdate = time.Now()
	return m.continueStream()
}

// handlePayload swaps the reply text for the residual display text and
// attaches the data panel.
func (m Model) handlePayload(msg PayloadMsg) (tea.Model, tea.Cmd) {
	ext := msg.Extraction
	if ext == nil || ext.Payload == nil {
		return m.continueStream()
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		entry := &m.messages[i]
		if entry.Role != RoleAgent {
			continue
		}
		entry.Content.Text = ext.Residual
		entry.Content.Action = ext.Payload.Action
		if ext.Payload.HitlAction != "" {
			entry.Content.Action = ext.Payload.HitlAction
		}
		entry.Content.Data = framework.FormatToolArgs(ext.Payload.Arguments())
		break
	}
	return m.continueStream()
}

func (m Model) handleTurnDone(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	m.streaming = false
	m.streamCh = nil
	m.streamBuf = nil
	m = m.dropStreaming()
	m.statusBar.duration += msg.duration
	if msg.err != nil && !errors.Is(msg.err, m.renderedErr) {
		m = m.addSystemMessage(fmt.Sprintf("%v", msg.err))
	}
	m.renderedErr = nil
	m = m.refreshFeedContent()
	if m.hitlAnswer != answerNone {
		next, cmd := m.applyQueuedAnswer()
		return next.refreshFeedContent(), cmd
	}
	return m, nil
}

func (m Model) continueStream() (tea.Model, tea.Cmd) {
	m = m.refreshFeedContent()
	if m.streamCh != nil {
		return m, listenToStream(m.streamCh)
	}
	return m, nil
}

func (m Model) replaceStreaming(msg Message) Model {
	if n := len(m.messages); n > 0 && m.messages[n-1].ID == "streaming" {
		m.messages[n-1] = msg
	} else {
		m.messages = append(m.messages, msg)
	}
	return m
}

func (m Model) dropStreaming() Model {
	if n := len(m.messages); n > 0 && m.messages[n-1].ID == "streaming" {
		m.messages = m.messages[:n-1]
	}
	return m
}

func (m Model) addMessage(role MessageRole, text string) Model {
	m.messages = append(m.messages, Message{
		ID:        generateID(),
		Timestamp: time.Now(),
		Role:      role,
		Content:   MessageContent{Text: text},
	})
	return m.refreshFeedContent()
}

func (m Model) addSystemMessage(text string) Model {
	return m.addMessage(RoleSystem, text)
}

func (m Model) toggleReasoning() Model {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := &m.messages[i]
		if msg.Role != RoleAgent || msg.Content.Thinking == "" {
			continue
		}
		if msg.Content.Expanded == nil {
			msg.Content.Expanded = map[string]bool{}
		}
		msg.Content.Expanded["thinking"] = !msg.Content.Expanded["thinking"]
		break
	}
	return m.refreshFeedContent()
}
