package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/dwfcopilot/copilot"
	"github.com/lexcodex/dwfcopilot/framework"
	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

// Run starts the chat shell on a fresh session of rt.
func Run(ctx context.Context, rt *runtimesvc.Runtime) error {
	if rt == nil {
		return fmt.Errorf("runtime is required")
	}
	model := NewModel(ctx, rt)
	program := tea.NewProgram(
		model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := program.Run()
	return err
}

// chatService is the subset of *copilot.Copilot the shell drives.
type chatService interface {
	SendMessage(ctx context.Context, sess *framework.Session, text string, r copilot.Renderer) (*copilot.Turn, error)
	Confirm(ctx context.Context, sess *framework.Session, r copilot.Renderer) (*copilot.Turn, error)
	Cancel(ctx context.Context, sess *framework.Session, r copilot.Renderer) error
}

// Model implements tea.Model for the chat shell: a scrollable feed, the prompt
// bar and the status bar.
type Model struct {
	ctx     context.Context
	runtime *runtimesvc.Runtime
	chat    chatService
	session *framework.Session

	feed    *viewport.Model
	input   textinput.Model
	spinner spinner.Model

	statusBar StatusBar

	messages []Message

	width  int
	height int
	ready  bool

	mode InputMode

	streaming bool
	streamBuf *MessageBuilder
	streamCh  chan tea.Msg

	hitlRequest *framework.PendingHitlRequest
	hitlAnswer  hitlAnswer
	hitlCh      <-chan framework.HITLEvent
	renderedErr error

	autoFollow bool
}

// InputMode tracks the role of the prompt bar.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeCommand
	ModeHITL
)

// Message is one feed entry.
type Message struct {
	ID        string
	Timestamp time.Time
	Role      MessageRole
	Content   MessageContent
	Metadata  MessageMetadata
}

// MessageRole identifies who produced a feed entry.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleTool   MessageRole = "tool"
	RoleSystem MessageRole = "system"
)

// MessageContent holds the visible reply, its reasoning span and the data
// panel built from the extracted payload.
type MessageContent struct {
	Text      string
	Thinking  string
	Reasoning bool
	Data      []string
	Action    string
	Expanded  map[string]bool
}

// MessageMetadata carries per-reply timing.
type MessageMetadata struct {
	Duration time.Duration
	Chars    int
}

// NewModel builds the shell for rt with a new session.
func NewModel(ctx context.Context, rt *runtimesvc.Runtime) Model {
	m := newModel(ctx, rt.Copilot, rt.NewSession())
	m.runtime = rt
	m.statusBar.workspace = rt.Config.Workspace
	m.statusBar.endpoint = rt.Config.Endpoint
	m.statusBar.counters = rt.Counters
	m.hitlCh, _ = rt.Copilot.Controller.Subscribe(16)
	return m
}

func newModel(ctx context.Context, chat chatService, sess *framework.Session) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	input := textinput.New()
	input.Placeholder = "Ask the copilot or /help for commands"
	input.Focus()

	v := viewport.New(0, 0)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	return Model{
		ctx:     ctx,
		chat:    chat,
		session: sess,
		feed:    &v,
		input:   input,
		spinner: sp,
		statusBar: StatusBar{
			session:    sess.ID(),
			lastUpdate: time.Now(),
		},
		messages:   []Message{},
		mode:       ModeNormal,
		autoFollow: true,
	}
}

// submitPrompt sends the prompt bar contents to the copilot.
func (m Model) submitPrompt() (Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	if m.streaming {
		return m.addSystemMessage("Still waiting for the previous reply."), nil
	}

	m.messages = append(m.messages, Message{
		ID:        generateID(),
		Timestamp: time.Now(),
		Role:      RoleUser,
		Content:   MessageContent{Text: value},
	})
	m.input.SetValue("")
	m.mode = ModeNormal
	return m.startTurn(func(ctx context.Context, r copilot.Renderer) error {
		_, err := m.chat.SendMessage(ctx, m.session, value, r)
		return err
	})
}

// startTurn runs fn on its own goroutine with a renderer that forwards every
// callback to the program as a tea.Msg.
func (m Model) startTurn(fn func(context.Context, copilot.Renderer) error) (Model, tea.Cmd) {
	m.streaming = true
	m.streamBuf = nil
	ch := make(chan tea.Msg, 64)
	m.streamCh = ch
	m = m.refreshFeedContent()

	ctx := m.ctx
	go func() {
		defer close(ch)
		start := time.Now()
		err := fn(ctx, &chanRenderer{ch: ch})
		ch <- turnDoneMsg{err: err, duration: time.Since(start)}
	}()
	return m, listenToStream(ch)
}

// generateID produces a lightweight unique identifier for feed entries.
func generateID() string {
	return fmt.Sprintf("msg-%d", time.Now().UnixNano())
}

// refreshFeedContent ensures the viewport reflects the latest messages.
func (m Model) refreshFeedContent() Model {
	if !m.ready || m.feed == nil {
		return m
	}
	m.feed.SetContent(m.renderMessages())
	if m.autoFollow {
		m.feed.GotoBottom()
	}
	return m
}
