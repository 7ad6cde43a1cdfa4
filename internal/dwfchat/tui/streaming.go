package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/dwfcopilot/framework"
)

// StreamEventMsg carries one demultiplexed stream event.
type StreamEventMsg struct {
	Event framework.StreamEvent
}

// StreamStartMsg signals that the copilot accepted the request.
type StreamStartMsg struct {
	SessionID string
}

// StreamCompleteMsg carries the final visible content of a reply.
type StreamCompleteMsg struct {
	Full string
}

// StreamErrorMsg wraps transport failures for display.
type StreamErrorMsg struct {
	Error error
}

// PayloadMsg carries the extracted payload of the finished reply.
type PayloadMsg struct {
	Extraction *framework.Extraction
}

// ToolResultMsg carries the result of a locally executed tool.
type ToolResultMsg struct {
	Action string
	Result string
}

// HitlRequestMsg asks the user to confirm or cancel.
type HitlRequestMsg struct {
	Request *framework.PendingHitlRequest
}

// NoticeMsg is an informational line for the feed.
type NoticeMsg struct {
	Text string
}

type turnDoneMsg struct {
	err      error
	duration time.Duration
}

// chanRenderer forwards renderer callbacks to the program.
type chanRenderer struct {
	ch chan<- tea.Msg
}

func (r *chanRenderer) OnStart(sessionID string)         { r.ch <- StreamStartMsg{SessionID: sessionID} }
func (r *chanRenderer) OnEvent(ev framework.StreamEvent) { r.ch <- StreamEventMsg{Event: ev} }
func (r *chanRenderer) OnError(err error)                { r.ch <- StreamErrorMsg{Error: err} }
func (r *chanRenderer) OnEnd(full string)                { r.ch <- StreamCompleteMsg{Full: full} }
func (r *chanRenderer) OnPayload(ext *framework.Extraction) {
	r.ch <- PayloadMsg{Extraction: ext}
}
func (r *chanRenderer) OnToolResult(action, result string) {
	r.ch <- ToolResultMsg{Action: action, Result: result}
}
func (r *chanRenderer) OnHitlRequest(req *framework.PendingHitlRequest) {
	r.ch <- HitlRequestMsg{Request: req}
}
func (r *chanRenderer) OnNotice(text string) { r.ch <- NoticeMsg{Text: text} }

// MessageBuilder accumulates streaming state until completion.
type MessageBuilder struct {
	startTime time.Time
	text      strings.Builder
	thinking  strings.Builder
	reasoning bool
}

// NewMessageBuilder constructs a builder stamped with the current time.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{startTime: time.Now()}
}

// AddEvent ingests the next stream event.
func (mb *MessageBuilder) AddEvent(ev framework.StreamEvent) {
	switch ev.Type {
	case framework.StreamContent:
		mb.text.WriteString(ev.Text)
	case framework.StreamThinking:
		mb.thinking.WriteString(ev.Text)
	case framework.StreamThinkingStart:
		mb.reasoning = true
	case framework.StreamThinkingEnd:
		mb.reasoning = false
	}
}

// Build finalizes the reply. full replaces the streamed text when set.
func (mb *MessageBuilder) Build(full string) Message {
	text := mb.text.String()
	if full != "" {
		text = full
	}
	return Message{
		ID:        generateID(),
		Timestamp: mb.startTime,
		Role:      RoleAgent,
		Content: MessageContent{
			Text:     text,
			Thinking: mb.thinking.String(),
			Expanded: map[string]bool{"thinking": false, "data": true},
		},
		Metadata: MessageMetadata{Duration: time.Since(mb.startTime), Chars: len(text)},
	}
}

// BuildPartial renders the in-progress reply.
func (mb *MessageBuilder) BuildPartial() Message {
	return Message{
		ID:        "streaming",
		Timestamp: mb.startTime,
		Role:      RoleAgent,
		Content: MessageContent{
			Text:      mb.text.String(),
			Thinking:  mb.thinking.String(),
			Reasoning: mb.reasoning,
			Expanded:  map[string]bool{"thinking": true, "data": true},
		},
	}
}

// listenToStream adapts the renderer channel to Bubble Tea commands.
func listenToStream(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
