package framework

import "strings"

// Default reasoning span markers emitted by the agent.
const (
	DefaultThinkStart = "<think>"
	DefaultThinkEnd   = "</think>"
)

// StreamEventType enumerates the typed events produced by the demultiplexer.
type StreamEventType string

const (
	StreamContent       StreamEventType = "content"
	StreamThinking      StreamEventType = "thinking"
	StreamThinkingStart StreamEventType = "thinking_start"
	StreamThinkingEnd   StreamEventType = "thinking_end"
)

// StreamEvent is one unit of incremental output. Text carries the delta and
// Full the cumulative text of the sub-stream it belongs to; both are empty for
// the start/end markers.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Text string          `json:"text,omitempty"`
	Full string          `json:"full,omitempty"`
}

// Markers delimit reasoning spans inside visible agent output.
type Markers struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// DefaultMarkers returns the <think></think> pair.
func DefaultMarkers() Markers {
	return Markers{Start: DefaultThinkStart, End: DefaultThinkEnd}
}

func (m Markers) normalized() Markers {
	if m.Start == "" {
		m.Start = DefaultThinkStart
	}
	if m.End == "" {
		m.End = DefaultThinkEnd
	}
	return m
}

// StreamState accumulates the visible and reasoning sub-streams of a single
// request. The accumulators only grow until Reset clears both together.
//
// A marker split across two fragments is still recognised: a fragment tail that
// could be the beginning of the awaited marker is held back until the next
// fragment, or until Flush at the end of the stream.
type StreamState struct {
	markers    Markers
	content    strings.Builder
	thinking   strings.Builder
	isThinking bool
	held       string
}

// NewStreamState builds a state machine using the supplied markers. Empty
// markers fall back to the defaults.
func NewStreamState(markers Markers) *StreamState {
	return &StreamState{markers: markers.normalized()}
}

// Markers reports the markers in use.
func (s *StreamState) Markers() Markers {
	return s.markers
}

// Reset clears both accumulators and leaves reasoning mode.
func (s *StreamState) Reset() {
	s.content.Reset()
	s.thinking.Reset()
	s.isThinking = false
	s.held = ""
}

// Content returns the accumulated visible text.
func (s *StreamState) Content() string { return s.content.String() }

// Thinking returns the accumulated reasoning text.
func (s *StreamState) Thinking() string { return s.thinking.String() }

// IsThinking reports whether newly decoded text currently lands in the
// reasoning accumulator.
func (s *StreamState) IsThinking() bool { return s.isThinking }

// ProcessChunk splits chunk into content and reasoning deltas and returns the
// resulting events in stream order. Every iteration consumes either a marker or
// the rest of the chunk. Empty deltas produce no event.
func (s *StreamState) ProcessChunk(chunk string) []StreamEvent {
	var events []StreamEvent
	remaining := s.held + chunk
	s.held = ""
	for len(remaining) > 0 {
		marker := s.markers.Start
		if s.isThinking {
			marker = s.markers.End
		}
		idx := strings.Index(remaining, marker)
		if idx < 0 {
			keep := partialSuffix(remaining, marker)
			s.held = remaining[len(remaining)-keep:]
			events = s.appendDelta(events, remaining[:len(remaining)-keep])
			break
		}
		events = s.appendDelta(events, remaining[:idx])
		if s.isThinking {
			s.isThinking = false
			events = append(events, StreamEvent{Type: StreamThinkingEnd})
		} else {
			s.isThinking = true
			events = append(events, StreamEvent{Type: StreamThinkingStart})
		}
		remaining = remaining[idx+len(marker):]
	}
	return events
}

// Flush releases text held back as a possible marker prefix. It is called
// once the stream has ended; the held text is then ordinary text.
func (s *StreamState) Flush() []StreamEvent {
	held := s.held
	s.held = ""
	return s.appendDelta(nil, held)
}

func (s *StreamState) appendDelta(events []StreamEvent, text string) []StreamEvent {
	if text == "" {
		return events
	}
	if s.isThinking {
		s.thinking.WriteString(text)
		return append(events, StreamEvent{Type: StreamThinking, Text: text, Full: s.thinking.String()})
	}
	s.content.WriteString(text)
	return append(events, StreamEvent{Type: StreamContent, Text: text, Full: s.content.String()})
}

// partialSuffix returns the length of the longest proper prefix of marker that
// text ends with.
func partialSuffix(text, marker string) int {
	n := len(marker) - 1
	if n > len(text) {
		n = len(text)
	}
	for ; n > 0; n-- {
		if strings.HasPrefix(marker, text[len(text)-n:]) {
			return n
		}
	}
	return 0
}
