package framework

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"goa.design/clue/log"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventRequestStart     EventType = "request_start"
	EventRequestFinish    EventType = "request_finish"
	EventRequestError     EventType = "request_error"
	EventEnvelopeSkipped  EventType = "envelope_skipped"
	EventPayloadExtracted EventType = "payload_extracted"
	EventPayloadAbsent    EventType = "payload_absent"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventToolError        EventType = "tool_error"
	EventToolMissing      EventType = "tool_missing"
	EventHITLRequested    EventType = "hitl_requested"
	EventHITLConfirmed    EventType = "hitl_confirmed"
	EventHITLCancelled    EventType = "hitl_cancelled"
	EventHITLSuperseded   EventType = "hitl_superseded"
)

// Event captures structured telemetry data.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Telemetry receives diagnostics from every protocol layer. Sinks observe only;
// they never influence control flow.
type Telemetry interface {
	Emit(ctx context.Context, event Event)
}

// Emit forwards event to t, stamping the time when missing. A nil sink is
// ignored.
func Emit(ctx context.Context, t Telemetry, event Event) {
	if t == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	t.Emit(ctx, event)
}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(ctx context.Context, event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON to a file so that
// external tools can tail the stream.
type JSONFileTelemetry struct {
	path string
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{
		path: path,
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(_ context.Context, event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		j.enc = nil
		return err
	}
	return nil
}

// LoggerTelemetry writes events through the clue logger carried by ctx.
// Envelope skips and other high-volume diagnostics are logged at debug level.
type LoggerTelemetry struct{}

// Emit logs the event.
func (LoggerTelemetry) Emit(ctx context.Context, event Event) {
	fields := []log.Fielder{
		log.KV{K: "event", V: string(event.Type)},
	}
	if event.SessionID != "" {
		fields = append(fields, log.KV{K: "session", V: event.SessionID})
	}
	if event.Tool != "" {
		fields = append(fields, log.KV{K: "tool", V: event.Tool})
	}
	if event.Message != "" {
		fields = append(fields, log.KV{K: "msg", V: event.Message})
	}
	for k, v := range event.Metadata {
		fields = append(fields, log.KV{K: k, V: v})
	}
	switch event.Type {
	case EventEnvelopeSkipped, EventPayloadAbsent, EventToolCall:
		log.Debug(ctx, fields...)
	case EventRequestError, EventToolError:
		log.Warn(ctx, fields...)
	default:
		log.Info(ctx, fields...)
	}
}

// MetricsTelemetry counts events per type with an OpenTelemetry counter. The
// global MeterProvider is used; it is a no-op until one is configured.
type MetricsTelemetry struct {
	counter metric.Int64Counter
}

// NewMetricsTelemetry creates the dwfcopilot.events counter.
func NewMetricsTelemetry() (*MetricsTelemetry, error) {
	meter := otel.Meter("github.com/lexcodex/dwfcopilot/framework")
	counter, err := meter.Int64Counter(
		"dwfcopilot.events",
		metric.WithDescription("Protocol events by type"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsTelemetry{counter: counter}, nil
}

// Emit increments the counter for the event type.
func (m *MetricsTelemetry) Emit(ctx context.Context, event Event) {
	if m == nil || m.counter == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("event.type", string(event.Type))}
	if reason, ok := event.Metadata["reason"].(string); ok {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// CounterTelemetry keeps in-process counts per event type. The chat shell
// reads it for its status bar.
type CounterTelemetry struct {
	mu     sync.Mutex
	counts map[EventType]int
}

// NewCounterTelemetry builds an empty counter sink.
func NewCounterTelemetry() *CounterTelemetry {
	return &CounterTelemetry{counts: make(map[EventType]int)}
}

// Emit increments the count for the event type.
func (c *CounterTelemetry) Emit(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[event.Type]++
}

// Count returns how many events of the given type were seen.
func (c *CounterTelemetry) Count(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}
