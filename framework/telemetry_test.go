package framework

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileTelemetryWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := NewJSONFileTelemetry(path)
	require.NoError(t, err)

	ctx := context.Background()
	Emit(ctx, sink, Event{Type: EventRequestStart, SessionID: "s1"})
	Emit(ctx, sink, Event{Type: EventEnvelopeSkipped, Metadata: map[string]any{"reason": "malformed"}})
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, EventRequestStart, events[0].Type)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "malformed", events[1].Metadata["reason"])
}

func TestMultiplexTelemetryFansOut(t *testing.T) {
	a, b := NewCounterTelemetry(), NewCounterTelemetry()
	mux := MultiplexTelemetry{Sinks: []Telemetry{a, nil, b}}
	Emit(context.Background(), mux, Event{Type: EventToolCall})

	assert.Equal(t, 1, a.Count(EventToolCall))
	assert.Equal(t, 1, b.Count(EventToolCall))
}

func TestEmitIgnoresNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, Event{Type: EventToolCall})
	})
}

func TestMetricsAndLoggerTelemetryDoNotPanic(t *testing.T) {
	metrics, err := NewMetricsTelemetry()
	require.NoError(t, err)
	ctx := context.Background()
	assert.NotPanics(t, func() {
		metrics.Emit(ctx, Event{Type: EventEnvelopeSkipped, Metadata: map[string]any{"reason": "not_item"}})
		LoggerTelemetry{}.Emit(ctx, Event{Type: EventToolError, Tool: "x", Message: "boom"})
	})
}
