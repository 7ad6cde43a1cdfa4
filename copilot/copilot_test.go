package copilot

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/dwfcopilot/framework"
	"github.com/lexcodex/dwfcopilot/server"
	"github.com/lexcodex/dwfcopilot/transport"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// scriptedStreamer replays fixed items and records requests.
type scriptedStreamer struct {
	mu       sync.Mutex
	items    []string
	err      error
	requests []*transport.Request
	calls    atomic.Int32
	// gate, when set, blocks Stream until closed.
	gate chan struct{}
}

func (s *scriptedStreamer) Stream(ctx context.Context, req *transport.Request, onItem func(string)) error {
	s.calls.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.gate != nil {
		<-s.gate
	}
	for _, item := range s.items {
		onItem(item)
	}
	return s.err
}

func newTestCopilot(t *testing.T, streamer Streamer) (*Copilot, *[]string) {
	t.Helper()
	ctx := context.Background()
	registry := framework.NewToolRegistry()
	var calls []string
	handler := func(name string) framework.ToolHandler {
		return func(ctx context.Context, args map[string]any, env any) (string, error) {
			calls = append(calls, name)
			return name + " ok", nil
		}
	}
	require.NoError(t, registry.Register(ctx, framework.ToolDefinition{Name: "update_row", Category: framework.CategoryDirect}, handler("update_row")))
	require.NoError(t, registry.Register(ctx, framework.ToolDefinition{Name: "delete_row", Category: framework.CategoryConfirmRequired}, handler("delete_row")))
	return New(registry, streamer, framework.NewCounterTelemetry()), &calls
}

func TestSendMessageEnvelopeScenario(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{"Hi <think>", "reasoning text</think> world"}}
	c, _ := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	rec := &Recorder{}

	turn, err := c.SendMessage(context.Background(), sess, "hello", rec)
	require.NoError(t, err)

	assert.Equal(t, "Hi  world", turn.Content)
	assert.Equal(t, "reasoning text", turn.Thinking)
	assert.Equal(t, "Hi  world", turn.Residual)
	assert.Equal(t, framework.DecisionNone, turn.Decision.Kind)
	assert.Equal(t, 1, rec.Starts)
	assert.Equal(t, []string{"Hi  world"}, rec.Ends)
	assert.False(t, sess.IsProcessing())

	req := streamer.requests[0]
	assert.Equal(t, "hello", req.ChatInput)
	assert.Equal(t, sess.ID(), req.SessionID)
	assert.Equal(t, map[string]any{}, req.AppState)
	assert.Len(t, req.Tools.Direct, 1)
	assert.Len(t, req.Tools.ConfirmRequired, 1)
	assert.False(t, req.IsResume())
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	streamer := &scriptedStreamer{}
	c, _ := newTestCopilot(t, streamer)
	_, err := c.SendMessage(context.Background(), framework.NewSession(framework.Markers{}), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, int32(0), streamer.calls.Load())
}

func TestSendMessageBusyMakesOneNetworkCall(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{"slow"}, gate: make(chan struct{})}
	c, _ := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())

	done := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(context.Background(), sess, "first", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return streamer.calls.Load() == 1 }, timeout, tick)
	assert.True(t, sess.IsProcessing())

	_, err := c.SendMessage(context.Background(), sess, "second", nil)
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(streamer.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), streamer.calls.Load())
	assert.False(t, sess.IsProcessing())
}

func TestSendMessageTransportErrorStillEnds(t *testing.T) {
	boom := errors.New("connection reset")
	streamer := &scriptedStreamer{items: []string{"partial <think>half"}, err: boom}
	c, _ := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	rec := &Recorder{}

	turn, err := c.SendMessage(context.Background(), sess, "hi", rec)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, turn)
	assert.Equal(t, "partial ", turn.Content)
	assert.Equal(t, []error{boom}, rec.Errors)
	assert.Equal(t, []string{"partial "}, rec.Ends)
	assert.False(t, sess.IsProcessing())
	assert.True(t, sess.State().IsThinking())
}

func TestSendMessageAutoExecutes(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{`Updating. {"action":"update_row","data":{"id":"7"}}`}}
	c, calls := newTestCopilot(t, streamer)
	rec := &Recorder{}

	turn, err := c.SendMessage(context.Background(), framework.NewSession(framework.DefaultMarkers()), "go", rec)
	require.NoError(t, err)

	assert.Equal(t, framework.DecisionAutoExecute, turn.Decision.Kind)
	assert.Equal(t, "Updating. ", turn.Residual)
	assert.Equal(t, []string{"update_row"}, *calls)
	require.Len(t, rec.Payloads, 1)
	assert.Equal(t, []ToolResult{{Action: "update_row", Result: "update_row ok"}}, rec.Results)
}

func TestLocalConfirmWinsAndConfirmExecutes(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{
		"```json\n{\"action\":\"delete_row\",\"ui_request\":\"confirm\",\"hitl_action\":\"remote_delete\"}\n```",
	}}
	c, calls := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	rec := &Recorder{}
	ctx := context.Background()

	turn, err := c.SendMessage(ctx, sess, "delete it", rec)
	require.NoError(t, err)
	assert.Equal(t, framework.DecisionLocalConfirm, turn.Decision.Kind)
	require.Len(t, rec.Requests, 1)
	assert.Equal(t, "delete_row", rec.Requests[0].Action)
	assert.Empty(t, *calls)

	_, err = c.Confirm(ctx, sess, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete_row"}, *calls)
	assert.Equal(t, int32(1), streamer.calls.Load(), "local confirmation makes no network call")
	assert.Nil(t, sess.Pending())
}

func TestCancelRendersNotice(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{`{"action":"delete_row"}`}}
	c, calls := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	rec := &Recorder{}
	ctx := context.Background()

	_, err := c.SendMessage(ctx, sess, "delete", rec)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx, sess, rec))
	assert.Equal(t, []string{"Operation cancelled: delete_row"}, rec.Notices)
	assert.Empty(t, *calls)
	assert.ErrorIs(t, c.Cancel(ctx, sess, rec), framework.ErrNoPendingRequest)
	assert.Equal(t, int32(1), streamer.calls.Load())
}

func TestServerConfirmResumesThroughTransport(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{
		"Need approval ```json\n{\"ui_request\":\"confirm\",\"hitl_action\":\"archive\",\"data\":{\"sheet\":\"Q3\"}}\n```",
	}}
	c, calls := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	ctx := context.Background()

	turn, err := c.SendMessage(ctx, sess, "archive", nil)
	require.NoError(t, err)
	require.Equal(t, framework.DecisionServerConfirm, turn.Decision.Kind)
	pending := sess.Pending()
	require.NotNil(t, pending)

	streamer.items = []string{"Archived."}
	turn, err = c.Confirm(ctx, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, "Archived.", turn.Content)
	assert.Empty(t, *calls)
	assert.Nil(t, sess.Pending())

	require.Len(t, streamer.requests, 2)
	resume := streamer.requests[1]
	assert.Equal(t, transport.HitlConfirmed, resume.HitlResponse)
	assert.Equal(t, "archive", resume.Action)
	assert.Equal(t, map[string]any{"sheet": "Q3"}, resume.Data)
	assert.Same(t, pending, resume.HitlRequest)
	assert.Equal(t, "", resume.ChatInput)
}

func TestServerConfirmNotReportedWhileSessionBusy(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{`{"ui_request":"confirm","hitl_action":"archive"}`}}
	c, _ := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	ctx := context.Background()

	_, err := c.SendMessage(ctx, sess, "archive", nil)
	require.NoError(t, err)
	pending := sess.Pending()
	require.NotNil(t, pending)

	events, cancel := c.Controller.Subscribe(8)
	defer cancel()
	require.True(t, sess.TryBegin())
	_, err = c.send(ctx, sess, &transport.Request{HitlResponse: transport.HitlConfirmed, Action: "archive"}, nil)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Same(t, pending, sess.Pending())
	assert.Empty(t, events)
	sess.End()

	streamer.items = []string{"Archived."}
	_, err = c.Confirm(ctx, sess, nil)
	require.NoError(t, err)
	ev := <-events
	assert.Equal(t, framework.HITLEventConfirmed, ev.Type)
	assert.Same(t, pending, ev.Request)
}

func TestServerCancelMakesNoNetworkCall(t *testing.T) {
	streamer := &scriptedStreamer{items: []string{`{"ui_request":"confirm","hitl_action":"archive"}`}}
	c, _ := newTestCopilot(t, streamer)
	sess := framework.NewSession(framework.DefaultMarkers())
	ctx := context.Background()

	_, err := c.SendMessage(ctx, sess, "archive", nil)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx, sess, nil))
	assert.Equal(t, int32(1), streamer.calls.Load())
}

func TestEndToEndAgainstAgentStub(t *testing.T) {
	stub := server.NewAgentStub(nil)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	client := transport.NewClient(srv.URL+server.DefaultPath, 0)
	c, calls := newTestCopilot(t, client)
	c.AppState = func() any { return map[string]any{"page": "inventory"} }
	sess := framework.NewSession(framework.DefaultMarkers())
	ctx := context.Background()
	rec := &Recorder{}

	turn, err := c.SendMessage(ctx, sess, "hello there", rec)
	require.NoError(t, err)
	assert.Equal(t, "You said: hello there", turn.Content)
	assert.Equal(t, `The user said "hello there".`, turn.Thinking)

	var starts, ends int
	for _, ev := range rec.Events {
		switch ev.Type {
		case framework.StreamThinkingStart:
			starts++
		case framework.StreamThinkingEnd:
			ends++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)

	turn, err = c.SendMessage(ctx, sess, "archive", rec)
	require.NoError(t, err)
	require.Equal(t, framework.DecisionServerConfirm, turn.Decision.Kind)
	assert.Equal(t, "Archive", turn.Decision.Request.ConfirmText)
	assert.True(t, strings.HasPrefix(turn.Residual, "Archiving requires approval."))

	turn, err = c.Confirm(ctx, sess, rec)
	require.NoError(t, err)
	assert.Equal(t, "Done: archive_sheet was applied on the server.", turn.Content)
	assert.Empty(t, *calls)

	reqs := stub.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, map[string]any{"page": "inventory"}, reqs[0].AppState)
	assert.Equal(t, transport.HitlConfirmed, reqs[2].HitlResponse)
	require.NotNil(t, reqs[2].HitlRequest)
	assert.Equal(t, "archive_sheet", reqs[2].HitlRequest.Action)
	assert.Equal(t, "Archive the current sheet?", reqs[2].HitlRequest.Message)
}

func TestEndToEndStatusError(t *testing.T) {
	srv := httptest.NewServer(server.NewAgentStub(nil).Handler())
	defer srv.Close()

	c, _ := newTestCopilot(t, transport.NewClient(srv.URL+server.DefaultPath, 0))
	sess := framework.NewSession(framework.DefaultMarkers())
	rec := &Recorder{}
	_, err := c.SendMessage(context.Background(), sess, "fail", rec)
	require.ErrorIs(t, err, transport.ErrUnexpectedStatus)
	assert.Len(t, rec.Errors, 1)
	assert.Len(t, rec.Ends, 1)
	assert.False(t, sess.IsProcessing())
}
