package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/dwfcopilot/framework"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func stubClient(t *testing.T, status int, body string, check func(*http.Request)) *Client {
	t.Helper()
	client := NewClient("http://fake/webhook", 0)
	client.SetHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			if check != nil {
				check(req)
			}
			return &http.Response{
				StatusCode: status,
				Status:     http.StatusText(status),
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}
		}),
	})
	return client
}

func collect(t *testing.T, c *Client, req *Request) ([]string, error) {
	t.Helper()
	var items []string
	err := c.Stream(context.Background(), req, func(s string) { items = append(items, s) })
	return items, err
}

func TestStreamForwardsItemEnvelopes(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"item","content":"Hi <think>"}`,
		`{"type":"item","content":"reasoning text</think> world"}`,
		"",
	}, "\n")
	client := stubClient(t, 200, body, func(req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&decoded))
		assert.Equal(t, "hello", decoded["chatInput"])
		assert.Equal(t, "s-1", decoded["sessionId"])
		tools := decoded["tools"].(map[string]any)
		assert.Equal(t, []any{}, tools["direct"])
		assert.Equal(t, []any{}, tools["confirm-required"])
		assert.NotContains(t, decoded, "hitlResponse")
		assert.NotContains(t, decoded, "hitlRequest")
	})

	items, err := collect(t, client, &Request{
		ChatInput: "hello",
		SessionID: "s-1",
		AppState:  map[string]any{},
		Tools:     framework.NewToolRegistry().Schema(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi <think>", "reasoning text</think> world"}, items)
}

func TestStreamSkipsNonItemAndMalformedLines(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"begin"}`,
		`not json at all`,
		``,
		`   `,
		`{"type":"item","content":""}`,
		`{"type":"state_update","content":"{\"x\":1}"}`,
		`{"type":"item","content":"kept"}`,
		"{\"type\":\"item\",\"content\":\"crlf\"}\r",
		`{"type":"item","content":"unterminated"}`,
	}, "\n")
	client := stubClient(t, 200, body, nil)
	counter := framework.NewCounterTelemetry()
	client.Telemetry = counter

	items, err := collect(t, client, &Request{SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kept", "crlf"}, items)
	// begin, malformed, empty item, state_update, unterminated tail
	assert.Equal(t, 5, counter.Count(framework.EventEnvelopeSkipped))
}

func TestStreamNonSuccessStatus(t *testing.T) {
	client := stubClient(t, 502, "agent offline\n", nil)
	called := false
	err := client.Stream(context.Background(), &Request{}, func(string) { called = true })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "agent offline")
	assert.False(t, called)
}

func TestStreamResumeRequestShape(t *testing.T) {
	pending := &framework.PendingHitlRequest{
		Action:      "archive",
		Data:        map[string]any{"sheet": "Q3"},
		Message:     "Archive Q3?",
		ConfirmText: "Confirm",
		CancelText:  "Cancel",
	}
	client := stubClient(t, 200, "", func(req *http.Request) {
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&decoded))
		assert.Equal(t, HitlConfirmed, decoded["hitlResponse"])
		assert.Equal(t, "archive", decoded["action"])
		assert.Equal(t, map[string]any{"sheet": "Q3"}, decoded["data"])
		hitl := decoded["hitlRequest"].(map[string]any)
		assert.Equal(t, "Archive Q3?", hitl["message"])
		assert.Equal(t, "Confirm", hitl["confirmText"])
		assert.Equal(t, "Cancel", hitl["cancelText"])
	})

	req := &Request{
		SessionID:    "s",
		HitlResponse: HitlConfirmed,
		Action:       pending.Action,
		Data:         pending.Data,
		HitlRequest:  pending,
	}
	assert.True(t, req.IsResume())
	_, err := collect(t, client, req)
	require.NoError(t, err)
}

func TestStreamAgainstChunkedServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		// Split an envelope mid-line across writes.
		for _, part := range []string{`{"type":"item","con`, `tent":"one"}` + "\n", `{"type":"item","content":"two"}` + "\n"} {
			_, _ = io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	items, err := collect(t, client, &Request{SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, items)
}

func TestStreamContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(srv.URL, 0).Stream(ctx, &Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientDefaultEndpoint(t *testing.T) {
	assert.Equal(t, DefaultEndpoint, NewClient("", 0).Endpoint)
}
