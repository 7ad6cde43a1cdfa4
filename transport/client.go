package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/lexcodex/dwfcopilot/framework"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "http://localhost:8001/webhook/agent/message"

// ErrUnexpectedStatus is wrapped into errors for non-2xx responses.
var ErrUnexpectedStatus = errors.New("agent endpoint returned non-success status")

// Skip reasons reported with envelope_skipped events.
const (
	SkipMalformed    = "malformed"
	SkipNotItem      = "not_item"
	SkipEmpty        = "empty_content"
	SkipUnterminated = "unterminated"
)

// Client streams agent replies from the configured endpoint.
type Client struct {
	Endpoint  string
	Telemetry framework.Telemetry
	client    *http.Client
	tracer    trace.Tracer
}

// NewClient builds a streaming client. A zero timeout leaves the HTTP client
// without a deadline; the request context still applies.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		tracer:   otel.Tracer("github.com/lexcodex/dwfcopilot/transport"),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{}
	return c.client
}

// Stream POSTs req and calls onItem, in arrival order, with the content of
// every newline-terminated envelope of type "item" with non-empty content.
// Other lines are skipped and reported to Telemetry. A trailing fragment
// without a newline is discarded. The returned error covers request
// construction, transport failures, non-2xx statuses and body read errors.
func (c *Client) Stream(ctx context.Context, req *Request, onItem func(string)) (err error) {
	ctx, span := c.startSpan(ctx, req)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "agent stream failed")
		}
		span.End()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	log.Debug(ctx,
		log.KV{K: "msg", V: "posting to agent"},
		log.KV{K: "endpoint", V: c.Endpoint},
		log.KV{K: "bytes", V: len(body)},
	)
	resp, err := c.getHTTPClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", c.Endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, detail)
		}
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	items, err := c.readEnvelopes(ctx, req.SessionID, resp.Body, onItem)
	span.SetAttributes(attribute.Int("dwf.items", items))
	return err
}

func (c *Client) startSpan(ctx context.Context, req *Request) (context.Context, trace.Span) {
	tracer := c.tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/lexcodex/dwfcopilot/transport")
	}
	return tracer.Start(ctx, "agent.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("dwf.session_id", req.SessionID),
			attribute.Bool("dwf.resume", req.IsResume()),
		),
	)
}

// readEnvelopes splits body on newlines and forwards item content. It returns
// the number of forwarded items.
func (c *Client) readEnvelopes(ctx context.Context, sessionID string, body io.Reader, onItem func(string)) (int, error) {
	reader := bufio.NewReader(body)
	items := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(bytes.TrimSpace(line)) > 0 {
					c.skip(ctx, sessionID, SkipUnterminated, line)
				}
				return items, nil
			}
			return items, fmt.Errorf("read stream: %w", err)
		}
		content, reason := decodeLine(line)
		switch {
		case reason == "" && content == "":
		case reason != "":
			c.skip(ctx, sessionID, reason, line)
		default:
			items++
			if onItem != nil {
				onItem(content)
			}
		}
	}
}

// decodeLine returns the item content of line, or a skip reason. Blank lines
// yield neither.
func decodeLine(line []byte) (string, string) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return "", ""
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", SkipMalformed
	}
	if env.Type != EnvelopeItem {
		return "", SkipNotItem
	}
	if env.Content == "" {
		return "", SkipEmpty
	}
	return env.Content, ""
}

func (c *Client) skip(ctx context.Context, sessionID, reason string, line []byte) {
	framework.Emit(ctx, c.Telemetry, framework.Event{
		Type:      framework.EventEnvelopeSkipped,
		SessionID: sessionID,
		Metadata: map[string]any{
			"reason": reason,
			"line":   clip(strings.TrimSpace(string(line)), 256),
		},
	})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
