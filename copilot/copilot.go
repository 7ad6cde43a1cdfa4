// Package copilot ties the stream demultiplexer, payload extraction, HITL
// negotiation and tool dispatch into one request cycle per session.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/clue/log"

	"github.com/lexcodex/dwfcopilot/framework"
	"github.com/lexcodex/dwfcopilot/transport"
)

var (
	// ErrSessionBusy is returned when a request is already in flight for the
	// session. No network call is made.
	ErrSessionBusy = errors.New("session is already processing a request")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is empty")
)

// Streamer is the transport used for a request cycle.
type Streamer interface {
	Stream(ctx context.Context, req *transport.Request, onItem func(string)) error
}

// Copilot runs request cycles against the agent endpoint.
type Copilot struct {
	Registry   *framework.ToolRegistry
	Controller *framework.HITLController
	Client     Streamer
	Telemetry  framework.Telemetry
	// AppState is sampled once per request; nil sends an empty object.
	AppState func() any
	// Env is passed through to tool handlers.
	Env any
}

// New assembles a Copilot around registry and client.
func New(registry *framework.ToolRegistry, client Streamer, telemetry framework.Telemetry) *Copilot {
	return &Copilot{
		Registry:   registry,
		Controller: framework.NewHITLController(registry, telemetry),
		Client:     client,
		Telemetry:  telemetry,
	}
}

// Turn summarizes one finished request cycle.
type Turn struct {
	SessionID string
	Content   string
	Thinking  string
	// Residual is Content with the extracted payload removed.
	Residual   string
	Extraction *framework.Extraction
	Decision   framework.Decision
}

// SendMessage streams the agent's reply to text. It returns ErrSessionBusy
// while another request is in flight for sess. Transport failures are reported
// to the renderer and returned; the reply received so far is still finalized.
func (c *Copilot) SendMessage(ctx context.Context, sess *framework.Session, text string, r Renderer) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return c.send(ctx, sess, &transport.Request{ChatInput: text}, r)
}

// Confirm accepts the pending request. A local request is executed and its
// result rendered. A server request is sent back to the agent and the reply is
// streamed like any other message.
func (c *Copilot) Confirm(ctx context.Context, sess *framework.Session, r Renderer) (*Turn, error) {
	if r == nil {
		r = NopRenderer{}
	}
	if sess.IsProcessing() {
		return nil, ErrSessionBusy
	}
	res, err := c.Controller.Confirm(ctx, sess, c.Env)
	if err != nil {
		return nil, err
	}
	log.Info(ctx,
		log.KV{K: "msg", V: "confirmation accepted"},
		log.KV{K: "session", V: sess.ID()},
		log.KV{K: "action", V: res.Request.Action},
		log.KV{K: "origin", V: string(res.Request.Origin)},
	)
	if res.Executed {
		r.OnToolResult(res.Request.Action, res.Result)
		return &Turn{
			SessionID: sess.ID(),
			Decision:  framework.Decision{Kind: framework.DecisionLocalConfirm, Request: res.Request, Action: res.Request.Action, Result: res.Result},
		}, nil
	}
	return c.send(ctx, sess, &transport.Request{
		HitlResponse: transport.HitlConfirmed,
		Action:       res.Request.Action,
		Data:         res.Request.Data,
	}, r)
}

// Cancel discards the pending request and renders a notice. The agent is not
// contacted.
func (c *Copilot) Cancel(ctx context.Context, sess *framework.Session, r Renderer) error {
	if r == nil {
		r = NopRenderer{}
	}
	req, err := c.Controller.Cancel(ctx, sess)
	if err != nil {
		return err
	}
	log.Info(ctx,
		log.KV{K: "msg", V: "confirmation cancelled"},
		log.KV{K: "session", V: sess.ID()},
		log.KV{K: "action", V: req.Action},
	)
	r.OnNotice(fmt.Sprintf("Operation cancelled: %s", req.Action))
	return nil
}

func (c *Copilot) send(ctx context.Context, sess *framework.Session, req *transport.Request, r Renderer) (*Turn, error) {
	if r == nil {
		r = NopRenderer{}
	}
	if !sess.TryBegin() {
		log.Debug(ctx, log.KV{K: "msg", V: "request dropped, session busy"}, log.KV{K: "session", V: sess.ID()})
		return nil, ErrSessionBusy
	}
	defer sess.End()

	req.SessionID = sess.ID()
	req.AppState = c.appState()
	req.Tools = c.Registry.Schema()
	if req.IsResume() {
		req.HitlRequest = c.Controller.Resume(ctx, sess)
	}

	state := sess.State()
	state.Reset()
	r.OnStart(sess.ID())
	framework.Emit(ctx, c.Telemetry, framework.Event{
		Type:      framework.EventRequestStart,
		SessionID: sess.ID(),
		Metadata:  map[string]any{"resume": req.IsResume()},
	})
	log.Info(ctx,
		log.KV{K: "msg", V: "request dispatched"},
		log.KV{K: "session", V: sess.ID()},
		log.KV{K: "resume", V: req.IsResume()},
	)

	streamErr := c.Client.Stream(ctx, req, func(item string) {
		for _, ev := range state.ProcessChunk(item) {
			r.OnEvent(ev)
		}
	})
	for _, ev := range state.Flush() {
		r.OnEvent(ev)
	}
	if streamErr != nil {
		r.OnError(streamErr)
		framework.Emit(ctx, c.Telemetry, framework.Event{
			Type:      framework.EventRequestError,
			SessionID: sess.ID(),
			Message:   streamErr.Error(),
		})
		log.Error(ctx, streamErr, log.KV{K: "msg", V: "request failed"}, log.KV{K: "session", V: sess.ID()})
	} else {
		framework.Emit(ctx, c.Telemetry, framework.Event{
			Type:      framework.EventRequestFinish,
			SessionID: sess.ID(),
			Metadata:  map[string]any{"content_chars": len(state.Content()), "thinking_chars": len(state.Thinking())},
		})
	}

	turn := &Turn{
		SessionID: sess.ID(),
		Content:   state.Content(),
		Thinking:  state.Thinking(),
	}
	sess.End()
	r.OnEnd(turn.Content)
	c.finalize(ctx, sess, turn, r)
	return turn, streamErr
}

// finalize extracts the payload from the visible reply and negotiates it.
func (c *Copilot) finalize(ctx context.Context, sess *framework.Session, turn *Turn, r Renderer) {
	turn.Residual = turn.Content
	var payload *framework.ActionPayload
	if ext := framework.ExtractPayload(turn.Content); ext != nil {
		turn.Extraction = ext
		turn.Residual = ext.Residual
		payload = ext.Payload
		framework.Emit(ctx, c.Telemetry, framework.Event{
			Type:      framework.EventPayloadExtracted,
			SessionID: sess.ID(),
			Tool:      firstNonEmpty(payload.Action, payload.HitlAction),
			Metadata:  map[string]any{"form": string(ext.Form)},
		})
		r.OnPayload(ext)
	} else {
		framework.Emit(ctx, c.Telemetry, framework.Event{Type: framework.EventPayloadAbsent, SessionID: sess.ID()})
	}

	turn.Decision = c.Controller.Negotiate(ctx, sess, payload, c.Env)
	switch turn.Decision.Kind {
	case framework.DecisionLocalConfirm, framework.DecisionServerConfirm:
		r.OnHitlRequest(turn.Decision.Request)
	case framework.DecisionAutoExecute:
		r.OnToolResult(turn.Decision.Action, turn.Decision.Result)
	}
}

func (c *Copilot) appState() any {
	if c.AppState == nil {
		return map[string]any{}
	}
	if state := c.AppState(); state != nil {
		return state
	}
	return map[string]any{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
