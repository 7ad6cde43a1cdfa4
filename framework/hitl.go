package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

// ErrNoPendingRequest is returned by Confirm and Cancel when the session has
// nothing awaiting a decision.
var ErrNoPendingRequest = errors.New("no pending confirmation request")

// HITLOrigin records who asked for the confirmation step.
type HITLOrigin string

const (
	// OriginLocal marks a request for a tool registered as confirm-required.
	OriginLocal HITLOrigin = "local"
	// OriginServer marks a request the agent asked for via ui_request=confirm.
	OriginServer HITLOrigin = "server"
)

// PendingHitlRequest is the record shown to the user while a confirmation is
// outstanding. On a server-side confirmation it is echoed back to the agent.
type PendingHitlRequest struct {
	ID          string         `json:"id,omitempty"`
	Action      string         `json:"action"`
	Data        map[string]any `json:"data"`
	Message     string         `json:"message"`
	ConfirmText string         `json:"confirmText"`
	CancelText  string         `json:"cancelText"`
	Origin      HITLOrigin     `json:"-"`
}

// NewPendingHitlRequest derives a request from payload, filling display
// defaults. Server-origin requests use hitl_action as the action name.
func NewPendingHitlRequest(payload *ActionPayload, origin HITLOrigin) *PendingHitlRequest {
	action := payload.Action
	if origin == OriginServer {
		action = payload.HitlAction
	}
	req := &PendingHitlRequest{
		ID:          uuid.NewString(),
		Action:      action,
		Data:        payload.Arguments(),
		Message:     payload.Message,
		ConfirmText: payload.ConfirmText,
		CancelText:  payload.CancelText,
		Origin:      origin,
	}
	if req.Message == "" {
		req.Message = fmt.Sprintf("Request to perform action: %s", action)
	}
	if req.ConfirmText == "" {
		req.ConfirmText = "Confirm"
	}
	if req.CancelText == "" {
		req.CancelText = "Cancel"
	}
	return req
}

// DecisionKind is the outcome of negotiating one payload.
type DecisionKind string

const (
	DecisionNone          DecisionKind = "none"
	DecisionLocalConfirm  DecisionKind = "local_confirm"
	DecisionServerConfirm DecisionKind = "server_confirm"
	DecisionAutoExecute   DecisionKind = "auto_execute"
)

// Decision describes what Negotiate did with a payload.
type Decision struct {
	Kind DecisionKind
	// Request is set for the two confirm kinds.
	Request *PendingHitlRequest
	// Action and Result are set for DecisionAutoExecute.
	Action string
	Result string
}

// Resolution describes a confirmed request. Executed is true when the tool ran
// locally; otherwise the caller resumes the conversation with the agent.
type Resolution struct {
	Request  *PendingHitlRequest
	Executed bool
	Result   string
}

// HITLEventType describes the lifecycle stage of a confirmation request.
type HITLEventType string

const (
	HITLEventRequested  HITLEventType = "requested"
	HITLEventConfirmed  HITLEventType = "confirmed"
	HITLEventCancelled  HITLEventType = "cancelled"
	HITLEventSuperseded HITLEventType = "superseded"
)

// HITLEvent is broadcast to subscribers on every lifecycle change.
type HITLEvent struct {
	Type      HITLEventType
	SessionID string
	Request   *PendingHitlRequest
}

// HITLController decides, per extracted payload, whether to ask the user,
// defer to the agent, or execute immediately.
type HITLController struct {
	registry  *ToolRegistry
	telemetry Telemetry

	mu     sync.Mutex
	subs   map[int]chan HITLEvent
	subSeq int
}

// NewHITLController builds a controller dispatching through registry.
func NewHITLController(registry *ToolRegistry, telemetry Telemetry) *HITLController {
	return &HITLController{
		registry:  registry,
		telemetry: telemetry,
		subs:      make(map[int]chan HITLEvent),
	}
}

// Subscribe returns a channel that receives lifecycle events.
// Call the returned cancel function to unsubscribe.
func (h *HITLController) Subscribe(buffer int) (<-chan HITLEvent, func()) {
	if h == nil {
		ch := make(chan HITLEvent)
		close(ch)
		return ch, func() {}
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan HITLEvent, buffer)
	h.mu.Lock()
	id := h.subSeq
	h.subSeq++
	h.subs[id] = ch
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		sub, ok := h.subs[id]
		if ok {
			delete(h.subs, id)
		}
		h.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

func (h *HITLController) broadcast(event HITLEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Negotiate applies the confirmation precedence to payload: a locally
// confirm-required action wins over a server confirm request, which wins over
// auto-execution. A nil payload yields DecisionNone.
func (h *HITLController) Negotiate(ctx context.Context, sess *Session, payload *ActionPayload, env any) Decision {
	switch {
	case payload == nil:
		return Decision{Kind: DecisionNone}
	case payload.Action != "" && h.registry.IsConfirmRequired(payload.Action):
		req := NewPendingHitlRequest(payload, OriginLocal)
		h.park(ctx, sess, req)
		return Decision{Kind: DecisionLocalConfirm, Request: req}
	case payload.WantsConfirm() && payload.HitlAction != "":
		req := NewPendingHitlRequest(payload, OriginServer)
		h.park(ctx, sess, req)
		return Decision{Kind: DecisionServerConfirm, Request: req}
	case payload.Action != "" && !payload.WantsConfirm():
		result := h.registry.Execute(ctx, payload.Action, payload.Arguments(), env)
		return Decision{Kind: DecisionAutoExecute, Action: payload.Action, Result: result}
	default:
		return Decision{Kind: DecisionNone}
	}
}

// park stores req as the session's single pending request. A request already
// waiting is overwritten.
func (h *HITLController) park(ctx context.Context, sess *Session, req *PendingHitlRequest) {
	if prev := sess.SetPending(req); prev != nil {
		log.Warn(ctx,
			log.KV{K: "msg", V: "pending confirmation superseded"},
			log.KV{K: "session", V: sess.ID()},
			log.KV{K: "previous", V: prev.Action},
			log.KV{K: "next", V: req.Action},
		)
		Emit(ctx, h.telemetry, Event{Type: EventHITLSuperseded, SessionID: sess.ID(), Tool: prev.Action})
		h.broadcast(HITLEvent{Type: HITLEventSuperseded, SessionID: sess.ID(), Request: prev})
	}
	Emit(ctx, h.telemetry, Event{
		Type:      EventHITLRequested,
		SessionID: sess.ID(),
		Tool:      req.Action,
		Metadata:  map[string]any{"origin": string(req.Origin)},
	})
	h.broadcast(HITLEvent{Type: HITLEventRequested, SessionID: sess.ID(), Request: req})
}

// Confirm resolves the pending request. Local requests are consumed and
// executed here. Server requests stay in the slot and nothing is reported
// until the caller claims the session for the resume request and calls
// Resume.
func (h *HITLController) Confirm(ctx context.Context, sess *Session, env any) (*Resolution, error) {
	pending := sess.Pending()
	if pending == nil {
		return nil, ErrNoPendingRequest
	}
	if pending.Origin != OriginLocal {
		return &Resolution{Request: pending}, nil
	}
	sess.TakePending()
	h.confirmed(ctx, sess, pending)
	result := h.registry.Execute(ctx, pending.Action, pending.Data, env)
	return &Resolution{Request: pending, Executed: true, Result: result}, nil
}

// Resume consumes the pending request answered by a resume request and
// reports it confirmed. The session must already be claimed for that request.
func (h *HITLController) Resume(ctx context.Context, sess *Session) *PendingHitlRequest {
	pending := sess.TakePending()
	if pending != nil {
		h.confirmed(ctx, sess, pending)
	}
	return pending
}

func (h *HITLController) confirmed(ctx context.Context, sess *Session, req *PendingHitlRequest) {
	Emit(ctx, h.telemetry, Event{Type: EventHITLConfirmed, SessionID: sess.ID(), Tool: req.Action})
	h.broadcast(HITLEvent{Type: HITLEventConfirmed, SessionID: sess.ID(), Request: req})
}

// Cancel discards the pending request. The agent is not notified.
func (h *HITLController) Cancel(ctx context.Context, sess *Session) (*PendingHitlRequest, error) {
	pending := sess.TakePending()
	if pending == nil {
		return nil, ErrNoPendingRequest
	}
	Emit(ctx, h.telemetry, Event{Type: EventHITLCancelled, SessionID: sess.ID(), Tool: pending.Action})
	h.broadcast(HITLEvent{Type: HITLEventCancelled, SessionID: sess.ID(), Request: pending})
	return pending, nil
}
