package transport

import "github.com/lexcodex/dwfcopilot/framework"

// HitlConfirmed is the only hitlResponse value the client sends.
const HitlConfirmed = "confirmed"

// EnvelopeItem is the envelope type that carries reply text.
const EnvelopeItem = "item"

// Request is the JSON body POSTed to the agent endpoint.
type Request struct {
	ChatInput string               `json:"chatInput"`
	SessionID string               `json:"sessionId"`
	AppState  any                  `json:"appState"`
	Tools     framework.ToolSchema `json:"tools"`

	// Set only when resuming after a server-requested confirmation.
	HitlResponse string                        `json:"hitlResponse,omitempty"`
	Action       string                        `json:"action,omitempty"`
	Data         map[string]any                `json:"data,omitempty"`
	HitlRequest  *framework.PendingHitlRequest `json:"hitlRequest,omitempty"`
}

// IsResume reports whether the request answers a confirmation prompt.
func (r *Request) IsResume() bool {
	return r != nil && r.HitlResponse != ""
}

// EnvelopeStateUpdate carries intermediate agent state. Clients ignore it.
const EnvelopeStateUpdate = "state_update"

// Envelope is one line of the streamed response.
type Envelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	State   any    `json:"state,omitempty"`
}
