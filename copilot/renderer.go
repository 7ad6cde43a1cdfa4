package copilot

import (
	"sync"

	"github.com/lexcodex/dwfcopilot/framework"
)

// Renderer is the display collaborator. Calls for one request arrive in order
// on the goroutine running SendMessage.
type Renderer interface {
	// OnStart is called once the request has been accepted.
	OnStart(sessionID string)
	// OnEvent receives every demultiplexed stream event.
	OnEvent(ev framework.StreamEvent)
	// OnError receives the terminal transport error, at most once.
	OnError(err error)
	// OnEnd is called exactly once per accepted request with the final
	// visible content.
	OnEnd(full string)
	// OnPayload receives the extracted payload and the residual display text.
	OnPayload(ext *framework.Extraction)
	OnToolResult(action, result string)
	OnHitlRequest(req *framework.PendingHitlRequest)
	OnNotice(text string)
}

// NopRenderer ignores every callback. Embed it to implement a subset.
type NopRenderer struct{}

func (NopRenderer) OnStart(string)                              {}
func (NopRenderer) OnEvent(framework.StreamEvent)               {}
func (NopRenderer) OnError(error)                               {}
func (NopRenderer) OnEnd(string)                                {}
func (NopRenderer) OnPayload(*framework.Extraction)             {}
func (NopRenderer) OnToolResult(string, string)                 {}
func (NopRenderer) OnHitlRequest(*framework.PendingHitlRequest) {}
func (NopRenderer) OnNotice(string)                             {}

// Recorder keeps every callback it receives. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	Starts   int
	Events   []framework.StreamEvent
	Errors   []error
	Ends     []string
	Payloads []*framework.Extraction
	Results  []ToolResult
	Requests []*framework.PendingHitlRequest
	Notices  []string
}

// ToolResult pairs an executed action with its result string.
type ToolResult struct {
	Action string
	Result string
}

func (r *Recorder) OnStart(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Starts++
}

func (r *Recorder) OnEvent(ev framework.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

func (r *Recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

func (r *Recorder) OnEnd(full string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ends = append(r.Ends, full)
}

func (r *Recorder) OnPayload(ext *framework.Extraction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Payloads = append(r.Payloads, ext)
}

func (r *Recorder) OnToolResult(action, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, ToolResult{Action: action, Result: result})
}

func (r *Recorder) OnHitlRequest(req *framework.PendingHitlRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, req)
}

func (r *Recorder) OnNotice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, text)
}
