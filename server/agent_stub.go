// Package server provides a scripted agent endpoint that speaks the streaming
// NDJSON protocol. It backs the end-to-end tests and the `dwfchat stub`
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/lexcodex/dwfcopilot/transport"
)

// DefaultPath is the route the stub answers on.
const DefaultPath = "/webhook/agent/message"

// Reply is what the stub streams back for one request.
type Reply struct {
	// Chunks are emitted as item envelopes, one line each, in order.
	Chunks []string
	// State, when set, is emitted as a state_update envelope after the chunks.
	State map[string]any
	// Status overrides the HTTP status; the body is then Chunks joined.
	Status int
}

// Script chooses the reply for a request.
type Script func(req *transport.Request) Reply

// AgentStub is an http.Handler standing in for the remote agent.
type AgentStub struct {
	Script Script
	Path   string
	// Delay is slept between envelopes.
	Delay time.Duration

	mu       sync.Mutex
	requests []transport.Request
}

// NewAgentStub builds a stub driven by script. A nil script uses DemoScript.
func NewAgentStub(script Script) *AgentStub {
	if script == nil {
		script = DemoScript
	}
	return &AgentStub{Script: script, Path: DefaultPath}
}

// Requests returns a copy of every request received so far.
func (s *AgentStub) Requests() []transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Request(nil), s.requests...)
}

// Handler returns the routing mux.
func (s *AgentStub) Handler() http.Handler {
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleMessage)
	mux.HandleFunc("/api/requests", s.handleRequests)
	return mux
}

// ServeContext listens on addr until ctx is cancelled.
func (s *AgentStub) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Info(ctx, log.KV{K: "msg", V: "agent stub listening"}, log.KV{K: "addr", V: addr}, log.KV{K: "path", V: s.Path})
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *AgentStub) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req transport.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	log.Debug(r.Context(),
		log.KV{K: "msg", V: "stub request"},
		log.KV{K: "session", V: req.SessionID},
		log.KV{K: "input", V: req.ChatInput},
		log.KV{K: "resume", V: req.IsResume()},
	)

	reply := s.Script(&req)
	if reply.Status >= 300 {
		http.Error(w, strings.Join(reply.Chunks, ""), reply.Status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	emit := func(env transport.Envelope) bool {
		if err := enc.Encode(env); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.Delay > 0 {
			select {
			case <-r.Context().Done():
				return false
			case <-time.After(s.Delay):
			}
		}
		return true
	}
	for _, chunk := range reply.Chunks {
		if !emit(transport.Envelope{Type: transport.EnvelopeItem, Content: chunk}) {
			return
		}
	}
	if reply.State != nil {
		emit(transport.Envelope{Type: transport.EnvelopeStateUpdate, State: reply.State})
	}
}

func (s *AgentStub) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Requests())
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
