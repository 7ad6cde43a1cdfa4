package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"goa.design/clue/log"

	"github.com/lexcodex/dwfcopilot/copilot"
	"github.com/lexcodex/dwfcopilot/framework"
	"github.com/lexcodex/dwfcopilot/transport"
)

// Runtime wires the dwfchat commands and the chat shell to one copilot. It
// owns the tool registry, the session arena, the app state document and the
// telemetry sinks.
type Runtime struct {
	Config   Config
	Tools    *framework.ToolRegistry
	Sessions *framework.SessionArena
	Client   *transport.Client
	Copilot  *copilot.Copilot
	State    *AppState
	Counters *framework.CounterTelemetry

	closers []io.Closer
}

// New builds a runtime from cfg. ctx should already carry the logger built by
// LogContext.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config:   cfg,
		Counters: framework.NewCounterTelemetry(),
		Sessions: framework.NewSessionArena(cfg.Markers),
	}

	sinks := []framework.Telemetry{rt.Counters, framework.LoggerTelemetry{}}
	metrics, err := framework.NewMetricsTelemetry()
	if err != nil {
		return nil, fmt.Errorf("metrics init: %w", err)
	}
	sinks = append(sinks, metrics)
	if cfg.TelemetryPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.TelemetryPath), 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry directory: %w", err)
		}
		file, err := framework.NewJSONFileTelemetry(cfg.TelemetryPath)
		if err != nil {
			return nil, fmt.Errorf("open telemetry log: %w", err)
		}
		sinks = append(sinks, file)
		rt.closers = append(rt.closers, file)
	}
	telemetry := framework.MultiplexTelemetry{Sinks: sinks}

	registry := framework.NewToolRegistry()
	registry.SetTelemetry(telemetry)
	if err := registry.SetConfirmPatterns(cfg.ConfirmPatterns); err != nil {
		rt.Close()
		return nil, err
	}
	if err := RegisterBuiltinTools(ctx, registry); err != nil {
		rt.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}
	rt.Tools = registry

	state, err := LoadAppState(cfg.AppStatePath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.State = state

	rt.Client = transport.NewClient(cfg.Endpoint, cfg.Timeout)
	rt.Client.Telemetry = telemetry

	rt.Copilot = copilot.New(registry, rt.Client, telemetry)
	rt.Copilot.AppState = func() any { return state.Snapshot() }
	rt.Copilot.Env = state

	log.Debug(ctx,
		log.KV{K: "msg", V: "runtime ready"},
		log.KV{K: "endpoint", V: cfg.Endpoint},
		log.KV{K: "app_state", V: cfg.AppStatePath},
		log.KV{K: "direct_tools", V: len(registry.Names(framework.CategoryDirect))},
		log.KV{K: "confirm_tools", V: len(registry.Names(framework.CategoryConfirmRequired))},
	)
	return rt, nil
}

// NewSession opens a session in the arena.
func (r *Runtime) NewSession() *framework.Session {
	return r.Sessions.Create()
}

// Close releases resources managed by the runtime.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// LogContext returns ctx carrying a clue logger configured from cfg. When
// cfg.LogPath is set the log goes to that file; otherwise to out. The returned
// closer releases the log file, if any.
func LogContext(ctx context.Context, cfg Config, out io.Writer) (context.Context, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			return ctx, closer, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return ctx, closer, fmt.Errorf("open log: %w", err)
		}
		out = f
		closer = f
	}
	if out == nil {
		out = os.Stderr
	}
	format := log.FormatTerminal
	switch cfg.LogFormat {
	case "json":
		format = log.FormatJSON
	case "text":
		format = log.FormatText
	}
	ctx = log.Context(ctx, log.WithFormat(format), log.WithOutput(out))
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	return ctx, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
