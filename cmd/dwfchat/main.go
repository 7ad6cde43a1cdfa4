package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	a := newApp()
	err := a.rootCmd().ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the resolved configuration and flag values of one invocation.
type app struct {
	cfg     runtimesvc.Config
	lookup  func(string) (string, bool)
	logOut  io.Writer
	logFile io.Closer

	endpoint  string
	timeout   time.Duration
	logFormat string
	logPath   string
	debug     bool
	telemetry string
}

func newApp() *app {
	return &app{cfg: runtimesvc.DefaultConfig(), lookup: os.LookupEnv}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dwfchat",
		Short:         "Streaming copilot client for the DWF agent webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.Workspace, "workspace", a.cfg.Workspace, "Workspace directory")
	flags.StringVar(&a.cfg.ConfigPath, "config", "", "Path to the dwfchat config file")
	flags.StringVar(&a.endpoint, "endpoint", "", "Agent webhook URL (overrides config and "+runtimesvc.EndpointEnv+")")
	flags.DurationVar(&a.timeout, "timeout", 0, "Per-request timeout (0 keeps the configured value)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: terminal, text or json")
	flags.StringVar(&a.logPath, "log-file", "", "Write logs to this file instead of stderr")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logs")
	flags.StringVar(&a.telemetry, "telemetry", "", "Append diagnostic events to this JSONL file")

	root.AddCommand(
		a.chatCmd(),
		a.askCmd(),
		a.toolsCmd(),
		a.stubCmd(),
		a.configCmd(),
	)
	return root
}

// prepare layers defaults, the config file, the environment and explicit
// flags, then installs the logger on the command context.
func (a *app) prepare(cmd *cobra.Command) error {
	if a.cfg.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		a.cfg.Workspace = wd
	}
	if a.cfg.ConfigPath == "" {
		a.cfg.ConfigPath = runtimesvc.DefaultConfigPath(a.cfg.Workspace)
	}
	// Normalize places the app state under the final workspace.
	a.cfg.AppStatePath = ""
	fc, err := runtimesvc.LoadFileConfig(a.cfg.ConfigPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := a.cfg.ApplyFile(fc); err != nil {
		return fmt.Errorf("%s: %w", a.cfg.ConfigPath, err)
	}
	a.cfg.ApplyEnv(a.lookup)

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		a.cfg.Endpoint = a.endpoint
	}
	if flags.Changed("timeout") {
		a.cfg.Timeout = a.timeout
	}
	if flags.Changed("log-format") {
		a.cfg.LogFormat = a.logFormat
	}
	if flags.Changed("log-file") {
		a.cfg.LogPath = a.logPath
	}
	if flags.Changed("debug") {
		a.cfg.Debug = a.debug
	}
	if flags.Changed("telemetry") {
		a.cfg.TelemetryPath = a.telemetry
	}
	if cmd.Name() == "chat" && a.cfg.LogPath == "" {
		a.cfg.LogPath = filepath.Join(a.cfg.Workspace, ".dwfchat", "dwfchat.log")
	}
	if err := a.cfg.Normalize(); err != nil {
		return err
	}

	out := a.logOut
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	ctx, closer, err := runtimesvc.LogContext(cmd.Context(), a.cfg, out)
	if err != nil {
		return err
	}
	a.logFile = closer
	cmd.SetContext(ctx)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

func (a *app) runWithRuntime(cmd *cobra.Command, fn func(context.Context, *runtimesvc.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := runtimesvc.New(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
