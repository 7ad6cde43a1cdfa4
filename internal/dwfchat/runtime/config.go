package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/dwfcopilot/framework"
	"github.com/lexcodex/dwfcopilot/transport"
)

// EndpointEnv overrides the configured endpoint when set.
const EndpointEnv = "DWF_WEBHOOK_URL"

// Config captures every knob shared by the dwfchat commands.
type Config struct {
	Workspace       string
	ConfigPath      string
	Endpoint        string
	Timeout         time.Duration
	Markers         framework.Markers
	ConfirmPatterns []string
	AppStatePath    string
	LogPath         string
	LogFormat       string
	Debug           bool
	TelemetryPath   string
	StubAddr        string
}

// DefaultConfig infers defaults from the current working directory.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Config{
		Workspace:    cwd,
		ConfigPath:   DefaultConfigPath(cwd),
		Endpoint:     transport.DefaultEndpoint,
		Timeout:      5 * time.Minute,
		Markers:      framework.DefaultMarkers(),
		AppStatePath: filepath.Join(cwd, ".dwfchat", "app_state.yaml"),
		LogFormat:    "terminal",
		StubAddr:     ":8001",
	}
}

// DefaultConfigPath returns the workspace config file location.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".dwfchat", "config.yaml")
}

// Normalize makes paths absolute and fills missing defaults.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	absWorkspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.Workspace = absWorkspace
	if c.ConfigPath == "" {
		c.ConfigPath = DefaultConfigPath(c.Workspace)
	}
	c.ConfigPath = c.resolve(c.ConfigPath)
	if c.AppStatePath == "" {
		c.AppStatePath = filepath.Join(c.Workspace, ".dwfchat", "app_state.yaml")
	}
	c.AppStatePath = c.resolve(c.AppStatePath)
	if c.LogPath != "" {
		c.LogPath = c.resolve(c.LogPath)
	}
	if c.TelemetryPath != "" {
		c.TelemetryPath = c.resolve(c.TelemetryPath)
	}
	if c.Endpoint == "" {
		c.Endpoint = transport.DefaultEndpoint
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.Markers.Start == "" {
		c.Markers.Start = framework.DefaultThinkStart
	}
	if c.Markers.End == "" {
		c.Markers.End = framework.DefaultThinkEnd
	}
	switch c.LogFormat {
	case "terminal", "text", "json":
	case "":
		c.LogFormat = "terminal"
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.StubAddr == "" {
		c.StubAddr = ":8001"
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Workspace, path)
}

// FileConfig is the persisted form of the workspace config.
type FileConfig struct {
	Endpoint        string            `yaml:"endpoint,omitempty"`
	Timeout         string            `yaml:"timeout,omitempty"`
	Markers         framework.Markers `yaml:"markers,omitempty"`
	ConfirmPatterns []string          `yaml:"confirm_patterns,omitempty"`
	AppState        string            `yaml:"app_state,omitempty"`
	Log             LogConfig         `yaml:"log,omitempty"`
	Telemetry       TelemetryConfig   `yaml:"telemetry,omitempty"`
	Stub            StubConfig        `yaml:"stub,omitempty"`
}

// LogConfig selects the log format, level and destination.
type LogConfig struct {
	Format string `yaml:"format,omitempty"`
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// TelemetryConfig points at the optional JSONL event log.
type TelemetryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// StubConfig configures the local agent stub.
type StubConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoadFileConfig reads the YAML config. A missing file returns an error
// satisfying errors.Is(err, os.ErrNotExist).
func LoadFileConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// SaveFileConfig persists fc, creating parent directories.
func SaveFileConfig(path string, fc FileConfig) error {
	if path == "" {
		return fmt.Errorf("config path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyFile overlays the non-empty values of fc.
func (c *Config) ApplyFile(fc FileConfig) error {
	if fc.Endpoint != "" {
		c.Endpoint = fc.Endpoint
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if fc.Markers.Start != "" {
		c.Markers.Start = fc.Markers.Start
	}
	if fc.Markers.End != "" {
		c.Markers.End = fc.Markers.End
	}
	if len(fc.ConfirmPatterns) > 0 {
		c.ConfirmPatterns = append([]string(nil), fc.ConfirmPatterns...)
	}
	if fc.AppState != "" {
		c.AppStatePath = fc.AppState
	}
	if fc.Log.Format != "" {
		c.LogFormat = fc.Log.Format
	}
	if strings.EqualFold(fc.Log.Level, "debug") {
		c.Debug = true
	}
	if fc.Log.File != "" {
		c.LogPath = fc.Log.File
	}
	if fc.Telemetry.Path != "" {
		c.TelemetryPath = fc.Telemetry.Path
	}
	if fc.Stub.Addr != "" {
		c.StubAddr = fc.Stub.Addr
	}
	return nil
}

// ApplyEnv overlays environment overrides.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EndpointEnv); ok && strings.TrimSpace(v) != "" {
		c.Endpoint = strings.TrimSpace(v)
	}
}
