package framework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"goa.design/clue/log"
)

// ToolCategory partitions the registry. Direct tools run as soon as the agent
// asks for them; confirm-required tools wait for a human decision.
type ToolCategory string

const (
	CategoryDirect          ToolCategory = "direct"
	CategoryConfirmRequired ToolCategory = "confirm-required"
)

var (
	// ErrToolExists is returned when a name is registered twice in a category.
	ErrToolExists = errors.New("tool already registered")
	// ErrInvalidTool is returned for definitions without a name or handler.
	ErrInvalidTool = errors.New("invalid tool definition")
)

// ToolParameter describes an argument the tool accepts.
type ToolParameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description"`
	Required    bool   `json:"required,omitempty" yaml:"required"`
}

// ToolDefinition is the immutable descriptor advertised to the agent.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  []ToolParameter `json:"parameters" yaml:"parameters"`
	Category    ToolCategory    `json:"category" yaml:"category"`
}

// ToolHandler executes a tool. env is the caller-supplied execution context and
// is passed through untouched.
type ToolHandler func(ctx context.Context, args map[string]any, env any) (string, error)

// ToolSchema is the definitions-only view sent to the agent with every request.
type ToolSchema struct {
	Direct          []ToolDefinition `json:"direct"`
	ConfirmRequired []ToolDefinition `json:"confirm-required"`
}

type registeredTool struct {
	def     ToolDefinition
	handler ToolHandler
	schema  *jsonschema.Schema
}

// ToolRegistry maps category -> name -> {definition, handler} and dispatches
// calls. It is safe for concurrent use.
type ToolRegistry struct {
	mu              sync.RWMutex
	tools           map[ToolCategory]map[string]*registeredTool
	order           map[ToolCategory][]string
	confirmPatterns []string
	telemetry       Telemetry
}

// NewToolRegistry builds a registry instance.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: map[ToolCategory]map[string]*registeredTool{
			CategoryDirect:          {},
			CategoryConfirmRequired: {},
		},
		order: map[ToolCategory][]string{},
	}
}

// SetTelemetry attaches a diagnostics sink.
func (r *ToolRegistry) SetTelemetry(t Telemetry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = t
}

// SetConfirmPatterns installs glob patterns (doublestar syntax) matched against
// tool names at registration; matching tools are always confirm-required.
func (r *ToolRegistry) SetConfirmPatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid confirm pattern %q", p)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmPatterns = append([]string(nil), patterns...)
	return nil
}

// Register inserts a tool into the category named by its definition. An
// unrecognised category is logged and treated as direct.
func (r *ToolRegistry) Register(ctx context.Context, def ToolDefinition, handler ToolHandler) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTool)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, def.Name)
	}
	switch def.Category {
	case CategoryDirect, CategoryConfirmRequired:
	default:
		log.Warn(ctx,
			log.KV{K: "msg", V: "unknown tool category, defaulting to direct"},
			log.KV{K: "tool", V: def.Name},
			log.KV{K: "category", V: string(def.Category)},
		)
		def.Category = CategoryDirect
	}
	schema, err := compileParameters(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}
	def.Parameters = append([]ToolParameter(nil), def.Parameters...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if def.Category == CategoryDirect && r.matchesConfirmPattern(def.Name) {
		def.Category = CategoryConfirmRequired
	}
	bucket := r.tools[def.Category]
	if _, exists := bucket[def.Name]; exists {
		return fmt.Errorf("%w: %s in %s", ErrToolExists, def.Name, def.Category)
	}
	bucket[def.Name] = &registeredTool{def: def, handler: handler, schema: schema}
	r.order[def.Category] = append(r.order[def.Category], def.Name)
	return nil
}

func (r *ToolRegistry) matchesConfirmPattern(name string) bool {
	for _, p := range r.confirmPatterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Schema returns the definitions of every category in registration order.
func (r *ToolRegistry) Schema() ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ToolSchema{
		Direct:          r.definitions(CategoryDirect),
		ConfirmRequired: r.definitions(CategoryConfirmRequired),
	}
}

func (r *ToolRegistry) definitions(category ToolCategory) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.order[category]))
	for _, name := range r.order[category] {
		out = append(out, r.tools[category][name].def)
	}
	return out
}

// Lookup returns the definition for name, searching direct tools first.
func (r *ToolRegistry) Lookup(name string) (ToolDefinition, bool) {
	tool, ok := r.find(name)
	if !ok {
		return ToolDefinition{}, false
	}
	return tool.def, true
}

// IsConfirmRequired reports whether name is registered in the confirm-required
// category.
func (r *ToolRegistry) IsConfirmRequired(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[CategoryConfirmRequired][name]
	return ok
}

// Names lists the tool names of a category, sorted.
func (r *ToolRegistry) Names(category ToolCategory) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order[category]...)
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) find(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.tools[CategoryDirect][name]; ok {
		return tool, true
	}
	tool, ok := r.tools[CategoryConfirmRequired][name]
	return tool, ok
}

// ValidateArguments checks args against the declared parameters of name.
func (r *ToolRegistry) ValidateArguments(name string, args map[string]any) error {
	tool, ok := r.find(name)
	if !ok {
		return fmt.Errorf("tool %s not registered", name)
	}
	return tool.validate(args)
}

// Execute runs the handler registered for name. It always produces a
// displayable result: handler errors, panics and argument validation failures
// become error strings, and an unknown name yields a generic completion notice.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any, env any) (result string) {
	r.mu.RLock()
	telemetry := r.telemetry
	r.mu.RUnlock()

	tool, ok := r.find(name)
	if !ok {
		Emit(ctx, telemetry, Event{Type: EventToolMissing, Tool: name})
		return fmt.Sprintf("Operation completed: %s (no local implementation)", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := tool.validate(args); err != nil {
		return r.failure(ctx, telemetry, name, fmt.Errorf("invalid arguments: %w", err))
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = r.failure(ctx, telemetry, name, fmt.Errorf("%v", rec))
		}
	}()
	Emit(ctx, telemetry, Event{Type: EventToolCall, Tool: name, Metadata: map[string]any{"args": args}})
	out, err := tool.handler(ctx, args, env)
	if err != nil {
		return r.failure(ctx, telemetry, name, err)
	}
	Emit(ctx, telemetry, Event{Type: EventToolResult, Tool: name, Message: out})
	return out
}

func (r *ToolRegistry) failure(ctx context.Context, telemetry Telemetry, name string, err error) string {
	log.Error(ctx, err, log.KV{K: "msg", V: "tool execution failed"}, log.KV{K: "tool", V: name})
	Emit(ctx, telemetry, Event{Type: EventToolError, Tool: name, Message: err.Error()})
	return fmt.Sprintf("Error executing tool %s: %v", name, err)
}

// validate checks args against the compiled schema. Arguments are normalized
// through JSON first so Go-typed callers and decoded payloads validate alike.
func (t *registeredTool) validate(args map[string]any) error {
	if t.schema == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return t.schema.Validate(doc)
}

// compileParameters turns the parameter list into a JSON schema object. Types
// outside the JSON schema vocabulary (after alias mapping) are left
// unconstrained. Extra arguments are accepted.
func compileParameters(params []ToolParameter) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(params))
	var required []any
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: parameter without name", ErrInvalidTool)
		}
		prop := map[string]any{}
		if t := schemaType(p.Type); t != "" {
			prop["type"] = t
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func schemaType(declared string) string {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "string", "str", "text":
		return "string"
	case "number", "float", "double":
		return "number"
	case "integer", "int":
		return "integer"
	case "boolean", "bool":
		return "boolean"
	case "object", "map":
		return "object"
	case "array", "list":
		return "array"
	default:
		return ""
	}
}
