package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexcodex/dwfcopilot/framework"
)

var errNoAppState = errors.New("tool environment carries no app state")

func appStateFromEnv(env any) (*AppState, error) {
	state, ok := env.(*AppState)
	if !ok || state == nil {
		return nil, errNoAppState
	}
	return state, nil
}

func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// BuiltinTool pairs a definition with its handler.
type BuiltinTool struct {
	Definition framework.ToolDefinition
	Handler    framework.ToolHandler
}

// BuiltinTools returns the app-state tools registered by default. Handlers
// expect the *AppState as their environment.
func BuiltinTools() []BuiltinTool {
	pathParam := framework.ToolParameter{Name: "path", Type: "string", Description: "Dotted key, e.g. inventory.A1.qty", Required: true}
	return []BuiltinTool{
		{
			Definition: framework.ToolDefinition{
				Name:        "get_field",
				Description: "Read a value from the application state",
				Parameters:  []framework.ToolParameter{pathParam},
				Category:    framework.CategoryDirect,
			},
			Handler: getField,
		},
		{
			Definition: framework.ToolDefinition{
				Name:        "set_field",
				Description: "Write a value into the application state",
				Parameters: []framework.ToolParameter{
					pathParam,
					{Name: "value", Type: "any", Description: "New value; strings are coerced to bool/number when possible", Required: true},
				},
				Category: framework.CategoryDirect,
			},
			Handler: setField,
		},
		{
			Definition: framework.ToolDefinition{
				Name:        "list_fields",
				Description: "List state keys under an optional prefix",
				Parameters:  []framework.ToolParameter{{Name: "prefix", Type: "string", Description: "Dotted prefix"}},
				Category:    framework.CategoryDirect,
			},
			Handler: listFields,
		},
		{
			Definition: framework.ToolDefinition{
				Name:        "delete_field",
				Description: "Remove a value from the application state",
				Parameters:  []framework.ToolParameter{pathParam},
				Category:    framework.CategoryConfirmRequired,
			},
			Handler: deleteField,
		},
		{
			Definition: framework.ToolDefinition{
				Name:        "reset_state",
				Description: "Clear the whole application state",
				Category:    framework.CategoryConfirmRequired,
			},
			Handler: resetState,
		},
	}
}

// RegisterBuiltinTools adds BuiltinTools to registry.
func RegisterBuiltinTools(ctx context.Context, registry *framework.ToolRegistry) error {
	for _, tool := range BuiltinTools() {
		if err := registry.Register(ctx, tool.Definition, tool.Handler); err != nil {
			return err
		}
	}
	return nil
}

func getField(ctx context.Context, args map[string]any, env any) (string, error) {
	state, err := appStateFromEnv(env)
	if err != nil {
		return "", err
	}
	path := stringArg(args, "path")
	value, ok := state.Get(path)
	if !ok {
		return "", fmt.Errorf("%s not found", path)
	}
	return fmt.Sprintf("%s = %s", path, PrettyValue(value)), nil
}

func setField(ctx context.Context, args map[string]any, env any) (string, error) {
	state, err := appStateFromEnv(env)
	if err != nil {
		return "", err
	}
	path := stringArg(args, "path")
	value := args["value"]
	if s, ok := value.(string); ok {
		value = ParseValue(s)
	}
	if err := state.Set(path, value); err != nil {
		return "", err
	}
	return fmt.Sprintf("Set %s = %s", path, PrettyValue(value)), nil
}

func listFields(ctx context.Context, args map[string]any, env any) (string, error) {
	state, err := appStateFromEnv(env)
	if err != nil {
		return "", err
	}
	keys := state.Keys(stringArg(args, "prefix"))
	if len(keys) == 0 {
		return "No fields.", nil
	}
	return strings.Join(keys, "\n"), nil
}

func deleteField(ctx context.Context, args map[string]any, env any) (string, error) {
	state, err := appStateFromEnv(env)
	if err != nil {
		return "", err
	}
	path := stringArg(args, "path")
	removed, err := state.Delete(path)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", fmt.Errorf("%s not found", path)
	}
	return fmt.Sprintf("Deleted %s", path), nil
}

func resetState(ctx context.Context, args map[string]any, env any) (string, error) {
	state, err := appStateFromEnv(env)
	if err != nil {
		return "", err
	}
	if err := state.Reset(); err != nil {
		return "", err
	}
	return "Application state cleared", nil
}
