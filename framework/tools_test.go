package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(result string) ToolHandler {
	return func(ctx context.Context, args map[string]any, env any) (string, error) {
		return result, nil
	}
}

func TestToolRegistryRegisterAndSchema(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "b_tool", Category: CategoryDirect}, echoHandler("b")))
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "a_tool", Category: CategoryDirect}, echoHandler("a")))
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "drop", Category: CategoryConfirmRequired}, echoHandler("x")))

	schema := reg.Schema()
	require.Len(t, schema.Direct, 2)
	assert.Equal(t, "b_tool", schema.Direct[0].Name)
	assert.Equal(t, "a_tool", schema.Direct[1].Name)
	require.Len(t, schema.ConfirmRequired, 1)
	assert.Equal(t, "drop", schema.ConfirmRequired[0].Name)

	assert.Equal(t, []string{"a_tool", "b_tool"}, reg.Names(CategoryDirect))
	assert.True(t, reg.IsConfirmRequired("drop"))
	assert.False(t, reg.IsConfirmRequired("a_tool"))
}

func TestToolRegistryEmptySchemaHasEmptyLists(t *testing.T) {
	schema := NewToolRegistry().Schema()
	assert.NotNil(t, schema.Direct)
	assert.NotNil(t, schema.ConfirmRequired)
	assert.Empty(t, schema.Direct)
}

func TestToolRegistryUnknownCategoryDefaultsToDirect(t *testing.T) {
	reg := NewToolRegistry()
	err := reg.Register(context.Background(), ToolDefinition{Name: "odd", Category: "mystery"}, echoHandler("ok"))
	require.NoError(t, err)

	def, ok := reg.Lookup("odd")
	require.True(t, ok)
	assert.Equal(t, CategoryDirect, def.Category)
	assert.Equal(t, []string{"odd"}, reg.Names(CategoryDirect))
}

func TestToolRegistryRejectsDuplicatesWithinCategory(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "dup", Category: CategoryDirect}, echoHandler("1")))

	err := reg.Register(ctx, ToolDefinition{Name: "dup", Category: CategoryDirect}, echoHandler("2"))
	require.ErrorIs(t, err, ErrToolExists)

	// Same name in the other category is a different key.
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "dup", Category: CategoryConfirmRequired}, echoHandler("3")))
	assert.Equal(t, "1", reg.Execute(ctx, "dup", nil, nil), "direct is searched first")
}

func TestToolRegistryRejectsInvalidDefinitions(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	assert.ErrorIs(t, reg.Register(ctx, ToolDefinition{Name: " "}, echoHandler("x")), ErrInvalidTool)
	assert.ErrorIs(t, reg.Register(ctx, ToolDefinition{Name: "nil_handler"}, nil), ErrInvalidTool)
}

func TestToolRegistryExecuteNeverFails(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	counter := NewCounterTelemetry()
	reg.SetTelemetry(counter)
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "fails", Category: CategoryDirect},
		func(ctx context.Context, args map[string]any, env any) (string, error) {
			return "", errors.New("boom")
		}))
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "panics", Category: CategoryConfirmRequired},
		func(ctx context.Context, args map[string]any, env any) (string, error) {
			panic("kaboom")
		}))

	out := reg.Execute(ctx, "fails", map[string]any{}, nil)
	assert.Contains(t, out, "boom")
	assert.Equal(t, "Error executing tool fails: boom", out)

	out = reg.Execute(ctx, "panics", nil, nil)
	assert.Contains(t, out, "kaboom")

	out = reg.Execute(ctx, "nowhere", nil, nil)
	assert.Equal(t, "Operation completed: nowhere (no local implementation)", out)

	assert.Equal(t, 2, counter.Count(EventToolError))
	assert.Equal(t, 1, counter.Count(EventToolMissing))
}

func TestToolRegistryExecutePassesArgsAndEnv(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	type env struct{ name string }
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "greet", Category: CategoryDirect},
		func(ctx context.Context, args map[string]any, e any) (string, error) {
			return args["greeting"].(string) + ", " + e.(*env).name, nil
		}))

	out := reg.Execute(ctx, "greet", map[string]any{"greeting": "hello"}, &env{name: "sheet"})
	assert.Equal(t, "hello, sheet", out)
}

func TestToolRegistryValidatesArguments(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	called := false
	require.NoError(t, reg.Register(ctx, ToolDefinition{
		Name:     "set_stock",
		Category: CategoryDirect,
		Parameters: []ToolParameter{
			{Name: "sku", Type: "string", Required: true},
			{Name: "qty", Type: "int", Required: true},
			{Name: "note", Type: "anything"},
		},
	}, func(ctx context.Context, args map[string]any, env any) (string, error) {
		called = true
		return "ok", nil
	}))

	out := reg.Execute(ctx, "set_stock", map[string]any{"sku": "A1"}, nil)
	assert.Contains(t, out, "Error executing tool set_stock: invalid arguments")
	assert.False(t, called)

	out = reg.Execute(ctx, "set_stock", map[string]any{"sku": "A1", "qty": "many"}, nil)
	assert.Contains(t, out, "invalid arguments")
	assert.False(t, called)

	out = reg.Execute(ctx, "set_stock", map[string]any{"sku": "A1", "qty": float64(3), "note": []any{1}}, nil)
	assert.Equal(t, "ok", out)
	assert.True(t, called)

	require.NoError(t, reg.ValidateArguments("set_stock", map[string]any{"sku": "B", "qty": 1}))
	require.Error(t, reg.ValidateArguments("missing", nil))
}

func TestToolRegistryConfirmPatterns(t *testing.T) {
	ctx := context.Background()
	reg := NewToolRegistry()
	require.Error(t, reg.SetConfirmPatterns([]string{"[unclosed"}))
	require.NoError(t, reg.SetConfirmPatterns([]string{"delete_*", "*_all"}))

	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "delete_row", Category: CategoryDirect}, echoHandler("x")))
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "clear_all", Category: CategoryDirect}, echoHandler("x")))
	require.NoError(t, reg.Register(ctx, ToolDefinition{Name: "get_row", Category: CategoryDirect}, echoHandler("x")))

	assert.True(t, reg.IsConfirmRequired("delete_row"))
	assert.True(t, reg.IsConfirmRequired("clear_all"))
	assert.False(t, reg.IsConfirmRequired("get_row"))
}

func TestRenderToolSchema(t *testing.T) {
	assert.Equal(t, "No tools available.", RenderToolSchema(ToolSchema{}))

	out := RenderToolSchema(ToolSchema{
		Direct: []ToolDefinition{{
			Name:        "get_field",
			Description: "Read a value",
			Parameters:  []ToolParameter{{Name: "path", Type: "string", Required: true, Description: "dotted path"}},
		}},
		ConfirmRequired: []ToolDefinition{{Name: "wipe"}},
	})
	assert.Contains(t, out, "## get_field")
	assert.Contains(t, out, "  - path (string, required): dotted path")
	assert.Contains(t, out, "# Confirm-required tools")
	assert.Contains(t, out, "  (No arguments)")
}

func TestFormatToolArgs(t *testing.T) {
	assert.Nil(t, FormatToolArgs(nil))
	lines := FormatToolArgs(map[string]any{
		"qty":  float64(2),
		"item": map[string]any{"sku": "A1"},
		"name": "bolt",
		"tags": []any{"x"},
		"none": nil,
	})
	assert.Equal(t, []string{
		`item: {"sku":"A1"}`,
		"name: bolt",
		"none: null",
		"qty: 2",
		`tags: ["x"]`,
	}, lines)
}
