package framework

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RenderToolSchema converts the registry schema into a readable listing, one
// section per category.
func RenderToolSchema(schema ToolSchema) string {
	if len(schema.Direct) == 0 && len(schema.ConfirmRequired) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	renderCategory(&b, "Direct tools (run immediately)", schema.Direct)
	renderCategory(&b, "Confirm-required tools (ask before running)", schema.ConfirmRequired)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderCategory(b *strings.Builder, title string, defs []ToolDefinition) {
	if len(defs) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("# %s\n", title))
	for _, def := range defs {
		b.WriteString(fmt.Sprintf("## %s\n", def.Name))
		if def.Description != "" {
			b.WriteString(fmt.Sprintf("%s\n", def.Description))
		}
		b.WriteString("Arguments:\n")
		if len(def.Parameters) == 0 {
			b.WriteString("  (No arguments)\n")
		} else {
			for _, param := range def.Parameters {
				req := "optional"
				if param.Required {
					req = "required"
				}
				b.WriteString(fmt.Sprintf("  - %s (%s, %s): %s\n", param.Name, param.Type, req, param.Description))
			}
		}
		b.WriteString("\n")
	}
}

// FormatToolArgs renders arguments as sorted "key: value" lines for the data
// panel. Nested values are rendered as compact JSON.
func FormatToolArgs(args map[string]any) []string {
	if len(args) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, formatArgValue(args[k])))
	}
	return lines
}

func formatArgValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
