package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/dwfcopilot/framework"
	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

// CommandHandler mutates model state for /commands in the prompt bar.
type CommandHandler func(Model, []string) (Model, tea.Cmd)

// Command describes a slash command entry.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     CommandHandler
}

var commandRegistry = map[string]Command{}

func init() {
	registerCommand(Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Handler:     handleHelp,
	})
	registerCommand(Command{
		Name:        "clear",
		Aliases:     []string{"cls"},
		Description: "Clear chat history",
		Usage:       "/clear",
		Handler:     handleClear,
	})
	registerCommand(Command{
		Name:        "tools",
		Aliases:     []string{"t"},
		Description: "Show the tools advertised to the agent",
		Usage:       "/tools",
		Handler:     handleTools,
	})
	registerCommand(Command{
		Name:        "state",
		Aliases:     []string{"s"},
		Description: "Show application state fields",
		Usage:       "/state [prefix]",
		Handler:     handleState,
	})
	registerCommand(Command{
		Name:        "pending",
		Aliases:     []string{"p"},
		Description: "Show the pending confirmation request",
		Usage:       "/pending",
		Handler:     handlePending,
	})
	registerCommand(Command{
		Name:        "confirm",
		Aliases:     []string{"y"},
		Description: "Confirm the pending request",
		Usage:       "/confirm",
		Handler:     handleConfirm,
	})
	registerCommand(Command{
		Name:        "cancel",
		Aliases:     []string{"n"},
		Description: "Cancel the pending request",
		Usage:       "/cancel",
		Handler:     handleCancel,
	})
}

func registerCommand(cmd Command) {
	commandRegistry[cmd.Name] = cmd
}

// parseCommand splits the slash-prefixed input into command + args.
func parseCommand(input string) (string, []string) {
	parts := strings.Fields(input)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil
	}
	return strings.TrimPrefix(parts[0], "/"), parts[1:]
}

// handleCommand finds the registered command (with alias fallback).
func handleCommand(m Model, name string, args []string) (Model, tea.Cmd) {
	if name == "" {
		return m, nil
	}
	cmd, ok := commandRegistry[name]
	if !ok {
		for _, registered := range commandRegistry {
			for _, alias := range registered.Aliases {
				if alias == name {
					cmd = registered
					ok = true
				}
			}
		}
	}
	if !ok {
		return m.addSystemMessage(fmt.Sprintf("Unknown command: %s", name)), nil
	}
	return cmd.Handler(m, args)
}

func handleHelp(m Model, args []string) (Model, tea.Cmd) {
	if len(args) > 0 {
		if cmd, ok := commandRegistry[args[0]]; ok {
			return m.addSystemMessage(fmt.Sprintf("%s - %s\nUsage: %s", cmd.Name, cmd.Description, cmd.Usage)), nil
		}
	}
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		cmd := commandRegistry[name]
		b.WriteString(fmt.Sprintf("\n  %s - %s", cmd.Usage, cmd.Description))
	}
	return m.addSystemMessage(b.String()), nil
}

func handleClear(m Model, args []string) (Model, tea.Cmd) {
	m.messages = nil
	return m.addSystemMessage("History cleared"), nil
}

func handleTools(m Model, args []string) (Model, tea.Cmd) {
	if m.runtime == nil {
		return m.addSystemMessage("No runtime attached"), nil
	}
	return m.addSystemMessage(framework.RenderToolSchema(m.runtime.Tools.Schema())), nil
}

func handleState(m Model, args []string) (Model, tea.Cmd) {
	if m.runtime == nil || m.runtime.State == nil {
		return m.addSystemMessage("No runtime attached"), nil
	}
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	return m.addSystemMessage(describeState(m.runtime.State, prefix)), nil
}

func describeState(state *runtimesvc.AppState, prefix string) string {
	keys := state.Keys(prefix)
	if len(keys) == 0 {
		return "No fields."
	}
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value, _ := state.Get(key)
		lines = append(lines, fmt.Sprintf("%s: %s", key, runtimesvc.PrettyValue(value)))
	}
	return strings.Join(lines, "\n")
}

func handlePending(m Model, args []string) (Model, tea.Cmd) {
	req := m.session.Pending()
	if req == nil {
		return m.addSystemMessage("No pending request"), nil
	}
	return m.addSystemMessage(fmt.Sprintf("%s (%s): %s", req.Action, req.Origin, req.Message)), nil
}

func handleConfirm(m Model, args []string) (Model, tea.Cmd) {
	if m.session.Pending() == nil {
		return m.addSystemMessage("No pending request"), nil
	}
	return m.confirmPending()
}

func handleCancel(m Model, args []string) (Model, tea.Cmd) {
	if m.session.Pending() == nil {
		return m.addSystemMessage("No pending request"), nil
	}
	return m.cancelPending()
}
