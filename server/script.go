package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexcodex/dwfcopilot/transport"
)

// DemoChunkSize is the rune width DemoScript cuts replies into. It is small
// enough that reasoning markers straddle envelopes.
const DemoChunkSize = 5

// DemoScript answers a handful of commands so the client can be exercised
// without a model:
//
//	get <path>           direct tool call (get_field)
//	set <path> <value>   direct tool call (set_field), inline payload
//	delete <path>        confirm-required tool call (delete_field)
//	archive              server-side confirmation (ui_request=confirm)
//	fail                 HTTP 502
//
// Anything else is echoed. A resume request is acknowledged.
func DemoScript(req *transport.Request) Reply {
	if req.IsResume() {
		text := fmt.Sprintf("<think>The user confirmed %s.</think>Done: %s was applied on the server.", req.Action, req.Action)
		return Reply{Chunks: SplitChunks(text, DemoChunkSize), State: map[string]any{"confirmed": req.Action}}
	}
	fields := strings.Fields(req.ChatInput)
	if len(fields) == 0 {
		return Reply{Chunks: SplitChunks("<think>Nothing to do.</think>How can I help?", DemoChunkSize)}
	}
	var text string
	switch strings.ToLower(fields[0]) {
	case "get":
		if len(fields) < 2 {
			break
		}
		text = "<think>Reading a field.</think>Let me look that up.\n" +
			fencedPayload(map[string]any{"action": "get_field", "data": map[string]any{"path": fields[1]}})
	case "set":
		if len(fields) < 3 {
			break
		}
		payload, _ := json.Marshal(map[string]any{
			"action": "set_field",
			"data":   map[string]any{"path": fields[1], "value": strings.Join(fields[2:], " ")},
		})
		text = "<think>Updating a field.</think>Updating " + fields[1] + ". " + string(payload) + " Done."
	case "delete":
		if len(fields) < 2 {
			break
		}
		text = "<think>Deleting is destructive.</think>I can remove that for you.\n" +
			fencedPayload(map[string]any{
				"action":  "delete_field",
				"data":    map[string]any{"path": fields[1]},
				"message": fmt.Sprintf("Delete %s?", fields[1]),
			})
	case "archive":
		text = "<think>Archiving needs the server.</think>Archiving requires approval.\n" +
			fencedPayload(map[string]any{
				"ui_request":   "confirm",
				"hitl_action":  "archive_sheet",
				"data":         map[string]any{"sheet": "current"},
				"message":      "Archive the current sheet?",
				"confirm_text": "Archive",
				"cancel_text":  "Keep",
			})
	case "fail":
		return Reply{Status: 502, Chunks: []string{"agent offline"}}
	}
	if text == "" {
		text = fmt.Sprintf("<think>The user said %q.</think>You said: %s", req.ChatInput, req.ChatInput)
	}
	return Reply{
		Chunks: SplitChunks(text, DemoChunkSize),
		State:  map[string]any{"tools": len(req.Tools.Direct) + len(req.Tools.ConfirmRequired)},
	}
}

func fencedPayload(v map[string]any) string {
	data, _ := json.Marshal(v)
	return "```json\n" + string(data) + "\n```"
}

// SplitChunks cuts text into pieces of at most size runes.
func SplitChunks(text string, size int) []string {
	if size <= 0 || text == "" {
		return []string{text}
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
