package framework

import (
	"encoding/json"
	"regexp"
	"strings"
)

// UIRequestConfirm is the ui_request value with which the agent asks for a
// confirmation step.
const UIRequestConfirm = "confirm"

// ActionPayload is the structured object embedded in a final agent reply.
type ActionPayload struct {
	Action      string         `json:"action,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	UIRequest   string         `json:"ui_request,omitempty"`
	HitlAction  string         `json:"hitl_action,omitempty"`
	Message     string         `json:"message,omitempty"`
	ConfirmText string         `json:"confirm_text,omitempty"`
	CancelText  string         `json:"cancel_text,omitempty"`
}

// WantsConfirm reports whether the agent requested a confirmation round-trip.
func (p *ActionPayload) WantsConfirm() bool {
	return p != nil && p.UIRequest == UIRequestConfirm
}

// Arguments returns Data, never nil.
func (p *ActionPayload) Arguments() map[string]any {
	if p == nil || p.Data == nil {
		return map[string]any{}
	}
	return p.Data
}

// PayloadForm records which embedding convention matched.
type PayloadForm string

const (
	PayloadFenced PayloadForm = "fenced"
	PayloadInline PayloadForm = "inline"
)

// Extraction is the result of a successful ExtractPayload call.
type Extraction struct {
	Payload *ActionPayload
	// Residual is the reply with the matched payload text removed.
	Residual string
	Form     PayloadForm
	// Source is the exact substring that was removed.
	Source string
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractPayload locates an action payload in the final visible text. A
// ```json fenced block wins; otherwise the first balanced top-level {...} is
// used. It returns nil when no candidate is present or the candidate does not
// decode into an object; plain conversational replies are the common case.
func ExtractPayload(text string) *Extraction {
	var (
		candidate string
		source    string
		form      PayloadForm
	)
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		candidate, source, form = match[1], match[0], PayloadFenced
	} else if snippet := firstObjectSnippet(text); snippet != "" {
		candidate, source, form = snippet, snippet, PayloadInline
	} else {
		return nil
	}
	var payload ActionPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil
	}
	return &Extraction{
		Payload:  &payload,
		Residual: strings.Replace(text, source, "", 1),
		Form:     form,
		Source:   source,
	}
}

// firstObjectSnippet returns the first brace-balanced substring starting at an
// opening brace. Braces inside JSON string literals are ignored. An unbalanced
// object yields an empty string.
func firstObjectSnippet(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
