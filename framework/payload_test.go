package framework

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayloadFencedBlock(t *testing.T) {
	text := "Hello ```json\n{\"action\":\"foo\",\"data\":{\"x\":1}}\n```"
	ext := ExtractPayload(text)
	require.NotNil(t, ext)

	assert.Equal(t, "foo", ext.Payload.Action)
	assert.Equal(t, map[string]any{"x": float64(1)}, ext.Payload.Data)
	assert.Equal(t, "Hello ", ext.Residual)
	assert.Equal(t, PayloadFenced, ext.Form)
}

func TestExtractPayloadInlineFallback(t *testing.T) {
	ext := ExtractPayload(`Sure! {"action":"bar"} done`)
	require.NotNil(t, ext)

	assert.Equal(t, "bar", ext.Payload.Action)
	assert.Nil(t, ext.Payload.Data)
	assert.Equal(t, "Sure!  done", ext.Residual)
	assert.Equal(t, PayloadInline, ext.Form)
}

func TestExtractPayloadFencedWinsOverInline(t *testing.T) {
	text := "{\"action\":\"inline\"}\n```json\n{\"action\":\"fenced\"}\n```"
	ext := ExtractPayload(text)
	require.NotNil(t, ext)
	assert.Equal(t, "fenced", ext.Payload.Action)
	assert.Equal(t, "{\"action\":\"inline\"}\n", ext.Residual)
}

func TestExtractPayloadInvalidFenceDoesNotFallBack(t *testing.T) {
	text := "```json\nnot json\n``` and {\"action\":\"bar\"}"
	assert.Nil(t, ExtractPayload(text))
}

func TestExtractPayloadPlainText(t *testing.T) {
	assert.Nil(t, ExtractPayload("Just a friendly reply."))
	assert.Nil(t, ExtractPayload("unbalanced { brace"))
	assert.Nil(t, ExtractPayload("set {x} please"))
	assert.Nil(t, ExtractPayload(""))
}

func TestExtractPayloadNestedAndStringBraces(t *testing.T) {
	text := `Done: {"action":"note","data":{"text":"curly } inside","n":{"deep":true}}} then {"other":1}`
	ext := ExtractPayload(text)
	require.NotNil(t, ext)
	assert.Equal(t, "note", ext.Payload.Action)
	assert.Equal(t, "curly } inside", ext.Payload.Data["text"])
	assert.Equal(t, `Done:  then {"other":1}`, ext.Residual)
}

func TestExtractPayloadServerConfirmFields(t *testing.T) {
	text := "```json\n{\"ui_request\":\"confirm\",\"hitl_action\":\"drop\",\"data\":{\"id\":\"7\"},\"message\":\"Sure?\",\"confirm_text\":\"Yes\",\"cancel_text\":\"No\"}\n```"
	ext := ExtractPayload(text)
	require.NotNil(t, ext)
	p := ext.Payload
	assert.True(t, p.WantsConfirm())
	assert.Equal(t, "drop", p.HitlAction)
	assert.Equal(t, "Sure?", p.Message)
	assert.Equal(t, "Yes", p.ConfirmText)
	assert.Equal(t, "No", p.CancelText)
	assert.Equal(t, "", ext.Residual)
}

func TestActionPayloadArgumentsNeverNil(t *testing.T) {
	var p *ActionPayload
	assert.NotNil(t, p.Arguments())
	assert.NotNil(t, (&ActionPayload{}).Arguments())
	assert.False(t, p.WantsConfirm())
}

// TestExtractPayloadResidualProperty checks that an inline payload surrounded
// by brace-free prose is always found and cleanly removed.
func TestExtractPayloadResidualProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("inline payload is removed from prose", prop.ForAll(
		func(before, after, action string) bool {
			if strings.ContainsAny(before+after, "{}`") {
				return true
			}
			body := `{"action":"` + action + `"}`
			ext := ExtractPayload(before + body + after)
			return ext != nil &&
				ext.Payload.Action == action &&
				ext.Residual == before+after
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
