package openai

import (
	"encoding/json"
	"testing"

	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

func TestNameModelsSupportsTools(t *testing.T) {
	c := New("sk-test")
	if c.Name() != "openai" {
		t.Fatalf("expected name 'openai', got %q", c.Name())
	}
	if !c.SupportsTools() {
		t.Fatal("expected SupportsTools to be true")
	}
	if len(c.Models()) == 0 {
		t.Fatal("expected at least one model")
	}
}

func TestCompleteWithoutAPIKeyErrors(t *testing.T) {
	c := New("")
	_, err := c.Complete(nil, &llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected Complete without an API key to error")
	}
}

func TestConvertMessagesIncludesSystemPrompt(t *testing.T) {
	result := convertMessages(nil, "be helpful")
	if len(result) != 1 || result[0].Role != "system" {
		t.Fatalf("expected a single system message, got %+v", result)
	}
}

func TestConvertMessagesToolRole(t *testing.T) {
	messages := []dexto.Message{
		{Role: dexto.RoleTool, ToolCallID: "call_1", Result: dexto.ToolResultValue{Text: "42"}},
	}
	result := convertMessages(messages, "")
	if len(result) != 1 || result[0].Role != "tool" || result[0].ToolCallID != "call_1" {
		t.Fatalf("expected a tool message with call id preserved, got %+v", result)
	}
}

func TestConvertMessagesAssistantToolCalls(t *testing.T) {
	messages := []dexto.Message{
		{
			Role: dexto.RoleAssistant,
			Text: "let me check",
			ToolCalls: []dexto.ToolCall{
				{ID: "call_1", Name: "search", Args: json.RawMessage(`{"q":"x"}`)},
			},
		},
	}
	result := convertMessages(messages, "")
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if len(result[0].ToolCalls) != 1 || result[0].ToolCalls[0].Function.Name != "search" {
		t.Fatalf("expected tool call to round-trip, got %+v", result[0].ToolCalls)
	}
}

func TestConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	tools := []llm.ToolSpec{{Name: "search", Schema: json.RawMessage(`not-json`)}}
	result := convertTools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	if result[0].Function.Parameters == nil {
		t.Fatal("expected a fallback empty-object schema, not nil")
	}
}
