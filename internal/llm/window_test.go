package llm

import (
	"testing"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

func textMsg(role dexto.Role, text string) dexto.Message {
	switch role {
	case dexto.RoleUser:
		return *dexto.NewUserMessage("m", "s", text)
	case dexto.RoleSystem:
		return dexto.Message{Role: dexto.RoleSystem, SystemContent: text}
	default:
		return dexto.Message{Role: role, Text: text}
	}
}

func TestEstimateTokensScalesWithLength(t *testing.T) {
	short := EstimateTokens("hi")
	long := EstimateTokens("this is a substantially longer piece of text")
	if long <= short {
		t.Fatalf("expected longer text to estimate more tokens: short=%d long=%d", short, long)
	}
}

func TestEstimateTokensEmptyIsZero(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestResolveContextWindowExactMatch(t *testing.T) {
	if got := ResolveContextWindow("gpt-4o"); got != 128000 {
		t.Fatalf("expected 128000, got %d", got)
	}
}

func TestResolveContextWindowPrefixMatch(t *testing.T) {
	if got := ResolveContextWindow("gpt-4o-mini-2024"); got != 128000 {
		t.Fatalf("expected prefix match to resolve 128000, got %d", got)
	}
}

func TestResolveContextWindowUnknownFallsBackToDefault(t *testing.T) {
	if got := ResolveContextWindow("some-unknown-model"); got != DefaultContextWindow {
		t.Fatalf("expected default context window, got %d", got)
	}
}

func TestTrimNoopWhenUnderBudget(t *testing.T) {
	messages := []dexto.Message{
		textMsg(dexto.RoleSystem, "be helpful"),
		textMsg(dexto.RoleUser, "hi"),
	}
	trimmed, result := Trim(messages, 10000, 2)
	if len(trimmed) != len(messages) {
		t.Fatalf("expected no trimming, got %d messages", len(trimmed))
	}
	if result.RemovedGroups != 0 {
		t.Fatalf("expected 0 removed groups, got %d", result.RemovedGroups)
	}
}

func TestTrimDropsOldestTurnsKeepingSystemAndTail(t *testing.T) {
	longText := ""
	for i := 0; i < 200; i++ {
		longText += "filler "
	}

	var messages []dexto.Message
	messages = append(messages, textMsg(dexto.RoleSystem, "be helpful"))
	for i := 0; i < 5; i++ {
		messages = append(messages, textMsg(dexto.RoleUser, longText))
		messages = append(messages, textMsg(dexto.RoleAssistant, longText))
	}

	trimmed, result := Trim(messages, 120, 1)

	if result.RemovedGroups == 0 {
		t.Fatal("expected some turns to be removed")
	}
	if trimmed[0].Role != dexto.RoleSystem {
		t.Fatalf("expected system message to survive trimming, got role %s", trimmed[0].Role)
	}
	last := trimmed[len(trimmed)-1]
	if last.Role != dexto.RoleAssistant {
		t.Fatalf("expected the most recent turn to survive, got role %s as last message", last.Role)
	}
}

func TestTrimKeepsToolCallAndResultTogether(t *testing.T) {
	assistantWithCall := dexto.Message{
		Role: dexto.RoleAssistant,
		ToolCalls: []dexto.ToolCall{
			{ID: "call_1", Name: "search", Args: []byte(`{"q":"x"}`)},
		},
	}
	toolResult := dexto.Message{
		Role:       dexto.RoleTool,
		ToolCallID: "call_1",
		Result:     dexto.ToolResultValue{Text: "found it"},
	}

	messages := []dexto.Message{
		textMsg(dexto.RoleSystem, "be helpful"),
		textMsg(dexto.RoleUser, "search for x"),
		assistantWithCall,
		toolResult,
	}

	trimmed, _ := Trim(messages, 1, 1)

	hasCall, hasResult := false, false
	for _, msg := range trimmed {
		if msg.Role == dexto.RoleAssistant && len(msg.ToolCalls) > 0 {
			hasCall = true
		}
		if msg.Role == dexto.RoleTool {
			hasResult = true
		}
	}
	if hasCall != hasResult {
		t.Fatalf("expected tool call and its result to be kept or dropped together, got call=%v result=%v", hasCall, hasResult)
	}
}
