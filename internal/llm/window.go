package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Default token bookkeeping constants. Grounded on the teacher's
// context.Window (internal/context/window.go).
const (
	DefaultContextWindow = 128000
	MinContextWindow     = 16000
	WarnBelowTokens      = 32000

	// tokensPerChar is a tokens-per-character estimate (about four
	// characters per token) used in the absence of a real tokenizer.
	tokensPerChar = 0.25
)

// modelContextWindows maps a model ID (or prefix) to its context window,
// used when a provider's llm.Model metadata doesn't already resolve it.
var modelContextWindows = map[string]int{
	"claude-opus-4":     200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,
	"gpt-4o":            128000,
	"gpt-4-turbo":       128000,
	"gpt-4":             8192,
	"gpt-3.5-turbo":     16385,
	"gemini-2.0-flash":  1000000,
	"gemini-1.5-pro":    2000000,
	"gemini-1.5-flash":  1000000,
}

// EstimateTokens estimates token count for text using a conservative
// characters-per-token ratio. Not a substitute for a provider's own
// tokenizer, but good enough for trimming decisions made before a request
// goes out.
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	tokens := int(float64(chars) * tokensPerChar)
	if tokens == 0 && chars > 0 {
		return 1
	}
	return tokens
}

// EstimateMessageTokens estimates the tokens a message will cost on the
// wire, adding a small per-message overhead for role/formatting.
func EstimateMessageTokens(msg dexto.Message) int {
	tokens := EstimateTokens(msg.TextContent()) + 4
	for _, tc := range msg.ToolCalls {
		tokens += EstimateTokens(tc.Name) + EstimateTokens(string(tc.Args))
	}
	if msg.Role == dexto.RoleTool {
		tokens += EstimateTokens(msg.Result.Text) + EstimateTokens(string(msg.Result.Structured))
	}
	return tokens
}

// ResolveContextWindow looks up a model's context window, trying an exact
// match then the longest matching prefix, falling back to DefaultContextWindow.
func ResolveContextWindow(modelID string) int {
	if tokens, ok := modelContextWindows[modelID]; ok {
		return tokens
	}
	best := ""
	bestTokens := 0
	for prefix, tokens := range modelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best, bestTokens = prefix, tokens
		}
	}
	if best != "" {
		return bestTokens
	}
	return DefaultContextWindow
}

// TrimResult reports what a Trim call did.
type TrimResult struct {
	OriginalCount int
	KeptCount     int
	RemovedGroups int
	TokensFreed   int
}

// Trim drops the oldest turns from messages until the estimated token total
// fits within maxTokens, always preserving system messages and the most
// recent keepLastTurns turns.
//
// A "turn" is one user message plus everything up to (not including) the
// next user or system message — this keeps an assistant message's
// tool_calls glued to the tool-result messages answering them, since a
// provider rejects a request where either side of that pairing is missing.
func Trim(messages []dexto.Message, maxTokens int, keepLastTurns int) ([]dexto.Message, TrimResult) {
	result := TrimResult{OriginalCount: len(messages)}
	if maxTokens <= 0 || len(messages) == 0 {
		result.KeptCount = len(messages)
		return messages, result
	}

	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	if total <= maxTokens {
		result.KeptCount = len(messages)
		return messages, result
	}

	turns := groupIntoTurns(messages)
	if keepLastTurns < 0 {
		keepLastTurns = 0
	}

	kept := make([]bool, len(turns))
	tokens := make([]int, len(turns))
	keptTokens := 0
	removableLast := 0
	for i, turn := range turns {
		kept[i] = true
		for _, msg := range turn {
			tokens[i] += EstimateMessageTokens(msg)
		}
		keptTokens += tokens[i]
		if !(len(turn) > 0 && turn[0].Role == dexto.RoleSystem) {
			removableLast++
		}
	}

	protectedTail := keepLastTurns
	seenRemovable := 0
	for i := 0; i < len(turns) && keptTokens > maxTokens; i++ {
		if len(turns[i]) > 0 && turns[i][0].Role == dexto.RoleSystem {
			continue // system turns are never dropped
		}
		if removableLast-seenRemovable <= protectedTail {
			break // only the protected tail remains; stop trimming
		}
		seenRemovable++
		kept[i] = false
		keptTokens -= tokens[i]
		result.RemovedGroups++
		result.TokensFreed += tokens[i]
	}

	var final []dexto.Message
	for i, turn := range turns {
		if kept[i] {
			final = append(final, turn...)
		}
	}

	result.KeptCount = len(final)
	return final, result
}

// groupIntoTurns splits messages into runs starting at each user or system
// message.
func groupIntoTurns(messages []dexto.Message) [][]dexto.Message {
	var turns [][]dexto.Message
	var current []dexto.Message

	for _, msg := range messages {
		if msg.Role == dexto.RoleUser || msg.Role == dexto.RoleSystem {
			if len(current) > 0 {
				turns = append(turns, current)
			}
			current = []dexto.Message{msg}
			continue
		}
		current = append(current, msg)
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns
}
