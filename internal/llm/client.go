// Package llm implements the LLM Subsystem (spec §4.10): a provider-neutral
// Client contract plus Anthropic, OpenAI, and Gemini adapters, a shared
// retry helper, and a context-window trimmer used by the run
// loop before every completion request.
package llm

import (
	"context"
	"encoding/json"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Client is the unified shape every provider adapter implements, matching
// the teacher's agent.LLMProvider contract generalized to this module's
// Message/ToolCall types.
type Client interface {
	// Complete streams a response over the returned channel, which is
	// closed once a final chunk (Done or Error set) has been sent.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}

// CompletionRequest carries everything a provider needs for one completion.
type CompletionRequest struct {
	Model                string
	System               string
	Messages             []dexto.Message
	Tools                []ToolSpec
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// ToolSpec is a tool's name/description/schema as presented to a provider,
// independent of how the tool itself is implemented or dispatched.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Chunk is one streamed piece of a completion, mirroring the teacher's
// CompletionChunk shape (text/thinking/tool-call/usage/terminal fields all
// live on one struct so a single channel carries the whole stream).
type Chunk struct {
	Text string

	ToolCall *dexto.ToolCall

	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool

	InputTokens  int
	OutputTokens int

	Done  bool
	Error error
}

// Model describes one model a Client can target.
type Model struct {
	ID             string
	Name           string
	ContextWindow  int
	SupportsVision bool
}
