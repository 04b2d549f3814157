// Package dexto contains the data model shared across the agent core:
// messages, sessions, tool calls, and approvals. Types here are persisted
// through the storage contract and carried on the event bus; they hold no
// behavior of their own.
package dexto

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentPartType distinguishes the parts that make up a user message.
type ContentPartType string

const (
	ContentText     ContentPartType = "text"
	ContentImageRef ContentPartType = "image-ref"
	ContentFileRef  ContentPartType = "file-ref"
)

// ContentPart is one element of a user message's content array.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	Text string          `json:"text,omitempty"`
	// BlobHandle references bytes in the BlobStore for image-ref/file-ref parts.
	BlobHandle string `json:"blob_handle,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// ToolCallSource identifies where a tool call is dispatched.
type ToolCallSource string

const internalToolSource ToolCallSource = "internal"

// MCPToolSource builds the source tag for a tool hosted on the named MCP server.
func MCPToolSource(serverName string) ToolCallSource {
	return ToolCallSource("mcp:" + serverName)
}

// InternalToolSource is the source tag for built-in tools.
func InternalToolSource() ToolCallSource { return internalToolSource }

// ToolCall is a structured request by the LLM to invoke a named tool.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
	Source ToolCallSource  `json:"source,omitempty"`
}

// TokenUsage reports input/output token counts for an assistant turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolResultValue is the payload a tool message carries — either a plain
// string or a structured JSON value, per spec §3.
type ToolResultValue struct {
	Text       string          `json:"text,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// Message is a tagged variant over the four roles in §3. Only the fields
// relevant to Role are populated; the rest are left zero.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`

	// user
	Content []ContentPart `json:"content,omitempty"`

	// assistant
	Text       string      `json:"text,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`

	// tool
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Result     ToolResultValue `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	// system
	SystemContent string `json:"system_content,omitempty"`
}

// TextContent returns a flattened text view of a user message's content parts,
// concatenating text parts and ignoring blob refs. Used for token counting
// and logging, never for building provider requests (which need the refs).
func (m *Message) TextContent() string {
	if m.Role != RoleUser {
		if m.Role == RoleSystem {
			return m.SystemContent
		}
		return m.Text
	}
	out := ""
	for _, p := range m.Content {
		if p.Type == ContentText {
			out += p.Text
		}
	}
	return out
}

// NewUserMessage builds a user message from plain text, the common case.
func NewUserMessage(id, sessionID, text string) *Message {
	return &Message{
		ID:        id,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Role:      RoleUser,
		Content:   []ContentPart{{Type: ContentText, Text: text}},
	}
}
