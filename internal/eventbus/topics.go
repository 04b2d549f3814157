package eventbus

// Topic is a fixed string constant; each topic has one payload shape (spec §4.1).
// Only the owning component ever emits a given topic — there is no fan-in.
type Topic string

const (
	TopicLLMThinking EventTopic = "llmservice:thinking"
	TopicLLMChunk    EventTopic = "llmservice:chunk"
	TopicLLMResponse EventTopic = "llmservice:response"
	TopicLLMError    EventTopic = "llmservice:error"

	TopicToolCall   EventTopic = "dexto:toolCall"
	TopicToolResult EventTopic = "dexto:toolResult"

	TopicApprovalRequest  EventTopic = "dexto:approvalRequest"
	TopicApprovalResponse EventTopic = "dexto:approvalResponse"

	TopicConversationReset   EventTopic = "dexto:conversationReset"
	TopicSessionTitleUpdated EventTopic = "dexto:sessionTitleUpdated"

	TopicMcpServerConnected    EventTopic = "dexto:mcpServerConnected"
	TopicMcpServerDisconnected EventTopic = "dexto:mcpServerDisconnected"
	TopicResourceUpdated       EventTopic = "dexto:resourceUpdated"
)

// EventTopic is the canonical alias; Topic exists only for readability above.
type EventTopic = Topic

// ChunkType distinguishes the kinds of streamed chunk payloads.
type ChunkType string

const (
	ChunkToken     ChunkType = "token"
	ChunkThinking  ChunkType = "thinking"
	ChunkToolDelta ChunkType = "tool-delta"
)

// ThinkingPayload is the payload shape for TopicLLMThinking.
type ThinkingPayload struct {
	SessionID string
	RunID     string
}

// ResponsePayload is the payload shape for TopicLLMResponse.
type ResponsePayload struct {
	SessionID    string
	RunID        string
	Text         string
	ToolCalls    int
	InputTokens  int
	OutputTokens int
}

// ChunkPayload is the payload shape for TopicLLMChunk.
type ChunkPayload struct {
	SessionID  string
	Type       ChunkType
	Content    string
	IsComplete bool
}

// ToolCallPayload is the payload shape for TopicToolCall.
type ToolCallPayload struct {
	SessionID string
	CallID    string
	Name      string
	Args      string
}

// ToolResultPayload is the payload shape for TopicToolResult.
type ToolResultPayload struct {
	SessionID string
	CallID    string
	Name      string
	Result    string
	IsError   bool
}

// ApprovalRequestPayload is the payload shape for TopicApprovalRequest.
type ApprovalRequestPayload struct {
	ApprovalID string
	SessionID  string
	Type       string
	ToolName   string
	Args       string
	TimeoutMs  int64
}

// ApprovalResponsePayload is the payload shape for TopicApprovalResponse.
type ApprovalResponsePayload struct {
	ApprovalID     string
	SessionID      string
	Status         string
	RememberChoice bool
}

// ErrorPayload is the payload shape for TopicLLMError.
type ErrorPayload struct {
	SessionID string
	RunID     string
	Code      string
	Message   string
}
