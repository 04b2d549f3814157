// Package openai adapts the OpenAI chat completions API to the llm.Client
// contract. Grounded on the teacher's providers.OpenAIProvider.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Client implements llm.Client against OpenAI's chat completions API.
type Client struct {
	client *openai.Client
	retry  llm.RetryPolicy
}

// New builds a Client. A nil/empty apiKey yields a Client whose Complete
// always fails, mirroring how the teacher keeps the provider constructible
// without credentials so it can still report Name/Models.
func New(apiKey string) *Client {
	c := &Client{retry: llm.NewRetryPolicy("openai", 3, time.Second)}
	if apiKey != "" {
		c.client = openai.NewClient(apiKey)
	}
	return c
}

func (c *Client) Name() string { return "openai" }

func (c *Client) SupportsTools() bool { return true }

func (c *Client) Models() []llm.Model {
	return []llm.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4", Name: "GPT-4", ContextWindow: 8192, SupportsVision: false},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextWindow: 16385, SupportsVision: false},
	}
}

func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.Chunk, error) {
	if c.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages := convertMessages(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := c.retry.Retry(ctx, llm.IsRetryable, func() error {
		s, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", llm.NewProviderError("openai", req.Model, err))
	}

	chunks := make(chan *llm.Chunk)
	go processStream(ctx, stream, chunks)
	return chunks, nil
}

// processStream reassembles OpenAI's per-index tool-call deltas into
// complete dexto.ToolCall values before forwarding them downstream; OpenAI
// streams function-call arguments in fragments keyed by position, not id.
func processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *llm.Chunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*dexto.ToolCall)
	var inputTokens, outputTokens int

	flush := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &llm.Chunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*dexto.ToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &llm.Chunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				chunks <- &llm.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
			chunks <- &llm.Chunk{Error: llm.NewProviderError("openai", "", err), Done: true}
			return
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			chunks <- &llm.Chunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &dexto.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Args = json.RawMessage(string(toolCalls[index].Args) + tc.Function.Arguments)
			}
		}

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func convertMessages(messages []dexto.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case dexto.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.SystemContent})

		case dexto.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.TextContent()})

		case dexto.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Args),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		case dexto.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    toolResultText(msg.Result),
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return result
}

func toolResultText(v dexto.ToolResultValue) string {
	if v.Text != "" {
		return v.Text
	}
	return string(v.Structured)
}

func convertTools(tools []llm.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}
