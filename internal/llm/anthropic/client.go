// Package anthropic adapts the Anthropic Messages API to the llm.Client
// contract. Grounded on the teacher's providers.AnthropicProvider, compacted
// to this module's single-codec Message/ToolCall shape (no beta/computer-use
// path, no attachment handling — neither is in scope here).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// maxEmptyStreamEvents guards against a stream that floods with events that
// carry no usable payload.
const maxEmptyStreamEvents = 300

const defaultModel = "claude-sonnet-4-20250514"

// Client implements llm.Client against the Anthropic API.
type Client struct {
	client       anthropic.Client
	defaultModel string
	retry        llm.RetryPolicy
}

// New builds a Client. apiKey is required; baseURL overrides the default
// endpoint when set (used for proxies/testing).
func New(apiKey, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
		retry:        llm.NewRetryPolicy("anthropic", 3, time.Second),
	}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) SupportsTools() bool { return true }

func (c *Client) Models() []llm.Model {
	return []llm.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextWindow: 200000, SupportsVision: true},
	}
}

// Complete streams a response, retrying stream setup (not mid-stream
// failures) with linearly growing backoff before giving up.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.Chunk, error) {
	chunks := make(chan *llm.Chunk)

	go func() {
		defer close(chunks)

		model := c.model(req.Model)
		params, err := c.buildParams(req, model)
		if err != nil {
			chunks <- &llm.Chunk{Error: fmt.Errorf("anthropic: %w", err)}
			return
		}

		stream, err := c.openStream(ctx, params, model)
		if err != nil {
			chunks <- &llm.Chunk{Error: llm.NewProviderError("anthropic", model, err)}
			return
		}

		processStream(stream, chunks, model)
	}()

	return chunks, nil
}

// openStream opens the stream and peeks its first event so a connection
// failure surfaced before any content has streamed can be retried; once an
// event has been forwarded downstream a failure is no longer retried.
func (c *Client) openStream(ctx context.Context, params *anthropic.MessageNewParams, model string) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err := c.retry.Retry(ctx, llm.IsRetryable, func() error {
		stream = c.client.Messages.NewStreaming(ctx, *params)
		if !stream.Next() {
			if err := stream.Err(); err != nil {
				return err
			}
			return errors.New("anthropic: empty response stream")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *Client) model(requested string) string {
	if requested == "" {
		return c.defaultModel
	}
	return requested
}

func (c *Client) buildParams(req *llm.CompletionRequest, model string) (*anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return params, nil
}

// convertMessages maps dexto.Message (user/assistant/tool roles) onto
// Anthropic's content-block message shape. System messages are dropped here;
// they are carried on params.System instead.
func convertMessages(messages []dexto.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case dexto.RoleSystem:
			continue

		case dexto.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.TextContent())))

		case dexto.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, toolResultText(msg.Result), msg.IsError),
			))

		case dexto.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				content = append(content, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if len(call.Args) > 0 {
					if err := json.Unmarshal(call.Args, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call args for %s: %w", call.Name, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))
		}
	}

	return result, nil
}

func toolResultText(v dexto.ToolResultValue) string {
	if v.Text != "" {
		return v.Text
	}
	return string(v.Structured)
}

func convertTools(tools []llm.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

// processStream consumes Anthropic's SSE event stream, accumulating tool-call
// JSON fragments across input_json_delta events and emitting one llm.Chunk
// per meaningful event. The caller closes chunks. The stream's first event
// has already been fetched by openStream, so the first loop iteration reads
// it via Current() instead of advancing again.
func processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *llm.Chunk, model string) {
	var currentToolCall *dexto.ToolCall
	var currentToolInput strings.Builder
	inThinkingBlock := false
	emptyEvents := 0
	var inputTokens, outputTokens int

	for first := true; first || stream.Next(); first = false {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinkingBlock = true
				chunks <- &llm.Chunk{ThinkingStart: true}
				processed = true
			case "tool_use":
				toolUse := block.AsToolUse()
				currentToolCall = &dexto.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &llm.Chunk{Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- &llm.Chunk{Thinking: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			switch {
			case inThinkingBlock:
				chunks <- &llm.Chunk{ThinkingEnd: true}
				inThinkingBlock = false
				processed = true
			case currentToolCall != nil:
				currentToolCall.Args = json.RawMessage(currentToolInput.String())
				chunks <- &llm.Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			if usage := event.AsMessageDelta().Usage; usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			chunks <- &llm.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return

		case "error":
			chunks <- &llm.Chunk{Error: llm.NewProviderError("anthropic", model, errors.New("anthropic stream error"))}
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				chunks <- &llm.Chunk{Error: llm.NewProviderError("anthropic", model,
					fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEvents))}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &llm.Chunk{Error: llm.NewProviderError("anthropic", model, err)}
	}
}
