// Package gemini adapts Google's Gemini API to the llm.Client contract.
// Grounded on the teacher's providers.GoogleProvider, compacted to this
// module's message/tool shape (no attachment conversion — not in scope).
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

const defaultModel = "gemini-2.0-flash"

// Client implements llm.Client against the Gemini API.
type Client struct {
	client       *genai.Client
	defaultModel string
	retry        llm.RetryPolicy
}

// New builds a Client backed by the Gemini API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Client{
		client:       client,
		defaultModel: defaultModel,
		retry:        llm.NewRetryPolicy("gemini", 3, time.Second),
	}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) SupportsTools() bool { return true }

func (c *Client) Models() []llm.Model {
	return []llm.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextWindow: 1000000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextWindow: 1000000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextWindow: 2000000, SupportsVision: true},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextWindow: 1000000, SupportsVision: true},
	}
}

func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.Chunk, error) {
	chunks := make(chan *llm.Chunk)

	go func() {
		defer close(chunks)

		model := c.model(req.Model)
		contents, err := convertMessages(req.Messages)
		if err != nil {
			chunks <- &llm.Chunk{Error: llm.NewProviderError("gemini", model, err)}
			return
		}
		config := buildConfig(req)

		err = c.retry.Retry(ctx, llm.IsRetryable, func() error {
			iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
			return processStream(ctx, iter, chunks)
		})
		if err != nil {
			if ctx.Err() != nil {
				chunks <- &llm.Chunk{Error: ctx.Err()}
				return
			}
			chunks <- &llm.Chunk{Error: llm.NewProviderError("gemini", model, err)}
			return
		}

		chunks <- &llm.Chunk{Done: true}
	}()

	return chunks, nil
}

func (c *Client) model(requested string) string {
	if requested == "" {
		return c.defaultModel
	}
	return requested
}

// processStream drains Gemini's Go-iterator streaming response, emitting a
// text chunk per text part and a tool-call chunk per function call.
// Gemini delivers each function call whole (no incremental JSON to
// accumulate), unlike Anthropic/OpenAI.
func processStream(ctx context.Context, iter func(func(*genai.GenerateContentResponse, error) bool), chunks chan<- *llm.Chunk) error {
	var streamErr error
	iter(func(resp *genai.GenerateContentResponse, err error) bool {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}
		if err != nil {
			streamErr = err
			return false
		}
		if resp == nil {
			return true
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					chunks <- &llm.Chunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						argsJSON = []byte("{}")
					}
					chunks <- &llm.Chunk{ToolCall: &dexto.ToolCall{
						ID:   "call_" + uuid.NewString(),
						Name: part.FunctionCall.Name,
						Args: argsJSON,
					}}
				}
			}
		}
		return true
	})
	return streamErr
}

// convertMessages maps dexto.Message onto Gemini's Content/Part shape. Tool
// results carry a Name looked up from the originating tool call in the same
// history, since Gemini's FunctionResponse is keyed by name, not call id.
func convertMessages(messages []dexto.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range messages {
		if msg.Role == dexto.RoleSystem {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case dexto.RoleUser, dexto.RoleTool:
			content.Role = genai.RoleUser
		case dexto.RoleAssistant:
			content.Role = genai.RoleModel
		}

		if text := msg.TextContent(); text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}

		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if len(tc.Args) > 0 {
				if err := json.Unmarshal(tc.Args, &args); err != nil {
					args = map[string]any{}
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}

		if msg.Role == dexto.RoleTool {
			responseText := msg.Result.Text
			if responseText == "" {
				responseText = string(msg.Result.Structured)
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(responseText), &response); err != nil {
				response = map[string]any{"result": responseText, "error": msg.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCall(msg.ToolCallID, messages),
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
}

func toolNameForCall(toolCallID string, messages []dexto.Message) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return ""
}

func convertTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema genai.Schema
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildConfig(req *llm.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		config.MaxOutputTokens = int32(maxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertTools(req.Tools)
	}

	return config
}
