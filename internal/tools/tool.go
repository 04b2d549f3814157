// Package tools implements the Tool Manager (spec §4.6): a registry of
// callable tools — both internal, built-in tools and tools proxied from MCP
// servers — fronted by schema validation, concurrent dispatch, and the
// Approval Manager gate.
package tools

import (
	"context"
	"encoding/json"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Tool is the unified shape every callable tool implements, whether it is a
// built-in (ask_user, edit_file, create_files) or a proxy onto an MCP
// server's tool catalog.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error)
}

// toolError builds an error ToolResult carrying plain text content, the
// shape every built-in tool returns on a validation or execution failure
// rather than returning a Go error (errors are reserved for infrastructure
// failures the run loop should treat as fatal, not tool-level failures the
// LLM should see and react to).
func toolError(callID, msg string) *dexto.ToolResult {
	return &dexto.ToolResult{
		ToolCallID: callID,
		Content:    dexto.ToolResultValue{Text: msg},
		IsError:    true,
	}
}

func toolOK(callID string, payload any) *dexto.ToolResult {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return toolError(callID, "encode result: "+err.Error())
	}
	return &dexto.ToolResult{
		ToolCallID: callID,
		Content:    dexto.ToolResultValue{Structured: encoded},
	}
}
