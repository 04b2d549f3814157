package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// mcpProxyTool adapts one MCP server's advertised tool into the Tool
// interface, so the registry can dispatch to it exactly like a built-in —
// the Tool Manager's "resolve (internal-first then MCP)" step (spec §4.6)
// is really just "the registry holds both kinds under one name."
type mcpProxyTool struct {
	manager *mcp.Manager
	def     mcp.Tool
}

// NewMCPProxyTool wraps one of manager's advertised tools for registration
// into a Registry.
func NewMCPProxyTool(manager *mcp.Manager, def mcp.Tool) Tool {
	return &mcpProxyTool{manager: manager, def: def}
}

func (t *mcpProxyTool) Name() string            { return t.def.Name }
func (t *mcpProxyTool) Description() string     { return t.def.Description }
func (t *mcpProxyTool) Schema() json.RawMessage { return t.def.InputSchema }

func (t *mcpProxyTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	result, err := t.manager.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return toolError("", err.Error()), nil
	}
	var text strings.Builder
	for i, block := range result.Content {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(block.Text)
	}
	return &dexto.ToolResult{
		Content: dexto.ToolResultValue{Text: text.String()},
		IsError: result.IsError,
	}, nil
}

// SyncMCPTools registers every tool currently advertised across manager's
// connected servers into registry, replacing any proxy previously
// registered under the same name. Internal tools registered directly
// (never through this function) are left untouched: an MCP tool whose name
// is already held by a non-proxy tool is skipped.
func SyncMCPTools(manager *mcp.Manager, registry *Registry) {
	for _, named := range manager.AllTools() {
		if existing, ok := registry.Get(named.Tool.Name); ok {
			if _, isProxy := existing.(*mcpProxyTool); !isProxy {
				continue
			}
		}
		registry.Register(NewMCPProxyTool(manager, named.Tool))
	}
}
