package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dexto-ai/dexto-core/internal/dlog"
)

// ServerInfo identifies the connected MCP server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type listResourcesResult struct {
	Resources []Resource `json:"resources"`
}

type listPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// Client owns one connection to one MCP server: the transport, the
// initialize handshake, and the cached tool/resource/prompt catalog.
// Grounded on the teacher's mcp.Client.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *dlog.Logger

	mu         sync.RWMutex
	tools      []Tool
	resources  []Resource
	prompts    []Prompt
	serverInfo ServerInfo
}

// NewClient builds a Client for cfg, choosing its Transport from
// cfg.Transport.
func NewClient(cfg *ServerConfig, logger *dlog.Logger) (*Client, error) {
	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = dlog.New(dlog.Config{})
	}
	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.CreateChild("mcp-client").WithFields("mcp_server", cfg.ID),
	}, nil
}

const mcpProtocolVersion = "2024-11-05"

// Connect performs transport connect, the MCP initialize handshake, and an
// initial capability refresh.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]any{"roots": map[string]any{"listChanged": true}},
		"clientInfo":      map[string]any{"name": "dexto", "version": "1.0.0"},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult initializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info(ctx, "connected to MCP server",
		"name", initResult.ServerInfo.Name, "version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn(ctx, "failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn(ctx, "failed to refresh capabilities", "error", err)
	}
	return nil
}

func (c *Client) Close() error { return c.transport.Close() }

func (c *Client) Config() *ServerConfig { return c.config }

func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) Connected() bool { return c.transport.Connected() }

// RefreshCapabilities re-lists tools, resources, and prompts. A server that
// doesn't implement one of the three list methods simply leaves that slice
// at its previous value — this matches the teacher's "best effort" refresh,
// since not every MCP server advertises all three capabilities.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	if result, err := c.transport.Call(ctx, "tools/list", nil); err == nil {
		var resp listToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.tools = resp.Tools
			c.mu.Unlock()
		}
	}
	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resp listResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.resources = resp.Resources
			c.mu.Unlock()
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp listPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.prompts = resp.Prompts
			c.mu.Unlock()
		}
	}
	return nil
}

func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

func (c *Client) Resources() []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Resource(nil), c.resources...)
}

func (c *Client) Prompts() []Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Prompt(nil), c.prompts...)
}

// CallTool invokes name on the server with args and parses the MCP
// tools/call envelope.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (ToolCallResult, error) {
	result, err := c.transport.Call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": json.RawMessage(args),
	})
	if err != nil {
		return ToolCallResult{}, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return ToolCallResult{}, fmt.Errorf("parse tool call result: %w", err)
	}
	return callResult, nil
}

// ReadResource fetches a resource's content via resources/read.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	return c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
}

// Events exposes the underlying transport's notification channel.
func (c *Client) Events() <-chan *JSONRPCNotification { return c.transport.Events() }
