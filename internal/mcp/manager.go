package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
)

// ServerStatus is one server's current connection state, as surfaced by
// Manager.Status.
type ServerStatus struct {
	ID        string
	Connected bool
	LastError string
}

// Manager owns every configured MCP server connection, aggregates their
// tool/resource/prompt catalogs, and republishes connect/disconnect events
// on the bus. Grounded on the teacher's mcp.Manager.
type Manager struct {
	logger *dlog.Logger
	bus    *eventbus.Bus

	mu      sync.RWMutex
	clients map[string]*Client
	configs map[string]*ServerConfig
	errors  map[string]string
}

// NewManager returns an empty Manager.
func NewManager(logger *dlog.Logger, bus *eventbus.Bus) *Manager {
	if logger == nil {
		logger = dlog.New(dlog.Config{})
	}
	return &Manager{
		logger:  logger.CreateChild("mcp-manager"),
		bus:     bus,
		clients: make(map[string]*Client),
		configs: make(map[string]*ServerConfig),
		errors:  make(map[string]string),
	}
}

// Start validates and connects every server configured with AutoStart. A
// server whose ConnectionMode is "strict" fails Start outright on a
// connect error; all others ("lenient", the default) are logged and left
// disconnected so the rest of the agent can run without their tools — a
// deliberate generalization beyond the teacher, whose Manager.Start simply
// logs every failure and never distinguishes required servers from
// optional ones.
func (m *Manager) Start(ctx context.Context, configs []*ServerConfig) error {
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("mcp: invalid config for %s: %w", cfg.ID, err)
		}
		m.mu.Lock()
		m.configs[cfg.ID] = cfg
		m.mu.Unlock()

		if !cfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, cfg.ID); err != nil {
			if cfg.ConnectionMode == "strict" {
				return fmt.Errorf("mcp: required server %s failed to start: %w", cfg.ID, err)
			}
			m.logger.Warn(ctx, "mcp server failed to start, continuing without it", "server", cfg.ID, "error", err)
		}
	}
	return nil
}

// Stop disconnects every currently-connected server.
func (m *Manager) Stop() error {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for id, c := range m.clients {
		clients[id] = c
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	var firstErr error
	for id, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", id, err)
		}
	}
	return firstErr
}

// Connect connects (or reconnects) the server identified by id.
func (m *Manager) Connect(ctx context.Context, id string) error {
	m.mu.RLock()
	cfg, ok := m.configs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mcp: unknown server %q", id)
	}

	client, err := NewClient(cfg, m.logger)
	if err != nil {
		m.recordError(id, err)
		return err
	}
	if err := client.Connect(ctx); err != nil {
		m.recordError(id, err)
		return err
	}

	m.mu.Lock()
	m.clients[id] = client
	delete(m.errors, id)
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(eventbus.TopicMcpServerConnected, id)
	}
	go m.forwardEvents(id, client)
	return nil
}

func (m *Manager) recordError(id string, err error) {
	m.mu.Lock()
	m.errors[id] = err.Error()
	m.mu.Unlock()
}

// Disconnect closes the server identified by id, if connected.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	client, ok := m.clients[id]
	if ok {
		delete(m.clients, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := client.Close()
	if m.bus != nil {
		m.bus.Emit(eventbus.TopicMcpServerDisconnected, id)
	}
	return err
}

// ReconnectWithBackoff retries Connect with exponential backoff until
// maxAttempts is reached or ctx is cancelled.
func (m *Manager) ReconnectWithBackoff(ctx context.Context, id string, policy BackoffPolicy, maxAttempts int) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := m.Connect(ctx, id); err == nil {
			return nil
		} else {
			lastErr = err
		}
		delay := ComputeBackoff(policy, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("mcp: reconnect to %s failed after %d attempts: %w", id, maxAttempts, lastErr)
}

func (m *Manager) Client(id string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

func (m *Manager) Clients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}

// NamedTool pairs a Tool with the server it came from, so the Tool Manager
// can route a call back to the right client.
type NamedTool struct {
	Server string
	Tool   Tool
}

// AllTools aggregates every connected server's tool list.
func (m *Manager) AllTools() []NamedTool {
	var out []NamedTool
	for _, c := range m.Clients() {
		for _, tool := range c.Tools() {
			out = append(out, NamedTool{Server: c.Config().ID, Tool: tool})
		}
	}
	return out
}

// FindTool returns the server and tool definition for name, searching
// every connected client. Ambiguity (two servers advertising the same
// name) is resolved in favor of the first client iterated — callers that
// care about conflicts should check AllTools themselves.
func (m *Manager) FindTool(name string) (server string, tool Tool, ok bool) {
	for _, named := range m.AllTools() {
		if named.Tool.Name == name {
			return named.Server, named.Tool, true
		}
	}
	return "", Tool{}, false
}

// CallTool routes a tool call to the server that advertises name.
func (m *Manager) CallTool(ctx context.Context, name string, args []byte) (ToolCallResult, error) {
	server, _, ok := m.FindTool(name)
	if !ok {
		return ToolCallResult{}, fmt.Errorf("mcp: tool %q not found on any connected server", name)
	}
	client, ok := m.Client(server)
	if !ok {
		return ToolCallResult{}, fmt.Errorf("mcp: server %q for tool %q is not connected", server, name)
	}
	return client.CallTool(ctx, name, args)
}

// AllResources aggregates every connected server's resource list.
func (m *Manager) AllResources() []Resource {
	var out []Resource
	for _, c := range m.Clients() {
		out = append(out, c.Resources()...)
	}
	return out
}

// ReadResource finds which connected server owns uri and reads it.
func (m *Manager) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	for _, c := range m.Clients() {
		for _, r := range c.Resources() {
			if r.URI == uri {
				return c.ReadResource(ctx, uri)
			}
		}
	}
	return nil, fmt.Errorf("mcp: resource %q not found on any connected server", uri)
}

// Status reports every configured server's connection state.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerStatus, 0, len(m.configs))
	for id := range m.configs {
		_, connected := m.clients[id]
		out = append(out, ServerStatus{ID: id, Connected: connected, LastError: m.errors[id]})
	}
	return out
}

// forwardEvents republishes a client's server-initiated notifications as
// dexto:resourceUpdated bus events until the client disconnects.
func (m *Manager) forwardEvents(id string, client *Client) {
	for notif := range client.Events() {
		if notif.Method != "notifications/resources/updated" {
			continue
		}
		if m.bus != nil {
			m.bus.Emit(eventbus.TopicResourceUpdated, id)
		}
	}
}
