package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dexto-ai/dexto-core/internal/dlog"
)

// SSETransport speaks the legacy MCP SSE transport: a long-lived GET
// connection delivers both JSON-RPC responses and notifications as
// "message" events, while requests are POSTed to the same URL and
// correlated back to their caller by ID through a pending map — the same
// request/response correlation shape as StdioTransport, just over a
// different wire.
type SSETransport struct {
	config *ServerConfig
	logger *dlog.Logger
	client *http.Client

	pending   map[string]chan *JSONRPCResponse
	pendingMu sync.Mutex
	events    chan *JSONRPCNotification

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSSETransport returns an unconnected SSE transport for cfg.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSETransport{
		config:   cfg,
		logger:   dlog.New(dlog.Config{}).CreateChild("mcp-sse").WithFields("mcp_server", cfg.ID),
		client:   &http.Client{Timeout: timeout},
		pending:  make(map[string]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		stopChan: make(chan struct{}),
	}
}

func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("mcp: URL is required for sse transport")
	}
	t.connected.Store(true)
	t.logger.Info(ctx, "sse transport ready", "url", t.config.URL)

	t.wg.Add(1)
	go t.readLoop(ctx)
	return nil
}

func (t *SSETransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)
	t.wg.Wait()
	return nil
}

func (t *SSETransport) Call(ctx context.Context, method string, params any) ([]byte, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("mcp: not connected")
	}

	id := uuid.New().String()
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.post(ctx, req); err != nil {
		return nil, err
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("mcp: request timeout after %v", timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("mcp: transport closed")
	}
}

func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.post(ctx, notif)
}

func (t *SSETransport) post(ctx context.Context, payload any) error {
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

func (t *SSETransport) Events() <-chan *JSONRPCNotification { return t.events }
func (t *SSETransport) Connected() bool                     { return t.connected.Load() }

func (t *SSETransport) readLoop(ctx context.Context) {
	defer t.wg.Done()
	defer t.connected.Store(false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.config.URL, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload := []byte(strings.TrimSpace(data))

		var probe struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.Unmarshal(payload, &probe); err != nil {
			continue
		}

		if probe.Method != "" && len(probe.ID) == 0 {
			var notif JSONRPCNotification
			if err := json.Unmarshal(payload, &notif); err == nil {
				select {
				case t.events <- &notif:
				default:
				}
			}
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		id, ok := resp.ID.(string)
		if !ok {
			continue
		}
		t.pendingMu.Lock()
		ch, found := t.pending[id]
		t.pendingMu.Unlock()
		if found {
			ch <- &resp
		}
	}
}
