package mcp

import "context"

// Transport is the wire-level contract every MCP connection speaks,
// regardless of whether the server is a subprocess or a remote endpoint.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	Call(ctx context.Context, method string, params any) (rawResult, error)
	Notify(ctx context.Context, method string, params any) error

	// Events delivers server-initiated notifications (e.g. resource change
	// pushes) for the Manager to republish on the event bus.
	Events() <-chan *JSONRPCNotification

	Connected() bool
}

type rawResult = []byte

// NewTransport builds the Transport matching cfg.Transport.
func NewTransport(cfg *ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return NewStdioTransport(cfg), nil
	case TransportStreamableHTTP:
		return NewHTTPTransport(cfg), nil
	case TransportSSE:
		return NewSSETransport(cfg), nil
	default:
		return nil, errUnknownTransport(cfg.Transport)
	}
}

type errUnknownTransport TransportType

func (e errUnknownTransport) Error() string {
	return "mcp: unknown transport type " + string(e)
}
