// Package plugins implements the ordered, typed extension points around LLM
// calls and tool calls: beforeLLMRequest, beforeToolCall, afterToolResult,
// and beforeResponse, plus the initialize/cleanup lifecycle pair.
//
// A plugin is any value implementing Plugin; it opts into individual hooks
// by additionally implementing the matching *Hook interface, mirroring how
// http.Hijacker or io.ReaderFrom let a type advertise an optional capability
// instead of carrying a vtable of maybe-nil function fields.
package plugins

import (
	"context"

	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Plugin is the minimum every registered extension implements. Everything
// else — which hooks it participates in — comes from which of the optional
// interfaces below it also satisfies.
type Plugin interface {
	Name() string
}

// Initializer is implemented by plugins that need setup before they can run,
// e.g. opening a connection or validating their own config block.
type Initializer interface {
	Initialize(cfg map[string]any) error
}

// Cleaner is implemented by plugins that hold a resource needing an orderly
// shutdown (a file handle, a background goroutine) when the agent stops.
type Cleaner interface {
	Cleanup() error
}

// HookContext is handed to every hook invocation. It carries just enough of
// the agent's identity and ambient services for a plugin to log, publish
// events, or look up session-scoped state, without importing the run loop
// or agent package (which would create an import cycle back into plugins).
type HookContext struct {
	SessionID string
	UserID    string
	Logger    *dlog.Logger
	Agent     any
	EventBus  *eventbus.Bus
}

// BeforeLLMRequestInput is the payload for BeforeLLMRequestHook.
type BeforeLLMRequestInput struct {
	Messages []dexto.Message
	Tools    []llm.ToolSpec
}

// BeforeLLMRequestOutput lets a plugin rewrite the outgoing request or skip
// the LLM call entirely by supplying ShortCircuit.
type BeforeLLMRequestOutput struct {
	Messages     []dexto.Message
	Tools        []llm.ToolSpec
	ShortCircuit *dexto.Message
}

// BeforeLLMRequestHook runs just before a completion request is sent.
type BeforeLLMRequestHook interface {
	BeforeLLMRequest(ctx context.Context, hctx HookContext, in BeforeLLMRequestInput) (BeforeLLMRequestOutput, error)
}

// BeforeToolCallInput is the payload for BeforeToolCallHook.
type BeforeToolCallInput struct {
	Call dexto.ToolCall
}

// BeforeToolCallOutput lets a plugin rewrite the call's arguments or deny it
// outright by supplying ShortCircuit, which is returned to the model as the
// tool's result without the tool itself ever running.
type BeforeToolCallOutput struct {
	Call         *dexto.ToolCall
	ShortCircuit *dexto.ToolResult
}

// BeforeToolCallHook runs after approval, just before the Tool Manager
// dispatches the call.
type BeforeToolCallHook interface {
	BeforeToolCall(ctx context.Context, hctx HookContext, in BeforeToolCallInput) (BeforeToolCallOutput, error)
}

// AfterToolResultInput is the payload for AfterToolResultHook.
type AfterToolResultInput struct {
	Call   dexto.ToolCall
	Result dexto.ToolResult
}

// AfterToolResultOutput lets a plugin rewrite the result before it is
// appended to history and shown to the model.
type AfterToolResultOutput struct {
	Result *dexto.ToolResult
}

// AfterToolResultHook runs once a tool call (or its ShortCircuit) has
// produced a result.
type AfterToolResultHook interface {
	AfterToolResult(ctx context.Context, hctx HookContext, in AfterToolResultInput) (AfterToolResultOutput, error)
}

// BeforeResponseInput is the payload for BeforeResponseHook.
type BeforeResponseInput struct {
	Assistant dexto.Message
}

// BeforeResponseOutput lets a plugin rewrite the assistant message before it
// is emitted and persisted.
type BeforeResponseOutput struct {
	Assistant *dexto.Message
}

// BeforeResponseHook runs once the run loop has a final assistant message
// for the turn, before it reaches history or the event bus.
type BeforeResponseHook interface {
	BeforeResponse(ctx context.Context, hctx HookContext, in BeforeResponseInput) (BeforeResponseOutput, error)
}
