package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dexto-ai/dexto-core/internal/approval"
	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/internal/plugins"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Manager implements the Tool Manager algorithm from spec §4.6: resolve,
// approve, run beforeToolCall, dispatch, run afterToolResult, emit. It is
// the only component the run loop calls to turn a ToolCall into a
// dexto.ToolResult — callers never touch Registry or approval.Manager
// directly for a tool invocation.
type Manager struct {
	registry  *Registry
	approvals *approval.Manager
	plugins   *plugins.Manager
	bus       *eventbus.Bus
	logger    *dlog.Logger
}

// NewManager wires a Registry to the approval and plugin layers.
func NewManager(registry *Registry, approvals *approval.Manager, pluginMgr *plugins.Manager, bus *eventbus.Bus, logger *dlog.Logger) *Manager {
	return &Manager{registry: registry, approvals: approvals, plugins: pluginMgr, bus: bus, logger: logger}
}

// Execute runs one tool call to completion. It never returns a Go error for
// an ordinary denial, timeout, unknown tool, or dispatch failure — those all
// come back as a structured dexto.ToolResult with IsError set, so the run
// loop can always persist exactly one tool message per call. A Go error is
// returned only when a blocking plugin aborts the call outright or when the
// tool's own Execute returns a Go error (for example on cancellation).
func (m *Manager) Execute(ctx context.Context, hctx plugins.HookContext, sessionID string, call dexto.ToolCall) (dexto.ToolResult, error) {
	if _, ok := m.registry.Get(call.Name); !ok {
		return m.finish(ctx, hctx, call, errorResult(call.ID, "tool not found: "+call.Name)), nil
	}

	outcome, err := m.approvals.RequestApproval(ctx, sessionID, call.Name, dexto.ToolArgsView(call.Args))
	if err != nil {
		return m.finish(ctx, hctx, call, errorResult(call.ID, err.Error())), nil
	}
	if outcome.Status != dexto.ApprovalApproved {
		return m.finish(ctx, hctx, call, denialResult(call.ID, outcome.Status)), nil
	}

	before, err := m.plugins.RunBeforeToolCall(ctx, hctx, call)
	if err != nil {
		return dexto.ToolResult{}, err
	}
	if before.ShortCircuit != nil {
		return m.finish(ctx, hctx, call, *before.ShortCircuit), nil
	}
	if before.Call != nil {
		call = *before.Call
	}

	result, err := m.dispatch(ctx, call)
	if err != nil {
		return dexto.ToolResult{}, err
	}
	return m.finish(ctx, hctx, call, result), nil
}

func (m *Manager) dispatch(ctx context.Context, call dexto.ToolCall) (dexto.ToolResult, error) {
	result, err := m.registry.Execute(ctx, call.ID, call.Name, json.RawMessage(call.Args))
	if err != nil {
		var derr *dexto.Error
		if errors.As(err, &derr) && derr.Code == dexto.CodeToolNotFound {
			return *errorResult(call.ID, derr.Message), nil
		}
		return dexto.ToolResult{}, err
	}
	return *result, nil
}

// finish runs afterToolResult and emits dexto:toolResult, the tail shared by
// every exit path out of Execute.
func (m *Manager) finish(ctx context.Context, hctx plugins.HookContext, call dexto.ToolCall, result dexto.ToolResult) dexto.ToolResult {
	final, err := m.plugins.RunAfterToolResult(ctx, hctx, call, result)
	if err != nil {
		m.logger.Warn(ctx, "afterToolResult plugin aborted, keeping original result", "tool", call.Name, "error", err.Error())
		final = result
	}

	m.bus.Emit(eventbus.TopicToolResult, eventbus.ToolResultPayload{
		SessionID: hctx.SessionID,
		CallID:    call.ID,
		Name:      call.Name,
		Result:    resultText(final),
		IsError:   final.IsError,
	})
	return final
}

func resultText(r dexto.ToolResult) string {
	if r.Content.Text != "" {
		return r.Content.Text
	}
	if r.Reason != "" {
		return r.Reason
	}
	return string(r.Content.Structured)
}

func denialResult(callID string, status dexto.ApprovalStatus) dexto.ToolResult {
	reason := "tool call was not approved"
	switch status {
	case dexto.ApprovalDenied:
		reason = "tool call was denied"
	case dexto.ApprovalTimedOut:
		reason = "approval request timed out"
	case dexto.ApprovalCancelled:
		reason = "approval request was cancelled"
	}
	return dexto.ToolResult{ToolCallID: callID, IsError: true, Reason: reason}
}

func errorResult(callID, reason string) *dexto.ToolResult {
	return &dexto.ToolResult{ToolCallID: callID, IsError: true, Reason: reason}
}
