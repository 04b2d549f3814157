package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// registration pairs a plugin instance with its ordering/blocking metadata
// and the order it was registered in, used only to break priority ties.
type registration struct {
	entry dexto.PluginEntry
	impl  Plugin
	seq   int
}

// Manager is the ordered hook registry every run loop turn passes through.
// Grounded on the teacher's plugins.HookRunner: priority-ordered,
// sequential, per-hook result merging, with an escape for a plugin that
// panics instead of returning an error.
type Manager struct {
	logger *dlog.Logger
	bus    *eventbus.Bus

	mu      sync.RWMutex
	regs    []*registration
	nextSeq int
}

// NewManager builds an empty Manager. logger and bus may be nil in tests.
func NewManager(logger *dlog.Logger, bus *eventbus.Bus) *Manager {
	return &Manager{logger: logger, bus: bus}
}

// Register adds plugin under entry's name/priority/blocking/enabled
// metadata. Plugin names must be unique; priorities need not be — ties are
// broken by registration order.
func (m *Manager) Register(impl Plugin, entry dexto.PluginEntry) error {
	if entry.Name == "" {
		entry.Name = impl.Name()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.regs {
		if r.entry.Name == entry.Name {
			return dexto.NewError(dexto.CodePluginError, fmt.Sprintf("plugin %q already registered", entry.Name), nil)
		}
	}

	reg := &registration{entry: entry, impl: impl, seq: m.nextSeq}
	m.nextSeq++
	m.regs = append(m.regs, reg)
	sort.SliceStable(m.regs, func(i, j int) bool {
		if m.regs[i].entry.Priority != m.regs[j].entry.Priority {
			return m.regs[i].entry.Priority < m.regs[j].entry.Priority
		}
		return m.regs[i].seq < m.regs[j].seq
	})
	return nil
}

// Unregister removes the plugin registered under name, if any.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filtered := m.regs[:0]
	for _, r := range m.regs {
		if r.entry.Name != name {
			filtered = append(filtered, r)
		}
	}
	m.regs = filtered
}

// List returns the metadata of every registered plugin, in run order.
func (m *Manager) List() []dexto.PluginEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dexto.PluginEntry, 0, len(m.regs))
	for _, r := range m.regs {
		out = append(out, r.entry)
	}
	return out
}

func (m *Manager) snapshot() []*registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*registration, 0, len(m.regs))
	for _, r := range m.regs {
		if r.entry.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Initialize calls Initialize(cfg) on every enabled plugin implementing
// Initializer, in priority order. A blocking plugin's error aborts with
// PluginError; a non-blocking one is logged and skipped.
func (m *Manager) Initialize(ctx context.Context, cfg map[string]any) error {
	for _, r := range m.snapshot() {
		init, ok := r.impl.(Initializer)
		if !ok {
			continue
		}
		if err := m.guard(r, func() error { return init.Initialize(cfg) }); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup calls Cleanup() on every enabled plugin implementing Cleaner, in
// priority order, collecting (not aborting on) individual failures so one
// misbehaving plugin never prevents the others from shutting down cleanly.
func (m *Manager) Cleanup(ctx context.Context) error {
	var firstErr error
	for _, r := range m.snapshot() {
		cleaner, ok := r.impl.(Cleaner)
		if !ok {
			continue
		}
		if err := m.guard(r, func() error { return cleaner.Cleanup() }); err != nil {
			if r.entry.Blocking && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// guard calls fn, converting a panic into a PluginError the same way a
// thrown exception would abort the hook in the source runtime, and logs
// (rather than propagates) a non-blocking plugin's failure.
func (m *Manager) guard(r *registration, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = dexto.NewError(dexto.CodePluginError, fmt.Sprintf("plugin %q panicked: %v", r.entry.Name, rec), nil)
		}
	}()
	err = fn()
	if err == nil {
		return nil
	}
	wrapped := dexto.NewError(dexto.CodePluginError, fmt.Sprintf("plugin %q failed", r.entry.Name), err)
	if r.entry.Blocking {
		return wrapped
	}
	if m.logger != nil {
		m.logger.Warn(context.Background(), "non-blocking plugin failed", "plugin", r.entry.Name, "error", err)
	}
	return nil
}

// RunBeforeLLMRequest threads in through every enabled BeforeLLMRequestHook
// plugin in priority order. A plugin's ShortCircuit bypasses every plugin
// registered after it for this hook, but earlier ones have already had a
// chance to rewrite messages/tools.
func (m *Manager) RunBeforeLLMRequest(ctx context.Context, hctx HookContext, in BeforeLLMRequestInput) (BeforeLLMRequestOutput, error) {
	out := BeforeLLMRequestOutput{Messages: in.Messages, Tools: in.Tools}
	for _, r := range m.snapshot() {
		hook, ok := r.impl.(BeforeLLMRequestHook)
		if !ok {
			continue
		}
		var next BeforeLLMRequestOutput
		err := m.guard(r, func() error {
			var hookErr error
			next, hookErr = hook.BeforeLLMRequest(ctx, hctx, BeforeLLMRequestInput{Messages: out.Messages, Tools: out.Tools})
			return hookErr
		})
		if err != nil {
			return BeforeLLMRequestOutput{}, err
		}
		if next.Messages != nil {
			out.Messages = next.Messages
		}
		if next.Tools != nil {
			out.Tools = next.Tools
		}
		if next.ShortCircuit != nil {
			out.ShortCircuit = next.ShortCircuit
			break
		}
	}
	return out, nil
}

// RunBeforeToolCall threads call through every enabled BeforeToolCallHook
// plugin in priority order, stopping early if one supplies ShortCircuit.
func (m *Manager) RunBeforeToolCall(ctx context.Context, hctx HookContext, call dexto.ToolCall) (BeforeToolCallOutput, error) {
	out := BeforeToolCallOutput{Call: &call}
	for _, r := range m.snapshot() {
		hook, ok := r.impl.(BeforeToolCallHook)
		if !ok {
			continue
		}
		var next BeforeToolCallOutput
		err := m.guard(r, func() error {
			var hookErr error
			next, hookErr = hook.BeforeToolCall(ctx, hctx, BeforeToolCallInput{Call: *out.Call})
			return hookErr
		})
		if err != nil {
			return BeforeToolCallOutput{}, err
		}
		if next.Call != nil {
			out.Call = next.Call
		}
		if next.ShortCircuit != nil {
			out.ShortCircuit = next.ShortCircuit
			break
		}
	}
	return out, nil
}

// RunAfterToolResult threads result through every enabled
// AfterToolResultHook plugin in priority order.
func (m *Manager) RunAfterToolResult(ctx context.Context, hctx HookContext, call dexto.ToolCall, result dexto.ToolResult) (dexto.ToolResult, error) {
	for _, r := range m.snapshot() {
		hook, ok := r.impl.(AfterToolResultHook)
		if !ok {
			continue
		}
		var next AfterToolResultOutput
		err := m.guard(r, func() error {
			var hookErr error
			next, hookErr = hook.AfterToolResult(ctx, hctx, AfterToolResultInput{Call: call, Result: result})
			return hookErr
		})
		if err != nil {
			return dexto.ToolResult{}, err
		}
		if next.Result != nil {
			result = *next.Result
		}
	}
	return result, nil
}

// RunBeforeResponse threads assistant through every enabled
// BeforeResponseHook plugin in priority order.
func (m *Manager) RunBeforeResponse(ctx context.Context, hctx HookContext, assistant dexto.Message) (dexto.Message, error) {
	for _, r := range m.snapshot() {
		hook, ok := r.impl.(BeforeResponseHook)
		if !ok {
			continue
		}
		var next BeforeResponseOutput
		err := m.guard(r, func() error {
			var hookErr error
			next, hookErr = hook.BeforeResponse(ctx, hctx, BeforeResponseInput{Assistant: assistant})
			return hookErr
		})
		if err != nil {
			return dexto.Message{}, err
		}
		if next.Assistant != nil {
			assistant = *next.Assistant
		}
	}
	return assistant, nil
}
