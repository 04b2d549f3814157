package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

type namedPlugin struct{ name string }

func (p namedPlugin) Name() string { return p.name }

type recordingPlugin struct {
	namedPlugin
	calls *[]string
}

func (p recordingPlugin) BeforeLLMRequest(ctx context.Context, hctx HookContext, in BeforeLLMRequestInput) (BeforeLLMRequestOutput, error) {
	*p.calls = append(*p.calls, p.name)
	return BeforeLLMRequestOutput{}, nil
}

func entry(name string, priority int) dexto.PluginEntry {
	return dexto.PluginEntry{Name: name, Priority: priority, Blocking: true, Enabled: true}
}

func TestRunBeforeLLMRequestOrdersByPriorityThenRegistration(t *testing.T) {
	m := NewManager(nil, nil)
	var calls []string

	// Registered out of priority order to confirm sorting, not insertion
	// order, decides the run sequence.
	if err := m.Register(recordingPlugin{namedPlugin{"second"}, &calls}, entry("second", 5)); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(recordingPlugin{namedPlugin{"first"}, &calls}, entry("first", 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(recordingPlugin{namedPlugin{"tied-a"}, &calls}, entry("tied-a", 1)); err != nil {
		t.Fatal(err)
	}

	if _, err := m.RunBeforeLLMRequest(context.Background(), HookContext{}, BeforeLLMRequestInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "tied-a", "second"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i, name := range want {
		if calls[i] != name {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(namedPlugin{"dup"}, entry("dup", 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(namedPlugin{"dup"}, entry("dup", 0)); err == nil {
		t.Fatal("expected duplicate plugin name to error")
	}
}

type rewritingLLMPlugin struct{ namedPlugin }

func (p rewritingLLMPlugin) BeforeLLMRequest(ctx context.Context, hctx HookContext, in BeforeLLMRequestInput) (BeforeLLMRequestOutput, error) {
	return BeforeLLMRequestOutput{Messages: append(in.Messages, *dexto.NewUserMessage("injected", "s1", "extra context"))}, nil
}

func TestRunBeforeLLMRequestMergesRewrittenMessages(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(rewritingLLMPlugin{namedPlugin{"rewriter"}}, entry("rewriter", 0)); err != nil {
		t.Fatal(err)
	}

	in := BeforeLLMRequestInput{Messages: []dexto.Message{*dexto.NewUserMessage("m1", "s1", "hi")}}
	out, err := m.RunBeforeLLMRequest(context.Background(), HookContext{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected rewritten plugin to append a message, got %d", len(out.Messages))
	}
}

type shortCircuitLLMPlugin struct{ namedPlugin }

func (p shortCircuitLLMPlugin) BeforeLLMRequest(ctx context.Context, hctx HookContext, in BeforeLLMRequestInput) (BeforeLLMRequestOutput, error) {
	return BeforeLLMRequestOutput{ShortCircuit: &dexto.Message{Role: dexto.RoleAssistant, Text: "cached answer"}}, nil
}

func TestRunBeforeLLMRequestShortCircuitSkipsLaterPlugins(t *testing.T) {
	m := NewManager(nil, nil)
	var calls []string
	if err := m.Register(shortCircuitLLMPlugin{namedPlugin{"cache"}}, entry("cache", 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(recordingPlugin{namedPlugin{"never-runs"}, &calls}, entry("never-runs", 1)); err != nil {
		t.Fatal(err)
	}

	out, err := m.RunBeforeLLMRequest(context.Background(), HookContext{}, BeforeLLMRequestInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ShortCircuit == nil || out.ShortCircuit.Text != "cached answer" {
		t.Fatalf("expected short circuit to carry the cached answer, got %+v", out.ShortCircuit)
	}
	if len(calls) != 0 {
		t.Fatal("expected the plugin after a short circuit to never run")
	}
}

type blockingFailingPlugin struct{ namedPlugin }

func (p blockingFailingPlugin) BeforeToolCall(ctx context.Context, hctx HookContext, in BeforeToolCallInput) (BeforeToolCallOutput, error) {
	return BeforeToolCallOutput{}, errors.New("boom")
}

func TestRunBeforeToolCallBlockingErrorAborts(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(blockingFailingPlugin{namedPlugin{"strict"}}, entry("strict", 0)); err != nil {
		t.Fatal(err)
	}

	_, err := m.RunBeforeToolCall(context.Background(), HookContext{}, dexto.ToolCall{ID: "call_1", Name: "search"})
	if err == nil {
		t.Fatal("expected a blocking plugin's error to abort the hook")
	}
	var dErr *dexto.Error
	if !errors.As(err, &dErr) || dErr.Code != dexto.CodePluginError {
		t.Fatalf("expected CodePluginError, got %v", err)
	}
}

type nonBlockingFailingPlugin struct{ namedPlugin }

func (p nonBlockingFailingPlugin) BeforeToolCall(ctx context.Context, hctx HookContext, in BeforeToolCallInput) (BeforeToolCallOutput, error) {
	return BeforeToolCallOutput{}, errors.New("boom")
}

func TestRunBeforeToolCallNonBlockingErrorIsSkipped(t *testing.T) {
	m := NewManager(nil, nil)
	entryMeta := entry("lenient", 0)
	entryMeta.Blocking = false
	if err := m.Register(nonBlockingFailingPlugin{namedPlugin{"lenient"}}, entryMeta); err != nil {
		t.Fatal(err)
	}

	out, err := m.RunBeforeToolCall(context.Background(), HookContext{}, dexto.ToolCall{ID: "call_1", Name: "search"})
	if err != nil {
		t.Fatalf("expected non-blocking failure to be swallowed, got %v", err)
	}
	if out.Call == nil || out.Call.Name != "search" {
		t.Fatalf("expected the original call to pass through unmodified, got %+v", out.Call)
	}
}

type panickingPlugin struct{ namedPlugin }

func (p panickingPlugin) BeforeToolCall(ctx context.Context, hctx HookContext, in BeforeToolCallInput) (BeforeToolCallOutput, error) {
	panic("unexpected")
}

func TestRunBeforeToolCallPanicIsConvertedToPluginError(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(panickingPlugin{namedPlugin{"unstable"}}, entry("unstable", 0)); err != nil {
		t.Fatal(err)
	}

	_, err := m.RunBeforeToolCall(context.Background(), HookContext{}, dexto.ToolCall{ID: "call_1"})
	var dErr *dexto.Error
	if !errors.As(err, &dErr) || dErr.Code != dexto.CodePluginError {
		t.Fatalf("expected a panic to surface as CodePluginError, got %v", err)
	}
}

type toolResultRewriter struct{ namedPlugin }

func (p toolResultRewriter) AfterToolResult(ctx context.Context, hctx HookContext, in AfterToolResultInput) (AfterToolResultOutput, error) {
	redacted := dexto.ToolResult{ToolCallID: in.Result.ToolCallID, Content: dexto.ToolResultValue{Text: "[redacted]"}}
	return AfterToolResultOutput{Result: &redacted}, nil
}

func TestRunAfterToolResultAppliesRewrite(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(toolResultRewriter{namedPlugin{"redactor"}}, entry("redactor", 0)); err != nil {
		t.Fatal(err)
	}

	result, err := m.RunAfterToolResult(context.Background(), HookContext{}, dexto.ToolCall{ID: "call_1"},
		dexto.ToolResult{ToolCallID: "call_1", Content: dexto.ToolResultValue{Text: "secret"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content.Text != "[redacted]" {
		t.Fatalf("expected rewritten result, got %+v", result)
	}
}

type responseRewriter struct{ namedPlugin }

func (p responseRewriter) BeforeResponse(ctx context.Context, hctx HookContext, in BeforeResponseInput) (BeforeResponseOutput, error) {
	rewritten := in.Assistant
	rewritten.Text = rewritten.Text + " (reviewed)"
	return BeforeResponseOutput{Assistant: &rewritten}, nil
}

func TestRunBeforeResponseAppliesRewrite(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Register(responseRewriter{namedPlugin{"reviewer"}}, entry("reviewer", 0)); err != nil {
		t.Fatal(err)
	}

	out, err := m.RunBeforeResponse(context.Background(), HookContext{}, dexto.Message{Role: dexto.RoleAssistant, Text: "done"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "done (reviewed)" {
		t.Fatalf("expected rewritten response, got %q", out.Text)
	}
}

type lifecyclePlugin struct {
	namedPlugin
	initCalled, cleanupCalled *bool
	initErr, cleanupErr       error
}

func (p lifecyclePlugin) Initialize(cfg map[string]any) error {
	*p.initCalled = true
	return p.initErr
}

func (p lifecyclePlugin) Cleanup() error {
	*p.cleanupCalled = true
	return p.cleanupErr
}

func TestInitializeAndCleanupRunForLifecyclePlugins(t *testing.T) {
	m := NewManager(nil, nil)
	var initCalled, cleanupCalled bool
	plugin := lifecyclePlugin{namedPlugin: namedPlugin{"lifecycle"}, initCalled: &initCalled, cleanupCalled: &cleanupCalled}
	if err := m.Register(plugin, entry("lifecycle", 0)); err != nil {
		t.Fatal(err)
	}

	if err := m.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !initCalled {
		t.Fatal("expected Initialize to be called")
	}

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cleanupCalled {
		t.Fatal("expected Cleanup to be called")
	}
}

func TestInitializeBlockingErrorAborts(t *testing.T) {
	m := NewManager(nil, nil)
	var initCalled, cleanupCalled bool
	plugin := lifecyclePlugin{
		namedPlugin: namedPlugin{"bad-init"}, initCalled: &initCalled, cleanupCalled: &cleanupCalled,
		initErr: errors.New("config missing"),
	}
	if err := m.Register(plugin, entry("bad-init", 0)); err != nil {
		t.Fatal(err)
	}

	if err := m.Initialize(context.Background(), nil); err == nil {
		t.Fatal("expected a blocking plugin's Initialize error to abort")
	}
}

func TestDisabledPluginNeverRuns(t *testing.T) {
	m := NewManager(nil, nil)
	var calls []string
	meta := entry("off", 0)
	meta.Enabled = false
	if err := m.Register(recordingPlugin{namedPlugin{"off"}, &calls}, meta); err != nil {
		t.Fatal(err)
	}

	if _, err := m.RunBeforeLLMRequest(context.Background(), HookContext{}, BeforeLLMRequestInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatal("expected a disabled plugin to never run")
	}
}

func TestUnregisterRemovesPlugin(t *testing.T) {
	m := NewManager(nil, nil)
	var calls []string
	if err := m.Register(recordingPlugin{namedPlugin{"temp"}, &calls}, entry("temp", 0)); err != nil {
		t.Fatal(err)
	}
	m.Unregister("temp")

	if _, err := m.RunBeforeLLMRequest(context.Background(), HookContext{}, BeforeLLMRequestInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatal("expected unregistered plugin to never run")
	}
	if len(m.List()) != 0 {
		t.Fatal("expected List to reflect the unregistration")
	}
}
