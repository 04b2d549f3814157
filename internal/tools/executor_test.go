package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

type slowTool struct{ delay time.Duration }

func (s slowTool) Name() string            { return "slow" }
func (s slowTool) Description() string     { return "sleeps then returns ok" }
func (s slowTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s slowTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	select {
	case <-time.After(s.delay):
		return &dexto.ToolResult{Content: dexto.ToolResultValue{Text: "ok"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type flakyTool struct{ attempts int }

func (f *flakyTool) Name() string            { return "flaky" }
func (f *flakyTool) Description() string     { return "fails once then succeeds" }
func (f *flakyTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (f *flakyTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	f.attempts++
	if f.attempts < 2 {
		return &dexto.ToolResult{IsError: true, Content: dexto.ToolResultValue{Text: "try again"}}, nil
	}
	return &dexto.ToolResult{Content: dexto.ToolResultValue{Text: "ok"}}, nil
}

func TestExecuteConcurrentlyPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	exec := NewExecutor(r, DefaultExecConfig())

	calls := []dexto.ToolCall{
		{ID: "1", Name: "echo", Args: json.RawMessage(`{"text":"a"}`)},
		{ID: "2", Name: "echo", Args: json.RawMessage(`{"text":"b"}`)},
		{ID: "3", Name: "echo", Args: json.RawMessage(`{"text":"c"}`)},
	}
	results := exec.ExecuteConcurrently(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Result.Content.Text != want {
			t.Fatalf("result %d: expected %q, got %q", i, want, results[i].Result.Content.Text)
		}
	}
}

func TestExecuteConcurrentlyTimesOutSlowTool(t *testing.T) {
	r := NewRegistry()
	r.Register(slowTool{delay: 50 * time.Millisecond})
	exec := NewExecutor(r, ExecConfig{Concurrency: 2, PerCallTimeout: 5 * time.Millisecond, MaxAttempts: 1})

	results := exec.ExecuteConcurrently(context.Background(), []dexto.ToolCall{{ID: "1", Name: "slow"}})
	if !results[0].TimedOut || !results[0].Result.IsError {
		t.Fatalf("expected timeout error, got %+v", results[0])
	}
}

func TestExecuteConcurrentlyRetriesOnError(t *testing.T) {
	r := NewRegistry()
	tool := &flakyTool{}
	r.Register(tool)
	exec := NewExecutor(r, ExecConfig{Concurrency: 1, PerCallTimeout: time.Second, MaxAttempts: 3})

	results := exec.ExecuteConcurrently(context.Background(), []dexto.ToolCall{{ID: "1", Name: "flaky"}})
	if results[0].Result.IsError {
		t.Fatalf("expected eventual success after retry, got %+v", results[0])
	}
	if tool.attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", tool.attempts)
	}
}

func TestExecuteSequentiallyRunsInOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	exec := NewExecutor(r, DefaultExecConfig())

	results := exec.ExecuteSequentially(context.Background(), []dexto.ToolCall{
		{ID: "1", Name: "echo", Args: json.RawMessage(`{"text":"x"}`)},
		{ID: "2", Name: "echo", Args: json.RawMessage(`{"text":"y"}`)},
	})
	if results[0].Result.Content.Text != "x" || results[1].Result.Content.Text != "y" {
		t.Fatalf("unexpected sequential results: %+v", results)
	}
}
