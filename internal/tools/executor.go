package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// ExecConfig configures concurrent tool execution.
type ExecConfig struct {
	// Concurrency is the maximum number of tool calls dispatched at once.
	Concurrency int
	// PerCallTimeout bounds each attempt of a tool call; every retry gets a
	// fresh timeout.
	PerCallTimeout time.Duration
	// MaxAttempts is the number of tries per call before giving up.
	MaxAttempts int
	// RetryBackoff waits between attempts of the same call.
	RetryBackoff time.Duration
}

// DefaultExecConfig matches the teacher's DefaultToolExecConfig.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Concurrency:    4,
		PerCallTimeout: 30 * time.Second,
		MaxAttempts:    1,
		RetryBackoff:   0,
	}
}

func (c ExecConfig) withDefaults() ExecConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// Executor runs tool calls against a Registry with concurrency limiting,
// per-call timeouts, and retry.
type Executor struct {
	registry *Registry
	config   ExecConfig
}

// NewExecutor builds an Executor over registry. Zero-value config fields
// are replaced with defaults.
func NewExecutor(registry *Registry, config ExecConfig) *Executor {
	return &Executor{registry: registry, config: config.withDefaults()}
}

// CallResult is one dispatched call's outcome, positioned to match its
// index in the input slice.
type CallResult struct {
	Index     int
	Call      dexto.ToolCall
	Result    dexto.ToolResult
	StartedAt time.Time
	EndedAt   time.Time
	TimedOut  bool
}

// ExecuteConcurrently runs calls with the executor's concurrency limit,
// returning results in the same order as the input. Grounded on the
// teacher's ToolExecutor.ExecuteConcurrently (semaphore + per-call
// goroutine + retry loop).
func (e *Executor) ExecuteConcurrently(ctx context.Context, calls []dexto.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc dexto.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = CallResult{
					Index: idx, Call: tc,
					Result: *toolError(tc.ID, "context canceled before dispatch"),
				}
				return
			}
			results[idx] = e.executeWithRetry(ctx, idx, tc)
		}(i, call)
	}

	wg.Wait()
	return results
}

// ExecuteSequentially runs calls one at a time, in order, for callers whose
// tool calls depend on a fixed ordering.
func (e *Executor) ExecuteSequentially(ctx context.Context, calls []dexto.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))
	for i, call := range calls {
		results[i] = e.executeWithRetry(ctx, i, call)
	}
	return results
}

func (e *Executor) executeWithRetry(ctx context.Context, idx int, call dexto.ToolCall) CallResult {
	start := time.Now()
	var result dexto.ToolResult
	var timedOut bool

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.config.PerCallTimeout)
		result, timedOut = e.executeOnce(callCtx, call)
		cancel()

		if !result.IsError {
			break
		}
		if attempt < e.config.MaxAttempts && e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				result = *toolError(call.ID, "tool execution canceled")
				break
			}
		}
	}

	return CallResult{
		Index: idx, Call: call, Result: result,
		StartedAt: start, EndedAt: time.Now(), TimedOut: timedOut,
	}
}

func (e *Executor) executeOnce(ctx context.Context, call dexto.ToolCall) (dexto.ToolResult, bool) {
	type outcome struct {
		result *dexto.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := e.registry.Execute(ctx, call.ID, call.Name, json.RawMessage(call.Args))
		select {
		case done <- outcome{result, err}:
		default:
		}
	}()

	select {
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		msg := "tool execution canceled"
		if timedOut {
			msg = fmt.Sprintf("tool execution timed out after %v", e.config.PerCallTimeout)
		}
		return *toolError(call.ID, msg), timedOut
	case out := <-done:
		if out.err != nil {
			return *toolError(call.ID, out.err.Error()), false
		}
		return *out.result, false
	}
}
