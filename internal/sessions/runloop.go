package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/internal/plugins"
	"github.com/dexto-ai/dexto-core/internal/telemetry"
	"github.com/dexto-ai/dexto-core/internal/tools"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// DefaultMaxIterations bounds how many LLM round-trips one run may make
// before the loop gives up and reports CodeMaxIterations (spec §4.9).
const DefaultMaxIterations = 50

// RunDeps are the components the run loop calls out to. One RunDeps is
// shared by every session a Manager owns.
type RunDeps struct {
	Store     Store
	Bus       *eventbus.Bus
	Tools     *tools.Manager
	Plugins   *plugins.Manager
	Logger    *dlog.Logger
	Telemetry *telemetry.Telemetry // optional; nil disables metrics/tracing
}

// RunOptions configures one run: which model to call and how to prompt it.
// The Session Manager's owner (the DextoAgent facade) builds this per
// session from agent-level config, so the run loop itself never reads
// configuration directly.
type RunOptions struct {
	Client        llm.Client
	Model         string
	SystemPrompt  string
	ToolCatalogue []llm.ToolSpec
	MaxTokens     int
	MaxIterations int
	ContextWindow int
	KeepLastTurns int
}

func (o RunOptions) maxIterations() int {
	if o.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return o.MaxIterations
}

// runner implements the iterate-until-no-tool-calls core of spec §4.9's
// run() algorithm. It assumes its caller already holds the session's lock
// and has transitioned/enqueued appropriately; runner only ever sees one
// session at a time and runs to completion or cancellation.
type runner struct {
	deps RunDeps
}

func newRunner(deps RunDeps) *runner {
	return &runner{deps: deps}
}

// execute runs the agentic loop for one already-persisted user turn,
// returning the final assistant text shown to the caller.
func (r *runner) execute(ctx context.Context, sess *ChatSession, opts RunOptions, runID string, cancel *CancelToken, history []dexto.Message) (string, error) {
	hctx := plugins.HookContext{SessionID: sess.Meta().ID, Logger: r.deps.Logger, EventBus: r.deps.Bus}

	start := time.Now()
	if r.deps.Telemetry != nil {
		var span trace.Span
		ctx, span = r.deps.Telemetry.Tracer.TraceRun(ctx, sess.Meta().ID, runID)
		defer span.End()
	}
	text, err := r.runIterations(ctx, sess, opts, runID, cancel, history, hctx)
	if r.deps.Telemetry != nil {
		status := "success"
		if err != nil {
			status = string(errorCode(err))
			if status == "" {
				status = "error"
			}
		}
		r.deps.Telemetry.Metrics.RecordRun(status, time.Since(start).Seconds())
	}
	return text, err
}

func (r *runner) runIterations(ctx context.Context, sess *ChatSession, opts RunOptions, runID string, cancel *CancelToken, history []dexto.Message, hctx plugins.HookContext) (string, error) {
	for iter := 0; iter < opts.maxIterations(); iter++ {
		if err := cancel.ThrowIfCancelled(); err != nil {
			return r.handleCancellation(ctx, sess, hctx, runID, history)
		}

		trimmed, _ := llm.Trim(history, opts.ContextWindow, opts.KeepLastTurns)

		beforeIn := plugins.BeforeLLMRequestInput{Messages: trimmed, Tools: opts.ToolCatalogue}
		beforeOut, err := r.deps.Plugins.RunBeforeLLMRequest(ctx, hctx, beforeIn)
		if err != nil {
			return "", err
		}

		var assistant dexto.Message
		if beforeOut.ShortCircuit != nil {
			assistant = *beforeOut.ShortCircuit
		} else {
			assistant, err = r.streamCompletion(ctx, sess, opts, runID, cancel, beforeOut.Messages, beforeOut.Tools)
			if err != nil {
				return "", err
			}
		}

		assistant, err = r.deps.Plugins.RunBeforeResponse(ctx, hctx, assistant)
		if err != nil {
			return "", err
		}

		if err := r.deps.Store.AppendMessage(ctx, sess.Meta().ID, assistant); err != nil {
			return "", dexto.NewError(dexto.CodeStorageError, "persist assistant message", err).WithSession(sess.Meta().ID, runID)
		}
		history = append(history, assistant)
		r.deps.Bus.Emit(eventbus.TopicLLMResponse, eventbus.ResponsePayload{
			SessionID: sess.Meta().ID, RunID: runID, Text: assistant.Text, ToolCalls: len(assistant.ToolCalls),
		})

		if len(assistant.ToolCalls) == 0 {
			return assistant.Text, nil
		}

		sess.setState(dexto.RunToolCalling)
		toolHistory, cancelled, err := r.runToolCalls(ctx, sess, hctx, runID, cancel, assistant.ToolCalls)
		if err != nil {
			return "", err
		}
		history = append(history, toolHistory...)
		if cancelled {
			return r.handleCancellation(ctx, sess, hctx, runID, history)
		}
		sess.setState(dexto.RunThinking)
	}

	r.deps.Bus.Emit(eventbus.TopicLLMError, eventbus.ErrorPayload{
		SessionID: sess.Meta().ID, RunID: runID,
		Code: string(dexto.CodeMaxIterations), Message: "maximum iterations reached",
	})
	truncation := dexto.Message{
		ID: uuid.NewString(), SessionID: sess.Meta().ID, Role: dexto.RoleSystem,
		SystemContent: fmt.Sprintf("Run stopped after reaching the %d-iteration limit.", opts.maxIterations()),
	}
	if err := r.deps.Store.AppendMessage(ctx, sess.Meta().ID, truncation); err != nil {
		return "", dexto.NewError(dexto.CodeStorageError, "persist truncation message", err).WithSession(sess.Meta().ID, runID)
	}
	return "", dexto.NewError(dexto.CodeMaxIterations, "run exceeded maximum iterations", nil).WithSession(sess.Meta().ID, runID)
}

// streamCompletion calls the LLM client, honoring cancel for the duration
// of the stream and assembling the chunks into one assistant Message.
func (r *runner) streamCompletion(ctx context.Context, sess *ChatSession, opts RunOptions, runID string, cancel *CancelToken, messages []dexto.Message, toolSpecs []llm.ToolSpec) (dexto.Message, error) {
	sess.setState(dexto.RunStreaming)
	provider := opts.Client.Name()
	start := time.Now()

	if r.deps.Telemetry != nil {
		var span trace.Span
		ctx, span = r.deps.Telemetry.Tracer.TraceLLMRequest(ctx, provider, opts.Model)
		defer span.End()
	}

	assistant, err := r.doStreamCompletion(ctx, sess, opts, runID, cancel, messages, toolSpecs)

	if r.deps.Telemetry != nil {
		status := "success"
		var inTok, outTok int
		if err != nil {
			status = "error"
		} else if assistant.TokenUsage != nil {
			inTok, outTok = assistant.TokenUsage.InputTokens, assistant.TokenUsage.OutputTokens
		}
		r.deps.Telemetry.Metrics.RecordLLMRequest(provider, opts.Model, status, time.Since(start).Seconds(), inTok, outTok)
	}
	return assistant, err
}

func (r *runner) doStreamCompletion(ctx context.Context, sess *ChatSession, opts RunOptions, runID string, cancel *CancelToken, messages []dexto.Message, toolSpecs []llm.ToolSpec) (dexto.Message, error) {
	sessionID := sess.Meta().ID

	chunks, err := opts.Client.Complete(ctx, &llm.CompletionRequest{
		Model: opts.Model, System: opts.SystemPrompt, Messages: messages,
		Tools: toolSpecs, MaxTokens: opts.MaxTokens,
	})
	if err != nil {
		return dexto.Message{}, dexto.NewError(dexto.CodeLifecycleError, "start completion", err).WithSession(sessionID, runID)
	}

	assistant := dexto.Message{ID: uuid.NewString(), SessionID: sessionID, Role: dexto.RoleAssistant}
	emittedThinking := false

	for {
		select {
		case <-cancel.Done():
			return assistant, nil
		case <-ctx.Done():
			return assistant, nil
		case chunk, ok := <-chunks:
			if !ok {
				return assistant, nil
			}
			if chunk.Error != nil {
				r.deps.Bus.Emit(eventbus.TopicLLMError, eventbus.ErrorPayload{SessionID: sessionID, RunID: runID, Code: string(dexto.CodeLifecycleError), Message: chunk.Error.Error()})
				return dexto.Message{}, dexto.NewError(dexto.CodeLifecycleError, chunk.Error.Error(), chunk.Error).WithSession(sessionID, runID)
			}
			if chunk.Thinking != "" || chunk.ThinkingStart {
				if !emittedThinking {
					r.deps.Bus.Emit(eventbus.TopicLLMThinking, eventbus.ThinkingPayload{SessionID: sessionID, RunID: runID})
					emittedThinking = true
				}
			}
			if chunk.Text != "" {
				assistant.Text += chunk.Text
				r.deps.Bus.Emit(eventbus.TopicLLMChunk, eventbus.ChunkPayload{SessionID: sessionID, Type: eventbus.ChunkToken, Content: chunk.Text, IsComplete: chunk.Done})
			}
			if chunk.ToolCall != nil {
				assistant.ToolCalls = append(assistant.ToolCalls, *chunk.ToolCall)
				r.deps.Bus.Emit(eventbus.TopicLLMChunk, eventbus.ChunkPayload{SessionID: sessionID, Type: eventbus.ChunkToolDelta, Content: chunk.ToolCall.Name, IsComplete: chunk.Done})
			}
			if chunk.InputTokens != 0 || chunk.OutputTokens != 0 {
				assistant.TokenUsage = &dexto.TokenUsage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
			}
			if chunk.Done {
				return assistant, nil
			}
		}
	}
}

// watchCancellation derives a context from ctx that is also cancelled the
// moment cancel fires, so a tool call already in flight — and any approval
// request waiting inside it — is aborted promptly instead of only being
// checked for cancellation between loop iterations. The caller must invoke
// the returned stop func once the call returns, win or lose, to release the
// watcher goroutine.
func watchCancellation(ctx context.Context, cancel *CancelToken) (context.Context, func()) {
	derived, stop := context.WithCancel(ctx)
	go func() {
		select {
		case <-cancel.Done():
			stop()
		case <-derived.Done():
		}
	}()
	return derived, stop
}

// runToolCalls dispatches each call through the Tool Manager in order,
// persisting one tool message per call, and stops (marking the rest
// cancelled) the moment cancel fires, whether that happens before a call
// starts or while one is still in flight.
func (r *runner) runToolCalls(ctx context.Context, sess *ChatSession, hctx plugins.HookContext, runID string, cancel *CancelToken, calls []dexto.ToolCall) ([]dexto.Message, bool, error) {
	sessionID := sess.Meta().ID
	var out []dexto.Message

	for i, call := range calls {
		if cancel.Cancelled() {
			cancelled := make([]dexto.Message, 0, len(calls)-i)
			for _, remaining := range calls[i:] {
				cancelled = append(cancelled, cancelledToolMessage(sessionID, remaining))
			}
			if err := r.persistAll(ctx, sessionID, cancelled); err != nil {
				return out, true, err
			}
			return append(out, cancelled...), true, nil
		}

		r.deps.Bus.Emit(eventbus.TopicToolCall, eventbus.ToolCallPayload{SessionID: sessionID, CallID: call.ID, Name: call.Name, Args: string(call.Args)})

		callCtx, stopWatch := watchCancellation(ctx, cancel)
		toolCtx := callCtx
		var span trace.Span
		toolStart := time.Now()
		if r.deps.Telemetry != nil {
			toolCtx, span = r.deps.Telemetry.Tracer.TraceToolCall(callCtx, call.Name)
		}
		result, err := r.deps.Tools.Execute(toolCtx, hctx, sessionID, call)
		stopWatch()
		if r.deps.Telemetry != nil {
			status := "success"
			if err != nil || result.IsError {
				status = "error"
			}
			r.deps.Telemetry.Metrics.RecordToolExecution(call.Name, status, time.Since(toolStart).Seconds())
			if span != nil {
				r.deps.Telemetry.Tracer.RecordError(span, err)
				span.End()
			}
		}
		if err != nil {
			if cancel.Cancelled() {
				cancelled := make([]dexto.Message, 0, len(calls)-i)
				for _, remaining := range calls[i:] {
					cancelled = append(cancelled, cancelledToolMessage(sessionID, remaining))
				}
				if err := r.persistAll(ctx, sessionID, cancelled); err != nil {
					return out, true, err
				}
				return append(out, cancelled...), true, nil
			}
			return out, false, dexto.NewError(dexto.CodePluginError, "tool call aborted by plugin", err).WithSession(sessionID, runID)
		}

		msg := dexto.Message{
			ID: uuid.NewString(), SessionID: sessionID, Role: dexto.RoleTool,
			ToolCallID: result.ToolCallID, ToolName: call.Name, Result: result.Content, IsError: result.IsError,
		}
		if msg.ToolCallID == "" {
			msg.ToolCallID = call.ID
		}
		if err := r.deps.Store.AppendMessage(ctx, sessionID, msg); err != nil {
			return out, false, dexto.NewError(dexto.CodeStorageError, "persist tool message", err).WithSession(sessionID, runID)
		}
		out = append(out, msg)
	}
	return out, false, nil
}

func (r *runner) persistAll(ctx context.Context, sessionID string, msgs []dexto.Message) error {
	for _, msg := range msgs {
		if err := r.deps.Store.AppendMessage(ctx, sessionID, msg); err != nil {
			return dexto.NewError(dexto.CodeStorageError, "persist cancelled tool message", err).WithSession(sessionID, "")
		}
	}
	return nil
}

func cancelledToolMessage(sessionID string, call dexto.ToolCall) dexto.Message {
	return dexto.Message{
		ID: uuid.NewString(), SessionID: sessionID, Role: dexto.RoleTool,
		ToolCallID: call.ID, ToolName: call.Name, IsError: true,
		Result: dexto.ToolResultValue{Text: "tool call cancelled"},
	}
}

// handleCancellation synthesizes and persists the "Interrupted" system
// message spec §4.9 calls for before a cancelled run releases its lock,
// and finishes the CancelToken's state transition.
func (r *runner) handleCancellation(ctx context.Context, sess *ChatSession, hctx plugins.HookContext, runID string, history []dexto.Message) (string, error) {
	sessionID := sess.Meta().ID
	interrupted := dexto.Message{
		ID: uuid.NewString(), SessionID: sessionID, Role: dexto.RoleSystem,
		SystemContent: "Interrupted — what should Dexto do next?",
	}
	if err := r.deps.Store.AppendMessage(ctx, sessionID, interrupted); err != nil {
		return "", dexto.NewError(dexto.CodeStorageError, "persist interruption message", err).WithSession(sessionID, runID)
	}
	sess.CancelToken().MarkCancelled()
	return "", dexto.NewError(dexto.CodeCancelled, "run cancelled", nil).WithSession(sessionID, runID)
}
