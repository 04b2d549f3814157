package dexto

import (
	"context"
	"testing"

	"github.com/dexto-ai/dexto-core/internal/llm"
)

// scriptedClient is a minimal llm.Client that always answers with a fixed
// reply, enough to drive DextoAgent.Run end to end without network access.
type scriptedClient struct{ reply string }

func (c *scriptedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.Chunk, error) {
	ch := make(chan *llm.Chunk, 2)
	ch <- &llm.Chunk{Text: c.reply}
	ch <- &llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}
func (c *scriptedClient) Name() string        { return "scripted" }
func (c *scriptedClient) Models() []llm.Model { return nil }
func (c *scriptedClient) SupportsTools() bool { return true }

func newTestAgent(t *testing.T) *DextoAgent {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LLM.Client = &scriptedClient{reply: "pong"}
	agent, err := NewDextoAgent(cfg)
	if err != nil {
		t.Fatalf("NewDextoAgent: %v", err)
	}
	if err := agent.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { agent.Close() })
	return agent
}

func TestNewDextoAgentBuildsEveryComponent(t *testing.T) {
	agent := newTestAgent(t)
	if agent.bus == nil || agent.logger == nil || agent.sessions == nil || agent.toolMgr == nil {
		t.Fatalf("expected every core component to be wired, got %+v", agent)
	}
}

func TestRunRoundTripsThroughSessionManager(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()

	meta, err := agent.CreateSession(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	outcome, err := agent.Run(ctx, meta.ID, "ping")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Queued {
		t.Fatalf("expected an immediate run on a fresh session")
	}
	if outcome.Text != "pong" {
		t.Fatalf("got %q, want pong", outcome.Text)
	}
}

func TestListAndDeleteSession(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()

	meta, err := agent.CreateSession(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	list, err := agent.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 || list[0].ID != meta.ID {
		t.Fatalf("got %+v, want exactly the created session", list)
	}

	if err := agent.DeleteSession(ctx, meta.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	list, err = agent.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions after delete: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions after delete, got %+v", list)
	}
}

func TestResetConversationClearsHistoryThroughFacade(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()

	meta, err := agent.CreateSession(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := agent.Run(ctx, meta.ID, "ping"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := agent.ResetConversation(ctx, meta.ID); err != nil {
		t.Fatalf("ResetConversation: %v", err)
	}

	// A session with cleared history should still accept a new run.
	outcome, err := agent.Run(ctx, meta.ID, "ping again")
	if err != nil {
		t.Fatalf("Run after reset: %v", err)
	}
	if outcome.Text != "pong" {
		t.Fatalf("got %q, want pong", outcome.Text)
	}
}
