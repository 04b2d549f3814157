package sessions

import (
	"testing"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

func TestNewChatSessionStartsIdle(t *testing.T) {
	sess := newChatSession(dexto.SessionMeta{ID: "s1"}, MinQueueCapacity)
	if !sess.IsIdle() {
		t.Fatalf("expected new session to be idle")
	}
	if sess.CurrentRunID() != "" {
		t.Fatalf("expected no run id before a run starts")
	}
}

func TestBeginRunTransitionsToThinking(t *testing.T) {
	sess := newChatSession(dexto.SessionMeta{ID: "s1"}, MinQueueCapacity)
	cancel := sess.beginRun("run1")
	if sess.State() != dexto.RunThinking {
		t.Fatalf("got state %v, want thinking", sess.State())
	}
	if sess.CurrentRunID() != "run1" {
		t.Fatalf("got run id %q, want run1", sess.CurrentRunID())
	}
	if sess.CancelToken() != cancel {
		t.Fatalf("CancelToken() should return the token beginRun created")
	}
	if sess.IsIdle() {
		t.Fatalf("session should not be idle mid-run")
	}
}

func TestEndRunReturnsToIdle(t *testing.T) {
	sess := newChatSession(dexto.SessionMeta{ID: "s1"}, MinQueueCapacity)
	sess.beginRun("run1")
	sess.endRun()
	if !sess.IsIdle() {
		t.Fatalf("expected idle after endRun")
	}
	if sess.CurrentRunID() != "" {
		t.Fatalf("expected empty run id after endRun")
	}
	if sess.CancelToken() != nil {
		t.Fatalf("expected nil CancelToken after endRun")
	}
}

func TestSetTitleUpdatesMeta(t *testing.T) {
	sess := newChatSession(dexto.SessionMeta{ID: "s1"}, MinQueueCapacity)
	sess.setTitle("new title")
	if sess.Meta().Title != "new title" {
		t.Fatalf("got title %q, want %q", sess.Meta().Title, "new title")
	}
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	sess := newChatSession(dexto.SessionMeta{ID: "s1"}, MinQueueCapacity)
	if !sess.Meta().LastActivityAt.IsZero() {
		t.Fatalf("expected zero LastActivityAt before touch")
	}
	sess.touch()
	if sess.Meta().LastActivityAt.IsZero() {
		t.Fatalf("expected touch to set LastActivityAt")
	}
}
