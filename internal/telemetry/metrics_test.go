package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsUsesAPrivateRegistry(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	if a.Registry() == b.Registry() {
		t.Fatalf("expected each Metrics instance to own a distinct registry")
	}
	// Constructing a second instance must not panic with a
	// duplicate-registration error against the global default registry.
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("success", 1.5)
	m.RecordRun("success", 2.5)
	m.RecordRun("cancelled", 0.5)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("got %v success runs, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("cancelled")); got != 1 {
		t.Fatalf("got %v cancelled runs, want 1", got)
	}
}

func TestRecordLLMRequestTracksTokensOnlyWhenPositive(t *testing.T) {
	m := NewMetrics()
	m.RecordLLMRequest("anthropic", "claude", "success", 0.2, 100, 50)
	m.RecordLLMRequest("anthropic", "claude", "success", 0.1, 0, 0)

	if got := testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("anthropic", "claude", "success")); got != 2 {
		t.Fatalf("got %v requests, want 2", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("anthropic", "claude", "input")); got != 100 {
		t.Fatalf("got %v input tokens, want 100", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("anthropic", "claude", "output")); got != 50 {
		t.Fatalf("got %v output tokens, want 50", got)
	}
}

func TestSessionLoadedAndUnloaded(t *testing.T) {
	m := NewMetrics()
	m.SessionLoaded()
	m.SessionLoaded()
	m.SessionUnloaded("ttl")

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("got %v active sessions, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsEvictedTotal.WithLabelValues("ttl")); got != 1 {
		t.Fatalf("got %v ttl evictions, want 1", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := NewMetrics()
	m.RecordToolExecution("edit_file", "success", 0.05)
	m.RecordToolExecution("edit_file", "error", 0.01)

	if got := testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("edit_file", "success")); got != 1 {
		t.Fatalf("got %v successful executions, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("edit_file", "error")); got != 1 {
		t.Fatalf("got %v errored executions, want 1", got)
	}
}
