// Package telemetry implements the runtime's metrics and tracing contract:
// a Prometheus metrics sink scoped to one registry per process, and an
// OpenTelemetry tracer that no-ops until an OTLP endpoint is configured.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks run, LLM request, tool execution, and session-lifecycle
// counters/histograms against a private registry rather than Prometheus's
// global default one, so more than one DextoAgent can exist in the same
// process (tests build dozens) without a duplicate-registration panic.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal             *prometheus.CounterVec
	RunDuration           *prometheus.HistogramVec
	LLMRequestsTotal      *prometheus.CounterVec
	LLMRequestDuration    *prometheus.HistogramVec
	LLMTokensTotal        *prometheus.CounterVec
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
	ActiveSessions        prometheus.Gauge
	SessionsEvictedTotal  *prometheus.CounterVec
}

// NewMetrics builds and registers every metric against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dexto_runs_total",
			Help: "Total number of session runs by terminal status",
		}, []string{"status"}),

		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dexto_run_duration_seconds",
			Help:    "Duration of a session run from first user message to final assistant text",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		LLMRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dexto_llm_requests_total",
			Help: "Total number of LLM completion requests by provider, model, and status",
		}, []string{"provider", "model", "status"}),

		LLMRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dexto_llm_request_duration_seconds",
			Help:    "Duration of LLM completion requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dexto_llm_tokens_total",
			Help: "Total tokens consumed by provider, model, and kind (input|output)",
		}, []string{"provider", "model", "kind"}),

		ToolExecutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dexto_tool_executions_total",
			Help: "Total tool executions by tool name and status",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dexto_tool_execution_duration_seconds",
			Help:    "Duration of tool executions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool_name"}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "dexto_active_sessions",
			Help: "Number of sessions currently loaded in the Session Manager",
		}),

		SessionsEvictedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dexto_sessions_evicted_total",
			Help: "Total sessions evicted from memory by reason (capacity|ttl|deleted)",
		}, []string{"reason"}),
	}
}

// Registry exposes the private registry a promhttp.Handler can serve.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordRun(status string, durationSeconds float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(durationSeconds)
}

func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionsTotal.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

func (m *Metrics) SessionLoaded() {
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionUnloaded(reason string) {
	m.ActiveSessions.Dec()
	m.SessionsEvictedTotal.WithLabelValues(reason).Inc()
}
