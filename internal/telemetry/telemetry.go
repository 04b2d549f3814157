package telemetry

import "context"

// Config is the ambient telemetry config threaded in from dexto.Config.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the collector address (e.g. "localhost:4317"). Empty
	// disables trace export; the tracer then comes from the global otel
	// provider, which records nothing unless a provider was installed.
	OTLPEndpoint   string
	SamplingRate   float64
	EnableInsecure bool
}

// Telemetry bundles the metrics sink and tracer every subsystem shares.
type Telemetry struct {
	Metrics *Metrics
	Tracer  *Tracer
}

// New builds a Telemetry and a shutdown func that flushes the tracer's
// exporter, if one is configured.
func New(cfg Config) (*Telemetry, func(context.Context) error) {
	tracer, shutdown := NewTracer(TraceConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   cfg.SamplingRate,
		EnableInsecure: cfg.EnableInsecure,
	})
	return &Telemetry{Metrics: NewMetrics(), Tracer: tracer}, shutdown
}
