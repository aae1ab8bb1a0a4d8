package registry

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"necrocode/internal/shared/logging"
)

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger routes registry diagnostics to the given logger. By default the
// registry logs to the shared component log file.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.OrNop(logger)
	}
}

// WithMetrics installs a specific metrics instance, typically bound to a
// private Prometheus registry in tests.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracerProvider overrides the global otel tracer provider for this
// registry's spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		r.tp = tp
	}
}

// WithClock injects the time source used for document and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
