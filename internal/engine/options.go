package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/metrics"
)

// DefaultStoreTimeout bounds every progress store call.
const DefaultStoreTimeout = 5 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes every accepted transition on bus.
func WithEventBus(bus ports.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithStoreTimeout bounds each store load, save and reset.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithGates installs completion gates.
func WithGates(g Gates) Option {
	return func(e *Engine) { e.gates = g }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
