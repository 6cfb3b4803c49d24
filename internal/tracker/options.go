package tracker

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/propagation"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithPropagator replaces the default SGP4 propagator.
func WithPropagator(p propagation.Propagator) Option {
	return func(t *Tracker) {
		if p != nil {
			t.prop = p
		}
	}
}

// WithHorizon sets the elevation in degrees used for AOS/LOS. Default 0.
func WithHorizon(deg float64) Option {
	return func(t *Tracker) { t.horizonDeg = deg }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics publishes query outcomes and the latest snapshot to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = c }
}

// WithTracerProvider sets the provider for query spans. Default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Tracker) {
		if tp != nil {
			t.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock sets the time source used when Query is called without a time.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.clock = now
		}
	}
}
