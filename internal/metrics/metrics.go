// Package metrics exposes Prometheus instrumentation for tracker queries and
// the HTTP API.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the tracker metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Queries       *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	Elevation     *prometheus.GaugeVec
	Range         *prometheus.GaugeVec
	OrbitNumber   *prometheus.GaugeVec
	NextAOS       *prometheus.GaugeVec
	NextLOS       *prometheus.GaugeVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StreamsActive  prometheus.Gauge
	StreamMessages prometheus.Counter
	StreamErrors   *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Queries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satpredict_queries_total",
		Help: "Tracker queries, labeled by result (ok or error).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.QueryDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satpredict_query_duration_seconds",
		Help:    "Tracker query latency in seconds, including the AOS/LOS search.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})); err != nil {
		return nil, err
	}
	if c.Elevation, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satpredict_elevation_degrees",
		Help: "Elevation of the tracked satellite above the observer's horizon.",
	}, []string{"satellite"})); err != nil {
		return nil, err
	}
	if c.Range, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satpredict_range_km",
		Help: "Slant range from the observer to the tracked satellite.",
	}, []string{"satellite"})); err != nil {
		return nil, err
	}
	if c.OrbitNumber, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satpredict_orbit_number",
		Help: "Current revolution number of the tracked satellite.",
	}, []string{"satellite"})); err != nil {
		return nil, err
	}
	if c.NextAOS, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satpredict_next_aos_timestamp_seconds",
		Help: "Unix time of the next acquisition of signal, 0 when none is in the search window.",
	}, []string{"satellite"})); err != nil {
		return nil, err
	}
	if c.NextLOS, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satpredict_next_los_timestamp_seconds",
		Help: "Unix time of the next loss of signal, 0 when none is in the search window.",
	}, []string{"satellite"})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satpredict_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "satpredict_http_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})); err != nil {
		return nil, err
	}
	if c.StreamsActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satpredict_streams_active",
		Help: "Open snapshot event streams.",
	})); err != nil {
		return nil, err
	}
	if c.StreamMessages, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satpredict_stream_messages_total",
		Help: "Snapshot events written to streams.",
	})); err != nil {
		return nil, err
	}
	if c.StreamErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satpredict_stream_errors_total",
		Help: "Stream failures, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveQuery records the outcome and latency of one tracker query.
func (c *Collector) ObserveQuery(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Queries.WithLabelValues(result).Inc()
	c.QueryDuration.Observe(d.Seconds())
}

// SetPosition publishes the latest snapshot of a satellite. Nil AOS/LOS
// reset the corresponding gauge to 0.
func (c *Collector) SetPosition(satellite string, elevationDeg, rangeKm float64, orbit uint64, aos, los *time.Time) {
	if c == nil {
		return
	}
	c.Elevation.WithLabelValues(satellite).Set(elevationDeg)
	c.Range.WithLabelValues(satellite).Set(rangeKm)
	c.OrbitNumber.WithLabelValues(satellite).Set(float64(orbit))
	c.NextAOS.WithLabelValues(satellite).Set(unixOrZero(aos))
	c.NextLOS.WithLabelValues(satellite).Set(unixOrZero(los))
}

func unixOrZero(t *time.Time) float64 {
	if t == nil {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// StreamOpened and StreamClosed track open event streams.
func (c *Collector) StreamOpened() {
	if c != nil {
		c.StreamsActive.Inc()
	}
}

func (c *Collector) StreamClosed() {
	if c != nil {
		c.StreamsActive.Dec()
	}
}

// StreamSent counts one event written to a stream.
func (c *Collector) StreamSent() {
	if c != nil {
		c.StreamMessages.Inc()
	}
}

// StreamError counts a stream failure.
func (c *Collector) StreamError(reason string) {
	if c != nil {
		c.StreamErrors.WithLabelValues(reason).Inc()
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := normalizeRoute(r.URL.Path)
		c.HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		c.HTTPDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	switch path {
	case "/", "/metrics", "/healthz", "/readyz",
		"/api/v1/snapshot", "/api/v1/passes", "/api/v1/satellite", "/api/v1/stream":
		return path
	}
	return "other"
}

// register adds col to reg, returning the already-registered collector of
// the same type when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
