// Package tracker follows one satellite from one ground observer. Each
// Query produces a coherent Snapshot: look angles, sub-satellite point,
// orbit number and the next rise and set times.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
)

const tracerName = "github.com/star/satpredict/internal/tracker"

var (
	ErrInvalidElementSet = tle.ErrInvalidElementSet
	ErrInvalidLocation   = geo.ErrInvalidLocation
	ErrPropagatorFailure = propagation.ErrPropagatorFailure
)

// Tracker owns an element set, an observer and the latest snapshot.
//
// Query must not be called concurrently on the same Tracker. Snapshot may be
// read from other goroutines while a query runs: the stored snapshot is
// swapped in one step.
type Tracker struct {
	es         tle.ElementSet
	observer   geo.Geodetic
	prop       propagation.Propagator
	horizonDeg float64

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	clock   func() time.Time

	snap atomic.Pointer[Snapshot]
}

// New creates a Tracker. The element set is re-validated from its lines and
// copied; the observer may be any geo.Location.
func New(es *tle.ElementSet, observer geo.Location, opts ...Option) (*Tracker, error) {
	if es == nil {
		return nil, fmt.Errorf("%w: nil element set", ErrInvalidElementSet)
	}
	checked, err := tle.Parse(es.Name, es.Line1, es.Line2)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		return nil, fmt.Errorf("%w: nil observer", ErrInvalidLocation)
	}
	obs := observer.Geodetic()
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		es:       *checked,
		observer: obs,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.prop == nil {
		t.prop = propagation.NewSGP4(propagation.DefaultSGP4Config())
	}
	t.snap.Store(&Snapshot{})

	t.logger.Debug("tracker created",
		"satellite", t.es.Name,
		"catalog", t.es.CatalogNumber,
		"observer", t.observer.String(),
		"horizon_deg", t.horizonDeg,
	)
	return t, nil
}

// NewFromLines parses the element set and creates a Tracker.
func NewFromLines(name, line1, line2 string, observer geo.Location, opts ...Option) (*Tracker, error) {
	es, err := tle.Parse(name, line1, line2)
	if err != nil {
		return nil, err
	}
	return New(es, observer, opts...)
}

// Query computes a new snapshot at at, or at the clock's current time when
// at is zero. On failure the previous snapshot is kept and the error wraps
// ErrPropagatorFailure. Missing AOS or LOS is not a failure.
func (t *Tracker) Query(ctx context.Context, at time.Time) error {
	start := time.Now()
	if at.IsZero() {
		at = t.clock()
	}
	at = at.UTC()
	jd := timebase.FromTime(at)

	ctx, span := t.tracer.Start(ctx, "tracker.Query", trace.WithAttributes(
		attribute.String("satellite", t.es.Name),
		attribute.Int("catalog", t.es.CatalogNumber),
		attribute.Float64("julian_day", float64(jd)),
	))
	defer span.End()

	snap, err := t.compute(at, jd)
	t.metrics.ObserveQuery(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.WarnContext(ctx, "query failed",
			"satellite", t.es.Name,
			"at", at.Format(time.RFC3339Nano),
			"error", err,
		)
		return err
	}

	t.snap.Store(&snap)
	t.metrics.SetPosition(t.es.Name, snap.ElevationDeg, snap.RangeKm, snap.OrbitNumber, snap.AOS, snap.LOS)

	span.SetAttributes(
		attribute.Float64("azimuth_deg", snap.AzimuthDeg),
		attribute.Float64("elevation_deg", snap.ElevationDeg),
		attribute.Bool("aos", snap.AOS != nil),
		attribute.Bool("los", snap.LOS != nil),
	)
	t.logger.DebugContext(ctx, "query complete",
		"satellite", t.es.Name,
		"at", at.Format(time.RFC3339Nano),
		"elevation_deg", snap.ElevationDeg,
		"orbit", snap.OrbitNumber,
		"duration", time.Since(start),
	)
	return nil
}

func (t *Tracker) compute(at time.Time, jd timebase.JulianDay) (Snapshot, error) {
	snap := Snapshot{At: at, JulianDay: jd}

	if aos, ok := t.prop.NextCrossing(&t.es, t.observer, jd, t.horizonDeg, propagation.Rising); ok {
		ts := aos.Time()
		snap.AOS = &ts
	}
	if los, ok := t.prop.NextCrossing(&t.es, t.observer, jd, t.horizonDeg, propagation.Setting); ok {
		ts := los.Time()
		snap.LOS = &ts
	}

	state, err := t.prop.StateAt(&t.es, jd, t.observer)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s at %s: %w", ErrPropagatorFailure, t.es.Name, at.Format(time.RFC3339), err)
	}
	if err := checkState(state); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s at %s: %v", ErrPropagatorFailure, t.es.Name, at.Format(time.RFC3339), err)
	}

	snap.AzimuthDeg = state.AzimuthDeg
	snap.ElevationDeg = state.ElevationDeg
	snap.RangeKm = state.RangeKm
	snap.RangeRateKmS = state.RangeRateKmS
	snap.SubSatellite = state.SubSatellite
	snap.VelocityKmS = state.VelocityKmS
	snap.OrbitNumber = state.OrbitNumber
	return snap, nil
}

// checkState rejects states no real geometry can produce.
func checkState(s propagation.State) error {
	values := []float64{
		s.AzimuthDeg, s.ElevationDeg, s.RangeKm, s.RangeRateKmS,
		s.SubSatellite.LatDeg, s.SubSatellite.LonDeg, s.SubSatellite.AltM, s.VelocityKmS,
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite state %+v", s)
		}
	}
	switch {
	case s.AzimuthDeg < 0 || s.AzimuthDeg >= 360:
		return fmt.Errorf("azimuth %.4f outside [0, 360)", s.AzimuthDeg)
	case s.ElevationDeg < -90 || s.ElevationDeg > 90:
		return fmt.Errorf("elevation %.4f outside [-90, 90]", s.ElevationDeg)
	case s.RangeKm < 0:
		return fmt.Errorf("negative range %.4f", s.RangeKm)
	}
	return s.SubSatellite.Validate()
}

// Snapshot returns a copy of the latest snapshot. Before the first
// successful query it is the zero Snapshot.
func (t *Tracker) Snapshot() Snapshot {
	return t.snap.Load().clone()
}

// Observed reports whether a query has completed successfully.
func (t *Tracker) Observed() bool {
	return !t.snap.Load().At.IsZero()
}

// ElementSet returns a copy of the tracked element set.
func (t *Tracker) ElementSet() tle.ElementSet {
	return t.es
}

// Observer returns the observer location.
func (t *Tracker) Observer() geo.Geodetic {
	return t.observer
}

// Horizon returns the AOS/LOS elevation threshold in degrees.
func (t *Tracker) Horizon() float64 {
	return t.horizonDeg
}
