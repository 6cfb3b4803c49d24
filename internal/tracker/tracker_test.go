package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/metrics"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
)

const (
	estcubeName  = "ESTCUBE 1"
	estcubeLine1 = "1 39161U 13021C   15091.47675532  .00001890  00000-0  31643-3 0  9990"
	estcubeLine2 = "2 39161  98.0727 175.0786 0009451 192.0216 168.0788 14.70951130101965"
)

var (
	tartu       = geo.Geodetic{LatDeg: 58.64560, LonDeg: 23.15163, AltM: 8}
	queryTime   = time.Date(2015, 4, 1, 18, 30, 0, 0, time.UTC)
	quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// fakePropagator returns canned answers. Crossing offsets are seconds after
// the search start; nil means no crossing.
type fakePropagator struct {
	aosAfter *float64
	losAfter *float64
	state    propagation.State
	err      error

	stateCalls    int
	crossingCalls int
}

func (f *fakePropagator) StateAt(es *tle.ElementSet, jd timebase.JulianDay, obs geo.Geodetic) (propagation.State, error) {
	f.stateCalls++
	if f.err != nil {
		return propagation.State{}, f.err
	}
	s := f.state
	s.OrbitNumber = propagation.OrbitNumber(es, jd)
	return s, nil
}

func (f *fakePropagator) NextCrossing(es *tle.ElementSet, obs geo.Geodetic, after timebase.JulianDay, horizonDeg float64, dir propagation.Direction) (timebase.JulianDay, bool) {
	f.crossingCalls++
	offset := f.aosAfter
	if dir == propagation.Setting {
		offset = f.losAfter
	}
	if offset == nil {
		return 0, false
	}
	return after.AddSeconds(*offset), true
}

func seconds(s float64) *float64 { return &s }

func fakeState() propagation.State {
	return propagation.State{
		AzimuthDeg:   123.4,
		ElevationDeg: 12.5,
		RangeKm:      1500,
		RangeRateKmS: -3.2,
		SubSatellite: geo.Geodetic{LatDeg: 55, LonDeg: 20, AltM: 660000},
		VelocityKmS:  7.5,
	}
}

func newFakeTracker(t *testing.T, fp *fakePropagator, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithPropagator(fp), WithLogger(quietLogger)}, opts...)
	tr, err := NewFromLines(estcubeName, estcubeLine1, estcubeLine2, tartu, opts...)
	if err != nil {
		t.Fatalf("NewFromLines: %v", err)
	}
	return tr
}

func TestQueryAOSLOSCombinations(t *testing.T) {
	tests := []struct {
		name    string
		aos     *float64
		los     *float64
		wantAOS bool
		wantLOS bool
	}{
		{"both", seconds(600), seconds(1200), true, true},
		{"only AOS", seconds(600), nil, true, false},
		{"only LOS", nil, seconds(300), false, true},
		{"neither", nil, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakePropagator{aosAfter: tt.aos, losAfter: tt.los, state: fakeState()}
			tr := newFakeTracker(t, fp)

			if err := tr.Query(context.Background(), queryTime); err != nil {
				t.Fatalf("Query: %v", err)
			}
			snap := tr.Snapshot()

			if (snap.AOS != nil) != tt.wantAOS {
				t.Errorf("AOS present = %v, want %v", snap.AOS != nil, tt.wantAOS)
			}
			if (snap.LOS != nil) != tt.wantLOS {
				t.Errorf("LOS present = %v, want %v", snap.LOS != nil, tt.wantLOS)
			}
			if snap.AOS != nil {
				want := queryTime.Add(time.Duration(*tt.aos) * time.Second)
				if d := snap.AOS.Sub(want); d < -time.Millisecond || d > time.Millisecond {
					t.Errorf("AOS = %v, want %v", snap.AOS, want)
				}
			}
			if snap.LOS != nil {
				want := queryTime.Add(time.Duration(*tt.los) * time.Second)
				if d := snap.LOS.Sub(want); d < -time.Millisecond || d > time.Millisecond {
					t.Errorf("LOS = %v, want %v", snap.LOS, want)
				}
			}
			if fp.crossingCalls != 2 || fp.stateCalls != 1 {
				t.Errorf("propagator calls: %d crossing, %d state; want 2 and 1", fp.crossingCalls, fp.stateCalls)
			}
		})
	}
}

func TestQuerySnapshotFields(t *testing.T) {
	fp := &fakePropagator{aosAfter: seconds(60), state: fakeState()}
	tr := newFakeTracker(t, fp)

	if tr.Observed() {
		t.Error("Observed before any query")
	}
	if snap := tr.Snapshot(); !snap.At.IsZero() || snap.AOS != nil {
		t.Errorf("initial snapshot not empty: %+v", snap)
	}

	if err := tr.Query(context.Background(), queryTime); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !tr.Observed() {
		t.Error("not Observed after a successful query")
	}

	snap := tr.Snapshot()
	want := fakeState()
	if !snap.At.Equal(queryTime) {
		t.Errorf("At = %v, want %v", snap.At, queryTime)
	}
	if snap.JulianDay != timebase.FromTime(queryTime) {
		t.Errorf("JulianDay = %v, want %v", snap.JulianDay, timebase.FromTime(queryTime))
	}
	if snap.AzimuthDeg != want.AzimuthDeg || snap.ElevationDeg != want.ElevationDeg ||
		snap.RangeKm != want.RangeKm || snap.RangeRateKmS != want.RangeRateKmS ||
		snap.VelocityKmS != want.VelocityKmS {
		t.Errorf("snapshot %+v does not carry state %+v", snap, want)
	}
	if snap.SubSatellitePoint() != want.SubSatellite {
		t.Errorf("SubSatellitePoint = %v, want %v", snap.SubSatellitePoint(), want.SubSatellite)
	}
	if snap.AltitudeKm() != 660 {
		t.Errorf("AltitudeKm = %v, want 660", snap.AltitudeKm())
	}
}

func TestSnapshotJSONAltitudeKm(t *testing.T) {
	aos := time.Date(2015, 4, 1, 18, 51, 0, 0, time.UTC)
	snap := Snapshot{
		At:           time.Date(2015, 4, 1, 18, 30, 0, 0, time.UTC),
		AOS:          &aos,
		SubSatellite: geo.Geodetic{LatDeg: 40, LonDeg: 10, AltM: 655250},
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body["altitude_km"] != 655.25 {
		t.Errorf("altitude_km = %v, want 655.25", body["altitude_km"])
	}
	if body["aos"] != "2015-04-01T18:51:00Z" || body["los"] != nil {
		t.Errorf("aos/los = %v/%v", body["aos"], body["los"])
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.SubSatellite != snap.SubSatellite || !back.At.Equal(snap.At) {
		t.Errorf("decoded snapshot = %+v", back)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	fp := &fakePropagator{aosAfter: seconds(60), losAfter: seconds(120), state: fakeState()}
	tr := newFakeTracker(t, fp)
	if err := tr.Query(context.Background(), queryTime); err != nil {
		t.Fatal(err)
	}

	a := tr.Snapshot()
	*a.AOS = time.Time{}
	a.ElevationDeg = -1

	b := tr.Snapshot()
	if b.AOS.IsZero() || b.ElevationDeg == -1 {
		t.Error("mutating a returned snapshot changed the tracker's snapshot")
	}
}

func TestQueryUsesClockWhenTimeOmitted(t *testing.T) {
	fp := &fakePropagator{state: fakeState()}
	tr := newFakeTracker(t, fp, WithClock(func() time.Time { return queryTime.In(time.FixedZone("EEST", 3*3600)) }))

	if err := tr.Query(context.Background(), time.Time{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	snap := tr.Snapshot()
	if !snap.At.Equal(queryTime) || snap.At.Location() != time.UTC {
		t.Errorf("At = %v, want %v in UTC", snap.At, queryTime)
	}
}

func TestFailedQueryKeepsSnapshot(t *testing.T) {
	fp := &fakePropagator{aosAfter: seconds(60), state: fakeState()}
	tr := newFakeTracker(t, fp)

	if err := tr.Query(context.Background(), queryTime); err != nil {
		t.Fatalf("first Query: %v", err)
	}
	before := tr.Snapshot()

	tests := []struct {
		name  string
		err   error
		state propagation.State
	}{
		{"propagator error", propagation.ErrPropagatorFailure, fakeState()},
		{"foreign error", errors.New("engine exploded"), fakeState()},
		{"NaN elevation", nil, propagation.State{ElevationDeg: math.NaN(), SubSatellite: fakeState().SubSatellite}},
		{"out of range azimuth", nil, propagation.State{AzimuthDeg: 360, SubSatellite: fakeState().SubSatellite}},
		{"invalid sub-satellite point", nil, propagation.State{SubSatellite: geo.Geodetic{LatDeg: 95}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp.err = tt.err
			fp.state = tt.state

			err := tr.Query(context.Background(), queryTime.Add(time.Minute))
			if !errors.Is(err, ErrPropagatorFailure) {
				t.Fatalf("Query error = %v, want ErrPropagatorFailure", err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("Query error %v does not wrap %v", err, tt.err)
			}

			after := tr.Snapshot()
			if !after.At.Equal(before.At) || after.ElevationDeg != before.ElevationDeg ||
				after.AOS == nil || !after.AOS.Equal(*before.AOS) {
				t.Errorf("snapshot changed after failed query:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	valid, err := tle.Parse(estcubeName, estcubeLine1, estcubeLine2)
	if err != nil {
		t.Fatal(err)
	}
	tampered := *valid
	tampered.Line1 = estcubeLine1[:68] + "1"

	tests := []struct {
		name    string
		build   func() (*Tracker, error)
		wantErr error
	}{
		{"nil element set", func() (*Tracker, error) { return New(nil, tartu) }, ErrInvalidElementSet},
		{"bad checksum lines", func() (*Tracker, error) { return New(&tampered, tartu) }, ErrInvalidElementSet},
		{"garbage lines", func() (*Tracker, error) { return NewFromLines("x", "hello", "world", tartu) }, ErrInvalidElementSet},
		{"truncated line", func() (*Tracker, error) { return NewFromLines("x", estcubeLine1[:60], estcubeLine2, tartu) }, ErrInvalidElementSet},
		{"latitude", func() (*Tracker, error) { return New(valid, geo.Geodetic{LatDeg: 91}) }, ErrInvalidLocation},
		{"longitude", func() (*Tracker, error) { return New(valid, geo.Geodetic{LonDeg: -181}) }, ErrInvalidLocation},
		{"NaN altitude", func() (*Tracker, error) { return New(valid, geo.Geodetic{AltM: math.NaN()}) }, ErrInvalidLocation},
		{"nil observer", func() (*Tracker, error) { return New(valid, nil) }, ErrInvalidLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := tt.build()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tr != nil {
				t.Error("a Tracker was returned alongside the error")
			}
		})
	}
}

func TestNewAcceptsAnyLocation(t *testing.T) {
	ecef := geo.As[geo.ECEF](tartu)
	tr, err := NewFromLines(estcubeName, estcubeLine1, estcubeLine2, ecef, WithPropagator(&fakePropagator{}))
	if err != nil {
		t.Fatalf("NewFromLines with ECEF observer: %v", err)
	}

	got := tr.Observer()
	if math.Abs(got.LatDeg-tartu.LatDeg) > 1e-6 || math.Abs(got.LonDeg-tartu.LonDeg) > 1e-6 || math.Abs(got.AltM-tartu.AltM) > 1e-3 {
		t.Errorf("Observer = %v, want %v", got, tartu)
	}
}

func TestTrackerCopiesElementSet(t *testing.T) {
	es, err := tle.Parse(estcubeName, estcubeLine1, estcubeLine2)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(es, tartu, WithPropagator(&fakePropagator{}), WithHorizon(5))
	if err != nil {
		t.Fatal(err)
	}

	es.Name = "changed"
	if got := tr.ElementSet(); got.Name != estcubeName || got.CatalogNumber != 39161 {
		t.Errorf("ElementSet = %q/%d after caller mutation", got.Name, got.CatalogNumber)
	}
	if tr.Horizon() != 5 {
		t.Errorf("Horizon = %v, want 5", tr.Horizon())
	}
}

func TestQueryWithSGP4(t *testing.T) {
	tr, err := NewFromLines(estcubeName, estcubeLine1, estcubeLine2, tartu, WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("NewFromLines: %v", err)
	}

	var prevOrbit uint64
	for i := 0; i < 5; i++ {
		at := queryTime.Add(time.Duration(i) * 7 * time.Minute)
		if err := tr.Query(context.Background(), at); err != nil {
			t.Fatalf("Query(%v): %v", at, err)
		}
		snap := tr.Snapshot()

		if snap.ElevationDeg < -90 || snap.ElevationDeg > 90 {
			t.Errorf("elevation %.3f out of range", snap.ElevationDeg)
		}
		if snap.AzimuthDeg < 0 || snap.AzimuthDeg >= 360 {
			t.Errorf("azimuth %.3f out of range", snap.AzimuthDeg)
		}
		if snap.RangeKm <= 0 {
			t.Errorf("range %.3f not positive", snap.RangeKm)
		}
		if snap.OrbitNumber < prevOrbit {
			t.Errorf("orbit number went from %d to %d", prevOrbit, snap.OrbitNumber)
		}
		prevOrbit = snap.OrbitNumber

		// A polar orbit seen from 58°N rises and sets several times a day.
		if snap.AOS == nil || snap.LOS == nil {
			t.Fatalf("query at %v: AOS %v, LOS %v; want both", at, snap.AOS, snap.LOS)
		}
		if !snap.AOS.After(at) || !snap.LOS.After(at) {
			t.Errorf("AOS %v / LOS %v not after query time %v", snap.AOS, snap.LOS, at)
		}
		// Below the horizon the satellite rises before it sets.
		if snap.ElevationDeg < 0 && snap.LOS.Before(*snap.AOS) {
			t.Errorf("below horizon but LOS %v precedes AOS %v", snap.LOS, snap.AOS)
		}
		if snap.ElevationDeg > 0 && snap.AOS.Before(*snap.LOS) {
			t.Errorf("above horizon but AOS %v precedes LOS %v", snap.AOS, snap.LOS)
		}

		ecef := geo.As[geo.ECEF](snap.SubSatellitePoint())
		if r := ecef.Norm() / 1000; r < 6900 || r > 7150 {
			t.Errorf("sub-satellite ECEF radius %.1f km implausible", r)
		}
	}
}

func TestQueryDecayedSurfacesFailure(t *testing.T) {
	const (
		decayLine1 = "1 99998U 20001B   15001.00000000  .01000000  00000-0  10000-1 0  9997"
		decayLine2 = "2 99998  51.6000 100.0000 0005000  90.0000 270.0000 16.40000000  1004"
	)
	tr, err := NewFromLines("DECAY", decayLine1, decayLine2, tartu, WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("NewFromLines: %v", err)
	}

	err = tr.Query(context.Background(), time.Date(2015, 2, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrPropagatorFailure) {
		t.Errorf("Query after decay: %v, want ErrPropagatorFailure", err)
	}
	if tr.Observed() {
		t.Error("tracker Observed after only a failed query")
	}
}

func TestQueryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	fp := &fakePropagator{aosAfter: seconds(60), state: fakeState()}
	tr := newFakeTracker(t, fp, WithMetrics(c))

	if err := tr.Query(context.Background(), queryTime); err != nil {
		t.Fatal(err)
	}
	fp.err = errors.New("boom")
	_ = tr.Query(context.Background(), queryTime)

	if got := testutil.ToFloat64(c.Queries.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Queries.WithLabelValues("error")); got != 1 {
		t.Errorf("error queries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Elevation.WithLabelValues(estcubeName)); got != 12.5 {
		t.Errorf("elevation gauge = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(c.NextLOS.WithLabelValues(estcubeName)); got != 0 {
		t.Errorf("LOS gauge = %v, want 0 for absent LOS", got)
	}
}

func TestQuerySpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	fp := &fakePropagator{state: fakeState()}
	tr := newFakeTracker(t, fp, WithTracerProvider(tp))

	if err := tr.Query(context.Background(), queryTime); err != nil {
		t.Fatal(err)
	}
	fp.err = propagation.ErrPropagatorFailure
	_ = tr.Query(context.Background(), queryTime)

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "tracker.Query" {
			t.Errorf("span name = %q, want tracker.Query", s.Name())
		}
	}
	if len(spans[1].Events()) == 0 {
		t.Error("failed query span has no error event")
	}
}

func TestDistinctTrackersIndependent(t *testing.T) {
	a := newFakeTracker(t, &fakePropagator{state: fakeState()})
	b := newFakeTracker(t, &fakePropagator{state: fakeState()})

	done := make(chan error, 2)
	for _, tr := range []*Tracker{a, b} {
		go func(tr *Tracker) {
			var err error
			for i := 0; i < 50 && err == nil; i++ {
				err = tr.Query(context.Background(), queryTime.Add(time.Duration(i)*time.Second))
			}
			done <- err
		}(tr)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
	if !a.Snapshot().At.Equal(b.Snapshot().At) {
		t.Errorf("trackers ended at different times: %v vs %v", a.Snapshot().At, b.Snapshot().At)
	}
}
