package propagation

import (
	"fmt"
	"math"
	"sync"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
	"github.com/star/satpredict/internal/transform"
)

// maxCachedModels bounds the model cache; it is dropped wholesale when full.
const maxCachedModels = 256

// SGP4 is the reference Propagator built on go-satellite. A single SGP4 may
// be shared by any number of trackers.
type SGP4 struct {
	config SGP4Config
	pool   *WorkerPool

	mu     sync.RWMutex
	models map[string]*model
}

var _ Propagator = (*SGP4)(nil)

// NewSGP4 creates an SGP4 adapter. Zero config fields take their defaults.
func NewSGP4(config SGP4Config) *SGP4 {
	config = config.withDefaults()
	return &SGP4{
		config: config,
		pool:   NewWorkerPool(config.Workers),
		models: make(map[string]*model),
	}
}

// Config returns the effective configuration.
func (p *SGP4) Config() SGP4Config {
	return p.config
}

// cachedModel returns the initialised record for es, building it on first
// use (double-checked locking).
func (p *SGP4) cachedModel(es *tle.ElementSet) (*model, error) {
	if es == nil {
		return nil, fmt.Errorf("%w: nil element set", ErrPropagatorFailure)
	}
	key := es.Line1 + "\n" + es.Line2

	p.mu.RLock()
	m, ok := p.models[key]
	p.mu.RUnlock()
	if ok {
		return m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.models[key]; ok {
		return m, nil
	}

	m, err := newModel(es, p.config.Gravity)
	if err != nil {
		return nil, err
	}
	if len(p.models) >= maxCachedModels {
		p.models = make(map[string]*model)
	}
	p.models[key] = m
	return m, nil
}

// StateAt implements Propagator.
func (p *SGP4) StateAt(es *tle.ElementSet, jd timebase.JulianDay, obs geo.Geodetic) (State, error) {
	m, err := p.cachedModel(es)
	if err != nil {
		return State{}, err
	}
	if Decayed(es, jd) {
		return State{}, fmt.Errorf("%w: catalog %d decayed around %s",
			ErrPropagatorFailure, es.CatalogNumber, DecayEstimate(es))
	}

	teme, ecef, err := m.at(jd)
	if err != nil {
		return State{}, err
	}
	look := transform.NewObserver(obs).Look(ecef)

	return State{
		AzimuthDeg:   look.AzimuthDeg,
		ElevationDeg: look.ElevationDeg,
		RangeKm:      look.RangeKm,
		RangeRateKmS: look.RangeRateKmS,
		SubSatellite: ecef.Position().Geodetic(),
		VelocityKmS:  teme.Speed(),
		OrbitNumber:  OrbitNumber(es, jd),
	}, nil
}

// elevation returns the elevation in degrees of m at jd seen from obs.
func elevation(m *model, obs transform.Observer, jd timebase.JulianDay) (float64, error) {
	_, ecef, err := m.at(jd)
	if err != nil {
		return 0, err
	}
	return obs.Look(ecef).ElevationDeg, nil
}

// NextCrossing implements Propagator. The window after after is scanned at
// the coarse step on the worker pool; the first bracketing pair is then
// bisected down to the tolerance and its upper bound returned.
func (p *SGP4) NextCrossing(es *tle.ElementSet, obs geo.Geodetic, after timebase.JulianDay, horizonDeg float64, dir Direction) (timebase.JulianDay, bool) {
	m, err := p.cachedModel(es)
	if err != nil {
		return 0, false
	}
	if Geostationary(es) || NeverRises(es, obs) || Decayed(es, after) {
		return 0, false
	}

	observer := transform.NewObserver(obs)
	step := p.config.Step.Seconds()
	n := int(math.Ceil(p.config.Window.Seconds() / step))

	times := make([]timebase.JulianDay, n+1)
	for i := range times {
		times[i] = after.AddSeconds(float64(i) * step)
	}
	samples := p.pool.Sample(times, func(jd timebase.JulianDay) (float64, error) {
		return elevation(m, observer, jd)
	})

	crossed := func(prev, cur float64) bool {
		if dir == Rising {
			return prev < horizonDeg && cur >= horizonDeg
		}
		return prev >= horizonDeg && cur < horizonDeg
	}
	// beyond reports whether an elevation lies on the far side of the crossing.
	beyond := func(e float64) bool {
		if dir == Rising {
			return e >= horizonDeg
		}
		return e < horizonDeg
	}

	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if math.IsNaN(prev) || math.IsNaN(cur) || !crossed(prev, cur) {
			continue
		}
		return p.bisect(m, observer, times[i-1], times[i], beyond), true
	}
	return 0, false
}

// bisect narrows [lo, hi] until it is shorter than the tolerance. hi always
// stays on the far side of the crossing.
func (p *SGP4) bisect(m *model, obs transform.Observer, lo, hi timebase.JulianDay, beyond func(float64) bool) timebase.JulianDay {
	tol := p.config.Tolerance.Seconds()
	for hi.Sub(lo) > tol {
		mid := lo.AddSeconds(hi.Sub(lo) / 2)
		if mid <= lo || mid >= hi {
			break
		}
		e, err := elevation(m, obs, mid)
		if err == nil && beyond(e) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}
