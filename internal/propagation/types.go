package propagation

import (
	"errors"
	"runtime"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
)

// ErrPropagatorFailure is returned when the orbit model cannot produce a
// usable state: numerical failure, an implausible position or a decayed
// element set.
var ErrPropagatorFailure = errors.New("propagator failure")

// Direction selects which horizon crossing NextCrossing looks for.
type Direction int

const (
	// Rising is an acquisition of signal: elevation goes from below to at
	// or above the horizon.
	Rising Direction = iota
	// Setting is a loss of signal.
	Setting
)

func (d Direction) String() string {
	switch d {
	case Rising:
		return "rising"
	case Setting:
		return "setting"
	}
	return "unknown"
}

// State is the observer-relative state of a satellite at one instant.
type State struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
	RangeRateKmS float64
	SubSatellite geo.Geodetic
	VelocityKmS  float64
	OrbitNumber  uint64
}

// Propagator computes satellite states for an element set. Implementations
// must be deterministic for identical inputs.
type Propagator interface {
	// StateAt returns the state at jd as seen from obs. Failures wrap
	// ErrPropagatorFailure.
	StateAt(es *tle.ElementSet, jd timebase.JulianDay, obs geo.Geodetic) (State, error)

	// NextCrossing returns the first time strictly after after at which the
	// elevation crosses horizonDeg in direction dir. The boolean is false
	// when no such crossing exists inside the search window.
	NextCrossing(es *tle.ElementSet, obs geo.Geodetic, after timebase.JulianDay, horizonDeg float64, dir Direction) (timebase.JulianDay, bool)
}

// SGP4Config holds the tunables of the SGP4 adapter.
type SGP4Config struct {
	Gravity   satellite.Gravity // default: WGS-84
	Step      time.Duration     // coarse crossing scan step (default: 30s)
	Window    time.Duration     // crossing search window (default: 24h)
	Tolerance time.Duration     // crossing refinement tolerance (default: 1ms)
	Workers   int               // scan worker pool size (default: runtime.NumCPU())
}

// DefaultSGP4Config returns the adapter defaults.
func DefaultSGP4Config() SGP4Config {
	return SGP4Config{
		Gravity:   satellite.GravityWGS84,
		Step:      30 * time.Second,
		Window:    24 * time.Hour,
		Tolerance: time.Millisecond,
		Workers:   runtime.NumCPU(),
	}
}

func (c SGP4Config) withDefaults() SGP4Config {
	d := DefaultSGP4Config()
	if c.Gravity == "" {
		c.Gravity = d.Gravity
	}
	if c.Step <= 0 {
		c.Step = d.Step
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// ParseGravity maps a configuration string to a go-satellite gravity model.
func ParseGravity(s string) (satellite.Gravity, error) {
	switch g := satellite.Gravity(s); g {
	case satellite.GravityWGS72Old, satellite.GravityWGS72, satellite.GravityWGS84:
		return g, nil
	case "":
		return satellite.GravityWGS84, nil
	}
	return "", errors.New("unknown gravity model " + s + " (want wgs72old, wgs72 or wgs84)")
}
