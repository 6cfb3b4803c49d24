// Package passes lists upcoming passes of one satellite over one observer
// by chaining horizon crossings from a propagation.Propagator.
package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AltitudeM float64   `json:"altitude_m"`
	Elevation float64   `json:"elevation"`
}

// Pass describes one satellite pass over the observer.
type Pass struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	StartOrbit       uint64             `json:"start_orbit"`
	InProgress       bool               `json:"in_progress"` // already above the horizon at Start
	GroundTrack      []GroundTrackPoint `json:"ground_track,omitempty"`
}

// Request holds the parameters for a pass prediction.
type Request struct {
	Propagator   propagation.Propagator
	ElementSet   *tle.ElementSet
	Observer     geo.Geodetic
	Start        time.Time
	Window       time.Duration // default 24h
	MinElevation float64       // degrees
	MaxPasses    int           // default 10
	TrackStep    time.Duration // ground track sampling; 0 disables the track
}

const maxElevationStep = 5 * time.Second

// ErrNoPropagator is returned when the request carries no propagator.
var ErrNoPropagator = errors.New("passes: no propagator")

// Predict returns the passes that start inside the window, in time order.
// A pass that is in progress at Start is reported first with InProgress set.
func Predict(ctx context.Context, req Request) ([]Pass, error) {
	if req.Propagator == nil {
		return nil, ErrNoPropagator
	}
	if req.ElementSet == nil {
		return nil, fmt.Errorf("%w: nil element set", tle.ErrInvalidElementSet)
	}
	if req.Window <= 0 {
		req.Window = 24 * time.Hour
	}
	if req.MaxPasses <= 0 {
		req.MaxPasses = 10
	}

	p := req.Propagator
	start := timebase.FromTime(req.Start)
	end := start.AddSeconds(req.Window.Seconds())

	state, err := p.StateAt(req.ElementSet, start, req.Observer)
	if err != nil {
		return nil, err
	}

	var passes []Pass
	cursor := start
	inProgress := state.ElevationDeg >= req.MinElevation

	for len(passes) < req.MaxPasses {
		if err := ctx.Err(); err != nil {
			return passes, err
		}

		aos := cursor
		if !inProgress {
			var ok bool
			aos, ok = p.NextCrossing(req.ElementSet, req.Observer, cursor, req.MinElevation, propagation.Rising)
			if !ok || end.Before(aos) {
				break
			}
		}
		los, ok := p.NextCrossing(req.ElementSet, req.Observer, aos, req.MinElevation, propagation.Setting)
		if !ok {
			break
		}

		pass, err := describe(ctx, req, aos, los)
		if err != nil {
			return passes, err
		}
		pass.InProgress = inProgress
		passes = append(passes, pass)

		cursor = los
		inProgress = false
	}

	return passes, nil
}

// describe samples a pass between aos and los for its peak, azimuths and
// ground track.
func describe(ctx context.Context, req Request, aos, los timebase.JulianDay) (Pass, error) {
	p := req.Propagator
	first, err := p.StateAt(req.ElementSet, aos, req.Observer)
	if err != nil {
		return Pass{}, err
	}
	last, err := p.StateAt(req.ElementSet, los, req.Observer)
	if err != nil {
		return Pass{}, err
	}

	pass := Pass{
		StartTime:        aos.Time(),
		EndTime:          los.Time(),
		DurationSeconds:  los.Sub(aos),
		StartAzimuth:     first.AzimuthDeg,
		EndAzimuth:       last.AzimuthDeg,
		StartOrbit:       first.OrbitNumber,
		MaxElevation:     first.ElevationDeg,
		MaxElevationTime: aos.Time(),
		AzimuthAtMax:     first.AzimuthDeg,
	}

	step := maxElevationStep.Seconds()
	for jd := aos.AddSeconds(step); jd < los; jd = jd.AddSeconds(step) {
		if err := ctx.Err(); err != nil {
			return Pass{}, err
		}
		s, err := p.StateAt(req.ElementSet, jd, req.Observer)
		if err != nil {
			return Pass{}, err
		}
		if s.ElevationDeg > pass.MaxElevation {
			pass.MaxElevation = s.ElevationDeg
			pass.MaxElevationTime = jd.Time()
			pass.AzimuthAtMax = s.AzimuthDeg
		}
	}
	if last.ElevationDeg > pass.MaxElevation {
		pass.MaxElevation = last.ElevationDeg
		pass.MaxElevationTime = los.Time()
		pass.AzimuthAtMax = last.AzimuthDeg
	}

	if req.TrackStep > 0 {
		track, err := groundTrack(ctx, req, aos, los)
		if err != nil {
			return Pass{}, err
		}
		pass.GroundTrack = track
	}

	return pass, nil
}

// groundTrack samples the sub-satellite point every TrackStep from aos,
// ending with the point at los.
func groundTrack(ctx context.Context, req Request, aos, los timebase.JulianDay) ([]GroundTrackPoint, error) {
	step := req.TrackStep.Seconds()
	n := int(los.Sub(aos) / step)
	track := make([]GroundTrackPoint, 0, n+2)

	add := func(jd timebase.JulianDay) error {
		s, err := req.Propagator.StateAt(req.ElementSet, jd, req.Observer)
		if err != nil {
			return err
		}
		track = append(track, GroundTrackPoint{
			Time:      jd.Time(),
			Latitude:  s.SubSatellite.LatDeg,
			Longitude: s.SubSatellite.LonDeg,
			AltitudeM: s.SubSatellite.AltM,
			Elevation: s.ElevationDeg,
		})
		return nil
	}

	for k := 0; k <= n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := add(aos.AddSeconds(float64(k) * step)); err != nil {
			return nil, err
		}
	}
	if los.Sub(aos)-float64(n)*step > 1e-3 {
		if err := add(los); err != nil {
			return nil, err
		}
	}
	return track, nil
}
