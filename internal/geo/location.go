// Package geo holds the spatial representations accepted and produced by the
// tracker. Geodetic is the canonical form; every other representation
// converts to and from it and never directly to a third frame.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLocation is returned for out-of-range or non-finite coordinates.
var ErrInvalidLocation = errors.New("invalid location")

// Location is any spatial representation convertible to the canonical
// geodetic form.
type Location interface {
	Geodetic() Geodetic
}

// Representation is a Location that can also be built from the canonical
// form. T is the implementing type itself.
type Representation[T any] interface {
	Location
	FromGeodetic(Geodetic) T
}

// As converts loc into representation T via the canonical geodetic form.
//
//	ecef := geo.As[geo.ECEF](geo.Geodetic{LatDeg: 58.6, LonDeg: 23.1, AltM: 8})
func As[T Representation[T]](loc Location) T {
	var zero T
	return zero.FromGeodetic(loc.Geodetic())
}

// Geodetic is a WGS-84 position: latitude and longitude in degrees, altitude
// in meters above the ellipsoid.
type Geodetic struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`
}

// Geodetic returns g unchanged.
func (g Geodetic) Geodetic() Geodetic { return g }

// FromGeodetic returns g unchanged.
func (Geodetic) FromGeodetic(g Geodetic) Geodetic { return g }

// AltitudeKm returns the altitude in kilometers.
func (g Geodetic) AltitudeKm() float64 { return g.AltM / 1000.0 }

// Validate checks latitude is within [-90, 90], longitude within [-180, 180]
// and all fields are finite.
func (g Geodetic) Validate() error {
	for _, v := range []float64{g.LatDeg, g.LonDeg, g.AltM} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidLocation, g)
		}
	}
	if g.LatDeg < -90 || g.LatDeg > 90 {
		return fmt.Errorf("%w: latitude %.6f outside [-90, 90]", ErrInvalidLocation, g.LatDeg)
	}
	if g.LonDeg < -180 || g.LonDeg > 180 {
		return fmt.Errorf("%w: longitude %.6f outside [-180, 180]", ErrInvalidLocation, g.LonDeg)
	}
	return nil
}

func (g Geodetic) String() string {
	return fmt.Sprintf("(%.5f°, %.5f°, %.1f m)", g.LatDeg, g.LonDeg, g.AltM)
}
