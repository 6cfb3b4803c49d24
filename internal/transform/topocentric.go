package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/satpredict/internal/geo"
)

// Observer is a fixed ground station. Its ECEF position and the SEZ rotation
// terms are computed once and reused for every lookup.
type Observer struct {
	Location geo.Geodetic

	pos                            r3.Vec // ECEF, meters
	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles holds the observer-relative view of a satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise, [0, 360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
	RangeRateKmS float64 // positive when receding
}

// NewObserver precomputes the observer frame for loc.
func NewObserver(loc geo.Location) Observer {
	g := loc.Geodetic()
	e := geo.As[geo.ECEF](g)

	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0

	return Observer{
		Location: g,
		pos:      r3.Vec{X: e.X, Y: e.Y, Z: e.Z},
		sinLat:   math.Sin(lat),
		cosLat:   math.Cos(lat),
		sinLon:   math.Sin(lon),
		cosLon:   math.Cos(lon),
	}
}

// Look computes azimuth, elevation, range and range rate of a satellite
// state given in ECEF. The observer is at rest in ECEF, so the relative
// velocity is the satellite's ECEF velocity.
//
// Uses the SEZ (South-East-Zenith) rotation per Vallado Section 4.4.
func (o Observer) Look(sat PositionECEF) LookAngles {
	rho := r3.Sub(r3.Vec{X: sat.X, Y: sat.Y, Z: sat.Z}, o.pos)
	vel := r3.Vec{X: sat.VX, Y: sat.VY, Z: sat.VZ}

	south := o.sinLat*o.cosLon*rho.X + o.sinLat*o.sinLon*rho.Y - o.cosLat*rho.Z
	east := -o.sinLon*rho.X + o.cosLon*rho.Y
	zenith := o.cosLat*o.cosLon*rho.X + o.cosLat*o.sinLon*rho.Y + o.sinLat*rho.Z

	rangeM := r3.Norm(rho)
	if rangeM == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(math.Max(-1, math.Min(1, zenith/rangeM)))

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}
	azDeg := az * 180.0 / math.Pi
	if azDeg >= 360 {
		azDeg = 0
	}

	return LookAngles{
		AzimuthDeg:   azDeg,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeM / 1000.0,
		RangeRateKmS: r3.Dot(rho, vel) / rangeM / 1000.0,
	}
}
