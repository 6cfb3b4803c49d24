package geo

import "math"

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378137.0             // semi-major axis (meters)
	WGS84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = WGS84F * (2 - WGS84F) // first eccentricity squared
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	// Bowring iteration stops once latitude moves less than this (radians).
	latTolerance = 1e-12
	maxIter      = 10
)

// ECEF is an Earth-centered, Earth-fixed Cartesian position in meters.
type ECEF struct {
	X, Y, Z float64
}

// FromGeodetic converts a geodetic position to ECEF.
func (ECEF) FromGeodetic(g Geodetic) ECEF {
	lat := g.LatDeg * deg2rad
	lon := g.LonDeg * deg2rad

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ECEF{
		X: (n + g.AltM) * cosLat * math.Cos(lon),
		Y: (n + g.AltM) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.AltM) * sinLat,
	}
}

// Geodetic converts e to latitude, longitude and altitude using the
// iterative Bowring method.
func (e ECEF) Geodetic() Geodetic {
	lon := math.Atan2(e.Y, e.X)
	p := math.Hypot(e.X, e.Y)

	lat := math.Atan2(e.Z, p*(1-wgs84E2))
	for i := 0; i < maxIter; i++ {
		sinLat := math.Sin(lat)
		n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(e.Z+wgs84E2*n*sinLat, p)
		if math.Abs(next-lat) < latTolerance {
			lat = next
			break
		}
		lat = next
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(e.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * rad2deg,
		LonDeg: lon * rad2deg,
		AltM:   alt,
	}
}

// Norm returns the distance from the Earth's center in meters.
func (e ECEF) Norm() float64 {
	return math.Sqrt(e.X*e.X + e.Y*e.Y + e.Z*e.Z)
}
