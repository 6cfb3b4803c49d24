// Package transform provides the frame transformations between the SGP4
// output frame and the observer's local horizon.
//
// TEME (True Equator Mean Equinox) is rotated to ECEF with GMST only
// (TEME → PEF ≈ ECEF). Polar motion and the equation of the equinoxes are
// ignored, which costs at most ~50 m: well below what look angles resolve.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"

	"github.com/star/satpredict/internal/geo"
)

// PositionTEME represents a satellite position and velocity in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// Speed returns the inertial speed in km/s.
func (p PositionTEME) Speed() float64 {
	return math.Sqrt(p.VX*p.VX + p.VY*p.VY + p.VZ*p.VZ)
}

// Radius returns the distance from the Earth's center in km.
func (p PositionTEME) Radius() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Advance linearly extrapolates the position by dt seconds along the velocity.
func (p PositionTEME) Advance(dt float64) PositionTEME {
	p.X += p.VX * dt
	p.Y += p.VY * dt
	p.Z += p.VZ * dt
	return p
}

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// Position drops the velocity, leaving a geo.ECEF.
func (p PositionECEF) Position() geo.ECEF {
	return geo.ECEF{X: p.X, Y: p.Y, Z: p.Z}
}

// TEMEToECEF rotates a TEME state (km, km/s) into ECEF (m, m/s) using the
// GMST angle in radians.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEF(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	xECEF := teme.X*cosG + teme.Y*sinG
	yECEF := -teme.X*sinG + teme.Y*cosG
	zECEF := teme.Z

	// ω × r_ECEF = [-ω*y_ECEF, ω*x_ECEF, 0]
	vxECEF := teme.VX*cosG + teme.VY*sinG + OmegaEarth*yECEF
	vyECEF := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*xECEF
	vzECEF := teme.VZ

	return PositionECEF{
		X:  xECEF * 1000.0,
		Y:  yECEF * 1000.0,
		Z:  zECEF * 1000.0,
		VX: vxECEF * 1000.0,
		VY: vyECEF * 1000.0,
		VZ: vzECEF * 1000.0,
	}
}

// MinRadiusKm is the lowest geocentric distance accepted for a satellite,
// a little below the Earth's polar radius.
const MinRadiusKm = 6200.0

// ValidateECEF reports whether pos is finite and between MinRadiusKm and
// maxRadiusKm from the Earth's center.
func ValidateECEF(pos PositionECEF, maxRadiusKm float64) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}

	mag := pos.Position().Norm() / 1000.0
	return mag >= MinRadiusKm && mag <= maxRadiusKm
}
