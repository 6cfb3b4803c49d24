package tle

import (
	"errors"
	"math"
	"time"

	"github.com/star/satpredict/internal/timebase"
)

// ErrInvalidElementSet is returned when TLE lines cannot be decoded into a
// consistent orbital state.
var ErrInvalidElementSet = errors.New("invalid element set")

// LineLength is the fixed width of both element lines.
const LineLength = 69

const (
	muEarth       = 398600.4418 // km³/s², WGS-84
	earthRadiusKm = 6378.137
	secondsPerDay = 86400.0
)

// ElementSet is a validated two-line element set. Name is carried as given
// and never parsed.
type ElementSet struct {
	Name  string
	Line1 string
	Line2 string

	CatalogNumber  int
	Classification byte
	IntlDesignator string
	Epoch          time.Time
	MeanMotionDot  float64 // first derivative of mean motion / 2, rev/day²
	MeanMotionDDot float64 // second derivative of mean motion / 6, rev/day³
	BStar          float64 // drag term, 1/earth radii
	ElementNumber  int

	InclinationDeg   float64
	RAANDeg          float64
	Eccentricity     float64
	ArgPerigeeDeg    float64
	MeanAnomalyDeg   float64
	MeanMotion       float64 // rev/day
	RevolutionNumber int
}

// EpochJulian returns the element epoch as a Julian day.
func (es *ElementSet) EpochJulian() timebase.JulianDay {
	return timebase.FromTime(es.Epoch)
}

// PeriodMinutes returns the orbital period derived from the mean motion.
func (es *ElementSet) PeriodMinutes() float64 {
	return 1440.0 / es.MeanMotion
}

// SemiMajorAxisKm recovers the semi-major axis from the mean motion with
// Kepler's third law.
func (es *ElementSet) SemiMajorAxisKm() float64 {
	n := es.MeanMotion * 2 * math.Pi / secondsPerDay // rad/s
	return math.Cbrt(muEarth / (n * n))
}

// ApogeeAltitudeKm returns the apogee height above the equatorial radius.
func (es *ElementSet) ApogeeAltitudeKm() float64 {
	return es.SemiMajorAxisKm()*(1+es.Eccentricity) - earthRadiusKm
}

// PerigeeAltitudeKm returns the perigee height above the equatorial radius.
func (es *ElementSet) PerigeeAltitudeKm() float64 {
	return es.SemiMajorAxisKm()*(1-es.Eccentricity) - earthRadiusKm
}

// DeepSpace reports whether the orbit period is 225 minutes or longer, the
// threshold at which SGP4 switches to the SDP4 deep-space model.
func (es *ElementSet) DeepSpace() bool {
	return es.PeriodMinutes() >= 225.0
}
