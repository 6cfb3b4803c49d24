package propagation

import (
	"math"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
)

const earthRadiusKm = 6378.137

// Geostationary reports whether the element set describes an orbit
// synchronous with the Earth's rotation. Such a satellite never crosses the
// horizon.
func Geostationary(es *tle.ElementSet) bool {
	return math.Abs(es.MeanMotion-1.0027) < 0.0002
}

// DecayEstimate returns the Julian day after which the element set is
// presumed re-entered, extrapolating the mean motion derivative to
// 16.666666 rev/day. A zero derivative never decays.
func DecayEstimate(es *tle.ElementSet) timebase.JulianDay {
	ndot := math.Abs(es.MeanMotionDot)
	if ndot == 0 {
		return timebase.JulianDay(math.Inf(1))
	}
	return es.EpochJulian() + timebase.JulianDay((16.666666-es.MeanMotion)/(10*ndot))
}

// Decayed reports whether the element set is past its estimated decay.
func Decayed(es *tle.ElementSet, jd timebase.JulianDay) bool {
	return DecayEstimate(es) < jd
}

// NeverRises reports whether the ground track stays too far from the
// observer's latitude for the satellite to clear the horizon.
func NeverRises(es *tle.ElementSet, obs geo.Geodetic) bool {
	if es.MeanMotion < 1e-8 {
		return true
	}
	incl := es.InclinationDeg
	if incl >= 90 {
		incl = 180 - incl
	}

	sma := 331.25 * math.Exp(math.Log(1440.0/es.MeanMotion)*(2.0/3.0))
	apogee := sma*(1+es.Eccentricity) - earthRadiusKm

	reach := math.Acos(earthRadiusKm/(apogee+earthRadiusKm)) + incl*math.Pi/180
	return reach <= math.Abs(obs.LatDeg*math.Pi/180)
}

// OrbitNumber returns the revolution count at jd, advancing the epoch
// revolution number with the drag-corrected mean motion.
func OrbitNumber(es *tle.ElementSet, jd timebase.JulianDay) uint64 {
	age := float64(jd - es.EpochJulian())
	orbit := math.Floor((es.MeanMotion+age*es.BStar)*age+(es.MeanAnomalyDeg+es.ArgPerigeeDeg)/360) +
		float64(es.RevolutionNumber)
	if orbit < 0 || math.IsNaN(orbit) {
		return 0
	}
	return uint64(orbit)
}
