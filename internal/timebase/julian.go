// Package timebase converts between civil UTC timestamps and the continuous
// Julian day count used by the propagators.
package timebase

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// UnixEpoch is the Julian day of 1970-01-01T00:00:00 UTC.
const UnixEpoch JulianDay = 2440587.5

// J2000 is the Julian day of 2000-01-01T12:00:00 UTC.
const J2000 JulianDay = 2451545.0

const (
	secondsPerDay     = 86400.0
	nanosecondsPerDay = 8.64e13
)

// JulianDay is a fractional day count. The integer part counts days from
// the Julian epoch and the fraction encodes the time of day.
type JulianDay float64

// FromTime converts t to a Julian day. t is normalised to UTC first.
func FromTime(t time.Time) JulianDay {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	jd := yearStart(year) +
		float64(julian.DayOfYear(year, int(month), day, IsLeap(year))) +
		fractionOfDay(hour, min, sec) +
		float64(t.Nanosecond())/nanosecondsPerDay
	return JulianDay(jd)
}

// Now returns the current wall-clock time as a Julian day.
func Now() JulianDay {
	return FromTime(time.Now())
}

// Time converts jd back to a UTC timestamp. The seconds offset from the Unix
// epoch is split with floor so instants before 1970 keep a non-negative
// nanosecond remainder.
func (jd JulianDay) Time() time.Time {
	unix := float64(jd-UnixEpoch) * secondsPerDay
	sec := math.Floor(unix)
	nsec := math.Round((unix - sec) * 1e9)
	if nsec >= 1e9 {
		sec++
		nsec -= 1e9
	}
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// AddSeconds returns jd shifted by s seconds.
func (jd JulianDay) AddSeconds(s float64) JulianDay {
	return jd + JulianDay(s/secondsPerDay)
}

// Sub returns jd-other in seconds.
func (jd JulianDay) Sub(other JulianDay) float64 {
	return float64(jd-other) * secondsPerDay
}

// Before reports whether jd is earlier than other.
func (jd JulianDay) Before(other JulianDay) bool {
	return jd < other
}

func (jd JulianDay) String() string {
	return fmt.Sprintf("JD %.6f", float64(jd))
}

func fractionOfDay(h, m, s int) float64 {
	return (float64(h) + (float64(m)+float64(s)/60.0)/60.0) / 24.0
}

// yearStart returns the Julian day of 0.0 January of year (Meeus,
// Astronomical Formulae for Calculators, pp. 23-25).
func yearStart(year int) float64 {
	y := float64(year - 1)
	a := math.Trunc(y / 100)
	b := 2 - a + math.Trunc(a/4)
	return math.Trunc(365.25*y) + math.Trunc(30.6001*14) + 1720994.5 + b
}

// IsLeap reports whether year is a Gregorian leap year.
func IsLeap(year int) bool {
	return julian.LeapYearGregorian(year)
}
