package transform

import (
	"math"
	"testing"

	"github.com/star/satpredict/internal/geo"
)

// stationary places a motionless point at a geodetic location.
func stationary(g geo.Geodetic) PositionECEF {
	e := geo.As[geo.ECEF](g)
	return PositionECEF{X: e.X, Y: e.Y, Z: e.Z}
}

func TestObserverLook_DirectlyOverhead(t *testing.T) {
	obs := NewObserver(geo.Geodetic{})

	la := obs.Look(stationary(geo.Geodetic{AltM: 400000}))

	if math.Abs(la.ElevationDeg-90.0) > 0.1 {
		t.Errorf("overhead elevation = %.2f deg, want ~90", la.ElevationDeg)
	}
	if math.Abs(la.RangeKm-400.0) > 0.001 {
		t.Errorf("overhead range = %.4f km, want 400", la.RangeKm)
	}
	if la.RangeRateKmS != 0 {
		t.Errorf("range rate of a motionless target = %v, want 0", la.RangeRateKmS)
	}
}

func TestObserverLook_NearHorizon(t *testing.T) {
	obs := NewObserver(geo.Geodetic{})

	la := obs.Look(stationary(geo.Geodetic{LatDeg: 0, LonDeg: 20, AltM: 400000}))

	if la.ElevationDeg < -5 || la.ElevationDeg > 45 {
		t.Errorf("near-horizon elevation = %.2f deg, expected between -5 and 45", la.ElevationDeg)
	}
}

func TestObserverLook_AzimuthDirections(t *testing.T) {
	obs := NewObserver(geo.Geodetic{})

	tests := []struct {
		name   string
		target geo.Geodetic
		wantAz float64
	}{
		{"north", geo.Geodetic{LatDeg: 10, AltM: 400000}, 0},
		{"east", geo.Geodetic{LonDeg: 10, AltM: 400000}, 90},
		{"south", geo.Geodetic{LatDeg: -10, AltM: 400000}, 180},
		{"west", geo.Geodetic{LonDeg: -10, AltM: 400000}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			la := obs.Look(stationary(tt.target))
			if la.AzimuthDeg < 0 || la.AzimuthDeg >= 360 {
				t.Fatalf("azimuth %.4f outside [0, 360)", la.AzimuthDeg)
			}
			diff := math.Abs(la.AzimuthDeg - tt.wantAz)
			if diff > 180 {
				diff = 360 - diff
			}
			if diff > 1 {
				t.Errorf("azimuth = %.2f deg, want near %.0f", la.AzimuthDeg, tt.wantAz)
			}
		})
	}
}

func TestObserverLook_RangeRateSign(t *testing.T) {
	obs := NewObserver(geo.Geodetic{})

	receding := stationary(geo.Geodetic{AltM: 500000})
	receding.VX = 1000 // straight up at the equator/prime meridian is +X

	la := obs.Look(receding)
	if math.Abs(la.RangeRateKmS-1.0) > 1e-9 {
		t.Errorf("receding range rate = %.6f km/s, want 1", la.RangeRateKmS)
	}

	approaching := receding
	approaching.VX = -2000
	if la := obs.Look(approaching); math.Abs(la.RangeRateKmS+2.0) > 1e-9 {
		t.Errorf("approaching range rate = %.6f km/s, want -2", la.RangeRateKmS)
	}
}

func TestObserverLook_Tartu(t *testing.T) {
	loc := geo.Geodetic{LatDeg: 58.64560, LonDeg: 23.15163, AltM: 8}
	obs := NewObserver(loc)
	if obs.Location != loc {
		t.Errorf("Location = %v, want %v", obs.Location, loc)
	}

	la := obs.Look(PositionECEF{X: 6778000})
	if la.RangeKm <= 0 {
		t.Errorf("range should be positive, got %.2f km", la.RangeKm)
	}
	if la.ElevationDeg < -90 || la.ElevationDeg > 90 {
		t.Errorf("elevation %.2f out of range", la.ElevationDeg)
	}
}
