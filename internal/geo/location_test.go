package geo

import (
	"errors"
	"math"
	"testing"
)

func TestGeodeticValidate(t *testing.T) {
	tests := []struct {
		name    string
		g       Geodetic
		wantErr bool
	}{
		{"origin", Geodetic{0, 0, 0}, false},
		{"tartu", Geodetic{58.64560, 23.15163, 8}, false},
		{"north pole", Geodetic{90, 0, 0}, false},
		{"dateline west", Geodetic{0, -180, 0}, false},
		{"below sea level", Geodetic{31.5, 35.5, -430}, false},
		{"latitude too high", Geodetic{90.0001, 0, 0}, true},
		{"latitude too low", Geodetic{-91, 0, 0}, true},
		{"longitude too high", Geodetic{0, 180.5, 0}, true},
		{"longitude too low", Geodetic{0, -200, 0}, true},
		{"nan latitude", Geodetic{math.NaN(), 0, 0}, true},
		{"inf altitude", Geodetic{0, 0, math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLocation) {
					t.Errorf("Validate(%v) = %v, want ErrInvalidLocation", tt.g, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate(%v) = %v, want nil", tt.g, err)
			}
		})
	}
}

func TestAsIdentity(t *testing.T) {
	g := Geodetic{LatDeg: 12.5, LonDeg: -45.25, AltM: 1234.5}
	if got := As[Geodetic](g); got != g {
		t.Errorf("As[Geodetic](%v) = %v", g, got)
	}
}

func TestAltitudeKm(t *testing.T) {
	g := Geodetic{AltM: 420500}
	if got := g.AltitudeKm(); got != 420.5 {
		t.Errorf("AltitudeKm() = %v, want 420.5", got)
	}
}
