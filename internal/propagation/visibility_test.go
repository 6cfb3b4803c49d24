package propagation

import (
	"math"
	"testing"

	"github.com/star/satpredict/internal/geo"
)

func TestGeostationary(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
		want         bool
	}{
		{"geo", geoLine1, geoLine2, true},
		{"leo", estcubeLine1, estcubeLine2, false},
		{"equatorial leo", equatorialLine1, equatorialLine2, false},
	}
	for _, tt := range tests {
		es := mustParse(t, tt.name, tt.line1, tt.line2)
		if got := Geostationary(es); got != tt.want {
			t.Errorf("Geostationary(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecayEstimate(t *testing.T) {
	es := mustParse(t, "DECAY", decayLine1, decayLine2)
	// (16.666666 - 16.4) / (10 * 0.01) days after epoch.
	want := es.EpochJulian().AddSeconds(2.66666 * 86400)
	if d := math.Abs(DecayEstimate(es).Sub(want)); d > 1 {
		t.Errorf("DecayEstimate off by %.1f s", d)
	}

	if !Decayed(es, want.AddSeconds(60)) || Decayed(es, want.AddSeconds(-60)) {
		t.Error("Decayed does not switch at the decay estimate")
	}

	stable := mustParse(t, "GEO", geoLine1, geoLine2)
	if Decayed(stable, stable.EpochJulian().AddSeconds(365*86400)) {
		t.Error("slowly decaying GEO reported decayed after a year")
	}
}

func TestNeverRises(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
		obs          geo.Geodetic
		want         bool
	}{
		{"equatorial from Tartu", equatorialLine1, equatorialLine2, tartu, true},
		{"equatorial from equator", equatorialLine1, equatorialLine2, geo.Geodetic{LatDeg: 0, LonDeg: 10}, false},
		{"equatorial from 25S", equatorialLine1, equatorialLine2, geo.Geodetic{LatDeg: -25, LonDeg: 10}, false},
		{"polar from Tartu", estcubeLine1, estcubeLine2, tartu, false},
		{"polar from the pole", estcubeLine1, estcubeLine2, geo.Geodetic{LatDeg: 90}, false},
	}
	for _, tt := range tests {
		es := mustParse(t, tt.name, tt.line1, tt.line2)
		if got := NeverRises(es, tt.obs); got != tt.want {
			t.Errorf("NeverRises(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOrbitNumber(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
		atEpoch      uint64
	}{
		// Mean anomaly plus argument of perigee passes 360° in both sets.
		{"ESTCUBE 1", estcubeLine1, estcubeLine2, 10197},
		{"GRIFEX", grifexLine1, grifexLine2, 3189},
	}
	for _, tt := range tests {
		es := mustParse(t, tt.name, tt.line1, tt.line2)
		if got := OrbitNumber(es, es.EpochJulian()); got != tt.atEpoch {
			t.Errorf("%s: OrbitNumber at epoch = %d, want %d", tt.name, got, tt.atEpoch)
		}

		perDay := OrbitNumber(es, es.EpochJulian().AddSeconds(86400)) - OrbitNumber(es, es.EpochJulian())
		if want := math.Floor(es.MeanMotion); float64(perDay) < want || float64(perDay) > want+1 {
			t.Errorf("%s: %d orbits per day, want %v or %v", tt.name, perDay, want, want+1)
		}

		prev := OrbitNumber(es, es.EpochJulian())
		for i := 1; i <= 288; i++ {
			cur := OrbitNumber(es, es.EpochJulian().AddSeconds(float64(i)*600))
			if cur < prev {
				t.Fatalf("%s: orbit number decreased from %d to %d", tt.name, prev, cur)
			}
			prev = cur
		}
	}
}
