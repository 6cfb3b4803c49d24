package tracker

import (
	"encoding/json"
	"time"

	"github.com/star/satpredict/internal/geo"
	"github.com/star/satpredict/internal/timebase"
)

// Snapshot is the complete result of one query. Every field describes the
// same instant. AOS and LOS are nil when no crossing lies in the search
// window; their presence is independent.
type Snapshot struct {
	At        time.Time          `json:"at"`
	JulianDay timebase.JulianDay `json:"julian_day"`

	AOS *time.Time `json:"aos"`
	LOS *time.Time `json:"los"`

	AzimuthDeg   float64      `json:"azimuth_deg"`   // [0, 360)
	ElevationDeg float64      `json:"elevation_deg"` // [-90, 90]
	RangeKm      float64      `json:"range_km"`
	RangeRateKmS float64      `json:"range_rate_km_s"` // positive when receding
	SubSatellite geo.Geodetic `json:"sub_satellite"`
	VelocityKmS  float64      `json:"velocity_km_s"`
	OrbitNumber  uint64       `json:"orbit_number"`
}

// SubSatellitePoint returns the point on the ellipsoid below the satellite.
// Use geo.As to obtain it in another representation.
func (s Snapshot) SubSatellitePoint() geo.Geodetic {
	return s.SubSatellite
}

// AltitudeKm returns the satellite height above the ellipsoid.
func (s Snapshot) AltitudeKm() float64 {
	return s.SubSatellite.AltitudeKm()
}

// MarshalJSON adds altitude_km beside the sub-satellite point, whose own
// altitude stays in metres.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type fields Snapshot
	return json.Marshal(struct {
		fields
		AltitudeKm float64 `json:"altitude_km"`
	}{fields(s), s.AltitudeKm()})
}

// clone copies s so that no pointer is shared with the stored snapshot.
func (s Snapshot) clone() Snapshot {
	if s.AOS != nil {
		aos := *s.AOS
		s.AOS = &aos
	}
	if s.LOS != nil {
		los := *s.LOS
		s.LOS = &los
	}
	return s
}
