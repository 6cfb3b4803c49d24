package propagation

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/satpredict/internal/timebase"
	"github.com/star/satpredict/internal/tle"
	"github.com/star/satpredict/internal/transform"
)

// model wraps an initialised go-satellite record for one element set.
//
// satellite.Propagate takes the record by value, so SGP4 error codes raised
// during propagation never reach the caller. Failures are detected from the
// output instead: NaN/Inf or a radius outside [transform.MinRadiusKm,
// maxRadiusKm].
type model struct {
	sat         satellite.Satellite
	catalog     int
	maxRadiusKm float64
}

// apogeeMargin scales the element set's apogee radius into the ceiling a
// propagated position may reach.
const apogeeMargin = 1.25

// newModel initialises the SGP4/SDP4 record. The element set must already be
// validated: go-satellite calls log.Fatal on lines it cannot parse.
func newModel(es *tle.ElementSet, gravity satellite.Gravity) (*model, error) {
	sat := satellite.TLEToSat(es.Line1, es.Line2, gravity)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for catalog %d: code=%d %s",
			ErrPropagatorFailure, es.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &model{
		sat:         sat,
		catalog:     es.CatalogNumber,
		maxRadiusKm: es.SemiMajorAxisKm() * (1 + es.Eccentricity) * apogeeMargin,
	}, nil
}

// temeAt returns the TEME state at t. go-satellite resolves whole seconds;
// the sub-second remainder is carried by linear extrapolation.
func (m *model) temeAt(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()

	pos, vel := satellite.Propagate(m.sat,
		whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	for _, v := range []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return transform.PositionTEME{}, fmt.Errorf("%w: catalog %d: output is NaN/Inf", ErrPropagatorFailure, m.catalog)
		}
	}

	return transform.PositionTEME{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		VX: vel.X, VY: vel.Y, VZ: vel.Z,
	}.Advance(frac), nil
}

// at returns the TEME and Earth-fixed states at jd, rejecting positions
// outside the radius band of this orbit.
func (m *model) at(jd timebase.JulianDay) (transform.PositionTEME, transform.PositionECEF, error) {
	teme, err := m.temeAt(jd.Time())
	if err != nil {
		return transform.PositionTEME{}, transform.PositionECEF{}, err
	}
	ecef := transform.TEMEToECEF(teme, transform.GMST(jd))
	if !transform.ValidateECEF(ecef, m.maxRadiusKm) {
		return transform.PositionTEME{}, transform.PositionECEF{}, fmt.Errorf(
			"%w: catalog %d: unreasonable position magnitude %.1f km (allowed %.0f-%.0f km)",
			ErrPropagatorFailure, m.catalog, teme.Radius(), transform.MinRadiusKm, m.maxRadiusKm)
	}
	return teme, ecef, nil
}
