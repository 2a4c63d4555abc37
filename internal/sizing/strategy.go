package sizing

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/dualwave"
	"github.com/banshee-data/particle.sizing/internal/fcs"
	"github.com/banshee-data/particle.sizing/internal/inverse"
	"github.com/banshee-data/particle.sizing/internal/mie"
)

// ErrMissingChannel is returned when a strategy needs a channel role that the
// resolved columns do not provide.
var ErrMissingChannel = errors.New("sizing: required channel not resolved")

// Role names a scatter channel role.
type Role int

const (
	RoleForward Role = iota
	RoleSide
)

func (r Role) String() string {
	if r == RoleSide {
		return "side"
	}
	return "forward"
}

func (r Role) column(cols fcs.RoleColumns) int {
	if r == RoleSide {
		return cols.Side
	}
	return cols.Forward
}

// Strategy sizes individual events. Implementations are read-only after
// construction and shared between batch workers.
type Strategy interface {
	// Name identifies the strategy in results.
	Name() string
	check(cols fcs.RoleColumns) error
	size(event int, row []float64, cols fcs.RoleColumns) Estimate
}

// CalibrationStrategy sizes events with a fitted bead calibration curve.
type CalibrationStrategy struct {
	Curve *calibration.Curve
	Role  Role // channel the curve was fitted on
}

// Name implements Strategy.
func (s CalibrationStrategy) Name() string {
	if s.Curve == nil {
		return "calibration"
	}
	return "calibration:" + s.Curve.ID
}

func (s CalibrationStrategy) check(cols fcs.RoleColumns) error {
	if s.Curve == nil {
		return errors.New("sizing: calibration strategy has no curve")
	}
	if s.Role.column(cols) < 0 {
		return fmt.Errorf("%w: %s scatter for calibration %s", ErrMissingChannel, s.Role, s.Curve.ID)
	}
	return nil
}

func (s CalibrationStrategy) size(event int, row []float64, cols fcs.RoleColumns) Estimate {
	v := row[s.Role.column(cols)]
	if !physical(v) {
		return Estimate{Event: event, Status: StatusNonPhysical}
	}
	d, ok := s.Curve.Predict(v)
	if !ok {
		return Estimate{Event: event, DiameterNM: d, Candidates: []float64{d}, Status: StatusOutOfRange}
	}
	return Estimate{Event: event, DiameterNM: d, Candidates: []float64{d}, Status: StatusValid}
}

// InversionStrategy sizes events by inverting the forward model. Measured
// scatter is divided by the instrument gain before inversion. When several
// diameters reproduce the measurement and a Disambiguator is set, the ratio
// of the primary forward channel to the ratio channel picks one.
type InversionStrategy struct {
	Solver        *inverse.Solver
	Disambiguator *dualwave.Disambiguator // optional
	Bounds        inverse.Bounds
	Gain          calibration.Gain
}

// Name implements Strategy.
func (s InversionStrategy) Name() string {
	if s.Disambiguator != nil {
		return "inversion+ratio"
	}
	return "inversion"
}

func (s InversionStrategy) role() Role {
	if s.Solver != nil && s.Solver.Signal == mie.SignalSide {
		return RoleSide
	}
	return RoleForward
}

func (s InversionStrategy) check(cols fcs.RoleColumns) error {
	if s.Solver == nil || s.Solver.Table == nil {
		return errors.New("sizing: inversion strategy has no solver table")
	}
	if !(s.Gain.Factor > 0) {
		return fmt.Errorf("sizing: inversion gain %g is not positive", s.Gain.Factor)
	}
	if s.role().column(cols) < 0 {
		return fmt.Errorf("%w: %s scatter for inversion", ErrMissingChannel, s.role())
	}
	if s.Disambiguator != nil && (cols.Forward < 0 || !cols.HasRatio()) {
		return fmt.Errorf("%w: ratio channel for two-wavelength disambiguation", ErrMissingChannel)
	}
	return nil
}

func (s InversionStrategy) size(event int, row []float64, cols fcs.RoleColumns) Estimate {
	v := row[s.role().column(cols)]
	if !physical(v) {
		return Estimate{Event: event, Status: StatusNonPhysical}
	}
	model, err := s.Gain.Apply(v)
	if err != nil {
		return Estimate{Event: event, Status: StatusFailed}
	}
	out, err := s.Solver.Solve(model, s.Bounds)
	if err != nil {
		return Estimate{Event: event, Status: StatusFailed}
	}

	switch out.Kind {
	case inverse.NoSolution:
		return Estimate{Event: event, Status: StatusNoSolution}
	case inverse.SingleSolution:
		return Estimate{Event: event, Candidates: out.Roots, DiameterNM: out.Roots[0], Status: StatusValid}
	}

	if s.Disambiguator == nil {
		return Estimate{Event: event, Candidates: out.Roots, Status: StatusAmbiguous}
	}
	a, b := row[cols.Forward], row[cols.Ratio]
	if !physical(a) || !physical(b) {
		return Estimate{Event: event, Candidates: out.Roots, Status: StatusAmbiguous}
	}
	d, err := s.Disambiguator.Disambiguate(out.Roots, a/b)
	if err != nil {
		return Estimate{Event: event, Candidates: out.Roots, Status: StatusAmbiguous}
	}
	return Estimate{Event: event, Candidates: out.Roots, DiameterNM: d, Status: StatusValid}
}

func physical(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
