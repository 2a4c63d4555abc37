// Package dualwave resolves ambiguous inversions with a second laser line.
//
// The forward-scatter ratio between two wavelengths varies monotonically with
// diameter over a wider range than either single-wavelength curve, so the
// ratio measured on two channels picks one of several candidate roots. The
// instrument's relative detector sensitivity is not part of the physics and
// enters only as an explicit DetectorCorrection.
package dualwave

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/particle.sizing/internal/mie"
)

// ErrNoCandidates is returned when Disambiguate is given nothing to choose.
var ErrNoCandidates = errors.New("dualwave: no candidate diameters")

// DetectorCorrection is the empirically measured sensitivity ratio between
// the two forward detectors. Measured ratios are multiplied by Factor before
// comparison with theory. Source records where the factor came from, such as
// a bead run ID.
type DetectorCorrection struct {
	Factor float64 `json:"factor"`
	Source string  `json:"source"`
}

// Validate requires a positive finite factor and a non-empty source.
func (c DetectorCorrection) Validate() error {
	if err := mie.RequirePositive("detector correction factor", c.Factor); err != nil {
		return err
	}
	if c.Source == "" {
		return fmt.Errorf("dualwave: detector correction factor %g has no source", c.Factor)
	}
	return nil
}

// Disambiguator compares measured λa/λb forward-scatter ratios with theory.
type Disambiguator struct {
	a, b       mie.Optics
	correction DetectorCorrection
	tableA     *mie.Table
	tableB     *mie.Table
}

// New validates both optics and the correction.
func New(a, b mie.Optics, correction DetectorCorrection) (*Disambiguator, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("primary optics: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("secondary optics: %w", err)
	}
	if a.WavelengthNM == b.WavelengthNM {
		return nil, fmt.Errorf("dualwave: both optics use %gnm", a.WavelengthNM)
	}
	if err := correction.Validate(); err != nil {
		return nil, err
	}
	return &Disambiguator{a: a, b: b, correction: correction}, nil
}

// WithTables returns a copy that reads theoretical values from prebuilt
// tables where the diameter is on their grid, falling back to direct
// evaluation elsewhere. The tables must have been built for the same optics.
func (d *Disambiguator) WithTables(a, b *mie.Table) (*Disambiguator, error) {
	if a == nil || b == nil {
		return nil, errors.New("dualwave: nil table")
	}
	if a.Optics().WavelengthNM != d.a.WavelengthNM || b.Optics().WavelengthNM != d.b.WavelengthNM {
		return nil, fmt.Errorf("dualwave: tables built for %gnm/%gnm, want %gnm/%gnm",
			a.Optics().WavelengthNM, b.Optics().WavelengthNM, d.a.WavelengthNM, d.b.WavelengthNM)
	}
	c := *d
	c.tableA, c.tableB = a, b
	return &c, nil
}

// Correction returns the detector correction in use.
func (d *Disambiguator) Correction() DetectorCorrection { return d.correction }

// TheoreticalRatio is Forward(λa)/Forward(λb) at the given diameter, from
// two independent forward-model evaluations.
func (d *Disambiguator) TheoreticalRatio(diameterNM float64) (float64, error) {
	fa, err := forward(d.tableA, d.a, diameterNM)
	if err != nil {
		return 0, err
	}
	fb, err := forward(d.tableB, d.b, diameterNM)
	if err != nil {
		return 0, err
	}
	if fb == 0 {
		return 0, &mie.InvalidParameterError{Param: "diameter_nm", Value: diameterNM, Reason: "zero forward scatter at second wavelength"}
	}
	return fa / fb, nil
}

// RatioCurve evaluates TheoreticalRatio over a set of diameters.
func (d *Disambiguator) RatioCurve(diameters []float64) ([]float64, error) {
	out := make([]float64, len(diameters))
	for i, dm := range diameters {
		r, err := d.TheoreticalRatio(dm)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Disambiguate returns the candidate whose theoretical ratio is closest, in
// log space, to the corrected measured ratio. Ties keep the earlier
// candidate.
func (d *Disambiguator) Disambiguate(candidates []float64, measuredRatio float64) (float64, error) {
	if len(candidates) == 0 {
		return 0, ErrNoCandidates
	}
	if err := mie.RequirePositive("measured ratio", measuredRatio); err != nil {
		return 0, err
	}
	target := math.Log(measuredRatio * d.correction.Factor)

	best, bestDist := 0.0, math.Inf(1)
	for _, c := range candidates {
		r, err := d.TheoreticalRatio(c)
		if err != nil {
			return 0, fmt.Errorf("candidate %g nm: %w", c, err)
		}
		if dist := math.Abs(math.Log(r) - target); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, nil
}

func forward(table *mie.Table, optics mie.Optics, diameterNM float64) (float64, error) {
	if table != nil {
		if v, ok := table.Forward(diameterNM); ok {
			return v, nil
		}
	}
	r, err := mie.Compute(diameterNM, optics)
	if err != nil {
		return 0, err
	}
	return r.Forward, nil
}
