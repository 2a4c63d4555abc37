package mie

import (
	"fmt"
	"math"
)

// Result is the forward-model output for one diameter.
//
// Forward and Side are the detector proxies of version.ProxyModel: the
// scattering cross section πr²·Qsca weighted by the fraction of scattered
// power that falls into each collection cone (nm²).
type Result struct {
	DiameterNM float64 `json:"diameter_nm"`
	X          float64 `json:"x"`
	Qext       float64 `json:"qext"`
	Qsca       float64 `json:"qsca"`
	Qback      float64 `json:"qback"`
	G          float64 `json:"g"`
	Forward    float64 `json:"forward"`
	Side       float64 `json:"side"`
}

// Csca is the total scattering cross section πr²·Qsca in nm².
func (r Result) Csca() float64 {
	rad := r.DiameterNM / 2
	return math.Pi * rad * rad * r.Qsca
}

// Compute evaluates the Mie series for a sphere of the given diameter.
func Compute(diameterNM float64, optics Optics) (Result, error) {
	if err := optics.Validate(); err != nil {
		return Result{}, err
	}
	if err := RequirePositive("diameter_nm", diameterNM); err != nil {
		return Result{}, err
	}
	return compute(diameterNM, optics.normalized()), nil
}

// ComputeBatch evaluates every diameter with the same code path as Compute,
// so element i is identical to Compute(diameters[i], optics). The whole
// batch is rejected if any diameter is invalid.
func ComputeBatch(diameters []float64, optics Optics) ([]Result, error) {
	if err := optics.Validate(); err != nil {
		return nil, err
	}
	for i, d := range diameters {
		if err := RequirePositive("diameter_nm", d); err != nil {
			return nil, fmt.Errorf("diameter %d: %w", i, err)
		}
	}
	o := optics.normalized()
	out := make([]Result, len(diameters))
	for i, d := range diameters {
		out[i] = compute(d, o)
	}
	return out, nil
}

// compute assumes validated inputs and a resolved geometry.
func compute(d float64, o Optics) Result {
	x := o.SizeParameter(d)
	s := newSeries(x, o.RelativeIndex())
	qext, qsca, qback, g := s.efficiencies()

	k := o.Wavenumber()
	geo := o.Geometry
	return Result{
		DiameterNM: d,
		X:          x,
		Qext:       qext,
		Qsca:       qsca,
		Qback:      qback,
		G:          g,
		Forward:    coneCrossSection(s, k, geo.ForwardMinDeg, geo.ForwardMaxDeg),
		Side:       coneCrossSection(s, k, geo.SideMinDeg, geo.SideMaxDeg),
	}
}
