package mie

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Geometry is the collection geometry of the two scatter detectors, as polar
// angle ranges in degrees measured from the incident beam. The zero value
// selects DefaultGeometry.
type Geometry struct {
	ForwardMinDeg float64 `json:"forward_min_deg"`
	ForwardMaxDeg float64 `json:"forward_max_deg"`
	SideMinDeg    float64 `json:"side_min_deg"`
	SideMaxDeg    float64 `json:"side_max_deg"`
}

// DefaultGeometry is the collection geometry of proxy model cone-fraction/v1.
func DefaultGeometry() Geometry {
	return Geometry{ForwardMinDeg: 1, ForwardMaxDeg: 15, SideMinDeg: 75, SideMaxDeg: 105}
}

// Resolved returns g, or DefaultGeometry when g is the zero value.
func (g Geometry) Resolved() Geometry {
	if g == (Geometry{}) {
		return DefaultGeometry()
	}
	return g
}

func (g Geometry) validate() error {
	check := func(name string, lo, hi float64) error {
		if lo < 0 || hi > 180 || !(lo < hi) {
			return &InvalidParameterError{Param: name + " cone", Value: hi - lo, Reason: fmt.Sprintf("angles [%g, %g] must satisfy 0 <= min < max <= 180", lo, hi)}
		}
		return nil
	}
	if err := check("forward", g.ForwardMinDeg, g.ForwardMaxDeg); err != nil {
		return err
	}
	return check("side", g.SideMinDeg, g.SideMaxDeg)
}

// Optics is the optical configuration of one laser line. It is an immutable
// value and is safe to share between goroutines.
type Optics struct {
	WavelengthNM  float64    // vacuum wavelength
	ParticleIndex complex128 // n + ik, k >= 0 for absorbing particles
	MediumIndex   float64
	Geometry      Geometry
}

// Validate checks the configuration. Non-positive wavelength or medium
// index, a non-positive real particle index, a negative absorption index and
// malformed collection cones are rejected with *InvalidParameterError.
func (o Optics) Validate() error {
	if err := RequirePositive("wavelength_nm", o.WavelengthNM); err != nil {
		return err
	}
	if err := RequirePositive("medium_index", o.MediumIndex); err != nil {
		return err
	}
	if err := RequirePositive("particle_index", real(o.ParticleIndex)); err != nil {
		return err
	}
	if k := imag(o.ParticleIndex); k < 0 || math.IsNaN(k) {
		return &InvalidParameterError{Param: "particle_index_imag", Value: k, Reason: "absorption index must be >= 0"}
	}
	return o.Geometry.Resolved().validate()
}

// RelativeIndex is the particle index divided by the medium index.
func (o Optics) RelativeIndex() complex128 {
	return o.ParticleIndex / complex(o.MediumIndex, 0)
}

// SizeParameter is π·d/λ.
func (o Optics) SizeParameter(diameterNM float64) float64 {
	return math.Pi * diameterNM / o.WavelengthNM
}

// Wavenumber is 2π/λ in nm⁻¹.
func (o Optics) Wavenumber() float64 {
	return 2 * math.Pi / o.WavelengthNM
}

// normalized returns o with the geometry resolved, so that two configurations
// describing the same instrument compare equal.
func (o Optics) normalized() Optics {
	o.Geometry = o.Geometry.Resolved()
	return o
}

func (o Optics) String() string {
	m := o.RelativeIndex()
	return fmt.Sprintf("λ=%gnm n_p=%g%+gi n_m=%g (m=%.4f, |m|=%.4f)",
		o.WavelengthNM, real(o.ParticleIndex), imag(o.ParticleIndex), o.MediumIndex, real(m), cmplx.Abs(m))
}
