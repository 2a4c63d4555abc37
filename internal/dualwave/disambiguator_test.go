package dualwave

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle.sizing/internal/inverse"
	"github.com/banshee-data/particle.sizing/internal/mie"
)

func optics(wavelength float64) mie.Optics {
	return mie.Optics{WavelengthNM: wavelength, ParticleIndex: complex(1.59, 0), MediumIndex: 1.33}
}

var testCorrection = DetectorCorrection{Factor: 1.25, Source: "bead run 2026-10-01"}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name       string
		a, b       mie.Optics
		correction DetectorCorrection
	}{
		{"bad primary", optics(0), optics(405), testCorrection},
		{"bad secondary", optics(488), optics(-1), testCorrection},
		{"same wavelength", optics(488), optics(488), testCorrection},
		{"zero factor", optics(488), optics(405), DetectorCorrection{Source: "x"}},
		{"NaN factor", optics(488), optics(405), DetectorCorrection{Factor: math.NaN(), Source: "x"}},
		{"missing source", optics(488), optics(405), DetectorCorrection{Factor: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.a, tt.b, tt.correction)
			assert.Error(t, err)
		})
	}

	d, err := New(optics(488), optics(405), testCorrection)
	require.NoError(t, err)
	assert.Equal(t, testCorrection, d.Correction())
}

func TestTheoreticalRatioIndependentEvaluations(t *testing.T) {
	d, err := New(optics(405), optics(488), testCorrection)
	require.NoError(t, err)

	ra, err := mie.Compute(150, optics(405))
	require.NoError(t, err)
	rb, err := mie.Compute(150, optics(488))
	require.NoError(t, err)

	got, err := d.TheoreticalRatio(150)
	require.NoError(t, err)
	assert.Equal(t, ra.Forward/rb.Forward, got)
	// Shorter wavelength scatters more for small particles.
	assert.Greater(t, got, 1.0)

	_, err = d.TheoreticalRatio(-1)
	var ipe *mie.InvalidParameterError
	assert.True(t, errors.As(err, &ipe))

	curve, err := d.RatioCurve([]float64{50, 150})
	require.NoError(t, err)
	assert.Equal(t, got, curve[1])
}

func TestDisambiguateErrors(t *testing.T) {
	d, err := New(optics(405), optics(488), testCorrection)
	require.NoError(t, err)

	_, err = d.Disambiguate(nil, 1.2)
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = d.Disambiguate([]float64{100, 200}, 0)
	var ipe *mie.InvalidParameterError
	assert.True(t, errors.As(err, &ipe))
}

func TestDisambiguateAppliesCorrection(t *testing.T) {
	d, err := New(optics(405), optics(488), testCorrection)
	require.NoError(t, err)

	candidates := []float64{80, 400}
	want, err := d.TheoreticalRatio(400)
	require.NoError(t, err)

	// The instrument reports the ratio before correction.
	got, err := d.Disambiguate(candidates, want/testCorrection.Factor)
	require.NoError(t, err)
	assert.Equal(t, 400.0, got)
}

// findHump returns a region [lo, hi] of values holding a single strict
// interior maximum at peak with the curve falling on both sides.
func findHump(values []float64) (lo, peak, hi int, ok bool) {
	for k := 1; k+1 < len(values); k++ {
		if !(values[k] > values[k-1] && values[k] > values[k+1]) {
			continue
		}
		lo, hi = k-1, k+1
		for lo > 0 && values[lo-1] < values[lo] {
			lo--
		}
		for hi+1 < len(values) && values[hi+1] < values[hi] {
			hi++
		}
		return lo, k, hi, true
	}
	return 0, 0, 0, false
}

func TestAmbiguousEventResolvedByRatio(t *testing.T) {
	t.Parallel()

	grid := mie.Grid{MinNM: 100, MaxNM: 3000, StepNM: 5}
	tableA, err := mie.BuildTable(context.Background(), optics(488), grid)
	require.NoError(t, err)
	tableB, err := mie.BuildTable(context.Background(), optics(405), grid)
	require.NoError(t, err)

	base, err := New(optics(488), optics(405), testCorrection)
	require.NoError(t, err)
	d, err := base.WithTables(tableA, tableB)
	require.NoError(t, err)

	for _, signal := range []mie.Signal{mie.SignalSide, mie.SignalForward} {
		values := tableA.Signal(signal)
		lo, peak, hi, ok := findHump(values)
		if !ok {
			continue
		}
		ds := tableA.Diameters()
		measured := (values[peak] + math.Max(values[lo], values[hi])) / 2

		out, err := inverse.NewSolver(tableA, signal, inverse.RefineExact).
			Solve(measured, inverse.Bounds{MinNM: ds[lo], MaxNM: ds[hi]})
		require.NoError(t, err)
		require.Equal(t, inverse.MultipleSolutions, out.Kind)
		require.Len(t, out.Roots, 2)

		r0, err := d.TheoreticalRatio(out.Roots[0])
		require.NoError(t, err)
		r1, err := d.TheoreticalRatio(out.Roots[1])
		require.NoError(t, err)
		require.NotEqual(t, r0, r1)

		chosen, err := d.Disambiguate(out.Roots, r0/testCorrection.Factor)
		require.NoError(t, err)
		assert.Equal(t, out.Roots[0], chosen)

		chosen, err = d.Disambiguate(out.Roots, r1/testCorrection.Factor)
		require.NoError(t, err)
		assert.Equal(t, out.Roots[1], chosen)
		return
	}
	t.Fatal("no non-monotonic region found")
}

func TestWithTablesRejectsMismatch(t *testing.T) {
	grid := mie.Grid{MinNM: 50, MaxNM: 100, StepNM: 5}
	t488, err := mie.BuildTable(context.Background(), optics(488), grid)
	require.NoError(t, err)
	t405, err := mie.BuildTable(context.Background(), optics(405), grid)
	require.NoError(t, err)

	d, err := New(optics(488), optics(405), testCorrection)
	require.NoError(t, err)

	_, err = d.WithTables(t405, t488)
	assert.Error(t, err)
	_, err = d.WithTables(nil, t405)
	assert.Error(t, err)

	withTables, err := d.WithTables(t488, t405)
	require.NoError(t, err)
	// Off-grid diameters fall back to direct evaluation.
	direct, err := d.TheoreticalRatio(500)
	require.NoError(t, err)
	viaTables, err := withTables.TheoreticalRatio(500)
	require.NoError(t, err)
	assert.Equal(t, direct, viaTables)
}
