package mie

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polystyrene488() Optics {
	return Optics{WavelengthNM: 488, ParticleIndex: complex(1.59, 0), MediumIndex: 1.33}
}

func vesicle(wavelength float64) Optics {
	return Optics{WavelengthNM: wavelength, ParticleIndex: complex(1.40, 0), MediumIndex: 1.33}
}

func TestComputeBaseline(t *testing.T) {
	t.Parallel()

	first, err := Compute(100, vesicle(488))
	require.NoError(t, err)
	second, err := Compute(100, vesicle(488))
	require.NoError(t, err)

	// Re-running must reproduce the same pair exactly.
	assert.Equal(t, first.Qsca, second.Qsca)
	assert.Equal(t, first.G, second.G)

	assert.InDelta(t, math.Pi*100/488, first.X, 1e-12)
	// Reference values from an independent evaluation of the same series
	// and cone quadrature.
	assert.InEpsilon(t, 4.7947740957808723e-4, first.Qsca, 1e-9)
	assert.InEpsilon(t, 0.06869283621960501, first.G, 1e-9)
	assert.InEpsilon(t, 0.11068018338155303, first.Forward, 1e-9)
	assert.InEpsilon(t, 0.7437837713754663, first.Side, 1e-9)
	assert.InEpsilon(t, 6.015894727543384e-4, first.Qback, 1e-9)
	assert.InEpsilon(t, first.Qext, first.Qsca, 1e-9)
}

func TestExtinctionEqualsScatteringForRealIndex(t *testing.T) {
	t.Parallel()

	for _, optics := range []Optics{polystyrene488(), vesicle(405), vesicle(640)} {
		for _, d := range []float64{20, 100, 250, 500, 1000, 3000} {
			r, err := Compute(d, optics)
			require.NoError(t, err)
			assert.InEpsilon(t, r.Qsca, r.Qext, 1e-9, "d=%g %s", d, optics)
		}
	}
}

func TestAbsorbingParticleExtinguishesMore(t *testing.T) {
	optics := Optics{WavelengthNM: 488, ParticleIndex: complex(1.59, 0.05), MediumIndex: 1.33}
	r, err := Compute(300, optics)
	require.NoError(t, err)
	assert.Greater(t, r.Qext, r.Qsca)
}

func TestResultBounds(t *testing.T) {
	t.Parallel()

	optics := []Optics{
		polystyrene488(),
		vesicle(405),
		{WavelengthNM: 561, ParticleIndex: complex(1.45, 0.01), MediumIndex: 1.33},
	}
	for _, o := range optics {
		for d := 10.0; d <= 2000; d += 37 {
			r, err := Compute(d, o)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, r.Qext, 0.0)
			assert.GreaterOrEqual(t, r.Qsca, 0.0)
			assert.GreaterOrEqual(t, r.Qback, 0.0)
			assert.GreaterOrEqual(t, r.G, -1.0)
			assert.LessOrEqual(t, r.G, 1.0)
			assert.Positive(t, r.Forward)
			assert.Positive(t, r.Side)
			assert.Less(t, r.Forward+r.Side, r.Csca())
		}
	}
}

func TestSmallParticleForwardScatterIncreases(t *testing.T) {
	t.Parallel()

	var prev float64
	for d := 20.0; d <= 150; d += 5 {
		r, err := Compute(d, vesicle(488))
		require.NoError(t, err)
		assert.Greater(t, r.Forward, prev, "d=%g", d)
		prev = r.Forward
	}
}

func TestShorterWavelengthScattersMore(t *testing.T) {
	t.Parallel()

	wavelengths := []float64{405, 488, 561, 640}
	forward := make([]float64, len(wavelengths))
	for i, wl := range wavelengths {
		r, err := Compute(50, vesicle(wl))
		require.NoError(t, err)
		forward[i] = r.Forward
	}
	for i := 1; i < len(forward); i++ {
		assert.Greater(t, forward[i-1], forward[i], "%gnm vs %gnm", wavelengths[i-1], wavelengths[i])
	}
}

func TestComputeBatchMatchesScalar(t *testing.T) {
	t.Parallel()

	diameters := []float64{30, 88.5, 150, 400, 1234, 2500, 30}
	optics := polystyrene488()

	batch, err := ComputeBatch(diameters, optics)
	require.NoError(t, err)
	require.Len(t, batch, len(diameters))

	for i, d := range diameters {
		scalar, err := Compute(d, optics)
		require.NoError(t, err)
		if diff := cmp.Diff(scalar, batch[i]); diff != "" {
			t.Errorf("element %d (d=%g) differs (-scalar +batch):\n%s", i, d, diff)
		}
	}
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		name     string
		diameter float64
		optics   Optics
		param    string
	}{
		{"zero diameter", 0, vesicle(488), "diameter_nm"},
		{"negative diameter", -5, vesicle(488), "diameter_nm"},
		{"NaN diameter", math.NaN(), vesicle(488), "diameter_nm"},
		{"zero wavelength", 100, vesicle(0), "wavelength_nm"},
		{"negative wavelength", 100, vesicle(-488), "wavelength_nm"},
		{"zero medium", 100, Optics{WavelengthNM: 488, ParticleIndex: 1.4}, "medium_index"},
		{"negative absorption", 100, Optics{WavelengthNM: 488, ParticleIndex: complex(1.4, -0.1), MediumIndex: 1.33}, "particle_index_imag"},
		{"inverted cone", 100, Optics{WavelengthNM: 488, ParticleIndex: 1.4, MediumIndex: 1.33,
			Geometry: Geometry{ForwardMinDeg: 20, ForwardMaxDeg: 10, SideMinDeg: 80, SideMaxDeg: 100}}, "forward cone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.diameter, tt.optics)
			var ipe *InvalidParameterError
			require.True(t, errors.As(err, &ipe), "got %v", err)
			assert.Equal(t, tt.param, ipe.Param)
		})
	}

	_, err := ComputeBatch([]float64{10, 20, -1}, vesicle(488))
	var ipe *InvalidParameterError
	require.True(t, errors.As(err, &ipe))
	assert.Contains(t, err.Error(), "diameter 2")
}

func TestFullSphereConeMatchesScatteringCrossSection(t *testing.T) {
	t.Parallel()

	o := polystyrene488()
	for _, d := range []float64{60, 300, 900} {
		r, err := Compute(d, o)
		require.NoError(t, err)

		s := newSeries(o.SizeParameter(d), o.RelativeIndex())
		total := coneCrossSection(s, o.Wavenumber(), 0, 180)
		assert.InEpsilon(t, r.Csca(), total, 1e-5, "d=%g", d)
	}
}

func TestGeometryZeroValueIsDefault(t *testing.T) {
	o := vesicle(488)
	explicit := o
	explicit.Geometry = DefaultGeometry()

	a, err := Compute(200, o)
	require.NoError(t, err)
	b, err := Compute(200, explicit)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	wide := o
	wide.Geometry = Geometry{ForwardMinDeg: 1, ForwardMaxDeg: 30, SideMinDeg: 75, SideMaxDeg: 105}
	c, err := Compute(200, wide)
	require.NoError(t, err)
	assert.Greater(t, c.Forward, a.Forward)
	assert.Equal(t, a.Side, c.Side)
}

func TestOpticsJSONRoundTrip(t *testing.T) {
	in := Optics{WavelengthNM: 405, ParticleIndex: complex(1.59, 0.002), MediumIndex: 1.33}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"wavelength_nm":405,"particle_index_real":1.59,"particle_index_imag":0.002,"medium_index":1.33}`, string(raw))

	var out Optics
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	in.Geometry = DefaultGeometry()
	raw, err = json.Marshal(in)
	require.NoError(t, err)
	out = Optics{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}
