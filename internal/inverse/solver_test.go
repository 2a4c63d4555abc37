package inverse

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle.sizing/internal/mie"
)

func vesicleOptics() mie.Optics {
	return mie.Optics{WavelengthNM: 488, ParticleIndex: complex(1.40, 0), MediumIndex: 1.33}
}

func polystyreneOptics() mie.Optics {
	return mie.Optics{WavelengthNM: 488, ParticleIndex: complex(1.59, 0), MediumIndex: 1.33}
}

func buildTable(t *testing.T, optics mie.Optics, grid mie.Grid) *mie.Table {
	t.Helper()
	table, err := mie.BuildTable(context.Background(), optics, grid)
	require.NoError(t, err)
	return table
}

// findHump locates the first interior strict local maximum of values and
// walks outwards while the curve keeps falling. Any measured value strictly
// between the hump top and the higher of the two ends crosses the curve
// exactly twice in [lo, hi].
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

func TestRoundTripMonotonicRegion(t *testing.T) {
	t.Parallel()

	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 200, StepNM: 1})
	for _, refine := range []Refine{RefineInterpolate, RefineExact} {
		solver := NewSolver(table, mie.SignalForward, refine)
		for _, d := range []float64{45.5, 87.3, 100, 133.7, 190.2} {
			r, err := mie.Compute(d, vesicleOptics())
			require.NoError(t, err)

			out, err := solver.Solve(r.Forward, Bounds{MinNM: 40, MaxNM: 200})
			require.NoError(t, err)
			got, ok := out.Diameter()
			require.True(t, ok, "d=%g refine=%d outcome=%s", d, refine, out)
			assert.InDelta(t, d, got, 0.5, "refine=%d", refine)
			if refine == RefineExact {
				assert.InDelta(t, d, got, 0.01)
			}
		}
	}
}

func TestSolveTwoCrossingsInNonMonotonicRegion(t *testing.T) {
	t.Parallel()

	grid := mie.Grid{MinNM: 100, MaxNM: 3000, StepNM: 5}
	candidates := []struct {
		optics mie.Optics
		signal mie.Signal
	}{
		{polystyreneOptics(), mie.SignalSide},
		{polystyreneOptics(), mie.SignalForward},
		{vesicleOptics(), mie.SignalSide},
	}

	for _, c := range candidates {
		table := buildTable(t, c.optics, grid)
		values := table.Signal(c.signal)
		lo, peak, hi, ok := findHump(values)
		if !ok {
			continue
		}

		ds := table.Diameters()
		measured := (values[peak] + math.Max(values[lo], values[hi])) / 2
		bounds := Bounds{MinNM: ds[lo], MaxNM: ds[hi]}

		for _, refine := range []Refine{RefineInterpolate, RefineExact} {
			out, err := NewSolver(table, c.signal, refine).Solve(measured, bounds)
			require.NoError(t, err)
			require.Equal(t, MultipleSolutions, out.Kind, "outcome %s", out)
			require.Len(t, out.Roots, 2)
			assert.Less(t, out.Roots[0], ds[peak])
			assert.Greater(t, out.Roots[1], ds[peak])

			_, single := out.Diameter()
			assert.False(t, single)
		}
		return
	}
	t.Fatal("no non-monotonic region found on any response curve")
}

func TestSolveNoSolution(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	fwd := table.Signal(mie.SignalForward)

	solver := NewSolver(table, mie.SignalForward, RefineInterpolate)
	out, err := solver.Solve(fwd[len(fwd)-1]*10, Bounds{})
	require.NoError(t, err)
	assert.Equal(t, NoSolution, out.Kind)
	assert.Empty(t, out.Roots)

	// Reachable on the full grid but not inside narrower bounds.
	out, err = solver.Solve(fwd[len(fwd)-1], Bounds{MinNM: 40, MaxNM: 60})
	require.NoError(t, err)
	assert.Equal(t, NoSolution, out.Kind)
}

func TestSolveExactGridHit(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	fwd := table.Signal(mie.SignalForward)

	out, err := NewSolver(table, mie.SignalForward, RefineInterpolate).Solve(fwd[60], Bounds{})
	require.NoError(t, err)
	d, ok := out.Diameter()
	require.True(t, ok)
	assert.Equal(t, table.Diameters()[60], d)
}

func TestSolveInvalidInput(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	solver := NewSolver(table, mie.SignalForward, RefineInterpolate)

	tests := []struct {
		name     string
		measured float64
		bounds   Bounds
	}{
		{"zero measured", 0, Bounds{}},
		{"negative measured", -3, Bounds{}},
		{"NaN measured", math.NaN(), Bounds{}},
		{"inverted bounds", 1, Bounds{MinNM: 100, MaxNM: 50}},
		{"bounds outside grid", 1, Bounds{MinNM: 500, MaxNM: 800}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := solver.Solve(tt.measured, tt.bounds)
			var ipe *mie.InvalidParameterError
			assert.True(t, errors.As(err, &ipe), "got %v", err)
		})
	}
}

func TestCustomOracleErrorPropagates(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	fwd := table.Signal(mie.SignalForward)
	boom := errors.New("oracle down")

	solver := &Solver{
		Table:  table,
		Signal: mie.SignalForward,
		Refine: RefineExact,
		Oracle: func(float64) (float64, error) { return 0, boom },
	}
	_, err := solver.Solve((fwd[10]+fwd[11])/2, Bounds{})
	assert.ErrorIs(t, err, boom)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "no-solution", newOutcome(nil).String())
	assert.Equal(t, "single[101.50]", newOutcome([]float64{101.5}).String())
	assert.Equal(t, "multiple[300.00, 450.25]", newOutcome([]float64{300, 450.25}).String())
}

func TestSolveBoundsOnAndOffGrid(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	fwd := table.Signal(mie.SignalForward)
	ds := table.Diameters()
	solver := NewSolver(table, mie.SignalForward, RefineInterpolate)

	for _, b := range []Bounds{
		{MinNM: ds[50], MaxNM: ds[70]},
		{MinNM: ds[50] + 0.5, MaxNM: ds[70] - 0.5},
		{MinNM: 10, MaxNM: ds[70]},
	} {
		out, err := solver.Solve(fwd[60], b)
		require.NoError(t, err, "bounds %+v", b)
		d, ok := out.Diameter()
		require.True(t, ok, "bounds %+v outcome %s", b, out)
		assert.Equal(t, ds[60], d)
	}

	// A root sitting on a bound is reported once.
	out, err := solver.Solve(fwd[50], Bounds{MinNM: ds[50], MaxNM: ds[70]})
	require.NoError(t, err)
	d, ok := out.Diameter()
	require.True(t, ok, "outcome %s", out)
	assert.Equal(t, ds[50], d)

	// Bounds narrower than one grid step still bracket by interpolation.
	mid := ds[60] + 0.5
	want, _ := table.Forward(mid)
	out, err = solver.Solve(want, Bounds{MinNM: ds[60] + 0.25, MaxNM: ds[60] + 0.75})
	require.NoError(t, err)
	d, ok = out.Diameter()
	require.True(t, ok, "outcome %s", out)
	assert.InDelta(t, mid, d, 1e-9)
}

func TestSolveAllocatesOnlyRoots(t *testing.T) {
	table := buildTable(t, vesicleOptics(), mie.Grid{MinNM: 40, MaxNM: 150, StepNM: 1})
	fwd := table.Signal(mie.SignalForward)
	solver := NewSolver(table, mie.SignalForward, RefineInterpolate)

	none := testing.AllocsPerRun(100, func() {
		_, _ = solver.Solve(fwd[len(fwd)-1]*10, Bounds{})
	})
	assert.Zero(t, none)

	one := testing.AllocsPerRun(100, func() {
		_, _ = solver.Solve(fwd[60]*1.0001, Bounds{MinNM: 45, MaxNM: 140})
	})
	assert.LessOrEqual(t, one, 1.0)
}

func BenchmarkSolve(b *testing.B) {
	table, err := mie.BuildTable(context.Background(), vesicleOptics(), mie.Grid{MinNM: 30, MaxNM: 1000, StepNM: 1})
	require.NoError(b, err)
	fwd := table.Signal(mie.SignalForward)
	solver := NewSolver(table, mie.SignalForward, RefineInterpolate)
	measured := fwd[len(fwd)/4]

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := solver.Solve(measured, Bounds{}); err != nil {
			b.Fatal(err)
		}
	}
}
