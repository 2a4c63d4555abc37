package inverse

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/particle.sizing/internal/mie"
)

// Refine selects how a bracketed crossing is narrowed to a root.
type Refine int

const (
	// RefineInterpolate takes the root of the linear interpolant between the
	// two bracketing grid points. It needs no forward-model evaluations and
	// is the default for batch sizing.
	RefineInterpolate Refine = iota
	// RefineExact runs Brent's method on the exact forward model.
	RefineExact
)

// DefaultToleranceNM is the root tolerance used by RefineExact.
const DefaultToleranceNM = 1e-3

// Bounds limits the diameters considered. The zero value means the full
// table grid.
type Bounds struct {
	MinNM float64 `json:"min_nm"`
	MaxNM float64 `json:"max_nm"`
}

// Oracle evaluates the forward proxy exactly at a diameter.
type Oracle func(diameterNM float64) (float64, error)

// Solver inverts one proxy signal of a lookup table. A Solver holds no
// mutable state and may be shared between goroutines.
type Solver struct {
	Table       *mie.Table
	Signal      mie.Signal
	Refine      Refine
	Oracle      Oracle  // used by RefineExact; nil means mie.Compute with the table optics
	ToleranceNM float64 // RefineExact tolerance; zero means DefaultToleranceNM
}

// NewSolver returns a solver for the given table and signal.
func NewSolver(table *mie.Table, signal mie.Signal, refine Refine) *Solver {
	return &Solver{Table: table, Signal: signal, Refine: refine}
}

// Solve finds every diameter in bounds whose proxy equals measured. Only the
// returned roots are allocated.
func (s *Solver) Solve(measured float64, b Bounds) (Outcome, error) {
	if err := mie.RequirePositive("measured scatter", measured); err != nil {
		return Outcome{}, err
	}
	w, err := s.window(measured, b)
	if err != nil {
		return Outcome{}, err
	}

	var roots []float64
	n := w.points()
	x0, f0 := w.at(0)
	for k := 0; k < n; k++ {
		if f0 == 0 {
			roots = append(roots, x0)
		}
		if k+1 == n {
			break
		}
		x1, f1 := w.at(k + 1)
		if f0 != 0 && f1 != 0 && (f0 > 0) != (f1 > 0) {
			r, err := s.refine(measured, x0, x1, f0, f1)
			if err != nil {
				return Outcome{}, err
			}
			roots = append(roots, r)
		}
		x0, f0 = x1, f1
	}
	return newOutcome(roots), nil
}

// window is the in-bounds slice of the grid, framed by the two bounds.
// Point 0 is lo, points 1..n-2 are grid points strictly inside (lo, hi) and
// the last point is hi. Values are curve minus measured.
type window struct {
	ds, vals       []float64
	first, last    int // grid index range [first, last)
	lo, hi         float64
	fLo, fHi, meas float64
}

func (w *window) points() int { return w.last - w.first + 2 }

func (w *window) at(k int) (float64, float64) {
	switch {
	case k == 0:
		return w.lo, w.fLo
	case k == w.points()-1:
		return w.hi, w.fHi
	}
	i := w.first + k - 1
	return w.ds[i], w.vals[i] - w.meas
}

func (s *Solver) window(measured float64, b Bounds) (window, error) {
	if s.Table == nil {
		return window{}, fmt.Errorf("inverse: solver has no table")
	}
	ds := s.Table.Diameters()
	vals := s.Table.Signal(s.Signal)

	lo, hi := ds[0], ds[len(ds)-1]
	if b != (Bounds{}) {
		if err := mie.RequirePositive("bounds min_nm", b.MinNM); err != nil {
			return window{}, err
		}
		if !(b.MaxNM > b.MinNM) {
			return window{}, &mie.InvalidParameterError{Param: "bounds max_nm", Value: b.MaxNM, Reason: fmt.Sprintf("must exceed min_nm %g", b.MinNM)}
		}
		lo, hi = math.Max(lo, b.MinNM), math.Min(hi, b.MaxNM)
		if !(hi > lo) {
			return window{}, &mie.InvalidParameterError{Param: "bounds", Value: b.MinNM,
				Reason: fmt.Sprintf("[%g, %g] does not overlap table grid [%g, %g]", b.MinNM, b.MaxNM, ds[0], ds[len(ds)-1])}
		}
	}

	w := window{ds: ds, vals: vals, lo: lo, hi: hi, meas: measured}
	w.first = sort.SearchFloat64s(ds, lo)
	if w.first < len(ds) && ds[w.first] == lo {
		w.first++
	}
	w.last = sort.SearchFloat64s(ds, hi)
	if w.last < w.first {
		w.last = w.first
	}
	v, _ := s.Table.Interpolate(s.Signal, lo)
	w.fLo = v - measured
	v, _ = s.Table.Interpolate(s.Signal, hi)
	w.fHi = v - measured
	return w, nil
}

func (s *Solver) refine(measured, x0, x1, f0, f1 float64) (float64, error) {
	linear := x0 - f0*(x1-x0)/(f1-f0)
	if s.Refine != RefineExact {
		return linear, nil
	}

	oracle := s.Oracle
	if oracle == nil {
		optics, signal := s.Table.Optics(), s.Signal
		oracle = func(d float64) (float64, error) {
			r, err := mie.Compute(d, optics)
			if err != nil {
				return 0, err
			}
			if signal == mie.SignalSide {
				return r.Side, nil
			}
			return r.Forward, nil
		}
	}
	g := func(d float64) (float64, error) {
		v, err := oracle(d)
		return v - measured, err
	}

	// Interior grid points match the oracle exactly; the bounds are
	// interpolated, so re-evaluate the endpoints before bracketing.
	g0, err := g(x0)
	if err != nil {
		return 0, err
	}
	g1, err := g(x1)
	if err != nil {
		return 0, err
	}
	tol := s.ToleranceNM
	if tol <= 0 {
		tol = DefaultToleranceNM
	}
	root, err := brent(g, x0, x1, g0, g1, tol)
	if err == errNotBracketed {
		return linear, nil
	}
	return root, err
}
