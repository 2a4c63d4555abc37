package mie

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/particle.sizing/internal/monitoring"
)

var logf = monitoring.Component("mie")

// Signal selects which proxy a lookup is made against.
type Signal int

const (
	SignalForward Signal = iota
	SignalSide
)

func (s Signal) String() string {
	switch s {
	case SignalForward:
		return "forward"
	case SignalSide:
		return "side"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Grid is a uniform diameter grid, inclusive of both ends.
type Grid struct {
	MinNM  float64 `json:"min_nm"`
	MaxNM  float64 `json:"max_nm"`
	StepNM float64 `json:"step_nm"`
}

// Validate rejects empty or inverted grids.
func (g Grid) Validate() error {
	if err := RequirePositive("grid min_nm", g.MinNM); err != nil {
		return err
	}
	if err := RequirePositive("grid step_nm", g.StepNM); err != nil {
		return err
	}
	if !(g.MaxNM > g.MinNM) {
		return &InvalidParameterError{Param: "grid max_nm", Value: g.MaxNM, Reason: fmt.Sprintf("must exceed min_nm %g", g.MinNM)}
	}
	if g.Len() < 2 {
		return &InvalidParameterError{Param: "grid step_nm", Value: g.StepNM, Reason: "grid must hold at least two points"}
	}
	return nil
}

// Len is the number of grid points.
func (g Grid) Len() int {
	return int(math.Round((g.MaxNM-g.MinNM)/g.StepNM)) + 1
}

// Diameters returns the grid points. The last point is exactly MaxNM.
func (g Grid) Diameters() []float64 {
	return floats.Span(make([]float64, g.Len()), g.MinNM, g.MaxNM)
}

// Table is a precomputed forward-model curve on a diameter grid. It is built
// once per optics and grid, never modified afterwards, and shared by
// reference between workers.
type Table struct {
	optics    Optics
	grid      Grid
	diameters []float64
	results   []Result
	forward   []float64
	side      []float64
}

// BuildTable evaluates the forward model at every grid point. Evaluation is
// spread over GOMAXPROCS goroutines; each point is computed exactly as
// Compute would, so the table matches scalar evaluation element for element.
func BuildTable(ctx context.Context, optics Optics, grid Grid) (*Table, error) {
	if err := optics.Validate(); err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	o := optics.normalized()
	ds := grid.Diameters()
	results := make([]Result, len(ds))

	const chunk = 256
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(ds); start += chunk {
		start := start
		end := min(start+chunk, len(ds))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				results[i] = compute(ds[i], o)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build table: %w", err)
	}

	t := &Table{
		optics:    o,
		grid:      grid,
		diameters: ds,
		results:   results,
		forward:   make([]float64, len(ds)),
		side:      make([]float64, len(ds)),
	}
	for i, r := range results {
		t.forward[i] = r.Forward
		t.side[i] = r.Side
	}
	logf("built %d-point table %g..%g nm for %s", len(ds), grid.MinNM, grid.MaxNM, o)
	return t, nil
}

// Optics returns the configuration the table was built for.
func (t *Table) Optics() Optics { return t.optics }

// Grid returns the grid the table was built on.
func (t *Table) Grid() Grid { return t.grid }

// Len is the number of grid points.
func (t *Table) Len() int { return len(t.diameters) }

// Diameters returns the grid points. Callers must not modify the slice.
func (t *Table) Diameters() []float64 { return t.diameters }

// Result returns the full forward-model result at grid point i.
func (t *Table) Result(i int) Result { return t.results[i] }

// Signal returns the proxy values on the grid. Callers must not modify the
// slice.
func (t *Table) Signal(s Signal) []float64 {
	if s == SignalSide {
		return t.side
	}
	return t.forward
}

// Forward interpolates the forward proxy at d.
func (t *Table) Forward(d float64) (float64, bool) { return t.Interpolate(SignalForward, d) }

// Side interpolates the side proxy at d.
func (t *Table) Side(d float64) (float64, bool) { return t.Interpolate(SignalSide, d) }

// Interpolate linearly interpolates a proxy at diameter d. It returns false
// when d lies outside the grid.
func (t *Table) Interpolate(s Signal, d float64) (float64, bool) {
	ds := t.diameters
	if len(ds) == 0 || d < ds[0] || d > ds[len(ds)-1] || math.IsNaN(d) {
		return 0, false
	}
	vals := t.Signal(s)
	i := sort.SearchFloat64s(ds, d)
	if i < len(ds) && ds[i] == d {
		return vals[i], true
	}
	lo, hi := i-1, i
	f := (d - ds[lo]) / (ds[hi] - ds[lo])
	return vals[lo] + f*(vals[hi]-vals[lo]), true
}

type tableKey struct {
	optics Optics
	grid   Grid
}

type tableEntry struct {
	once  sync.Once
	table *Table
	err   error
}

// TableCache builds each (optics, grid) table at most once and hands the
// same *Table to every caller. The zero value is ready to use.
type TableCache struct {
	mu      sync.Mutex
	entries map[tableKey]*tableEntry
}

// Get returns the cached table, building it on first use. Concurrent callers
// asking for the same key wait for a single build. A failed build is cached
// too, since inputs that fail validation will not start passing, unless it
// failed because ctx was cancelled.
func (c *TableCache) Get(ctx context.Context, optics Optics, grid Grid) (*Table, error) {
	key := tableKey{optics: optics.normalized(), grid: grid}

	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[tableKey]*tableEntry)
	}
	e, ok := c.entries[key]
	if !ok {
		e = &tableEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.table, e.err = BuildTable(ctx, optics, grid)
	})
	if e.err != nil && (errors.Is(e.err, context.Canceled) || errors.Is(e.err, context.DeadlineExceeded)) {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return e.table, e.err
}

// Len reports how many tables have been requested.
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
