package sizing

import (
	"errors"
	"fmt"

	"github.com/banshee-data/particle.sizing/internal/fcs"
)

// Analysis is the result of sizing one event table.
type Analysis struct {
	Strategy  string      `json:"strategy"`
	Estimates []Estimate  `json:"-"`
	Counts    Counts      `json:"counts"`
	Diameters []float64   `json:"-"` // valid diameters in event order
	Stats     *Statistics `json:"stats,omitempty"`
}

// Analyze sizes every event of table. The strategy is passed in explicitly;
// nothing here reads an ambient calibration. Per-event failures become
// invalid estimates; only a strategy that cannot run against the resolved
// columns returns an error. Stats is nil when no event is valid.
func Analyze(table *fcs.EventTable, cols fcs.RoleColumns, strategy Strategy, opts StatsOptions) (*Analysis, error) {
	if table == nil {
		return nil, errors.New("sizing: nil event table")
	}
	if strategy == nil {
		return nil, errors.New("sizing: nil strategy")
	}
	for _, c := range []int{cols.Forward, cols.Side, cols.Ratio} {
		if c >= table.Cols() {
			return nil, fmt.Errorf("sizing: column %d outside %d-channel table", c, table.Cols())
		}
	}
	if err := strategy.check(cols); err != nil {
		return nil, err
	}

	a := &Analysis{
		Strategy:  strategy.Name(),
		Estimates: make([]Estimate, table.Rows()),
	}
	for i := 0; i < table.Rows(); i++ {
		e := strategy.size(i, table.Row(i), cols)
		a.Estimates[i] = e
		a.Counts.add(e)
		if e.Valid() {
			a.Diameters = append(a.Diameters, e.DiameterNM)
		}
	}

	if len(a.Diameters) > 0 {
		stats, err := ComputeStatistics(a.Diameters, opts)
		if err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
		a.Stats = stats
	}
	return a, nil
}
