package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/particle.sizing/internal/mie"
)

// ErrNoPositiveEvents is returned by BeadStatistic when no event carries a
// usable scatter value.
var ErrNoPositiveEvents = errors.New("calibration: no positive scatter values")

// BeadStatistic reduces one bead population's event values to a single
// scatter value: the median of the positive finite values. It also returns
// how many values were used.
func BeadStatistic(values []float64) (float64, int, error) {
	pos := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsInf(v, 1) {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return 0, 0, ErrNoPositiveEvents
	}
	sort.Float64s(pos)
	return median(pos), len(pos), nil
}

// median of sorted values, averaging the two middle values for even counts.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Gain is the instrument-to-cross-section conversion: measured scatter
// divided by Gain is the modelled proxy in nm².
type Gain struct {
	Factor float64 `json:"factor"`
	LogSD  float64 `json:"log_sd"` // spread of ln(measured/modelled) over the beads
	N      int     `json:"n"`
}

// FitGain estimates the gain from bead measurements as the geometric mean of
// measured over modelled forward scatter. Every bead diameter must lie on
// the table grid.
func FitGain(beads []Bead, table *mie.Table) (Gain, error) {
	if len(beads) == 0 {
		return Gain{}, fitErrorf("no beads for gain fit")
	}
	logs := make([]float64, len(beads))
	for i, b := range beads {
		if !(b.Scatter > 0) {
			return Gain{}, fitErrorf("bead %d (%q): scatter %g must be positive", i, b.Label, b.Scatter)
		}
		model, ok := table.Forward(b.DiameterNM)
		if !ok {
			g := table.Grid()
			return Gain{}, fitErrorf("bead %d (%q): diameter %g nm outside model grid [%g, %g]", i, b.Label, b.DiameterNM, g.MinNM, g.MaxNM)
		}
		logs[i] = math.Log(b.Scatter / model)
	}
	mean, sd := stat.MeanStdDev(logs, nil)
	if len(logs) == 1 {
		sd = 0
	}
	g := Gain{Factor: math.Exp(mean), LogSD: sd, N: len(beads)}
	logf("gain %.4g from %d beads (log sd %.3f)", g.Factor, g.N, g.LogSD)
	return g, nil
}

// Apply converts a measured scatter value to model units.
func (g Gain) Apply(scatter float64) (float64, error) {
	if !(g.Factor > 0) {
		return 0, fmt.Errorf("calibration: gain factor %g is not positive", g.Factor)
	}
	return scatter / g.Factor, nil
}
