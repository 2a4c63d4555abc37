package diagplot

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/sizing"
)

func requirePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Positive(t, cfg.Width)
	assert.Positive(t, cfg.Height)
}

func TestResponseCurves(t *testing.T) {
	t.Parallel()

	grid := mie.Grid{MinNM: 50, MaxNM: 1500, StepNM: 10}
	var tables []*mie.Table
	for _, wl := range []float64{405, 488} {
		tbl, err := mie.BuildTable(context.Background(), mie.Optics{WavelengthNM: wl, ParticleIndex: complex(1.59, 0), MediumIndex: 1.33}, grid)
		require.NoError(t, err)
		tables = append(tables, tbl)
	}

	for _, sig := range []mie.Signal{mie.SignalForward, mie.SignalSide} {
		path := filepath.Join(t.TempDir(), sig.String()+".png")
		require.NoError(t, ResponseCurves(tables, sig, path))
		requirePNG(t, path)
	}

	assert.ErrorIs(t, ResponseCurves(nil, mie.SignalForward, filepath.Join(t.TempDir(), "x.png")), ErrNothingToPlot)
}

func TestCalibrationFit(t *testing.T) {
	t.Parallel()

	var beads []calibration.Bead
	for _, d := range []float64{100, 200, 300, 500} {
		beads = append(beads, calibration.Bead{DiameterNM: d, Scatter: 0.5 * d * d * d})
	}
	for _, ft := range []calibration.FitType{calibration.FitPowerLaw, calibration.FitPolynomial} {
		c, err := calibration.Fit(beads, calibration.Options{Type: ft})
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "fit.svg")
		require.NoError(t, CalibrationFit(c, path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	assert.ErrorIs(t, CalibrationFit(nil, "unused.png"), ErrNothingToPlot)
}

func TestDistribution(t *testing.T) {
	t.Parallel()

	var diameters []float64
	for i := 0; i < 300; i++ {
		diameters = append(diameters, 100+float64(i%30))
		if i%3 == 0 {
			diameters = append(diameters, 250+float64(i%20))
		}
	}
	path := filepath.Join(t.TempDir(), "dist.png")
	require.NoError(t, Distribution(diameters, sizing.StatsOptions{}, "", path))
	requirePNG(t, path)

	// A single repeated size still renders, without a histogram.
	path = filepath.Join(t.TempDir(), "spike.png")
	require.NoError(t, Distribution([]float64{120, 120, 120}, sizing.StatsOptions{}, "spike", path))
	requirePNG(t, path)

	assert.ErrorIs(t, Distribution(nil, sizing.StatsOptions{}, "", "unused.png"), ErrNothingToPlot)
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	err := Distribution([]float64{1, 2, 3}, sizing.StatsOptions{}, "", filepath.Join(t.TempDir(), "dist.bmp"))
	assert.Error(t, err)
}

func TestHistogramBins(t *testing.T) {
	assert.Equal(t, 10, histogramBins(4))
	assert.Equal(t, 32, histogramBins(1000))
	assert.Equal(t, 100, histogramBins(1_000_000))
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.NotEqual(t, colors[0], colors[1])
}
