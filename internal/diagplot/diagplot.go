// Package diagplot renders diagnostic plots of the forward model, bead
// calibrations and size distributions. The output format follows the file
// extension (png, svg, pdf).
package diagplot

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/sizing"
)

// Plot dimensions.
const (
	width  = 10 * vg.Inch
	height = 6 * vg.Inch
)

// ErrNothingToPlot is returned when the input holds no drawable points.
var ErrNothingToPlot = errors.New("diagplot: nothing to plot")

// ResponseCurves plots one proxy signal of each table against diameter on a
// logarithmic scatter axis, one line per table. It is the usual way to see
// where the curve stops being monotonic.
func ResponseCurves(tables []*mie.Table, signal mie.Signal, path string) error {
	if len(tables) == 0 {
		return ErrNothingToPlot
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s scatter response", signal)
	p.X.Label.Text = "Diameter (nm)"
	p.Y.Label.Text = "Cross section (nm²)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	colors := generateColors(len(tables))
	drawn := 0
	for i, t := range tables {
		pts := positiveXYs(t.Diameters(), t.Signal(signal))
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		o := t.Optics()
		p.Legend.Add(fmt.Sprintf("λ=%gnm n=%g", o.WavelengthNM, real(o.ParticleIndex)), line)
		drawn++
	}
	if drawn == 0 {
		return ErrNothingToPlot
	}
	placeLegend(p)
	return save(p, path)
}

// CalibrationFit plots the bead points and the fitted curve on log–log axes.
func CalibrationFit(c *calibration.Curve, path string) error {
	if c == nil || len(c.Beads) == 0 {
		return ErrNothingToPlot
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Calibration %s (%s, R²=%.4f)", c.ID, c.FitType, c.RSquared)
	p.X.Label.Text = "Scatter"
	p.Y.Label.Text = "Diameter (nm)"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	beads := make(plotter.XYs, len(c.Beads))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, b := range c.Beads {
		beads[i] = plotter.XY{X: b.Scatter, Y: b.DiameterNM}
		lo, hi = math.Min(lo, b.Scatter), math.Max(hi, b.Scatter)
	}
	sc, err := plotter.NewScatter(beads)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(4)
	sc.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	p.Add(sc)
	p.Legend.Add("beads", sc)

	// Extend the fitted line half a decade past the beads.
	scatter := floats.LogSpan(make([]float64, 200), lo/math.Sqrt(10), hi*math.Sqrt(10))
	var fit plotter.XYs
	for _, s := range scatter {
		if d, _ := c.Predict(s); d > 0 && !math.IsInf(d, 0) {
			fit = append(fit, plotter.XY{X: s, Y: d})
		}
	}
	if len(fit) >= 2 {
		line, err := plotter.NewLine(fit)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1.5)
		line.Color = color.RGBA{B: 180, A: 255}
		p.Add(line)
		p.Legend.Add("fit", line)
	}
	placeLegend(p)
	return save(p, path)
}

// Distribution plots a normalised histogram of diameters with the density
// estimate and the detected peaks overlaid.
func Distribution(diameters []float64, opts sizing.StatsOptions, title, path string) error {
	if len(diameters) == 0 {
		return ErrNothingToPlot
	}
	sorted := append([]float64(nil), diameters...)
	sort.Float64s(sorted)
	stats, err := sizing.ComputeStatistics(sorted, opts)
	if err != nil {
		return err
	}
	density := sizing.EstimateDensity(sorted, opts)

	p := plot.New()
	p.Title.Text = title
	if p.Title.Text == "" {
		p.Title.Text = "Size distribution"
	}
	p.X.Label.Text = "Diameter (nm)"
	p.Y.Label.Text = "Density (1/nm)"

	bins := histogramBins(len(sorted))
	if stats.MaxNM > stats.MinNM {
		hist, err := plotter.NewHist(plotter.Values(sorted), bins)
		if err != nil {
			return err
		}
		hist.Normalize(1)
		hist.FillColor = color.RGBA{R: 170, G: 190, B: 220, A: 255}
		hist.LineStyle.Width = vg.Points(0.5)
		p.Add(hist)
		p.Legend.Add(fmt.Sprintf("events (n=%d)", stats.N), hist)
	}

	kde, err := plotter.NewLine(xys(density.GridNM, density.Values))
	if err != nil {
		return err
	}
	kde.Width = vg.Points(1.5)
	kde.Color = color.RGBA{R: 20, G: 40, B: 120, A: 255}
	p.Add(kde)
	p.Legend.Add(fmt.Sprintf("KDE (h=%.1f nm)", density.BandwidthNM), kde)

	top := floats.Max(density.Values)
	for _, pk := range stats.Peaks {
		marker, err := plotter.NewLine(plotter.XYs{{X: pk.DiameterNM, Y: 0}, {X: pk.DiameterNM, Y: top}})
		if err != nil {
			return err
		}
		marker.Color = color.RGBA{R: 200, A: 255}
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("peak %.0f nm", pk.DiameterNM), marker)
	}
	placeLegend(p)
	return save(p, path)
}

// histogramBins applies the square-root rule, clamped to [10, 100].
func histogramBins(n int) int {
	b := int(math.Ceil(math.Sqrt(float64(n))))
	if b < 10 {
		return 10
	}
	if b > 100 {
		return 100
	}
	return b
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}

// positiveXYs drops points a log axis cannot show.
func positiveXYs(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if y[i] > 0 && !math.IsInf(y[i], 0) {
			pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
		}
	}
	return pts
}

func placeLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
