package sizing

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned when a statistic is requested for an empty sample.
var ErrNoData = errors.New("sizing: no valid diameters")

// Default statistics settings.
const (
	DefaultKDEPoints     = 512
	DefaultMinProminence = 0.05
)

// StatsOptions tunes ComputeStatistics. Zero values select the defaults.
type StatsOptions struct {
	KDEPoints     int     `json:"kde_points"`
	MinProminence float64 `json:"min_prominence"` // fraction of the highest density
	BandwidthNM   float64 `json:"bandwidth_nm"`   // zero selects Silverman's rule
}

func (o StatsOptions) points() int {
	if o.KDEPoints < 16 {
		return DefaultKDEPoints
	}
	return o.KDEPoints
}

func (o StatsOptions) minProminence() float64 {
	if o.MinProminence <= 0 {
		return DefaultMinProminence
	}
	return o.MinProminence
}

// Peak is a significant local maximum of the size density.
type Peak struct {
	DiameterNM float64 `json:"diameter_nm"`
	Density    float64 `json:"density"`
	Prominence float64 `json:"prominence"` // relative to the highest density
}

// Statistics summarises one size sample. Percentiles are taken from the
// empirical distribution, so D50 is the smallest observed diameter with at
// least half the sample at or below it. Moments that are undefined for small
// samples are reported as zero.
type Statistics struct {
	N              int     `json:"n"`
	MinNM          float64 `json:"min_nm"`
	MaxNM          float64 `json:"max_nm"`
	D10            float64 `json:"d10_nm"`
	D50            float64 `json:"d50_nm"`
	D90            float64 `json:"d90_nm"`
	MeanNM         float64 `json:"mean_nm"`
	SDNM           float64 `json:"sd_nm"`
	Skewness       float64 `json:"skewness"`
	ExcessKurtosis float64 `json:"excess_kurtosis"`
	ModeNM         float64 `json:"mode_nm"`
	BandwidthNM    float64 `json:"bandwidth_nm"`
	Peaks          []Peak  `json:"peaks"`
	Modality       int     `json:"modality"`
}

// ComputeStatistics summarises diameters. The input is not modified.
func ComputeStatistics(diameters []float64, opts StatsOptions) (*Statistics, error) {
	if len(diameters) == 0 {
		return nil, ErrNoData
	}
	x := append([]float64(nil), diameters...)
	sort.Float64s(x)

	n := len(x)
	s := &Statistics{
		N:     n,
		MinNM: x[0],
		MaxNM: x[n-1],
		D10:   stat.Quantile(0.10, stat.Empirical, x, nil),
		D50:   stat.Quantile(0.50, stat.Empirical, x, nil),
		D90:   stat.Quantile(0.90, stat.Empirical, x, nil),
	}
	s.MeanNM = stat.Mean(x, nil)
	if n > 1 {
		s.SDNM = stat.StdDev(x, nil)
	}
	if n > 2 && s.SDNM > 0 {
		s.Skewness = stat.Skew(x, nil)
	}
	if n > 3 && s.SDNM > 0 {
		s.ExcessKurtosis = stat.ExKurtosis(x, nil)
	}

	kde := EstimateDensity(x, opts)
	s.BandwidthNM = kde.BandwidthNM
	s.ModeNM = kde.Mode()
	s.Peaks = kde.Peaks(opts.minProminence())
	s.Modality = len(s.Peaks)
	return s, nil
}

// Density is a Gaussian kernel density estimate evaluated on a uniform grid.
type Density struct {
	GridNM      []float64
	Values      []float64 // per nm, integrates to about one
	BandwidthNM float64
}

// SilvermanBandwidth is 0.9·min(σ, IQR/1.34)·n^(-1/5), falling back to σ
// alone when the IQR is zero. sorted must be in ascending order.
func SilvermanBandwidth(sorted []float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}
	sd := stat.StdDev(sorted, nil)
	iqr := stat.Quantile(0.75, stat.LinInterp, sorted, nil) - stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	spread := sd
	if iqr > 0 && iqr/1.34 < sd {
		spread = iqr / 1.34
	}
	return 0.9 * spread * math.Pow(float64(n), -0.2)
}

// EstimateDensity builds the KDE of sorted diameters. Samples are linearly
// binned onto the grid first, so the cost is independent of the sample size
// once binned.
func EstimateDensity(sorted []float64, opts StatsOptions) Density {
	h := opts.BandwidthNM
	if h <= 0 {
		h = SilvermanBandwidth(sorted)
	}
	if h <= 0 {
		// Degenerate sample: every value is the same.
		h = math.Max(math.Abs(sorted[0])*1e-3, 1e-3)
	}

	m := opts.points()
	lo, hi := sorted[0]-4*h, sorted[len(sorted)-1]+4*h
	grid := floats.Span(make([]float64, m), lo, hi)
	dx := grid[1] - grid[0]

	counts := make([]float64, m)
	for _, v := range sorted {
		p := (v - lo) / dx
		j := int(math.Floor(p))
		if j >= m-1 {
			counts[m-1]++
			continue
		}
		if j < 0 {
			counts[0]++
			continue
		}
		f := p - float64(j)
		counts[j] += 1 - f
		counts[j+1] += f
	}

	reach := int(math.Ceil(5 * h / dx))
	kernel := make([]float64, reach+1)
	norm := 1 / (float64(len(sorted)) * h * math.Sqrt(2*math.Pi))
	for k := range kernel {
		u := float64(k) * dx / h
		kernel[k] = norm * math.Exp(-0.5*u*u)
	}

	values := make([]float64, m)
	for j, c := range counts {
		if c == 0 {
			continue
		}
		from, to := max(0, j-reach), min(m-1, j+reach)
		for i := from; i <= to; i++ {
			k := i - j
			if k < 0 {
				k = -k
			}
			values[i] += c * kernel[k]
		}
	}
	return Density{GridNM: grid, Values: values, BandwidthNM: h}
}

// Mode returns the grid diameter of the highest density.
func (d Density) Mode() float64 {
	return d.GridNM[floats.MaxIdx(d.Values)]
}

// Peaks returns the local maxima whose prominence, relative to the highest
// density, is at least minProminence, in ascending diameter order.
//
// Prominence is the height of a peak above the higher of the two lowest
// points separating it from taller terrain on either side.
func (d Density) Peaks(minProminence float64) []Peak {
	v := d.Values
	top := floats.Max(v)
	if !(top > 0) {
		return nil
	}

	var peaks []Peak
	for i := 1; i < len(v)-1; i++ {
		if !(v[i] > v[i-1]) {
			continue
		}
		// Walk across a flat top.
		j := i
		for j+1 < len(v) && v[j+1] == v[i] {
			j++
		}
		if j+1 >= len(v) || !(v[j+1] < v[i]) {
			i = j
			continue
		}

		leftMin := v[i]
		for k := i - 1; k >= 0 && v[k] <= v[i]; k-- {
			leftMin = math.Min(leftMin, v[k])
		}
		rightMin := v[i]
		for k := j + 1; k < len(v) && v[k] <= v[i]; k++ {
			rightMin = math.Min(rightMin, v[k])
		}
		prom := (v[i] - math.Max(leftMin, rightMin)) / top
		if prom >= minProminence {
			peaks = append(peaks, Peak{
				DiameterNM: (d.GridNM[i] + d.GridNM[j]) / 2,
				Density:    v[i],
				Prominence: prom,
			})
		}
		i = j
	}
	return peaks
}
