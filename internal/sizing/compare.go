package sizing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Comparison contrasts two size samples, typically a stained sample (B)
// against its control (A). Positive effect sizes mean B is larger.
type Comparison struct {
	NA            int     `json:"n_a"`
	NB            int     `json:"n_b"`
	KSStatistic   float64 `json:"ks_statistic"`
	PValue        float64 `json:"p_value"`
	CohensD       float64 `json:"cohens_d"`
	CliffsDelta   float64 `json:"cliffs_delta"`
	MedianShiftNM float64 `json:"median_shift_nm"`
}

// Significant reports whether the distributions differ at level alpha.
func (c Comparison) Significant(alpha float64) bool {
	return c.PValue < alpha
}

// Compare runs a two-sample Kolmogorov–Smirnov test and computes Cohen's d,
// Cliff's delta and the shift in median between a and b.
func Compare(a, b []float64) (Comparison, error) {
	if len(a) < 2 || len(b) < 2 {
		return Comparison{}, fmt.Errorf("%w: comparison needs at least 2 values per sample, have %d and %d", ErrNoData, len(a), len(b))
	}
	x := append([]float64(nil), a...)
	y := append([]float64(nil), b...)
	sort.Float64s(x)
	sort.Float64s(y)

	c := Comparison{NA: len(x), NB: len(y)}
	c.KSStatistic = stat.KolmogorovSmirnov(x, nil, y, nil)
	c.PValue = ksPValue(c.KSStatistic, len(x), len(y))
	c.CohensD = cohensD(x, y)
	c.CliffsDelta = cliffsDelta(x, y)
	c.MedianShiftNM = stat.Quantile(0.5, stat.Empirical, y, nil) - stat.Quantile(0.5, stat.Empirical, x, nil)
	return c, nil
}

// ksPValue is the asymptotic two-sample significance
// Q_KS((√Ne + 0.12 + 0.11/√Ne)·D) with Ne = n·m/(n+m).
func ksPValue(d float64, n, m int) float64 {
	ne := float64(n) * float64(m) / float64(n+m)
	sq := math.Sqrt(ne)
	lambda := (sq + 0.12 + 0.11/sq) * d
	return qKS(lambda)
}

func qKS(lambda float64) float64 {
	const (
		eps1 = 1e-3
		eps2 = 1e-8
	)
	a2 := -2 * lambda * lambda
	fac, sum, prev := 2.0, 0.0, 0.0
	for j := 1; j <= 100; j++ {
		term := fac * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return math.Min(math.Max(sum, 0), 1)
		}
		fac = -fac
		prev = math.Abs(term)
	}
	// The series has not converged, which only happens for λ near zero.
	return 1
}

func cohensD(x, y []float64) float64 {
	mx, vx := stat.MeanVariance(x, nil)
	my, vy := stat.MeanVariance(y, nil)
	nx, ny := float64(len(x)), float64(len(y))
	pooled := math.Sqrt(((nx-1)*vx + (ny-1)*vy) / (nx + ny - 2))
	if pooled == 0 {
		return 0
	}
	return (my - mx) / pooled
}

// cliffsDelta is P(Y > X) − P(Y < X) over all pairs. Both inputs must be
// sorted.
func cliffsDelta(x, y []float64) float64 {
	var greater, less int
	for _, v := range y {
		below := sort.SearchFloat64s(x, v) // count of x < v
		notAbove := sort.Search(len(x), func(i int) bool { return x[i] > v })
		greater += below
		less += len(x) - notAbove
	}
	return float64(greater-less) / float64(len(x)*len(y))
}
