package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/timeutil"
	"github.com/banshee-data/particle.sizing/internal/version"
)

// Bead is one reference measurement: a standard of certified diameter and
// the scatter statistic measured for it.
type Bead struct {
	DiameterNM float64 `json:"diameter_nm"`
	Scatter    float64 `json:"scatter"`
	Label      string  `json:"label,omitempty"`
}

// FitType selects the curve model.
type FitType string

const (
	// FitPowerLaw models scatter = a·d^b, fitted as a line in log–log space.
	FitPowerLaw FitType = "power"
	// FitPolynomial models ln d as a polynomial in ln scatter.
	FitPolynomial FitType = "polynomial"
)

// DefaultMinRSquared is the fit quality threshold used when Options leaves
// it unset.
const DefaultMinRSquared = 0.95

// Options configures Fit.
type Options struct {
	Type        FitType    // zero value means FitPowerLaw
	Degree      int        // polynomial degree, default 2
	MinRSquared float64    // zero means DefaultMinRSquared
	Optics      mie.Optics // recorded on the curve
	Channel     string     // scatter channel the beads were measured on
	Label       string
	Clock       timeutil.Clock // nil means the real clock
}

func (o Options) fitType() FitType {
	if o.Type == "" {
		return FitPowerLaw
	}
	return o.Type
}

func (o Options) degree() int {
	if o.Degree <= 0 {
		return 2
	}
	return o.Degree
}

func (o Options) minRSquared() float64 {
	if o.MinRSquared <= 0 {
		return DefaultMinRSquared
	}
	return o.MinRSquared
}

// Fit fits beads and returns a new curve. Bead order does not matter.
func Fit(beads []Bead, opts Options) (*Curve, error) {
	for i, b := range beads {
		if !(b.DiameterNM > 0) || !(b.Scatter > 0) || math.IsInf(b.DiameterNM, 0) || math.IsInf(b.Scatter, 0) {
			return nil, fitErrorf("bead %d (%q): diameter %g and scatter %g must be positive", i, b.Label, b.DiameterNM, b.Scatter)
		}
	}
	sizes := distinctSizes(beads)

	ft := opts.fitType()
	logD := make([]float64, len(beads))
	logS := make([]float64, len(beads))
	for i, b := range beads {
		logD[i] = math.Log(b.DiameterNM)
		logS[i] = math.Log(b.Scatter)
	}

	var params []float64
	var r2 float64
	switch ft {
	case FitPowerLaw:
		if sizes < 2 {
			return nil, fitErrorf("need at least 2 distinct bead sizes, have %d", sizes)
		}
		alpha, beta := stat.LinearRegression(logD, logS, nil, false)
		if !(beta > 0) {
			return nil, fitErrorf("scatter does not increase with diameter (exponent %.3f)", beta)
		}
		params = []float64{math.Exp(alpha), beta}
		r2 = stat.RSquared(logD, logS, nil, alpha, beta)
	case FitPolynomial:
		deg := opts.degree()
		if sizes <= deg {
			return nil, fitErrorf("degree %d polynomial needs at least %d distinct bead sizes, have %d", deg, deg+1, sizes)
		}
		coef, err := polyFit(logS, logD, deg)
		if err != nil {
			return nil, err
		}
		params = coef
		est := make([]float64, len(logS))
		for i, x := range logS {
			est[i] = polyEval(coef, x)
		}
		r2 = stat.RSquaredFrom(est, logD, nil)
	default:
		return nil, fitErrorf("unknown fit type %q", ft)
	}

	if math.IsNaN(r2) || r2 < opts.minRSquared() {
		return nil, &FitError{Reason: fmt.Sprintf("fit quality below threshold %.4f", opts.minRSquared()), RSquared: r2}
	}

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	c := &Curve{
		ID:            uuid.NewString(),
		CreatedAt:     clock.Now().UTC(),
		Label:         opts.Label,
		Channel:       opts.Channel,
		Optics:        opts.Optics,
		Beads:         append([]Bead(nil), beads...),
		FitType:       ft,
		Params:        params,
		RSquared:      r2,
		EngineVersion: version.Version,
		ProxyModel:    version.ProxyModel,
	}
	c.DMinNM, c.DMaxNM = diameterRange(beads)

	var sq float64
	for _, b := range beads {
		d, _ := c.Predict(b.Scatter)
		sq += (d - b.DiameterNM) * (d - b.DiameterNM)
	}
	c.RMSENM = math.Sqrt(sq / float64(len(beads)))

	logf("fitted %s curve %s on %d beads (%d sizes): R²=%.4f RMSE=%.2fnm", ft, c.ID, len(beads), sizes, r2, c.RMSENM)
	return c, nil
}

func distinctSizes(beads []Bead) int {
	seen := make(map[float64]struct{}, len(beads))
	for _, b := range beads {
		seen[b.DiameterNM] = struct{}{}
	}
	return len(seen)
}

func diameterRange(beads []Bead) (lo, hi float64) {
	ds := make([]float64, len(beads))
	for i, b := range beads {
		ds[i] = b.DiameterNM
	}
	sort.Float64s(ds)
	return ds[0], ds[len(ds)-1]
}

// polyFit solves the least-squares problem V·c = y for a Vandermonde matrix
// V in x via QR factorisation. Coefficients are in ascending power order.
func polyFit(x, y []float64, degree int) ([]float64, error) {
	n := len(x)
	v := mat.NewDense(n, degree+1, nil)
	for i, xi := range x {
		p := 1.0
		for j := 0; j <= degree; j++ {
			v.Set(i, j, p)
			p *= xi
		}
	}
	var qr mat.QR
	qr.Factorize(v)

	var c mat.Dense
	if err := qr.SolveTo(&c, false, mat.NewDense(n, 1, append([]float64(nil), y...))); err != nil {
		return nil, fitErrorf("polynomial least squares: %v", err)
	}
	coef := make([]float64, degree+1)
	for j := range coef {
		coef[j] = c.At(j, 0)
	}
	return coef, nil
}

func polyEval(coef []float64, x float64) float64 {
	var y float64
	for j := len(coef) - 1; j >= 0; j-- {
		y = y*x + coef[j]
	}
	return y
}
