package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/monitoring"
)

var logf = monitoring.Component("calibration")

// Curve is a fitted calibration. It is a value object: nothing in this
// package modifies a Curve after Fit returns it, and callers must not either.
// Params holds [a, b] for FitPowerLaw and ascending polynomial coefficients
// for FitPolynomial.
type Curve struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	Label         string     `json:"label,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	Optics        mie.Optics `json:"optics"`
	Beads         []Bead     `json:"beads"`
	FitType       FitType    `json:"fit_type"`
	Params        []float64  `json:"params"`
	RSquared      float64    `json:"r_squared"`
	RMSENM        float64    `json:"rmse_nm"`
	DMinNM        float64    `json:"d_min_nm"`
	DMaxNM        float64    `json:"d_max_nm"`
	EngineVersion string     `json:"engine_version"`
	ProxyModel    string     `json:"proxy_model"`
}

// Predict maps a scatter value to a diameter. inRange is false when the
// diameter falls outside the bead range the curve was fitted on, or when
// scatter is not positive (the diameter is then NaN).
func (c *Curve) Predict(scatter float64) (diameterNM float64, inRange bool) {
	if !(scatter > 0) || math.IsInf(scatter, 0) {
		return math.NaN(), false
	}
	switch c.FitType {
	case FitPowerLaw:
		a, b := c.Params[0], c.Params[1]
		diameterNM = math.Pow(scatter/a, 1/b)
	case FitPolynomial:
		diameterNM = math.Exp(polyEval(c.Params, math.Log(scatter)))
	default:
		return math.NaN(), false
	}
	return diameterNM, diameterNM >= c.DMinNM && diameterNM <= c.DMaxNM
}

// PredictBatch applies Predict to every value.
func (c *Curve) PredictBatch(scatter []float64) (diameters []float64, inRange []bool) {
	diameters = make([]float64, len(scatter))
	inRange = make([]bool, len(scatter))
	for i, s := range scatter {
		diameters[i], inRange[i] = c.Predict(s)
	}
	return diameters, inRange
}

// Scatter is the forward direction of a power-law curve, a·d^b. For
// polynomial curves it returns NaN.
func (c *Curve) Scatter(diameterNM float64) float64 {
	if c.FitType != FitPowerLaw {
		return math.NaN()
	}
	return c.Params[0] * math.Pow(diameterNM, c.Params[1])
}

// Validate checks a curve loaded from storage.
func (c *Curve) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("calibration curve has no id")
	}
	switch c.FitType {
	case FitPowerLaw:
		if len(c.Params) != 2 || !(c.Params[0] > 0) || !(c.Params[1] > 0) {
			return fmt.Errorf("calibration curve %s: power law needs positive [a, b], have %v", c.ID, c.Params)
		}
	case FitPolynomial:
		if len(c.Params) < 2 {
			return fmt.Errorf("calibration curve %s: polynomial needs at least 2 coefficients, have %d", c.ID, len(c.Params))
		}
	default:
		return fmt.Errorf("calibration curve %s: unknown fit type %q", c.ID, c.FitType)
	}
	for _, p := range c.Params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("calibration curve %s: non-finite parameter in %v", c.ID, c.Params)
		}
	}
	if !(c.DMaxNM >= c.DMinNM) || !(c.DMinNM > 0) {
		return fmt.Errorf("calibration curve %s: invalid diameter range [%g, %g]", c.ID, c.DMinNM, c.DMaxNM)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Curve) Clone() *Curve {
	out := *c
	out.Beads = append([]Bead(nil), c.Beads...)
	out.Params = append([]float64(nil), c.Params...)
	return &out
}

// Marshal encodes the curve as JSON.
func (c *Curve) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCurve decodes and validates a JSON curve.
func UnmarshalCurve(data []byte) (*Curve, error) {
	var c Curve
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode calibration curve: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
