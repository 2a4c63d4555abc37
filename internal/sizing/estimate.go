package sizing

import (
	"encoding/json"
	"fmt"
)

// Status classifies the outcome of sizing one event.
type Status int

const (
	StatusValid Status = iota
	// StatusNonPhysical marks events whose scatter is not a positive finite
	// number. They are counted, never sized.
	StatusNonPhysical
	// StatusNoSolution marks events whose scatter the model never reaches
	// inside the bounds.
	StatusNoSolution
	// StatusAmbiguous marks events with several candidate diameters that
	// could not be resolved.
	StatusAmbiguous
	// StatusOutOfRange marks calibrated events whose diameter falls outside
	// the bead range of the curve.
	StatusOutOfRange
	// StatusFailed marks events the strategy could not process.
	StatusFailed
)

var statusNames = [...]string{
	StatusValid:       "valid",
	StatusNonPhysical: "non-physical",
	StatusNoSolution:  "no-solution",
	StatusAmbiguous:   "ambiguous",
	StatusOutOfRange:  "out-of-range",
	StatusFailed:      "failed",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON writes the status name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Estimate is the sizing result for one event. It is created once and not
// modified afterwards. DiameterNM is zero unless the status is valid or
// out-of-range.
type Estimate struct {
	Event      int       `json:"event"`
	Candidates []float64 `json:"candidates,omitempty"`
	DiameterNM float64   `json:"diameter_nm"`
	Status     Status    `json:"status"`
}

// Valid reports whether the estimate contributes to statistics.
func (e Estimate) Valid() bool { return e.Status == StatusValid }

// Counts tallies estimates by status. Total equals the sum of the others.
type Counts struct {
	Total         int `json:"total"`
	Valid         int `json:"valid"`
	NonPhysical   int `json:"non_physical"`
	NoSolution    int `json:"no_solution"`
	Ambiguous     int `json:"ambiguous"`
	OutOfRange    int `json:"out_of_range"`
	Failed        int `json:"failed"`
	Disambiguated int `json:"disambiguated"` // valid events that had several candidates
}

func (c *Counts) add(e Estimate) {
	c.Total++
	switch e.Status {
	case StatusValid:
		c.Valid++
		if len(e.Candidates) > 1 {
			c.Disambiguated++
		}
	case StatusNonPhysical:
		c.NonPhysical++
	case StatusNoSolution:
		c.NoSolution++
	case StatusAmbiguous:
		c.Ambiguous++
	case StatusOutOfRange:
		c.OutOfRange++
	default:
		c.Failed++
	}
}
