package mie

import (
	"fmt"
	"math"
)

// InvalidParameterError reports a physical input outside its domain, such as
// a non-positive diameter, wavelength or scatter value.
type InvalidParameterError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("mie: invalid %s %g: %s", e.Param, e.Value, e.Reason)
}

// RequirePositive returns an *InvalidParameterError unless v is a positive
// finite number. NaN fails the check.
func RequirePositive(param string, v float64) error {
	if !(v > 0) || math.IsInf(v, 1) {
		return &InvalidParameterError{Param: param, Value: v, Reason: "must be a positive finite number"}
	}
	return nil
}
