package calibration

import "fmt"

// FitError reports bead data that cannot produce a usable curve: too few
// distinct sizes, non-positive values, or a fit below the quality threshold.
type FitError struct {
	Reason   string
	RSquared float64 // set when the fit ran but was rejected
}

func (e *FitError) Error() string {
	if e.RSquared != 0 {
		return fmt.Sprintf("calibration fit: %s (R²=%.4f)", e.Reason, e.RSquared)
	}
	return "calibration fit: " + e.Reason
}

func fitErrorf(format string, args ...any) *FitError {
	return &FitError{Reason: fmt.Sprintf(format, args...)}
}
