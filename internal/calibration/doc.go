// Package calibration fits bead standards of known diameter to measured
// scatter and turns the fit into an immutable, serialisable Curve that maps
// scatter back to diameter.
//
// A Session tracks the UNCALIBRATED → FITTING → ACTIVE lifecycle. An active
// curve is never modified; a successful refit replaces it.
package calibration
