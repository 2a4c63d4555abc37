// Package inverse maps a measured scatter value back to the diameters that
// produce it. Above size parameters of about one the response curve
// oscillates, so a value can have several preimages; every crossing inside
// the bounds is reported and the caller decides what to do with them.
package inverse
