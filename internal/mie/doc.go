// Package mie is the homogeneous-sphere forward model. It evaluates the Mie
// series for a diameter and optical configuration, derives the forward and
// side scatter proxies the detectors see, and builds read-only lookup tables
// that the inverse solver and the batch estimator share across workers.
//
// All diameters and wavelengths are in nanometres. Cross sections are in nm².
package mie
