// Package sizing turns scatter events into diameter estimates and summarises
// them. Analyze sizes one event table with an explicit strategy, either an
// active calibration curve or model inversion with optional two-wavelength
// disambiguation. ComputeStatistics and Compare summarise and contrast size
// samples, and Batch runs Analyze over many files on a bounded worker pool.
package sizing
