// Package fcs decodes the binary scatter files written by flow cytometers
// into a channel-tagged event table.
//
// Layout: a fixed 58-byte header (version signature plus six ASCII offsets),
// a delimited key/value metadata segment and a row-major data segment of
// fixed-width values. Channel display names resolve in a fixed order: the
// detector short name ($PnN), then the long name ($PnS), then a synthesized
// "P<n>" placeholder. Channel role detection downstream depends on that
// order, so it must not change.
//
// This package only decodes. Gating, filtering and sizing live in
// internal/sizing.
package fcs
