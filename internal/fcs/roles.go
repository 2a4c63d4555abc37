package fcs

import (
	"fmt"
	"strings"
)

// ChannelRoles maps measurement roles to resolved channel names for one
// instrument. The mapping comes from configuration; this package never
// hardcodes instrument channel names.
type ChannelRoles struct {
	Forward string `json:"forward"`         // forward scatter at the primary wavelength
	Side    string `json:"side,omitempty"`  // side scatter, optional
	Ratio   string `json:"ratio,omitempty"` // forward scatter at the second wavelength, optional
}

// RoleColumns holds the 0-based column indices for resolved roles. Optional
// roles that are unset or absent are -1.
type RoleColumns struct {
	Forward int
	Side    int
	Ratio   int
}

// HasRatio reports whether a second-wavelength channel was resolved.
func (c RoleColumns) HasRatio() bool { return c.Ratio >= 0 }

// Resolve locates each configured role in doc. The forward role is required;
// a configured optional role that cannot be found is also an error, since it
// means the configuration does not match the instrument.
func (r ChannelRoles) Resolve(doc *Document) (RoleColumns, error) {
	cols := RoleColumns{Forward: -1, Side: -1, Ratio: -1}
	if strings.TrimSpace(r.Forward) == "" {
		return cols, fmt.Errorf("%w: no forward scatter channel configured", ErrChannelNotFound)
	}

	lookup := func(role, name string) (int, error) {
		idx, ok := doc.ChannelIndex(name)
		if !ok {
			return -1, fmt.Errorf("%w: %s role %q (have %s)", ErrChannelNotFound, role, name, strings.Join(doc.ChannelNames(), ", "))
		}
		return idx, nil
	}

	var err error
	if cols.Forward, err = lookup("forward", r.Forward); err != nil {
		return cols, err
	}
	if r.Side != "" {
		if cols.Side, err = lookup("side", r.Side); err != nil {
			return cols, err
		}
	}
	if r.Ratio != "" {
		if cols.Ratio, err = lookup("ratio", r.Ratio); err != nil {
			return cols, err
		}
	}
	return cols, nil
}
