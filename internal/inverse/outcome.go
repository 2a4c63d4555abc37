package inverse

import (
	"fmt"
	"strings"
)

// Kind tags an inversion outcome.
type Kind int

const (
	// NoSolution means the measured value is not reached anywhere in the
	// bounds.
	NoSolution Kind = iota
	// SingleSolution means exactly one diameter reproduces the measurement.
	SingleSolution
	// MultipleSolutions means the response curve crosses the measured value
	// more than once inside the bounds. Choosing among the roots is left to
	// the caller, typically a second-wavelength disambiguator.
	MultipleSolutions
)

func (k Kind) String() string {
	switch k {
	case NoSolution:
		return "no-solution"
	case SingleSolution:
		return "single"
	case MultipleSolutions:
		return "multiple"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the tagged result of one inversion. Roots are in ascending
// diameter order; there is one root per bracketed crossing.
type Outcome struct {
	Kind  Kind
	Roots []float64
}

func newOutcome(roots []float64) Outcome {
	switch len(roots) {
	case 0:
		return Outcome{Kind: NoSolution}
	case 1:
		return Outcome{Kind: SingleSolution, Roots: roots}
	default:
		return Outcome{Kind: MultipleSolutions, Roots: roots}
	}
}

// Diameter returns the root of a SingleSolution outcome. It returns false
// for the other kinds, so callers cannot silently take the first of several
// roots.
func (o Outcome) Diameter() (float64, bool) {
	if o.Kind != SingleSolution {
		return 0, false
	}
	return o.Roots[0], true
}

func (o Outcome) String() string {
	if len(o.Roots) == 0 {
		return o.Kind.String()
	}
	parts := make([]string, len(o.Roots))
	for i, r := range o.Roots {
		parts[i] = fmt.Sprintf("%.2f", r)
	}
	return fmt.Sprintf("%s[%s]", o.Kind, strings.Join(parts, ", "))
}
