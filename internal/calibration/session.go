package calibration

import (
	"errors"
	"fmt"
	"sync"
)

// State is a calibration lifecycle state.
type State int

const (
	Uncalibrated State = iota
	Fitting
	Active
)

func (s State) String() string {
	switch s {
	case Uncalibrated:
		return "uncalibrated"
	case Fitting:
		return "fitting"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrFitInProgress is returned by Refit while another fit is running.
var ErrFitInProgress = errors.New("calibration: fit already in progress")

// Session holds the active curve for one instrument configuration. It is
// safe for concurrent use. The active curve is handed out as a private copy
// so no caller can mutate it.
type Session struct {
	mu     sync.Mutex
	state  State
	active *Curve
}

// NewSession returns an uncalibrated session.
func NewSession() *Session {
	return &Session{}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns a copy of the active curve.
func (s *Session) Active() (*Curve, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, false
	}
	return s.active.Clone(), true
}

// Refit fits beads and, on success, makes the result the active curve. A
// failed fit leaves the previous state and curve in place.
func (s *Session) Refit(beads []Bead, opts Options) (*Curve, error) {
	s.mu.Lock()
	if s.state == Fitting {
		s.mu.Unlock()
		return nil, ErrFitInProgress
	}
	prev := s.state
	s.state = Fitting
	s.mu.Unlock()

	c, err := Fit(beads, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = prev
		logf("refit failed, staying %s: %v", prev, err)
		return nil, err
	}
	s.active = c.Clone()
	s.state = Active
	logf("curve %s active", c.ID)
	return c, nil
}

// Activate installs a previously fitted curve, for example one loaded from
// the calibration store.
func (s *Session) Activate(c *Curve) error {
	if c == nil {
		return errors.New("calibration: nil curve")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		return ErrFitInProgress
	}
	s.active = c.Clone()
	s.state = Active
	logf("curve %s activated", c.ID)
	return nil
}
