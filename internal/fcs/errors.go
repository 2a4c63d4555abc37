package fcs

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when an event table's backing data does not
// match its declared row and column counts.
var ErrShapeMismatch = errors.New("event table shape mismatch")

// ErrChannelNotFound is returned when a channel name does not resolve.
var ErrChannelNotFound = errors.New("channel not found")

// FormatError reports a file that is not a recognizable scatter file, or one
// whose metadata is internally inconsistent.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "fcs: format error: " + e.Reason
}

func formatErrorf(format string, v ...interface{}) error {
	return &FormatError{Reason: fmt.Sprintf(format, v...)}
}

// TruncatedDataError reports a data segment holding fewer bytes than the
// metadata declares (events × channels × element size).
type TruncatedDataError struct {
	Events    int
	Channels  int
	Required  int64
	Available int64
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("fcs: truncated data segment: %d events x %d channels need %d bytes, have %d",
		e.Events, e.Channels, e.Required, e.Available)
}
