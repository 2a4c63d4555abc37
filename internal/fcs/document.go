package fcs

import (
	"fmt"
	"strconv"
	"strings"
)

// Header holds the version signature and the segment offsets from the first
// 58 bytes of a file. Offsets are inclusive byte positions as written by the
// instrument.
type Header struct {
	Version       string
	TextStart     int64
	TextEnd       int64
	DataStart     int64
	DataEnd       int64
	AnalysisStart int64
	AnalysisEnd   int64
}

// Channel describes one measured parameter.
type Channel struct {
	Index     int    // 1-based parameter number
	ShortName string // $PnN
	LongName  string // $PnS
	Name      string // resolved display name
	Bits      int    // $PnB
	Range     float64
}

// ResolveChannelName applies the display-name priority order: short name,
// then long name, then a "P<n>" placeholder.
func ResolveChannelName(index int, short, long string) string {
	if s := strings.TrimSpace(short); s != "" {
		return s
	}
	if l := strings.TrimSpace(long); l != "" {
		return l
	}
	return "P" + strconv.Itoa(index)
}

// EventTable is a row-major events × channels matrix. It is read-only after
// construction and safe to share between goroutines.
type EventTable struct {
	rows int
	cols int
	data []float64
}

// NewEventTable wraps data as a rows × cols table. It fails if the backing
// slice does not hold exactly rows*cols values.
func NewEventTable(rows, cols int, data []float64) (*EventTable, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrShapeMismatch, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d table", ErrShapeMismatch, len(data), rows, cols)
	}
	return &EventTable{rows: rows, cols: cols, data: data}, nil
}

// Rows returns the number of events.
func (t *EventTable) Rows() int { return t.rows }

// Cols returns the number of channels.
func (t *EventTable) Cols() int { return t.cols }

// At returns the value for event r, channel c (both 0-based).
func (t *EventTable) At(r, c int) float64 { return t.data[r*t.cols+c] }

// Row returns a view of event r. Callers must not modify it.
func (t *EventTable) Row(r int) []float64 {
	return t.data[r*t.cols : (r+1)*t.cols]
}

// Column copies channel c out of the table.
func (t *EventTable) Column(c int) []float64 {
	out := make([]float64, t.rows)
	for r := 0; r < t.rows; r++ {
		out[r] = t.data[r*t.cols+c]
	}
	return out
}

// Document is a fully decoded scatter file.
type Document struct {
	Header   Header
	Metadata map[string]string
	Channels []Channel
	Events   *EventTable
}

// Meta returns a metadata value by key. Keys are matched case-insensitively.
func (d *Document) Meta(key string) string {
	return d.Metadata[strings.ToUpper(key)]
}

// ChannelNames returns the resolved display names in parameter order.
func (d *Document) ChannelNames() []string {
	names := make([]string, len(d.Channels))
	for i, ch := range d.Channels {
		names[i] = ch.Name
	}
	return names
}

// ChannelIndex returns the 0-based column for a resolved channel name. An
// exact match wins over a case-insensitive one.
func (d *Document) ChannelIndex(name string) (int, bool) {
	for i, ch := range d.Channels {
		if ch.Name == name {
			return i, true
		}
	}
	for i, ch := range d.Channels {
		if strings.EqualFold(ch.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Column copies the values of the named channel.
func (d *Document) Column(name string) ([]float64, error) {
	idx, ok := d.ChannelIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrChannelNotFound, name, strings.Join(d.ChannelNames(), ", "))
	}
	return d.Events.Column(idx), nil
}
