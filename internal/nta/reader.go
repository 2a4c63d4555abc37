// Package nta reads particle size lists exported by particle-tracking
// analysers. The sizes feed the same statistics and comparison code as
// scatter-derived diameters.
package nta

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultColumns are the size column headers tried, in order, when Options
// names none.
var DefaultColumns = []string{"Size/nm", "Diameter (nm)", "size_nm"}

// maxPreambleRows bounds how far ReadSizes looks for the header row.
// Instrument exports put a block of acquisition settings above the table.
const maxPreambleRows = 64

// ErrNoSizeColumn is returned when no header row names a size column.
var ErrNoSizeColumn = errors.New("nta: no size column found")

// Options configures ReadSizes.
type Options struct {
	Column    string // header to read; empty tries DefaultColumns
	Delimiter rune   // zero means ','
}

// Sizes is the result of reading one export.
type Sizes struct {
	Column  string    // header the values came from
	Values  []float64 // positive diameters in nm, in file order
	Skipped int       // data rows without a positive numeric size
}

// ReadSizes reads diameters from a delimited export. Rows above the header
// are ignored. Rows whose size cell is empty, non-numeric or not positive
// are counted in Skipped rather than failing the read.
func ReadSizes(r io.Reader, opts Options) (*Sizes, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	candidates := DefaultColumns
	if opts.Column != "" {
		candidates = []string{opts.Column}
	}

	col, name := -1, ""
	for row := 0; col < 0; row++ {
		if row >= maxPreambleRows {
			return nil, fmt.Errorf("%w: looked for %s in the first %d rows", ErrNoSizeColumn, strings.Join(candidates, ", "), maxPreambleRows)
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: looked for %s", ErrNoSizeColumn, strings.Join(candidates, ", "))
		}
		if err != nil {
			return nil, fmt.Errorf("nta: read header: %w", err)
		}
		col, name = findColumn(record, candidates)
	}

	out := &Sizes{Column: name}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("nta: read row: %w", err)
		}
		if blank(record) {
			continue
		}
		if col >= len(record) {
			out.Skipped++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil || !(v > 0) || v > 1e9 {
			out.Skipped++
			continue
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// findColumn matches candidates against record in candidate order, ignoring
// case and surrounding space.
func findColumn(record, candidates []string) (int, string) {
	for _, want := range candidates {
		for i, cell := range record {
			if strings.EqualFold(strings.TrimSpace(cell), want) {
				return i, strings.TrimSpace(cell)
			}
		}
	}
	return -1, ""
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
