package fcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// EncodeOptions controls Encode. The zero value writes FCS3.1 float32 data.
type EncodeOptions struct {
	Version  string            // defaults to FCS3.1
	DataType byte              // 'F' (default) or 'D'
	Extra    map[string]string // additional metadata keywords
}

// Encode writes channels and events as a little-endian list-mode scatter
// file. Channels with an empty short name omit $PnN so readers fall back to
// $PnS or the placeholder. It is used to build fixtures and synthetic runs.
func Encode(channels []Channel, events *EventTable, opts EncodeOptions) ([]byte, error) {
	if events == nil {
		return nil, fmt.Errorf("encode: nil event table")
	}
	if len(channels) != events.Cols() {
		return nil, fmt.Errorf("%w: %d channels for %d columns", ErrShapeMismatch, len(channels), events.Cols())
	}

	version := opts.Version
	if version == "" {
		version = "FCS3.1"
	}
	if !supportedVersions[version] {
		return nil, fmt.Errorf("encode: unsupported version %q", version)
	}

	dataType := opts.DataType
	if dataType == 0 {
		dataType = 'F'
	}
	width, bitsPer := 4, 32
	switch dataType {
	case 'F':
	case 'D':
		width, bitsPer = 8, 64
	default:
		return nil, fmt.Errorf("encode: unsupported data type %q", dataType)
	}

	meta := map[string]string{
		"$BYTEORD":       byteOrderLE,
		"$DATATYPE":      string(dataType),
		"$MODE":          modeList,
		"$NEXTDATA":      "0",
		"$PAR":           strconv.Itoa(events.Cols()),
		"$TOT":           strconv.Itoa(events.Rows()),
		"$BEGINANALYSIS": "0",
		"$ENDANALYSIS":   "0",
		"$BEGINSTEXT":    "0",
		"$ENDSTEXT":      "0",
	}
	for k, v := range opts.Extra {
		meta[strings.ToUpper(k)] = v
	}
	for i, ch := range channels {
		n := i + 1
		if ch.ShortName != "" {
			meta[fmt.Sprintf("$P%dN", n)] = ch.ShortName
		}
		if ch.LongName != "" {
			meta[fmt.Sprintf("$P%dS", n)] = ch.LongName
		}
		r := ch.Range
		if r <= 0 {
			r = defaultRange
		}
		meta[fmt.Sprintf("$P%dB", n)] = strconv.Itoa(bitsPer)
		meta[fmt.Sprintf("$P%dE", n)] = "0,0"
		meta[fmt.Sprintf("$P%dR", n)] = strconv.FormatFloat(r, 'f', -1, 64)
	}

	dataLen := int64(events.Rows() * events.Cols() * width)
	textStart := int64(HeaderSize)

	// $BEGINDATA/$ENDDATA live inside the text they offset, so iterate until
	// the text length stops changing.
	var text []byte
	var dataStart, dataEnd int64
	for i := 0; i < 4; i++ {
		text = encodeText(meta)
		dataStart = textStart + int64(len(text))
		dataEnd = dataStart + dataLen - 1
		if dataLen == 0 {
			dataStart, dataEnd = 0, 0
		}
		begin, end := strconv.FormatInt(dataStart, 10), strconv.FormatInt(dataEnd, 10)
		if meta["$BEGINDATA"] == begin && meta["$ENDDATA"] == end {
			break
		}
		meta["$BEGINDATA"], meta["$ENDDATA"] = begin, end
	}

	var buf bytes.Buffer
	buf.Grow(int(textStart) + len(text) + int(dataLen))
	hdrData := [2]int64{dataStart, dataEnd}
	if dataEnd > maxHeaderOff {
		hdrData = [2]int64{0, 0}
	}
	fmt.Fprintf(&buf, "%-6s    %8d%8d%8d%8d%8d%8d",
		version, textStart, textStart+int64(len(text))-1, hdrData[0], hdrData[1], 0, 0)
	buf.Write(text)

	scratch := make([]byte, width)
	for r := 0; r < events.Rows(); r++ {
		for _, v := range events.Row(r) {
			if width == 4 {
				binary.LittleEndian.PutUint32(scratch, math.Float32bits(float32(v)))
			} else {
				binary.LittleEndian.PutUint64(scratch, math.Float64bits(v))
			}
			buf.Write(scratch)
		}
	}
	return buf.Bytes(), nil
}

func encodeText(meta map[string]string) []byte {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := string(defaultDelim)
	escape := strings.NewReplacer(d, d+d)

	var b strings.Builder
	b.WriteString(d)
	for _, k := range keys {
		b.WriteString(escape.Replace(k))
		b.WriteString(d)
		v := meta[k]
		if v == "" {
			v = " " // an empty value would read back as an escaped delimiter
		}
		b.WriteString(escape.Replace(v))
		b.WriteString(d)
	}
	return []byte(b.String())
}
