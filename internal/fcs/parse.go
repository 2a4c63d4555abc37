package fcs

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// File layout constants.
const (
	HeaderSize   = 58         // version(6) + spaces(4) + 6 offsets × 8
	offsetWidth  = 8          // ASCII width of each header offset
	MaxFileSize  = 1 << 30    // Read refuses inputs above 1 GiB
	defaultRange = 262144.0   // $PnR written by Encode when a channel has none
	modeList     = "L"        // only list-mode data is supported
	byteOrderLE  = "1,2,3,4"  // $BYTEORD little-endian
	byteOrderBE  = "4,3,2,1"  // $BYTEORD big-endian
	signatureFCS = "FCS"      // every supported version starts with this
	defaultDelim = byte('/')  // delimiter written by Encode
	maxHeaderOff = 99_999_999 // largest offset that fits the header field
)

var supportedVersions = map[string]bool{
	"FCS2.0": true,
	"FCS3.0": true,
	"FCS3.1": true,
	"FCS3.2": true,
}

// Read buffers r completely (up to MaxFileSize) and parses it.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read scatter file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("scatter file exceeds %d bytes", MaxFileSize)
	}
	return Parse(data)
}

// Parse decodes a complete scatter file held in memory.
func Parse(data []byte) (*Document, error) {
	hdr, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	if hdr.TextStart < HeaderSize || hdr.TextEnd < hdr.TextStart || hdr.TextEnd >= int64(len(data)) {
		return nil, formatErrorf("metadata segment [%d,%d] outside file of %d bytes", hdr.TextStart, hdr.TextEnd, len(data))
	}
	meta, err := parseText(data[hdr.TextStart : hdr.TextEnd+1])
	if err != nil {
		return nil, err
	}

	if mode := meta["$MODE"]; mode != "" && mode != modeList {
		return nil, formatErrorf("unsupported $MODE %q", mode)
	}

	par, err := requiredInt(meta, "$PAR")
	if err != nil {
		return nil, err
	}
	tot, err := requiredInt(meta, "$TOT")
	if err != nil {
		return nil, err
	}

	// Every parameter needs its own keywords, so a $PAR larger than the
	// keyword count cannot describe real channels.
	if par > len(meta) {
		return nil, formatErrorf("$PAR %d exceeds the %d metadata keywords", par, len(meta))
	}

	channels := make([]Channel, par)
	for i := 0; i < par; i++ {
		n := i + 1
		short := meta[fmt.Sprintf("$P%dN", n)]
		long := meta[fmt.Sprintf("$P%dS", n)]
		ch := Channel{
			Index:     n,
			ShortName: short,
			LongName:  long,
			Name:      ResolveChannelName(n, short, long),
		}
		if b := meta[fmt.Sprintf("$P%dB", n)]; b != "" {
			if ch.Bits, err = strconv.Atoi(b); err != nil {
				return nil, formatErrorf("channel %d: invalid $P%dB %q", n, n, b)
			}
		}
		if r := meta[fmt.Sprintf("$P%dR", n)]; r != "" {
			if ch.Range, err = strconv.ParseFloat(r, 64); err != nil {
				return nil, formatErrorf("channel %d: invalid $P%dR %q", n, n, r)
			}
		}
		channels[i] = ch
	}

	dataStart, dataEnd := hdr.DataStart, hdr.DataEnd
	if dataStart == 0 && dataEnd == 0 {
		if dataStart, err = optionalInt64(meta, "$BEGINDATA"); err != nil {
			return nil, err
		}
		if dataEnd, err = optionalInt64(meta, "$ENDDATA"); err != nil {
			return nil, err
		}
		hdr.DataStart, hdr.DataEnd = dataStart, dataEnd
	}

	dec, err := newDecoder(meta, channels)
	if err != nil {
		return nil, err
	}

	required := requiredBytes(tot, par, dec.width)
	if required > 0 {
		available := int64(0)
		if dataStart >= HeaderSize && dataStart < int64(len(data)) {
			available = int64(len(data)) - dataStart
			if declared := dataEnd - dataStart + 1; dataEnd >= dataStart && declared < available {
				available = declared
			}
		}
		if available < required {
			return nil, &TruncatedDataError{Events: tot, Channels: par, Required: required, Available: available}
		}
	}
	values := make([]float64, tot*par)
	if required > 0 {
		dec.decode(data[dataStart:dataStart+required], values, par)
	}

	table, err := NewEventTable(tot, par, values)
	if err != nil {
		return nil, err
	}

	return &Document{
		Header:   hdr,
		Metadata: meta,
		Channels: channels,
		Events:   table,
	}, nil
}

func parseHeader(data []byte) (Header, error) {
	var hdr Header
	if len(data) < HeaderSize {
		return hdr, formatErrorf("file is %d bytes, shorter than the %d-byte header", len(data), HeaderSize)
	}
	sig := string(data[0:6])
	if !strings.HasPrefix(sig, signatureFCS) || !supportedVersions[sig] {
		return hdr, formatErrorf("unrecognized signature %q", sig)
	}
	if strings.TrimSpace(string(data[6:10])) != "" {
		return hdr, formatErrorf("malformed header padding %q", data[6:10])
	}
	hdr.Version = sig

	fields := make([]int64, 6)
	for i := range fields {
		start := 10 + i*offsetWidth
		raw := strings.TrimSpace(string(data[start : start+offsetWidth]))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return hdr, formatErrorf("header offset %d is not a number: %q", i, raw)
		}
		fields[i] = v
	}
	hdr.TextStart, hdr.TextEnd = fields[0], fields[1]
	hdr.DataStart, hdr.DataEnd = fields[2], fields[3]
	hdr.AnalysisStart, hdr.AnalysisEnd = fields[4], fields[5]
	return hdr, nil
}

// parseText splits the delimited metadata segment into upper-cased keys and
// trimmed values. A doubled delimiter is a literal delimiter character.
func parseText(seg []byte) (map[string]string, error) {
	if len(seg) < 2 {
		return nil, formatErrorf("metadata segment is empty")
	}
	delim := seg[0]

	var tokens []string
	var cur strings.Builder
	for i := 1; i < len(seg); i++ {
		c := seg[i]
		if c != delim {
			cur.WriteByte(c)
			continue
		}
		if i+1 < len(seg) && seg[i+1] == delim {
			cur.WriteByte(delim)
			i++
			continue
		}
		tokens = append(tokens, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}

	if len(tokens)%2 != 0 {
		return nil, formatErrorf("metadata segment has %d tokens, want key/value pairs", len(tokens))
	}

	meta := make(map[string]string, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		key := strings.ToUpper(strings.TrimSpace(tokens[i]))
		if key == "" {
			return nil, formatErrorf("empty metadata key at token %d", i)
		}
		meta[key] = strings.TrimSpace(tokens[i+1])
	}
	return meta, nil
}

// requiredBytes is events × channels × width, saturating at MaxInt64 so an
// inflated count reads as truncated data instead of wrapping.
func requiredBytes(events, channels, width int) int64 {
	if events == 0 || channels == 0 {
		return 0
	}
	e, c, w := int64(events), int64(channels), int64(width)
	if e > math.MaxInt64/w/c {
		return math.MaxInt64
	}
	return e * c * w
}

func requiredInt(meta map[string]string, key string) (int, error) {
	raw, ok := meta[key]
	if !ok {
		return 0, formatErrorf("missing required keyword %s", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, formatErrorf("keyword %s is not a count: %q", key, raw)
	}
	return v, nil
}

func optionalInt64(meta map[string]string, key string) (int64, error) {
	raw := meta[key]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, formatErrorf("keyword %s is not an offset: %q", key, raw)
	}
	return v, nil
}

// decoder converts raw data bytes to float64 according to $DATATYPE,
// $BYTEORD and the channel bit widths.
type decoder struct {
	kind  byte
	width int
	order binary.ByteOrder
	masks []uint64
}

func newDecoder(meta map[string]string, channels []Channel) (*decoder, error) {
	d := &decoder{}

	switch meta["$BYTEORD"] {
	case byteOrderLE, "1,2":
		d.order = binary.LittleEndian
	case byteOrderBE, "2,1":
		d.order = binary.BigEndian
	case "":
		return nil, formatErrorf("missing required keyword $BYTEORD")
	default:
		return nil, formatErrorf("unsupported $BYTEORD %q", meta["$BYTEORD"])
	}

	dt := strings.ToUpper(meta["$DATATYPE"])
	switch dt {
	case "F":
		d.kind, d.width = 'F', 4
	case "D":
		d.kind, d.width = 'D', 8
	case "I":
		d.kind = 'I'
		d.masks = make([]uint64, len(channels))
		for i, ch := range channels {
			if ch.Bits != 8 && ch.Bits != 16 && ch.Bits != 32 && ch.Bits != 64 {
				return nil, formatErrorf("channel %d: unsupported integer width %d", ch.Index, ch.Bits)
			}
			w := ch.Bits / 8
			if d.width == 0 {
				d.width = w
			} else if d.width != w {
				return nil, formatErrorf("mixed integer widths (%d and %d bytes) are not supported", d.width, w)
			}
			d.masks[i] = rangeMask(ch.Range, ch.Bits)
		}
		if d.width == 0 {
			d.width = 4
		}
	case "":
		return nil, formatErrorf("missing required keyword $DATATYPE")
	default:
		return nil, formatErrorf("unsupported $DATATYPE %q", dt)
	}
	return d, nil
}

// rangeMask returns the bit mask implied by $PnR: the smallest all-ones
// value covering range-1, capped at the stored width.
func rangeMask(r float64, width int) uint64 {
	full := uint64(math.MaxUint64)
	if width < 64 {
		full = (uint64(1) << uint(width)) - 1
	}
	if r <= 1 {
		return full
	}
	n := bits.Len64(uint64(r) - 1)
	if n >= width {
		return full
	}
	return (uint64(1) << uint(n)) - 1
}

func (d *decoder) decode(raw []byte, out []float64, cols int) {
	w := d.width
	for i := range out {
		b := raw[i*w : (i+1)*w]
		switch d.kind {
		case 'F':
			out[i] = float64(math.Float32frombits(d.order.Uint32(b)))
		case 'D':
			out[i] = math.Float64frombits(d.order.Uint64(b))
		default:
			var v uint64
			switch w {
			case 1:
				v = uint64(b[0])
			case 2:
				v = uint64(d.order.Uint16(b))
			case 4:
				v = uint64(d.order.Uint32(b))
			default:
				v = d.order.Uint64(b)
			}
			out[i] = float64(v & d.masks[i%cols])
		}
	}
}
