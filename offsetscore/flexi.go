package offsetscore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/canteradb/cantable/internal/varint"
)

// decodeVarint reads one varint from data[pos:] and advances pos past it.
func decodeVarint(data []byte, pos *int) (uint64, error) {
	if *pos >= len(data) {
		return 0, ErrTruncated
	}
	v, n, err := varint.Decode(data[*pos:])
	if err != nil {
		return 0, fmt.Errorf("offsetscore: %w", err)
	}
	*pos += n
	return v, nil
}

// flexiOffsets decodes the count and per-entry offsets shared by parse,
// count and max-offset, returning the decoded offsets and the position just
// past the step encoding.
func flexiOffsets(body []byte) (offsets []uint64, pos int, err error) {
	count, err := decodeVarint(body, &pos)
	if err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, pos, nil
	}

	firstOffset, err := decodeVarint(body, &pos)
	if err != nil {
		return nil, 0, err
	}
	stepGCD, err := decodeVarint(body, &pos)
	if err != nil {
		return nil, 0, err
	}

	offsets = make([]uint64, count)
	offsets[0] = firstOffset

	if stepGCD == 0 {
		for i := uint64(1); i < count; i++ {
			offsets[i] = offsets[0]
		}
		return offsets, pos, nil
	}

	minStep, err := decodeVarint(body, &pos)
	if err != nil {
		return nil, 0, err
	}
	maxStepDelta, err := decodeVarint(body, &pos)
	if err != nil {
		return nil, 0, err
	}
	maxStep := minStep + maxStepDelta

	switch {
	case minStep == maxStep:
		for i := uint64(1); i < count; i++ {
			offsets[i] = offsets[i-1] + stepGCD*minStep
		}

	case maxStep-minStep <= 0x0f:
		if pos >= len(body) {
			return nil, 0, ErrTruncated
		}
		dec := newRLEDecoder(body[pos:])
		for i := uint64(1); i < count; i += 2 {
			tmp := dec.readByte()
			offsets[i] = offsets[i-1] + stepGCD*(minStep+uint64(tmp&0x0f))
			if i+1 < count {
				offsets[i+1] = offsets[i] + stepGCD*(minStep+uint64(tmp>>4))
			}
		}
		pos = len(body) - len(dec.remaining())

	case maxStep-minStep <= 0xff:
		if pos >= len(body) {
			return nil, 0, ErrTruncated
		}
		dec := newRLEDecoder(body[pos:])
		for i := uint64(1); i < count; i++ {
			tmp := dec.readByte()
			offsets[i] = offsets[i-1] + stepGCD*(minStep+uint64(tmp))
		}
		pos = len(body) - len(dec.remaining())

	default:
		for i := uint64(1); i < count; i++ {
			d, err := decodeVarint(body, &pos)
			if err != nil {
				return nil, 0, err
			}
			offsets[i] = offsets[i-1] + stepGCD*(minStep+d)
		}
	}

	return offsets, pos, nil
}

func parseFlexi(body []byte, dst []Entry) ([]Entry, int, error) {
	offsets, pos, err := flexiOffsets(body)
	if err != nil {
		return dst, 0, err
	}
	count := len(offsets)
	if count == 0 {
		return dst, pos, nil
	}

	entries := make([]Entry, count)
	for i, off := range offsets {
		entries[i].Offset = off
	}

	if pos >= len(body) {
		return dst, 0, ErrTruncated
	}
	scoreFlags := body[pos]
	pos++

	var minScore uint64
	if scoreFlags&0x03 != 0 {
		minScore, err = decodeVarint(body, &pos)
		if err != nil {
			return dst, 0, err
		}
	}

	parseScoreCount := count
	if scoreFlags&0x80 != 0 {
		parseScoreCount = 1
	}

	switch scoreFlags & 0x03 {
	case 0x00:
		for i := 0; i < parseScoreCount; i++ {
			if pos+4 > len(body) {
				return dst, 0, ErrTruncated
			}
			entries[i].Score = math.Float32frombits(binary.LittleEndian.Uint32(body[pos : pos+4]))
			pos += 4
		}
	case 0x01:
		for i := 0; i < parseScoreCount; i++ {
			if pos+1 > len(body) {
				return dst, 0, ErrTruncated
			}
			entries[i].Score = float32(minScore + uint64(body[pos]))
			pos++
		}
	case 0x02:
		for i := 0; i < parseScoreCount; i++ {
			if pos+2 > len(body) {
				return dst, 0, ErrTruncated
			}
			v := uint64(body[pos])<<8 | uint64(body[pos+1])
			entries[i].Score = float32(minScore + v)
			pos += 2
		}
	case 0x03:
		for i := 0; i < parseScoreCount; i++ {
			if pos+3 > len(body) {
				return dst, 0, ErrTruncated
			}
			v := uint64(body[pos])<<16 | uint64(body[pos+1])<<8 | uint64(body[pos+2])
			entries[i].Score = float32(minScore + v)
			pos += 3
		}
	}

	for i := parseScoreCount; i < count; i++ {
		entries[i].Score = entries[0].Score
	}

	return append(dst, entries...), pos, nil
}

func countFlexi(body []byte) (int, int, error) {
	// countFlexi still has to walk the step and score encodings to find
	// where the block ends; it decodes the offsets but never the scores.
	offsets, pos, err := flexiOffsets(body)
	if err != nil {
		return 0, 0, err
	}
	count := len(offsets)
	if count == 0 {
		return 0, pos, nil
	}

	if pos >= len(body) {
		return 0, 0, ErrTruncated
	}
	scoreFlags := body[pos]
	pos++

	if scoreFlags&0x03 != 0 {
		if _, err := decodeVarint(body, &pos); err != nil {
			return 0, 0, err
		}
	}

	parseScoreCount := count
	if scoreFlags&0x80 != 0 {
		parseScoreCount = 1
	}

	switch scoreFlags & 0x03 {
	case 0x00:
		pos += parseScoreCount * 4
	case 0x01:
		pos += parseScoreCount
	case 0x02:
		pos += parseScoreCount * 2
	case 0x03:
		pos += parseScoreCount * 3
	}
	if pos > len(body) {
		return 0, 0, ErrTruncated
	}

	return count, pos, nil
}

func maxOffsetFlexi(body []byte) (uint64, int, error) {
	offsets, pos, err := flexiOffsets(body)
	if err != nil {
		return 0, 0, err
	}
	if len(offsets) == 0 {
		return 0, pos, nil
	}

	if pos >= len(body) {
		return 0, 0, ErrTruncated
	}
	scoreFlags := body[pos]
	pos++

	if scoreFlags&0x03 != 0 {
		if _, err := decodeVarint(body, &pos); err != nil {
			return 0, 0, err
		}
	}

	parseScoreCount := len(offsets)
	if scoreFlags&0x80 != 0 {
		parseScoreCount = 1
	}

	switch scoreFlags & 0x03 {
	case 0x00:
		pos += parseScoreCount * 4
	case 0x01:
		pos += parseScoreCount
	case 0x02:
		pos += parseScoreCount * 2
	case 0x03:
		pos += parseScoreCount * 3
	}
	if pos > len(body) {
		return 0, 0, ErrTruncated
	}

	max := offsets[0]
	for _, o := range offsets {
		if o > max {
			max = o
		}
	}
	return max, pos, nil
}

// EncodeFlexi appends a FLEXI-tagged block encoding entries to dst. Offsets
// must be non-decreasing. The step encoding is chosen automatically: a
// uniform step when every gap is identical, 4-bit or 8-bit RLE-packed
// deltas when the gaps fit those ranges, and raw varint deltas otherwise.
// Scores are stored as raw float32s, broadcasting a single value when
// every entry shares the same score.
func EncodeFlexi(dst []byte, entries []Entry) []byte {
	dst = append(dst, FlexiTag)
	dst = varint.Append(dst, uint64(len(entries)))
	if len(entries) == 0 {
		return dst
	}

	dst = varint.Append(dst, entries[0].Offset)

	if len(entries) == 1 {
		dst = varint.Append(dst, 0) // step_gcd
	} else {
		steps := make([]uint64, len(entries)-1)
		for i := 1; i < len(entries); i++ {
			steps[i-1] = entries[i].Offset - entries[i-1].Offset
		}

		g := steps[0]
		for _, s := range steps[1:] {
			g = gcd(g, s)
		}
		if g == 0 {
			g = 1
		}

		normalized := make([]uint64, len(steps))
		minStep, maxStep := steps[0]/g, steps[0]/g
		for i, s := range steps {
			normalized[i] = s / g
			if normalized[i] < minStep {
				minStep = normalized[i]
			}
			if normalized[i] > maxStep {
				maxStep = normalized[i]
			}
		}

		dst = varint.Append(dst, g)
		dst = varint.Append(dst, minStep)
		dst = varint.Append(dst, maxStep-minStep)

		switch {
		case minStep == maxStep:
			// nothing further to encode; every step is minStep.

		case maxStep-minStep <= 0x0f:
			packed := make([]byte, 0, (len(normalized)+1)/2)
			for i := 0; i < len(normalized); i += 2 {
				lo := byte(normalized[i] - minStep)
				hi := byte(0)
				if i+1 < len(normalized) {
					hi = byte(normalized[i+1] - minStep)
				}
				packed = append(packed, lo|hi<<4)
			}
			dst = rleEncode(dst, packed)

		case maxStep-minStep <= 0xff:
			packed := make([]byte, len(normalized))
			for i, n := range normalized {
				packed[i] = byte(n - minStep)
			}
			dst = rleEncode(dst, packed)

		default:
			for _, n := range normalized {
				dst = varint.Append(dst, n-minStep)
			}
		}
	}

	dst = encodeFlexiScores(dst, entries)
	return dst
}

func encodeFlexiScores(dst []byte, entries []Entry) []byte {
	broadcast := true
	for _, e := range entries {
		if e.Score != entries[0].Score {
			broadcast = false
			break
		}
	}

	flags := byte(0x00) // raw f32
	if broadcast {
		flags |= 0x80
	}
	dst = append(dst, flags)

	n := len(entries)
	if broadcast {
		n = 1
	}
	for i := 0; i < n; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(entries[i].Score))
		dst = append(dst, buf[:]...)
	}
	return dst
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
