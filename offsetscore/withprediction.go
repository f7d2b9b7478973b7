package offsetscore

import (
	"encoding/binary"
	"math"

	"github.com/canteradb/cantable/internal/varint"
)

// wpOffsets decodes the count and per-entry offsets shared by parse, count
// and max-offset.
func wpOffsets(body []byte) (offsets []uint64, pos int, err error) {
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

	offsets = make([]uint64, count)
	offsets[0] = firstOffset

	var steps []uint64
	if count > 1 {
		stepCount, err := decodeVarint(body, &pos)
		if err != nil {
			return nil, 0, err
		}
		if stepCount > 0 {
			steps = make([]uint64, stepCount)
			var prev uint64
			for i := range steps {
				d, err := decodeVarint(body, &pos)
				if err != nil {
					return nil, 0, err
				}
				steps[i] = d + prev
				prev = steps[i]
			}
		}
	}

	if len(steps) > 0 {
		for i := uint64(1); i < count; i++ {
			idx, err := decodeVarint(body, &pos)
			if err != nil {
				return nil, 0, err
			}
			if idx >= uint64(len(steps)) {
				return nil, 0, ErrTruncated
			}
			offsets[i] = offsets[i-1] + steps[idx]
		}
	} else {
		for i := uint64(1); i < count; i++ {
			d, err := decodeVarint(body, &pos)
			if err != nil {
				return nil, 0, err
			}
			offsets[i] = offsets[i-1] + d
		}
	}

	return offsets, pos, nil
}

// wpProbMask reads the (count+7)/8-byte RLE-coded presence mask that marks
// which entries carry percentile bands, returning the mask and the
// position just past it.
func wpProbMask(body []byte, pos int, count int) ([]byte, int, error) {
	maskLen := (count + 7) / 8
	if pos >= len(body) {
		return nil, 0, ErrTruncated
	}
	dec := newRLEDecoder(body[pos:])
	mask := make([]byte, maskLen)
	for i := range mask {
		mask[i] = dec.readByte()
	}
	return mask, len(body) - len(dec.remaining()), nil
}

func parseWithPrediction(body []byte, dst []Entry) ([]Entry, int, error) {
	offsets, pos, err := wpOffsets(body)
	if err != nil {
		return dst, 0, err
	}
	count := len(offsets)
	if count == 0 {
		return dst, pos, nil
	}

	mask, pos, err := wpProbMask(body, pos, count)
	if err != nil {
		return dst, 0, err
	}

	entries := make([]Entry, count)
	for i, off := range offsets {
		entries[i].Offset = off

		if pos+4 > len(body) {
			return dst, 0, ErrTruncated
		}
		entries[i].Score = math.Float32frombits(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4

		if mask[i>>3]&(1<<(uint(i)&7)) != 0 {
			if pos+16 > len(body) {
				return dst, 0, ErrTruncated
			}
			entries[i].HasPercentiles = true
			entries[i].Pct5 = math.Float32frombits(binary.LittleEndian.Uint32(body[pos : pos+4]))
			entries[i].Pct25 = math.Float32frombits(binary.LittleEndian.Uint32(body[pos+4 : pos+8]))
			entries[i].Pct75 = math.Float32frombits(binary.LittleEndian.Uint32(body[pos+8 : pos+12]))
			entries[i].Pct95 = math.Float32frombits(binary.LittleEndian.Uint32(body[pos+12 : pos+16]))
			pos += 16
		}
	}

	return append(dst, entries...), pos, nil
}

func countWithPrediction(body []byte) (int, int, error) {
	offsets, pos, err := wpOffsets(body)
	if err != nil {
		return 0, 0, err
	}
	count := len(offsets)
	if count == 0 {
		return 0, pos, nil
	}

	mask, pos, err := wpProbMask(body, pos, count)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < count; i++ {
		pos += 4
		if mask[i>>3]&(1<<(uint(i)&7)) != 0 {
			pos += 16
		}
	}
	if pos > len(body) {
		return 0, 0, ErrTruncated
	}

	return count, pos, nil
}

func maxOffsetWithPrediction(body []byte) (uint64, int, error) {
	offsets, pos, err := wpOffsets(body)
	if err != nil {
		return 0, 0, err
	}
	if len(offsets) == 0 {
		return 0, pos, nil
	}

	mask, pos, err := wpProbMask(body, pos, len(offsets))
	if err != nil {
		return 0, 0, err
	}

	for i := range offsets {
		pos += 4
		if mask[i>>3]&(1<<(uint(i)&7)) != 0 {
			pos += 16
		}
	}
	if pos > len(body) {
		return 0, 0, ErrTruncated
	}

	return offsets[len(offsets)-1], pos, nil
}

// EncodeWithPrediction appends a WITH_PREDICTION-tagged block encoding
// entries to dst. Offsets must be non-decreasing. Steps are stored as raw
// per-entry deltas (an empty step table), which is always valid; entries
// whose HasPercentiles is set carry their four percentile bands.
func EncodeWithPrediction(dst []byte, entries []Entry) []byte {
	dst = append(dst, WithPredictionTag)
	dst = varint.Append(dst, uint64(len(entries)))
	if len(entries) == 0 {
		return dst
	}

	dst = varint.Append(dst, entries[0].Offset)

	if len(entries) > 1 {
		dst = varint.Append(dst, 0) // step_count: no shared step table
		for i := 1; i < len(entries); i++ {
			dst = varint.Append(dst, entries[i].Offset-entries[i-1].Offset)
		}
	}

	maskLen := (len(entries) + 7) / 8
	mask := make([]byte, maskLen)
	for i, e := range entries {
		if e.HasPercentiles {
			mask[i>>3] |= 1 << (uint(i) & 7)
		}
	}
	dst = rleEncode(dst, mask)

	var buf [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(e.Score))
		dst = append(dst, buf[:]...)
		if e.HasPercentiles {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(e.Pct5))
			dst = append(dst, buf[:]...)
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(e.Pct25))
			dst = append(dst, buf[:]...)
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(e.Pct75))
			dst = append(dst, buf[:]...)
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(e.Pct95))
			dst = append(dst, buf[:]...)
		}
	}

	return dst
}
