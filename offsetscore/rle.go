package offsetscore

// rleDecoder walks a byte-oriented run-length-encoded stream. A byte whose
// top two bits are both set (>= 0xc0) starts a run: its low six bits carry
// run_length-1, and the following byte is the repeated value. Any other
// byte is a literal occurring once. Values that happen to fall in
// [0xc0, 0xff] are therefore always wrapped in a (marker, value) pair by
// the encoder, even for a run of one, so the decoder never misreads a
// literal as a marker.
type rleDecoder struct {
	data []byte
	run  int
	last byte
}

func newRLEDecoder(data []byte) *rleDecoder {
	return &rleDecoder{data: data}
}

func (d *rleDecoder) readByte() byte {
	if d.run > 0 {
		d.run--
		return d.last
	}
	if d.data[0]&0xc0 == 0xc0 {
		d.run = int(d.data[0] & 0x3f)
		d.last = d.data[1]
		d.data = d.data[2:]
		return d.last
	}
	d.last = d.data[0]
	d.data = d.data[1:]
	return d.last
}

// remaining returns the unconsumed tail of the stream; callers must only
// use it once the run counter has drained to zero.
func (d *rleDecoder) remaining() []byte { return d.data }

// rleEncode appends values to dst through the same run-length scheme
// rleDecoder understands: runs of two or more identical bytes are packed
// as (marker, value), and so is any standalone byte >= 0xc0 (to keep it
// from being misread as a marker).
func rleEncode(dst []byte, values []byte) []byte {
	i := 0
	for i < len(values) {
		v := values[i]
		j := i + 1
		for j < len(values) && values[j] == v && j-i < 64 {
			j++
		}
		runLen := j - i
		if v >= 0xc0 || runLen >= 2 {
			dst = append(dst, 0xc0|byte(runLen-1), v)
		} else {
			dst = append(dst, v)
		}
		i = j
	}
	return dst
}
