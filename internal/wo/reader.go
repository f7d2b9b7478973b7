package wo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/canteradb/cantable/internal/mmap"
	"github.com/canteradb/cantable/internal/rowio"
)

// Reader is a read-only, mmap-backed view of a finalized write-once table.
type Reader struct {
	m      *mmap.Mapping
	header Header
	dec    *zstd.Decoder

	indexSlotCount uint64
	entryWidth     int

	offset uint64
}

// Open mmaps the table at path and validates its header.
func Open(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wo: opening %s: %w", path, err)
	}

	h, err := ParseHeader(m.Data())
	if err != nil {
		m.Close()
		return nil, err
	}
	if h.Compression != CompressionNone && h.Compression != CompressionZstd {
		m.Close()
		return nil, fmt.Errorf("%w: codec id %d", ErrUnsupportedCompression, h.Compression)
	}
	if h.IndexOffset > uint64(m.Len()) {
		m.Close()
		return nil, ErrIndexOutOfBounds
	}

	width := EntryWidth(h.MajorVersion, h.IndexOffset)
	indexBytes := uint64(m.Len()) - h.IndexOffset
	if indexBytes%uint64(width) != 0 {
		m.Close()
		return nil, ErrBadIndexSize
	}

	r := &Reader{
		m:              m,
		header:         h,
		indexSlotCount: indexBytes / uint64(width),
		entryWidth:     width,
		offset:         HeaderSize,
	}

	if h.Compression == CompressionZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("wo: creating zstd decoder: %w", err)
		}
		r.dec = dec
	}

	if err := m.Advise(int(h.IndexOffset), int(indexBytes), mmap.AccessWillNeed); err != nil {
		// advisory only; a failure here never invalidates the mapping.
		_ = err
	}

	return r, nil
}

// Close releases the underlying mapping.
func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return r.m.Close()
}

// Header returns the table's parsed header.
func (r *Reader) Header() Header { return r.header }

// IsAscending reports whether the ASCENDING flag is set.
func (r *Reader) IsAscending() bool { return r.header.IsAscending() }

// Offset returns the reader's current cursor, an absolute byte offset into
// the row region.
func (r *Reader) Offset() uint64 { return r.offset }

// SeekToFirst positions the cursor at the first row.
func (r *Reader) SeekToFirst() { r.offset = HeaderSize }

// Seek positions the cursor at an arbitrary row-region offset previously
// returned by Offset. Offsets outside [HeaderSize, index_offset] are
// rejected.
func (r *Reader) Seek(offset uint64) error {
	if offset < HeaderSize || offset > r.header.IndexOffset {
		return ErrSeekOutOfRange
	}
	r.offset = offset
	return nil
}

// ReadRow reads the row at the cursor and advances past it. It returns
// ok=false, err=nil at the end-of-rows sentinel.
func (r *Reader) ReadRow() (key, value []byte, ok bool, err error) {
	data := r.m.Data()
	if r.offset >= r.header.IndexOffset || r.offset >= uint64(len(data)) {
		return nil, nil, false, nil
	}

	key, value, n, ok, err := rowio.ReadRow(data[r.offset:])
	if err != nil {
		return nil, nil, false, fmt.Errorf("wo: reading row at %d: %w", r.offset, err)
	}
	if !ok {
		return nil, nil, false, nil
	}
	r.offset += uint64(n)

	if r.dec != nil {
		value, err = r.dec.DecodeAll(value, nil)
		if err != nil {
			return nil, nil, false, fmt.Errorf("wo: decompressing value at %d: %w", r.offset, err)
		}
	}

	return key, value, true, nil
}

// slotValue returns the raw row offset stored at hash-index slot i, or 0 if
// the slot has never been written (the sentinel: row offset 0 always falls
// inside the header, never a row).
func (r *Reader) slotValue(i uint64) uint64 {
	data := r.m.Data()
	base := r.header.IndexOffset + i*uint64(r.entryWidth)
	switch r.entryWidth {
	case 2:
		return uint64(binary.LittleEndian.Uint16(data[base : base+2]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data[base : base+4]))
	default:
		return binary.LittleEndian.Uint64(data[base : base+8])
	}
}

// SeekToKey positions the cursor at the row whose key equals key and
// returns found=true, or leaves the cursor unchanged and returns
// found=false if no such row exists. Probing follows Prober: linear for
// major_version >= 3, Fibonacci (seed 2,1) below that.
//
// On an ASCENDING table, a window [min, max] of row offsets the match must
// fall within (if it exists at all) narrows on every miss: a caller key
// less than a candidate's on-disk key rules out everything at or after that
// candidate's offset, and vice versa. Collisions whose stored offset has
// fallen outside the window are skipped without reading their row.
// Unsorted tables (neither ASCENDING nor DESCENDING set) get no ordering
// guarantee from their row offsets, so narrowing is skipped entirely.
func (r *Reader) SeekToKey(key []byte) (found bool, err error) {
	hash := Hash(r.header.MajorVersion, key)
	p := NewProber(r.header.MajorVersion, r.indexSlotCount, hash)

	narrow := r.header.IsAscending()
	lo, hi := uint64(0), uint64(r.m.Len())

	for probes := uint64(0); probes < r.indexSlotCount; probes++ {
		rowOffset := r.slotValue(p.Slot())
		if rowOffset == 0 {
			return false, nil
		}

		if narrow && (rowOffset < lo || rowOffset > hi) {
			p.Advance()
			continue
		}

		gotKey, _, _, ok, err := rowio.ReadRow(r.m.Data()[rowOffset:])
		if err != nil {
			return false, fmt.Errorf("wo: reading candidate row at %d: %w", rowOffset, err)
		}
		if ok {
			switch {
			case bytes.Equal(gotKey, key):
				r.offset = rowOffset
				return true, nil
			case narrow && bytes.Compare(key, gotKey) < 0:
				hi = rowOffset
			case narrow:
				lo = rowOffset
			}
		}

		p.Advance()
	}

	return false, nil
}
