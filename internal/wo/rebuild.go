package wo

import (
	"bytes"
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/canteradb/cantable/internal/mmap"
	"github.com/canteradb/cantable/internal/rowio"
)

// RebuildIndex adds a hash index to a write-once file that was produced
// with rows but no index (index_offset == 0): a full sequential scan over
// the row region, followed by positional writes of the index and a
// rewritten header. This is the legacy path for externally-produced row
// data; tables built with Build never need it. The scan mmaps the file
// read-only and hints madvise(SEQUENTIAL); madvise(DONTNEED) is applied to
// pages as the scan moves past them to bound resident memory, and the
// index itself is written through pwrite-style positional writes rather
// than a writable mapping.
func RebuildIndex(path string) error {
	m, err := mmap.Open(path)
	if err != nil {
		return fmt.Errorf("wo: opening %s for rebuild: %w", path, err)
	}
	defer m.Close()

	h, err := ParseHeader(m.Data())
	if err != nil {
		return err
	}
	if h.IndexOffset != 0 {
		return nil
	}

	data := m.Data()
	_ = m.Advise(HeaderSize, len(data)-HeaderSize, mmap.AccessSequential)

	type hit struct {
		hash   uint64
		offset uint64
	}

	var hits []hit
	claimed := roaring.New()
	ascending := true
	var prevKey []byte

	const dontNeedWindow = 16 * 1024 * 1024
	lastAdvised := HeaderSize

	offset := uint64(HeaderSize)
	for {
		if offset >= uint64(len(data)) {
			break
		}
		key, _, n, ok, err := rowio.ReadRow(data[offset:])
		if err != nil {
			return fmt.Errorf("wo: scanning row at %d: %w", offset, err)
		}
		if !ok {
			break
		}

		if prevKey != nil && bytes.Compare(key, prevKey) < 0 {
			ascending = false
		}
		prevKey = append(prevKey[:0], key...)

		hits = append(hits, hit{hash: Hash(h.MajorVersion, key), offset: offset})

		offset += uint64(n)
		if int(offset)-lastAdvised > dontNeedWindow {
			_ = m.Advise(lastAdvised, int(offset)-lastAdvised, mmap.AccessDontNeed)
			lastAdvised = int(offset)
		}
	}
	offset++ // the terminating zero byte

	indexOffset := (offset + indexAlignment - 1) &^ (indexAlignment - 1)
	width := EntryWidth(h.MajorVersion, indexOffset)
	slotCount := indexSlotCount(len(hits))

	slots := make([]byte, slotCount*uint64(width))
	for _, ht := range hits {
		p := NewProber(h.MajorVersion, slotCount, ht.hash)
		for {
			slot := p.Slot()
			if !claimed.Contains(uint32(slot)) {
				claimed.Add(uint32(slot))
				putSlot(slots, slot, width, ht.offset)
				break
			}
			p.Advance()
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("wo: reopening %s read-write: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(slots, int64(indexOffset)); err != nil {
		return fmt.Errorf("wo: writing rebuilt index: %w", err)
	}

	h.IndexOffset = indexOffset
	if ascending {
		h.Flags |= FlagAscending
	}
	hdrBytes := h.Marshal()
	if _, err := f.WriteAt(hdrBytes[:], 0); err != nil {
		return fmt.Errorf("wo: rewriting header: %w", err)
	}

	return f.Sync()
}
