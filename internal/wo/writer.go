package wo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/canteradb/cantable/internal/rowio"
	"github.com/canteradb/cantable/internal/sortbuilder"
)

// indexAlignment is the block size rows are padded to before the tail hash
// index begins.
const indexAlignment = 4096

// maxEntrySize is the largest combined key+value size a row can hold. This
// mirrors the original format's "entry does not fit a block" limit; larger
// entries need a dedicated-block extension this package does not implement,
// so they are rejected with ErrEntryTooLarge rather than silently accepted
// and later failing to round-trip.
const maxEntrySize = 8 * 1024 * 1024

// WriteOptions controls how Build finalizes a table.
type WriteOptions struct {
	// Mode is the file mode the finished table is chmod'd to.
	Mode os.FileMode
	// NoFsync skips the final fsync of the renamed file.
	NoFsync bool
	// Compression selects the codec values are stored under. The default,
	// CompressionNone, writes every value verbatim.
	Compression uint8
	// CompressionLevel is advisory and only meaningful when Compression is
	// CompressionZstd.
	CompressionLevel uint8
}

func (o WriteOptions) norm() WriteOptions {
	if o.Mode == 0 {
		o.Mode = 0o644
	}
	return o
}

// Build drains b (already Sort-ed) into a new write-once table at path,
// using the mkstemp-rename-fsync sequence: a temp file next to path is
// created and populated, chmod'd, renamed over path, and (unless
// opts.NoFsync) fsync'd. The temp file is unlinked on any error.
func Build(path string, b *sortbuilder.Builder, opts WriteOptions) (err error) {
	opts = opts.norm()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, fmt.Sprintf("%s.tmp.%d.*", filepath.Base(path), os.Getpid()))
	if err != nil {
		return fmt.Errorf("wo: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var enc *zstd.Encoder
	if opts.Compression == CompressionZstd {
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(opts.CompressionLevel)))
		if err != nil {
			return fmt.Errorf("wo: creating zstd encoder: %w", err)
		}
		defer enc.Close()
	}

	rowOffsets, indexOffset, err := writeRows(tmp, b, enc)
	if err != nil {
		return err
	}

	if err := writeIndex(tmp, b, rowOffsets, indexOffset, CurrentMajorVersion); err != nil {
		return err
	}

	header := Header{
		Magic:            Magic,
		MajorVersion:     CurrentMajorVersion,
		Flags:            FlagAscending,
		Compression:      opts.Compression,
		CompressionLevel: opts.CompressionLevel,
		IndexOffset:      indexOffset,
	}
	hdrBytes := header.Marshal()
	if _, err := tmp.WriteAt(hdrBytes[:], 0); err != nil {
		return fmt.Errorf("wo: writing header: %w", err)
	}

	if err := tmp.Chmod(opts.Mode); err != nil {
		return fmt.Errorf("wo: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("wo: renaming into place: %w", err)
	}
	if !opts.NoFsync {
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("wo: syncing table file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wo: closing table file: %w", err)
	}

	return nil
}

// writeRows writes the placeholder header and every sorted row, compressing
// each value with enc if non-nil. It returns the absolute file offset of
// each row (parallel to b.Entries()) and the 4KiB-aligned offset the hash
// index begins at.
func writeRows(w io.WriterAt, b *sortbuilder.Builder, enc *zstd.Encoder) (rowOffsets []uint64, indexOffset uint64, err error) {
	var hdr [HeaderSize]byte
	if _, err := w.WriteAt(hdr[:], 0); err != nil {
		return nil, 0, fmt.Errorf("wo: writing placeholder header: %w", err)
	}

	entries := b.Entries()
	rowOffsets = make([]uint64, len(entries))

	offset := uint64(HeaderSize)
	var scratch, compressed []byte
	for i, e := range entries {
		key, value, err := b.ReadAt(e)
		if err != nil {
			return nil, 0, err
		}
		if enc != nil {
			compressed = enc.EncodeAll(value, compressed[:0])
			value = compressed
		}
		if uint64(len(key))+uint64(len(value)) > maxEntrySize {
			return nil, 0, fmt.Errorf("%w: key %d bytes, value %d bytes", ErrEntryTooLarge, len(key), len(value))
		}

		scratch, err = rowio.AppendRow(scratch[:0], key, value)
		if err != nil {
			return nil, 0, fmt.Errorf("wo: framing row: %w", err)
		}

		rowOffsets[i] = offset
		if _, err := w.WriteAt(scratch, int64(offset)); err != nil {
			return nil, 0, fmt.Errorf("wo: writing row at %d: %w", offset, err)
		}
		offset += uint64(len(scratch))
	}

	// A single zero byte terminates the row region, per the on-disk framing.
	if _, err := w.WriteAt([]byte{0}, int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("wo: writing end-of-rows sentinel: %w", err)
	}
	offset++

	indexOffset = (offset + indexAlignment - 1) &^ (indexAlignment - 1)
	return rowOffsets, indexOffset, nil
}

// indexSlotCount picks a hash-index slot count for n entries: the smallest
// power of two greater than 2n, so the index always keeps empty slots.
func indexSlotCount(n int) uint64 {
	min := uint64(2*n + 1)
	size := uint64(1)
	for size < min {
		size <<= 1
	}
	return size
}

// writeIndex builds and writes the open-addressed hash index for the rows
// already written at rowOffsets. Tables built by this package always use
// CurrentMajorVersion, so the index is always populated with farm-hash
// slots resolved by linear probing (Prober reduces to pure linear probing
// for majorVersion >= 3).
func writeIndex(w io.WriterAt, b *sortbuilder.Builder, rowOffsets []uint64, indexOffset uint64, majorVersion uint8) error {
	entries := b.Entries()
	slotCount := indexSlotCount(len(entries))
	width := EntryWidth(majorVersion, indexOffset)

	slots := make([]byte, slotCount*uint64(width))

	for i, e := range entries {
		key, _, err := b.ReadAt(e)
		if err != nil {
			return err
		}

		hash := Hash(majorVersion, key)
		p := NewProber(majorVersion, slotCount, hash)
		for {
			slot := p.Slot()
			if slotEmpty(slots, slot, width) {
				putSlot(slots, slot, width, rowOffsets[i])
				break
			}
			p.Advance()
		}
	}

	if _, err := w.WriteAt(slots, int64(indexOffset)); err != nil {
		return fmt.Errorf("wo: writing index: %w", err)
	}
	return nil
}

// zstdLevel maps the header's advisory 0-255 compression_level onto zstd's
// four speed tiers.
func zstdLevel(level uint8) zstd.EncoderLevel {
	switch {
	case level == 0:
		return zstd.SpeedDefault
	case level < 64:
		return zstd.SpeedFastest
	case level < 192:
		return zstd.SpeedDefault
	case level < 250:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func slotEmpty(slots []byte, slot uint64, width int) bool {
	base := slot * uint64(width)
	for i := 0; i < width; i++ {
		if slots[base+uint64(i)] != 0 {
			return false
		}
	}
	return true
}

func putSlot(slots []byte, slot uint64, width int, value uint64) {
	base := slot * uint64(width)
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(slots[base:base+2], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(slots[base:base+4], uint32(value))
	default:
		binary.LittleEndian.PutUint64(slots[base:base+8], value)
	}
}
