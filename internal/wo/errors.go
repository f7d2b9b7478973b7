package wo

import "errors"

var (
	// ErrBadMagic is returned when a file's magic bytes don't match Magic.
	ErrBadMagic = errors.New("wo: bad magic bytes")
	// ErrUnsupportedVersion is returned when major_version is out of range.
	ErrUnsupportedVersion = errors.New("wo: unsupported major version")
	// ErrIndexOutOfBounds is returned when index_offset doesn't fit in the file.
	ErrIndexOutOfBounds = errors.New("wo: index_offset out of bounds")
	// ErrBadIndexSize is returned when the tail isn't an integral number of slots.
	ErrBadIndexSize = errors.New("wo: index region size not a multiple of entry width")
	// ErrSeekOutOfRange is returned when Seek targets a position outside
	// [HeaderSize, index_offset].
	ErrSeekOutOfRange = errors.New("wo: seek outside row region")
	// ErrEntryTooLarge is the recognized-but-unimplemented "large entry"
	// branch: entries whose framed size would exceed a future dedicated-block
	// ceiling are rejected cleanly rather than silently truncated.
	ErrEntryTooLarge = errors.New("wo: entry does not fit a block")
	// ErrReadOnly reports a write against a table that has already been
	// finalized once; the root package's write-once builder returns it for
	// an insert or sync after a successful sync.
	ErrReadOnly = errors.New("wo: table is read-only")
	// ErrUnsupportedCompression is returned when a table's compression id is unknown.
	ErrUnsupportedCompression = errors.New("wo: unsupported compression codec")
)
