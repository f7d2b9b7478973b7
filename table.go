// Package cantable implements an immutable, sorted key-value table: rows
// are accumulated by a Builder in any order, externally sorted, and written
// once to an mmap-served file that a Table then serves as sequential scans
// or hash-indexed point lookups.
package cantable

import (
	"path/filepath"
)

// Flag is a runtime behavior toggle for a Builder or Table, distinct from
// the on-disk ASCENDING/DESCENDING header flags.
type Flag uint8

const (
	// FlagNoRelative makes Table.Offset/Seek report and accept raw
	// absolute file offsets instead of offsets relative to the start of
	// the row region.
	FlagNoRelative Flag = 1 << iota
	// FlagNoFsync skips the final fsync a Builder performs when writing
	// out its finished table.
	FlagNoFsync
)

// Builder accumulates (key, value) rows and, on Sync, externally sorts and
// writes them to a single immutable table file at path.
type Builder struct {
	path    string
	backend builderBackend
	closed  bool
}

// Create starts building a new table that will be written to path once
// Sync is called. The table is always built with DefaultBackend; there is
// no option to select another registered backend.
func Create(path string, opts ...BuilderOption) (*Builder, error) {
	var o builderOptions
	for _, opt := range opts {
		opt(&o)
	}
	o = o.norm()

	path, err := filepath.Abs(path)
	if err != nil {
		return nil, &IoError{Op: "filepath.Abs", Err: err}
	}

	backend, err := lookupBackend(DefaultBackend)
	if err != nil {
		return nil, err
	}
	bb, err := backend.create(path, o)
	if err != nil {
		return nil, err
	}

	return &Builder{path: path, backend: bb}, nil
}

// InsertRow appends one (key, value) row. Rows may be inserted in any
// order; Sync sorts them before writing the final table. InsertRow on a
// closed Builder returns ErrClosed.
func (b *Builder) InsertRow(key, value []byte) error {
	if b.closed {
		setLastError(b, ErrClosed)
		return ErrClosed
	}
	err := b.backend.insertRow(key, value)
	setLastError(b, err)
	return err
}

// Len returns the number of rows inserted so far.
func (b *Builder) Len() int {
	return b.backend.len()
}

// SetFlag applies a runtime behavior toggle. FlagNoFsync is meaningful on a
// Builder; FlagNoRelative is ignored here (it only affects Table).
func (b *Builder) SetFlag(flag Flag) {
	if flag&FlagNoFsync != 0 {
		b.backend.setNoFsync(true)
	}
}

// Sync sorts the accumulated rows and writes the finished table to path,
// via a temp-file-then-rename so readers never observe a partial file. The
// Builder is unusable for further inserts afterward; callers should Open
// the resulting table to read it back.
func (b *Builder) Sync() error {
	if b.closed {
		setLastError(b, ErrClosed)
		return ErrClosed
	}
	err := b.backend.sync(b.path)
	setLastError(b, err)
	return err
}

// Close releases the Builder's temporary resources. It is safe to call
// after Sync, and safe to call more than once.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.backend.close()
}

// Table is a read-only, immutable view of a finished table file.
type Table struct {
	backend    tableBackend
	noRelative bool
	closed     bool
}

// Open opens the table file at path using DefaultBackend.
func Open(path string, opts ...TableOption) (*Table, error) {
	return OpenBackend(DefaultBackend, path, opts...)
}

// OpenBackend opens the table file at path using the backend registered
// under name.
func OpenBackend(name, path string, opts ...TableOption) (*Table, error) {
	var o tableOptions
	for _, opt := range opts {
		opt(&o)
	}
	o = o.norm()

	backend, err := lookupBackend(name)
	if err != nil {
		return nil, err
	}
	tb, err := backend.open(path, o)
	if err != nil {
		return nil, err
	}

	return &Table{backend: tb, noRelative: o.noRelative}, nil
}

// IsSorted reports whether the table's rows are stored in ascending key
// order. SeekToKey uses the hash index either way; on a sorted table it
// also narrows the range of row offsets it still has to probe.
func (t *Table) IsSorted() bool {
	return t.backend.isAscending()
}

// SetFlag applies a runtime behavior toggle. FlagNoRelative switches Offset
// and Seek to raw absolute file offsets; FlagNoFsync is ignored here (it
// only affects Builder).
func (t *Table) SetFlag(flag Flag) {
	if flag&FlagNoRelative != 0 {
		t.noRelative = true
	}
}

// toRelative/toAbsolute translate between the public offset space (relative
// to the start of the row region, by default) and the backend's raw
// absolute file offsets.
func (t *Table) toRelative(abs uint64) uint64 {
	if t.noRelative {
		return abs
	}
	return abs - t.backend.headerSize()
}

func (t *Table) toAbsolute(rel uint64) uint64 {
	if t.noRelative {
		return rel
	}
	return rel + t.backend.headerSize()
}

// SeekToFirst positions the cursor at the first row.
func (t *Table) SeekToFirst() {
	t.backend.seekToFirst()
}

// Seek positions the cursor at an offset previously returned by Offset.
func (t *Table) Seek(offset uint64) error {
	if t.closed {
		setLastError(t, ErrClosed)
		return ErrClosed
	}
	err := t.backend.seek(t.toAbsolute(offset))
	setLastError(t, err)
	return err
}

// SeekToKey positions the cursor at the row whose key equals key, using the
// table's hash index. It returns found=false and leaves the cursor
// unchanged if no such row exists.
func (t *Table) SeekToKey(key []byte) (found bool, err error) {
	if t.closed {
		setLastError(t, ErrClosed)
		return false, ErrClosed
	}
	found, err = t.backend.seekToKey(key)
	setLastError(t, err)
	return found, err
}

// ReadRow reads the row at the cursor and advances past it. ok is false,
// with a nil error, once the cursor reaches the end of the row region.
func (t *Table) ReadRow() (key, value []byte, ok bool, err error) {
	if t.closed {
		setLastError(t, ErrClosed)
		return nil, nil, false, ErrClosed
	}
	key, value, ok, err = t.backend.readRow()
	setLastError(t, err)
	return key, value, ok, err
}

// Offset returns the cursor's current position, suitable for a later Seek.
func (t *Table) Offset() uint64 {
	return t.toRelative(t.backend.offset())
}

// Close releases the table's underlying mapping. It is safe to call more
// than once.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.backend.close()
}
