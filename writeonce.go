package cantable

import (
	"log/slog"
	"path/filepath"

	"github.com/canteradb/cantable/internal/sortbuilder"
	"github.com/canteradb/cantable/internal/wo"
)

// writeOnceBackend is the default Backend: an external-sort builder
// (internal/sortbuilder) draining into a mmap-served write-once table
// (internal/wo).
type writeOnceBackend struct{}

func (writeOnceBackend) create(path string, opts builderOptions) (builderBackend, error) {
	dir := filepath.Dir(path)
	sb, err := sortbuilder.New(dir)
	if err != nil {
		return nil, &IoError{Op: "create " + path, Err: err}
	}
	return &woBuilder{sb: sb, opts: opts}, nil
}

func (writeOnceBackend) open(path string, opts tableOptions) (tableBackend, error) {
	r, err := wo.Open(path)
	if err != nil {
		return nil, wrapBackendError("open", err)
	}
	opts.logger.Debug("opened table", "path", path, "ascending", r.IsAscending(), "compression", r.Header().Compression)
	return &woTable{r: r, logger: opts.logger}, nil
}

// RebuildIndex adds a hash index to a write-once table file that has rows
// but no index, the legacy path for a table whose row data was produced
// some other way. Tables written by Sync always include their index
// already and never need this.
func RebuildIndex(path string) error {
	if err := wo.RebuildIndex(path); err != nil {
		return wrapBackendError("rebuild-index", err)
	}
	return nil
}

type woBuilder struct {
	sb     *sortbuilder.Builder
	opts   builderOptions
	synced bool
}

func (b *woBuilder) insertRow(key, value []byte) error {
	if b.synced {
		return wrapBackendError("insert-row", wo.ErrReadOnly)
	}
	if err := b.sb.Add(key, value); err != nil {
		return wrapBackendError("insert-row", err)
	}
	return nil
}

func (b *woBuilder) len() int { return b.sb.Len() }

func (b *woBuilder) setNoFsync(v bool) { b.opts.noFsync = v }

func (b *woBuilder) sync(path string) error {
	if b.synced {
		return wrapBackendError("sync", wo.ErrReadOnly)
	}
	b.opts.logger.Debug("sorting rows", "count", b.sb.Len())
	if err := b.sb.Sort(); err != nil {
		return wrapBackendError("sync", err)
	}
	b.opts.logger.Debug("writing table", "path", path, "compression", b.opts.compression)
	writeOpts := wo.WriteOptions{
		Mode:             b.opts.mode,
		NoFsync:          b.opts.noFsync,
		Compression:      b.opts.compression,
		CompressionLevel: b.opts.compressionLevel,
	}
	if err := wo.Build(path, b.sb, writeOpts); err != nil {
		return wrapBackendError("sync", err)
	}
	b.synced = true
	return nil
}

func (b *woBuilder) close() error {
	if err := b.sb.Close(); err != nil {
		return &IoError{Op: "close", Err: err}
	}
	return nil
}

type woTable struct {
	r      *wo.Reader
	logger *slog.Logger
}

func (t *woTable) isAscending() bool { return t.r.IsAscending() }
func (t *woTable) seekToFirst()      { t.r.SeekToFirst() }
func (t *woTable) seek(offset uint64) error {
	if err := t.r.Seek(offset); err != nil {
		return wrapBackendError("seek", err)
	}
	return nil
}

func (t *woTable) seekToKey(key []byte) (bool, error) {
	found, err := t.r.SeekToKey(key)
	if err != nil {
		return false, wrapBackendError("seek-to-key", err)
	}
	return found, nil
}

func (t *woTable) readRow() (key, value []byte, ok bool, err error) {
	key, value, ok, err = t.r.ReadRow()
	if err != nil {
		return nil, nil, false, wrapBackendError("read-row", err)
	}
	return key, value, ok, nil
}

func (t *woTable) offset() uint64     { return t.r.Offset() }
func (t *woTable) headerSize() uint64 { return wo.HeaderSize }
func (t *woTable) close() error {
	if err := t.r.Close(); err != nil {
		return &IoError{Op: "close", Err: err}
	}
	return nil
}
