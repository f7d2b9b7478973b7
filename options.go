package cantable

import (
	"io"
	"log/slog"
	"os"

	"github.com/canteradb/cantable/internal/wo"
)

// BuilderOption configures a Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger           *slog.Logger
	mode             os.FileMode
	noFsync          bool
	compression      uint8
	compressionLevel uint8
}

func (o builderOptions) norm() builderOptions {
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.mode == 0 {
		o.mode = 0o644
	}
	return o
}

// WithBuilderLogger sets an optional logger the builder uses for progress
// updates. If not provided, no logging output is produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(o *builderOptions) { o.logger = logger }
}

// WithFileMode sets the mode the finished table file is chmod'd to.
// Defaults to 0644.
func WithFileMode(mode os.FileMode) BuilderOption {
	return func(o *builderOptions) { o.mode = mode }
}

// WithNoFsync skips the final fsync of the renamed table file, matching the
// NO_FSYNC runtime flag for builders that don't need the durability
// guarantee (e.g. scratch tables rebuilt on every run).
func WithNoFsync() BuilderOption {
	return func(o *builderOptions) { o.noFsync = true }
}

// WithCompression stores row values under the zstd codec at the given
// advisory level (0 picks the codec's default tradeoff). Compression is off
// by default.
func WithCompression(level uint8) BuilderOption {
	return func(o *builderOptions) {
		o.compression = wo.CompressionZstd
		o.compressionLevel = level
	}
}

// TableOption configures a Table.
type TableOption func(*tableOptions)

type tableOptions struct {
	logger     *slog.Logger
	noRelative bool
}

func (o tableOptions) norm() tableOptions {
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// WithTableLogger sets an optional logger the table uses for diagnostic
// output (e.g. when the table is opened). If not provided, no logging
// output is produced.
func WithTableLogger(logger *slog.Logger) TableOption {
	return func(o *tableOptions) { o.logger = logger }
}

// WithNoRelative reports row offsets as raw absolute file offsets from
// Offset, rather than the default offsets relative to the start of the row
// region. Equivalent to the NO_RELATIVE runtime flag.
func WithNoRelative() TableOption {
	return func(o *tableOptions) { o.noRelative = true }
}
