// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package wo implements the write-once on-disk table format: the fixed
// header, the tail hash index, and the mmap-backed reader that serves
// point lookups (SeekToKey) and sequential scans (ReadRow) against a
// finalized file.
package wo

import (
	"encoding/binary"
	"fmt"
)

// Magic is the constant 8-byte header prefix, stored as a literal byte
// pattern ("p.i.tabl") so readers can detect a wrong-endian file.
const Magic uint64 = 0x6c6261742e692e70

const (
	// CurrentMajorVersion is the version this package writes.
	CurrentMajorVersion uint8 = 4
	// MinSupportedMajorVersion is the oldest version this package can read.
	MinSupportedMajorVersion uint8 = 2
	// MaxSupportedMajorVersion is the newest version this package can read.
	MaxSupportedMajorVersion uint8 = 4

	// HeaderSize is the fixed on-disk size of Header, in bytes.
	HeaderSize = 32
)

// Flag bits stored in Header.Flags.
const (
	FlagAscending  uint16 = 1 << 0
	FlagDescending uint16 = 1 << 1
)

// Compression codec identifiers stored in Header.Compression.
const (
	CompressionNone uint8 = 0
	CompressionZstd uint8 = 1
)

// Header is the fixed 32-byte prefix of every write-once table file.
type Header struct {
	Magic             uint64
	MajorVersion      uint8
	MinorVersion      uint8
	Flags             uint16
	Compression       uint8
	CompressionLevel  uint8
	IndexOffset       uint64
}

// Marshal writes h's on-disk encoding (little-endian) to a 32-byte buffer.
func (h Header) Marshal() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	buf[8] = h.MajorVersion
	buf[9] = h.MinorVersion
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags)
	buf[12] = h.Compression
	buf[13] = h.CompressionLevel
	// buf[14:16] reserved, left zero
	binary.LittleEndian.PutUint64(buf[16:24], h.IndexOffset)
	// buf[24:32] reserved by the 32-byte fixed layout in spec; zero.
	return buf
}

// ParseHeader validates and decodes the 32-byte header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wo: header too short: %d < %d", len(buf), HeaderSize)
	}

	var h Header
	h.Magic = binary.LittleEndian.Uint64(buf[0:8])
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: got %#x, want %#x", ErrBadMagic, h.Magic, Magic)
	}

	h.MajorVersion = buf[8]
	h.MinorVersion = buf[9]
	if h.MajorVersion < MinSupportedMajorVersion || h.MajorVersion > MaxSupportedMajorVersion {
		return Header{}, fmt.Errorf("%w: major version %d not in [%d, %d]", ErrUnsupportedVersion, h.MajorVersion, MinSupportedMajorVersion, MaxSupportedMajorVersion)
	}

	h.Flags = binary.LittleEndian.Uint16(buf[10:12])
	h.Compression = buf[12]
	h.CompressionLevel = buf[13]
	h.IndexOffset = binary.LittleEndian.Uint64(buf[16:24])

	return h, nil
}

// IsAscending reports whether the ASCENDING flag bit is set.
func (h Header) IsAscending() bool { return h.Flags&FlagAscending != 0 }

// IsDescending reports whether the DESCENDING flag bit is set.
func (h Header) IsDescending() bool { return h.Flags&FlagDescending != 0 }

// EntryWidth returns the byte width of each hash-index slot for a table
// with this header's major version and index_offset.
func EntryWidth(majorVersion uint8, indexOffset uint64) int {
	if majorVersion >= 3 {
		return 8
	}
	switch {
	case indexOffset <= 0xffff:
		return 2
	case indexOffset <= 0xffffffff:
		return 4
	default:
		return 8
	}
}
