// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap memory-maps read-only files for the write-once table reader.
package mmap

import (
	"errors"
	"os"
	"sync/atomic"
)

// AccessPattern is a hint passed to the kernel via madvise about how the
// mapped region will be accessed.
type AccessPattern int

const (
	// AccessDefault requests no particular access pattern.
	AccessDefault AccessPattern = iota
	// AccessSequential hints that the region will be read start to end once.
	AccessSequential
	// AccessRandom hints that the region will be read at scattered offsets.
	AccessRandom
	// AccessWillNeed hints that the region will be read again soon.
	AccessWillNeed
	// AccessDontNeed hints that the region will not be read again soon.
	AccessDontNeed
)

// ErrClosed is returned by any operation on a Mapping after Close.
var ErrClosed = errors.New("mmap: mapping is closed")

// Mapping is a read-only memory-mapped file. It owns the mapped region and
// is responsible for unmapping it.
type Mapping struct {
	data   []byte
	closed atomic.Bool
}

// Open maps the file at path into memory, read-only, MAP_SHARED.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}

	data, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}

	return &Mapping{data: data}, nil
}

// Data returns the mapped region. The slice is only valid until Close.
func (m *Mapping) Data() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Len returns the size of the mapped region in bytes.
func (m *Mapping) Len() int {
	return len(m.data)
}

// Advise hints to the kernel how data[off:off+length] will be accessed.
// The hint is advisory; errors from the underlying syscall are returned but
// callers may reasonably ignore them.
func (m *Mapping) Advise(off, length int, pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 || length <= 0 {
		return nil
	}
	end := off + length
	if end > len(m.data) {
		end = len(m.data)
	}
	if off < 0 || off >= end {
		return nil
	}
	return osAdvise(m.data[off:end], pattern)
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.data == nil {
		return nil
	}
	return osUnmap(m.data)
}
