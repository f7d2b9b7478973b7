// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package sortbuilder implements the external-sort half of the write-once
// table builder: unordered (key, value) pairs are streamed to an anonymous
// spill file as they arrive, alongside a compact in-memory index carrying a
// 24-byte key prefix, and are later brought into sorted order with a
// stable sort that uses the prefix as a fast path and falls back to reading
// the full key from the spill file on a tie.
package sortbuilder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// PrefixLen is the number of leading key bytes kept in each Entry for fast
// comparisons during sort.
const PrefixLen = 24

// ErrTooLarge is returned by Add when a key or value exceeds the maximum
// length representable in the on-disk framing (math.MaxUint32 bytes).
var ErrTooLarge = errors.New("sortbuilder: key or value exceeds the maximum supported length")

// Entry is the in-memory record of one added (key, value) pair: enough to
// locate and compare it without holding the bytes themselves in memory.
type Entry struct {
	SpillOffset uint64
	KeySize     uint32
	ValueSize   uint32
	Prefix      [PrefixLen]byte
}

// Builder accumulates (key, value) pairs into an anonymous spill file and
// builds the sorted Entry index used to emit the final table.
type Builder struct {
	spill    *os.File
	w        *bufio.Writer
	offset   uint64
	entries  []Entry
	keyMax   uint32
	finished bool
}

// New creates a Builder whose spill file lives in dir (callers pass the
// directory of the eventual table file).
func New(dir string) (*Builder, error) {
	f, err := os.CreateTemp(dir, "cantable-spill.*.tmp")
	if err != nil {
		return nil, fmt.Errorf("sortbuilder: CreateTemp: %w", err)
	}
	return &Builder{
		spill: f,
		w:     bufio.NewWriterSize(f, 4*1024*1024),
	}, nil
}

// Add appends key and value to the spill file and records an Entry for it.
// Entries preserve insertion order until Sort is called.
func (b *Builder) Add(key, value []byte) error {
	if uint64(len(key)) > math.MaxUint32 || uint64(len(value)) > math.MaxUint32 {
		return ErrTooLarge
	}

	var prefix [PrefixLen]byte
	copy(prefix[:], key)

	entry := Entry{
		SpillOffset: b.offset,
		KeySize:     uint32(len(key)),
		ValueSize:   uint32(len(value)),
		Prefix:      prefix,
	}

	if _, err := b.w.Write(key); err != nil {
		return fmt.Errorf("sortbuilder: writing key to spill file: %w", err)
	}
	if _, err := b.w.Write(value); err != nil {
		return fmt.Errorf("sortbuilder: writing value to spill file: %w", err)
	}

	b.offset += uint64(len(key)) + uint64(len(value))
	if entry.KeySize > b.keyMax {
		b.keyMax = entry.KeySize
	}
	b.entries = append(b.entries, entry)

	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Sort flushes the spill file and stable-sorts the accumulated entries by
// key, using each Entry's prefix as a fast path and falling back to reading
// the full key from the spill file on a tie. After Sort, Entries and
// ReadAt may be used to emit the final table.
func (b *Builder) Sort() error {
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("sortbuilder: flushing spill file: %w", err)
	}

	lhsBuf := make([]byte, b.keyMax)
	rhsBuf := make([]byte, b.keyMax)

	s := &entrySorter{
		entries: b.entries,
		spill:   b.spill,
		lhsBuf:  lhsBuf,
		rhsBuf:  rhsBuf,
	}
	sort.Stable(s)

	return s.err
}

// Entries returns the accumulated entries, in their current order (sorted,
// if Sort has been called).
func (b *Builder) Entries() []Entry {
	return b.entries
}

// ReadAt reads the raw key||value bytes for e from the spill file.
func (b *Builder) ReadAt(e Entry) (key, value []byte, err error) {
	buf := make([]byte, e.KeySize+e.ValueSize)
	if _, err := b.spill.ReadAt(buf, int64(e.SpillOffset)); err != nil {
		return nil, nil, fmt.Errorf("sortbuilder: reading spill file at %d: %w", e.SpillOffset, err)
	}
	return buf[:e.KeySize], buf[e.KeySize:], nil
}

// Close releases the spill file, deleting it from disk. It is safe to call
// more than once.
func (b *Builder) Close() error {
	if b.finished {
		return nil
	}
	b.finished = true
	name := b.spill.Name()
	closeErr := b.spill.Close()
	removeErr := os.Remove(name)
	if closeErr != nil {
		return fmt.Errorf("sortbuilder: closing spill file: %w", closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("sortbuilder: removing spill file: %w", removeErr)
	}
	return nil
}

// entrySorter implements sort.Interface over Entry, comparing the 24-byte
// prefix first and only reading the spill file to break a tie.
type entrySorter struct {
	entries []Entry
	spill   *os.File
	lhsBuf  []byte
	rhsBuf  []byte
	err     error
}

func (s *entrySorter) Len() int      { return len(s.entries) }
func (s *entrySorter) Swap(i, j int) { s.entries[i], s.entries[j] = s.entries[j], s.entries[i] }

func (s *entrySorter) Less(i, j int) bool {
	if s.err != nil {
		return false
	}

	lhs, rhs := s.entries[i], s.entries[j]
	lhsCount := min32(PrefixLen, lhs.KeySize)
	rhsCount := min32(PrefixLen, rhs.KeySize)

	cmp := bytes.Compare(lhs.Prefix[:lhsCount], rhs.Prefix[:rhsCount])
	if cmp != 0 {
		return cmp < 0
	}

	lhsKey := s.lhsBuf[:lhs.KeySize]
	rhsKey := s.rhsBuf[:rhs.KeySize]
	if _, err := s.spill.ReadAt(lhsKey, int64(lhs.SpillOffset)); err != nil {
		s.err = fmt.Errorf("sortbuilder: reading key at %d: %w", lhs.SpillOffset, err)
		return false
	}
	if _, err := s.spill.ReadAt(rhsKey, int64(rhs.SpillOffset)); err != nil {
		s.err = fmt.Errorf("sortbuilder: reading key at %d: %w", rhs.SpillOffset, err)
		return false
	}

	return bytes.Compare(lhsKey, rhsKey) < 0
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
