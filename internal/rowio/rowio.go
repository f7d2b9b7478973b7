// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rowio implements the on-disk row framing shared by the builder
// and the reader: varint(total_len) || key || 0x00 || value.
package rowio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/canteradb/cantable/internal/bytesutil"
	"github.com/canteradb/cantable/internal/varint"
)

// ErrKeyContainsNUL is returned when a key contains a 0x00 byte; the byte is
// reserved as the key/value boundary marker.
var ErrKeyContainsNUL = errors.New("rowio: key contains a NUL byte")

// ErrTruncatedRow is returned when a row's framing runs past the end of the
// supplied buffer.
var ErrTruncatedRow = errors.New("rowio: truncated row")

// ErrMalformedRow is returned when a row's inner length doesn't leave room
// for the NUL terminator between key and value.
var ErrMalformedRow = errors.New("rowio: malformed row")

// AppendRow appends the framed encoding of (key, value) to dst and returns
// the extended slice.
func AppendRow(dst, key, value []byte) ([]byte, error) {
	if bytes.IndexByte(key, 0) >= 0 {
		return nil, ErrKeyContainsNUL
	}
	inner := uint64(len(key)) + 1 + uint64(len(value))
	dst = varint.Append(dst, inner)
	dst = append(dst, key...)
	dst = append(dst, 0)
	dst = append(dst, value...)
	return dst, nil
}

// EncodedLen returns the number of bytes AppendRow would add for the given
// key and value sizes.
func EncodedLen(keyLen, valueLen int) int {
	inner := uint64(keyLen) + 1 + uint64(valueLen)
	return varint.Len(inner) + keyLen + 1 + valueLen
}

// ReadRow decodes a single row at the start of buf, returning borrowed
// slices into buf, and the number of bytes the row occupies (the varint
// header plus the framed key/value/NUL). A total length of zero (the first
// byte of buf is 0x00) signals "no more rows": ReadRow returns ok=false and
// a nil error in that case.
func ReadRow(buf []byte) (key, value []byte, n int, ok bool, err error) {
	if len(buf) == 0 {
		return nil, nil, 0, false, nil
	}
	if buf[0] == 0 {
		return nil, nil, 0, false, nil
	}

	inner, hdrLen, err := varint.Decode(buf)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("rowio: decoding row length: %w", err)
	}

	rest := buf[hdrLen:]
	if uint64(len(rest)) < inner {
		return nil, nil, 0, false, ErrTruncatedRow
	}

	keyPart := rest[:inner]
	k, v, found := bytesutil.Cut(keyPart, 0)
	if !found {
		return nil, nil, 0, false, ErrMalformedRow
	}

	return k, v, hdrLen + int(inner), true, nil
}
