// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncated is returned when the reader runs out of bytes mid-value.
var ErrTruncated = errors.New("wire: buffer truncated")

// ErrMalformedTag is returned by ReadTag when the tag byte does not decode
// to a known kind or a valid (non-zero) field number.
var ErrMalformedTag = errors.New("wire: malformed tag")

// ErrVarintOverflow is returned when a varint would not fit the requested
// integer width.
var ErrVarintOverflow = errors.New("wire: varint overflow")

// Reader decodes primitive values from a byte slice positioned at an
// internal cursor. Every Read* method consumes exactly one value and
// leaves the cursor unchanged if it returns an error, so callers can
// retry at a higher level (for example, to report a better error once
// more context is known) without having lost their place.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for decoding. The slice is not copied; callers must
// not mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current cursor offset, for tests and diagnostics.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) readByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}

func (r *Reader) readRawVarint() (uint64, error) {
	start := r.pos
	var result uint64
	var shift uint
	for {
		if shift >= 64 {
			r.pos = start
			return 0, ErrVarintOverflow
		}
		b, ok := r.readByte()
		if !ok {
			r.pos = start
			return 0, ErrTruncated
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadTag decodes the next field/kind pair. It fails if the buffer is
// exhausted or the tag does not decode to a known kind and non-zero field
// number.
func (r *Reader) ReadTag() (Tag, error) {
	start := r.pos
	v, err := r.readRawVarint()
	if err != nil {
		r.pos = start
		return Tag{}, err
	}
	field, kind, ok := unpackTag(v)
	if !ok {
		r.pos = start
		return Tag{}, ErrMalformedTag
	}
	return Tag{Field: field, Kind: kind}, nil
}

// ReadVarintU64 reads an unsigned varint.
func (r *Reader) ReadVarintU64() (uint64, error) {
	start := r.pos
	v, err := r.readRawVarint()
	if err != nil {
		r.pos = start
		return 0, err
	}
	return v, nil
}

// ReadVarintU32 reads an unsigned varint that must fit in 32 bits; a
// larger value fails with ErrVarintOverflow.
func (r *Reader) ReadVarintU32() (uint32, error) {
	start := r.pos
	v, err := r.readRawVarint()
	if err != nil {
		r.pos = start
		return 0, err
	}
	if v > math.MaxUint32 {
		r.pos = start
		return 0, ErrVarintOverflow
	}
	return uint32(v), nil
}

// ReadVarintI64 reads a signed 64-bit integer carried as raw bits in a
// varint (not zig-zag encoded, per the wire format's convention).
func (r *Reader) ReadVarintI64() (int64, error) {
	v, err := r.ReadVarintU64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadVarintI32 reads a signed 32-bit integer. The original source
// sign-extends negative 32-bit values to 64 bits before varint-encoding
// them, so a negative value is carried in the low 32 bits with the
// high 32 bits all set; ReadVarintI32 reverses that by truncating.
func (r *Reader) ReadVarintI32() (int32, error) {
	start := r.pos
	v, err := r.readRawVarint()
	if err != nil {
		r.pos = start
		return 0, err
	}
	return int32(uint32(v)), nil
}

// ReadFixed64 reads 8 raw little-endian bytes.
func (r *Reader) ReadFixed64() (uint64, error) {
	if r.Len() < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// ReadFixed32 reads 4 raw little-endian bytes.
func (r *Reader) ReadFixed32() (uint32, error) {
	if r.Len() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// ReadDouble reads a native-width (fixed64) double.
func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadFixed64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadFloat reads a native-width (fixed32) float.
func (r *Reader) ReadFloat() (float32, error) {
	v, err := r.ReadFixed32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadBytes reads a varint length followed by that many raw bytes. The
// returned slice aliases the reader's backing array; callers that need to
// retain it past the next read should copy it.
func (r *Reader) ReadBytes() ([]byte, error) {
	start := r.pos
	n, err := r.ReadVarintU64()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		r.pos = start
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// ReadString reads a length-delimited UTF-8 string. A zero-length string
// decodes as "", never as an error.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadNested reads a varint length and returns a new Reader positioned
// over exactly that many bytes; this reader's cursor advances past the
// whole region immediately, rather than waiting for the sub-reader to be
// consumed, since the sub-reader owns an independent copy of the region
// boundaries.
func (r *Reader) ReadNested(length uint64) (*Reader, error) {
	start := r.pos
	if length > uint64(r.Len()) {
		r.pos = start
		return nil, ErrTruncated
	}
	sub := &Reader{buf: r.buf[r.pos : r.pos+int(length)]}
	r.pos += int(length)
	return sub, nil
}

// Skip advances past the payload of a value of the given kind without
// decoding it, used when a decoder encounters a field number it does not
// recognize (spec: unrecognized fields must be skipped, not rejected).
func (r *Reader) Skip(kind Kind) error {
	switch kind {
	case KindVarint, KindEnum:
		_, err := r.readRawVarint()
		return err
	case KindFixed64:
		_, err := r.ReadFixed64()
		return err
	case KindFixed32:
		_, err := r.ReadFixed32()
		return err
	case KindBytes, KindRepeated:
		_, err := r.ReadBytes()
		return err
	default:
		return ErrMalformedTag
	}
}
