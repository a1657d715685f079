// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer encodes primitive values into an in-memory buffer, symmetric
// with Reader. Writer is append-only; there is no error path for Write*
// other than running out of memory.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes accumulated so far. The returned slice
// aliases the Writer's internal buffer.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) writeRawVarint(v uint64) {
	for v >= 0x80 {
		w.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v))
}

// WriteTag writes the packed (field, kind) tag byte sequence.
func (w *Writer) WriteTag(field uint32, kind Kind) {
	w.writeRawVarint(packTag(field, kind))
}

// WriteVarintU64 writes field as a varint-kind value.
func (w *Writer) WriteVarintU64(field uint32, v uint64) {
	w.WriteTag(field, KindVarint)
	w.writeRawVarint(v)
}

// WriteVarintU32 writes field as a varint-kind value.
func (w *Writer) WriteVarintU32(field uint32, v uint32) {
	w.WriteVarintU64(field, uint64(v))
}

// WriteVarintI64 writes a signed 64-bit integer carried as raw bits in a
// varint, matching ReadVarintI64 / the original source's convention of
// not zig-zag encoding signed values.
func (w *Writer) WriteVarintI64(field uint32, v int64) {
	w.WriteVarintU64(field, uint64(v))
}

// WriteVarintI32 writes a signed 32-bit integer, sign-extended to 64 bits
// before varint encoding so negative values round-trip through
// ReadVarintI32.
func (w *Writer) WriteVarintI32(field uint32, v int32) {
	w.WriteVarintU64(field, uint64(int64(v)))
}

// WriteEnum writes field as an enum-kind varint.
func (w *Writer) WriteEnum(field uint32, v uint64) {
	w.WriteTag(field, KindEnum)
	w.writeRawVarint(v)
}

// WriteFixed64 writes 8 raw little-endian bytes under a fixed64 tag.
func (w *Writer) WriteFixed64(field uint32, v uint64) {
	w.WriteTag(field, KindFixed64)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteFixed32 writes 4 raw little-endian bytes under a fixed32 tag.
func (w *Writer) WriteFixed32(field uint32, v uint32) {
	w.WriteTag(field, KindFixed32)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteDouble writes a native-width double under a fixed64 tag.
func (w *Writer) WriteDouble(field uint32, v float64) {
	w.WriteFixed64(field, math.Float64bits(v))
}

// WriteFloat writes a native-width float under a fixed32 tag.
func (w *Writer) WriteFloat(field uint32, v float32) {
	w.WriteFixed32(field, math.Float32bits(v))
}

// WriteBytes writes a length-delimited byte blob.
func (w *Writer) WriteBytes(field uint32, v []byte) {
	w.WriteTag(field, KindBytes)
	w.writeRawVarint(uint64(len(v)))
	w.buf.Write(v)
}

// WriteString writes a length-delimited UTF-8 string. An empty string
// still writes a zero-length region, not an absent field.
func (w *Writer) WriteString(field uint32, v string) {
	w.WriteBytes(field, []byte(v))
}

// WriteNested writes field as a repeated/length-delimited region whose
// body is produced by fn into a fresh sub-writer; the sub-writer's bytes
// are length-prefixed and appended.
func (w *Writer) WriteNested(field uint32, kind Kind, fn func(sub *Writer)) {
	sub := NewWriter()
	fn(sub)
	w.WriteTag(field, kind)
	w.writeRawVarint(uint64(sub.Len()))
	w.buf.Write(sub.Bytes())
}
