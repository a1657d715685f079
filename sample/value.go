// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sample decodes a single timestamped row-tuple against a
// resolved manifest, producing typed values keyed by row id.
package sample

import (
	"fmt"
)

// Kind identifies which scalar variant a Value holds. KindUnset is the
// zero value: a row declared in the manifest but absent from a given
// sample is Unset, not a type-specific zero, since the manifest is a
// type schema, not a required-fields schema.
type Kind uint8

const (
	KindUnset Kind = iota
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat
	KindDouble
	KindString
)

// Value is a tagged union over the scalar types a manifest row may
// declare, generalizing the NaN-as-absent convention used elsewhere in
// this codebase's lineage to a type that covers integers and strings as
// well as floating point.
type Value struct {
	kind Kind
	i    int64   // backs Int32, Uint32, Int64, Uint64 (bit-reinterpreted as needed)
	f    float64 // backs Float (stored widened), Double
	s    string  // backs String
}

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsUnset reports whether the row this value came from was absent from
// the sample that produced it.
func (v Value) IsUnset() bool { return v.kind == KindUnset }

func unsetValue() Value { return Value{kind: KindUnset} }

func int32Value(x int32) Value  { return Value{kind: KindInt32, i: int64(x)} }
func uint32Value(x uint32) Value { return Value{kind: KindUint32, i: int64(x)} }
func int64Value(x int64) Value  { return Value{kind: KindInt64, i: x} }
func uint64Value(x uint64) Value { return Value{kind: KindUint64, i: int64(x)} }
func floatValue(x float32) Value { return Value{kind: KindFloat, f: float64(x)} }
func doubleValue(x float64) Value { return Value{kind: KindDouble, f: x} }
func stringValue(x string) Value { return Value{kind: KindString, s: x} }

// Int32 returns the value as an int32 and whether the kind matched.
func (v Value) Int32() (int32, bool) {
	if v.kind != KindInt32 {
		return 0, false
	}
	return int32(v.i), true
}

// Uint32 returns the value as a uint32 and whether the kind matched.
func (v Value) Uint32() (uint32, bool) {
	if v.kind != KindUint32 {
		return 0, false
	}
	return uint32(v.i), true
}

// Int64 returns the value as an int64 and whether the kind matched.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt64 {
		return 0, false
	}
	return v.i, true
}

// Uint64 returns the value as a uint64 and whether the kind matched.
func (v Value) Uint64() (uint64, bool) {
	if v.kind != KindUint64 {
		return 0, false
	}
	return uint64(v.i), true
}

// Float32 returns the value as a float32 and whether the kind matched.
func (v Value) Float32() (float32, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return float32(v.f), true
}

// Float64 returns the value as a float64 and whether the kind matched.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.f, true
}

// String returns the value as a string and whether the kind matched.
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// GoString renders the value for logging/debugging.
func (v Value) GoString() string {
	switch v.kind {
	case KindUnset:
		return "Unset"
	case KindInt32:
		return fmt.Sprintf("int32(%d)", int32(v.i))
	case KindUint32:
		return fmt.Sprintf("uint32(%d)", uint32(v.i))
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.i)
	case KindUint64:
		return fmt.Sprintf("uint64(%d)", uint64(v.i))
	case KindFloat:
		return fmt.Sprintf("float(%v)", float32(v.f))
	case KindDouble:
		return fmt.Sprintf("double(%v)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	default:
		return "invalid"
	}
}

