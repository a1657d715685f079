// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manifest decodes the schema descriptor that governs how
// samples from a given source are laid out on the wire.
package manifest

import (
	"fmt"
	"sort"
	"time"

	"github.com/perfkit/perfkit-go/wire"
)

// Resolution is the unit of a sample's relative delta.
type Resolution uint32

const (
	ResolutionUsec Resolution = iota
	ResolutionMsec
	ResolutionSec
	ResolutionMin
	ResolutionHour
)

func (r Resolution) String() string {
	switch r {
	case ResolutionUsec:
		return "USEC"
	case ResolutionMsec:
		return "MSEC"
	case ResolutionSec:
		return "SEC"
	case ResolutionMin:
		return "MIN"
	case ResolutionHour:
		return "HOUR"
	default:
		return fmt.Sprintf("Resolution(%d)", uint32(r))
	}
}

// Multiplier returns the number of microseconds per unit of this
// resolution, used to convert a sample's relative delta into an absolute
// timestamp offset.
func (r Resolution) Multiplier() (int64, error) {
	switch r {
	case ResolutionUsec:
		return 1, nil
	case ResolutionMsec:
		return 1_000, nil
	case ResolutionSec:
		return 1_000_000, nil
	case ResolutionMin:
		return 60 * 1_000_000, nil
	case ResolutionHour:
		return 3600 * 1_000_000, nil
	default:
		return 0, fmt.Errorf("manifest: unknown resolution %d", uint32(r))
	}
}

// Type is one of the seven scalar kinds a manifest row may declare.
type Type uint8

const (
	TypeInt32 Type = iota
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat
	TypeDouble
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// expectedKind returns the wire kind a row of this type must carry in a
// sample.
func (t Type) expectedKind() wire.Kind {
	switch t {
	case TypeInt32, TypeUint32, TypeInt64, TypeUint64:
		return wire.KindVarint
	case TypeDouble:
		return wire.KindFixed64
	case TypeFloat:
		return wire.KindFixed32
	case TypeString:
		return wire.KindBytes
	default:
		return wire.Kind(0xff) // never matches; caller already validated t
	}
}

// ExpectedKind exposes expectedKind to package sample, which validates
// incoming values against a resolved manifest's row types.
func (t Type) ExpectedKind() wire.Kind { return t.expectedKind() }

// Row is one declared column of a manifest: a stable id, its scalar type,
// and a display name.
type Row struct {
	ID   uint32
	Type Type
	Name string
}

// Manifest is the decoded schema descriptor for one source id.
type Manifest struct {
	BaseTime   time.Time
	Resolution Resolution
	SourceID   uint64
	Rows       []Row
}

// RowByID returns the row with the given id, or false if no such row was
// declared.
func (m *Manifest) RowByID(id uint32) (Row, bool) {
	// Rows are sorted and contiguous 1..N after Decode, so the id (if
	// valid) is simply the 1-based index.
	if id == 0 || int(id) > len(m.Rows) {
		return Row{}, false
	}
	row := m.Rows[id-1]
	if row.ID != id {
		return Row{}, false
	}
	return row, true
}

// field numbers, in decoding order.
const (
	fieldBaseTime   = 1
	fieldResolution = 2
	fieldSourceID   = 3
	fieldRows       = 4

	rowFieldID   = 1
	rowFieldType = 2
	rowFieldName = 3
)

func typeFromCode(code uint32) (Type, bool) {
	switch Type(code) {
	case TypeInt32, TypeUint32, TypeInt64, TypeUint64, TypeFloat, TypeDouble, TypeString:
		return Type(code), true
	default:
		return 0, false
	}
}

// Decode reads one length-delimited manifest record. Decoding order is
// fixed: base_time (fixed64, field 1), resolution (enum, field 2),
// source_id (varint, field 3), then a repeated rows region (field 4).
// Unknown type codes reject the whole manifest; after decoding, rows are
// sorted ascending by row id and must form the contiguous prefix 1..N.
func Decode(r *wire.Reader) (*Manifest, error) {
	m := &Manifest{}
	haveBaseTime, haveResolution, haveSourceID := false, false, false
	var lastField uint32

	for r.Len() > 0 {
		tag, err := r.ReadTag()
		if err != nil {
			return nil, fmt.Errorf("manifest: read tag: %w", err)
		}
		if tag.Field >= fieldBaseTime && tag.Field <= fieldRows {
			if tag.Field <= lastField {
				return nil, fmt.Errorf("manifest: field %d out of order", tag.Field)
			}
			lastField = tag.Field
		}
		switch tag.Field {
		case fieldBaseTime:
			v, err := r.ReadFixed64()
			if err != nil {
				return nil, fmt.Errorf("manifest: read base_time: %w", err)
			}
			m.BaseTime = time.UnixMicro(int64(v))
			haveBaseTime = true
		case fieldResolution:
			v, err := r.ReadVarintU64()
			if err != nil {
				return nil, fmt.Errorf("manifest: read resolution: %w", err)
			}
			m.Resolution = Resolution(v)
			if _, err := m.Resolution.Multiplier(); err != nil {
				return nil, fmt.Errorf("manifest: %w", err)
			}
			haveResolution = true
		case fieldSourceID:
			v, err := r.ReadVarintU64()
			if err != nil {
				return nil, fmt.Errorf("manifest: read source_id: %w", err)
			}
			m.SourceID = v
			haveSourceID = true
		case fieldRows:
			length, err := r.ReadVarintU64()
			if err != nil {
				return nil, fmt.Errorf("manifest: read rows length: %w", err)
			}
			sub, err := r.ReadNested(length)
			if err != nil {
				return nil, fmt.Errorf("manifest: read rows region: %w", err)
			}
			rows, err := decodeRows(sub)
			if err != nil {
				return nil, err
			}
			m.Rows = rows
		default:
			if err := r.Skip(tag.Kind); err != nil {
				return nil, fmt.Errorf("manifest: skip unknown field %d: %w", tag.Field, err)
			}
		}
	}

	if !haveBaseTime || !haveResolution || !haveSourceID {
		return nil, fmt.Errorf("manifest: missing required field(s)")
	}
	if err := validateRowIDs(m.Rows); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeRows reads back-to-back row entries until the region is
// exhausted. Within each row entry, fields must appear in the order
// row_id, type_code, name.
func decodeRows(r *wire.Reader) ([]Row, error) {
	var rows []Row
	for r.Len() > 0 {
		var row Row
		var haveID, haveType, haveName bool

		tag, err := r.ReadTag()
		if err != nil || tag.Field != rowFieldID {
			return nil, fmt.Errorf("manifest: row missing row_id: %w", firstErr(err, fmt.Errorf("unexpected field order")))
		}
		id, err := r.ReadVarintU32()
		if err != nil {
			return nil, fmt.Errorf("manifest: read row_id: %w", err)
		}
		row.ID = id
		haveID = true

		tag, err = r.ReadTag()
		if err != nil || tag.Field != rowFieldType {
			return nil, fmt.Errorf("manifest: row missing type_code: %w", firstErr(err, fmt.Errorf("unexpected field order")))
		}
		code, err := r.ReadVarintU32()
		if err != nil {
			return nil, fmt.Errorf("manifest: read type_code: %w", err)
		}
		t, ok := typeFromCode(code)
		if !ok {
			return nil, fmt.Errorf("manifest: unknown type code %d", code)
		}
		row.Type = t
		haveType = true

		tag, err = r.ReadTag()
		if err != nil || tag.Field != rowFieldName {
			return nil, fmt.Errorf("manifest: row missing name: %w", firstErr(err, fmt.Errorf("unexpected field order")))
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, fmt.Errorf("manifest: read name: %w", err)
		}
		row.Name = name
		haveName = true

		if !haveID || !haveType || !haveName {
			return nil, fmt.Errorf("manifest: incomplete row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// validateRowIDs sorts rows ascending by id and checks that they form the
// contiguous prefix 1..N; duplicate or missing ids invalidate the
// manifest.
func validateRowIDs(rows []Row) error {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	for i, row := range rows {
		want := uint32(i + 1)
		if row.ID != want {
			return fmt.Errorf("manifest: row ids are not a contiguous 1..N prefix (got %d at position %d)", row.ID, i)
		}
	}
	return nil
}
