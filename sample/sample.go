// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sample

import (
	"fmt"
	"math"
	"time"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/manifest"
	"github.com/perfkit/perfkit-go/resolver"
	"github.com/perfkit/perfkit-go/wire"
)

// field numbers, in decoding order.
const (
	fieldSourceID = 1
	fieldDelta    = 2
	fieldValues   = 3
)

// Sample is a single timestamped tuple of row values conforming to the
// manifest current at decode time for its source. Samples carry no
// backlinks to the resolver or connection that produced them and may be
// freely cloned by the caller.
type Sample struct {
	SourceID     uint64
	AbsoluteTime time.Time
	Values       map[uint32]Value
}

// ValueFor returns the value for rowID, or an Unset value if the row was
// not present in this sample.
func (s *Sample) ValueFor(rowID uint32) Value {
	v, ok := s.Values[rowID]
	if !ok {
		return unsetValue()
	}
	return v
}

// Decode reads the source id, resolves its manifest, reads the relative
// delta and converts it to an absolute timestamp, then walks the
// length-delimited values sub-record validating each field's wire kind
// against the manifest before storing it. Rows declared in the manifest
// but absent from the sample decode as Unset. Leftover bytes in the
// outer reader after the values sub-record are not an error: the sample
// occupies exactly its length-delimited region and the caller may have
// more records to read.
func Decode(r *wire.Reader, res *resolver.Resolver) (*Sample, error) {
	tag, err := r.ReadTag()
	if err != nil || tag.Field != fieldSourceID {
		return nil, fmt.Errorf("sample: expected source_id field: %w", firstErr(err))
	}
	sourceID, err := r.ReadVarintU64()
	if err != nil {
		return nil, fmt.Errorf("sample: read source_id: %w", err)
	}

	man, ok := res.Lookup(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: source %d", perfkit.ErrUnknownSource, sourceID)
	}

	tag, err = r.ReadTag()
	if err != nil || tag.Field != fieldDelta {
		return nil, fmt.Errorf("sample: expected delta field: %w", firstErr(err))
	}
	delta, err := r.ReadVarintU64()
	if err != nil {
		return nil, fmt.Errorf("sample: read delta: %w", err)
	}

	absolute, err := absoluteTime(man, delta)
	if err != nil {
		return nil, err
	}

	tag, err = r.ReadTag()
	if err != nil || tag.Field != fieldValues {
		return nil, fmt.Errorf("sample: expected values field: %w", firstErr(err))
	}
	length, err := r.ReadVarintU64()
	if err != nil {
		return nil, fmt.Errorf("sample: read values length: %w", err)
	}
	sub, err := r.ReadNested(length)
	if err != nil {
		return nil, fmt.Errorf("sample: read values region: %w", err)
	}

	values, err := decodeValues(sub, man)
	if err != nil {
		return nil, err
	}

	return &Sample{SourceID: sourceID, AbsoluteTime: absolute, Values: values}, nil
}

// absoluteTime converts a relative delta into base_time + delta*multiplier,
// failing rather than silently clamping on overflow; see DESIGN.md for
// the rationale.
func absoluteTime(m *manifest.Manifest, delta uint64) (time.Time, error) {
	mult, err := m.Resolution.Multiplier()
	if err != nil {
		return time.Time{}, err
	}
	if mult != 0 && delta > uint64(math.MaxInt64)/uint64(mult) {
		return time.Time{}, perfkit.ErrTimestampOverflow
	}
	offsetUsec := int64(delta) * mult
	baseUsec := m.BaseTime.UnixMicro()
	if offsetUsec > 0 && baseUsec > math.MaxInt64-offsetUsec {
		return time.Time{}, perfkit.ErrTimestampOverflow
	}
	return time.UnixMicro(baseUsec + offsetUsec), nil
}

// decodeValues walks a values sub-record until exhausted. Repeated
// occurrences of the same row id within one sample are last-write-wins.
func decodeValues(r *wire.Reader, man *manifest.Manifest) (map[uint32]Value, error) {
	values := make(map[uint32]Value)

	for r.Len() > 0 {
		tag, err := r.ReadTag()
		if err != nil {
			return nil, fmt.Errorf("sample: read value tag: %w", err)
		}
		rowID := tag.Field

		row, ok := man.RowByID(rowID)
		if !ok {
			return nil, fmt.Errorf("%w: sample references row %d not in manifest", perfkit.ErrProtocol, rowID)
		}

		if tag.Kind != row.Type.ExpectedKind() {
			// Still have to consume the payload so the region stays
			// framed correctly for any caller that tolerates the error,
			// but the sample as a whole is rejected either way.
			_ = r.Skip(tag.Kind)
			return nil, fmt.Errorf("%w: row %d (%s) declared %s, sample carries %s",
				perfkit.ErrTypeMismatch, rowID, row.Name, row.Type, tag.Kind)
		}

		v, err := decodeScalar(r, row.Type)
		if err != nil {
			return nil, fmt.Errorf("sample: decode row %d: %w", rowID, err)
		}
		values[rowID] = v // last-write-wins on duplicate row ids
	}

	return values, nil
}

func decodeScalar(r *wire.Reader, t manifest.Type) (Value, error) {
	switch t {
	case manifest.TypeInt32:
		v, err := r.ReadVarintI32()
		if err != nil {
			return Value{}, err
		}
		return int32Value(v), nil
	case manifest.TypeUint32:
		v, err := r.ReadVarintU32()
		if err != nil {
			return Value{}, err
		}
		return uint32Value(v), nil
	case manifest.TypeInt64:
		v, err := r.ReadVarintI64()
		if err != nil {
			return Value{}, err
		}
		return int64Value(v), nil
	case manifest.TypeUint64:
		v, err := r.ReadVarintU64()
		if err != nil {
			return Value{}, err
		}
		return uint64Value(v), nil
	case manifest.TypeFloat:
		v, err := r.ReadFloat()
		if err != nil {
			return Value{}, err
		}
		return floatValue(v), nil
	case manifest.TypeDouble:
		v, err := r.ReadDouble()
		if err != nil {
			return Value{}, err
		}
		return doubleValue(v), nil
	case manifest.TypeString:
		v, err := r.ReadString()
		if err != nil {
			return Value{}, err
		}
		return stringValue(v), nil
	default:
		return Value{}, fmt.Errorf("sample: unsupported type %s", t)
	}
}

func firstErr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("missing or out-of-order field")
}
