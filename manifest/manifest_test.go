// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package manifest

import (
	"testing"
	"time"

	"github.com/perfkit/perfkit-go/wire"
)

func encodeManifest(t *testing.T, baseTimeUsec int64, res Resolution, sourceID uint64, rows [][3]any) []byte {
	t.Helper()
	w := wire.NewWriter()
	w.WriteFixed64(fieldBaseTime, uint64(baseTimeUsec))
	w.WriteEnum(fieldResolution, uint64(res))
	w.WriteVarintU64(fieldSourceID, sourceID)
	w.WriteNested(fieldRows, wire.KindRepeated, func(sub *wire.Writer) {
		for _, row := range rows {
			sub.WriteVarintU32(rowFieldID, row[0].(uint32))
			sub.WriteVarintU32(rowFieldType, uint32(row[1].(Type)))
			sub.WriteString(rowFieldName, row[2].(string))
		}
	})
	return w.Bytes()
}

func TestDecodeOrdersRowsByID(t *testing.T) {
	buf := encodeManifest(t, 1_000_000, ResolutionMsec, 3, [][3]any{
		{uint32(3), TypeString, "c"},
		{uint32(1), TypeInt32, "a"},
		{uint32(2), TypeInt32, "b"},
	})
	m, err := Decode(wire.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(m.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(m.Rows))
	}
	for i, want := range []uint32{1, 2, 3} {
		if m.Rows[i].ID != want {
			t.Errorf("rows[%d].ID = %d, want %d", i, m.Rows[i].ID, want)
		}
	}
	if !m.BaseTime.Equal(time.UnixMicro(1_000_000)) {
		t.Errorf("BaseTime = %v, want %v", m.BaseTime, time.UnixMicro(1_000_000))
	}
	if m.SourceID != 3 {
		t.Errorf("SourceID = %d, want 3", m.SourceID)
	}
}

func TestDecodeRejectsNonContiguousRowIDs(t *testing.T) {
	buf := encodeManifest(t, 0, ResolutionUsec, 1, [][3]any{
		{uint32(1), TypeInt32, "a"},
		{uint32(3), TypeInt32, "c"},
	})
	if _, err := Decode(wire.NewReader(buf)); err == nil {
		t.Fatal("expected error for non-contiguous row ids {1,3}")
	}
}

func TestDecodeRejectsDuplicateRowIDs(t *testing.T) {
	buf := encodeManifest(t, 0, ResolutionUsec, 1, [][3]any{
		{uint32(1), TypeInt32, "a"},
		{uint32(1), TypeInt32, "b"},
	})
	if _, err := Decode(wire.NewReader(buf)); err == nil {
		t.Fatal("expected error for duplicate row id 1")
	}
}

func TestDecodeRejectsUnknownTypeCode(t *testing.T) {
	w := wire.NewWriter()
	w.WriteFixed64(fieldBaseTime, 0)
	w.WriteEnum(fieldResolution, uint64(ResolutionUsec))
	w.WriteVarintU64(fieldSourceID, 1)
	w.WriteNested(fieldRows, wire.KindRepeated, func(sub *wire.Writer) {
		sub.WriteVarintU32(rowFieldID, 1)
		sub.WriteVarintU32(rowFieldType, 99) // not a declared type code
		sub.WriteString(rowFieldName, "mystery")
	})
	if _, err := Decode(wire.NewReader(w.Bytes())); err == nil {
		t.Fatal("expected error for unknown type code")
	}
}

func TestDecodeSkipsUnknownTopLevelField(t *testing.T) {
	w := wire.NewWriter()
	w.WriteFixed64(fieldBaseTime, 0)
	w.WriteEnum(fieldResolution, uint64(ResolutionUsec))
	w.WriteVarintU64(fieldSourceID, 1)
	w.WriteString(50, "future extension") // unknown field, must be skipped
	w.WriteNested(fieldRows, wire.KindRepeated, func(sub *wire.Writer) {
		sub.WriteVarintU32(rowFieldID, 1)
		sub.WriteVarintU32(rowFieldType, uint32(TypeInt32))
		sub.WriteString(rowFieldName, "cpu")
	})
	m, err := Decode(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(m.Rows) != 1 || m.Rows[0].Name != "cpu" {
		t.Errorf("rows = %+v, want one row named cpu", m.Rows)
	}
}

func TestRowByID(t *testing.T) {
	buf := encodeManifest(t, 0, ResolutionUsec, 1, [][3]any{
		{uint32(1), TypeInt32, "cpu"},
		{uint32(2), TypeString, "name"},
	})
	m, err := Decode(wire.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	row, ok := m.RowByID(2)
	if !ok || row.Name != "name" {
		t.Errorf("RowByID(2) = %+v, %v, want name row", row, ok)
	}
	if _, ok := m.RowByID(99); ok {
		t.Error("RowByID(99) should not be found")
	}
}
