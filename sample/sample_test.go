// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sample

import (
	"errors"
	"testing"
	"time"

	perfkit "github.com/perfkit/perfkit-go"
	"github.com/perfkit/perfkit-go/manifest"
	"github.com/perfkit/perfkit-go/resolver"
	"github.com/perfkit/perfkit-go/wire"
)

func mustInsertManifest(t *testing.T, res *resolver.Resolver, baseUsec int64, r manifest.Resolution, sourceID uint64, rows [][3]any) {
	t.Helper()
	w := wire.NewWriter()
	w.WriteFixed64(1, uint64(baseUsec))
	w.WriteEnum(2, uint64(r))
	w.WriteVarintU64(3, sourceID)
	w.WriteNested(4, wire.KindRepeated, func(sub *wire.Writer) {
		for _, row := range rows {
			sub.WriteVarintU32(1, row[0].(uint32))
			sub.WriteVarintU32(2, uint32(row[1].(manifest.Type)))
			sub.WriteString(3, row[2].(string))
		}
	})
	m, err := manifest.Decode(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("manifest.Decode: %v", err)
	}
	res.Insert(m)
}

func encodeSample(sourceID, delta uint64, values func(w *wire.Writer)) []byte {
	w := wire.NewWriter()
	w.WriteVarintU64(1, sourceID)
	w.WriteVarintU64(2, delta)
	w.WriteNested(3, wire.KindBytes, values)
	return w.Bytes()
}

// TestEndToEndManifestAndTwoSamples decodes a manifest followed by two
// samples from the same source, checking timestamp conversion and that
// a row missing from the second sample decodes as Unset.
func TestEndToEndManifestAndTwoSamples(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 1_000_000, manifest.ResolutionMsec, 3, [][3]any{
		{uint32(1), manifest.TypeInt32, "cpu"},
		{uint32(2), manifest.TypeString, "name"},
	})

	buf1 := encodeSample(3, 5, func(w *wire.Writer) {
		w.WriteVarintI32(1, 42)
		w.WriteString(2, "foo")
	})
	s1, err := Decode(wire.NewReader(buf1), res)
	if err != nil {
		t.Fatalf("Decode sample 1: %v", err)
	}
	if !s1.AbsoluteTime.Equal(time.UnixMicro(1_005_000)) {
		t.Errorf("absolute time = %v, want %v", s1.AbsoluteTime, time.UnixMicro(1_005_000))
	}
	if v, ok := s1.ValueFor(1).Int32(); !ok || v != 42 {
		t.Errorf("cpu = %d, ok=%v, want 42", v, ok)
	}
	if v, ok := s1.ValueFor(2).String(); !ok || v != "foo" {
		t.Errorf("name = %q, ok=%v, want foo", v, ok)
	}

	buf2 := encodeSample(3, 10, func(w *wire.Writer) {
		w.WriteVarintI32(1, 43)
	})
	s2, err := Decode(wire.NewReader(buf2), res)
	if err != nil {
		t.Fatalf("Decode sample 2: %v", err)
	}
	if v, ok := s2.ValueFor(1).Int32(); !ok || v != 43 {
		t.Errorf("cpu = %d, ok=%v, want 43", v, ok)
	}
	if !s2.ValueFor(2).IsUnset() {
		t.Errorf("name should be Unset, got %#v", s2.ValueFor(2))
	}
}

// TestManifestReplacement checks that a second manifest for the same
// source replaces the first, and that samples decoded afterward use the
// new row types.
func TestManifestReplacement(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 3, [][3]any{
		{uint32(1), manifest.TypeInt32, "cpu"},
	})
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 3, [][3]any{
		{uint32(1), manifest.TypeDouble, "cpu"},
	})

	okBuf := encodeSample(3, 0, func(w *wire.Writer) {
		w.WriteDouble(1, 0.5)
	})
	s, err := Decode(wire.NewReader(okBuf), res)
	if err != nil {
		t.Fatalf("Decode against replaced manifest: %v", err)
	}
	if v, ok := s.ValueFor(1).Float64(); !ok || v != 0.5 {
		t.Errorf("cpu = %v, ok=%v, want 0.5", v, ok)
	}

	mismatchBuf := encodeSample(3, 0, func(w *wire.Writer) {
		w.WriteVarintI32(1, 7)
	})
	if _, err := Decode(wire.NewReader(mismatchBuf), res); !errors.Is(err, perfkit.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestUnknownSource(t *testing.T) {
	res := resolver.New()
	buf := encodeSample(999, 0, func(w *wire.Writer) {})
	_, err := Decode(wire.NewReader(buf), res)
	if !errors.Is(err, perfkit.ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
}

func TestSwappedFieldOrderDecodesBothCorrectly(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 1, [][3]any{
		{uint32(1), manifest.TypeInt32, "a"},
		{uint32(2), manifest.TypeInt32, "b"},
	})
	// Field 2 written before field 1 in the wire encoding.
	buf := encodeSample(1, 0, func(w *wire.Writer) {
		w.WriteVarintI32(2, 20)
		w.WriteVarintI32(1, 10)
	})
	s, err := Decode(wire.NewReader(buf), res)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := s.ValueFor(1).Int32(); v != 10 {
		t.Errorf("a = %d, want 10", v)
	}
	if v, _ := s.ValueFor(2).Int32(); v != 20 {
		t.Errorf("b = %d, want 20", v)
	}
}

func TestTypeMismatchYieldsTypeMismatchError(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 1, [][3]any{
		{uint32(1), manifest.TypeString, "name"},
	})
	buf := encodeSample(1, 0, func(w *wire.Writer) {
		w.WriteVarintI32(1, 7) // varint instead of the expected length-delimited string
	})
	_, err := Decode(wire.NewReader(buf), res)
	if !errors.Is(err, perfkit.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestDuplicateRowLastWriteWins(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 1, [][3]any{
		{uint32(1), manifest.TypeInt32, "a"},
	})
	buf := encodeSample(1, 0, func(w *wire.Writer) {
		w.WriteVarintI32(1, 1)
		w.WriteVarintI32(1, 2)
	})
	s, err := Decode(wire.NewReader(buf), res)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := s.ValueFor(1).Int32(); v != 2 {
		t.Errorf("a = %d, want 2 (last write wins)", v)
	}
}

func TestLeftoverBytesAfterSampleIsNotError(t *testing.T) {
	res := resolver.New()
	mustInsertManifest(t, res, 0, manifest.ResolutionUsec, 1, [][3]any{
		{uint32(1), manifest.TypeInt32, "a"},
	})
	buf := encodeSample(1, 0, func(w *wire.Writer) {
		w.WriteVarintI32(1, 1)
	})
	buf = append(buf, []byte{0xde, 0xad}...) // trailing garbage belonging to a later record
	r := wire.NewReader(buf)
	if _, err := Decode(r, res); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("reader has %d bytes left, want 2 (leftover bytes untouched)", r.Len())
	}
}
