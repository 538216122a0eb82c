package cog

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestParseEntryInline(t *testing.T) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:], TagImageWidth)
	binary.LittleEndian.PutUint16(buf[2:], uint16(TypeShort))
	binary.LittleEndian.PutUint32(buf[4:], 1)
	binary.LittleEndian.PutUint16(buf[8:], 512)

	e, err := parseEntry(buf, binary.LittleEndian, false)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if e.inline == nil {
		t.Fatal("single SHORT should be inline")
	}

	tag, err := decodeTag(e, e.inline, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	v, err := tag.Uint()
	if err != nil {
		t.Fatalf("Uint: %v", err)
	}
	if v != 512 {
		t.Errorf("got %d, want 512", v)
	}
}

func TestParseEntryOutOfLine(t *testing.T) {
	// Three LONGs (12 bytes) exceed the classic 4-byte slot.
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:], TagTileOffsets)
	binary.LittleEndian.PutUint16(buf[2:], uint16(TypeLong))
	binary.LittleEndian.PutUint32(buf[4:], 3)
	binary.LittleEndian.PutUint32(buf[8:], 1000)

	e, err := parseEntry(buf, binary.LittleEndian, false)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if e.inline != nil {
		t.Fatal("three LONGs should not be inline")
	}
	if e.valueOff != 1000 {
		t.Errorf("valueOff = %d, want 1000", e.valueOff)
	}
	if e.valueSize() != 12 {
		t.Errorf("valueSize = %d, want 12", e.valueSize())
	}
}

func TestParseEntryBigTIFFInline(t *testing.T) {
	// Two LONGs fit the 8-byte BigTIFF slot.
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint16(buf[0:], TagTileOffsets)
	binary.LittleEndian.PutUint16(buf[2:], uint16(TypeLong))
	binary.LittleEndian.PutUint64(buf[4:], 2)
	binary.LittleEndian.PutUint32(buf[12:], 7)
	binary.LittleEndian.PutUint32(buf[16:], 9)

	e, err := parseEntry(buf, binary.LittleEndian, true)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if e.inline == nil {
		t.Fatal("two LONGs should be inline in BigTIFF")
	}

	tag, err := decodeTag(e, e.inline, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	vs, err := tag.Uints()
	if err != nil {
		t.Fatalf("Uints: %v", err)
	}
	if len(vs) != 2 || vs[0] != 7 || vs[1] != 9 {
		t.Errorf("got %v, want [7 9]", vs)
	}
}

func TestParseEntryUnknownFieldType(t *testing.T) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:], TagImageWidth)
	binary.LittleEndian.PutUint16(buf[2:], 99)
	binary.LittleEndian.PutUint32(buf[4:], 1)

	if _, err := parseEntry(buf, binary.LittleEndian, false); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("got %v, want ErrMalformedTag", err)
	}
}

func TestDecodeTagDouble(t *testing.T) {
	data := make([]byte, 24)
	for i, v := range []float64{1.5, -2.25, 1e9} {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}

	e := rawEntry{id: TagModelPixelScale, ftype: TypeDouble, count: 3}
	tag, err := decodeTag(e, data, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	vs, err := tag.Float64s()
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if vs[0] != 1.5 || vs[1] != -2.25 || vs[2] != 1e9 {
		t.Errorf("got %v", vs)
	}
}

func TestDecodeTagASCII(t *testing.T) {
	e := rawEntry{id: TagGDALNoData, ftype: TypeASCII, count: 4}
	tag, err := decodeTag(e, []byte("-99\x00"), binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	s, err := tag.ASCII()
	if err != nil {
		t.Fatalf("ASCII: %v", err)
	}
	if s != "-99" {
		t.Errorf("got %q, want -99", s)
	}
}

func TestDecodeTagTruncated(t *testing.T) {
	e := rawEntry{id: TagTileOffsets, ftype: TypeLong, count: 4}
	if _, err := decodeTag(e, make([]byte, 8), binary.LittleEndian); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("got %v, want ErrMalformedTag", err)
	}
}

func TestTagTypeMismatch(t *testing.T) {
	e := rawEntry{id: TagGeoAsciiParams, ftype: TypeASCII, count: 3}
	tag, err := decodeTag(e, []byte("ab\x00"), binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	if _, err := tag.Uints(); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("Uints on ASCII tag: got %v, want ErrMalformedTag", err)
	}
	if _, err := tag.Float64s(); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("Float64s on ASCII tag: got %v, want ErrMalformedTag", err)
	}
}

func TestTagName(t *testing.T) {
	if got := TagName(TagGeoKeyDirectory); got != "GeoKeyDirectory" {
		t.Errorf("got %q", got)
	}
	if got := TagName(60000); got != "60000" {
		t.Errorf("got %q", got)
	}
}
