package cog

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// FieldType is the on-disk data type of a tag value.
type FieldType uint16

const (
	TypeByte      FieldType = 1
	TypeASCII     FieldType = 2
	TypeShort     FieldType = 3
	TypeLong      FieldType = 4
	TypeRational  FieldType = 5
	TypeSByte     FieldType = 6
	TypeUndefined FieldType = 7
	TypeSShort    FieldType = 8
	TypeSLong     FieldType = 9
	TypeSRational FieldType = 10
	TypeFloat     FieldType = 11
	TypeDouble    FieldType = 12
	TypeLong8     FieldType = 16
	TypeSLong8    FieldType = 17
	TypeIFD8      FieldType = 18
)

// fieldTypeSize is the byte width of each field type, 0 for unrecognized.
var fieldTypeSize = [...]uint64{
	0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8,
	0, 0, 0, // reserved
	8, 8, 8,
}

// Size returns the byte width of one value of this type, 0 if unrecognized.
func (f FieldType) Size() uint64 {
	if int(f) >= len(fieldTypeSize) {
		return 0
	}
	return fieldTypeSize[f]
}

var fieldTypeLabels = map[FieldType]string{
	TypeByte:      "BYTE",
	TypeASCII:     "ASCII",
	TypeShort:     "SHORT",
	TypeLong:      "LONG",
	TypeRational:  "RATIONAL",
	TypeSByte:     "SBYTE",
	TypeUndefined: "UNDEFINED",
	TypeSShort:    "SSHORT",
	TypeSLong:     "SLONG",
	TypeSRational: "SRATIONAL",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeLong8:     "LONG8",
	TypeSLong8:    "SLONG8",
	TypeIFD8:      "IFD8",
}

func (f FieldType) String() string {
	if s, ok := fieldTypeLabels[f]; ok {
		return s
	}
	return fmt.Sprintf("unrecognized field type %d", uint16(f))
}

// TIFF and GeoTIFF tag ids used by the reader.
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagSampleFormat              = 339
	TagJPEGTables                = 347
	TagModelPixelScale           = 33550
	TagModelTiepoint             = 33922
	TagModelTransformation       = 34264
	TagGeoKeyDirectory           = 34735
	TagGeoDoubleParams           = 34736
	TagGeoAsciiParams            = 34737
	TagGDALNoData                = 42113
)

var tagLabels = map[uint16]string{
	TagImageWidth:                "ImageWidth",
	TagImageLength:               "ImageLength",
	TagBitsPerSample:             "BitsPerSample",
	TagCompression:               "Compression",
	TagPhotometricInterpretation: "PhotometricInterpretation",
	TagStripOffsets:              "StripOffsets",
	TagSamplesPerPixel:           "SamplesPerPixel",
	TagRowsPerStrip:              "RowsPerStrip",
	TagStripByteCounts:           "StripByteCounts",
	TagPlanarConfiguration:       "PlanarConfiguration",
	TagPredictor:                 "Predictor",
	TagTileWidth:                 "TileWidth",
	TagTileLength:                "TileLength",
	TagTileOffsets:               "TileOffsets",
	TagTileByteCounts:            "TileByteCounts",
	TagSampleFormat:              "SampleFormat",
	TagJPEGTables:                "JPEGTables",
	TagModelPixelScale:           "ModelPixelScale",
	TagModelTiepoint:             "ModelTiepoint",
	TagModelTransformation:       "ModelTransformation",
	TagGeoKeyDirectory:           "GeoKeyDirectory",
	TagGeoDoubleParams:           "GeoDoubleParams",
	TagGeoAsciiParams:            "GeoAsciiParams",
	TagGDALNoData:                "GDALNoData",
}

// TagName returns the well-known name for a tag id, or its decimal form.
func TagName(id uint16) string {
	if s, ok := tagLabels[id]; ok {
		return s
	}
	return fmt.Sprintf("%d", id)
}

// Tag is a decoded directory entry. The value lives in exactly one of the
// typed slots; typed accessors fail with ErrMalformedTag on a type mismatch.
// Tags are immutable once parsed.
type Tag struct {
	ID    uint16
	Type  FieldType
	Count uint64

	byteVal      []byte
	asciiVal     string
	shortVal     []uint16
	longVal      []uint32
	long8Val     []uint64
	sshortVal    []int16
	slongVal     []int32
	floatVal     []float32
	doubleVal    []float64
	rationalVal  [][2]uint32
	srationalVal [][2]int32
}

func (t *Tag) String() string {
	return fmt.Sprintf("%s (%s x%d)", TagName(t.ID), t.Type, t.Count)
}

// Uint returns the first value of an integer-typed tag widened to uint64.
func (t *Tag) Uint() (uint64, error) {
	vs, err := t.Uints()
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("tag %s has no values: %w", TagName(t.ID), ErrMalformedTag)
	}
	return vs[0], nil
}

// Uints returns all values of an integer-typed tag widened to uint64.
func (t *Tag) Uints() ([]uint64, error) {
	switch t.Type {
	case TypeByte, TypeUndefined:
		out := make([]uint64, len(t.byteVal))
		for i, v := range t.byteVal {
			out[i] = uint64(v)
		}
		return out, nil
	case TypeShort:
		out := make([]uint64, len(t.shortVal))
		for i, v := range t.shortVal {
			out[i] = uint64(v)
		}
		return out, nil
	case TypeLong:
		out := make([]uint64, len(t.longVal))
		for i, v := range t.longVal {
			out[i] = uint64(v)
		}
		return out, nil
	case TypeLong8, TypeIFD8:
		out := make([]uint64, len(t.long8Val))
		copy(out, t.long8Val)
		return out, nil
	default:
		return nil, fmt.Errorf("tag %s is %s, not an unsigned integer type: %w", TagName(t.ID), t.Type, ErrMalformedTag)
	}
}

// Shorts returns the values of a SHORT tag.
func (t *Tag) Shorts() ([]uint16, error) {
	if t.Type != TypeShort {
		return nil, fmt.Errorf("tag %s is %s, not SHORT: %w", TagName(t.ID), t.Type, ErrMalformedTag)
	}
	return t.shortVal, nil
}

// Float64s returns the values of a FLOAT or DOUBLE tag as float64.
func (t *Tag) Float64s() ([]float64, error) {
	switch t.Type {
	case TypeDouble:
		return t.doubleVal, nil
	case TypeFloat:
		out := make([]float64, len(t.floatVal))
		for i, v := range t.floatVal {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tag %s is %s, not FLOAT/DOUBLE: %w", TagName(t.ID), t.Type, ErrMalformedTag)
	}
}

// ASCII returns the value of an ASCII tag with trailing NULs stripped.
func (t *Tag) ASCII() (string, error) {
	if t.Type != TypeASCII {
		return "", fmt.Errorf("tag %s is %s, not ASCII: %w", TagName(t.ID), t.Type, ErrMalformedTag)
	}
	return t.asciiVal, nil
}

// Bytes returns the raw payload of a BYTE or UNDEFINED tag.
func (t *Tag) Bytes() ([]byte, error) {
	if t.Type != TypeByte && t.Type != TypeUndefined {
		return nil, fmt.Errorf("tag %s is %s, not BYTE/UNDEFINED: %w", TagName(t.ID), t.Type, ErrMalformedTag)
	}
	return t.byteVal, nil
}

// rawEntry is a directory entry before its value bytes are resolved.
type rawEntry struct {
	id       uint16
	ftype    FieldType
	count    uint64
	valueOff uint64 // file offset of the value when it does not fit inline
	inline   []byte // the value slot bytes, valid when the value fits
}

// classic entries are 12 bytes with a 4-byte value slot; BigTIFF entries are
// 20 bytes with an 8-byte slot.
func entrySize(bigTIFF bool) int {
	if bigTIFF {
		return 20
	}
	return 12
}

// parseEntry decodes one fixed-size directory entry from buf.
func parseEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) (rawEntry, error) {
	var e rawEntry
	e.id = bo.Uint16(buf[0:2])
	e.ftype = FieldType(bo.Uint16(buf[2:4]))
	if e.ftype.Size() == 0 {
		return e, fmt.Errorf("tag %s has unrecognized field type %d: %w", TagName(e.id), uint16(e.ftype), ErrMalformedTag)
	}

	var slot []byte
	if bigTIFF {
		e.count = bo.Uint64(buf[4:12])
		slot = buf[12:20]
		e.valueOff = bo.Uint64(slot)
	} else {
		e.count = uint64(bo.Uint32(buf[4:8]))
		slot = buf[8:12]
		e.valueOff = uint64(bo.Uint32(slot))
	}

	if total := e.ftype.Size() * e.count; total <= uint64(len(slot)) {
		e.inline = slot[:total]
	}
	return e, nil
}

// valueSize returns the byte length of the entry's full value.
func (e rawEntry) valueSize() uint64 {
	return e.ftype.Size() * e.count
}

// decodeTag turns the raw value bytes of an entry into a typed Tag. data must
// hold exactly valueSize bytes, either the inline slot or an out-of-line read.
func decodeTag(e rawEntry, data []byte, bo binary.ByteOrder) (*Tag, error) {
	if uint64(len(data)) < e.valueSize() {
		return nil, fmt.Errorf("tag %s declares %d bytes but %d available: %w", TagName(e.id), e.valueSize(), len(data), ErrMalformedTag)
	}

	t := &Tag{ID: e.id, Type: e.ftype, Count: e.count}
	n := int(e.count)

	switch e.ftype {
	case TypeByte, TypeSByte, TypeUndefined:
		t.byteVal = make([]byte, n)
		copy(t.byteVal, data[:n])
	case TypeASCII:
		t.asciiVal = strings.TrimRight(string(data[:n]), "\x00")
	case TypeShort:
		t.shortVal = make([]uint16, n)
		for i := 0; i < n; i++ {
			t.shortVal[i] = bo.Uint16(data[i*2:])
		}
	case TypeSShort:
		t.sshortVal = make([]int16, n)
		for i := 0; i < n; i++ {
			t.sshortVal[i] = int16(bo.Uint16(data[i*2:]))
		}
	case TypeLong:
		t.longVal = make([]uint32, n)
		for i := 0; i < n; i++ {
			t.longVal[i] = bo.Uint32(data[i*4:])
		}
	case TypeSLong:
		t.slongVal = make([]int32, n)
		for i := 0; i < n; i++ {
			t.slongVal[i] = int32(bo.Uint32(data[i*4:]))
		}
	case TypeLong8, TypeSLong8, TypeIFD8:
		t.long8Val = make([]uint64, n)
		for i := 0; i < n; i++ {
			t.long8Val[i] = bo.Uint64(data[i*8:])
		}
	case TypeFloat:
		t.floatVal = make([]float32, n)
		for i := 0; i < n; i++ {
			t.floatVal[i] = math.Float32frombits(bo.Uint32(data[i*4:]))
		}
	case TypeDouble:
		t.doubleVal = make([]float64, n)
		for i := 0; i < n; i++ {
			t.doubleVal[i] = math.Float64frombits(bo.Uint64(data[i*8:]))
		}
	case TypeRational:
		t.rationalVal = make([][2]uint32, n)
		for i := 0; i < n; i++ {
			t.rationalVal[i][0] = bo.Uint32(data[i*8:])
			t.rationalVal[i][1] = bo.Uint32(data[i*8+4:])
		}
	case TypeSRational:
		t.srationalVal = make([][2]int32, n)
		for i := 0; i < n; i++ {
			t.srationalVal[i][0] = int32(bo.Uint32(data[i*8:]))
			t.srationalVal[i][1] = int32(bo.Uint32(data[i*8+4:]))
		}
	default:
		return nil, fmt.Errorf("tag %s has unrecognized field type %d: %w", TagName(e.id), uint16(e.ftype), ErrMalformedTag)
	}
	return t, nil
}
