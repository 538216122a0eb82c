package cog

import (
	"context"
	"encoding/binary"
	"fmt"
)

// TIFF header magic values.
const (
	byteOrderLittle = 0x4949 // "II"
	byteOrderBig    = 0x4D4D // "MM"

	tiffVersion    = 42
	bigTIFFVersion = 43

	bigTIFFOffsetSize = 8
)

// Compression ids.
const (
	CompressionNone          = 1
	CompressionLZW           = 5
	CompressionJPEGOld       = 6
	CompressionJPEG          = 7
	CompressionDeflate       = 8
	CompressionPackBits      = 32773
	CompressionDeflateLegacy = 32946
)

// Predictor ids.
const (
	PredictorNone       = 1
	PredictorHorizontal = 2
)

// Planar configurations.
const (
	PlanarChunky   = 1
	PlanarSeparate = 2
)

// Sample formats.
const (
	SampleFormatUint  = 1
	SampleFormatInt   = 2
	SampleFormatFloat = 3
)

// SampleType is the pixel data type derived from BitsPerSample+SampleFormat.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleInt8
	SampleUint16
	SampleInt16
	SampleUint32
	SampleInt32
	SampleFloat32
	SampleFloat64
)

// Size returns the byte width of one sample.
func (st SampleType) Size() int {
	switch st {
	case SampleUint8, SampleInt8:
		return 1
	case SampleUint16, SampleInt16:
		return 2
	case SampleUint32, SampleInt32, SampleFloat32:
		return 4
	case SampleFloat64:
		return 8
	default:
		return 1
	}
}

// String returns the rasterio-style dtype name.
func (st SampleType) String() string {
	switch st {
	case SampleUint8:
		return "uint8"
	case SampleInt8:
		return "int8"
	case SampleUint16:
		return "uint16"
	case SampleInt16:
		return "int16"
	case SampleUint32:
		return "uint32"
	case SampleInt32:
		return "int32"
	case SampleFloat32:
		return "float32"
	case SampleFloat64:
		return "float64"
	default:
		return "uint8"
	}
}

// IFD is one parsed Image File Directory: the tags of a single image (the
// full-resolution raster or one overview) plus the offset of the next
// directory. Accessors apply the TIFF defaulting rules for absent tags.
type IFD struct {
	tags       map[uint16]*Tag
	order      []uint16 // tag ids in parse order
	nextOffset uint64
	byteOrder  binary.ByteOrder
}

// Tag returns the tag with the given id, if present.
func (d *IFD) Tag(id uint16) (*Tag, bool) {
	t, ok := d.tags[id]
	return t, ok
}

// Tags returns the directory's tags in parse order.
func (d *IFD) Tags() []*Tag {
	out := make([]*Tag, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.tags[id])
	}
	return out
}

// uintTag returns the first integer value of a tag, or def when the tag is
// absent or not integer-typed.
func (d *IFD) uintTag(id uint16, def uint64) uint64 {
	t, ok := d.tags[id]
	if !ok {
		return def
	}
	v, err := t.Uint()
	if err != nil {
		return def
	}
	return v
}

func (d *IFD) ImageWidth() int  { return int(d.uintTag(TagImageWidth, 0)) }
func (d *IFD) ImageHeight() int { return int(d.uintTag(TagImageLength, 0)) }

// TileWidth and TileHeight are 0 for stripped images.
func (d *IFD) TileWidth() int  { return int(d.uintTag(TagTileWidth, 0)) }
func (d *IFD) TileHeight() int { return int(d.uintTag(TagTileLength, 0)) }

// Tiled reports whether the image stores tiles rather than strips.
func (d *IFD) Tiled() bool {
	_, ok := d.tags[TagTileOffsets]
	return ok
}

func (d *IFD) SamplesPerPixel() int { return int(d.uintTag(TagSamplesPerPixel, 1)) }
func (d *IFD) BitsPerSample() int   { return int(d.uintTag(TagBitsPerSample, 8)) }
func (d *IFD) SampleFormat() int    { return int(d.uintTag(TagSampleFormat, SampleFormatUint)) }
func (d *IFD) Compression() int     { return int(d.uintTag(TagCompression, CompressionNone)) }
func (d *IFD) Predictor() int       { return int(d.uintTag(TagPredictor, PredictorNone)) }

// PlanarConfiguration defaults to chunky per the TIFF specification.
func (d *IFD) PlanarConfiguration() int { return int(d.uintTag(TagPlanarConfiguration, PlanarChunky)) }

func (d *IFD) PhotometricInterpretation() int {
	return int(d.uintTag(TagPhotometricInterpretation, 1))
}

// RowsPerStrip defaults to the full image height (single strip).
func (d *IFD) RowsPerStrip() int {
	return int(d.uintTag(TagRowsPerStrip, uint64(d.ImageHeight())))
}

// SampleType maps BitsPerSample and SampleFormat to a pixel data type.
func (d *IFD) SampleType() SampleType {
	bits := d.BitsPerSample()
	switch d.SampleFormat() {
	case SampleFormatInt:
		switch bits {
		case 8:
			return SampleInt8
		case 16:
			return SampleInt16
		default:
			return SampleInt32
		}
	case SampleFormatFloat:
		if bits == 64 {
			return SampleFloat64
		}
		return SampleFloat32
	default:
		switch bits {
		case 16:
			return SampleUint16
		case 32:
			return SampleUint32
		default:
			return SampleUint8
		}
	}
}

// TileCount returns the number of tile columns and rows. Stripped images
// count strips as full-width tiles.
func (d *IFD) TileCount() (int, int) {
	w, h := d.ImageWidth(), d.ImageHeight()
	tw, th := d.TileWidth(), d.TileHeight()
	if !d.Tiled() {
		tw, th = w, d.RowsPerStrip()
	}
	if tw <= 0 || th <= 0 {
		return 0, 0
	}
	return (w + tw - 1) / tw, (h + th - 1) / th
}

// TileOffsets returns the file offsets of each tile (or strip).
func (d *IFD) TileOffsets() ([]uint64, error) {
	id := uint16(TagTileOffsets)
	if !d.Tiled() {
		id = TagStripOffsets
	}
	t, ok := d.tags[id]
	if !ok {
		return nil, fmt.Errorf("missing %s: %w", TagName(id), ErrMalformedTag)
	}
	return t.Uints()
}

// TileByteCounts returns the stored byte length of each tile (or strip).
func (d *IFD) TileByteCounts() ([]uint64, error) {
	id := uint16(TagTileByteCounts)
	if !d.Tiled() {
		id = TagStripByteCounts
	}
	t, ok := d.tags[id]
	if !ok {
		return nil, fmt.Errorf("missing %s: %w", TagName(id), ErrMalformedTag)
	}
	return t.Uints()
}

// header is the decoded 8 or 16 byte TIFF/BigTIFF file header.
type header struct {
	byteOrder binary.ByteOrder
	bigTIFF   bool
	firstIFD  uint64
}

// parseHeader validates the magic and returns the first-IFD offset. buf must
// hold at least 8 bytes (16 for BigTIFF).
func parseHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < 8 {
		return h, fmt.Errorf("header truncated at %d bytes: %w", len(buf), ErrInvalidTiff)
	}

	switch binary.BigEndian.Uint16(buf[0:2]) {
	case byteOrderLittle:
		h.byteOrder = binary.LittleEndian
	case byteOrderBig:
		h.byteOrder = binary.BigEndian
	default:
		return h, fmt.Errorf("bad byte order mark 0x%04x: %w", binary.BigEndian.Uint16(buf[0:2]), ErrInvalidTiff)
	}

	switch h.byteOrder.Uint16(buf[2:4]) {
	case tiffVersion:
		h.firstIFD = uint64(h.byteOrder.Uint32(buf[4:8]))
	case bigTIFFVersion:
		h.bigTIFF = true
		if len(buf) < 16 {
			return h, fmt.Errorf("BigTIFF header truncated: %w", ErrInvalidTiff)
		}
		if h.byteOrder.Uint16(buf[4:6]) != bigTIFFOffsetSize {
			return h, fmt.Errorf("bad BigTIFF offset size: %w", ErrInvalidTiff)
		}
		h.firstIFD = h.byteOrder.Uint64(buf[8:16])
	default:
		return h, fmt.Errorf("bad version %d: %w", h.byteOrder.Uint16(buf[2:4]), ErrInvalidTiff)
	}
	return h, nil
}

// parseIFD reads and decodes one directory at off: the entry count, every
// entry, out-of-line values, and the trailing next-IFD offset. The whole
// entry block is fetched in a single range read to keep round trips down.
func parseIFD(ctx context.Context, src ByteSource, h header, off uint64) (*IFD, error) {
	size := uint64(src.Length())
	if off >= size {
		return nil, fmt.Errorf("IFD offset %d beyond stream of %d bytes: %w", off, size, ErrInvalidTiff)
	}

	countLen := uint64(2)
	nextLen := uint64(4)
	if h.bigTIFF {
		countLen, nextLen = 8, 8
	}
	if size-off < countLen {
		return nil, fmt.Errorf("IFD at %d truncates its entry count: %w", off, ErrInvalidTiff)
	}

	countBuf, err := src.ReadRange(ctx, int64(off), int64(countLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read IFD entry count: %w", err)
	}
	var numEntries uint64
	if h.bigTIFF {
		numEntries = h.byteOrder.Uint64(countBuf)
	} else {
		numEntries = uint64(h.byteOrder.Uint16(countBuf))
	}

	// Bound the declared count by the remaining stream before any size
	// arithmetic, so a hostile 64-bit count cannot wrap it.
	esize := uint64(entrySize(h.bigTIFF))
	avail := size - off - countLen
	if numEntries > avail/esize {
		return nil, fmt.Errorf("IFD at %d declares %d entries but only %d bytes remain: %w", off, numEntries, avail, ErrInvalidTiff)
	}
	blockLen := numEntries*esize + nextLen
	if blockLen > avail {
		return nil, fmt.Errorf("IFD at %d with %d entries runs past end of stream: %w", off, numEntries, ErrInvalidTiff)
	}

	block, err := src.ReadRange(ctx, int64(off+countLen), int64(blockLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read IFD block: %w", err)
	}

	d := &IFD{
		tags:      make(map[uint16]*Tag, numEntries),
		byteOrder: h.byteOrder,
	}

	for i := uint64(0); i < numEntries; i++ {
		e, err := parseEntry(block[i*esize:(i+1)*esize], h.byteOrder, h.bigTIFF)
		if err != nil {
			return nil, err
		}

		data := e.inline
		if data == nil {
			vs := e.valueSize()
			if e.valueOff+vs > size {
				return nil, fmt.Errorf("tag %s value at %d runs past end of stream: %w", TagName(e.id), e.valueOff, ErrMalformedTag)
			}
			data, err = src.ReadRange(ctx, int64(e.valueOff), int64(vs))
			if err != nil {
				return nil, fmt.Errorf("failed to read value of tag %s: %w", TagName(e.id), err)
			}
		}

		t, err := decodeTag(e, data, h.byteOrder)
		if err != nil {
			return nil, err
		}
		if _, dup := d.tags[t.ID]; !dup {
			d.order = append(d.order, t.ID)
		}
		d.tags[t.ID] = t
	}

	next := block[numEntries*esize:]
	if h.bigTIFF {
		d.nextOffset = h.byteOrder.Uint64(next)
	} else {
		d.nextOffset = uint64(h.byteOrder.Uint32(next))
	}
	return d, nil
}

// loadChain walks the linked IFD list from the header's first offset into an
// ordered slice: index 0 is the full-resolution image, each following index
// one overview level.
func loadChain(ctx context.Context, src ByteSource, h header) ([]*IFD, error) {
	var ifds []*IFD
	seen := make(map[uint64]struct{})

	for off := h.firstIFD; off != 0; {
		if _, ok := seen[off]; ok {
			return nil, fmt.Errorf("IFD chain loops at offset %d: %w", off, ErrInvalidTiff)
		}
		seen[off] = struct{}{}

		d, err := parseIFD(ctx, src, h, off)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, d)
		off = d.nextOffset
	}

	if len(ifds) == 0 {
		return nil, fmt.Errorf("stream contains no IFDs: %w", ErrInvalidTiff)
	}
	return ifds, nil
}
