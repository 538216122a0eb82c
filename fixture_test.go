package cog

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// memSource serves range reads from an in-memory byte slice.
type memSource struct {
	data []byte
}

func (s memSource) Length() int64 { return int64(len(s.data)) }

func (s memSource) ReadRange(_ context.Context, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off+length > int64(len(s.data)) {
		return nil, fmt.Errorf("range %d+%d outside %d bytes", off, length, len(s.data))
	}
	out := make([]byte, length)
	copy(out, s.data[off:off+length])
	return out, nil
}

// tiffEntry is one tag to be serialized: id, field type, and the value bytes
// already encoded little-endian.
type tiffEntry struct {
	id    uint16
	ftype FieldType
	count uint64
	data  []byte
}

func entShort(id uint16, vals ...uint16) tiffEntry {
	data := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[i*2:], v)
	}
	return tiffEntry{id: id, ftype: TypeShort, count: uint64(len(vals)), data: data}
}

func entLong(id uint16, vals ...uint32) tiffEntry {
	data := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[i*4:], v)
	}
	return tiffEntry{id: id, ftype: TypeLong, count: uint64(len(vals)), data: data}
}

func entDouble(id uint16, vals ...float64) tiffEntry {
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return tiffEntry{id: id, ftype: TypeDouble, count: uint64(len(vals)), data: data}
}

func entASCII(id uint16, s string) tiffEntry {
	data := append([]byte(s), 0)
	return tiffEntry{id: id, ftype: TypeASCII, count: uint64(len(data)), data: data}
}

// tiffBuilder assembles a little-endian classic or BigTIFF stream: header,
// then data blocks, then the IFD chain.
type tiffBuilder struct {
	big bool
	buf []byte
}

func newTIFFBuilder(big bool) *tiffBuilder {
	b := &tiffBuilder{big: big}
	b.buf = append(b.buf, 'I', 'I')
	if big {
		b.append16(bigTIFFVersion)
		b.append16(8)
		b.append16(0)
		b.append64(0) // first IFD offset, patched later
	} else {
		b.append16(tiffVersion)
		b.append32(0) // first IFD offset, patched later
	}
	return b
}

func (b *tiffBuilder) append16(v uint16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
}

func (b *tiffBuilder) append32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

func (b *tiffBuilder) append64(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

// addBlock appends raw bytes (tile data) and returns their offset.
func (b *tiffBuilder) addBlock(data []byte) uint64 {
	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
	off := uint64(len(b.buf))
	b.buf = append(b.buf, data...)
	return off
}

// addIFD serializes one directory at the current end of the stream. When
// last is false the next-IFD pointer targets the position immediately after
// this directory and its out-of-line values.
func (b *tiffBuilder) addIFD(entries []tiffEntry, last bool) uint64 {
	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	off := uint64(len(b.buf))
	countLen, slotLen, nextLen := 2, 4, 4
	if b.big {
		countLen, slotLen, nextLen = 8, 8, 8
	}
	esize := uint64(entrySize(b.big))

	// Out-of-line values land right after the next-IFD pointer.
	outOff := off + uint64(countLen) + uint64(len(entries))*esize + uint64(nextLen)
	var extra []byte

	if b.big {
		b.append64(uint64(len(entries)))
	} else {
		b.append16(uint16(len(entries)))
	}

	for _, e := range entries {
		b.append16(e.id)
		b.append16(uint16(e.ftype))
		if b.big {
			b.append64(e.count)
		} else {
			b.append32(uint32(e.count))
		}
		if len(e.data) <= slotLen {
			slot := make([]byte, slotLen)
			copy(slot, e.data)
			b.buf = append(b.buf, slot...)
		} else {
			valueOff := outOff + uint64(len(extra))
			if b.big {
				b.append64(valueOff)
			} else {
				b.append32(uint32(valueOff))
			}
			extra = append(extra, e.data...)
			if len(extra)%2 == 1 {
				extra = append(extra, 0)
			}
		}
	}

	next := uint64(0)
	if !last {
		next = outOff + uint64(len(extra))
		if next%2 == 1 {
			next++
		}
	}
	if b.big {
		b.append64(next)
	} else {
		b.append32(uint32(next))
	}
	b.buf = append(b.buf, extra...)
	return off
}

// bytes patches the first-IFD offset and returns the finished stream.
func (b *tiffBuilder) bytes(firstIFD uint64) []byte {
	if b.big {
		binary.LittleEndian.PutUint64(b.buf[8:16], firstIFD)
	} else {
		binary.LittleEndian.PutUint32(b.buf[4:8], uint32(firstIFD))
	}
	return b.buf
}

// testPixel is the deterministic fill of the full-resolution fixture raster.
func testPixel(x, y int) byte {
	return byte(x + 2*y)
}

const (
	fixtureWidth      = 64
	fixtureHeight     = 48
	fixtureTileWidth  = 32
	fixtureTileHeight = 16
	fixtureEPSG       = 32617
	fixtureOverviewPx = 7
)

// geoEntries returns the georeferencing tags shared by fixtures. The raster
// spans 1 unit per pixel with its upper-left corner at (100, 200).
func geoEntries() []tiffEntry {
	return []tiffEntry{
		entDouble(TagModelPixelScale, 1, 1, 0),
		entDouble(TagModelTiepoint, 0, 0, 0, 100, 200, 0),
		entShort(TagGeoKeyDirectory,
			1, 1, 0, 3,
			geoKeyModelType, 0, 1, 1, // projected
			geoKeyRasterType, 0, 1, 1, // pixel-is-area
			geoKeyProjectedCS, 0, 1, fixtureEPSG,
		),
	}
}

// buildTestCOG assembles an uncompressed two-level tiled COG: 64x48 uint8
// full resolution with pixel value testPixel(x,y), plus a 32x24 overview
// filled with fixtureOverviewPx.
func buildTestCOG(big bool) []byte {
	b := newTIFFBuilder(big)

	cols := fixtureWidth / fixtureTileWidth
	rows := fixtureHeight / fixtureTileHeight
	var offsets, counts []uint32
	for ty := 0; ty < rows; ty++ {
		for tx := 0; tx < cols; tx++ {
			tile := make([]byte, fixtureTileWidth*fixtureTileHeight)
			for y := 0; y < fixtureTileHeight; y++ {
				for x := 0; x < fixtureTileWidth; x++ {
					tile[y*fixtureTileWidth+x] = testPixel(tx*fixtureTileWidth+x, ty*fixtureTileHeight+y)
				}
			}
			offsets = append(offsets, uint32(b.addBlock(tile)))
			counts = append(counts, uint32(len(tile)))
		}
	}

	ovTile := make([]byte, fixtureTileWidth*fixtureTileHeight)
	for i := range ovTile {
		ovTile[i] = fixtureOverviewPx
	}
	ovOff0 := uint32(b.addBlock(ovTile))
	ovOff1 := uint32(b.addBlock(ovTile))

	full := append([]tiffEntry{
		entLong(TagImageWidth, fixtureWidth),
		entLong(TagImageLength, fixtureHeight),
		entShort(TagBitsPerSample, 8),
		entShort(TagCompression, CompressionNone),
		entShort(TagPhotometricInterpretation, 1),
		entShort(TagSamplesPerPixel, 1),
		entLong(TagTileWidth, fixtureTileWidth),
		entLong(TagTileLength, fixtureTileHeight),
		entLong(TagTileOffsets, offsets...),
		entLong(TagTileByteCounts, counts...),
		entASCII(TagGDALNoData, "255"),
	}, geoEntries()...)

	overview := []tiffEntry{
		entLong(TagImageWidth, fixtureWidth/2),
		entLong(TagImageLength, fixtureHeight/2),
		entShort(TagBitsPerSample, 8),
		entShort(TagCompression, CompressionNone),
		entShort(TagPhotometricInterpretation, 1),
		entShort(TagSamplesPerPixel, 1),
		entLong(TagTileWidth, fixtureTileWidth),
		entLong(TagTileLength, fixtureTileHeight),
		entLong(TagTileOffsets, ovOff0, ovOff1),
		entLong(TagTileByteCounts, uint32(len(ovTile)), uint32(len(ovTile))),
	}

	first := b.addIFD(full, false)
	b.addIFD(overview, true)
	return b.bytes(first)
}

// openTestCOG opens the fixture through a memSource.
func openTestCOG(big bool, opts Options) (*Reader, error) {
	r := NewReader(memSource{data: buildTestCOG(big)}, opts)
	if err := r.Open(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}
