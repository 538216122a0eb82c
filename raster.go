package cog

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RasterData holds decoded pixels as flat band-interleaved samples. Each
// sample is widened to a uint64 carrying the value's bit pattern, so float
// rasters round-trip exactly; use FloatAt or Float64 to interpret values.
type RasterData struct {
	Width  int
	Height int
	Bands  int
	Type   SampleType

	// Pixels is indexed (y*Width+x)*Bands + band.
	Pixels []uint64
}

func newRasterData(width, height, bands int, st SampleType) *RasterData {
	return &RasterData{
		Width:  width,
		Height: height,
		Bands:  bands,
		Type:   st,
		Pixels: make([]uint64, width*height*bands),
	}
}

// At returns the raw sample at a pixel.
func (r *RasterData) At(x, y, band int) uint64 {
	return r.Pixels[(y*r.Width+x)*r.Bands+band]
}

// Float64 interprets one raw sample according to the raster's data type.
func (r *RasterData) Float64(v uint64) float64 {
	switch r.Type {
	case SampleInt8:
		return float64(int8(v))
	case SampleInt16:
		return float64(int16(v))
	case SampleInt32:
		return float64(int32(v))
	case SampleFloat32:
		return float64(math.Float32frombits(uint32(v)))
	case SampleFloat64:
		return math.Float64frombits(v)
	default:
		return float64(v)
	}
}

// FloatAt returns the sample at a pixel as a float64.
func (r *RasterData) FloatAt(x, y, band int) float64 {
	return r.Float64(r.At(x, y, band))
}

// setSample widens one raw sample from buf into the pixel array.
func decodeSample(buf []byte, st SampleType, bo binary.ByteOrder) uint64 {
	switch st.Size() {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(bo.Uint16(buf))
	case 4:
		return uint64(bo.Uint32(buf))
	default:
		return bo.Uint64(buf)
	}
}

// decodeSamples widens a decoded tile's raw bytes into a RasterData of the
// tile's dimensions.
func decodeSamples(buf []byte, width, height, bands int, st SampleType, bo binary.ByteOrder) (*RasterData, error) {
	n := width * height * bands
	size := st.Size()
	if len(buf) < n*size {
		return nil, fmt.Errorf("raster holds %d of %d bytes: %w", len(buf), n*size, ErrCorruptTile)
	}

	r := newRasterData(width, height, bands, st)
	for i := 0; i < n; i++ {
		r.Pixels[i] = decodeSample(buf[i*size:], st, bo)
	}
	return r, nil
}
