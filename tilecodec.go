package cog

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// ImageDecoder turns a compressed tile in an image codec format (JPEG) into
// raw band-interleaved sample bytes. The default implementation uses
// image/jpeg; callers with libjpeg-turbo bindings or YCbCr-aware pipelines
// can swap in their own.
type ImageDecoder interface {
	DecodeImage(data []byte, tw, th, samplesPerPixel int) ([]byte, error)
}

type stdImageDecoder struct{}

func (stdImageDecoder) DecodeImage(data []byte, tw, th, samplesPerPixel int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode failed: %w", err)
	}

	out := make([]byte, tw*th*samplesPerPixel)
	b := img.Bounds()
	for y := 0; y < th && y < b.Dy(); y++ {
		for x := 0; x < tw && x < b.Dx(); x++ {
			i := (y*tw + x) * samplesPerPixel
			switch im := img.(type) {
			case *image.Gray:
				out[i] = im.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			default:
				r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				out[i] = uint8(r >> 8)
				if samplesPerPixel > 1 {
					out[i+1] = uint8(g >> 8)
				}
				if samplesPerPixel > 2 {
					out[i+2] = uint8(bb >> 8)
				}
			}
		}
	}
	return out, nil
}

// tileCodec decompresses stored tile bytes and undoes the predictor. One
// codec is shared by all tiles of an IFD.
type tileCodec struct {
	compression int
	predictor   int
	width       int // tile width in pixels
	height      int
	spp         int // samples per pixel within the tile
	sampleSize  int // bytes per sample
	byteOrder   binary.ByteOrder
	jpegTables  []byte
	decoder     ImageDecoder
}

func newTileCodec(d *IFD, decoder ImageDecoder) (*tileCodec, error) {
	c := &tileCodec{
		compression: d.Compression(),
		predictor:   d.Predictor(),
		width:       d.TileWidth(),
		height:      d.TileHeight(),
		spp:         d.SamplesPerPixel(),
		sampleSize:  d.SampleType().Size(),
		byteOrder:   d.byteOrder,
		decoder:     decoder,
	}
	if !d.Tiled() {
		c.width = d.ImageWidth()
		c.height = d.RowsPerStrip()
	}
	if d.PlanarConfiguration() == PlanarSeparate {
		// Each stored chunk holds a single band.
		c.spp = 1
	}

	switch c.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, CompressionDeflateLegacy, CompressionPackBits:
	case CompressionJPEG, CompressionJPEGOld:
		if t, ok := d.Tag(TagJPEGTables); ok {
			if tables, err := t.Bytes(); err == nil {
				c.jpegTables = tables
			}
		}
	default:
		return nil, fmt.Errorf("compression %d: %w", c.compression, ErrUnsupportedCompression)
	}
	return c, nil
}

// sizeFor returns the decoded byte length of a chunk holding rows rows.
// Tiles always hold the full tile height; the last strip of a stripped image
// holds only the rows left in the image.
func (c *tileCodec) sizeFor(rows int) int {
	return c.width * rows * c.spp * c.sampleSize
}

// decode turns the stored bytes of one tile or strip into raw sample bytes
// of exactly sizeFor(rows) length.
func (c *tileCodec) decode(data []byte, rows int) ([]byte, error) {
	want := c.sizeFor(rows)

	var (
		out []byte
		err error
	)
	switch c.compression {
	case CompressionNone:
		out = data
	case CompressionLZW:
		out, err = readFull(lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8), want)
	case CompressionDeflate, CompressionDeflateLegacy:
		var zr io.ReadCloser
		zr, err = zlib.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = readFull(zr, want)
		}
	case CompressionPackBits:
		out, err = unpackBits(data, want)
	case CompressionJPEG, CompressionJPEGOld:
		return c.decodeJPEG(data, rows)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorruptTile)
	}

	if len(out) < want {
		return nil, fmt.Errorf("tile decoded to %d of %d bytes: %w", len(out), want, ErrCorruptTile)
	}
	out = out[:want]

	if c.predictor == PredictorHorizontal {
		if err := c.undoPredictor(out, rows); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, n))
	if _, err := io.CopyN(buf, r, int64(n)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *tileCodec) decodeJPEG(data []byte, rows int) ([]byte, error) {
	if len(c.jpegTables) > 4 && len(data) > 2 {
		// Splice the shared tables between the tile's SOI marker and the
		// rest of its stream, dropping the tables' own SOI/EOI markers.
		merged := make([]byte, 0, len(c.jpegTables)+len(data))
		merged = append(merged, data[:2]...)
		merged = append(merged, c.jpegTables[2:len(c.jpegTables)-2]...)
		merged = append(merged, data[2:]...)
		data = merged
	}
	out, err := c.decoder.DecodeImage(data, c.width, rows, c.spp)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorruptTile)
	}
	if len(out) != c.sizeFor(rows) {
		return nil, fmt.Errorf("image decoder produced %d of %d bytes: %w", len(out), c.sizeFor(rows), ErrCorruptTile)
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place: each sample is a
// delta from the previous pixel's sample of the same band, accumulated per
// row. Multi-byte samples are decoded and re-encoded in the file byte order.
func (c *tileCodec) undoPredictor(buf []byte, rows int) error {
	rowLen := c.width * c.spp * c.sampleSize
	switch c.sampleSize {
	case 1:
		for r := 0; r < rows; r++ {
			row := buf[r*rowLen : (r+1)*rowLen]
			for i := c.spp; i < len(row); i++ {
				row[i] += row[i-c.spp]
			}
		}
	case 2:
		for r := 0; r < rows; r++ {
			row := buf[r*rowLen : (r+1)*rowLen]
			for i := c.spp * 2; i < len(row); i += 2 {
				v := c.byteOrder.Uint16(row[i:]) + c.byteOrder.Uint16(row[i-c.spp*2:])
				c.byteOrder.PutUint16(row[i:], v)
			}
		}
	case 4:
		for r := 0; r < rows; r++ {
			row := buf[r*rowLen : (r+1)*rowLen]
			for i := c.spp * 4; i < len(row); i += 4 {
				v := c.byteOrder.Uint32(row[i:]) + c.byteOrder.Uint32(row[i-c.spp*4:])
				c.byteOrder.PutUint32(row[i:], v)
			}
		}
	default:
		return fmt.Errorf("horizontal predictor on %d-byte samples: %w", c.sampleSize, ErrUnsupportedCompression)
	}
	return nil
}

// unpackBits expands a PackBits run-length stream. n>=128 control bytes are
// ignored as no-ops per the TIFF specification.
func unpackBits(data []byte, max int) ([]byte, error) {
	out := make([]byte, 0, max)
	i := 0
	for i < len(data) && len(out) < max {
		n := int(int8(data[i]))
		i++
		switch {
		case n >= 0:
			end := i + n + 1
			if end > len(data) {
				return nil, fmt.Errorf("PackBits literal run of %d bytes truncated: %w", n+1, ErrCorruptTile)
			}
			out = append(out, data[i:end]...)
			i = end
		case n == -128:
			// no-op
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("PackBits repeat run missing its byte: %w", ErrCorruptTile)
			}
			for j := 0; j < 1-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}
