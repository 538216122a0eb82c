package cog

import (
	"context"
	"fmt"
)

// GetTile fetches, decompresses and decodes a single internal tile of the
// given overview level. x and y are tile column and row; the result has the
// level's full tile dimensions, with sparse (zero-length) tiles returned as
// all zeros. Strips of a non-tiled image are served as full-width tiles, so
// the last strip may be shorter than RowsPerStrip.
func (r *Reader) GetTile(ctx context.Context, levelIdx, x, y int) (*RasterData, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if levelIdx < 0 || levelIdx >= len(r.levels) {
		return nil, fmt.Errorf("overview level %d of %d: %w", levelIdx, len(r.levels), ErrOutOfRange)
	}

	lv := r.levels[levelIdx]
	cols, rows := lv.ifd.TileCount()
	if x < 0 || x >= cols || y < 0 || y >= rows {
		return nil, fmt.Errorf("tile (%d,%d) outside %dx%d grid of level %d: %w", x, y, cols, rows, levelIdx, ErrOutOfRange)
	}

	key := fmt.Sprintf("%d/%d/%d", levelIdx, x, y)
	cache := r.tileCache
	if cache != nil {
		if item := cache.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
	}

	v, err, _ := r.inflight.Do(key, func() (any, error) {
		return r.decodeTileAt(ctx, lv, r.codecs[levelIdx], y*cols+x)
	})
	if err != nil {
		return nil, err
	}
	raster := v.(*RasterData)

	if cache != nil {
		cache.Set(key, raster, r.opts.TileCacheTTL)
	}
	return raster, nil
}

// decodeTileAt reads tile idx of one level from the source and runs it
// through the level's codec.
func (r *Reader) decodeTileAt(ctx context.Context, lv level, codec *tileCodec, idx int) (*RasterData, error) {
	offsets, err := lv.ifd.TileOffsets()
	if err != nil {
		return nil, err
	}
	counts, err := lv.ifd.TileByteCounts()
	if err != nil {
		return nil, err
	}
	if idx >= len(offsets) || idx >= len(counts) {
		return nil, fmt.Errorf("tile %d beyond %d stored tiles: %w", idx, len(offsets), ErrMalformedTag)
	}

	bands := codec.spp
	st := lv.ifd.SampleType()

	// Tiles are stored padded to full height; strips are not, so the last
	// strip holds only the rows left in the image.
	rows := codec.height
	if !lv.ifd.Tiled() {
		if rem := lv.ifd.ImageHeight() - idx*codec.height; rem < rows {
			rows = rem
		}
	}

	// Sparse tile: never written, reads as fill.
	if counts[idx] == 0 {
		return newRasterData(codec.width, rows, bands, st), nil
	}

	off, n := offsets[idx], counts[idx]
	if off+n > uint64(r.src.Length()) {
		return nil, fmt.Errorf("tile %d at %d+%d runs past end of stream: %w", idx, off, n, ErrCorruptTile)
	}

	data, err := r.src.ReadRange(ctx, int64(off), int64(n))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile %d: %w", idx, err)
	}

	raw, err := codec.decode(data, rows)
	if err != nil {
		return nil, fmt.Errorf("tile %d: %w", idx, err)
	}
	return decodeSamples(raw, codec.width, rows, bands, st, lv.ifd.byteOrder)
}
