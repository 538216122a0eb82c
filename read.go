package cog

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentTiles bounds the per-read tile fan-out.
const maxConcurrentTiles = 8

// Read decodes the given model-space window into an output raster of
// width x height pixels. The overview level closest to the requested
// resolution serves the read; covering tiles are fetched concurrently and
// the window is resampled with nearest neighbor; the part of the window
// outside the raster is padded by edge replication. Any tile failure fails
// the whole read.
func (r *Reader) Read(ctx context.Context, bounds orb.Bound, width, height int) (*RasterData, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if r.geoErr != nil {
		return nil, r.geoErr
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("output size %dx%d: %w", width, height, ErrOutOfRange)
	}
	if r.levels[0].ifd.PlanarConfiguration() == PlanarSeparate {
		return nil, fmt.Errorf("windowed reads of planar images: %w", ErrUnsupportedCompression)
	}

	levelIdx := selectLevel(r.levels, bounds, width)
	lv := r.levels[levelIdx]
	codec := r.codecs[levelIdx]

	// Project the window into this level's pixel space.
	x0, y0, err := lv.transform.Invert(bounds.Min[0], bounds.Max[1])
	if err != nil {
		return nil, err
	}
	x1, y1, err := lv.transform.Invert(bounds.Max[0], bounds.Min[1])
	if err != nil {
		return nil, err
	}
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}

	imgW, imgH := lv.ifd.ImageWidth(), lv.ifd.ImageHeight()
	if x1 <= 0 || y1 <= 0 || x0 >= float64(imgW) || y0 >= float64(imgH) {
		return nil, fmt.Errorf("window %v outside raster bounds: %w", bounds, ErrOutOfRange)
	}

	win := pixelWindow{
		x0: int(math.Floor(x0)), y0: int(math.Floor(y0)),
		x1: int(math.Ceil(x1)), y1: int(math.Ceil(y1)),
	}
	win.clamp(imgW, imgH)

	stitched, err := r.readWindow(ctx, levelIdx, lv, codec, win)
	if err != nil {
		return nil, err
	}

	// Map output pixels back through the continuous window for the
	// resample so sub-pixel alignment survives the integer snap above.
	return resample(stitched, win, x0, y0, x1, y1, width, height), nil
}

type pixelWindow struct {
	x0, y0, x1, y1 int // half-open
}

func (w *pixelWindow) clamp(imgW, imgH int) {
	w.x0 = max(w.x0, 0)
	w.y0 = max(w.y0, 0)
	w.x1 = min(w.x1, imgW)
	w.y1 = min(w.y1, imgH)
}

func (w pixelWindow) width() int  { return w.x1 - w.x0 }
func (w pixelWindow) height() int { return w.y1 - w.y0 }

// readWindow fetches every tile intersecting win and stitches the covered
// pixels into one raster of the window's size.
func (r *Reader) readWindow(ctx context.Context, levelIdx int, lv level, codec *tileCodec, win pixelWindow) (*RasterData, error) {
	tw, th := codec.width, codec.height
	tx0, ty0 := win.x0/tw, win.y0/th
	tx1, ty1 := (win.x1-1)/tw, (win.y1-1)/th

	bands := lv.ifd.SamplesPerPixel()
	out := newRasterData(win.width(), win.height(), bands, lv.ifd.SampleType())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTiles)

	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			tx, ty := tx, ty
			g.Go(func() error {
				tile, err := r.GetTile(ctx, levelIdx, tx, ty)
				if err != nil {
					return err
				}
				// Each tile writes a disjoint region of out.
				copyTile(out, tile, win, tx*tw, ty*th)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// copyTile copies the intersection of a tile (whose top-left raster pixel is
// at ox,oy) and the window into the stitched output.
func copyTile(out, tile *RasterData, win pixelWindow, ox, oy int) {
	sx0 := max(win.x0-ox, 0)
	sy0 := max(win.y0-oy, 0)
	sx1 := min(win.x1-ox, tile.Width)
	sy1 := min(win.y1-oy, tile.Height)

	bands := out.Bands
	for sy := sy0; sy < sy1; sy++ {
		dst := ((oy+sy-win.y0)*out.Width + (ox + sx0 - win.x0)) * bands
		src := (sy*tile.Width + sx0) * bands
		copy(out.Pixels[dst:dst+(sx1-sx0)*bands], tile.Pixels[src:src+(sx1-sx0)*bands])
	}
}

// resample maps the continuous pixel window [x0,x1)x[y0,y1) onto a
// width x height output with nearest neighbor. Output pixels whose source
// falls outside the stitched window clamp to the nearest edge sample, so a
// request that overhangs the raster repeats its border rather than
// introducing fill values.
func resample(src *RasterData, win pixelWindow, x0, y0, x1, y1 float64, width, height int) *RasterData {
	out := newRasterData(width, height, src.Bands, src.Type)

	sx := (x1 - x0) / float64(width)
	sy := (y1 - y0) / float64(height)
	for oy := 0; oy < height; oy++ {
		py := int(y0+(float64(oy)+0.5)*sy) - win.y0
		py = min(max(py, 0), src.Height-1)
		for ox := 0; ox < width; ox++ {
			px := int(x0+(float64(ox)+0.5)*sx) - win.x0
			px = min(max(px, 0), src.Width-1)

			dst := (oy*width + ox) * src.Bands
			s := (py*src.Width + px) * src.Bands
			copy(out.Pixels[dst:dst+src.Bands], src.Pixels[s:s+src.Bands])
		}
	}
	return out
}
