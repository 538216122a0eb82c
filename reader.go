package cog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
)

// Reader states.
const (
	stateUnopened = iota
	stateReady
	stateFailed
	stateClosed
)

// Options configures a Reader. The zero value is usable.
type Options struct {
	// Logger receives structured debug output. Defaults to slog.Default.
	Logger *slog.Logger

	// ImageDecoder handles JPEG-compressed tiles. Defaults to image/jpeg.
	ImageDecoder ImageDecoder

	// TileCacheSize is the maximum number of decoded tiles kept in memory.
	// Zero disables caching.
	TileCacheSize int64

	// TileCacheTTL bounds how long a cached tile stays valid. Zero means
	// one hour.
	TileCacheTTL time.Duration

	// OverviewTolerance bounds how far an overview's x and y decimation
	// factors may diverge before the pyramid is rejected, as a fraction
	// of the factor. Zero means 0.1.
	OverviewTolerance float64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ImageDecoder == nil {
		o.ImageDecoder = stdImageDecoder{}
	}
	if o.TileCacheTTL == 0 {
		o.TileCacheTTL = time.Hour
	}
	if o.OverviewTolerance == 0 {
		o.OverviewTolerance = 0.1
	}
	return o
}

// Reader reads a Cloud-Optimized GeoTIFF through range requests against a
// ByteSource, decoding only the directories and tiles a caller asks for.
// It is safe for concurrent use once Open has returned.
type Reader struct {
	src  ByteSource
	opts Options
	log  *slog.Logger

	state   int
	header  header
	levels  []level
	codecs  []*tileCodec
	epsg    int
	geokeys geoKeySet
	nodata  *float64
	geoErr  error
	openErr error

	tileCache *ccache.Cache[*RasterData]
	inflight  singleflight.Group
}

// NewReader wraps a ByteSource. The stream is not touched until Open.
func NewReader(src ByteSource, opts Options) *Reader {
	opts = opts.withDefaults()
	return &Reader{
		src:  src,
		opts: opts,
		log:  opts.Logger,
	}
}

// OpenURL opens a COG served over HTTP with default options.
func OpenURL(ctx context.Context, url string) (*Reader, error) {
	src, err := NewHTTPSource(url, nil)
	if err != nil {
		return nil, err
	}
	r := NewReader(src, Options{})
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenFile opens a COG from the local filesystem with default options.
func OpenFile(ctx context.Context, path string) (*Reader, error) {
	src, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(src, Options{})
	if err := r.Open(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// Open fetches and parses the header, the full IFD chain, and the
// georeferencing keys. A Reader that fails to open stays failed; Open on an
// already-open Reader is a no-op.
func (r *Reader) Open(ctx context.Context) error {
	switch r.state {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return r.openErr
	}

	if err := r.open(ctx); err != nil {
		r.state = stateFailed
		r.openErr = err
		return err
	}
	r.state = stateReady
	return nil
}

func (r *Reader) open(ctx context.Context) error {
	start := time.Now()

	headBuf, err := r.src.ReadRange(ctx, 0, min(16, r.src.Length()))
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	h, err := parseHeader(headBuf)
	if err != nil {
		return err
	}
	r.header = h

	ifds, err := loadChain(ctx, r.src, h)
	if err != nil {
		return err
	}

	base := ifds[0]
	r.geokeys, err = parseGeoKeys(base)
	if err != nil {
		return err
	}
	r.epsg = r.geokeys.epsg()

	// Missing georeferencing is deferred: tile reads still work, only the
	// geo-facing accessors and windowed reads report it.
	transform, err := deriveGeotransform(base)
	if err != nil {
		if !errors.Is(err, ErrMissingGeoreferencing) {
			return err
		}
		r.geoErr = err
		transform = Geotransform{A: 1, E: -1, F: float64(base.ImageHeight())}
	}

	r.levels, err = buildPyramid(ifds, transform, r.opts.OverviewTolerance)
	if err != nil {
		return err
	}

	r.codecs = make([]*tileCodec, len(r.levels))
	for i, lv := range r.levels {
		if r.codecs[i], err = newTileCodec(lv.ifd, r.opts.ImageDecoder); err != nil {
			return fmt.Errorf("overview %d: %w", i, err)
		}
	}

	r.nodata = parseNoData(base)

	if r.opts.TileCacheSize > 0 {
		r.tileCache = ccache.New(ccache.Configure[*RasterData]().MaxSize(r.opts.TileCacheSize))
	}

	r.log.Debug("opened geotiff",
		"bigtiff", h.bigTIFF,
		"overviews", len(r.levels)-1,
		"epsg", r.epsg,
		"width", base.ImageWidth(),
		"height", base.ImageHeight(),
		"elapsed", time.Since(start))
	return nil
}

// Close releases the underlying source if it is closable and empties the
// tile cache. Further calls on the Reader return ErrClosed.
func (r *Reader) Close() error {
	if r.state == stateClosed {
		return nil
	}
	r.state = stateClosed
	if r.tileCache != nil {
		r.tileCache.Stop()
		r.tileCache = nil
	}
	if c, ok := r.src.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *Reader) ready() error {
	switch r.state {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	case stateFailed:
		return r.openErr
	default:
		return fmt.Errorf("reader is not open: %w", ErrInvalidTiff)
	}
}

// IFDs returns every parsed directory, full resolution first.
func (r *Reader) IFDs() []*IFD {
	out := make([]*IFD, len(r.levels))
	for i, lv := range r.levels {
		out[i] = lv.ifd
	}
	return out
}

// Width and Height are the full-resolution raster dimensions.
func (r *Reader) Width() int  { return r.levels[0].ifd.ImageWidth() }
func (r *Reader) Height() int { return r.levels[0].ifd.ImageHeight() }

// Bands is the number of samples per pixel.
func (r *Reader) Bands() int { return r.levels[0].ifd.SamplesPerPixel() }

// EPSG returns the CRS code, or 0 when the file declares none.
func (r *Reader) EPSG() int { return r.epsg }

// Geotransform returns the pixel-to-model affine of the full resolution.
// It fails with ErrMissingGeoreferencing for files carrying no
// georeferencing tags; such files still serve GetTile.
func (r *Reader) Geotransform() (Geotransform, error) {
	if r.geoErr != nil {
		return Geotransform{}, r.geoErr
	}
	return r.levels[0].transform, nil
}

// Bounds returns the model-space envelope of the full-resolution image.
func (r *Reader) Bounds() (orb.Bound, error) {
	if r.geoErr != nil {
		return orb.Bound{}, r.geoErr
	}
	lv := r.levels[0]
	return lv.transform.Bounds(lv.ifd.ImageWidth(), lv.ifd.ImageHeight()), nil
}

// Overviews returns the decimation factor of each overview level.
func (r *Reader) Overviews() []int { return decimations(r.levels) }

// NoData returns the declared nodata value, if any.
func (r *Reader) NoData() *float64 { return r.nodata }
