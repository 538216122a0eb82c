package cog

import (
	"strconv"
	"strings"
)

// Profile summarizes a dataset the way rasterio presents it: creation
// options plus georeferencing, enough to recreate an equivalent file.
type Profile struct {
	Driver     string       `json:"driver"`
	Dtype      string       `json:"dtype"`
	Nodata     *float64     `json:"nodata"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Count      int          `json:"count"`
	CRS        string       `json:"crs,omitempty"`
	Transform  Geotransform `json:"transform"`
	BlockXSize int          `json:"blockxsize,omitempty"`
	BlockYSize int          `json:"blockysize,omitempty"`
	Tiled      bool         `json:"tiled"`
	Compress   string       `json:"compress,omitempty"`
	Interleave string       `json:"interleave"`
}

func compressionName(c int) string {
	switch c {
	case CompressionLZW:
		return "lzw"
	case CompressionJPEG, CompressionJPEGOld:
		return "jpeg"
	case CompressionDeflate, CompressionDeflateLegacy:
		return "deflate"
	case CompressionPackBits:
		return "packbits"
	default:
		return ""
	}
}

// Profile returns the dataset profile of the full-resolution image.
func (r *Reader) Profile() Profile {
	d := r.levels[0].ifd

	p := Profile{
		Driver:     "GTiff",
		Dtype:      d.SampleType().String(),
		Nodata:     r.nodata,
		Width:      d.ImageWidth(),
		Height:     d.ImageHeight(),
		Count:      d.SamplesPerPixel(),
		Tiled:      d.Tiled(),
		Compress:   compressionName(d.Compression()),
		Interleave: "pixel",
	}
	if r.geoErr == nil {
		p.Transform = r.levels[0].transform
	}
	if r.epsg != 0 {
		p.CRS = "EPSG:" + strconv.Itoa(r.epsg)
	}
	if d.Tiled() {
		p.BlockXSize = d.TileWidth()
		p.BlockYSize = d.TileHeight()
	}
	if d.PlanarConfiguration() == PlanarSeparate {
		p.Interleave = "band"
	}
	return p
}

// parseNoData reads GDAL's nodata sidecar tag, an ASCII-encoded number.
func parseNoData(d *IFD) *float64 {
	t, ok := d.Tag(TagGDALNoData)
	if !ok {
		return nil
	}
	s, err := t.ASCII()
	if err != nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(s, "\x00")), 64)
	if err != nil {
		return nil
	}
	return &v
}
