package cog

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// level is one entry of the resolution pyramid: an IFD plus its derived
// georeferencing.
type level struct {
	ifd       *IFD
	transform Geotransform
	// resolution is the pixel size along x at this level, strictly
	// increasing with the level index.
	resolution float64
}

// buildPyramid derives per-level transforms from the full-resolution IFD.
// Overview IFDs carry no georeferencing of their own; each level's transform
// is the base transform scaled by the decimation factor, with the tolerance
// bounding how far a level may drift from an exact power-of-two pyramid.
func buildPyramid(ifds []*IFD, base Geotransform, tolerance float64) ([]level, error) {
	baseW := ifds[0].ImageWidth()
	if baseW <= 0 || ifds[0].ImageHeight() <= 0 {
		return nil, fmt.Errorf("zero-sized full-resolution image: %w", ErrInvalidTiff)
	}

	levels := make([]level, 0, len(ifds))
	prev := math.Inf(-1)
	for i, d := range ifds {
		w, h := d.ImageWidth(), d.ImageHeight()
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("overview %d has zero size: %w", i, ErrInvalidTiff)
		}

		fx := float64(baseW) / float64(w)
		fy := float64(ifds[0].ImageHeight()) / float64(h)
		if tolerance > 0 && math.Abs(fx-fy) > tolerance*fx {
			return nil, fmt.Errorf("overview %d decimates %g along x but %g along y: %w", i, fx, fy, ErrInvalidTiff)
		}

		tr := base.scaleBy(fx, fy)
		res, _ := tr.Resolution()
		if res <= prev {
			return nil, fmt.Errorf("overview %d resolution %g does not coarsen the pyramid: %w", i, res, ErrInvalidTiff)
		}
		prev = res

		levels = append(levels, level{ifd: d, transform: tr, resolution: res})
	}
	return levels, nil
}

// decimations returns the integer decimation factor of each overview level,
// excluding the full-resolution image. The result matches what GDAL reports
// as the overview list.
func decimations(levels []level) []int {
	out := make([]int, 0, len(levels)-1)
	baseW := levels[0].ifd.ImageWidth()
	for _, lv := range levels[1:] {
		out = append(out, int(math.Round(float64(baseW)/float64(lv.ifd.ImageWidth()))))
	}
	return out
}

// selectLevel picks the pyramid level to serve a read of the given bounds at
// the given output width: the coarsest level whose native resolution still
// meets the requested one. Requests finer than the full resolution fall back
// to level 0; requests coarser than every overview use the last level.
func selectLevel(levels []level, bounds orb.Bound, width int) int {
	if width <= 0 {
		return 0
	}
	reqRes := (bounds.Max[0] - bounds.Min[0]) / float64(width)

	selected := 0
	for k, lv := range levels {
		if lv.resolution <= reqRes {
			selected = k
		} else {
			break
		}
	}
	return selected
}
