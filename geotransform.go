package cog

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Geotransform is the affine map from pixel space to model (CRS) space,
// in GDAL coefficient order:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// C and F are the model coordinates of the outer corner of pixel (0,0).
type Geotransform struct {
	A, B, C, D, E, F float64
}

// Apply maps a pixel coordinate to model space.
func (g Geotransform) Apply(col, row float64) (float64, float64) {
	return g.A*col + g.B*row + g.C, g.D*col + g.E*row + g.F
}

// Invert maps a model coordinate back to pixel space.
func (g Geotransform) Invert(x, y float64) (float64, float64, error) {
	det := g.A*g.E - g.B*g.D
	if det == 0 {
		return 0, 0, fmt.Errorf("geotransform is singular: %w", ErrMissingGeoreferencing)
	}
	dx, dy := x-g.C, y-g.F
	return (g.E*dx - g.B*dy) / det, (g.A*dy - g.D*dx) / det, nil
}

// Resolution returns the absolute pixel size along each axis.
func (g Geotransform) Resolution() (float64, float64) {
	return math.Hypot(g.A, g.D), math.Hypot(g.B, g.E)
}

// Bounds returns the model-space envelope of an image of the given pixel
// dimensions. All four corners are mapped so rotated transforms still yield
// a correct envelope.
func (g Geotransform) Bounds(width, height int) orb.Bound {
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}

	b := orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
	for _, c := range corners {
		x, y := g.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// scaleBy returns the transform of an image decimated by the given factors,
// keeping the same model-space origin.
func (g Geotransform) scaleBy(fx, fy float64) Geotransform {
	return Geotransform{
		A: g.A * fx, B: g.B * fy, C: g.C,
		D: g.D * fx, E: g.E * fy, F: g.F,
	}
}
