package cog

import (
	"github.com/paulmach/orb"
)

// PolygonFromBounds turns an envelope into a single-ring polygon, wound
// counter-clockwise from the lower-left corner and closed. Empty bounds
// yield an empty polygon.
func PolygonFromBounds(bound orb.Bound) orb.Polygon {
	if bound.IsEmpty() {
		return orb.Polygon{}
	}

	return orb.Polygon{orb.Ring{
		bound.Min,
		{bound.Max[0], bound.Min[1]},
		bound.Max,
		{bound.Min[0], bound.Max[1]},
		bound.Min,
	}}
}

// PointFromPixel converts pixel coordinates at an overview level to a model
// space point.
func (r *Reader) PointFromPixel(x, y int, levelIdx int) orb.Point {
	if levelIdx < 0 || levelIdx >= len(r.levels) {
		return orb.Point{}
	}

	gx, gy := r.levels[levelIdx].transform.Apply(float64(x), float64(y))
	return orb.Point{gx, gy}
}

// PixelFromPoint converts a model space point to pixel coordinates at an
// overview level.
func (r *Reader) PixelFromPoint(point orb.Point, levelIdx int) (int, int) {
	if levelIdx < 0 || levelIdx >= len(r.levels) {
		return 0, 0
	}

	px, py, err := r.levels[levelIdx].transform.Invert(point[0], point[1])
	if err != nil {
		return 0, 0
	}
	return int(px), int(py)
}

// ImagePolygon returns the footprint of an overview level as a polygon.
func (r *Reader) ImagePolygon(levelIdx int) orb.Polygon {
	if levelIdx < 0 || levelIdx >= len(r.levels) {
		return orb.Polygon{}
	}

	lv := r.levels[levelIdx]
	return PolygonFromBounds(lv.transform.Bounds(lv.ifd.ImageWidth(), lv.ifd.ImageHeight()))
}

// CornerPoints returns the four corner points of an overview level,
// clockwise from the top-left.
func (r *Reader) CornerPoints(levelIdx int) [4]orb.Point {
	if levelIdx < 0 || levelIdx >= len(r.levels) {
		return [4]orb.Point{}
	}

	lv := r.levels[levelIdx]
	w, h := float64(lv.ifd.ImageWidth()), float64(lv.ifd.ImageHeight())

	var corners [4]orb.Point
	for i, c := range [4][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}} {
		x, y := lv.transform.Apply(c[0], c[1])
		corners[i] = orb.Point{x, y}
	}
	return corners
}
