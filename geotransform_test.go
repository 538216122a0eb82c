package cog

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestGeotransformRoundTrip(t *testing.T) {
	g := Geotransform{A: 30, B: 0, C: 500000, D: 0, E: -30, F: 4000000}

	x, y := g.Apply(10, 20)
	if x != 500300 || y != 3999400 {
		t.Fatalf("Apply = (%g, %g)", x, y)
	}

	col, row, err := g.Invert(x, y)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	if math.Abs(col-10) > 1e-9 || math.Abs(row-20) > 1e-9 {
		t.Errorf("Invert = (%g, %g), want (10, 20)", col, row)
	}
}

func TestGeotransformInvertSingular(t *testing.T) {
	g := Geotransform{}
	if _, _, err := g.Invert(1, 1); err == nil {
		t.Error("singular transform should not invert")
	}
}

func TestGeotransformBounds(t *testing.T) {
	g := Geotransform{A: 1, E: -1, C: 100, F: 200}
	b := g.Bounds(64, 48)

	want := orb.Bound{Min: orb.Point{100, 152}, Max: orb.Point{164, 200}}
	if b != want {
		t.Errorf("got %v, want %v", b, want)
	}
}

func TestGeotransformBoundsRotated(t *testing.T) {
	// 90 degree rotation still yields a tight envelope.
	g := Geotransform{A: 0, B: 1, D: -1, E: 0}
	b := g.Bounds(10, 4)

	if b.Min[0] != 0 || b.Max[0] != 4 || b.Min[1] != -10 || b.Max[1] != 0 {
		t.Errorf("got %v", b)
	}
}

func TestGeotransformResolution(t *testing.T) {
	g := Geotransform{A: 3, D: 4, B: 0, E: -2}
	rx, ry := g.Resolution()
	if rx != 5 {
		t.Errorf("rx = %g, want 5", rx)
	}
	if ry != 2 {
		t.Errorf("ry = %g, want 2", ry)
	}
}
