package geo

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pt := orb.Point{1.5, -2.25}
	b, err := Encode(pt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gp, ok := got.(orb.Point)
	if !ok {
		t.Fatalf("expected orb.Point, got %T", got)
	}
	if gp != pt {
		t.Fatalf("round trip mismatch: got %v, want %v", gp, pt)
	}
}

func TestCentroidOfLineString(t *testing.T) {
	ls := orb.LineString{{0, 0}, {10, 10}}
	c, ok := Centroid(ls)
	if !ok {
		t.Fatalf("expected centroid")
	}
	if c.X() != 5 || c.Y() != 5 {
		t.Fatalf("unexpected centroid: %v", c)
	}
}

func TestCompareDetectsTranslation(t *testing.T) {
	old := orb.Point{0, 0}
	newG := orb.Point{1, 1}
	d, err := Compare(old, newG)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if d.CentroidDX != 1 || d.CentroidDY != 1 {
		t.Fatalf("unexpected difference: %+v", d)
	}
}
