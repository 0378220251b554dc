package pointcloud

import (
	"math"
	"testing"
)

func TestPointNormalized(t *testing.T) {
	p := Point{3, 4, 0}
	n := p.Normalized()
	if math.Abs(n.Norm()-1) > 1e-12 {
		t.Fatalf("expected unit norm, got %v", n.Norm())
	}
}

func TestTransformInverse(t *testing.T) {
	r := [3][3]float64{
		{0, -1, 0},
		{1, 0, 0},
		{0, 0, 1},
	}
	tr := NewRigid(r, [3]float64{1, 2, 3})
	inv := tr.Inverse()
	roundTrip := tr.Compose(inv)
	id := Identity()
	if roundTrip.FrobeniusDiff(id) > 1e-9 {
		t.Fatalf("expected identity, got %v", roundTrip)
	}
}

func TestTransformApply(t *testing.T) {
	r := [3][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	tr := NewRigid(r, [3]float64{1, 1, 1})
	got := tr.Apply(Point{1, 2, 3})
	want := Point{2, 3, 4}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestCloudValidate(t *testing.T) {
	c := &Cloud{Points: make([]Point, 3), Normals: make([]Point, 2)}
	if err := c.Validate(); err == nil {
		t.Fatal("expected mismatch error")
	}
}
