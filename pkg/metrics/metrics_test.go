package metrics

import (
	"math"
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestMetricSelfDistanceZero(t *testing.T) {
	a := Vector{1, 2, 3, 4}
	for _, m := range []Metric[Vector]{L1{}, L2{}, LInf{}, Minkowski{}, Cosine{}, Angular{}} {
		if d := m.Distance(a, a); math.Abs(d) > 1e-9 {
			t.Errorf("%T: d(a,a) = %v, want 0", m, d)
		}
	}
}

func TestMetricSymmetry(t *testing.T) {
	a := Vector{1, 2, 3}
	b := Vector{4, -1, 2}
	for _, m := range []Metric[Vector]{L1{}, L2{}, LInf{}, Minkowski{}, Cosine{}, Angular{}} {
		if math.Abs(m.Distance(a, b)-m.Distance(b, a)) > 1e-9 {
			t.Errorf("%T: not symmetric", m)
		}
	}
}

func TestL2KnownValues(t *testing.T) {
	a := Vector{1.5, 1.5, 1.5}
	b := Vector{1, 1, 1}
	if got := (L2{}).Distance(a, b); math.Abs(got-math.Sqrt(0.75)) > 1e-8 {
		t.Fatalf("got %v want sqrt(0.75)", got)
	}
	if got := (L1{}).Distance(a, b); math.Abs(got-1.5) > 1e-8 {
		t.Fatalf("got %v want 1.5", got)
	}
	if got := (LInf{}).Distance(a, b); math.Abs(got-0.5) > 1e-8 {
		t.Fatalf("got %v want 0.5", got)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	if d := (Cosine{}).Distance(Vector{0, 0, 0}, Vector{1, 2, 3}); d != 1 {
		t.Fatalf("got %v want 1", d)
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("bogus"); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestByNameMatchesStatic(t *testing.T) {
	a := Vector{1, 2, 3}
	b := Vector{3, 1, 0}
	d, err := ByName("l2")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.Distance(a, b)-(L2{}).Distance(a, b)) > 1e-12 {
		t.Fatal("dynamic l2 mismatch")
	}
}

func TestPointMetricAgainstGrid(t *testing.T) {
	q := pointcloud.Point{X: 1.5, Y: 1.5, Z: 1.5}
	p := pointcloud.Point{X: 1, Y: 1, Z: 1}
	if got := (PointL2{}).Distance(q, p); math.Abs(got-math.Sqrt(0.75)) > 1e-8 {
		t.Fatalf("got %v", got)
	}
}
