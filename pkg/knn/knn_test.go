package knn

import (
	"math"
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

func grid27() []pointcloud.Point {
	var pts []pointcloud.Point
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			for z := 0; z < 3; z++ {
				pts = append(pts, pointcloud.Point{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}
	return pts
}

func TestBruteForceGridL2(t *testing.T) {
	pts := grid27()
	bf := NewBruteForce(pts, func(a, b pointcloud.Point) float64 { return a.Distance(b) })
	nl, ok := bf.KNeighbors(pointcloud.Point{X: 1.5, Y: 1.5, Z: 1.5}, 5)
	if !ok {
		t.Fatal("expected ok")
	}
	if math.Abs(nl.Distances[0]-math.Sqrt(0.75)) > 1e-8 {
		t.Fatalf("nearest dist = %v, want sqrt(0.75)", nl.Distances[0])
	}
	for i := 1; i < nl.Len(); i++ {
		if nl.Distances[i] < nl.Distances[i-1] {
			t.Fatalf("not sorted: %v", nl.Distances)
		}
	}
}

func TestBruteForceGridL1AndLInf(t *testing.T) {
	pts := grid27()
	bfL1 := NewBruteForce(pts, func(a, b pointcloud.Point) float64 {
		return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y) + math.Abs(a.Z-b.Z)
	})
	nl, _ := bfL1.KNeighbors(pointcloud.Point{X: 1.5, Y: 1.5, Z: 1.5}, 5)
	if math.Abs(nl.Distances[0]-1.5) > 1e-8 {
		t.Fatalf("L1 nearest = %v, want 1.5", nl.Distances[0])
	}

	bfLInf := NewBruteForce(pts, func(a, b pointcloud.Point) float64 {
		dx, dy, dz := math.Abs(a.X-b.X), math.Abs(a.Y-b.Y), math.Abs(a.Z-b.Z)
		m := dx
		if dy > m {
			m = dy
		}
		if dz > m {
			m = dz
		}
		return m
	})
	nl2, _ := bfLInf.KNeighbors(pointcloud.Point{X: 1.5, Y: 1.5, Z: 1.5}, 5)
	if math.Abs(nl2.Distances[0]-0.5) > 1e-8 {
		t.Fatalf("LInf nearest = %v, want 0.5", nl2.Distances[0])
	}
}

func TestKDTreeMatchesBruteForce(t *testing.T) {
	pts := grid27()
	bf := NewBruteForce(pts, l2Point)
	tree := NewKDTree(pts)

	q := pointcloud.Point{X: 1.5, Y: 1.5, Z: 1.5}
	bfNl, _ := bf.KNeighbors(q, 7)
	treeNl, _ := tree.KNeighbors(q, 7)
	if len(bfNl.Distances) != len(treeNl.Distances) {
		t.Fatalf("length mismatch %d vs %d", len(bfNl.Distances), len(treeNl.Distances))
	}
	for i := range bfNl.Distances {
		if math.Abs(bfNl.Distances[i]-treeNl.Distances[i]) > 1e-9 {
			t.Fatalf("distance %d mismatch: %v vs %v", i, bfNl.Distances[i], treeNl.Distances[i])
		}
	}
}

func TestKDTreeRadius(t *testing.T) {
	pts := grid27()
	tree := NewKDTree(pts)
	nl, ok := tree.RadiusNeighbors(pointcloud.Point{X: 1, Y: 1, Z: 1}, 1.01)
	if !ok {
		t.Fatal("expected ok")
	}
	for _, d := range nl.Distances {
		if d > 1.01 {
			t.Fatalf("distance %v exceeds radius", d)
		}
	}
}

func TestBruteForceEmptyFails(t *testing.T) {
	bf := NewBruteForce[pointcloud.Point](nil, l2Point)
	if _, ok := bf.KNeighbors(pointcloud.Point{}, 3); ok {
		t.Fatal("expected failure on empty index")
	}
}

func TestRadiusNonPositiveFails(t *testing.T) {
	bf := NewBruteForce(grid27(), l2Point)
	if _, ok := bf.RadiusNeighbors(pointcloud.Point{}, 0); ok {
		t.Fatal("expected failure for radius <= 0")
	}
}

func TestBruteForceParallelMatchesSequential(t *testing.T) {
	pts := grid27()
	pool := workerpool.New(4)
	defer pool.Close()

	seq := NewBruteForce(pts, l2Point)
	par := NewBruteForceParallel(pts, l2Point, pool)

	q := pointcloud.Point{X: 1.2, Y: 0.3, Z: 2.1}
	seqNl, _ := seq.KNeighbors(q, 10)
	parNl, _ := par.KNeighbors(q, 10)
	for i := range seqNl.Distances {
		if math.Abs(seqNl.Distances[i]-parNl.Distances[i]) > 1e-9 {
			t.Fatalf("distance %d mismatch: %v vs %v", i, seqNl.Distances[i], parNl.Distances[i])
		}
		if seqNl.Indices[i] != parNl.Indices[i] {
			t.Fatalf("index %d mismatch: %v vs %v", i, seqNl.Indices[i], parNl.Indices[i])
		}
	}
}

func TestTieBreakAscendingIndex(t *testing.T) {
	pts := []pointcloud.Point{{X: 0}, {X: 1}, {X: -1}, {X: 1}, {X: -1}}
	bf := NewBruteForce(pts, l2Point)
	nl, _ := bf.KNeighbors(pointcloud.Point{X: 0}, 5)
	// distances: 0,1,1,1,1 at idx 0,1,2,3,4 -> ties among idx1..4 broken ascending
	if nl.Indices[0] != 0 {
		t.Fatalf("expected idx 0 first, got %v", nl.Indices)
	}
	if nl.Indices[1] != 1 || nl.Indices[2] != 2 || nl.Indices[3] != 3 || nl.Indices[4] != 4 {
		t.Fatalf("expected ascending-index tie break, got %v", nl.Indices)
	}
}
