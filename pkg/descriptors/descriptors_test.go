package descriptors

import (
	"math"
	"testing"

	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func planarCloud() *pointcloud.Cloud {
	var pts []pointcloud.Point
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			pts = append(pts, pointcloud.Point{X: float64(x) * 0.5, Y: float64(y) * 0.5, Z: 0})
		}
	}
	normals := make([]pointcloud.Point, len(pts))
	for i := range normals {
		normals[i] = pointcloud.Point{Z: 1}
	}
	return &pointcloud.Cloud{Points: pts, Normals: normals}
}

func TestFPFHNoNormalsYieldsZero(t *testing.T) {
	cloud := pointcloud.New([]pointcloud.Point{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := knn.NewKDTree(cloud.Points)
	e := &FPFHExtractor{NumNeighbors: 2}
	out := e.Compute(cloud, idx, []uint32{0})
	for _, v := range out[0] {
		if v != 0 {
			t.Fatalf("expected all-zero signature without normals, got %v", out[0])
		}
	}
}

func TestFPFHProducesNonTrivialHistogram(t *testing.T) {
	cloud := planarCloud()
	idx := knn.NewKDTree(cloud.Points)
	e := &FPFHExtractor{NumNeighbors: 8}
	out := e.Compute(cloud, idx, []uint32{12})

	var sum float64
	for _, v := range out[0] {
		sum += v
	}
	if sum <= 0 {
		t.Fatalf("expected non-zero FPFH histogram mass, got sum %v", sum)
	}
}

func TestSHOTSignatureIsUnitNorm(t *testing.T) {
	cloud := planarCloud()
	idx := knn.NewKDTree(cloud.Points)
	e := &SHOTExtractor{Radius: 1.2}
	out := e.Compute(cloud, idx, []uint32{12})

	var sumSq float64
	for _, v := range out[0] {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1) > 1e-6 {
		t.Fatalf("expected unit-norm SHOT signature, got norm %v", norm)
	}
}

func TestSHOTTooFewNeighborsYieldsZero(t *testing.T) {
	cloud := planarCloud()
	idx := knn.NewKDTree(cloud.Points)
	e := &SHOTExtractor{Radius: 0.01}
	out := e.Compute(cloud, idx, []uint32{12})
	for _, v := range out[0] {
		if v != 0 {
			t.Fatalf("expected all-zero signature with no neighbors in radius, got %v", out[0])
		}
	}
}

func TestShapeContextSignatureSumsToDensityWeight(t *testing.T) {
	cloud := planarCloud()
	idx := knn.NewKDTree(cloud.Points)
	e := &ShapeContextExtractor{Radius: 1.2, MinimalRadius: 0.05, DensityRadius: 0.6}
	out := e.Compute(cloud, idx, []uint32{12})

	var sum float64
	for _, v := range out[0] {
		sum += v
	}
	weight := pointDensityWeight(idx, cloud.Points[12], 0.6)
	if weight == 0 {
		t.Fatal("expected non-zero density weight in a dense planar patch")
	}
	if math.Abs(sum-weight) > 1e-9 {
		t.Fatalf("expected L1-normalized histogram scaled by density weight %v, got sum %v", weight, sum)
	}
}

func TestSignatureDistanceSelfZero(t *testing.T) {
	var a FPFHSignature
	for i := range a {
		a[i] = float64(i)
	}
	if d := a.Distance(a); d != 0 {
		t.Fatalf("expected zero self-distance, got %v", d)
	}
}
