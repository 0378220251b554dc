package normals

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestPlanarNormalMostlyUpright(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	pts := make([]pointcloud.Point, 200)
	for i := range pts {
		pts[i] = pointcloud.Point{
			X: r.Float64()*10 - 5,
			Y: r.Float64()*10 - 5,
			Z: 0,
		}
	}
	cloud := pointcloud.New(pts)
	idx := knn.NewKDTree(pts)

	out := Estimate(cloud, idx, 15, false, nil)

	good := 0
	for _, n := range out.Normals {
		cos := math.Abs(n.Dot(pointcloud.Point{Z: 1}))
		if cos > 1 {
			cos = 1
		}
		angle := math.Acos(cos) * 180 / math.Pi
		if angle < 5 {
			good++
		}
	}
	frac := float64(good) / float64(len(out.Normals))
	if frac <= 0.95 {
		t.Fatalf("only %v%% of normals within 5 degrees of vertical", frac*100)
	}
}

func TestNormalUnitLength(t *testing.T) {
	pts := []pointcloud.Point{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {0.5, 0.5, 0.01},
	}
	n := CovarianceNormal(pts, []uint32{0, 1, 2, 3, 4})
	if math.Abs(n.Norm()-1) > 1e-9 {
		t.Fatalf("expected unit normal, got norm %v", n.Norm())
	}
}

func TestFewerThanThreeNeighborsDefault(t *testing.T) {
	pts := []pointcloud.Point{{0, 0, 0}, {1, 0, 0}}
	cloud := pointcloud.New(pts)
	idx := knn.NewKDTree(pts)
	out := Estimate(cloud, idx, 2, false, nil)
	for _, n := range out.Normals {
		if n != DefaultNormal {
			t.Fatalf("expected default normal for k<3, got %v", n)
		}
	}
}
