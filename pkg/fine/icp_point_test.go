package fine

import (
	"math"
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// noisyPlaneCloud returns a small grid of points on the z=0 plane with
// normals pointing along +Z, used by both point-based and plane-based ICP
// tests.
func noisyPlaneCloud() *pointcloud.Cloud {
	var points []pointcloud.Point
	var normals []pointcloud.Point
	for x := 0.0; x < 3; x++ {
		for y := 0.0; y < 3; y++ {
			points = append(points, pointcloud.Point{X: x * 0.5, Y: y * 0.5, Z: 0})
			normals = append(normals, pointcloud.Point{X: 0, Y: 0, Z: 1})
		}
	}
	return &pointcloud.Cloud{Points: points, Normals: normals}
}

func smallRotation() [3][3]float64 {
	const theta = 0.05 // ~2.9 degrees, a reasonable ICP initial offset
	c, s := math.Cos(theta), math.Sin(theta)
	return [3][3]float64{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

func TestPointToPointICPConvergesOnSmallPerturbation(t *testing.T) {
	target := noisyPlaneCloud()
	truth := pointcloud.NewRigid(smallRotation(), [3]float64{0.02, -0.01, 0})
	source := target.Transformed(truth.Inverse())

	cfg := DefaultICPConfig()
	r := PointToPointICP{Config: cfg}
	result, err := r.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if diff := result.Transformation.FrobeniusDiff(truth); diff > 1e-3 {
		t.Fatalf("recovered transform too far from ground truth: diff=%v got=%+v want=%+v", diff, result.Transformation, truth)
	}
}

func TestPointToPointICPRejectsEmptySource(t *testing.T) {
	r := PointToPointICP{Config: DefaultICPConfig()}
	_, err := r.Register(pointcloud.New(nil), noisyPlaneCloud(), pointcloud.Identity())
	if err == nil {
		t.Fatal("expected an error for an empty source cloud")
	}
}

func TestPointToPointICPOutlierRejectionDropsWorstPairs(t *testing.T) {
	target := noisyPlaneCloud()
	source := target.Transformed(pointcloud.Identity())
	// Displace one source point far away so it cannot find a correspondence
	// within the max distance, simulating an outlier.
	source.Points[0] = pointcloud.Point{X: 50, Y: 50, Z: 50}

	cfg := DefaultICPConfig()
	cfg.OutlierRejectionRatio = 0.5
	r := PointToPointICP{Config: cfg}
	result, err := r.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence despite one outlier, got %+v", result)
	}
}
