package fine

import (
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestPointToPlaneICPConvergesOnSmallPerturbation(t *testing.T) {
	target := noisyPlaneCloud()
	truth := pointcloud.NewRigid(smallRotation(), [3]float64{0.02, -0.01, 0})
	source := target.Transformed(truth.Inverse())

	r := PointToPlaneICP{Config: DefaultPointToPlaneICPConfig()}
	result, err := r.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if diff := result.Transformation.FrobeniusDiff(truth); diff > 1e-3 {
		t.Fatalf("recovered transform too far from ground truth: diff=%v", diff)
	}
}

func TestPointToPlaneICPRequiresTargetNormals(t *testing.T) {
	target := pointcloud.New(noisyPlaneCloud().Points) // no normals
	source := pointcloud.New(noisyPlaneCloud().Points)

	r := PointToPlaneICP{Config: DefaultPointToPlaneICPConfig()}
	_, err := r.Register(source, target, pointcloud.Identity())
	if err == nil {
		t.Fatal("expected an error when target has no normals")
	}
}
