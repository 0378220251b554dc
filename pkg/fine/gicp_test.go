package fine

import (
	"testing"

	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestGeneralizedICPConvergesOnSmallPerturbation(t *testing.T) {
	target := noisyPlaneCloud()
	truth := pointcloud.NewRigid(smallRotation(), [3]float64{0.02, -0.01, 0})
	source := target.Transformed(truth.Inverse())

	r := GeneralizedICP{Config: DefaultGeneralizedICPConfig()}
	result, err := r.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if diff := result.Transformation.FrobeniusDiff(truth); diff > 1e-2 {
		t.Fatalf("recovered transform too far from ground truth: diff=%v", diff)
	}
}

func TestPointCovarianceFlattensNormalDirection(t *testing.T) {
	cloud := noisyPlaneCloud()
	idx := knn.NewBruteForce(cloud.Points, l2)
	cov := pointCovariance(cloud.Points, 4, idx, 8, 0.001)

	// Every point lies on z=0, so the covariance's Z row/column should be
	// flattened toward the epsilon regularization, far smaller than the
	// in-plane variance.
	if cov[2][2] >= cov[0][0] {
		t.Fatalf("expected the surface-normal direction to be flattened, got cov=%+v", cov)
	}
}
