package fine

import (
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestAndersonICPConvergesOnSmallPerturbation(t *testing.T) {
	target := noisyPlaneCloud()
	truth := pointcloud.NewRigid(smallRotation(), [3]float64{0.02, -0.01, 0})
	source := target.Transformed(truth.Inverse())

	r := AndersonICP{Config: DefaultAndersonICPConfig()}
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

func TestAndersonICPWithZeroWindowMatchesPlainICP(t *testing.T) {
	target := noisyPlaneCloud()
	truth := pointcloud.NewRigid(smallRotation(), [3]float64{0.02, -0.01, 0})
	source := target.Transformed(truth.Inverse())

	cfg := DefaultAndersonICPConfig()
	cfg.WindowSize = 0
	r := AndersonICP{Config: cfg}
	accelerated, err := r.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plain := PointToPointICP{Config: cfg.ICPConfig}
	baseline, err := plain.Register(source, target, pointcloud.Identity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := accelerated.Transformation.FrobeniusDiff(baseline.Transformation); diff > 1e-9 {
		t.Fatalf("expected a zero window to degrade to plain ICP exactly, diff=%v", diff)
	}
}

func TestLogRotationRoundTripsThroughRodrigues(t *testing.T) {
	omega := [3]float64{0.1, -0.2, 0.05}
	t1 := rodrigues([6]float64{0, 0, 0, omega[0], omega[1], omega[2]})
	recovered := logRotation(t1.Rotation())
	for i := range omega {
		if diff := recovered[i] - omega[i]; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("expected logRotation to invert rodrigues, want %v got %v", omega, recovered)
		}
	}
}
