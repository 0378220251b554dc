package iteration

import (
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestRunConvergesOnErrorPlateau(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 20
	cfg.EuclideanFitnessEpsilon = 1e-4
	f := Framework{Config: cfg}

	errors := []float64{1.0, 0.5, 0.25, 0.2500001, 0.2500001}
	call := 0
	// Every step moves the transform, so only the error criterion can fire.
	shift := pointcloud.NewRigid(pointcloud.Identity().Rotation(), [3]float64{0.01, 0, 0})
	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		e := errors[call]
		if call < len(errors)-1 {
			call++
		}
		return shift.Compose(current), e, 10, true
	}

	result := f.Run(pointcloud.Identity(), step)
	if !result.Converged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if result.TerminationReason != "error converged" {
		t.Fatalf("expected error-converged termination, got %q", result.TerminationReason)
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	f := Framework{Config: cfg}

	call := 0
	shift := pointcloud.NewRigid(pointcloud.Identity().Rotation(), [3]float64{0.01, 0, 0})
	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		call++
		// The error rises by 1 every call and the transform keeps moving, so
		// neither convergence criterion is ever met.
		return shift.Compose(current), float64(call), 10, true
	}

	result := f.Run(pointcloud.Identity(), step)
	if result.IterationsPerformed != 5 {
		t.Fatalf("expected 5 iterations performed, got %d", result.IterationsPerformed)
	}
	if result.TerminationReason != "maximum iterations reached" {
		t.Fatalf("expected max-iterations termination, got %q", result.TerminationReason)
	}
}

func TestRunStepFailureAborts(t *testing.T) {
	f := Framework{Config: DefaultConfig()}
	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		return current, 0, 0, false
	}
	result := f.Run(pointcloud.Identity(), step)
	if result.TerminationReason != "step failed" {
		t.Fatalf("expected step-failed termination, got %q", result.TerminationReason)
	}
	if result.Converged {
		t.Fatal("expected not converged on step failure")
	}
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.RecordHistory = true
	f := Framework{Config: cfg}

	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		return current, 1.0, 7, true
	}
	result := f.Run(pointcloud.Identity(), step)
	if len(result.History) == 0 {
		t.Fatal("expected non-empty history")
	}
	for _, h := range result.History {
		if h.NumCorrespondences != 7 {
			t.Fatalf("unexpected correspondence count in history: %+v", h)
		}
	}
}

func TestRunCallbackEarlyTermination(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 20
	cfg.Callback = func(state IterationState) bool {
		return state.Iteration < 2 // stop after the 3rd iteration (index 2)
	}
	f := Framework{Config: cfg}

	// Error and transform both keep changing, so only the callback can stop
	// the run.
	call := 0
	shift := pointcloud.NewRigid(pointcloud.Identity().Rotation(), [3]float64{0.01, 0, 0})
	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		call++
		return shift.Compose(current), float64(call), 5, true
	}
	result := f.Run(pointcloud.Identity(), step)
	if result.TerminationReason != "terminated by callback" {
		t.Fatalf("expected callback termination, got %q", result.TerminationReason)
	}
	if result.IterationsPerformed != 3 {
		t.Fatalf("expected 3 iterations before callback stop, got %d", result.IterationsPerformed)
	}
	if result.Converged {
		t.Fatal("expected callback termination not marked as converged")
	}
}
