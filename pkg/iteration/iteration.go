// Package iteration implements the iterate-until-converged framework shared
// by every fine registration algorithm (C8) and the coarse/fine iteration
// contract itself (C9): a validation step, a per-iteration update hook, a
// convergence check on both transformation delta and fitness error, history
// recording, and an early-termination callback.
package iteration

import (
	"math"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// CorrespondenceType labels what kind of point-to-model correspondence a
// fine registrator uses, mirroring the distinction point-to-point,
// point-to-plane, and distribution-based (NDT) algorithms care about.
type CorrespondenceType int

const (
	PointToPoint CorrespondenceType = iota
	PointToPlane
	PlaneToPlane
	PointToDistribution
	CustomCorrespondence
)

// IterationState snapshots one completed iteration, for history recording
// and the early-termination callback.
type IterationState struct {
	Iteration          int
	Transformation     pointcloud.Transform
	Error              float64
	ErrorChange        float64
	NumCorrespondences int
}

// RegistrationResult is the outcome of a full Run.
type RegistrationResult struct {
	InitialTransformation pointcloud.Transform
	Transformation        pointcloud.Transform
	Converged             bool
	IterationsPerformed   int
	FinalError            float64
	TerminationReason     string
	Inliers               []uint32
	History               []IterationState
}

// Callback is invoked after every iteration; returning false requests early
// termination.
type Callback func(state IterationState) bool

// Config holds the convergence parameters shared by all iterative
// registrators.
type Config struct {
	MaxIterations             int
	TransformationEpsilon     float64
	EuclideanFitnessEpsilon   float64
	MaxCorrespondenceDistance float64
	RecordHistory             bool
	Callback                  Callback
}

// DefaultConfig mirrors the common defaults for iterative point cloud
// registration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:             50,
		TransformationEpsilon:     1e-8,
		EuclideanFitnessEpsilon:   1e-6,
		MaxCorrespondenceDistance: 0.05,
	}
}

// Step is supplied by a concrete registration algorithm: given the current
// transform, it computes the next transform, that iteration's fitness
// error, and the number of correspondences used. ok=false aborts the run
// (too few correspondences, a degenerate linear solve, and similar).
type Step func(current pointcloud.Transform) (next pointcloud.Transform, fitnessError float64, numCorrespondences int, ok bool)

// Framework drives Step to convergence or exhaustion, independent of what
// Step itself does to compute a next transform.
type Framework struct {
	Config Config
}

// Run executes the iteration loop from initial until convergence, the
// iteration budget is exhausted, Step reports failure, or Config.Callback
// requests early termination.
func (f Framework) Run(initial pointcloud.Transform, step Step) RegistrationResult {
	result := RegistrationResult{
		InitialTransformation: initial,
		Transformation:        initial,
		FinalError:            math.MaxFloat64,
		TerminationReason:     "running",
	}
	if f.Config.MaxIterations <= 0 {
		result.TerminationReason = "maximum iterations reached"
		return result
	}
	if f.Config.RecordHistory {
		result.History = make([]IterationState, 0, f.Config.MaxIterations)
	}

	current := initial
	prevErr := math.MaxFloat64

	for iter := 0; iter < f.Config.MaxIterations; iter++ {
		next, errVal, numCorr, ok := step(current)
		if !ok {
			result.TerminationReason = "step failed"
			return result
		}

		errChange := math.Abs(errVal - prevErr)
		result.IterationsPerformed = iter + 1
		result.FinalError = errVal
		result.Transformation = next

		stopRequested := f.record(&result, iter, next, errVal, errChange, numCorr)

		converged, reason := f.checkConvergence(iter, next, current, errVal, prevErr)
		if iter+1 >= f.Config.MaxIterations {
			converged, reason = true, "maximum iterations reached"
		}

		current = next
		prevErr = errVal

		if stopRequested {
			result.TerminationReason = "terminated by callback"
			return result
		}
		if converged {
			result.Converged = true
			result.TerminationReason = reason
			return result
		}
	}
	return result
}

func (f Framework) record(result *RegistrationResult, iter int, transform pointcloud.Transform, errVal, errChange float64, numCorr int) bool {
	state := IterationState{
		Iteration:          iter,
		Transformation:     transform,
		Error:              errVal,
		ErrorChange:        errChange,
		NumCorrespondences: numCorr,
	}
	if f.Config.RecordHistory {
		result.History = append(result.History, state)
	}
	if f.Config.Callback != nil {
		return !f.Config.Callback(state)
	}
	return false
}

// checkConvergence mirrors the base registration convergence test: either
// the transform stopped moving (skipped on the first iteration, since there
// is no previous transform to compare against) or the fitness error stopped
// changing.
func (f Framework) checkConvergence(iter int, currentT, previousT pointcloud.Transform, currentErr, previousErr float64) (bool, string) {
	if iter > 0 {
		delta := currentT.Inverse().Compose(previousT)
		if delta.RotationAngle() < f.Config.TransformationEpsilon && delta.TranslationNorm() < f.Config.TransformationEpsilon {
			return true, "transformation converged"
		}
	}
	if math.Abs(currentErr-previousErr) < f.Config.EuclideanFitnessEpsilon {
		return true, "error converged"
	}
	return false, ""
}
