package fine

import (
	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// ICPConfig configures point-to-point ICP (spec.md §4.8.a) and is embedded
// by the other point-to-point-flavored registrators (Anderson-accelerated).
type ICPConfig struct {
	iteration.Config
	// OutlierRejectionRatio additionally drops this fraction of the
	// worst-residual surviving pairs each iteration. Zero disables it.
	OutlierRejectionRatio float64
}

// DefaultICPConfig mirrors spec.md §9's iteration defaults plus a 0.05
// correspondence distance cap.
func DefaultICPConfig() ICPConfig {
	cfg := iteration.DefaultConfig()
	return ICPConfig{Config: cfg}
}

func (c ICPConfig) normalized() ICPConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.MaxCorrespondenceDistance <= 0 {
		c.MaxCorrespondenceDistance = 0.05
	}
	if c.TransformationEpsilon <= 0 {
		c.TransformationEpsilon = 1e-8
	}
	if c.EuclideanFitnessEpsilon <= 0 {
		c.EuclideanFitnessEpsilon = 1e-6
	}
	return c
}

// PointToPointICP aligns source onto target by alternating nearest-neighbor
// correspondence search and a closed-form SVD rigid fit (spec.md §4.8.a).
type PointToPointICP struct {
	Config ICPConfig
}

// Register implements the Registrator contract.
func (r PointToPointICP) Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	cfg := r.Config.normalized()
	if err := validateInputs(source, target, cfg.MaxIterations, cfg.MaxCorrespondenceDistance); err != nil {
		return iteration.RegistrationResult{TerminationReason: err.Error()}, err
	}

	targetIndex := knn.NewBruteForce(target.Points, l2)
	step := pointToPointStep(source, target, targetIndex, cfg)

	fw := iteration.Framework{Config: cfg.Config}
	result := fw.Run(initial, step)
	return result, nil
}

// pointToPointStep builds the Step closure shared by PointToPointICP and
// AndersonICP (which wraps this same correspondence/fit logic with
// acceleration applied to the resulting transform).
func pointToPointStep(source, target *pointcloud.Cloud, targetIndex *knn.BruteForce[pointcloud.Point], cfg ICPConfig) iteration.Step {
	return func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		transformed := make([]pointcloud.Point, source.Len())
		for i, p := range source.Points {
			transformed[i] = current.Apply(p)
		}
		pairs := findCorrespondences(transformed, target.Points, targetIndex, cfg.MaxCorrespondenceDistance)
		pairs = rejectOutliers(pairs, cfg.OutlierRejectionRatio)
		if len(pairs) < 3 {
			return current, 0, len(pairs), false
		}
		rot, tr, ok := linalg.FitRigid(toPointPairs(pairs))
		if !ok {
			return current, 0, len(pairs), false
		}
		delta := pointcloud.NewRigid(rot, tr)
		next := delta.Compose(current)
		return next, meanSqDist(pairs), len(pairs), true
	}
}
