package fine

import (
	"fmt"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// PointToPlaneICPConfig configures point-to-plane ICP (spec.md §4.8.b).
type PointToPlaneICPConfig struct {
	iteration.Config
	// RegularizationLambda is the Tikhonov damping added to the 6x6
	// normal-equations matrix before solving, guarding against
	// near-singular systems from coplanar or low-curvature regions.
	RegularizationLambda float64
}

// DefaultPointToPlaneICPConfig mirrors the point-to-point defaults plus a
// small regularization term.
func DefaultPointToPlaneICPConfig() PointToPlaneICPConfig {
	return PointToPlaneICPConfig{Config: iteration.DefaultConfig(), RegularizationLambda: 1e-6}
}

func (c PointToPlaneICPConfig) normalized() PointToPlaneICPConfig {
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
	if c.RegularizationLambda <= 0 {
		c.RegularizationLambda = 1e-6
	}
	return c
}

// PointToPlaneICP minimizes the point-to-plane residual n_t . (T*s - t)
// instead of point-to-point squared distance, which converges faster on
// locally planar surfaces.
type PointToPlaneICP struct {
	Config PointToPlaneICPConfig
}

// Register implements the Registrator contract. Fails (ok=false via a
// non-nil error) when target lacks per-point normals, per spec.md §4.8.b.
func (r PointToPlaneICP) Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	cfg := r.Config.normalized()
	if err := validateInputs(source, target, cfg.MaxIterations, cfg.MaxCorrespondenceDistance); err != nil {
		return iteration.RegistrationResult{TerminationReason: err.Error()}, err
	}
	if !target.HasNormals() {
		err := fmt.Errorf("fine: point-to-plane ICP requires target normals")
		return iteration.RegistrationResult{TerminationReason: "missing target normals"}, err
	}

	targetIndex := knn.NewBruteForce(target.Points, l2)

	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		transformed := make([]pointcloud.Point, source.Len())
		for i, p := range source.Points {
			transformed[i] = current.Apply(p)
		}
		pairs := findCorrespondences(transformed, target.Points, targetIndex, cfg.MaxCorrespondenceDistance)
		if len(pairs) < 6 {
			return current, 0, len(pairs), false
		}

		var h [6][6]float64
		var g [6]float64
		var sqSum float64
		for _, pr := range pairs {
			n := target.Normals[pr.dstIdx]
			residual := n.Dot(pr.src.Sub(pr.dst))
			cross := pr.src.Cross(n)
			j := [6]float64{n.X, n.Y, n.Z, cross.X, cross.Y, cross.Z}
			for a := 0; a < 6; a++ {
				g[a] += j[a] * residual
				for b := 0; b < 6; b++ {
					h[a][b] += j[a] * j[b]
				}
			}
			sqSum += residual * residual
		}
		for a := 0; a < 6; a++ {
			h[a][a] += cfg.RegularizationLambda
			g[a] = -g[a]
		}

		x, ok := linalg.Solve6(h, g)
		if !ok {
			return current, sqSum / float64(len(pairs)), len(pairs), false
		}
		delta := rodrigues(x)
		next := delta.Compose(current)
		return next, sqSum / float64(len(pairs)), len(pairs), true
	}

	fw := iteration.Framework{Config: cfg.Config}
	result := fw.Run(initial, step)
	return result, nil
}
