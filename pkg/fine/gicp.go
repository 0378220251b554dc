package fine

import (
	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// GeneralizedICPConfig configures generalized (plane-to-plane) ICP (spec.md
// §4.8.c).
type GeneralizedICPConfig struct {
	iteration.Config
	// CovarianceNeighbors is k for the per-point local covariance used to
	// build each point's surface-normal-aligned uncertainty ellipsoid.
	CovarianceNeighbors int
	// CovarianceEpsilon is the flattened eigenvalue assigned to the
	// covariance's normal direction (the other two are left at 1), the
	// GICP "planar" regularization.
	CovarianceEpsilon float64
}

// DefaultGeneralizedICPConfig mirrors the literature defaults: 20 neighbors,
// epsilon 0.001.
func DefaultGeneralizedICPConfig() GeneralizedICPConfig {
	return GeneralizedICPConfig{Config: iteration.DefaultConfig(), CovarianceNeighbors: 20, CovarianceEpsilon: 0.001}
}

func (c GeneralizedICPConfig) normalized() GeneralizedICPConfig {
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
	if c.CovarianceNeighbors < 3 {
		c.CovarianceNeighbors = 20
	}
	if c.CovarianceEpsilon <= 0 {
		c.CovarianceEpsilon = 0.001
	}
	return c
}

// GeneralizedICP (Segal et al.) weights each correspondence's residual by
// the combined source/target local-surface covariances, so a correspondence
// effectively contributes a plane-to-plane term instead of point-to-point.
type GeneralizedICP struct {
	Config GeneralizedICPConfig
}

// pointCovariance computes the regularized local covariance of points at
// idx using its k nearest neighbors: eigendecompose the raw covariance,
// then flatten the smallest-eigenvalue direction to epsilon (the other two
// to 1), matching the GICP planar-surface assumption.
func pointCovariance(points []pointcloud.Point, self int, index *knn.BruteForce[pointcloud.Point], k int, epsilon float64) [3][3]float64 {
	nl, ok := index.KNeighbors(points[self], k)
	if !ok || nl.Len() < 3 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	var centroid pointcloud.Point
	for _, i := range nl.Indices {
		centroid = centroid.Add(points[i])
	}
	centroid = centroid.Scale(1 / float64(nl.Len()))

	var cov [3][3]float64
	for _, i := range nl.Indices {
		d := points[i].Sub(centroid)
		v := [3]float64{d.X, d.Y, d.Z}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				cov[a][b] += v[a] * v[b]
			}
		}
	}
	n := float64(nl.Len())
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			cov[a][b] /= n
		}
	}

	_, vectors := linalg.EighSym3(cov)
	diag := [3]float64{epsilon, 1, 1}
	var reg [3][3]float64
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += vectors[a][k] * diag[k] * vectors[b][k]
			}
			reg[a][b] = sum
		}
	}
	return reg
}

// Register implements the Registrator contract.
func (r GeneralizedICP) Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	cfg := r.Config.normalized()
	if err := validateInputs(source, target, cfg.MaxIterations, cfg.MaxCorrespondenceDistance); err != nil {
		return iteration.RegistrationResult{TerminationReason: err.Error()}, err
	}

	targetIndex := knn.NewBruteForce(target.Points, l2)
	sourceIndex := knn.NewBruteForce(source.Points, l2)

	srcCov := make([][3][3]float64, source.Len())
	for i := range source.Points {
		srcCov[i] = pointCovariance(source.Points, i, sourceIndex, cfg.CovarianceNeighbors, cfg.CovarianceEpsilon)
	}
	dstCov := make([][3][3]float64, target.Len())
	for i := range target.Points {
		dstCov[i] = pointCovariance(target.Points, i, targetIndex, cfg.CovarianceNeighbors, cfg.CovarianceEpsilon)
	}

	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		rot := current.Rotation()
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
		var costSum float64
		for _, pr := range pairs {
			// M = (C_t + R * C_s * R^T)^-1, the combined-uncertainty
			// weight matrix (Segal et al.), using the CURRENT rotation to
			// bring the source covariance into the target frame.
			rCsRt := linalg.MulMat3(linalg.MulMat3(rot, srcCov[pr.srcIdx]), linalg.TransposeMat3(rot))
			var combined [3][3]float64
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					combined[a][b] = dstCov[pr.dstIdx][a][b] + rCsRt[a][b]
				}
			}
			m, ok := linalg.Invert3(combined)
			if !ok {
				continue
			}
			d := pr.src.Sub(pr.dst)
			dv := [3]float64{d.X, d.Y, d.Z}
			j := jacobianPointToPoint(pr.src)

			var jtm [6][3]float64
			for a := 0; a < 6; a++ {
				for l := 0; l < 3; l++ {
					var sum float64
					for kk := 0; kk < 3; kk++ {
						sum += j[kk][a] * m[kk][l]
					}
					jtm[a][l] = sum
				}
			}
			for a := 0; a < 6; a++ {
				var gi float64
				for l := 0; l < 3; l++ {
					gi += jtm[a][l] * dv[l]
				}
				g[a] += gi
				for b := 0; b < 6; b++ {
					var hi float64
					for l := 0; l < 3; l++ {
						hi += jtm[a][l] * j[l][b]
					}
					h[a][b] += hi
				}
			}
			var md float64
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					md += dv[a] * m[a][b] * dv[b]
				}
			}
			costSum += md
		}
		for a := 0; a < 6; a++ {
			h[a][a] += 1e-6
			g[a] = -g[a]
		}

		x, ok := linalg.Solve6(h, g)
		if !ok {
			return current, costSum / float64(len(pairs)), len(pairs), false
		}
		delta := rodrigues(x)
		next := delta.Compose(current)
		return next, costSum / float64(len(pairs)), len(pairs), true
	}

	fw := iteration.Framework{Config: cfg.Config}
	result := fw.Run(initial, step)
	return result, nil
}

// jacobianPointToPoint returns the 3x6 Jacobian d(T*p)/d[delta_t; delta_w]
// at the current pose, evaluated at the already-transformed point p.
func jacobianPointToPoint(p pointcloud.Point) [3][6]float64 {
	return [3][6]float64{
		{1, 0, 0, 0, p.Z, -p.Y},
		{0, 1, 0, -p.Z, 0, p.X},
		{0, 0, 1, p.Y, -p.X, 0},
	}
}
