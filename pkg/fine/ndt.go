package fine

import (
	"math"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// NDTConfig configures registration via the Normal Distributions Transform
// (spec.md §4.8.e).
type NDTConfig struct {
	iteration.Config
	// Resolution is the voxel side length target points are partitioned
	// into during preprocessing.
	Resolution float64
	// OutlierRatio derives the outlier score constant d2 assigned to
	// source points that fall outside every valid voxel.
	OutlierRatio float64
	// StepSize is the initial line-search step, adaptively grown or
	// shrunk across iterations based on backtracking success.
	StepSize float64
}

// DefaultNDTConfig mirrors spec.md's defaults: 0.5 resolution, a modest
// outlier ratio, and a unit initial step size.
func DefaultNDTConfig() NDTConfig {
	return NDTConfig{Config: iteration.DefaultConfig(), Resolution: 0.5, OutlierRatio: 0.55, StepSize: 1.0}
}

func (c NDTConfig) normalized() NDTConfig {
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
	if c.Resolution <= 0 {
		c.Resolution = 0.5
	}
	if c.OutlierRatio <= 0 {
		c.OutlierRatio = 0.55
	}
	if c.StepSize <= 0 {
		c.StepSize = 1.0
	}
	return c
}

// voxelCell is one non-empty NDT voxel: its local Gaussian model (mean,
// inverse covariance) and validity, per spec.md §3.
type voxelCell struct {
	mean    [3]float64
	covInv  [3][3]float64
	count   int
	valid   bool
}

// NDT registers source onto target by maximizing the sum of per-point
// Gaussian likelihoods against a voxel-wise model of the target, rather
// than by explicit point correspondences.
type NDT struct {
	Config NDTConfig
}

func voxelKey(p [3]float64, resolution float64) [3]int {
	return [3]int{
		int(math.Floor(p[0] / resolution)),
		int(math.Floor(p[1] / resolution)),
		int(math.Floor(p[2] / resolution)),
	}
}

// buildVoxelGrid is NDT's preprocessing step: partition target into voxels
// of side resolution, keep those with >= 5 points, and store each one's
// regularized inverse covariance.
func buildVoxelGrid(target *pointcloud.Cloud, resolution float64) map[[3]int]*voxelCell {
	sums := make(map[[3]int]*struct {
		sum   [3]float64
		sumSq [3][3]float64
		n     int
	})
	for _, p := range target.Points {
		arr := [3]float64{p.X, p.Y, p.Z}
		key := voxelKey(arr, resolution)
		s, ok := sums[key]
		if !ok {
			s = &struct {
				sum   [3]float64
				sumSq [3][3]float64
				n     int
			}{}
			sums[key] = s
		}
		for i := 0; i < 3; i++ {
			s.sum[i] += arr[i]
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				s.sumSq[i][j] += arr[i] * arr[j]
			}
		}
		s.n++
	}

	grid := make(map[[3]int]*voxelCell, len(sums))
	reg := 0.01 * resolution * resolution
	for key, s := range sums {
		cell := &voxelCell{count: s.n}
		if s.n >= 5 {
			var mean [3]float64
			for i := 0; i < 3; i++ {
				mean[i] = s.sum[i] / float64(s.n)
			}
			var cov [3][3]float64
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					cov[i][j] = s.sumSq[i][j]/float64(s.n) - mean[i]*mean[j]
				}
				cov[i][i] += reg
			}
			if inv, ok := linalg.Invert3(cov); ok {
				cell.mean = mean
				cell.covInv = inv
				cell.valid = true
			}
		}
		grid[key] = cell
	}
	return grid
}

// Register implements the Registrator contract.
func (r NDT) Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	cfg := r.Config.normalized()
	if err := validateInputs(source, target, cfg.MaxIterations, cfg.MaxCorrespondenceDistance); err != nil {
		return iteration.RegistrationResult{TerminationReason: err.Error()}, err
	}

	grid := buildVoxelGrid(target, cfg.Resolution)
	d1 := -math.Log(2*math.Pi) / 2
	// d2 is chosen so it is strictly below d1 (valid voxels are always
	// preferred to the outlier fallback), per spec.md §9's resolution of
	// the source/comment sign ambiguity.
	d2 := -math.Log(cfg.OutlierRatio*math.Sqrt(2*math.Pi)) - 0.5

	stepSize := cfg.StepSize

	objective := func(t pointcloud.Transform) (score float64, grad [6]float64, hess [6][6]float64, numValid int) {
		for _, p := range source.Points {
			tp := t.Apply(p)
			arr := [3]float64{tp.X, tp.Y, tp.Z}
			key := voxelKey(arr, cfg.Resolution)
			cell, ok := grid[key]
			if !ok || !cell.valid {
				score += d2
				continue
			}
			numValid++
			diff := [3]float64{arr[0] - cell.mean[0], arr[1] - cell.mean[1], arr[2] - cell.mean[2]}
			var sInvDiff [3]float64
			var quad float64
			for a := 0; a < 3; a++ {
				var sum float64
				for b := 0; b < 3; b++ {
					sum += cell.covInv[a][b] * diff[b]
				}
				sInvDiff[a] = sum
				quad += diff[a] * sum
			}
			arg := -0.5 * quad
			score += d1 + arg
			weight := math.Exp(arg)

			j := jacobianPointToPoint(tp)
			var jtv [6]float64
			for a := 0; a < 6; a++ {
				var sum float64
				for k := 0; k < 3; k++ {
					sum += j[k][a] * sInvDiff[k]
				}
				jtv[a] = sum * weight
			}
			for a := 0; a < 6; a++ {
				grad[a] += jtv[a]
			}
			// Gauss-Newton approximation of the Hessian: drop the
			// second-derivative curvature term and keep the always
			// positive-semidefinite weight * J^T Sigma^-1 J block, the
			// same simplification PCL's NDT uses by default.
			for a := 0; a < 6; a++ {
				for b := 0; b < 6; b++ {
					var sum float64
					for k := 0; k < 3; k++ {
						for l := 0; l < 3; l++ {
							sum += j[k][a] * cell.covInv[k][l] * j[l][b]
						}
					}
					hess[a][b] += weight * sum
				}
			}
		}
		if len(source.Points) > 0 {
			score /= float64(len(source.Points))
		}
		return
	}

	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		score, grad, hess, numValid := objective(current)
		gradNorm := 0.0
		for _, g := range grad {
			gradNorm += g * g
		}
		gradNorm = math.Sqrt(gradNorm)
		if gradNorm < 1e-12 {
			return current, -score, numValid, true
		}

		var negGrad [6]float64
		for i := range grad {
			negGrad[i] = -grad[i]
			hess[i][i] += 1e-6
		}
		delta, ok := linalg.Solve6(hess, negGrad)
		if !ok {
			return current, -score, numValid, false
		}

		var gradDotDelta float64
		for i := 0; i < 6; i++ {
			gradDotDelta += grad[i] * delta[i]
		}
		next, accepted, newScore := lineSearch(current, delta, score, gradDotDelta, objective, stepSize)
		if !accepted {
			stepSize *= 0.5
			return current, -score, numValid, false
		}
		if stepSize < cfg.StepSize {
			stepSize = math.Min(cfg.StepSize, stepSize*1.2)
		}
		return next, -newScore, numValid, true
	}

	fw := iteration.Framework{Config: cfg.Config}
	result := fw.Run(initial, step)
	return result, nil
}

// lineSearch performs a backtracking search (an Armijo-sufficient-increase
// approximation of the full More-Thuente/Wolfe search spec.md §4.8.e calls
// for) along delta, converting the accepted step into an SE(3) increment
// via ZYX Euler angles and composing it with current.
func lineSearch(current pointcloud.Transform, delta [6]float64, baseScore, gradDotDelta float64, objective func(pointcloud.Transform) (float64, [6]float64, [6][6]float64, int), initialStep float64) (pointcloud.Transform, bool, float64) {
	const maxBacktracks = 10
	const c1 = 1e-4
	alpha := initialStep
	for i := 0; i < maxBacktracks; i++ {
		scaled := [6]float64{
			delta[0] * alpha, delta[1] * alpha, delta[2] * alpha,
			delta[3] * alpha, delta[4] * alpha, delta[5] * alpha,
		}
		candidate := eulerIncrement(scaled).Compose(current)
		score, _, _, _ := objective(candidate)
		if score >= baseScore+c1*alpha*gradDotDelta {
			return candidate, true, score
		}
		alpha *= 0.5
	}
	return current, false, baseScore
}

// eulerIncrement converts a 6-vector [translation; rx,ry,rz] into an SE(3)
// increment using ZYX Euler angle composition R = Rz(rz) Ry(ry) Rx(rx), per
// spec.md §4.8.e.
func eulerIncrement(x [6]float64) pointcloud.Transform {
	rx, ry, rz := x[3], x[4], x[5]
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)

	rX := [3][3]float64{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	rY := [3][3]float64{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	rZ := [3][3]float64{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}

	r := linalg.MulMat3(linalg.MulMat3(rZ, rY), rX)
	return pointcloud.NewRigid(r, [3]float64{x[0], x[1], x[2]})
}
