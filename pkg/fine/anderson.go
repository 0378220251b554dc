package fine

import (
	"math"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// AndersonICPConfig configures Anderson-accelerated point-to-point ICP
// (spec.md §4.8.d).
type AndersonICPConfig struct {
	ICPConfig
	// WindowSize (m) is how many past iterates/residuals are mixed.
	// WindowSize <= 0 degenerates to plain point-to-point ICP.
	WindowSize int
}

// DefaultAndersonICPConfig mirrors the point-to-point defaults with a
// 5-iterate acceleration window.
func DefaultAndersonICPConfig() AndersonICPConfig {
	return AndersonICPConfig{ICPConfig: DefaultICPConfig(), WindowSize: 5}
}

// AndersonICP runs the point-to-point ICP fixed-point map g (correspondence
// search + SVD rigid fit) but extrapolates the next iterate from a short
// window of past iterates and their fixed-point residuals, converging in
// fewer iterations than plain ICP on well-conditioned inputs. The transform
// is linearized as a 6-vector [translation; rotation-vector] for the
// purposes of the acceleration's vector-space mixing; this is only locally
// valid, which is consistent with ICP already requiring a reasonable
// initial guess.
type AndersonICP struct {
	Config AndersonICPConfig
}

// Register implements the Registrator contract.
func (r AndersonICP) Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	cfg := r.Config
	cfg.ICPConfig = cfg.ICPConfig.normalized()
	if err := validateInputs(source, target, cfg.MaxIterations, cfg.MaxCorrespondenceDistance); err != nil {
		return iteration.RegistrationResult{TerminationReason: err.Error()}, err
	}

	targetIndex := knn.NewBruteForce(target.Points, l2)
	rawStep := pointToPointStep(source, target, targetIndex, cfg.ICPConfig)

	m := cfg.WindowSize
	var xHist, rHist [][6]float64

	step := func(current pointcloud.Transform) (pointcloud.Transform, float64, int, bool) {
		plainNext, errVal, numCorr, ok := rawStep(current)
		if !ok {
			return current, errVal, numCorr, false
		}
		if m <= 0 {
			return plainNext, errVal, numCorr, true
		}

		x := toVector(current)
		gx := toVector(plainNext)
		var res [6]float64
		for i := 0; i < 6; i++ {
			res[i] = gx[i] - x[i]
		}

		xHist = append(xHist, x)
		rHist = append(rHist, res)
		if len(xHist) > m+1 {
			xHist = xHist[1:]
			rHist = rHist[1:]
		}

		k := len(rHist) - 1
		if k < 1 {
			return plainNext, errVal, numCorr, true
		}

		dF := make([][]float64, 6)
		dX := make([][]float64, 6)
		for i := 0; i < 6; i++ {
			dF[i] = make([]float64, k)
			dX[i] = make([]float64, k)
			for j := 0; j < k; j++ {
				dF[i][j] = rHist[j+1][i] - rHist[j][i]
				dX[i][j] = xHist[j+1][i] - xHist[j][i]
			}
		}
		b := make([]float64, 6)
		for i := 0; i < 6; i++ {
			b[i] = res[i]
		}
		gamma, solved := linalg.SolveLeastSquares(dF, b)
		if !solved {
			return plainNext, errVal, numCorr, true
		}

		var xNext [6]float64
		for i := 0; i < 6; i++ {
			mix := 0.0
			for j := 0; j < k; j++ {
				mix += (dX[i][j] + dF[i][j]) * gamma[j]
			}
			xNext[i] = gx[i] - mix
		}
		return fromVector(xNext), errVal, numCorr, true
	}

	fw := iteration.Framework{Config: cfg.Config}
	result := fw.Run(initial, step)
	return result, nil
}

// toVector linearizes a rigid transform into [translation; rotation-vector]
// via the matrix logarithm of its rotation block.
func toVector(t pointcloud.Transform) [6]float64 {
	tr := t.Translation()
	omega := logRotation(t.Rotation())
	return [6]float64{tr[0], tr[1], tr[2], omega[0], omega[1], omega[2]}
}

func fromVector(x [6]float64) pointcloud.Transform {
	return rodrigues(x)
}

// logRotation is the inverse of Rodrigues' formula: given a rotation
// matrix, return the rotation vector omega (axis * angle) such that
// rodrigues([0,0,0,omega]) reproduces r.
func logRotation(r [3][3]float64) [3]float64 {
	trace := r[0][0] + r[1][1] + r[2][2]
	cos := (trace - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)
	if theta < 1e-9 {
		return [3]float64{0, 0, 0}
	}
	sinT := math.Sin(theta)
	if sinT < 1e-9 {
		// Near a pi rotation: the antisymmetric-part formula below is
		// ill-conditioned; the window mixing tolerates the degraded
		// estimate since it only informs extrapolation, not the fit itself.
		return [3]float64{0, 0, 0}
	}
	axis := [3]float64{
		(r[2][1] - r[1][2]) / (2 * sinT),
		(r[0][2] - r[2][0]) / (2 * sinT),
		(r[1][0] - r[0][1]) / (2 * sinT),
	}
	return [3]float64{axis[0] * theta, axis[1] * theta, axis[2] * theta}
}
