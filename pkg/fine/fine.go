// Package fine implements fine registration (C8): refining a rigid
// transform to a local optimum given a reasonable initial guess. Five
// variants share the iteration framework (C9) and a common correspondence
// search: point-to-point ICP, point-to-plane ICP, generalized ICP,
// Anderson-accelerated ICP, and the Normal Distributions Transform. Each
// variant differs only in how it turns the current correspondence set into
// the next transform (Step, in pkg/iteration terms).
package fine

import (
	"fmt"
	"math"
	"sort"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// Registrator is the shared contract every fine-registration algorithm
// satisfies: refine initial into a local optimum aligning source onto
// target.
type Registrator interface {
	Register(source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error)
}

func l2(a, b pointcloud.Point) float64 { return a.Distance(b) }

func validateInputs(source, target *pointcloud.Cloud, maxIterations int, maxCorrespondenceDistance float64) error {
	if source.Len() == 0 {
		return fmt.Errorf("fine: empty source cloud")
	}
	if target.Len() == 0 {
		return fmt.Errorf("fine: empty target cloud")
	}
	if maxIterations <= 0 {
		return fmt.Errorf("fine: max_iterations must be > 0")
	}
	if maxCorrespondenceDistance <= 0 {
		return fmt.Errorf("fine: max_correspondence_distance must be > 0")
	}
	return nil
}

// correspondencePair is one surviving point-to-point match found during
// correspondence search, in the current iteration's transformed frame.
type correspondencePair struct {
	srcIdx   int
	dstIdx   int
	src      pointcloud.Point
	dst      pointcloud.Point
	sqDist   float64
}

// findCorrespondences queries the 1-NN in target for every point in
// transformedSource, rejecting matches beyond maxDist.
func findCorrespondences(transformedSource []pointcloud.Point, target []pointcloud.Point, targetIndex *knn.BruteForce[pointcloud.Point], maxDist float64) []correspondencePair {
	out := make([]correspondencePair, 0, len(transformedSource))
	for i, p := range transformedSource {
		nl, ok := targetIndex.KNeighbors(p, 1)
		if !ok || nl.Len() == 0 {
			continue
		}
		d := nl.Distances[0]
		if d > maxDist {
			continue
		}
		j := int(nl.Indices[0])
		out = append(out, correspondencePair{
			srcIdx: i, dstIdx: j,
			src: p, dst: target[j],
			sqDist: d * d,
		})
	}
	return out
}

// rejectOutliers drops the worst ratio fraction of pairs by distance, the
// optional step spec.md §4.8.a allows after correspondence rejection.
func rejectOutliers(pairs []correspondencePair, ratio float64) []correspondencePair {
	if ratio <= 0 || ratio >= 1 || len(pairs) == 0 {
		return pairs
	}
	sorted := make([]correspondencePair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].sqDist < sorted[j].sqDist })
	keep := int(math.Ceil(float64(len(sorted)) * (1 - ratio)))
	if keep < 1 {
		keep = 1
	}
	if keep > len(sorted) {
		keep = len(sorted)
	}
	return sorted[:keep]
}

func meanSqDist(pairs []correspondencePair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pairs {
		sum += p.sqDist
	}
	return sum / float64(len(pairs))
}

func toPointPairs(pairs []correspondencePair) []linalg.PointPair {
	out := make([]linalg.PointPair, len(pairs))
	for i, p := range pairs {
		out[i] = linalg.PointPair{
			Src: [3]float64{p.src.X, p.src.Y, p.src.Z},
			Dst: [3]float64{p.dst.X, p.dst.Y, p.dst.Z},
		}
	}
	return out
}

// rodrigues converts a 6-vector [translation; rotation-vector] incremental
// update into an SE(3) Transform via Rodrigues' formula for the rotation
// part, used by point-to-plane ICP and generalized ICP to turn a linearized
// solve's result into a composable Transform, and by Anderson ICP to map a
// mixed 6-vector back to a Transform.
func rodrigues(x [6]float64) pointcloud.Transform {
	omega := [3]float64{x[3], x[4], x[5]}
	theta := math.Sqrt(omega[0]*omega[0] + omega[1]*omega[1] + omega[2]*omega[2])

	var r [3][3]float64
	if theta < 1e-12 {
		r = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	} else {
		k := [3]float64{omega[0] / theta, omega[1] / theta, omega[2] / theta}
		kCross := [3][3]float64{
			{0, -k[2], k[1]},
			{k[2], 0, -k[0]},
			{-k[1], k[0], 0},
		}
		kCross2 := linalg.MulMat3(kCross, kCross)
		sinT, cosT := math.Sin(theta), math.Cos(theta)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				id := 0.0
				if i == j {
					id = 1
				}
				r[i][j] = id + sinT*kCross[i][j] + (1-cosT)*kCross2[i][j]
			}
		}
	}
	return pointcloud.NewRigid(r, [3]float64{x[0], x[1], x[2]})
}

// skew returns the 3x3 cross-product (skew-symmetric) matrix of v, so that
// skew(v) applied to w equals v x w.
func skew(v pointcloud.Point) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}
