// Package coarse implements coarse registration (C7): producing an initial
// rigid transform under heavy outlier contamination via RANSAC, PROSAC, and
// 4-point congruent sets (classic and grid-accelerated Super-4PCS). All four
// algorithms share the same minimal-sample rigid fit (internal/linalg),
// inlier-counting contract, and iteration.RegistrationResult output shape;
// convergence here is judged on achieved inlier count, not transform delta,
// which is why these algorithms don't go through pkg/iteration.Framework
// the way fine registration does.
package coarse

import (
	"fmt"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

const minSampleSize = 3

// toPointPairs projects correspondences into the (source, target) point
// pairs every minimal-sample rigid fit consumes.
func toPointPairs(source, target *pointcloud.Cloud, corrs []correspondence.Correspondence) []linalg.PointPair {
	pairs := make([]linalg.PointPair, len(corrs))
	for i, c := range corrs {
		s := source.Points[c.SrcIdx]
		d := target.Points[c.DstIdx]
		pairs[i] = linalg.PointPair{Src: [3]float64{s.X, s.Y, s.Z}, Dst: [3]float64{d.X, d.Y, d.Z}}
	}
	return pairs
}

// inlierIndices returns the indices into pairs whose residual under t is at
// most threshold.
func inlierIndices(pairs []linalg.PointPair, t pointcloud.Transform, threshold float64) []int {
	var out []int
	for i, p := range pairs {
		src := pointcloud.Point{X: p.Src[0], Y: p.Src[1], Z: p.Src[2]}
		dst := pointcloud.Point{X: p.Dst[0], Y: p.Dst[1], Z: p.Dst[2]}
		if t.Apply(src).Distance(dst) <= threshold {
			out = append(out, i)
		}
	}
	return out
}

func toUint32(idx []int) []uint32 {
	out := make([]uint32, len(idx))
	for i, v := range idx {
		out[i] = uint32(v)
	}
	return out
}

func meanResidual(pairs []linalg.PointPair, idx []int, t pointcloud.Transform) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		p := pairs[i]
		src := pointcloud.Point{X: p.Src[0], Y: p.Src[1], Z: p.Src[2]}
		dst := pointcloud.Point{X: p.Dst[0], Y: p.Dst[1], Z: p.Dst[2]}
		d := t.Apply(src).Distance(dst)
		sum += d * d
	}
	return sum / float64(len(idx))
}

func fitPairs(pairs []linalg.PointPair, idx []int) (pointcloud.Transform, bool) {
	sample := make([]linalg.PointPair, len(idx))
	for i, id := range idx {
		sample[i] = pairs[id]
	}
	rot, tr, ok := linalg.FitRigid(sample)
	if !ok {
		return pointcloud.Transform{}, false
	}
	return pointcloud.NewRigid(rot, tr), true
}

var errInsufficientCorrespondences = fmt.Errorf("coarse: insufficient correspondences")
