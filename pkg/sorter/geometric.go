package sorter

import (
	"math"
	"sort"

	"github.com/pclreg/pcreg/internal/rng"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

// GeometricConsistency scores a correspondence by how well it preserves
// pairwise distances with a neighborhood of other correspondences: for each
// neighbor, the ratio of the source-pair distance to the destination-pair
// distance should be close to 1. The score is the fraction of neighbors for
// which that ratio falls within DistanceRatioThreshold of 1.
type GeometricConsistency struct {
	NeighborhoodSize       int
	DistanceRatioThreshold float64
	MinDistance            float64
	RandomSampling         bool
	Seed                   int64
	Parallel               bool
	Pool                   *workerpool.Default
}

func (g GeometricConsistency) Name() string { return "GeometricConsistency" }

func (g GeometricConsistency) neighborhoodSize() int {
	if g.NeighborhoodSize > 0 {
		return g.NeighborhoodSize
	}
	return 10
}

func (g GeometricConsistency) ratioThreshold() float64 {
	if g.DistanceRatioThreshold > 0 {
		return g.DistanceRatioThreshold
	}
	return 0.2
}

func (g GeometricConsistency) minDistance() float64 {
	if g.MinDistance > 0 {
		return g.MinDistance
	}
	return 1e-3
}

func (g GeometricConsistency) Scores(src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) []float64 {
	scores := make([]float64, len(corrs))
	if len(corrs) == 0 {
		return scores
	}
	r := rng.New(g.Seed)

	compute := func(i int) float64 {
		neighbors := g.indicesToCheck(i, corrs, r)
		return g.singleConsistency(i, neighbors, src, dst, corrs)
	}

	if g.Parallel && g.Pool != nil && len(corrs) > parallelThreshold {
		workerpool.ParallelChunks(g.Pool, len(corrs), func(start, end int) struct{} {
			for i := start; i < end; i++ {
				scores[i] = compute(i)
			}
			return struct{}{}
		})
	} else {
		for i := range corrs {
			scores[i] = compute(i)
		}
	}
	return scores
}

func (g GeometricConsistency) indicesToCheck(idx int, corrs []correspondence.Correspondence, r *rng.Source) []int {
	n := g.neighborhoodSize()
	if n > len(corrs)-1 {
		n = len(corrs) - 1
	}
	if n <= 0 {
		return nil
	}
	if g.RandomSampling {
		return randomOthers(idx, len(corrs), n, r)
	}
	return nearestOthers(idx, corrs, n)
}

func randomOthers(exclude, total, n int, r *rng.Source) []int {
	pool := make([]int, 0, total-1)
	for i := 0; i < total; i++ {
		if i != exclude {
			pool = append(pool, i)
		}
	}
	if n >= len(pool) {
		return pool
	}
	picks := r.SampleDistinct(len(pool), n)
	out := make([]int, n)
	for i, p := range picks {
		out[i] = pool[p]
	}
	return out
}

// nearestOthers picks the n correspondences whose descriptor distance is
// closest to corrs[idx]'s, the deterministic alternative to random sampling.
func nearestOthers(idx int, corrs []correspondence.Correspondence, n int) []int {
	type cand struct {
		j    int
		diff float64
	}
	cands := make([]cand, 0, len(corrs)-1)
	target := corrs[idx].Distance
	for j := range corrs {
		if j == idx {
			continue
		}
		cands = append(cands, cand{j: j, diff: math.Abs(corrs[j].Distance - target)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].diff != cands[j].diff {
			return cands[i].diff < cands[j].diff
		}
		return cands[i].j < cands[j].j
	})
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].j
	}
	return out
}

func (g GeometricConsistency) singleConsistency(idx int, neighbors []int, src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) float64 {
	corr := corrs[idx]
	var consistent, valid float64
	minD := g.minDistance()
	ratioTol := g.ratioThreshold()

	for _, j := range neighbors {
		other := corrs[j]
		srcDist := src.Points[corr.SrcIdx].Distance(src.Points[other.SrcIdx])
		dstDist := dst.Points[corr.DstIdx].Distance(dst.Points[other.DstIdx])
		if srcDist <= minD || dstDist <= minD {
			continue
		}
		valid++
		ratio := srcDist / dstDist
		if ratio > 1-ratioTol && ratio < 1+ratioTol {
			consistent++
		}
	}
	if valid == 0 {
		return 0
	}
	return consistent / valid
}
