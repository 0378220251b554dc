package coarse

import (
	"math"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/internal/rng"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// FourPCSConfig configures 4-point congruent sets registration (spec.md
// §4.7.c) and, when Accelerated is set, its Super-4PCS variant (§4.7.d).
// Both share every field; Accelerated only switches the target-side base
// search from a linear scan to a voxel-grid lookup, so spec.md's "same
// algorithm with a spatial acceleration" is modeled as one type rather than
// two (see DESIGN.md).
type FourPCSConfig struct {
	// SampleSize (S) is how many source points the base is drawn from.
	SampleSize int
	// NumBases (B) is how many 4-point bases are tried before returning
	// the best-scoring candidate.
	NumBases int
	// Delta is the matching tolerance for invariant and LCP distance
	// comparisons.
	Delta float64
	// CoplanarTolerance bounds how far the fourth base point may sit from
	// the plane defined by the first three.
	CoplanarTolerance float64
	Accelerated       bool
	// GridResolution sizes the Super-4PCS voxel grid (Accelerated only).
	GridResolution float64
	Seed           int64
}

// DefaultFourPCSConfig mirrors spec.md's defaults.
func DefaultFourPCSConfig() FourPCSConfig {
	return FourPCSConfig{
		SampleSize:        200,
		NumBases:          100,
		Delta:             0.05,
		CoplanarTolerance: 0.02,
		GridResolution:    0.05,
	}
}

func (c FourPCSConfig) normalized() FourPCSConfig {
	if c.SampleSize <= 0 {
		c.SampleSize = 200
	}
	if c.NumBases <= 0 {
		c.NumBases = 100
	}
	if c.Delta <= 0 {
		c.Delta = 0.05
	}
	if c.CoplanarTolerance <= 0 {
		c.CoplanarTolerance = 0.02
	}
	if c.GridResolution <= 0 {
		c.GridResolution = 0.05
	}
	return c
}

// FourPCS registers two clouds by matching affine-invariant 4-point bases
// instead of descriptor correspondences, so it tolerates contamination
// levels RANSAC/PROSAC cannot.
type FourPCS struct {
	Config FourPCSConfig
}

// base is a 4-point congruent set drawn from the source cloud, with its two
// affine invariants (r1, r2) computed from the intersection of its two
// "diagonals" (p1,p2) and (p3,p4).
type base struct {
	p1, p2, p3, p4 pointcloud.Point
	d12, d34       float64
	r1, r2         float64
}

// Register implements spec.md §4.7.c (and §4.7.d when Config.Accelerated).
func (f FourPCS) Register(source, target *pointcloud.Cloud) (iteration.RegistrationResult, error) {
	cfg := f.Config.normalized()
	result := iteration.RegistrationResult{
		InitialTransformation: pointcloud.Identity(),
		Transformation:        pointcloud.Identity(),
		TerminationReason:     "insufficient correspondences",
	}
	if source.Len() < 4 || target.Len() < 4 {
		return result, errInsufficientCorrespondences
	}

	r := rng.New(cfg.Seed)
	sampleSize := cfg.SampleSize
	if sampleSize > source.Len() {
		sampleSize = source.Len()
	}
	sampleIdx := r.SampleDistinct(source.Len(), sampleSize)
	sample := make([]pointcloud.Point, sampleSize)
	for i, idx := range sampleIdx {
		sample[i] = source.Points[idx]
	}

	var grid *voxelGrid
	if cfg.Accelerated {
		grid = newVoxelGrid(target.Points, cfg.GridResolution)
	}
	targetIndex := knn.NewBruteForce(target.Points, func(a, b pointcloud.Point) float64 { return a.Distance(b) })

	var bestTransform pointcloud.Transform
	var bestLCP int
	var bestInlierSrcIdx []int
	performed := 0

	for i := 0; i < cfg.NumBases; i++ {
		b, ok := drawBase(sample, r, cfg.CoplanarTolerance)
		if !ok {
			continue
		}
		performed++
		candidates := matchingQuadruples(target.Points, b, cfg.Delta, grid)
		for _, cand := range candidates {
			t, ok := fitBase(b, cand, target.Points)
			if !ok {
				continue
			}
			lcp, inliers := scoreLCP(source.Points, t, targetIndex, cfg.Delta)
			if lcp > bestLCP {
				bestLCP = lcp
				bestTransform = t
				bestInlierSrcIdx = inliers
			}
		}
	}

	if bestLCP == 0 {
		result.TerminationReason = "insufficient correspondences"
		return result, errInsufficientCorrespondences
	}

	// Refine: refit the rigid transform over every accepted inlier pair,
	// using the target's own nearest neighbor as the pair partner.
	if refined, ok := refitLCP(source.Points, target.Points, bestInlierSrcIdx, targetIndex, bestTransform); ok {
		bestTransform = refined
		bestLCP, bestInlierSrcIdx = scoreLCP(source.Points, bestTransform, targetIndex, cfg.Delta)
	}

	result.Transformation = bestTransform
	result.Converged = true
	result.TerminationReason = "lcp threshold satisfied"
	result.IterationsPerformed = performed
	result.Inliers = toUint32(bestInlierSrcIdx)
	result.FinalError = float64(source.Len()-bestLCP) / float64(source.Len())
	return result, nil
}

// drawBase samples a 4-point base from pts, retrying a bounded number of
// times until the four points are approximately coplanar and the two
// diagonals are not parallel.
func drawBase(pts []pointcloud.Point, r *rng.Source, coplanarTol float64) (base, bool) {
	if len(pts) < 4 {
		return base{}, false
	}
	const maxAttempts = 25
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := r.SampleDistinct(len(pts), 4)
		p1, p2, p3, p4 := pts[idx[0]], pts[idx[1]], pts[idx[2]], pts[idx[3]]

		normal := p2.Sub(p1).Cross(p3.Sub(p1))
		nn := normal.Norm()
		if nn < 1e-9 {
			continue
		}
		normal = normal.Scale(1 / nn)
		dist := math.Abs(p4.Sub(p1).Dot(normal))
		scale := p1.Distance(p2) + p3.Distance(p4)
		if scale < 1e-9 || dist > coplanarTol*scale {
			continue
		}

		e, t1, t2, ok := lineIntersection(p1, p2, p3, p4)
		_ = e
		if !ok {
			continue
		}
		return base{
			p1: p1, p2: p2, p3: p3, p4: p4,
			d12: p1.Distance(p2), d34: p3.Distance(p4),
			r1: t1, r2: t2,
		}, true
	}
	return base{}, false
}

// lineIntersection finds the closest-approach point between line (p1,p2)
// and line (p3,p4), returning its parametric position along each segment
// (t1 along p1->p2, t2 along p3->p4) — the classic 4PCS affine invariants.
func lineIntersection(p1, p2, p3, p4 pointcloud.Point) (pointcloud.Point, float64, float64, bool) {
	d1 := p2.Sub(p1)
	d2 := p4.Sub(p3)
	r := p1.Sub(p3)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)
	b := d1.Dot(d2)
	c := d1.Dot(r)
	denom := a*e - b*b
	if math.Abs(denom) < 1e-12 {
		return pointcloud.Point{}, 0, 0, false
	}
	t1 := (b*f - c*e) / denom
	t2 := (a*f - b*c) / denom
	point1 := p1.Add(d1.Scale(t1))
	point2 := p3.Add(d2.Scale(t2))
	mid := point1.Add(point2).Scale(0.5)
	return mid, t1, t2, true
}

type pairIdx struct{ i, j int }

// matchingQuadruples finds every congruent quadruple in target consistent
// with b's two diagonal lengths and invariants, within delta.
func matchingQuadruples(target []pointcloud.Point, b base, delta float64, grid *voxelGrid) []pairIdx {
	pairs12 := pairsAtDistance(target, b.d12, delta, grid)
	pairs34 := pairsAtDistance(target, b.d34, delta, grid)
	if len(pairs12) == 0 || len(pairs34) == 0 {
		return nil
	}

	type located struct {
		pairIdx
		e pointcloud.Point
	}
	e1s := make([]located, 0, len(pairs12))
	for _, p := range pairs12 {
		e := target[p.i].Add(target[p.j].Sub(target[p.i]).Scale(b.r1))
		e1s = append(e1s, located{p, e})
	}
	e2s := make([]located, 0, len(pairs34))
	for _, p := range pairs34 {
		e := target[p.i].Add(target[p.j].Sub(target[p.i]).Scale(b.r2))
		e2s = append(e2s, located{p, e})
	}

	var out []pairIdx
	for _, a := range e1s {
		for _, c := range e2s {
			if a.pairIdx == c.pairIdx {
				continue
			}
			if a.e.Distance(c.e) <= delta {
				// Encode the matched quadruple as four target indices
				// by packing both pairs; fitBase unpacks them in order.
				out = append(out, encodeQuad(a.i, a.j, c.i, c.j))
			}
		}
	}
	return out
}

// encodeQuad/decodeQuad pack four non-negative indices below 1_000_003 into
// one pairIdx, two per field, so matchingQuadruples can return a flat
// []pairIdx without a fifth type.
func encodeQuad(a, b, c, d int) pairIdx {
	return pairIdx{i: a*1_000_003 + b, j: c*1_000_003 + d}
}

func decodeQuad(code pairIdx) (a, b, c, d int) {
	a, b = code.i/1_000_003, code.i%1_000_003
	c, d = code.j/1_000_003, code.j%1_000_003
	return
}

// pairsAtDistance returns every ordered pair (i, j), i != j, of target
// points whose separation is within delta of dist. When grid is non-nil
// (Super-4PCS), candidate js are restricted to the voxel grid's range
// query instead of a full scan.
func pairsAtDistance(target []pointcloud.Point, dist, delta float64, grid *voxelGrid) []pairIdx {
	var out []pairIdx
	for i, p := range target {
		var candidates []int
		if grid != nil {
			candidates = grid.rangeQuery(p, dist+delta)
		} else {
			candidates = make([]int, len(target))
			for k := range target {
				candidates[k] = k
			}
		}
		for _, j := range candidates {
			if j == i {
				continue
			}
			d := p.Distance(target[j])
			if math.Abs(d-dist) <= delta {
				out = append(out, pairIdx{i: i, j: j})
			}
		}
	}
	return out
}

func fitBase(b base, encoded pairIdx, target []pointcloud.Point) (pointcloud.Transform, bool) {
	ta, tb, tc, td := decodeQuad(encoded)
	pairs := []linalg.PointPair{
		{Src: toArr(b.p1), Dst: toArr(target[ta])},
		{Src: toArr(b.p2), Dst: toArr(target[tb])},
		{Src: toArr(b.p3), Dst: toArr(target[tc])},
		{Src: toArr(b.p4), Dst: toArr(target[td])},
	}
	rot, tr, ok := linalg.FitRigid(pairs)
	if !ok {
		return pointcloud.Transform{}, false
	}
	return pointcloud.NewRigid(rot, tr), true
}

func toArr(p pointcloud.Point) [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

// scoreLCP computes the Largest Common Point Set score: the count of
// source points whose transformed position has a target neighbor within
// delta (spec.md §4.7.c step 5), plus the inlier source indices.
func scoreLCP(source []pointcloud.Point, t pointcloud.Transform, targetIndex *knn.BruteForce[pointcloud.Point], delta float64) (int, []int) {
	var inliers []int
	for i, p := range source {
		q := t.Apply(p)
		nl, ok := targetIndex.KNeighbors(q, 1)
		if ok && nl.Len() > 0 && nl.Distances[0] <= delta {
			inliers = append(inliers, i)
		}
	}
	return len(inliers), inliers
}

// refitLCP refits the rigid transform over every LCP inlier pair, using
// each source point's current nearest target neighbor as its partner.
func refitLCP(source, target []pointcloud.Point, inliers []int, targetIndex *knn.BruteForce[pointcloud.Point], t pointcloud.Transform) (pointcloud.Transform, bool) {
	if len(inliers) < minSampleSize {
		return t, false
	}
	pairs := make([]linalg.PointPair, 0, len(inliers))
	for _, i := range inliers {
		q := t.Apply(source[i])
		nl, ok := targetIndex.KNeighbors(q, 1)
		if !ok || nl.Len() == 0 {
			continue
		}
		pairs = append(pairs, linalg.PointPair{Src: toArr(source[i]), Dst: toArr(target[nl.Indices[0]])})
	}
	if len(pairs) < minSampleSize {
		return t, false
	}
	rot, tr, ok := linalg.FitRigid(pairs)
	if !ok {
		return t, false
	}
	return pointcloud.NewRigid(rot, tr), true
}
