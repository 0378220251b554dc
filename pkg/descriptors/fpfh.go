package descriptors

import (
	"math"

	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

const fpfhBinsPerAxis = 11

// FPFHSignature is a 33-bin Fast Point Feature Histogram: three 11-bin
// angular histograms (the alpha, phi, theta Darboux-frame features)
// concatenated.
type FPFHSignature [3 * fpfhBinsPerAxis]float64

func (s FPFHSignature) Values() []float64 { return s[:] }

func (s FPFHSignature) Distance(other FPFHSignature) float64 {
	return euclidean(s[:], other[:])
}

// spfhSignature is the Simplified Point Feature Histogram computed once per
// distinct point before the final weighted combination into FPFH.
type spfhSignature struct {
	f1, f2, f3 [fpfhBinsPerAxis]float64
}

// FPFHExtractor computes FPFHSignature descriptors over keypoints of a cloud
// whose normals have already been estimated (see package normals). Set
// either Radius (radius search) or NumNeighbors (fixed-k search); Radius
// takes precedence when both are non-zero.
type FPFHExtractor struct {
	Radius       float64
	NumNeighbors int
	Parallel     bool
	Pool         *workerpool.Default
}

func (e *FPFHExtractor) neighborsOf(idx Index, p pointcloud.Point) ([]uint32, []float64, bool) {
	if e.Radius > 0 {
		res, ok := idx.RadiusNeighbors(p, e.Radius)
		if !ok {
			return nil, nil, false
		}
		return res.Indices, res.Distances, true
	}
	res, ok := idx.KNeighbors(p, e.NumNeighbors)
	if !ok {
		return nil, nil, false
	}
	return res.Indices, res.Distances, true
}

// Compute extracts an FPFHSignature for each keypoint index. A keypoint
// whose neighborhood search fails, or whose cloud carries no normals,
// receives an all-zero signature; no error is returned.
func (e *FPFHExtractor) Compute(cloud *pointcloud.Cloud, idx Index, keypoints []uint32) []FPFHSignature {
	out := make([]FPFHSignature, len(keypoints))
	if !cloud.HasNormals() {
		return out
	}

	neighborhoods := make([][]uint32, len(keypoints))
	needed := make(map[uint32]struct{})
	for i, kp := range keypoints {
		indices, _, ok := e.neighborsOf(idx, cloud.Points[kp])
		if !ok {
			continue
		}
		neighborhoods[i] = indices
		needed[kp] = struct{}{}
		for _, n := range indices {
			needed[n] = struct{}{}
		}
	}

	needList := make([]uint32, 0, len(needed))
	for p := range needed {
		needList = append(needList, p)
	}

	spfhOf := make(map[uint32]spfhSignature, len(needList))
	computeOne := func(p uint32) spfhSignature {
		indices, _, ok := e.neighborsOf(idx, cloud.Points[p])
		if !ok {
			return spfhSignature{}
		}
		return computeSPFH(cloud, p, indices)
	}
	if e.Parallel && e.Pool != nil {
		results := workerpool.ParallelChunks(e.Pool, len(needList), func(start, end int) []spfhSignature {
			local := make([]spfhSignature, end-start)
			for i := start; i < end; i++ {
				local[i-start] = computeOne(needList[i])
			}
			return local
		})
		i := 0
		for _, chunk := range results {
			for _, sig := range chunk {
				spfhOf[needList[i]] = sig
				i++
			}
		}
	} else {
		for _, p := range needList {
			spfhOf[p] = computeOne(p)
		}
	}

	for i, kp := range keypoints {
		if len(neighborhoods[i]) == 0 {
			continue
		}
		out[i] = combineFPFH(cloud, kp, neighborhoods[i], spfhOf)
	}
	return out
}

func computeSPFH(cloud *pointcloud.Cloud, p uint32, neighborIdx []uint32) spfhSignature {
	var s spfhSignature
	count := 0
	pp := cloud.Points[p]
	np := cloud.Normals[p]
	for _, q := range neighborIdx {
		if q == p {
			continue
		}
		alpha, phi, theta := darbouxFeatures(pp, cloud.Points[q], np, cloud.Normals[q])
		s.f1[fpfhBin(alpha, -1, 1)]++
		s.f2[fpfhBin(phi, -1, 1)]++
		s.f3[fpfhBin(theta, -math.Pi, math.Pi)]++
		count++
	}
	if count > 0 {
		scale := 100.0 / float64(count)
		for i := 0; i < fpfhBinsPerAxis; i++ {
			s.f1[i] *= scale
			s.f2[i] *= scale
			s.f3[i] *= scale
		}
	}
	return s
}

// combineFPFH folds a keypoint's own SPFH with its neighbors' SPFH weighted
// by inverse distance, the fast-FPFH combination from the 2009 Rusu paper.
func combineFPFH(cloud *pointcloud.Cloud, kp uint32, neighborIdx []uint32, spfhOf map[uint32]spfhSignature) FPFHSignature {
	var sig FPFHSignature
	base := spfhOf[kp]
	for i := 0; i < fpfhBinsPerAxis; i++ {
		sig[i] = base.f1[i]
		sig[fpfhBinsPerAxis+i] = base.f2[i]
		sig[2*fpfhBinsPerAxis+i] = base.f3[i]
	}

	pp := cloud.Points[kp]
	var acc [3 * fpfhBinsPerAxis]float64
	var weightSum float64
	for _, q := range neighborIdx {
		if q == kp {
			continue
		}
		d := pp.Distance(cloud.Points[q])
		if d < 1e-12 {
			continue
		}
		w := 1 / d
		weightSum += w
		nb := spfhOf[q]
		for i := 0; i < fpfhBinsPerAxis; i++ {
			acc[i] += w * nb.f1[i]
			acc[fpfhBinsPerAxis+i] += w * nb.f2[i]
			acc[2*fpfhBinsPerAxis+i] += w * nb.f3[i]
		}
	}
	if weightSum > 0 {
		for i := range acc {
			sig[i] += acc[i] / weightSum
		}
	}
	return sig
}

func fpfhBin(v, lo, hi float64) int {
	b := int((v - lo) / (hi - lo) * fpfhBinsPerAxis)
	return clampBin(b, fpfhBinsPerAxis)
}

// darbouxFeatures computes the (alpha, phi, theta) PFH angular features for
// the ordered pair (pi, pj). The point whose normal makes the smaller angle
// with the connecting line is used as the Darboux frame origin, per the
// convention in the 2009 Rusu PFH paper.
func darbouxFeatures(pi, pj, ni, nj pointcloud.Point) (alpha, phi, theta float64) {
	d := pj.Sub(pi)
	dist := d.Norm()
	if dist < 1e-12 {
		return 0, 0, 0
	}
	dHat := d.Scale(1 / dist)

	src, tgt := ni, nj
	if math.Abs(ni.Dot(dHat)) < math.Abs(nj.Dot(dHat)) {
		src, tgt = nj, ni
		dHat = dHat.Scale(-1)
	}

	u := src
	v := u.Cross(dHat).Normalized()
	w := u.Cross(v)

	alpha = v.Dot(tgt)
	phi = u.Dot(dHat)
	theta = math.Atan2(w.Dot(tgt), u.Dot(tgt))
	return
}
