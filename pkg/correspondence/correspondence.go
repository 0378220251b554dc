// Package correspondence implements correspondence generation (C5): matching
// descriptors between a source and a destination keypoint set via Lowe's
// ratio test, optional mutual (bidirectional) verification, and a distance
// cap, producing point-index pairs a coarse registrator can consume.
package correspondence

import (
	"math"

	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

// Correspondence is a matched pair of point indices (into the source and
// destination clouds respectively) with the descriptor distance that
// produced the match.
type Correspondence struct {
	SrcIdx   uint32
	DstIdx   uint32
	Distance float64
}

// Stats records how many candidates survived each filtering stage of
// Generate/GenerateParallel, for diagnostics and tuning.
type Stats struct {
	TotalCandidates    int
	RatioTestPassed    int
	MutualTestPassed   int
	DistanceTestPassed int
}

// Options configures correspondence generation.
type Options struct {
	// Ratio is the Lowe's ratio test threshold: a best match is accepted
	// only if its distance is below Ratio times the second-best distance.
	// A source descriptor with only one destination candidate passes the
	// test automatically.
	Ratio float64
	// MutualVerification requires that the destination point's own
	// nearest source descriptor is the same source point, rejecting
	// one-directional matches.
	MutualVerification bool
	// DistanceThreshold caps the accepted descriptor distance. Zero means
	// no cap.
	DistanceThreshold float64
	Parallel          bool
	Pool              *workerpool.Default
}

// DefaultOptions mirrors the common defaults: a 0.8 ratio, mutual
// verification on, and no distance cap.
func DefaultOptions() Options {
	return Options{Ratio: 0.8, MutualVerification: true}
}

func (o Options) distanceCap() float64 {
	if o.DistanceThreshold <= 0 {
		return math.MaxFloat64
	}
	return o.DistanceThreshold
}

// Generate matches every source descriptor against the destination set.
// srcDescriptors[i] describes the point srcKeypoints[i] (and likewise for
// the destination side); descriptors and keypoint indices must have equal
// length on each side. metric computes the distance between two
// descriptors of type S (use a signature's own Distance method, e.g.
// func(a, b descriptors.FPFHSignature) float64 { return a.Distance(b) }).
func Generate[S any](
	srcCloud []S, srcKeypoints []uint32,
	dstCloud []S, dstKeypoints []uint32,
	metric knn.MetricFunc[S],
	opts Options,
) ([]Correspondence, Stats) {
	return generate(srcCloud, srcKeypoints, dstCloud, dstKeypoints, metric, opts, false)
}

// GenerateParallel behaves like Generate but partitions the source
// descriptors across opts.Pool. The result is identical to Generate's up to
// the order of equal-distance candidates (both use ascending-index
// tie-breaking in the underlying k-NN search, so in practice they agree
// exactly).
func GenerateParallel[S any](
	srcCloud []S, srcKeypoints []uint32,
	dstCloud []S, dstKeypoints []uint32,
	metric knn.MetricFunc[S],
	opts Options,
) ([]Correspondence, Stats) {
	opts.Parallel = true
	return generate(srcCloud, srcKeypoints, dstCloud, dstKeypoints, metric, opts, true)
}

type candidate struct {
	srcPos   int
	dstPos   int
	distance float64
	ok       bool
}

func generate[S any](
	srcDesc []S, srcKeypoints []uint32,
	dstDesc []S, dstKeypoints []uint32,
	metric knn.MetricFunc[S],
	opts Options,
	parallel bool,
) ([]Correspondence, Stats) {
	var stats Stats
	stats.TotalCandidates = len(srcDesc)
	if len(srcDesc) == 0 || len(dstDesc) == 0 {
		return nil, stats
	}

	dstIndex := knn.NewBruteForce(dstDesc, metric)

	findOne := func(i int) candidate {
		nl, ok := dstIndex.KNeighbors(srcDesc[i], 2)
		if !ok || nl.Len() == 0 {
			return candidate{}
		}
		if nl.Len() >= 2 && !(nl.Distances[0] < opts.Ratio*nl.Distances[1]) {
			return candidate{}
		}
		return candidate{srcPos: i, dstPos: int(nl.Indices[0]), distance: nl.Distances[0], ok: true}
	}

	var raw []candidate
	if parallel && opts.Pool != nil {
		chunks := workerpool.ParallelChunks(opts.Pool, len(srcDesc), func(start, end int) []candidate {
			local := make([]candidate, 0, end-start)
			for i := start; i < end; i++ {
				if c := findOne(i); c.ok {
					local = append(local, c)
				}
			}
			return local
		})
		for _, chunk := range chunks {
			raw = append(raw, chunk...)
		}
	} else {
		for i := range srcDesc {
			if c := findOne(i); c.ok {
				raw = append(raw, c)
			}
		}
	}
	stats.RatioTestPassed = len(raw)

	var srcIndex *knn.BruteForce[S]
	if opts.MutualVerification {
		srcIndex = knn.NewBruteForce(srcDesc, metric)
	}

	distCap := opts.distanceCap()
	out := make([]Correspondence, 0, len(raw))
	for _, c := range raw {
		if opts.MutualVerification {
			nl, ok := srcIndex.KNeighbors(dstDesc[c.dstPos], 1)
			if !ok || nl.Len() == 0 || int(nl.Indices[0]) != c.srcPos {
				continue
			}
			stats.MutualTestPassed++
		}
		if c.distance > distCap {
			continue
		}
		stats.DistanceTestPassed++
		out = append(out, Correspondence{
			SrcIdx:   srcKeypoints[c.srcPos],
			DstIdx:   dstKeypoints[c.dstPos],
			Distance: c.distance,
		})
	}
	return out, stats
}
