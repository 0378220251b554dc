package correspondence

import (
	"math"
	"testing"

	"github.com/pclreg/pcreg/pkg/workerpool"
)

type vec3 [3]float64

func vecDistance(a, b vec3) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func TestGenerateFindsIdentityMatches(t *testing.T) {
	src := []vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	dst := []vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	srcKp := []uint32{10, 11, 12, 13}
	dstKp := []uint32{20, 21, 22, 23}

	out, stats := Generate(src, srcKp, dst, dstKp, vecDistance, DefaultOptions())
	if stats.TotalCandidates != 4 {
		t.Fatalf("expected 4 candidates, got %d", stats.TotalCandidates)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 correspondences, got %d: %+v", len(out), out)
	}
	for i, c := range out {
		if c.SrcIdx != srcKp[i] || c.DstIdx != dstKp[i] {
			t.Fatalf("unexpected mapping at %d: %+v", i, c)
		}
		if c.Distance != 0 {
			t.Fatalf("expected zero distance for identical descriptors, got %v", c.Distance)
		}
	}
}

func TestRatioTestRejectsAmbiguousMatch(t *testing.T) {
	src := []vec3{{0, 0, 0}}
	// two near-equidistant destination descriptors: ratio test should reject.
	dst := []vec3{{1, 0, 0}, {1.01, 0, 0}}
	opts := DefaultOptions()
	opts.Ratio = 0.8

	out, stats := Generate(src, []uint32{0}, dst, []uint32{0, 1}, vecDistance, opts)
	if len(out) != 0 {
		t.Fatalf("expected ratio test to reject ambiguous match, got %+v", out)
	}
	if stats.RatioTestPassed != 0 {
		t.Fatalf("expected 0 ratio-test passes, got %d", stats.RatioTestPassed)
	}
}

func TestMutualVerificationRejectsOneSidedMatch(t *testing.T) {
	// Both src points claim dst[0] as their nearest neighbor (it is the
	// only destination descriptor), but dst[0]'s own nearest source point
	// is src[1], not src[0] -- mutual verification must reject src[0]'s
	// match while keeping src[1]'s.
	src := []vec3{{0, 0, 0}, {0.01, 0, 0}}
	dst := []vec3{{0.02, 0, 0}}

	opts := Options{Ratio: 0.99, MutualVerification: true}
	out, _ := Generate(src, []uint32{0, 1}, dst, []uint32{0}, vecDistance, opts)
	if len(out) != 1 || out[0].SrcIdx != 1 {
		t.Fatalf("expected only src[1]'s mutually-verified match to survive, got %+v", out)
	}

	opts.MutualVerification = false
	out2, _ := Generate(src, []uint32{0, 1}, dst, []uint32{0}, vecDistance, opts)
	if len(out2) != 2 {
		t.Fatalf("expected both one-directional matches without mutual verification, got %+v", out2)
	}
}

func TestDistanceThresholdFiltersFarMatches(t *testing.T) {
	src := []vec3{{0, 0, 0}}
	dst := []vec3{{5, 0, 0}}
	opts := DefaultOptions()
	opts.DistanceThreshold = 1.0

	out, stats := Generate(src, []uint32{0}, dst, []uint32{0}, vecDistance, opts)
	if len(out) != 0 {
		t.Fatalf("expected distance threshold to reject far match, got %+v", out)
	}
	if stats.DistanceTestPassed != 0 {
		t.Fatalf("expected 0 distance-test passes, got %d", stats.DistanceTestPassed)
	}
}

func TestGenerateParallelMatchesSequential(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	src := []vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}}
	dst := []vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}}
	srcKp := []uint32{0, 1, 2, 3, 4}
	dstKp := []uint32{0, 1, 2, 3, 4}

	seq, _ := Generate(src, srcKp, dst, dstKp, vecDistance, DefaultOptions())
	opts := DefaultOptions()
	opts.Pool = pool
	par, _ := GenerateParallel(src, srcKp, dst, dstKp, vecDistance, opts)

	if len(seq) != len(par) {
		t.Fatalf("length mismatch: seq=%d par=%d", len(seq), len(par))
	}
	seen := make(map[uint32]uint32, len(seq))
	for _, c := range seq {
		seen[c.SrcIdx] = c.DstIdx
	}
	for _, c := range par {
		if seen[c.SrcIdx] != c.DstIdx {
			t.Fatalf("mismatch for src %d: seq dst=%d par dst=%d", c.SrcIdx, seen[c.SrcIdx], c.DstIdx)
		}
	}
}
