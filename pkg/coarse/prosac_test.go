package coarse

import (
	"testing"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

func TestPROSACRecoversPlantedTransform(t *testing.T) {
	src := cubeSource()
	truth := pointcloud.NewRigid(rotateZ90(), [3]float64{-0.5, 1.5, 0.25})
	dst := make([]pointcloud.Point, len(src))
	for i, p := range src {
		dst[i] = truth.Apply(p)
	}
	source := pointcloud.New(src)
	target := pointcloud.New(dst)
	corrs := identityCorrespondences(len(src))

	cfg := DefaultPROSACConfig()
	cfg.Seed = 3
	p := PROSAC{Config: cfg}
	result, err := p.Register(source, target, corrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected PROSAC to converge, got %+v", result)
	}
	if diff := result.Transformation.FrobeniusDiff(truth); diff > 1e-6 {
		t.Fatalf("recovered transform too far from ground truth: diff=%v", diff)
	}
}

func TestPROSACUsesFewerIterationsThanRANSACOnSortedInput(t *testing.T) {
	// Build a correspondence list where the first few entries (the
	// highest-quality prefix, as sorter would rank them) are clean and
	// the tail is contaminated with wrong matches. PROSAC should exploit
	// the ordering and converge well inside the fixed iteration budget,
	// in fewer iterations than RANSAC needs on the same list.
	src := cubeSource()
	truth := pointcloud.NewRigid(pointcloud.Identity().Rotation(), [3]float64{0.3, -0.2, 0.1})
	dst := make([]pointcloud.Point, len(src))
	for i, p := range src {
		dst[i] = truth.Apply(p)
	}
	corrs := identityCorrespondences(len(src))
	// Corrupt the lowest-ranked (last) entries only.
	corrs[len(corrs)-1].DstIdx = uint32((corrs[len(corrs)-1].DstIdx + 2) % uint32(len(src)))

	source := pointcloud.New(src)
	target := pointcloud.New(dst)

	cfg := DefaultPROSACConfig()
	cfg.Seed = 5
	cfg.MaxIterations = 10000
	p := PROSAC{Config: cfg}
	result, err := p.Register(source, target, corrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence, got %+v", result)
	}
	if result.IterationsPerformed >= cfg.MaxIterations {
		t.Fatalf("expected PROSAC to terminate before exhausting the iteration budget, got %d", result.IterationsPerformed)
	}

	r := RANSAC{Config: RANSACConfig{MaxIterations: 10000, InlierThreshold: 0.05, Confidence: 0.99, Seed: 5}}
	ransacResult, err := r.Register(source, target, corrs)
	if err != nil {
		t.Fatalf("unexpected RANSAC error: %v", err)
	}
	if result.IterationsPerformed >= ransacResult.IterationsPerformed {
		t.Fatalf("expected PROSAC to use fewer iterations than RANSAC, got %d vs %d", result.IterationsPerformed, ransacResult.IterationsPerformed)
	}
}

func TestGrowthScheduleIsMonotonicallyIncreasing(t *testing.T) {
	schedule := growthSchedule(10)
	for n := minSampleSize + 1; n <= 10; n++ {
		if schedule[n] < schedule[n-1] {
			t.Fatalf("expected non-decreasing growth schedule, got T[%d]=%v < T[%d]=%v", n, schedule[n], n-1, schedule[n-1])
		}
	}
}

func TestPassesNonRandomnessRejectsChanceLevelInlierCounts(t *testing.T) {
	// With a large pool and a low alpha, an inlier count barely above the
	// expected background rate should fail the test.
	if passesNonRandomness(12, 100, 0.05) {
		t.Fatal("expected a chance-level inlier count to fail the non-randomness test")
	}
	if !passesNonRandomness(80, 100, 0.05) {
		t.Fatal("expected a dominant inlier count to pass the non-randomness test")
	}
}
