package coarse

import (
	"math"

	"github.com/pclreg/pcreg/internal/rng"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// RANSACConfig configures RANSAC coarse registration (spec.md §4.7.a).
type RANSACConfig struct {
	// MaxIterations bounds the sampling loop; the adaptive stopping rule
	// usually terminates well before this is reached.
	MaxIterations int
	// InlierThreshold is the maximum residual ||T*s - t|| for a pair to
	// count as an inlier.
	InlierThreshold float64
	// Confidence is the target probability that at least one of the
	// drawn samples is outlier-free, used by the adaptive iteration bound.
	Confidence float64
	Seed       int64
}

// DefaultRANSACConfig mirrors spec.md's defaults: inlier threshold 0.05,
// confidence 0.99, a large iteration ceiling.
func DefaultRANSACConfig() RANSACConfig {
	return RANSACConfig{MaxIterations: 10000, InlierThreshold: 0.05, Confidence: 0.99}
}

func (c RANSACConfig) normalized() RANSACConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10000
	}
	if c.InlierThreshold <= 0 {
		c.InlierThreshold = 0.05
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = 0.99
	}
	return c
}

// RANSAC draws minimal 3-point samples, fits a rigid transform by SVD, and
// adaptively shrinks the iteration budget as the inlier ratio improves.
type RANSAC struct {
	Config RANSACConfig
}

// Register implements spec.md §4.7.a steps 1-5.
func (r RANSAC) Register(source, target *pointcloud.Cloud, corrs []correspondence.Correspondence) (iteration.RegistrationResult, error) {
	cfg := r.Config.normalized()
	result := iteration.RegistrationResult{
		InitialTransformation: pointcloud.Identity(),
		Transformation:        pointcloud.Identity(),
		TerminationReason:     "insufficient correspondences",
	}
	if len(corrs) < minSampleSize {
		return result, errInsufficientCorrespondences
	}

	src := rng.New(cfg.Seed)
	pairs := toPointPairs(source, target, corrs)
	total := len(corrs)

	var bestTransform pointcloud.Transform
	var bestInliers []int
	maxIters := cfg.MaxIterations
	performed := 0

	for iter := 0; iter < maxIters; iter++ {
		performed = iter + 1
		sample := src.SampleDistinct(total, minSampleSize)
		t, ok := fitPairs(pairs, sample)
		if !ok {
			continue
		}
		inliers := inlierIndices(pairs, t, cfg.InlierThreshold)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			bestTransform = t

			w := float64(len(bestInliers)) / float64(total)
			if n, ok := adaptiveIterationBound(w, cfg.Confidence); ok && n < maxIters {
				maxIters = n
			}
		}
	}

	if len(bestInliers) < minSampleSize {
		result.TerminationReason = "insufficient correspondences"
		return result, errInsufficientCorrespondences
	}

	// Refit on all inliers, then re-evaluate.
	if t, ok := fitPairs(pairs, bestInliers); ok {
		bestTransform = t
		bestInliers = inlierIndices(pairs, bestTransform, cfg.InlierThreshold)
	}

	result.Transformation = bestTransform
	result.Converged = true
	result.TerminationReason = "inlier threshold satisfied"
	result.IterationsPerformed = performed
	result.Inliers = toUint32(bestInliers)
	result.FinalError = meanResidual(pairs, bestInliers, bestTransform)
	return result, nil
}

// adaptiveIterationBound computes N = log(1-confidence) / log(1-w^3) for a
// minimal sample size of 3, per spec.md §4.7.a step 4. ok is false when w is
// not positive or the logarithm is undefined; w >= 1 (every correspondence
// an inlier) yields the minimal bound of one iteration.
func adaptiveIterationBound(w, confidence float64) (int, bool) {
	if w <= 0 {
		return 0, false
	}
	if w >= 1 {
		return 1, true
	}
	denom := math.Log(1 - w*w*w)
	if denom >= 0 || math.IsNaN(denom) {
		return 0, false
	}
	n := math.Log(1-confidence) / denom
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, false
	}
	return int(math.Ceil(n)), true
}
