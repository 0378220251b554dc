package coarse

import (
	"math"

	"github.com/pclreg/pcreg/internal/rng"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// PROSACConfig configures PROSAC coarse registration (spec.md §4.7.b). Corrs
// passed to Register must already be sorted by descending quality (e.g. via
// pkg/sorter); PROSAC samples preferentially from the front of that order.
type PROSACConfig struct {
	MaxIterations      int
	InlierThreshold    float64
	Confidence         float64
	Seed               int64
	// NonRandomnessAlpha is the significance level of the non-randomness
	// test: a model is rejected when its inlier count is statistically
	// indistinguishable from what a uniform background contamination rate
	// would produce by chance. Default 0.05 per spec.md.
	NonRandomnessAlpha float64
	// EarlyStopRatio stops sampling once the best model's inlier ratio
	// exceeds this fraction. Default 0.8 per spec.md.
	EarlyStopRatio float64
}

// DefaultPROSACConfig mirrors spec.md's defaults.
func DefaultPROSACConfig() PROSACConfig {
	return PROSACConfig{
		MaxIterations:      10000,
		InlierThreshold:    0.05,
		Confidence:         0.99,
		NonRandomnessAlpha: 0.05,
		EarlyStopRatio:     0.8,
	}
}

func (c PROSACConfig) normalized() PROSACConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10000
	}
	if c.InlierThreshold <= 0 {
		c.InlierThreshold = 0.05
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = 0.99
	}
	if c.NonRandomnessAlpha <= 0 {
		c.NonRandomnessAlpha = 0.05
	}
	if c.EarlyStopRatio <= 0 {
		c.EarlyStopRatio = 0.8
	}
	return c
}

// PROSAC is RANSAC over a quality-sorted correspondence list: the sampling
// pool grows from a small prefix toward the full list along the Chum/Matas
// non-random growth schedule, so well-ranked correspondences are tried
// first. The schedule is fixed whatever the input order: the pool reaches n
// correspondences at about iteration C(n,3), so under the default
// 10000-iteration budget it never grows past the first 40 correspondences,
// and PROSAC does not reduce to RANSAC over the full list when the order
// carries no signal.
type PROSAC struct {
	Config PROSACConfig
}

// growthSchedule precomputes T_n (the iteration index at which the sampling
// pool should have grown to include n correspondences) for n in
// [minSampleSize, total], via the standard PROSAC recurrence:
//
//	T'_{m} = 1                              (m = minSampleSize)
//	T'_n   = T'_{n-1} * n / (n - m)          (n > m)
//
// so T'_n grows smoothly from 1 and the pool reaches the full list only
// after many iterations when no reordering gain is available.
func growthSchedule(total int) []float64 {
	m := minSampleSize
	t := make([]float64, total+1)
	if total < m {
		return t
	}
	t[m] = 1
	for n := m + 1; n <= total; n++ {
		t[n] = t[n-1] * float64(n) / float64(n-m)
	}
	return t
}

// poolSize returns the largest n such that growthSchedule[n] <= iter+1,
// i.e. the sampling pool size scheduled for this iteration.
func poolSize(schedule []float64, total, iter int) int {
	n := minSampleSize
	for next := n + 1; next <= total && schedule[next] <= float64(iter+1); next++ {
		n = next
	}
	if n > total {
		n = total
	}
	return n
}

// Register implements spec.md §4.7.b.
func (p PROSAC) Register(source, target *pointcloud.Cloud, corrs []correspondence.Correspondence) (iteration.RegistrationResult, error) {
	cfg := p.Config.normalized()
	result := iteration.RegistrationResult{
		InitialTransformation: pointcloud.Identity(),
		Transformation:        pointcloud.Identity(),
		TerminationReason:     "insufficient correspondences",
	}
	total := len(corrs)
	if total < minSampleSize {
		return result, errInsufficientCorrespondences
	}

	src := rng.New(cfg.Seed)
	pairs := toPointPairs(source, target, corrs)
	schedule := growthSchedule(total)

	var bestTransform pointcloud.Transform
	var bestInliers []int
	maxIters := cfg.MaxIterations
	performed := 0

	for iter := 0; iter < maxIters; iter++ {
		performed = iter + 1
		n := poolSize(schedule, total, iter)

		// The standard PROSAC draw always includes the newest (lowest
		// ranked within the pool) correspondence once the pool has grown
		// past the minimal sample, then fills the rest uniformly from the
		// pool, so the search keeps revisiting the high-quality prefix.
		var sample []int
		if n > minSampleSize {
			rest := src.SampleDistinct(n-1, minSampleSize-1)
			sample = append(sample, n-1)
			for _, r := range rest {
				sample = append(sample, r)
			}
		} else {
			sample = src.SampleDistinct(n, minSampleSize)
		}

		t, ok := fitPairs(pairs, sample)
		if !ok {
			continue
		}
		inliers := inlierIndices(pairs, t, cfg.InlierThreshold)
		if len(inliers) <= len(bestInliers) {
			continue
		}
		if !passesNonRandomness(len(inliers), total, cfg.NonRandomnessAlpha) {
			continue
		}

		bestInliers = inliers
		bestTransform = t

		w := float64(len(bestInliers)) / float64(total)
		if bound, ok := adaptiveIterationBound(w, cfg.Confidence); ok && bound < maxIters {
			maxIters = bound
		}
		if w >= cfg.EarlyStopRatio {
			break
		}
	}

	if len(bestInliers) < minSampleSize {
		result.TerminationReason = "insufficient correspondences"
		return result, errInsufficientCorrespondences
	}

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

// passesNonRandomness rejects models whose inlier count is statistically
// indistinguishable from a uniform background contamination rate: under the
// null hypothesis that matches are random, inlier count is approximately
// Binomial(total, backgroundP); the model passes only if its inlier count
// exceeds the upper one-sided critical value at significance alpha (normal
// approximation to the binomial, per spec.md §4.7.b).
func passesNonRandomness(inliers, total int, alpha float64) bool {
	const backgroundP = 0.1
	mean := float64(total) * backgroundP
	std := math.Sqrt(float64(total) * backgroundP * (1 - backgroundP))
	if std <= 0 {
		return true
	}
	z := inverseNormalUpperTail(alpha)
	critical := mean + z*std
	return float64(inliers) > critical
}

// inverseNormalUpperTail returns the upper-tail quantile of the standard
// normal distribution from a four-entry table (alpha 0.01, 0.025, 0.05,
// 0.10), rounding alpha up to the next tabulated level; alpha above 0.10
// yields 0.
func inverseNormalUpperTail(alpha float64) float64 {
	switch {
	case alpha <= 0.01:
		return 2.326
	case alpha <= 0.025:
		return 1.960
	case alpha <= 0.05:
		return 1.645
	case alpha <= 0.10:
		return 1.282
	default:
		return 0.0
	}
}
