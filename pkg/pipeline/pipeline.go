// Package pipeline wires the registration components (C1..C10) into the
// entry points spec.md §6 describes in design terms: build an index,
// estimate normals, extract descriptors, generate and sort correspondences,
// then run coarse and fine registration. Nothing here is itself an
// algorithm; every operation below delegates to the package that owns it
// and exists only to save a caller from repeating the same assembly.
package pipeline

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/pclreg/pcreg/pkg/coarse"
	"github.com/pclreg/pcreg/pkg/config"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/descriptors"
	"github.com/pclreg/pcreg/pkg/fine"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/normals"
	"github.com/pclreg/pcreg/pkg/observability"
	"github.com/pclreg/pcreg/pkg/pcerr"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/sorter"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

// Pipeline bundles a configuration with the shared worker pool, logger, and
// metrics every stage below reports through. It holds no point-cloud state
// of its own; every method takes its clouds as arguments.
type Pipeline struct {
	Config      *config.Config
	Pool        *workerpool.Default
	Logger      *observability.Logger
	StageLogger *observability.StageLogger
	Metrics     *observability.Metrics
}

// New builds a Pipeline from cfg, a default worker pool sized to GOMAXPROCS,
// the package default logger, and a fresh Metrics instance. A caller that
// has already registered a Metrics instance builds the Pipeline struct
// directly with that instance instead (NewMetrics panics on double
// registration against the default registerer); every stage reports through
// Metrics, so the field must not be nil.
func New(cfg *config.Config) *Pipeline {
	logger := observability.GetGlobalLogger()
	return &Pipeline{
		Config:      cfg,
		Pool:        workerpool.New(runtime.GOMAXPROCS(0)),
		Logger:      logger,
		StageLogger: observability.NewStageLogger(logger),
		Metrics:     observability.NewMetrics(),
	}
}

// BuildIndex constructs the k-nearest-neighbor index C2 asks for: a k-d tree
// for the L2 metric when cfg.KNN.UseKDTree is set, otherwise a (parallel,
// when the pool is non-nil) brute-force index over the requested metric.
func (p *Pipeline) BuildIndex(points []pointcloud.Point) (knn.Index[pointcloud.Point], error) {
	if len(points) == 0 {
		return nil, pcerr.ErrEmptyCloud
	}
	if p.Config.KNN.Metric == "l2" && p.Config.KNN.UseKDTree {
		return knn.NewKDTree(points), nil
	}
	metricFn, err := descriptorMetricByName(p.Config.KNN.Metric, p.Config.KNN.MinkowskiOrder)
	if err != nil {
		return nil, err
	}
	if p.Pool != nil {
		return knn.NewBruteForceParallel(points, metricFn, p.Pool), nil
	}
	return knn.NewBruteForce(points, metricFn), nil
}

func descriptorMetricByName(name string, order float64) (func(a, b pointcloud.Point) float64, error) {
	switch name {
	case "l2":
		return func(a, b pointcloud.Point) float64 { return a.Distance(b) }, nil
	case "l1":
		return func(a, b pointcloud.Point) float64 {
			return absf(a.X-b.X) + absf(a.Y-b.Y) + absf(a.Z-b.Z)
		}, nil
	case "linf":
		return func(a, b pointcloud.Point) float64 {
			return maxf(absf(a.X-b.X), absf(a.Y-b.Y), absf(a.Z-b.Z))
		}, nil
	case "minkowski":
		return func(a, b pointcloud.Point) float64 {
			dx, dy, dz := absf(a.X-b.X), absf(a.Y-b.Y), absf(a.Z-b.Z)
			return powSum(dx, dy, dz, order)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", pcerr.ErrUnknownAlgorithm, name)
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func powSum(dx, dy, dz, order float64) float64 {
	sum := math.Pow(dx, order) + math.Pow(dy, order) + math.Pow(dz, order)
	return math.Pow(sum, 1/order)
}

// EstimateNormals runs C3 (PCA normal estimation) over cloud using
// idx, built over the same points, with cfg.Descriptor.NormalNeighbors
// neighbors per point.
func (p *Pipeline) EstimateNormals(cloud *pointcloud.Cloud, idx normals.Index) *pointcloud.Cloud {
	start := time.Now()
	out := normals.Estimate(cloud, idx, p.Config.Descriptor.NormalNeighbors, true, p.Pool)
	p.Metrics.RecordNormalsEstimated(out.Len())
	p.Logger.Info("normals estimated", map[string]interface{}{"count": out.Len(), "elapsed": time.Since(start)})
	return out
}

// MatchResult is the output of ExtractAndMatch: the generated
// correspondences plus the filtering-funnel stats behind them.
type MatchResult struct {
	Correspondences []correspondence.Correspondence
	Stats           correspondence.Stats
}

// ExtractAndMatch runs C4 (descriptor extraction, dispatched on
// cfg.Descriptor.Descriptor) over both keypoint sets and C5 (correspondence
// generation) between them. Both clouds must carry normals already (see
// EstimateNormals); src/dstIdx are k-nearest-neighbor indices built over
// src/dst respectively.
func (p *Pipeline) ExtractAndMatch(
	src, dst *pointcloud.Cloud,
	srcIdx, dstIdx descriptors.Index,
	srcKeypoints, dstKeypoints []uint32,
) (MatchResult, error) {
	start := time.Now()
	opts := correspondence.Options{
		Ratio:               p.Config.Correspondence.Ratio,
		MutualVerification:  p.Config.Correspondence.MutualVerification,
		DistanceThreshold:   p.Config.Correspondence.DistanceThreshold,
		Parallel:            p.Config.Correspondence.Parallel,
		Pool:                p.Pool,
	}

	var corrs []correspondence.Correspondence
	var stats correspondence.Stats

	switch p.Config.Descriptor.Descriptor {
	case "fpfh":
		ext := &descriptors.FPFHExtractor{NumNeighbors: p.Config.Descriptor.NormalNeighbors, Parallel: opts.Parallel, Pool: p.Pool}
		srcSig := ext.Compute(src, srcIdx, srcKeypoints)
		dstSig := ext.Compute(dst, dstIdx, dstKeypoints)
		metric := func(a, b descriptors.FPFHSignature) float64 { return a.Distance(b) }
		if opts.Parallel {
			corrs, stats = correspondence.GenerateParallel(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		} else {
			corrs, stats = correspondence.Generate(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		}
	case "shot":
		ext := &descriptors.SHOTExtractor{Radius: p.Config.Descriptor.RadiusSearch, Parallel: opts.Parallel, Pool: p.Pool}
		srcSig := ext.Compute(src, srcIdx, srcKeypoints)
		dstSig := ext.Compute(dst, dstIdx, dstKeypoints)
		metric := func(a, b descriptors.SHOTSignature) float64 { return a.Distance(b) }
		if opts.Parallel {
			corrs, stats = correspondence.GenerateParallel(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		} else {
			corrs, stats = correspondence.Generate(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		}
	case "spin_image", "shapecontext", "3dsc":
		ext := &descriptors.ShapeContextExtractor{}
		srcSig := ext.Compute(src, srcIdx, srcKeypoints)
		dstSig := ext.Compute(dst, dstIdx, dstKeypoints)
		metric := func(a, b descriptors.ShapeContextSignature) float64 { return a.Distance(b) }
		if opts.Parallel {
			corrs, stats = correspondence.GenerateParallel(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		} else {
			corrs, stats = correspondence.Generate(srcSig, srcKeypoints, dstSig, dstKeypoints, metric, opts)
		}
	default:
		return MatchResult{}, fmt.Errorf("%w: descriptor %q", pcerr.ErrUnknownAlgorithm, p.Config.Descriptor.Descriptor)
	}

	p.Metrics.RecordDescriptorExtraction(p.Config.Descriptor.Descriptor, len(srcKeypoints)+len(dstKeypoints), time.Since(start))
	p.Metrics.RecordCorrespondenceGeneration(observability.CorrespondenceStats{
		TotalCandidates:    stats.TotalCandidates,
		RatioTestPassed:    stats.RatioTestPassed,
		MutualTestPassed:   stats.MutualTestPassed,
		DistanceTestPassed: stats.DistanceTestPassed,
	})
	p.Logger.Info("correspondences generated", map[string]interface{}{
		"descriptor": p.Config.Descriptor.Descriptor,
		"count":      len(corrs),
	})
	return MatchResult{Correspondences: corrs, Stats: stats}, nil
}

// SortResult is the output of SortCorrespondences: a quality-descending
// permutation and the score backing it, per spec.md §4.6.
type SortResult struct {
	Perm    []int
	Quality []float64
}

// SortCorrespondences scores corrs with s and returns the quality-descending
// permutation SortedIndices derives from those scores.
func SortCorrespondences(s sorter.Sorter, src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) SortResult {
	scores := s.Scores(src, dst, corrs)
	return SortResult{Perm: sorter.SortedIndices(scores), Quality: scores}
}

// Sorted returns corrs reordered by r.Perm, the form PROSAC and the other
// coarse registrators expect (descending-quality order, front-loaded for
// sampling).
func (r SortResult) Sorted(corrs []correspondence.Correspondence) []correspondence.Correspondence {
	out := make([]correspondence.Correspondence, len(corrs))
	for i, idx := range r.Perm {
		out[i] = corrs[idx]
	}
	return out
}

// CoarseRegister dispatches to one of C7's algorithms by name ("ransac",
// "prosac", "4pcs", "super4pcs") using cfg's corresponding sub-config.
// "prosac" requires corrs to already be in descending-quality order (see
// SortCorrespondences); "4pcs"/"super4pcs" ignore corrs and search directly
// over the point sets.
func (p *Pipeline) CoarseRegister(algorithm string, source, target *pointcloud.Cloud, corrs []correspondence.Correspondence) (iteration.RegistrationResult, error) {
	start := time.Now()
	var result iteration.RegistrationResult
	var err error

	switch algorithm {
	case "ransac":
		r := coarse.RANSAC{Config: toRANSACConfig(p.Config.RANSAC)}
		result, err = r.Register(source, target, corrs)
	case "prosac":
		r := coarse.PROSAC{Config: toPROSACConfig(p.Config.PROSAC)}
		result, err = r.Register(source, target, corrs)
	case "4pcs":
		cfg := toFourPCSConfig(p.Config.FourPCS)
		cfg.Accelerated = false
		r := coarse.FourPCS{Config: cfg}
		result, err = r.Register(source, target)
	case "super4pcs":
		cfg := toFourPCSConfig(p.Config.FourPCS)
		cfg.Accelerated = true
		r := coarse.FourPCS{Config: cfg}
		result, err = r.Register(source, target)
	default:
		return iteration.RegistrationResult{}, fmt.Errorf("%w: coarse algorithm %q", pcerr.ErrUnknownAlgorithm, algorithm)
	}
	if err != nil {
		p.Metrics.RecordCoarseRun(algorithm, result.IterationsPerformed, 0, time.Since(start), false)
		return result, err
	}

	inlierRatio := 0.0
	if len(corrs) > 0 {
		inlierRatio = float64(len(result.Inliers)) / float64(len(corrs))
	}
	p.Metrics.RecordCoarseRun(algorithm, result.IterationsPerformed, inlierRatio, time.Since(start), result.Converged)
	p.StageLogger.LogStage("coarse_registration", result.TerminationReason, time.Since(start), map[string]interface{}{
		"algorithm":  algorithm,
		"iterations": result.IterationsPerformed,
		"inliers":    len(result.Inliers),
	})
	return result, nil
}

// FineRegister dispatches to one of C8's algorithms by name ("point",
// "plane", "gicp", "anderson", "ndt") using cfg's ICP/NDT sub-config.
func (p *Pipeline) FineRegister(algorithm string, source, target *pointcloud.Cloud, initial pointcloud.Transform) (iteration.RegistrationResult, error) {
	start := time.Now()
	var result iteration.RegistrationResult
	var err error

	switch algorithm {
	case "point":
		r := fine.PointToPointICP{Config: toICPConfig(p.Config.ICP, p.Config.Iteration)}
		result, err = r.Register(source, target, initial)
	case "plane":
		cfg := fine.PointToPlaneICPConfig{Config: toIterationConfig(p.Config.Iteration), RegularizationLambda: p.Config.ICP.RegularizationLambda}
		r := fine.PointToPlaneICP{Config: cfg}
		result, err = r.Register(source, target, initial)
	case "gicp":
		cfg := fine.GeneralizedICPConfig{
			Config:              toIterationConfig(p.Config.Iteration),
			CovarianceNeighbors: p.Config.ICP.CovarianceNeighbors,
			CovarianceEpsilon:   p.Config.ICP.CovarianceEpsilon,
		}
		r := fine.GeneralizedICP{Config: cfg}
		result, err = r.Register(source, target, initial)
	case "anderson":
		cfg := fine.AndersonICPConfig{ICPConfig: toICPConfig(p.Config.ICP, p.Config.Iteration), WindowSize: p.Config.ICP.AndersonWindowSize}
		r := fine.AndersonICP{Config: cfg}
		result, err = r.Register(source, target, initial)
	case "ndt":
		cfg := fine.NDTConfig{
			Config:       toIterationConfig(p.Config.Iteration),
			Resolution:   p.Config.NDT.Resolution,
			OutlierRatio: p.Config.NDT.OutlierRatio,
			StepSize:     p.Config.NDT.StepSize,
		}
		r := fine.NDT{Config: cfg}
		result, err = r.Register(source, target, initial)
	default:
		return iteration.RegistrationResult{}, fmt.Errorf("%w: fine algorithm %q", pcerr.ErrUnknownAlgorithm, algorithm)
	}
	if err != nil {
		return result, err
	}

	p.Metrics.RecordFineRun(algorithm, result.IterationsPerformed, result.FinalError, time.Since(start), result.Converged)
	p.StageLogger.LogStage("fine_registration", result.TerminationReason, time.Since(start), map[string]interface{}{
		"algorithm":   algorithm,
		"iterations":  result.IterationsPerformed,
		"final_error": result.FinalError,
	})
	return result, nil
}

func toIterationConfig(c config.IterationConfig) iteration.Config {
	return iteration.Config{
		MaxIterations:             c.MaxIterations,
		TransformationEpsilon:     c.TransformationEpsilon,
		EuclideanFitnessEpsilon:   c.EuclideanFitnessEpsilon,
		MaxCorrespondenceDistance: c.MaxCorrespondenceDistance,
		RecordHistory:             c.RecordHistory,
	}
}

func toICPConfig(icp config.ICPConfig, it config.IterationConfig) fine.ICPConfig {
	return fine.ICPConfig{Config: toIterationConfig(it), OutlierRejectionRatio: icp.OutlierRejectionRatio}
}

func toRANSACConfig(c config.RANSACConfig) coarse.RANSACConfig {
	return coarse.RANSACConfig{MaxIterations: c.MaxIterations, InlierThreshold: c.InlierThreshold, Confidence: c.Confidence, Seed: c.Seed}
}

func toPROSACConfig(c config.PROSACConfig) coarse.PROSACConfig {
	return coarse.PROSACConfig{
		MaxIterations:      c.MaxIterations,
		InlierThreshold:    c.InlierThreshold,
		Confidence:         c.Confidence,
		Seed:               c.Seed,
		NonRandomnessAlpha: c.NonRandomnessAlpha,
		EarlyStopRatio:     c.EarlyStopRatio,
	}
}

func toFourPCSConfig(c config.FourPCSConfig) coarse.FourPCSConfig {
	return coarse.FourPCSConfig{
		SampleSize:        c.SampleSize,
		NumBases:          c.NumBases,
		Delta:             c.Delta,
		CoplanarTolerance: c.CoplanarTolerance,
		Accelerated:       c.Accelerated,
		GridResolution:    c.GridResolution,
		Seed:              c.Seed,
	}
}
