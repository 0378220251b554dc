package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every stage's tunable parameters.
type Config struct {
	KNN           KNNConfig
	Descriptor    DescriptorConfig
	Correspondence CorrespondenceConfig
	RANSAC        RANSACConfig
	PROSAC        PROSACConfig
	FourPCS       FourPCSConfig
	ICP           ICPConfig
	NDT           NDTConfig
	Iteration     IterationConfig
}

// KNNConfig configures the k-nearest-neighbor index (C2).
type KNNConfig struct {
	K              int    // Neighbors requested per query (default: 20)
	Metric         string // "l2", "l1", "linf", or "minkowski"
	MinkowskiOrder float64
	UseKDTree      bool // Fall back to brute force when the metric has no KD-tree specialization
}

// DescriptorConfig configures normal estimation and descriptor extraction
// (C3/C4).
type DescriptorConfig struct {
	NormalNeighbors int     // k for PCA normal estimation (default: 20)
	RadiusSearch    float64 // Zero means use NormalNeighbors' KNN instead
	Descriptor      string  // "fpfh", "shot", or "spin_image"
}

// CorrespondenceConfig configures correspondence generation (C5).
type CorrespondenceConfig struct {
	Ratio               float64 // Lowe's ratio test threshold (default: 0.8)
	MutualVerification  bool
	DistanceThreshold   float64
	Parallel            bool
}

// RANSACConfig mirrors pkg/coarse.RANSACConfig for the purposes of
// environment/file configuration; pkg/pipeline converts it into the
// concrete type when constructing a registrator.
type RANSACConfig struct {
	MaxIterations   int
	InlierThreshold float64
	Confidence      float64
	Seed            int64
}

// PROSACConfig mirrors pkg/coarse.PROSACConfig.
type PROSACConfig struct {
	MaxIterations      int
	InlierThreshold    float64
	Confidence         float64
	Seed               int64
	NonRandomnessAlpha float64
	EarlyStopRatio     float64
}

// FourPCSConfig mirrors pkg/coarse.FourPCSConfig.
type FourPCSConfig struct {
	SampleSize        int
	NumBases          int
	Delta             float64
	CoplanarTolerance float64
	Accelerated       bool
	GridResolution    float64
	Seed              int64
}

// ICPConfig mirrors pkg/fine.ICPConfig plus the GICP/Anderson-specific knobs,
// since all five fine-registration variants share one configuration surface
// at this layer.
type ICPConfig struct {
	Variant                string // "point", "plane", "gicp", "anderson", "ndt"
	OutlierRejectionRatio  float64
	RegularizationLambda   float64
	CovarianceNeighbors    int
	CovarianceEpsilon      float64
	AndersonWindowSize     int
}

// NDTConfig mirrors pkg/fine.NDTConfig.
type NDTConfig struct {
	Resolution   float64
	OutlierRatio float64
	StepSize     float64
}

// IterationConfig mirrors pkg/iteration.Config.
type IterationConfig struct {
	MaxIterations             int
	TransformationEpsilon     float64
	EuclideanFitnessEpsilon   float64
	MaxCorrespondenceDistance float64
	RecordHistory             bool
}

// Default returns the configuration spec.md's per-component defaults
// assemble into, mirroring each package's own DefaultXConfig.
func Default() *Config {
	return &Config{
		KNN: KNNConfig{
			K:         20,
			Metric:    "l2",
			UseKDTree: true,
		},
		Descriptor: DescriptorConfig{
			NormalNeighbors: 20,
			Descriptor:      "fpfh",
		},
		Correspondence: CorrespondenceConfig{
			Ratio:              0.8,
			MutualVerification: true,
		},
		RANSAC: RANSACConfig{
			MaxIterations:   10000,
			InlierThreshold: 0.05,
			Confidence:      0.99,
		},
		PROSAC: PROSACConfig{
			MaxIterations:      10000,
			InlierThreshold:    0.05,
			Confidence:         0.99,
			NonRandomnessAlpha: 0.05,
			EarlyStopRatio:     0.8,
		},
		FourPCS: FourPCSConfig{
			SampleSize:        200,
			NumBases:          100,
			Delta:             0.05,
			CoplanarTolerance: 0.02,
			GridResolution:    0.05,
		},
		ICP: ICPConfig{
			Variant:             "point",
			RegularizationLambda: 1e-6,
			CovarianceNeighbors:  20,
			CovarianceEpsilon:    0.001,
			AndersonWindowSize:   5,
		},
		NDT: NDTConfig{
			Resolution:   0.5,
			OutlierRatio: 0.55,
			StepSize:     1.0,
		},
		Iteration: IterationConfig{
			MaxIterations:             50,
			TransformationEpsilon:     1e-8,
			EuclideanFitnessEpsilon:   1e-6,
			MaxCorrespondenceDistance: 0.05,
		},
	}
}

// LoadFromEnv loads configuration overrides from PCREG_* environment
// variables, falling back to Default() for anything unset.
func LoadFromEnv() *Config {
	cfg := Default()

	if k := os.Getenv("PCREG_KNN_K"); k != "" {
		if v, err := strconv.Atoi(k); err == nil {
			cfg.KNN.K = v
		}
	}
	if metric := os.Getenv("PCREG_KNN_METRIC"); metric != "" {
		cfg.KNN.Metric = metric
	}
	if useKD := os.Getenv("PCREG_KNN_USE_KDTREE"); useKD == "false" {
		cfg.KNN.UseKDTree = false
	}

	if n := os.Getenv("PCREG_NORMAL_NEIGHBORS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Descriptor.NormalNeighbors = v
		}
	}
	if d := os.Getenv("PCREG_DESCRIPTOR"); d != "" {
		cfg.Descriptor.Descriptor = d
	}

	if ratio := os.Getenv("PCREG_CORRESPONDENCE_RATIO"); ratio != "" {
		if v, err := strconv.ParseFloat(ratio, 64); err == nil {
			cfg.Correspondence.Ratio = v
		}
	}

	if maxIter := os.Getenv("PCREG_RANSAC_MAX_ITERATIONS"); maxIter != "" {
		if v, err := strconv.Atoi(maxIter); err == nil {
			cfg.RANSAC.MaxIterations = v
		}
	}
	if thresh := os.Getenv("PCREG_RANSAC_INLIER_THRESHOLD"); thresh != "" {
		if v, err := strconv.ParseFloat(thresh, 64); err == nil {
			cfg.RANSAC.InlierThreshold = v
		}
	}

	if variant := os.Getenv("PCREG_ICP_VARIANT"); variant != "" {
		cfg.ICP.Variant = variant
	}

	if res := os.Getenv("PCREG_NDT_RESOLUTION"); res != "" {
		if v, err := strconv.ParseFloat(res, 64); err == nil {
			cfg.NDT.Resolution = v
		}
	}

	if maxIter := os.Getenv("PCREG_MAX_ITERATIONS"); maxIter != "" {
		if v, err := strconv.Atoi(maxIter); err == nil {
			cfg.Iteration.MaxIterations = v
		}
	}

	return cfg
}

// Validate checks the invariants each component's own normalized() helper
// also enforces defensively, surfacing configuration mistakes before a
// pipeline run starts rather than silently falling back to a default.
func (c *Config) Validate() error {
	if c.KNN.K < 1 {
		return fmt.Errorf("invalid knn k: %d (must be > 0)", c.KNN.K)
	}
	switch c.KNN.Metric {
	case "l2", "l1", "linf", "minkowski":
	default:
		return fmt.Errorf("invalid knn metric: %q", c.KNN.Metric)
	}
	if c.Descriptor.NormalNeighbors < 3 {
		return fmt.Errorf("invalid normal_neighbors: %d (must be >= 3)", c.Descriptor.NormalNeighbors)
	}
	if c.Correspondence.Ratio <= 0 || c.Correspondence.Ratio > 1 {
		return fmt.Errorf("invalid correspondence ratio: %v (must be in (0, 1])", c.Correspondence.Ratio)
	}
	if c.RANSAC.Confidence <= 0 || c.RANSAC.Confidence >= 1 {
		return fmt.Errorf("invalid ransac confidence: %v (must be in (0, 1))", c.RANSAC.Confidence)
	}
	switch c.ICP.Variant {
	case "point", "plane", "gicp", "anderson", "ndt":
	default:
		return fmt.Errorf("invalid icp variant: %q", c.ICP.Variant)
	}
	if c.NDT.Resolution <= 0 {
		return fmt.Errorf("invalid ndt resolution: %v (must be > 0)", c.NDT.Resolution)
	}
	if c.Iteration.MaxIterations < 1 {
		return fmt.Errorf("invalid max_iterations: %d (must be > 0)", c.Iteration.MaxIterations)
	}
	return nil
}
