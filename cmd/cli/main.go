package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/pclreg/pcreg/internal/rng"
	"github.com/pclreg/pcreg/pkg/config"
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/iteration"
	"github.com/pclreg/pcreg/pkg/pipeline"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/sorter"
)

const version = "1.0.0"

var (
	seed       int64
	numPoints  int
	noiseSigma float64
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	flag.Int64Var(&seed, "seed", 1, "RNG seed for synthetic cloud generation")
	flag.IntVar(&numPoints, "points", 2000, "number of points in the synthetic source cloud")
	flag.Float64Var(&noiseSigma, "noise", 0.01, "standard deviation of Gaussian noise applied to the target cloud")

	command := os.Args[1]

	switch command {
	case "register":
		handleRegister(os.Args[2:])
	case "coarse":
		handleCoarse(os.Args[2:])
	case "fine":
		handleFine(os.Args[2:])
	case "version":
		fmt.Printf("pcreg-cli version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

// handleRegister drives the full pipeline spec.md §6 describes as the core's
// exposed surface: build indices, estimate normals, extract descriptors,
// generate and sort correspondences, then run coarse followed by fine
// registration, printing the transform and diagnostics at each stage.
func handleRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	coarseAlgo := fs.String("coarse", "ransac", "coarse registration algorithm: ransac|prosac|4pcs|super4pcs")
	fineAlgo := fs.String("fine", "point", "fine registration algorithm: point|plane|gicp|anderson|ndt")
	fs.Int64Var(&seed, "seed", seed, "RNG seed")
	fs.IntVar(&numPoints, "points", numPoints, "number of points")
	fs.Float64Var(&noiseSigma, "noise", noiseSigma, "target cloud noise sigma")
	fs.Parse(args)

	cfg := config.Default()
	p := pipeline.New(cfg)

	src, dst, gt := synthesizeClouds(numPoints, seed, noiseSigma)

	srcIdx, err := p.BuildIndex(src.Points)
	must(err)
	dstIdx, err := p.BuildIndex(dst.Points)
	must(err)

	srcWithNormals := p.EstimateNormals(src, srcIdx)
	dstWithNormals := p.EstimateNormals(dst, dstIdx)

	srcKps := allIndices(srcWithNormals.Len())
	dstKps := allIndices(dstWithNormals.Len())

	match, err := p.ExtractAndMatch(srcWithNormals, dstWithNormals, srcIdx, dstIdx, srcKps, dstKps)
	must(err)
	fmt.Printf("correspondences: %d (candidates=%d ratio-pass=%d mutual-pass=%d distance-pass=%d)\n",
		len(match.Correspondences), match.Stats.TotalCandidates, match.Stats.RatioTestPassed,
		match.Stats.MutualTestPassed, match.Stats.DistanceTestPassed)

	sortResult := pipeline.SortCorrespondences(sorter.DescriptorDistance{InvertScore: true}, srcWithNormals, dstWithNormals, match.Correspondences)
	ordered := sortResult.Sorted(match.Correspondences)

	coarseResult, err := p.CoarseRegister(*coarseAlgo, srcWithNormals, dstWithNormals, ordered)
	must(err)
	printResult("coarse ("+*coarseAlgo+")", coarseResult)

	fineResult, err := p.FineRegister(*fineAlgo, srcWithNormals, dstWithNormals, coarseResult.Transformation)
	must(err)
	printResult("fine ("+*fineAlgo+")", fineResult)

	fmt.Printf("ground truth vs recovered Frobenius error: %.6f\n", frobeniusError(gt, fineResult.Transformation))
}

// handleCoarse exercises C7 directly: the synthetic clouds are built with
// matching point order, so an identity correspondence set stands in for
// descriptor matching and the command isolates coarse-registration behavior.
func handleCoarse(args []string) {
	fs := flag.NewFlagSet("coarse", flag.ExitOnError)
	algo := fs.String("algorithm", "ransac", "ransac|prosac|4pcs|super4pcs")
	fs.Int64Var(&seed, "seed", seed, "RNG seed")
	fs.IntVar(&numPoints, "points", numPoints, "number of points")
	fs.Float64Var(&noiseSigma, "noise", noiseSigma, "target cloud noise sigma")
	fs.Parse(args)

	cfg := config.Default()
	p := pipeline.New(cfg)
	src, dst, _ := synthesizeClouds(numPoints, seed, noiseSigma)

	corrs := identityCorrespondences(src.Len())
	result, err := p.CoarseRegister(*algo, src, dst, corrs)
	must(err)
	printResult(*algo, result)
}

// handleFine exercises C8 directly, starting from the identity guess since
// the synthetic clouds are already near-aligned apart from the planted
// transform (spec.md §4.8, "identity is acceptable for near-aligned
// inputs").
func handleFine(args []string) {
	fs := flag.NewFlagSet("fine", flag.ExitOnError)
	algo := fs.String("algorithm", "point", "point|plane|gicp|anderson|ndt")
	fs.Int64Var(&seed, "seed", seed, "RNG seed")
	fs.IntVar(&numPoints, "points", numPoints, "number of points")
	fs.Float64Var(&noiseSigma, "noise", noiseSigma, "target cloud noise sigma")
	fs.Parse(args)

	cfg := config.Default()
	p := pipeline.New(cfg)
	src, dst, _ := synthesizeClouds(numPoints, seed, noiseSigma)

	if *algo == "plane" || *algo == "gicp" {
		idx, err := p.BuildIndex(dst.Points)
		must(err)
		dst = p.EstimateNormals(dst, idx)
	}

	result, err := p.FineRegister(*algo, src, dst, pointcloud.Identity())
	must(err)
	printResult(*algo, result)
}

// synthesizeClouds builds a source cloud of random points in [-5, 5]^3,
// applies a known rotation (30 degrees about z) and translation to build
// the target, then perturbs the target with Gaussian noise. This is the
// scenario 4/6 construction from spec.md §8 ("RANSAC with planted
// transform", "Point-to-point ICP on noisy planar-like cloud"); the core
// has no file-I/O or dataset loader of its own (spec.md §1, out of scope),
// so the CLI synthesizes its own input instead of reading one.
func synthesizeClouds(n int, seed int64, noise float64) (src, dst *pointcloud.Cloud, gt pointcloud.Transform) {
	r := rng.New(seed)
	points := make([]pointcloud.Point, n)
	for i := range points {
		points[i] = pointcloud.Point{
			X: r.Float64(-5, 5),
			Y: r.Float64(-5, 5),
			Z: r.Float64(-5, 5),
		}
	}
	src = pointcloud.New(points)

	theta := math.Pi / 6
	rot := [3][3]float64{
		{math.Cos(theta), -math.Sin(theta), 0},
		{math.Sin(theta), math.Cos(theta), 0},
		{0, 0, 1},
	}
	gt = pointcloud.NewRigid(rot, [3]float64{1.5, 2.0, 0.5})

	dstPoints := make([]pointcloud.Point, n)
	for i, p := range points {
		tp := gt.Apply(p)
		if noise > 0 {
			tp.X += gaussian(r, noise)
			tp.Y += gaussian(r, noise)
			tp.Z += gaussian(r, noise)
		}
		dstPoints[i] = tp
	}
	dst = pointcloud.New(dstPoints)
	return src, dst, gt
}

// gaussian approximates a zero-mean Gaussian of the given sigma via the
// Box-Muller transform over r.
func gaussian(r *rng.Source, sigma float64) float64 {
	u1 := math.Max(r.Float64(0, 1), 1e-12)
	u2 := r.Float64(0, 1)
	return sigma * math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func allIndices(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// identityCorrespondences pairs source index i with target index i, for
// subcommands that bypass descriptor matching and exercise coarse
// registration directly against a known point ordering.
func identityCorrespondences(n int) []correspondence.Correspondence {
	out := make([]correspondence.Correspondence, n)
	for i := range out {
		out[i] = correspondence.Correspondence{SrcIdx: uint32(i), DstIdx: uint32(i)}
	}
	return out
}

func frobeniusError(a, b pointcloud.Transform) float64 {
	sum := 0.0
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := a[i][j] - b[i][j]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

func printResult(label string, r iteration.RegistrationResult) {
	fmt.Printf("%s: converged=%v iterations=%d final_error=%.6f reason=%q inliers=%d\n",
		label, r.Converged, r.IterationsPerformed, r.FinalError, r.TerminationReason, len(r.Inliers))
	t := r.Transformation
	fmt.Printf("  transform:\n")
	for i := 0; i < 4; i++ {
		fmt.Printf("    [%8.4f %8.4f %8.4f %8.4f]\n", t[i][0], t[i][1], t[i][2], t[i][3])
	}
}

func must(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Print(`pcreg-cli - drives the point-cloud registration pipeline end to end

Usage:
  pcreg-cli <command> [flags]

Commands:
  register   run the full pipeline (KNN, normals, descriptors, correspondences, coarse+fine) on a synthetic pair
  coarse     run only coarse registration (ransac|prosac|4pcs|super4pcs) on a synthetic pair
  fine       run only fine registration (point|plane|gicp|anderson|ndt) on a synthetic pair
  version    print the CLI version
  help       show this message

Flags (per-command, see '<command> -h'):
  -seed, -points, -noise configure the synthetic source/target clouds generated
  in place of a loader, since point-cloud file I/O is outside this core's scope.
`)
}
