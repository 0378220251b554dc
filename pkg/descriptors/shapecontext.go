package descriptors

import (
	"math"

	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

const (
	dscRadialBins   = 11
	dscAzimuthBins  = 12
	dscElevBins     = 15
	dscTotalBins    = dscRadialBins * dscAzimuthBins * dscElevBins // 1980
)

// ShapeContextSignature is a 1980-bin 3D shape-context histogram: neighbors
// of a keypoint are binned into log-spaced radial shells (11), linear
// azimuth sectors (12), and linear elevation sectors (15) of a local
// reference frame, then L1-normalized and scaled by a density weight.
type ShapeContextSignature [dscTotalBins]float64

func (s ShapeContextSignature) Values() []float64 { return s[:] }

func (s ShapeContextSignature) Distance(other ShapeContextSignature) float64 {
	return euclidean(s[:], other[:])
}

// ShapeContextExtractor computes ShapeContextSignature descriptors. Radius
// is the outer (search) radius of the support region; MinimalRadius is the
// inner radius below which neighbors are excluded (the log-spaced radial
// binning is undefined at r=0); DensityRadius sizes the neighborhood used
// to estimate local point density for the final per-descriptor weight.
type ShapeContextExtractor struct {
	Radius        float64
	MinimalRadius float64
	DensityRadius float64
	Parallel      bool
	Pool          *workerpool.Default
}

func (e *ShapeContextExtractor) defaults() (radius, minimal, density float64) {
	radius = e.Radius
	if radius <= 0 {
		radius = 0.5
	}
	minimal = e.MinimalRadius
	if minimal <= 0 {
		minimal = 0.01
	}
	density = e.DensityRadius
	if density <= 0 {
		density = 0.05
	}
	return
}

// Compute extracts a ShapeContextSignature for each keypoint index. A
// keypoint with fewer than 3 neighbors in Radius receives an all-zero
// signature; no error is returned.
func (e *ShapeContextExtractor) Compute(cloud *pointcloud.Cloud, idx Index, keypoints []uint32) []ShapeContextSignature {
	out := make([]ShapeContextSignature, len(keypoints))
	if !cloud.HasNormals() {
		return out
	}
	radius, minimal, density := e.defaults()

	compute := func(i int) {
		kp := keypoints[i]
		nl, ok := idx.RadiusNeighbors(cloud.Points[kp], radius)
		if !ok || nl.Len() < 3 {
			return
		}
		out[i] = e.computeOne(cloud, idx, kp, nl, radius, minimal, density)
	}

	if e.Parallel && e.Pool != nil {
		workerpool.ParallelChunks(e.Pool, len(keypoints), func(start, end int) struct{} {
			for i := start; i < end; i++ {
				compute(i)
			}
			return struct{}{}
		})
	} else {
		for i := range keypoints {
			compute(i)
		}
	}
	return out
}

func (e *ShapeContextExtractor) computeOne(cloud *pointcloud.Cloud, idx Index, kp uint32, nl knn.NeighborList, radius, minimal, density float64) ShapeContextSignature {
	center := cloud.Points[kp]
	normal := cloud.Normals[kp]
	x, y, z := dscLocalFrame(cloud, center, normal, kp, nl.Indices)

	var hist ShapeContextSignature
	logFactor := (math.Log(radius) - math.Log(minimal)) / dscRadialBins

	for _, n := range nl.Indices {
		if n == kp {
			continue
		}
		local := toLocalFrame(cloud.Points[n].Sub(center), x, y, z)
		r := local.Norm()
		if r < minimal {
			continue
		}
		theta := math.Atan2(local.Y, local.X) + math.Pi // [0, 2pi]
		phi := math.Acos(clamp(local.Z/r, -1, 1))        // [0, pi]

		rBin := clampBin(int((math.Log(r)-math.Log(minimal))/logFactor), dscRadialBins)
		thetaBin := clampBin(int(theta/(2*math.Pi)*dscAzimuthBins), dscAzimuthBins)
		phiBin := clampBin(int(phi/math.Pi*dscElevBins), dscElevBins)

		bin := rBin*dscAzimuthBins*dscElevBins + thetaBin*dscElevBins + phiBin
		hist[bin]++
	}

	weight := pointDensityWeight(idx, center, density)
	normalizeL1(hist[:])
	for i := range hist {
		hist[i] *= weight
	}
	return hist
}

// dscLocalFrame builds the 3DSC reference frame: z is the surface normal;
// x is the direction, among the neighborhood, making the largest angle with
// z (the point "most tangential" to the surface), orthogonalized against z;
// y completes the right-handed frame.
func dscLocalFrame(cloud *pointcloud.Cloud, center, normal pointcloud.Point, kp uint32, neighbors []uint32) (x, y, z pointcloud.Point) {
	z = normal.Normalized()

	maxAngle := 0.0
	var maxDir pointcloud.Point
	for _, n := range neighbors {
		if n == kp {
			continue
		}
		d := cloud.Points[n].Sub(center).Normalized()
		angle := math.Acos(clamp(math.Abs(d.Dot(z)), -1, 1))
		if angle > maxAngle {
			maxAngle = angle
			maxDir = d
		}
	}

	xRaw := maxDir.Sub(z.Scale(maxDir.Dot(z))).Normalized()
	x = xRaw
	y = z.Cross(x)
	return
}

func pointDensityWeight(idx Index, p pointcloud.Point, densityRadius float64) float64 {
	nl, ok := idx.RadiusNeighbors(p, densityRadius)
	if !ok {
		return 0
	}
	volume := (4.0 / 3.0) * math.Pi * densityRadius * densityRadius * densityRadius
	if volume < 1e-12 {
		return 0
	}
	return float64(nl.Len()) / volume
}
