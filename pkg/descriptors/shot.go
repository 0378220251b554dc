package descriptors

import (
	"math"

	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

const (
	shotRadialBins   = 2
	shotAzimuthBins  = 4
	shotElevBins     = 4
	shotSpatialBins  = shotRadialBins * shotAzimuthBins * shotElevBins // 32
	shotAngularBins  = 11
	shotTotalBins    = shotSpatialBins * shotAngularBins // 352
	shotLRFWeightEps = 1e-6
)

// SHOTSignature is a 352-bin oriented spatial-angular histogram: a local
// reference frame partitions the support into 32 spatial cells (2 radial x
// 4 azimuth x 4 elevation), and each cell carries an 11-bin histogram of
// the cosine between the neighbor normal and the frame's z-axis.
type SHOTSignature [shotTotalBins]float64

func (s SHOTSignature) Values() []float64 { return s[:] }

func (s SHOTSignature) Distance(other SHOTSignature) float64 {
	return euclidean(s[:], other[:])
}

// SHOTExtractor computes SHOTSignature descriptors over keypoints of a cloud
// whose normals have already been estimated.
type SHOTExtractor struct {
	Radius   float64
	Parallel bool
	Pool     *workerpool.Default
}

// Compute extracts a SHOTSignature for each keypoint index. A keypoint with
// fewer than 3 neighbors in Radius, or a cloud with no normals, receives an
// all-zero signature; no error is returned.
func (e *SHOTExtractor) Compute(cloud *pointcloud.Cloud, idx Index, keypoints []uint32) []SHOTSignature {
	out := make([]SHOTSignature, len(keypoints))
	if !cloud.HasNormals() || e.Radius <= 0 {
		return out
	}

	compute := func(i int) {
		kp := keypoints[i]
		nl, ok := idx.RadiusNeighbors(cloud.Points[kp], e.Radius)
		if !ok || nl.Len() < 3 {
			return
		}
		out[i] = e.computeOne(cloud, kp, nl)
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

func (e *SHOTExtractor) computeOne(cloud *pointcloud.Cloud, kp uint32, nl knn.NeighborList) SHOTSignature {
	center := cloud.Points[kp]
	x, y, z := computeLRF(cloud, center, cloud.Normals[kp], nl.Indices, nl.Distances)

	var hist SHOTSignature
	for i, n := range nl.Indices {
		if n == kp {
			continue
		}
		d := nl.Distances[i]
		if d > e.Radius {
			continue
		}
		local := toLocalFrame(cloud.Points[n].Sub(center), x, y, z)
		spatial := shotSpatialBin(local, e.Radius)
		angular := shotAngularBin(cloud.Normals[n], z)
		hist[spatial*shotAngularBins+angular] += 1 - d/e.Radius
	}
	normalizeL2(hist[:])
	return hist
}

// computeLRF builds a disambiguated local reference frame: z is the given
// surface normal; x is the eigenvector of the largest eigenvalue of the
// distance-weighted neighbor covariance, Gram-Schmidt orthogonalized
// against z and sign-disambiguated by a majority vote of neighbor
// projections; y completes the right-handed frame.
func computeLRF(cloud *pointcloud.Cloud, center, normal pointcloud.Point, neighbors []uint32, dists []float64) (x, y, z pointcloud.Point) {
	z = normal.Normalized()

	weights := make([]float64, len(neighbors))
	var wsum float64
	for i, d := range dists {
		w := 1 / (d + shotLRFWeightEps)
		weights[i] = w
		wsum += w
	}
	if wsum < 1e-12 {
		wsum = 1
	}

	var mean pointcloud.Point
	for i, n := range neighbors {
		mean = mean.Add(cloud.Points[n].Scale(weights[i] / wsum))
	}

	var cov [3][3]float64
	for i, n := range neighbors {
		d := cloud.Points[n].Sub(mean)
		v := [3]float64{d.X, d.Y, d.Z}
		w := weights[i] / wsum
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				cov[a][b] += w * v[a] * v[b]
			}
		}
	}

	_, vecs := linalg.EighSym3(cov)
	xRaw := pointcloud.Point{X: vecs[0][2], Y: vecs[1][2], Z: vecs[2][2]}
	xRaw = xRaw.Sub(z.Scale(xRaw.Dot(z))).Normalized()

	pos, neg := 0, 0
	for _, n := range neighbors {
		d := cloud.Points[n].Sub(center)
		if d.Dot(xRaw) >= 0 {
			pos++
		} else {
			neg++
		}
	}
	if neg > pos {
		xRaw = xRaw.Scale(-1)
	}
	x = xRaw
	y = z.Cross(x)
	return
}

func toLocalFrame(d, x, y, z pointcloud.Point) pointcloud.Point {
	return pointcloud.Point{X: d.Dot(x), Y: d.Dot(y), Z: d.Dot(z)}
}

func shotSpatialBin(local pointcloud.Point, radius float64) int {
	r := local.Norm()
	rBin := 0
	if r >= radius/2 {
		rBin = 1
	}
	theta := math.Atan2(local.Y, local.X)
	thetaBin := clampBin(int((theta+math.Pi)/(2*math.Pi)*shotAzimuthBins), shotAzimuthBins)

	phiBin := 0
	if r >= 1e-12 {
		phi := math.Acos(clamp(local.Z/r, -1, 1))
		phiBin = clampBin(int(phi/math.Pi*shotElevBins), shotElevBins)
	}
	return rBin*(shotAzimuthBins*shotElevBins) + thetaBin*shotElevBins + phiBin
}

func shotAngularBin(neighborNormal, z pointcloud.Point) int {
	cos := clamp(neighborNormal.Dot(z), -1, 1)
	return clampBin(int((cos+1)/2*shotAngularBins), shotAngularBins)
}
