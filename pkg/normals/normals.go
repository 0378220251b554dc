// Package normals implements per-point surface normal estimation (C3): for
// each point, take its k nearest neighbors, compute the 3x3 covariance of
// the centered neighborhood, eigendecompose, and take the eigenvector of
// the smallest eigenvalue as the (unsigned) normal.
package normals

import (
	"github.com/pclreg/pcreg/internal/linalg"
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
	"github.com/pclreg/pcreg/pkg/workerpool"
)

// DefaultNormal is emitted for a point whose neighborhood is too small
// (k < 3) to determine an orientation.
var DefaultNormal = pointcloud.Point{Z: 1}

// Index is the subset of knn.Index[pointcloud.Point] the estimator needs.
// It is expected to be built over the same points passed to Estimate.
type Index interface {
	KNeighbors(query pointcloud.Point, k int) (knn.NeighborList, bool)
}

// Estimate computes a normal for every point in cloud using its k nearest
// neighbors from idx (built over cloud.Points). Returns a new cloud with
// Points copied from the input and Normals populated in the same order. If
// parallel is true and pool is non-nil, point indices are partitioned
// across the pool; each worker writes only its own output slots, so no
// locking is required.
func Estimate(cloud *pointcloud.Cloud, idx Index, k int, parallel bool, pool *workerpool.Default) *pointcloud.Cloud {
	out := &pointcloud.Cloud{
		Points:  append([]pointcloud.Point(nil), cloud.Points...),
		Normals: make([]pointcloud.Point, len(cloud.Points)),
	}

	compute := func(start, end int) struct{} {
		for i := start; i < end; i++ {
			out.Normals[i] = estimateOne(cloud, i, idx, k)
		}
		return struct{}{}
	}

	if parallel && pool != nil {
		workerpool.ParallelChunks(pool, len(cloud.Points), compute)
	} else {
		compute(0, len(cloud.Points))
	}
	return out
}

func estimateOne(cloud *pointcloud.Cloud, pointIdx int, idx Index, k int) pointcloud.Point {
	if k < 3 {
		return DefaultNormal
	}
	nl, ok := idx.KNeighbors(cloud.Points[pointIdx], k)
	if !ok || nl.Len() < 3 {
		return DefaultNormal
	}
	return CovarianceNormal(cloud.Points, nl.Indices)
}

// CovarianceNormal computes the PCA normal of the neighborhood selected by
// indices into points: centroid, centered 3x3 covariance, eigendecompose,
// and return the (unit, unsigned) eigenvector of the smallest eigenvalue.
func CovarianceNormal(points []pointcloud.Point, indices []uint32) pointcloud.Point {
	var centroid pointcloud.Point
	for _, i := range indices {
		centroid = centroid.Add(points[i])
	}
	centroid = centroid.Scale(1 / float64(len(indices)))

	var cov [3][3]float64
	for _, i := range indices {
		d := points[i].Sub(centroid)
		v := [3]float64{d.X, d.Y, d.Z}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				cov[a][b] += v[a] * v[b]
			}
		}
	}
	n := float64(len(indices))
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			cov[a][b] /= n
		}
	}

	_, vectors := linalg.EighSym3(cov)
	// Eigenvalues returned ascending; column 0 is the smallest-eigenvalue
	// eigenvector.
	normal := pointcloud.Point{X: vectors[0][0], Y: vectors[1][0], Z: vectors[2][0]}
	return normal.Normalized()
}
