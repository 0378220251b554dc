package metrics

import (
	"math"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// PointMetric is the statically dispatched form specialized for
// pointcloud.Point, avoiding the slice allocation that Vector-based metrics
// would otherwise require in the KNN hot loop.
type PointMetric interface {
	Metric[pointcloud.Point]
}

// PointL2 is Euclidean distance over (x, y, z).
type PointL2 struct{}

func (PointL2) Distance(a, b pointcloud.Point) float64 { return a.Distance(b) }

// PointL1 is Manhattan distance over (x, y, z).
type PointL1 struct{}

func (PointL1) Distance(a, b pointcloud.Point) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y) + math.Abs(a.Z-b.Z)
}

// PointLInf is Chebyshev distance over (x, y, z).
type PointLInf struct{}

func (PointLInf) Distance(a, b pointcloud.Point) float64 {
	dx, dy, dz := math.Abs(a.X-b.X), math.Abs(a.Y-b.Y), math.Abs(a.Z-b.Z)
	m := dx
	if dy > m {
		m = dy
	}
	if dz > m {
		m = dz
	}
	return m
}

// PointMinkowski is order-P Minkowski distance over (x, y, z); P defaults to
// 3 when zero.
type PointMinkowski struct{ P float64 }

func (pm PointMinkowski) Distance(a, b pointcloud.Point) float64 {
	p := pm.P
	if p == 0 {
		p = 3
	}
	dx, dy, dz := math.Abs(a.X-b.X), math.Abs(a.Y-b.Y), math.Abs(a.Z-b.Z)
	return math.Pow(math.Pow(dx, p)+math.Pow(dy, p)+math.Pow(dz, p), 1/p)
}

// ByNamePoint constructs the PointMetric equivalent of ByName for 3-D
// points; cosine and angular are defined the same way as on generic
// vectors, treating (x, y, z) as a 3-vector.
func ByNamePoint(name string) (func(a, b pointcloud.Point) float64, error) {
	d, err := ByName(name)
	if err != nil {
		return nil, err
	}
	return func(a, b pointcloud.Point) float64 {
		return d.Distance(a.Vector(), b.Vector())
	}, nil
}
