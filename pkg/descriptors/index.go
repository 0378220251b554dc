package descriptors

import (
	"github.com/pclreg/pcreg/pkg/knn"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// Index is the neighbor search surface descriptor extractors need. FPFH
// queries by a fixed k or a radius depending on configuration, SHOT and 3DSC
// both query by radius only.
type Index interface {
	KNeighbors(query pointcloud.Point, k int) (knn.NeighborList, bool)
	RadiusNeighbors(query pointcloud.Point, radius float64) (knn.NeighborList, bool)
}
