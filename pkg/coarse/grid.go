package coarse

import (
	"math"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// voxelGrid is the spatial acceleration structure Super-4PCS uses to answer
// "which target points lie within radius r of p" in roughly O(1) per cell
// instead of the classic algorithm's O(n) linear scan (spec.md §4.7.d).
type voxelGrid struct {
	cellSize float64
	points   []pointcloud.Point
	cells    map[[3]int][]int
}

func newVoxelGrid(points []pointcloud.Point, cellSize float64) *voxelGrid {
	if cellSize <= 0 {
		cellSize = 0.05
	}
	g := &voxelGrid{cellSize: cellSize, points: points, cells: make(map[[3]int][]int)}
	for i, p := range points {
		key := g.cellKey(p)
		g.cells[key] = append(g.cells[key], i)
	}
	return g
}

func (g *voxelGrid) cellKey(p pointcloud.Point) [3]int {
	return [3]int{
		int(math.Floor(p.X / g.cellSize)),
		int(math.Floor(p.Y / g.cellSize)),
		int(math.Floor(p.Z / g.cellSize)),
	}
}

// rangeQuery returns the indices of every point within maxDist of query,
// scanning only the cells that could contain such a point.
func (g *voxelGrid) rangeQuery(query pointcloud.Point, maxDist float64) []int {
	reach := int(math.Ceil(maxDist/g.cellSize)) + 1
	center := g.cellKey(query)
	var out []int
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				key := [3]int{center[0] + dx, center[1] + dy, center[2] + dz}
				for _, idx := range g.cells[key] {
					if g.points[idx].Distance(query) <= maxDist {
						out = append(out, idx)
					}
				}
			}
		}
	}
	return out
}
