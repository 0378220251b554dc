package knn

import (
	"container/heap"
	"sort"

	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// kdNode is one node of an array-backed, axis-aligned median-split tree.
type kdNode struct {
	pointIdx    int
	axis        int
	left, right int // -1 when absent
}

// KDTree is an axis-aligned median-split k-d tree over pointcloud.Point,
// built once on SetInput. It implements native branch-and-bound pruning for
// the Euclidean (L2) metric; any other metric falls back to brute force
// over the same points, since the per-axis lower bound the tree's pruning
// relies on is only valid for an L2-equivalent metric. The fallback is
// observable only in performance, never in results.
type KDTree struct {
	points []pointcloud.Point
	nodes  []kdNode
	root   int

	metric MetricFunc[pointcloud.Point]
	native bool // true: metric is Euclidean, tree pruning applies directly

	fallback *BruteForce[pointcloud.Point]
}

func l2Point(a, b pointcloud.Point) float64 { return a.Distance(b) }

// NewKDTree builds a k-d tree over points using the Euclidean metric
// natively.
func NewKDTree(points []pointcloud.Point) *KDTree {
	t := &KDTree{}
	t.metric = l2Point
	t.native = true
	t.SetInput(points)
	return t
}

// NewKDTreeWithMetric builds a k-d tree whose branch-and-bound traversal
// still splits on raw coordinates, but whose distance evaluation and
// pruning use metric. Pass native=true only when metric is known to be an
// Lp-family metric for which per-axis distance lower-bounds the full
// distance (L1, L2, L-infinity, Minkowski); any other metric (cosine,
// angular) must pass native=false, which routes every query through the
// brute-force fallback instead of invalid pruning.
func NewKDTreeWithMetric(points []pointcloud.Point, metric MetricFunc[pointcloud.Point], native bool) *KDTree {
	t := &KDTree{metric: metric, native: native}
	t.SetInput(points)
	return t
}

func (t *KDTree) SetInput(points []pointcloud.Point) int {
	t.points = points
	t.buildTree()
	t.fallback = NewBruteForce(points, t.metric)
	return len(points)
}

// SetMetric changes the metric. Because general metrics can't be pruned by
// the tree's per-axis bound, SetMetric conservatively marks the tree as
// non-native (brute-force fallback) unless the caller subsequently calls
// MarkNativeL2. Use NewKDTreeWithMetric to set both atomically.
func (t *KDTree) SetMetric(metric MetricFunc[pointcloud.Point]) {
	t.metric = metric
	t.native = false
	t.fallback = NewBruteForce(t.points, metric)
}

// MarkNativeL2 tells the tree its current metric is Euclidean-equivalent,
// re-enabling native pruning after SetMetric.
func (t *KDTree) MarkNativeL2() {
	t.native = true
}

func (t *KDTree) buildTree() {
	n := len(t.points)
	if n == 0 {
		t.nodes = nil
		t.root = -1
		return
	}
	t.nodes = make([]kdNode, 0, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	t.root = t.build(idx, 0)
}

func axisValue(p pointcloud.Point, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

func (t *KDTree) build(idx []int, depth int) int {
	if len(idx) == 0 {
		return -1
	}
	axis := depth % 3
	sort.Slice(idx, func(i, j int) bool {
		return axisValue(t.points[idx[i]], axis) < axisValue(t.points[idx[j]], axis)
	})
	mid := len(idx) / 2
	node := kdNode{pointIdx: idx[mid], axis: axis}
	nodeIdx := len(t.nodes)
	t.nodes = append(t.nodes, node)
	left := t.build(idx[:mid], depth+1)
	right := t.build(idx[mid+1:], depth+1)
	t.nodes[nodeIdx].left = left
	t.nodes[nodeIdx].right = right
	return nodeIdx
}

// candHeap is a bounded max-heap on distance, used to keep the current k
// best candidates during best-first traversal.
type candHeap []distIdx

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist } // max-heap
func (h candHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x interface{}) { *h = append(*h, x.(distIdx)) }
func (h *candHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (t *KDTree) KNeighbors(query pointcloud.Point, k int) (NeighborList, bool) {
	if len(t.points) == 0 {
		return NeighborList{}, false
	}
	if !t.native {
		return t.fallback.KNeighbors(query, k)
	}
	if k > len(t.points) {
		k = len(t.points)
	}
	h := &candHeap{}
	heap.Init(h)
	t.knnVisit(t.root, query, k, h)

	pairs := make([]distIdx, h.Len())
	copy(pairs, *h)
	sortByDistanceThenIndex(pairs)
	return toNeighborList(pairs), true
}

func (t *KDTree) knnVisit(nodeIdx int, query pointcloud.Point, k int, h *candHeap) {
	if nodeIdx == -1 {
		return
	}
	node := t.nodes[nodeIdx]
	p := t.points[node.pointIdx]
	d := t.metric(query, p)

	if h.Len() < k {
		heap.Push(h, distIdx{dist: d, idx: uint32(node.pointIdx)})
	} else if d < (*h)[0].dist {
		heap.Pop(h)
		heap.Push(h, distIdx{dist: d, idx: uint32(node.pointIdx)})
	}

	diff := axisValue(query, node.axis) - axisValue(p, node.axis)
	near, far := node.left, node.right
	if diff > 0 {
		near, far = node.right, node.left
	}
	t.knnVisit(near, query, k, h)

	worst := worstDist(h, k)
	if h.Len() < k || diff*diff < worst*worst {
		t.knnVisit(far, query, k, h)
	}
}

func worstDist(h *candHeap, k int) float64 {
	if h.Len() < k {
		return 1e300
	}
	return (*h)[0].dist
}

func (t *KDTree) RadiusNeighbors(query pointcloud.Point, radius float64) (NeighborList, bool) {
	if radius <= 0 || len(t.points) == 0 {
		return NeighborList{}, false
	}
	if !t.native {
		return t.fallback.RadiusNeighbors(query, radius)
	}
	var pairs []distIdx
	t.radiusVisit(t.root, query, radius, &pairs)
	sortByDistanceThenIndex(pairs)
	return toNeighborList(pairs), true
}

func (t *KDTree) radiusVisit(nodeIdx int, query pointcloud.Point, radius float64, out *[]distIdx) {
	if nodeIdx == -1 {
		return
	}
	node := t.nodes[nodeIdx]
	p := t.points[node.pointIdx]
	d := t.metric(query, p)
	if d <= radius {
		*out = append(*out, distIdx{dist: d, idx: uint32(node.pointIdx)})
	}
	diff := axisValue(query, node.axis) - axisValue(p, node.axis)
	near, far := node.left, node.right
	if diff > 0 {
		near, far = node.right, node.left
	}
	t.radiusVisit(near, query, radius, out)
	if diff*diff <= radius*radius {
		t.radiusVisit(far, query, radius, out)
	}
}
