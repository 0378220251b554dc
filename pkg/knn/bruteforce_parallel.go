package knn

import "github.com/pclreg/pcreg/pkg/workerpool"

// BruteForceParallel splits the point array into approximately equal chunks
// across the thread pool; each chunk partial-sorts a local top-k, then the
// driver merges the per-chunk tops and partial-sorts the union. The merged
// result contains the global top-k because any global top-k element must be
// in some chunk's top-k. For k-NN the result matches BruteForce up to
// ordering of equal-distance neighbors — both break ties by ascending
// index, so the two are in fact bitwise identical.
type BruteForceParallel[T any] struct {
	points []T
	metric MetricFunc[T]
	pool   *workerpool.Default
}

// NewBruteForceParallel builds a BruteForceParallel index backed by pool.
func NewBruteForceParallel[T any](points []T, metric MetricFunc[T], pool *workerpool.Default) *BruteForceParallel[T] {
	b := &BruteForceParallel[T]{metric: metric, pool: pool}
	b.SetInput(points)
	return b
}

func (b *BruteForceParallel[T]) SetInput(points []T) int {
	b.points = points
	return len(points)
}

func (b *BruteForceParallel[T]) SetMetric(metric MetricFunc[T]) {
	b.metric = metric
}

func (b *BruteForceParallel[T]) KNeighbors(query T, k int) (NeighborList, bool) {
	n := len(b.points)
	if n == 0 {
		return NeighborList{}, false
	}
	if k > n {
		k = n
	}

	chunkTops := workerpool.ParallelChunks(b.pool, n, func(start, end int) []distIdx {
		local := make([]distIdx, end-start)
		for i := start; i < end; i++ {
			local[i-start] = distIdx{dist: b.metric(query, b.points[i]), idx: uint32(i)}
		}
		sortByDistanceThenIndex(local)
		if len(local) > k {
			local = local[:k]
		}
		return local
	})

	var merged []distIdx
	for _, top := range chunkTops {
		merged = append(merged, top...)
	}
	sortByDistanceThenIndex(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return toNeighborList(merged), true
}

func (b *BruteForceParallel[T]) RadiusNeighbors(query T, radius float64) (NeighborList, bool) {
	n := len(b.points)
	if radius <= 0 || n == 0 {
		return NeighborList{}, false
	}

	chunkHits := workerpool.ParallelChunks(b.pool, n, func(start, end int) []distIdx {
		var local []distIdx
		for i := start; i < end; i++ {
			d := b.metric(query, b.points[i])
			if d <= radius {
				local = append(local, distIdx{dist: d, idx: uint32(i)})
			}
		}
		return local
	})

	var merged []distIdx
	for _, hits := range chunkHits {
		merged = append(merged, hits...)
	}
	sortByDistanceThenIndex(merged)
	return toNeighborList(merged), true
}
