// Package sorter implements correspondence quality scoring and ranking (C6):
// given a set of correspondences, each Sorter produces one score per
// correspondence (higher is better); SortedIndices turns scores into a
// quality-descending permutation for coarse registration to sample from.
package sorter

import (
	"sort"

	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// Sorter scores a set of correspondences between src and dst. The returned
// slice has the same length and order as corrs.
type Sorter interface {
	Scores(src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) []float64
	Name() string
}

// SortedIndices returns the permutation of 0..len(scores)-1 ordered by
// descending score, breaking ties by ascending index for determinism.
func SortedIndices(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		return a < b
	})
	return idx
}

func normalizeMinMax(scores []float64) {
	if len(scores) == 0 {
		return
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	span := max - min
	if span < 1e-12 {
		for i := range scores {
			scores[i] = 0
		}
		return
	}
	for i := range scores {
		scores[i] = (scores[i] - min) / span
	}
}

// parallelThreshold is the correspondence count above which sorters that
// support it switch to the worker pool.
const parallelThreshold = 100
