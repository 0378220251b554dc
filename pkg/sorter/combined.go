package sorter

import (
	"fmt"
	"strings"

	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// Combined blends several sorters by a weighted sum of their scores. Each
// sub-sorter's scores are min-max normalized to [0,1] before weighting, so
// sorters on unrelated scales (descriptor distance, geometric consistency)
// combine meaningfully.
type Combined struct {
	sorters []Sorter
	weights []float64
}

func (c *Combined) Name() string {
	names := make([]string, len(c.sorters))
	for i, s := range c.sorters {
		names[i] = s.Name()
	}
	return fmt.Sprintf("Combined(%s)", strings.Join(names, ", "))
}

// AddSorter registers a sub-sorter with the given weight.
func (c *Combined) AddSorter(s Sorter, weight float64) {
	c.sorters = append(c.sorters, s)
	c.weights = append(c.weights, weight)
}

// NumSorters returns the number of registered sub-sorters.
func (c *Combined) NumSorters() int { return len(c.sorters) }

// Weight returns the weight of the i-th sub-sorter.
func (c *Combined) Weight(i int) float64 { return c.weights[i] }

// NormalizeWeights rescales all weights so they sum to 1.
func (c *Combined) NormalizeWeights() {
	var sum float64
	for _, w := range c.weights {
		sum += w
	}
	if sum < 1e-12 {
		return
	}
	for i := range c.weights {
		c.weights[i] /= sum
	}
}

// ClearSorters removes all registered sub-sorters.
func (c *Combined) ClearSorters() {
	c.sorters = nil
	c.weights = nil
}

func (c *Combined) Scores(src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) []float64 {
	out := make([]float64, len(corrs))
	if len(c.sorters) == 0 {
		return out
	}
	for i, s := range c.sorters {
		sub := s.Scores(src, dst, corrs)
		normalizeMinMax(sub)
		w := c.weights[i]
		for j, v := range sub {
			out[j] += w * v
		}
	}
	return out
}
