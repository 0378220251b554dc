package sorter

import (
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// DescriptorDistance scores correspondences by their descriptor distance.
// With InvertScore (the common case: smaller descriptor distance means a
// better match), the score is the negated distance; otherwise the raw
// distance is used directly.
type DescriptorDistance struct {
	InvertScore bool
	Normalize   bool
}

func (d DescriptorDistance) Name() string { return "DescriptorDistance" }

func (d DescriptorDistance) Scores(_, _ *pointcloud.Cloud, corrs []correspondence.Correspondence) []float64 {
	scores := make([]float64, len(corrs))
	for i, c := range corrs {
		if d.InvertScore {
			scores[i] = -c.Distance
		} else {
			scores[i] = c.Distance
		}
	}
	if d.Normalize {
		normalizeMinMax(scores)
	}
	return scores
}
