package sorter

import (
	"github.com/pclreg/pcreg/pkg/correspondence"
	"github.com/pclreg/pcreg/pkg/pointcloud"
)

// QualityFunc computes a quality score for correspondence corrs[index]
// given both clouds.
type QualityFunc func(corr correspondence.Correspondence, index int, src, dst *pointcloud.Cloud) float64

// SimpleQualityFunc computes a quality score from the correspondence alone.
type SimpleQualityFunc func(corr correspondence.Correspondence) float64

// Custom scores correspondences with a user-supplied function. Exactly one
// of QualityFunc or SimpleQualityFunc should be set; QualityFunc takes
// precedence if both are. With neither set, Scores returns an empty slice.
type Custom struct {
	QualityFunc       QualityFunc
	SimpleQualityFunc SimpleQualityFunc
}

func (c Custom) Name() string { return "CustomFunction" }

// HasQualityFunction reports whether a scoring function has been set.
func (c Custom) HasQualityFunction() bool {
	return c.QualityFunc != nil || c.SimpleQualityFunc != nil
}

func (c Custom) Scores(src, dst *pointcloud.Cloud, corrs []correspondence.Correspondence) []float64 {
	if !c.HasQualityFunction() {
		return nil
	}
	scores := make([]float64, len(corrs))
	for i, corr := range corrs {
		if c.QualityFunc != nil {
			scores[i] = c.QualityFunc(corr, i, src, dst)
		} else {
			scores[i] = c.SimpleQualityFunc(corr)
		}
	}
	return scores
}
