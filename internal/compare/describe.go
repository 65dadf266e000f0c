package compare

import (
	"math"

	"github.com/montanaflynn/stats"

	"segstat/domain/comparison"
)

// Describe computes descriptive statistics of one group's metric values.
// Statistics that need more values than available are NaN.
func Describe(group string, values []float64, pValue float64) comparison.GroupStats {
	gs := comparison.GroupStats{
		Group:        group,
		N:            len(values),
		Mean:         math.NaN(),
		StdDev:       math.NaN(),
		SEM:          math.NaN(),
		Median:       math.NaN(),
		PValue:       pValue,
		Significance: comparison.Significance(pValue),
	}
	if len(values) == 0 {
		return gs
	}

	gs.Mean, _ = stats.Mean(values)
	gs.Median, _ = stats.Median(values)
	if len(values) > 1 {
		gs.StdDev, _ = stats.StandardDeviationSample(values)
		gs.SEM = gs.StdDev / math.Sqrt(float64(len(values)))
	}
	return gs
}
