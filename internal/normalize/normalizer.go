// Package normalize removes the empirically detected background from a
// measurement table.
//
// A background row is a region spanning exactly one z slice. Its intensities are
// subtracted from every other region, results are optionally floored at zero, the
// background row is dropped, and the table-wide mean of the corrected
// intensity_mean is attached to the result.
package normalize

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"segstat/domain/core"
	"segstat/domain/measurement"
	"segstat/ports"
)

// BackgroundExtent is the z extent that marks a background annotation
const BackgroundExtent = 1

// Normalizer performs background subtraction. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	selector ports.BackgroundSelector
}

// NewNormalizer creates a normalizer; a nil selector means MaxLabelSelector
func NewNormalizer(selector ports.BackgroundSelector) *Normalizer {
	if selector == nil {
		selector = MaxLabelSelector{}
	}
	return &Normalizer{selector: selector}
}

// Normalize corrects one table. A table without a background candidate is
// returned as a skip, never as an error.
func (n *Normalizer) Normalize(table measurement.Table, clipNegative bool) (measurement.CorrectedTable, *measurement.SkippedFile) {
	rows, dropped := finiteRows(table.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })

	var candidates []measurement.Row
	for _, r := range rows {
		if r.ZExtent() == BackgroundExtent {
			candidates = append(candidates, r)
		}
	}
	bg, ok := n.selector.SelectBackground(candidates)
	if !ok {
		return measurement.CorrectedTable{}, &measurement.SkippedFile{
			SourceFile: table.SourceFile,
			Reason:     core.ErrNoBackgroundRow.Error(),
		}
	}

	corrected := make([]measurement.Row, 0, len(rows))
	for _, r := range rows {
		if r.Label == bg.Label {
			continue
		}
		r.IntensityMean -= bg.IntensityMean
		r.IntensityMax -= bg.IntensityMax
		if clipNegative {
			r = clipRow(r)
		}
		corrected = append(corrected, r)
	}

	out := measurement.CorrectedTable{
		SourceFile:   table.SourceFile,
		ExtraColumns: table.ExtraColumns,
		Rows:         corrected,
		Background:   bg,
		ClipNegative: clipNegative,
		DroppedRows:  dropped,
	}
	out.AverageMeanIntensity = Mean(out.MeanValues())
	return out, nil
}

// Mean is the arithmetic mean, NaN for no values
func Mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// clipRow floors both intensities at zero independently
func clipRow(r measurement.Row) measurement.Row {
	if r.IntensityMean < 0 {
		r.IntensityMean = 0
	}
	if r.IntensityMax < 0 {
		r.IntensityMax = 0
	}
	return r
}

// finiteRows copies the rows whose intensities are usable numbers
func finiteRows(in []measurement.Row) ([]measurement.Row, int) {
	out := make([]measurement.Row, 0, len(in))
	for _, r := range in {
		if !isFinite(r.IntensityMean) || !isFinite(r.IntensityMax) || r.ZExtent() < 0 {
			continue
		}
		out = append(out, r)
	}
	return out, len(in) - len(out)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
