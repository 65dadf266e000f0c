// Package comparison holds the cross-file group comparison model
package comparison

import (
	"fmt"
	"math"

	"segstat/domain/measurement"
)

// Summary output columns
const (
	ColGroup              = "genotype"
	ColOverallMean        = "overall_mean"
	ColDiffVsControl      = "diff_vs_control"
	ColPctChangeVsControl = "pct_change_vs_control"
	ColPValueVsControl    = "p_value_vs_control"
)

// SummaryColumns is the column order of the per-file summary table
var SummaryColumns = []string{
	ColGroup,
	measurement.ColSourceFile,
	measurement.ColAverageMeanIntensity,
	ColOverallMean,
	ColDiffVsControl,
	ColPctChangeVsControl,
	ColPValueVsControl,
}

// GroupStatsColumns is the column order of the per-group statistics table
var GroupStatsColumns = []string{ColGroup, "n", "mean", "std", "sem", "median", ColPValueVsControl, "significance"}

// Metric selects which corrected field is compared across groups
type Metric string

const (
	MetricIntensityMean Metric = measurement.ColIntensityMean
	MetricIntensityMax  Metric = measurement.ColIntensityMax
)

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricIntensityMean, MetricIntensityMax:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown metric %q (want %s or %s)", s, MetricIntensityMean, MetricIntensityMax)
}

// Value extracts the metric from a row
func (m Metric) Value(r measurement.Row) float64 {
	if m == MetricIntensityMax {
		return r.IntensityMax
	}
	return r.IntensityMean
}

// GroupSpec describes one experimental group and the files that belong to it
type GroupSpec struct {
	Label   string   `yaml:"label"`
	Control bool     `yaml:"control"`
	Files   []string `yaml:"files"`
}

// SummaryRow is one (group, source_file) pair. Undefined values are NaN.
type SummaryRow struct {
	Group                string
	SourceFile           string
	AverageMeanIntensity float64
	OverallMean          float64
	DiffVsControl        float64
	PctChangeVsControl   float64
	PValueVsControl      float64
}

// GroupStats summarizes one group's metric distribution
type GroupStats struct {
	Group        string
	N            int
	Mean         float64
	StdDev       float64
	SEM          float64
	Median       float64
	PValue       float64
	Significance string
}

// Result is the output of one comparator run
type Result struct {
	Control    string
	Metric     Metric
	PValues    map[string]float64
	Summary    []SummaryRow
	GroupStats []GroupStats
	Warnings   []error
}

// Significance maps a p-value to the conventional star marker
func Significance(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return "ns"
	}
}
