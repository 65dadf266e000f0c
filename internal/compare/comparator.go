// Package compare aggregates corrected tables per experimental group and tests
// each group against the control with Welch's t-test.
package compare

import (
	"fmt"
	"math"
	"path/filepath"

	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/domain/measurement"
	"segstat/internal/errors"
	"segstat/internal/normalize"
)

// GroupAssigner maps a corrected table to its group label; "" means unassigned
type GroupAssigner func(table measurement.CorrectedTable) string

// AssignByFile builds an assigner from group specs. Each spec file entry is
// matched against the table's source file name, either exactly or as a glob.
func AssignByFile(specs []comparison.GroupSpec) GroupAssigner {
	return func(table measurement.CorrectedTable) string {
		name := filepath.Base(table.SourceFile)
		for _, spec := range specs {
			for _, pattern := range spec.Files {
				if pattern == name {
					return spec.Label
				}
				if ok, err := filepath.Match(pattern, name); err == nil && ok {
					return spec.Label
				}
			}
		}
		return ""
	}
}

// Request describes one comparison run
type Request struct {
	Tables       []measurement.CorrectedTable
	GroupOf      GroupAssigner
	ControlLabel string
	Metric       comparison.Metric
	Order        []string // group presentation order; unseen groups follow in first-seen order
}

type fileValues struct {
	sourceFile string
	values     []float64
}

type groupData struct {
	label  string
	values []float64
	files  []*fileValues
	byFile map[string]*fileValues
}

// Comparator runs group comparisons. It holds no state.
type Comparator struct{}

// NewComparator creates a comparator
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare concatenates all rows by group, tests every non-control group against
// the control and builds one summary row per (group, source_file).
// A control without rows is a configuration error and no rows are produced.
func (c *Comparator) Compare(req Request) (comparison.Result, error) {
	if req.GroupOf == nil {
		return comparison.Result{}, errors.ConfigInvalid("no group assignment given")
	}
	if req.Metric == "" {
		req.Metric = comparison.MetricIntensityMean
	}

	result := comparison.Result{Control: req.ControlLabel, Metric: req.Metric, PValues: make(map[string]float64)}
	groups, order, warnings := collect(req)
	result.Warnings = warnings

	control := groups[req.ControlLabel]
	if control == nil || len(control.values) == 0 {
		return comparison.Result{}, errors.WithCode(errors.CodeConfigInvalid, core.NewControlEmptyError(req.ControlLabel))
	}
	controlMean := normalize.Mean(control.values)

	for _, label := range order {
		if label == req.ControlLabel {
			continue
		}
		g := groups[label]
		if len(g.values) == 0 {
			result.PValues[label] = math.NaN()
			result.Warnings = append(result.Warnings, core.NewEmptyGroupError(label))
			continue
		}
		// control first, matching the conventional ttest(control, group) call
		result.PValues[label] = WelchTTest(control.values, g.values).PValue
	}

	for _, label := range order {
		g := groups[label]
		pValue := math.NaN()
		if label != req.ControlLabel {
			pValue = result.PValues[label]
		}
		result.GroupStats = append(result.GroupStats, Describe(label, g.values, pValue))

		overall := normalize.Mean(g.values)
		diff := overall - controlMean
		pct := math.NaN()
		if controlMean != 0 {
			pct = 100 * diff / controlMean
		}
		for _, f := range g.files {
			result.Summary = append(result.Summary, comparison.SummaryRow{
				Group:                label,
				SourceFile:           f.sourceFile,
				AverageMeanIntensity: normalize.Mean(f.values),
				OverallMean:          overall,
				DiffVsControl:        diff,
				PctChangeVsControl:   pct,
				PValueVsControl:      pValue,
			})
		}
	}

	return result, nil
}

// collect flattens tables into per-group row values, keeping supply order of files
func collect(req Request) (map[string]*groupData, []string, []error) {
	groups := make(map[string]*groupData)
	var order []string
	var warnings []error

	ensure := func(label string) *groupData {
		if g, ok := groups[label]; ok {
			return g
		}
		g := &groupData{label: label, byFile: make(map[string]*fileValues)}
		groups[label] = g
		order = append(order, label)
		return g
	}

	for _, label := range req.Order {
		ensure(label)
	}
	if req.ControlLabel != "" {
		ensure(req.ControlLabel)
	}

	for _, table := range req.Tables {
		label := req.GroupOf(table)
		if label == "" {
			warnings = append(warnings, fmt.Errorf("%s: not assigned to any group", table.SourceFile))
			continue
		}
		g := ensure(label)
		if len(table.Rows) == 0 {
			continue
		}
		f, ok := g.byFile[table.SourceFile]
		if !ok {
			f = &fileValues{sourceFile: table.SourceFile}
			g.byFile[table.SourceFile] = f
			g.files = append(g.files, f)
		}
		for _, r := range table.Rows {
			v := req.Metric.Value(r)
			f.values = append(f.values, v)
			g.values = append(g.values, v)
		}
	}
	return groups, order, warnings
}
