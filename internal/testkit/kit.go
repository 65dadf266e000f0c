// Package testkit provides fixtures for tests across the module
package testkit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"segstat/domain/measurement"
)

// Row builds a measurement row. extent is bbox-3 minus bbox-0.
func Row(label, extent int, mean, max float64) measurement.Row {
	return measurement.Row{
		Label:         label,
		ZStart:        0,
		ZEnd:          extent,
		IntensityMean: mean,
		IntensityMax:  max,
	}
}

// Table builds a measurement table for sourceFile
func Table(sourceFile string, rows ...measurement.Row) measurement.Table {
	return measurement.Table{SourceFile: sourceFile, Rows: rows}
}

// Corrected builds a corrected table whose intensity_mean values are means.
// intensity_max is set to twice the mean.
func Corrected(sourceFile string, means ...float64) measurement.CorrectedTable {
	t := measurement.CorrectedTable{SourceFile: sourceFile}
	sum := 0.0
	for i, m := range means {
		t.Rows = append(t.Rows, Row(i+1, 3, m, 2*m))
		sum += m
	}
	if len(means) > 0 {
		t.AverageMeanIntensity = sum / float64(len(means))
	}
	return t
}

// WriteCSV writes lines joined by newlines into dir/name and returns the path
func WriteCSV(t testing.TB, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// SegmentationHeader is the header emitted by the segmentation pipeline
const SegmentationHeader = "label,bbox-0,bbox-1,bbox-2,bbox-3,bbox-4,bbox-5,area,intensity_mean,intensity_max"
