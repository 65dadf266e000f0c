// Package dataset combines corrected tables from several files
package dataset

import (
	"segstat/domain/measurement"
)

// Stitch concatenates corrected tables in the given order. Extra columns are the
// union of all tables' extra columns in order of first appearance.
func Stitch(tables []measurement.CorrectedTable) measurement.Stitched {
	var out measurement.Stitched
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, col := range t.ExtraColumns {
			if !seen[col] {
				seen[col] = true
				out.ExtraColumns = append(out.ExtraColumns, col)
			}
		}
		for _, r := range t.Rows {
			out.Records = append(out.Records, measurement.Record{
				Row:                  r,
				SourceFile:           t.SourceFile,
				AverageMeanIntensity: t.AverageMeanIntensity,
			})
		}
	}
	return out
}

// DedupeBySourceAverage keeps the first record of every distinct
// (source_file, average_mean_intensity) pair, reducing a stitched table to one
// row per file. Undefined averages compare equal to each other.
func DedupeBySourceAverage(s measurement.Stitched) measurement.Stitched {
	type key struct {
		sourceFile string
		average    string
	}

	out := measurement.Stitched{ExtraColumns: s.ExtraColumns}
	seen := make(map[key]bool, len(s.Records))
	for _, rec := range s.Records {
		k := key{rec.SourceFile, measurement.FormatFloat(rec.AverageMeanIntensity)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Records = append(out.Records, rec)
	}
	return out
}
