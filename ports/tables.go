package ports

import (
	"context"

	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/domain/measurement"
)

// LoadReport describes what a loader had to discard while reading a file
type LoadReport struct {
	SourceFile  string
	TotalRows   int
	DroppedRows int
}

// TableLoader reads one measurement file.
// It fails with core.ErrMalformedInput when required columns are missing.
type TableLoader interface {
	Load(path string) (measurement.Table, LoadReport, error)
}

// StitchedLoader reads files in corrected-table layout, possibly covering several source files
type StitchedLoader interface {
	LoadStitched(path string) (measurement.Stitched, LoadReport, error)
}

// TableWriter persists corrected tables and comparison results in tabular form
type TableWriter interface {
	WriteCorrected(path string, table measurement.CorrectedTable) error
	WriteStitched(path string, stitched measurement.Stitched) error
	WriteSummary(path string, rows []comparison.SummaryRow) error
	WriteGroupStats(path string, stats []comparison.GroupStats) error
}

// BackgroundSelector picks the background row among single-slice candidates.
// Candidates arrive sorted by label ascending.
type BackgroundSelector interface {
	SelectBackground(candidates []measurement.Row) (measurement.Row, bool)
}

// SummaryRepository stores comparison output for a run.
// Saving a run again replaces what was stored under its id.
type SummaryRepository interface {
	SaveResult(ctx context.Context, runID core.RunID, result comparison.Result) error
}
