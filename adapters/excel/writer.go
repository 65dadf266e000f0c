package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"segstat/domain/comparison"
	"segstat/domain/measurement"
	"segstat/internal/errors"
	"segstat/ports"
)

// Writer persists tables as CSV or XLSX depending on the destination extension
type Writer struct{}

var _ ports.TableWriter = (*Writer)(nil)

// NewWriter creates a table writer
func NewWriter() *Writer {
	return &Writer{}
}

// CorrectedHeader returns the output columns of a corrected table
func CorrectedHeader(table measurement.CorrectedTable) []string {
	header := make([]string, 0, len(measurement.RequiredColumns)+len(table.ExtraColumns)+2)
	header = append(header, measurement.RequiredColumns...)
	header = append(header, table.ExtraColumns...)
	return append(header, measurement.ColSourceFile, measurement.ColAverageMeanIntensity)
}

// WriteCorrected writes one corrected table; average_mean_intensity is repeated on every row
func (w *Writer) WriteCorrected(path string, table measurement.CorrectedTable) error {
	records := make([][]interface{}, 0, len(table.Rows))
	for _, r := range table.Rows {
		rec := []interface{}{r.Label, r.ZStart, r.ZEnd, r.IntensityMean, r.IntensityMax}
		for _, col := range table.ExtraColumns {
			rec = append(rec, r.Extras[col])
		}
		rec = append(rec, table.SourceFile, table.AverageMeanIntensity)
		records = append(records, rec)
	}
	return w.write(path, CorrectedHeader(table), records)
}

// WriteStitched writes records of several files in corrected-table layout
func (w *Writer) WriteStitched(path string, stitched measurement.Stitched) error {
	header := CorrectedHeader(measurement.CorrectedTable{ExtraColumns: stitched.ExtraColumns})
	records := make([][]interface{}, 0, len(stitched.Records))
	for _, rec := range stitched.Records {
		r := rec.Row
		cells := []interface{}{r.Label, r.ZStart, r.ZEnd, r.IntensityMean, r.IntensityMax}
		for _, col := range stitched.ExtraColumns {
			cells = append(cells, r.Extras[col])
		}
		cells = append(cells, rec.SourceFile, rec.AverageMeanIntensity)
		records = append(records, cells)
	}
	return w.write(path, header, records)
}

// WriteSummary writes the per-file comparison summary
func (w *Writer) WriteSummary(path string, rows []comparison.SummaryRow) error {
	records := make([][]interface{}, len(rows))
	for i, r := range rows {
		records[i] = []interface{}{
			r.Group, r.SourceFile, r.AverageMeanIntensity, r.OverallMean,
			r.DiffVsControl, r.PctChangeVsControl, r.PValueVsControl,
		}
	}
	return w.write(path, comparison.SummaryColumns, records)
}

// WriteGroupStats writes the per-group descriptive statistics
func (w *Writer) WriteGroupStats(path string, stats []comparison.GroupStats) error {
	records := make([][]interface{}, len(stats))
	for i, s := range stats {
		records[i] = []interface{}{s.Group, s.N, s.Mean, s.StdDev, s.SEM, s.Median, s.PValue, s.Significance}
	}
	return w.write(path, comparison.GroupStatsColumns, records)
}

func (w *Writer) write(path string, header []string, records [][]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(fmt.Sprintf("failed to create directory for %s", path), err)
	}

	var err error
	switch FileTypeOf(path) {
	case FileTypeXLSX:
		err = writeXLSX(path, header, records)
	default:
		err = writeCSV(path, header, records)
	}
	if err != nil {
		return errors.IOError(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func writeCSV(path string, header []string, records [][]interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		file.Close()
		return err
	}
	for _, rec := range records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = formatCell(v)
		}
		if err := cw.Write(cells); err != nil {
			file.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeXLSX(path string, header []string, records [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := setRow(f, sheet, 1, stringsToCells(header)); err != nil {
		return err
	}
	for i, rec := range records {
		cells := make([]interface{}, len(rec))
		for j, v := range rec {
			if fv, ok := v.(float64); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
				cells[j] = nil
				continue
			}
			cells[j] = v
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func stringsToCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return measurement.FormatFloat(x)
	default:
		return fmt.Sprint(x)
	}
}
