package excel

import (
	"fmt"
	"path/filepath"

	"segstat/adapters/coercer"
	"segstat/domain/core"
	"segstat/domain/measurement"
	"segstat/internal"
	"segstat/internal/errors"
	"segstat/internal/normalize"
	"segstat/ports"
)

// Loader turns CSV/XLSX files into measurement tables
type Loader struct {
	config  ExcelConfig
	coercer *coercer.NumericCoercer
	logger  *internal.Logger
}

var _ ports.TableLoader = (*Loader)(nil)

// NewLoader creates a loader. logger may be nil.
func NewLoader(config ExcelConfig, logger *internal.Logger) *Loader {
	return &Loader{config: config, coercer: coercer.NewNumericCoercer(config.CoercionConfig), logger: logger}
}

// derived columns are regenerated on output, so they are never listed as extra
// columns; their cells are kept on the row only for LoadStitched
var derivedColumns = map[string]bool{
	measurement.ColSourceFile:           true,
	measurement.ColAverageMeanIntensity: true,
}

// Load reads path. Rows whose required fields do not coerce, whose label is not
// positive, or whose z extent is negative are dropped and counted in the report.
func (l *Loader) Load(path string) (measurement.Table, ports.LoadReport, error) {
	sourceFile := filepath.Base(path)
	report := ports.LoadReport{SourceFile: sourceFile}

	raw, err := NewDataReader(path, l.config.SheetName, l.logger).ReadData()
	if err != nil {
		return measurement.Table{}, report, errors.IOError(fmt.Sprintf("failed to read %s", sourceFile), err)
	}
	return l.Build(sourceFile, raw)
}

// Build converts already-read raw data into a table
func (l *Loader) Build(sourceFile string, raw *RawData) (measurement.Table, ports.LoadReport, error) {
	report := ports.LoadReport{SourceFile: sourceFile, TotalRows: len(raw.Rows)}

	index := make(map[string]int, len(raw.Headers))
	var extras []int
	for i, h := range raw.Headers {
		name := h
		if canonical, ok := measurement.ColumnAliases[h]; ok {
			name = canonical
		}
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = i
	}

	var missing []string
	required := make(map[string]bool, len(measurement.RequiredColumns))
	for _, col := range measurement.RequiredColumns {
		required[col] = true
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return measurement.Table{}, report, errors.MalformedInput("missing required columns",
			core.NewMissingColumnsError(sourceFile, missing))
	}

	table := measurement.Table{SourceFile: sourceFile}
	derived := make(map[string]int)
	for name := range derivedColumns {
		if idx, ok := index[name]; ok {
			derived[name] = idx
		}
	}
	for i, h := range raw.Headers {
		canonical := h
		if alias, ok := measurement.ColumnAliases[h]; ok {
			canonical = alias
		}
		if required[canonical] || derivedColumns[h] || h == "" || index[canonical] != i {
			continue
		}
		extras = append(extras, i)
		table.ExtraColumns = append(table.ExtraColumns, h)
	}

	// labels are unique per source file; stitched files repeat them across files
	type labelKey struct {
		sourceFile string
		label      int
	}
	seen := make(map[labelKey]bool, len(raw.Rows))
	for _, cells := range raw.Rows {
		row, ok := l.coerceRow(raw, cells, index)
		if !ok {
			report.DroppedRows++
			continue
		}
		key := labelKey{label: row.Label}
		if idx, ok := derived[measurement.ColSourceFile]; ok {
			key.sourceFile = raw.Cell(cells, idx)
		}
		if seen[key] {
			owner := sourceFile
			if key.sourceFile != "" {
				owner = key.sourceFile
			}
			return measurement.Table{}, report, errors.MalformedInput("duplicate label",
				core.NewMalformedInputError(sourceFile, fmt.Sprintf("label %d appears more than once for %s", row.Label, owner)))
		}
		seen[key] = true

		if len(extras)+len(derived) > 0 {
			row.Extras = make(map[string]string, len(extras)+len(derived))
			for _, idx := range extras {
				row.Extras[raw.Headers[idx]] = raw.Cell(cells, idx)
			}
			for name, idx := range derived {
				row.Extras[name] = raw.Cell(cells, idx)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, report, nil
}

func (l *Loader) coerceRow(raw *RawData, cells []string, index map[string]int) (measurement.Row, bool) {
	label, ok1 := l.coercer.Int(raw.Cell(cells, index[measurement.ColLabel]))
	zStart, ok2 := l.coercer.Int(raw.Cell(cells, index[measurement.ColZStart]))
	zEnd, ok3 := l.coercer.Int(raw.Cell(cells, index[measurement.ColZEnd]))
	mean, ok4 := l.coercer.Float(raw.Cell(cells, index[measurement.ColIntensityMean]))
	max, ok5 := l.coercer.Float(raw.Cell(cells, index[measurement.ColIntensityMax]))
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return measurement.Row{}, false
	}

	row := measurement.Row{
		Label:         label,
		ZStart:        zStart,
		ZEnd:          zEnd,
		IntensityMean: mean,
		IntensityMax:  max,
	}
	if row.Label < 1 || row.ZExtent() < 0 {
		return measurement.Row{}, false
	}
	return row, true
}

// LoadStitched reads a file in corrected-table layout, which may hold rows of
// several source files. Rows without a source_file cell are attributed to the
// file itself. A source file's average_mean_intensity is taken from its first
// parsable cell and re-derived from the rows when no cell parses.
func (l *Loader) LoadStitched(path string) (measurement.Stitched, ports.LoadReport, error) {
	table, report, err := l.Load(path)
	if err != nil {
		return measurement.Stitched{}, report, err
	}

	out := measurement.Stitched{ExtraColumns: table.ExtraColumns}
	values := make(map[string][]float64)
	averages := make(map[string]float64)
	for _, row := range table.Rows {
		sourceFile := row.Extras[measurement.ColSourceFile]
		if sourceFile == "" {
			sourceFile = table.SourceFile
		}
		if _, ok := averages[sourceFile]; !ok {
			if avg, ok := l.coercer.Float(row.Extras[measurement.ColAverageMeanIntensity]); ok {
				averages[sourceFile] = avg
			}
		}
		delete(row.Extras, measurement.ColSourceFile)
		delete(row.Extras, measurement.ColAverageMeanIntensity)

		values[sourceFile] = append(values[sourceFile], row.IntensityMean)
		out.Records = append(out.Records, measurement.Record{Row: row, SourceFile: sourceFile})
	}

	for i := range out.Records {
		rec := &out.Records[i]
		avg, ok := averages[rec.SourceFile]
		if !ok {
			avg = normalize.Mean(values[rec.SourceFile])
			averages[rec.SourceFile] = avg
		}
		rec.AverageMeanIntensity = avg
	}
	return out, report, nil
}
