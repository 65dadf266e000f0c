// Package measurement holds the per-region measurement model produced by
// segmentation pipelines and its background-corrected form.
package measurement

import (
	"math"
	"strconv"
	"strings"

	"segstat/domain/core"
)

// Column names of the tabular schema. Downstream consumers depend on them verbatim.
const (
	ColLabel                = "label"
	ColZStart               = "bbox-0"
	ColZEnd                 = "bbox-3"
	ColIntensityMean        = "intensity_mean"
	ColIntensityMax         = "intensity_max"
	ColSourceFile           = "source_file"
	ColAverageMeanIntensity = "average_mean_intensity"
)

// RequiredColumns lists the columns every input table must carry
var RequiredColumns = []string{ColLabel, ColZStart, ColZEnd, ColIntensityMean, ColIntensityMax}

// ColumnAliases maps accepted alternative headers to their canonical name
var ColumnAliases = map[string]string{
	"z_start": ColZStart,
	"z_end":   ColZEnd,
}

// Row is one segmented region within one file
type Row struct {
	Label         int
	ZStart        int
	ZEnd          int
	IntensityMean float64
	IntensityMax  float64
	Extras        map[string]string // non-required input columns, keyed by header
}

// ZExtent returns the number of z slices the region spans
func (r Row) ZExtent() int {
	return r.ZEnd - r.ZStart
}

// Table is the raw content of one input file
type Table struct {
	SourceFile   string
	ExtraColumns []string
	Rows         []Row
}

// CorrectedTable is a Table after background subtraction.
// AverageMeanIntensity is derived once by the normalizer and emitted on every row.
type CorrectedTable struct {
	SourceFile           string
	ExtraColumns         []string
	Rows                 []Row
	Background           Row
	ClipNegative         bool
	DroppedRows          int // rows excluded for non-numeric or inconsistent fields
	AverageMeanIntensity float64
}

// SkippedFile reports a file that could not be normalized
type SkippedFile struct {
	SourceFile string
	Reason     string
}

func (s SkippedFile) Error() string {
	return s.SourceFile + ": " + s.Reason
}

// Unwrap lets callers match skips against core.ErrNoBackgroundRow
func (s SkippedFile) Unwrap() error {
	if s.Reason == core.ErrNoBackgroundRow.Error() {
		return core.ErrNoBackgroundRow
	}
	return nil
}

// MeanValues returns the intensity_mean column in row order
func (t CorrectedTable) MeanValues() []float64 {
	values := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		values[i] = r.IntensityMean
	}
	return values
}

// Fingerprint hashes the corrected content so identical inputs can be checked
// for reproducible output.
func (t CorrectedTable) Fingerprint() core.Hash {
	var b strings.Builder
	b.WriteString(t.SourceFile)
	for _, r := range t.Rows {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(r.Label))
		b.WriteByte(',')
		b.WriteString(FormatFloat(r.IntensityMean))
		b.WriteByte(',')
		b.WriteString(FormatFloat(r.IntensityMax))
		for _, col := range t.ExtraColumns {
			b.WriteByte(',')
			b.WriteString(r.Extras[col])
		}
	}
	b.WriteByte('|')
	b.WriteString(FormatFloat(t.AverageMeanIntensity))
	return core.NewHash([]byte(b.String()))
}

// FormatFloat renders a value for tabular output. Undefined values become an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
