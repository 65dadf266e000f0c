package measurement

// Record is one corrected row together with its file-level fields
type Record struct {
	Row                  Row
	SourceFile           string
	AverageMeanIntensity float64
}

// Stitched is the concatenation of corrected tables from several files
type Stitched struct {
	ExtraColumns []string
	Records      []Record
}

// Tables splits the records back into one corrected table per source file, in
// order of first appearance.
func (s Stitched) Tables() []CorrectedTable {
	var tables []CorrectedTable
	index := make(map[string]int)
	for _, rec := range s.Records {
		i, ok := index[rec.SourceFile]
		if !ok {
			i = len(tables)
			index[rec.SourceFile] = i
			tables = append(tables, CorrectedTable{
				SourceFile:           rec.SourceFile,
				ExtraColumns:         s.ExtraColumns,
				AverageMeanIntensity: rec.AverageMeanIntensity,
			})
		}
		tables[i].Rows = append(tables[i].Rows, rec.Row)
	}
	return tables
}
