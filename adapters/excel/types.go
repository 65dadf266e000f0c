package excel

// RawData is the header row and data rows of one sheet or CSV file, cells trimmed
type RawData struct {
	Headers []string
	Rows    [][]string
}

// Cell returns the value of column idx in row, or "" for short rows
func (d *RawData) Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
