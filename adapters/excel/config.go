package excel

import (
	"path/filepath"
	"strings"

	"segstat/adapters/coercer"
)

// Supported file types
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// ExcelConfig holds configuration for the tabular loader and writer
type ExcelConfig struct {
	CoercionConfig coercer.CoercionConfig `json:"coercion_config"`
	SheetName      string                 `json:"sheet_name"` // empty means the first sheet
}

// DefaultExcelConfig returns sensible defaults for table processing
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{
		CoercionConfig: coercer.DefaultCoercionConfig(),
	}
}

// FileTypeOf infers the file type from the extension; anything not .xlsx is read as CSV
func FileTypeOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FileTypeXLSX
	}
	return FileTypeCSV
}

// Extension returns the file extension, dot included, for a file type
func Extension(fileType string) string {
	if fileType == FileTypeXLSX {
		return ".xlsx"
	}
	return ".csv"
}
