// =============================================================================
// OPT Observatory ETL - XLSX Source Parser
// =============================================================================
//
// This module reads raw OPT exports saved as Excel workbooks. Some yearly
// export batches arrive as .xlsx instead of delimited text; they are read
// into the same RawFile shape the CSV parser produces so the rest of the
// pipeline does not care which format a file came in.
//
// SHEET SELECTION:
//   The first sheet whose name does not start with "_" holds the data.
//   Sheets such as "_notes" or "_meta" are skipped.
//
// CELL VALUES:
//   Cells are read as their formatted display text, the value a user sees in
//   Excel. The configured null markers and header repairs of the CSV parser
//   apply unchanged.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/csvparser"
)

// Extension is the file extension handled by this package.
const Extension = ".xlsx"

// ErrNoDataSheet is returned when every sheet of a workbook is skipped.
var ErrNoDataSheet = errors.New("workbook has no data sheet")

// IsWorkbook reports whether path names an .xlsx file.
func IsWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}

// =============================================================================
// PARSING FUNCTIONS
// =============================================================================

// Parse reads the data sheet of an .xlsx file.
//
// PARAMETERS:
//   - path: The path to the workbook.
//   - settings: Null markers applied to the cells.
//
// RETURNS:
//   - The parsed file, with repaired headers.
//   - An *csvparser.UnreadableFileError if the workbook cannot be read.
func Parse(path string, settings config.CSVSettings) (*csvparser.RawFile, error) {
	f, sheet, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &csvparser.UnreadableFileError{Path: path, Err: fmt.Errorf("failed to read rows: %w", err)}
	}

	return csvparser.FromRecords(path, rows, settings)
}

// ReadHeader reads and repairs only the header row of an .xlsx file. Rows
// are streamed so large workbooks are not loaded whole.
func ReadHeader(path string, settings config.CSVSettings) ([]string, error) {
	f, sheet, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, &csvparser.UnreadableFileError{Path: path, Err: fmt.Errorf("failed to read rows: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			return nil, &csvparser.UnreadableFileError{Path: path, Err: fmt.Errorf("failed to read header row: %w", err)}
		}
		if isRowEmpty(row) {
			continue
		}
		headers, err := csvparser.RepairHeaders(row)
		if err != nil {
			return nil, &csvparser.UnreadableFileError{Path: path, Err: err}
		}
		return headers, nil
	}
	if err := rows.Error(); err != nil {
		return nil, &csvparser.UnreadableFileError{Path: path, Err: err}
	}

	return nil, &csvparser.UnreadableFileError{Path: path, Err: fmt.Errorf("file is empty")}
}

// DataSheet returns the name of the sheet Parse would read.
func DataSheet(f *excelize.File) (string, error) {
	for _, name := range f.GetSheetList() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		return name, nil
	}
	return "", ErrNoDataSheet
}

// open opens a workbook and selects its data sheet.
func open(path string) (*excelize.File, string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", &csvparser.UnreadableFileError{Path: path, Err: fmt.Errorf("failed to open workbook: %w", err)}
	}

	sheet, err := DataSheet(f)
	if err != nil {
		f.Close()
		return nil, "", &csvparser.UnreadableFileError{Path: path, Err: err}
	}
	return f, sheet, nil
}

// isRowEmpty checks if a row has no non-blank cell.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
