// =============================================================================
// OPT Observatory ETL - CSV Parser Module
// =============================================================================
//
// This module reads the delimited source files of the government export, and
// the combined and cleaned files the pipeline writes back. It handles:
//   - Different delimiters (comma, pipe, tab, etc.)
//   - Legacy single-byte encodings (ISO-8859-1, Windows-1252)
//   - Configurable null markers ("NA", "NULL", ...)
//   - Repeated and blank header cells
//   - Quoted fields with embedded delimiters and newlines
//
// OUTPUT MODEL:
//   Parse produces a RawFile: the raw headers in file order and one column
//   buffer per raw header. Raw headers may collapse onto one canonical name, so
//   a RawFile is not yet a Table. The Header Reconciler and the Duplicate-Column
//   Resolver turn it into one.
//
// ERROR HANDLING:
//   A file that is not delimited text, or has fewer than 2 columns, yields an
//   *UnreadableFileError. Callers skip such files with a warning.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// MinColumns is the smallest header width accepted as a delimited file.
const MinColumns = 2

// ErrTooFewColumns is wrapped by UnreadableFileError for files narrower than
// MinColumns.
var ErrTooFewColumns = errors.New("fewer than 2 columns")

// UnreadableFileError is returned for a source file that cannot be used at all.
type UnreadableFileError struct {
	// Path is the file path.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RAW FILE
// =============================================================================

// RawFile is one parsed source file.
type RawFile struct {
	// Source is the path of the file.
	Source string

	// Headers are the raw header cells in file order, after repair.
	Headers []string

	// Columns holds one text column per header. Name and Source both carry
	// the raw header.
	Columns []*types.Column

	// Rows is the number of data rows read.
	Rows int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a delimited file and returns its columns.
//
// PARAMETERS:
//   - filePath: The path to the file.
//   - settings: The CSV settings from the configuration.
//
// RETURNS:
//   - A pointer to the RawFile.
//   - An *UnreadableFileError if the file cannot be used.
//
// PARSING PROCESS:
//   1. Open the file and wrap it in a decoder for the configured encoding
//   2. Configure the CSV reader with the configured delimiter
//   3. Read and repair the header row
//   4. Append every data row to per-column buffers, marking null markers as
//      missing
func Parse(filePath string, settings config.CSVSettings) (*RawFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}
	defer file.Close()

	raw, err := ParseReader(file, filePath, settings)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ParseReader is Parse over an already open reader.
func ParseReader(r io.Reader, source string, settings config.CSVSettings) (*RawFile, error) {
	csvReader, err := newReader(r, settings)
	if err != nil {
		return nil, &UnreadableFileError{Path: source, Err: err}
	}

	headers, err := readHeaders(csvReader)
	if err != nil {
		return nil, &UnreadableFileError{Path: source, Err: err}
	}

	b := newColumnBuilder(headers, NullSet(settings), 0)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &UnreadableFileError{Path: source, Err: fmt.Errorf("failed to read CSV: %w", err)}
		}
		if isRowEmpty(record) {
			continue
		}
		b.add(record)
	}

	return &RawFile{
		Source:  source,
		Headers: headers,
		Columns: b.columns(),
		Rows:    b.rows,
	}, nil
}

// ReadHeader reads only the header row of a file.
func ReadHeader(filePath string, settings config.CSVSettings) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}
	defer file.Close()

	csvReader, err := newReader(file, settings)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}

	headers, err := readHeaders(csvReader)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}
	return headers, nil
}

// NullSet returns the configured null markers as a lookup set. The empty
// string is always a null marker.
func NullSet(settings config.CSVSettings) map[string]struct{} {
	set := make(map[string]struct{}, len(settings.NullValues)+1)
	set[""] = struct{}{}
	for _, v := range settings.NullValues {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}

// newReader builds a configured csv.Reader over a decoded stream.
func newReader(r io.Reader, settings config.CSVSettings) (*csv.Reader, error) {
	decoded, err := newDecodingReader(bufio.NewReader(r), settings.Encoding)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(decoded)
	configureReader(csvReader, settings)
	return csvReader, nil
}

// newDecodingReader converts a source stream in the given encoding to UTF-8.
func newDecodingReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return r, nil
	case "iso-8859-1", "latin1", "latin-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Export rows are frequently ragged and loosely quoted.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
}

// readHeaders reads and repairs the header row.
func readHeaders(reader *csv.Reader) ([]string, error) {
	row, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	return RepairHeaders(row)
}

// RepairHeaders cleans a header row read from any source format.
//
// RETURNS:
//   - The repaired headers.
//   - An error wrapping ErrTooFewColumns for rows narrower than MinColumns.
func RepairHeaders(row []string) ([]string, error) {
	headers := cleanHeaders(row)
	if len(headers) < MinColumns {
		return nil, fmt.Errorf("%w: found %d", ErrTooFewColumns, len(headers))
	}
	return headers, nil
}

// FromRecords builds a RawFile from rows already split into cells. The first
// non-empty row is the header row; empty rows are skipped. The same null
// markers and short-row padding as Parse apply.
func FromRecords(source string, records [][]string, settings config.CSVSettings) (*RawFile, error) {
	start := 0
	for start < len(records) && isRowEmpty(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, &UnreadableFileError{Path: source, Err: fmt.Errorf("file is empty")}
	}

	headers, err := RepairHeaders(records[start])
	if err != nil {
		return nil, &UnreadableFileError{Path: source, Err: err}
	}

	b := newColumnBuilder(headers, NullSet(settings), len(records)-start-1)
	for _, record := range records[start+1:] {
		if !isRowEmpty(record) {
			b.add(record)
		}
	}

	return &RawFile{
		Source:  source,
		Headers: headers,
		Columns: b.columns(),
		Rows:    b.rows,
	}, nil
}

// cleanHeaders cleans header cells.
//
// CLEANING OPERATIONS:
//   - Strip a UTF-8 byte order mark from the first cell
//   - Trim whitespace
//   - Name blank cells Column_<position>
//   - Give every repeat of an earlier header the export's duplicate suffix
//     "...<position>", so that each raw header is unique
func cleanHeaders(row []string) []string {
	cleaned := make([]string, len(row))
	seen := make(map[string]bool, len(row))

	for i, header := range row {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		header = strings.TrimSpace(header)

		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		if seen[header] {
			header = fmt.Sprintf("%s...%d", header, i+1)
		}
		seen[header] = true

		cleaned[i] = header
	}

	return cleaned
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// COLUMN BUFFERS
// =============================================================================

// columnBuilder appends records to per-column buffers.
type columnBuilder struct {
	headers []string
	values  [][]string
	null    [][]bool
	nulls   map[string]struct{}
	rows    int
}

func newColumnBuilder(headers []string, nulls map[string]struct{}, capacity int) *columnBuilder {
	b := &columnBuilder{
		headers: headers,
		values:  make([][]string, len(headers)),
		null:    make([][]bool, len(headers)),
		nulls:   nulls,
	}
	for i := range headers {
		b.values[i] = make([]string, 0, capacity)
		b.null[i] = make([]bool, 0, capacity)
	}
	return b
}

// add appends one record. Short records are padded with missing cells and
// cells past the header width are dropped.
func (b *columnBuilder) add(record []string) {
	for i := range b.headers {
		value := ""
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}
		_, missing := b.nulls[value]
		if missing {
			value = ""
		}
		b.values[i] = append(b.values[i], value)
		b.null[i] = append(b.null[i], missing)
	}
	b.rows++
}

func (b *columnBuilder) columns() []*types.Column {
	cols := make([]*types.Column, len(b.headers))
	for i, h := range b.headers {
		cols[i] = types.NewColumn(h, h, types.KindText, b.values[i], b.null[i])
	}
	return cols
}

// table returns the buffers as a Table. Headers must already be unique.
func (b *columnBuilder) table() (*types.Table, error) {
	return types.NewTable(b.columns()...)
}

// =============================================================================
// STREAMING PARSER FOR LARGE FILES
// =============================================================================

// StreamingParser provides memory-efficient parsing for large files. Instead
// of loading the entire file into memory, it yields bounded chunks of rows.
//
// USAGE:
//   parser, err := NewStreamingParser(filePath, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   for parser.Next() {
//       row := parser.Row()
//       // Process the row...
//   }
//
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	file       *os.File
	reader     *csv.Reader
	headers    []string
	nulls      map[string]struct{}
	currentRow []string
	rowNumber  int
	err        error
}

// NewStreamingParser creates a new streaming parser for a file and reads its
// header row.
func NewStreamingParser(filePath string, settings config.CSVSettings) (*StreamingParser, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}

	reader, err := newReader(file, settings)
	if err != nil {
		file.Close()
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}

	headers, err := readHeaders(reader)
	if err != nil {
		file.Close()
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}

	return &StreamingParser{
		file:      file,
		reader:    reader,
		headers:   headers,
		nulls:     NullSet(settings),
		rowNumber: 1,
	}, nil
}

// Next advances to the next non-empty row. Returns false when there are no
// more rows.
func (p *StreamingParser) Next() bool {
	for p.err == nil {
		row, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber+1, err)
			return false
		}

		p.rowNumber++
		if isRowEmpty(row) {
			continue
		}

		p.currentRow = append(p.currentRow[:0], row...)
		return true
	}
	return false
}

// Row returns the current raw row. The slice is reused by the next call to
// Next.
func (p *StreamingParser) Row() []string {
	return p.currentRow
}

// Headers returns the parsed headers.
func (p *StreamingParser) Headers() []string {
	return p.headers
}

// RowNumber returns the current line-based row number (1-indexed, header
// included).
func (p *StreamingParser) RowNumber() int {
	return p.rowNumber
}

// Chunk reads up to size rows into a Table. It returns io.EOF when no rows
// remain.
func (p *StreamingParser) Chunk(size int) (*types.Table, error) {
	if size < 1 {
		size = 1
	}

	b := newColumnBuilder(p.headers, p.nulls, size)
	for b.rows < size && p.Next() {
		b.add(p.currentRow)
	}
	if p.err != nil {
		return nil, p.err
	}
	if b.rows == 0 {
		return nil, io.EOF
	}
	return b.table()
}

// Err returns any error that occurred during parsing.
func (p *StreamingParser) Err() error {
	return p.err
}

// Close closes the underlying file.
func (p *StreamingParser) Close() error {
	return p.file.Close()
}
