// =============================================================================
// OPT Observatory ETL - CSV Writer Module
// =============================================================================
//
// This module writes a Table as one UTF-8 delimited file: the combined and
// cleaned yearly outputs.
//
// OUTPUT FORMAT:
//   YEAR,COUNTRY,EMPLOYER_CITY          <-- canonical headers, table order
//   2020,india,boston
//   2020,,austin                        <-- missing cells are empty
//
// Values are written verbatim. ZIP codes keep their leading zeros because no
// value is ever converted from text.
//
// =============================================================================

package csvwriter

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// WriteOptions contains options for CSV output.
type WriteOptions struct {
	// Delimiter is the field separator.
	// Default: ','
	Delimiter rune

	// UseCRLF ends lines with \r\n.
	// Default: false
	UseCRLF bool
}

// DefaultWriteOptions returns the default write options.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Delimiter: ','}
}

// WriteFile writes a table to path, creating parent directories. An existing
// file is replaced.
//
// RETURNS:
//   - The number of bytes written.
//   - An error if the file cannot be created or written.
func WriteFile(path string, t *types.Table, options WriteOptions) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	counter := &countingWriter{w: file}
	buffered := bufio.NewWriter(counter)

	if err := Write(buffered, t, options); err != nil {
		return counter.n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := buffered.Flush(); err != nil {
		return counter.n, fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return counter.n, fmt.Errorf("failed to close %s: %w", path, err)
	}

	return counter.n, nil
}

// Write writes a table to w: one header row of column names, then one row
// per table row with missing cells empty.
func Write(w io.Writer, t *types.Table, options WriteOptions) error {
	writer := csv.NewWriter(w)
	if options.Delimiter != 0 {
		writer.Comma = options.Delimiter
	}
	writer.UseCRLF = options.UseCRLF

	if err := writer.Write(t.Names()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cols := t.Columns()
	record := make([]string, len(cols))
	for i := 0; i < t.Rows(); i++ {
		for j, col := range cols {
			if col.Null[i] {
				record[j] = ""
			} else {
				record[j] = col.Values[i]
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
