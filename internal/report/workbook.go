package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
)

// Sheet names, in workbook order.
const (
	SheetSummary      = "Summary"
	SheetDateParsing  = "DateParsing"
	SheetManualReview = "ManualReview"
	SheetFailures     = "Failures"
)

var (
	summaryHeaders = []string{
		"Stage", "Year", "Status", "Failed At", "Files Combined", "Files Skipped",
		"Initial Rows", "Duplicate Rows Removed", "CPT Rows Removed",
		"Future Dates Nullified", "Historic Dates Nullified", "ZIPs Padded",
		"Final Rows", "Final Columns", "Output", "Bytes", "Seconds",
	}
	dateHeaders = []string{
		"Year", "Column", "Present", "Parsed", "Failed", "Success Rate",
		"Future Nullified", "Historic Nullified", "Degraded", "Failed Examples",
	}
	reviewHeaders = []string{
		"Stage", "Year", "File", "Column", "Candidate", "Member", "Similarity",
	}
	failureHeaders = []string{
		"Stage", "Year", "Kind", "Failed At", "Subject", "Error",
	}
)

// sheetWriter appends rows to one sheet and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (w *sheetWriter) append(values ...any) {
	if w.err != nil {
		return
	}
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(w.sheet, cell, &values)
}

func (w *sheetWriter) header(headers []string, style int) {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	w.append(values...)
	if w.err == nil {
		w.err = w.f.SetRowStyle(w.sheet, w.row, w.row, style)
	}
}

// WriteWorkbook writes the run workbook to path.
//
// SHEETS:
//   - Summary: one row per year and stage
//   - DateParsing: one row per date column of every cleaned year
//   - ManualReview: column pairs kept apart for a human decision
//   - Failures: failed years and skipped source files
func WriteWorkbook(r *processor.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	for _, name := range []string{SheetDateParsing, SheetManualReview, SheetFailures} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	writers := []*sheetWriter{
		writeSummarySheet(f, r, bold),
		writeDateSheet(f, r, bold),
		writeReviewSheet(f, r, bold),
		writeFailureSheet(f, r, bold),
	}
	for _, w := range writers {
		if w.err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", w.sheet, w.err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, r *processor.Report, style int) *sheetWriter {
	w := &sheetWriter{f: f, sheet: SheetSummary}
	w.header(summaryHeaders, style)

	for _, res := range r.Results() {
		failedAt := ""
		if !res.OK() {
			failedAt = res.FailedAt.String()
		}
		s := res.Stats
		w.append(res.Stage.String(), res.Year, status(res), failedAt,
			s.FilesCombined, len(s.FilesSkipped), s.InitialRows,
			s.DuplicateRowsRemoved, s.CPTRowsRemoved,
			s.FutureDatesNullified, s.HistoricDatesNullified, s.ZipsPadded,
			s.FinalRows, s.FinalColumns, res.OutputPath, res.BytesOut, seconds(res.Duration))
	}

	if w.err == nil {
		w.err = f.SetColWidth(SheetSummary, "A", "Q", 14)
	}
	return w
}

func writeDateSheet(f *excelize.File, r *processor.Report, style int) *sheetWriter {
	w := &sheetWriter{f: f, sheet: SheetDateParsing}
	w.header(dateHeaders, style)

	for _, res := range r.Clean {
		degraded := make(map[string]bool, len(res.Stats.Degraded))
		for _, d := range res.Stats.Degraded {
			degraded[d.Column] = true
		}

		for _, ds := range res.Stats.Dates {
			w.append(res.Year, ds.Column, ds.Present, ds.Parsed, ds.Failed,
				fmt.Sprintf("%.4f", ds.SuccessRate()), ds.FutureNullified, ds.HistoricNullified,
				yesNo(degraded[ds.Column]), strings.Join(ds.FailedExamples, " | "))
		}
	}
	return w
}

func writeReviewSheet(f *excelize.File, r *processor.Report, style int) *sheetWriter {
	w := &sheetWriter{f: f, sheet: SheetManualReview}
	w.header(reviewHeaders, style)

	for _, res := range r.Results() {
		for _, item := range res.Stats.Review {
			w.append(res.Stage.String(), res.Year, item.File, item.Name,
				item.Candidate, item.Member, fmt.Sprintf("%.4f", item.Similarity))
		}
	}
	return w
}

func writeFailureSheet(f *excelize.File, r *processor.Report, style int) *sheetWriter {
	w := &sheetWriter{f: f, sheet: SheetFailures}
	w.header(failureHeaders, style)

	for _, res := range r.Results() {
		if !res.OK() {
			w.append(res.Stage.String(), res.Year, "year failed", res.FailedAt.String(),
				res.Year, errorDetail(res.Err))
		}
		for _, skip := range res.Stats.FilesSkipped {
			w.append(res.Stage.String(), res.Year, "file skipped", "", skip.Path, skip.Reason)
		}
	}
	return w
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
