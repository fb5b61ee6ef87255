// =============================================================================
// OPT Observatory ETL - Run Reports
// =============================================================================
//
// This module turns a processor.Report into the artifacts an operator reads
// after a run:
//   - report_dir/run_<timestamp>_<id>.xlsx: the workbook (workbook.go)
//   - report_dir/run_<timestamp>_<id>.txt: the text summary (summary.go)
//   - a terminal table of per-year results (table.go)
//
// <id> is the first eight characters of the run ID, so both files and the
// run's log lines share one identifier.
//
// =============================================================================

package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
	"github.com/ginjaninja78/opt-observatory-etl/internal/validation"
	"github.com/ginjaninja78/opt-observatory-etl/pkg/utils"
)

// FileNameFormat is the base name of both report files.
const FileNameFormat = "run_{timestamp}_{run}"

// Paths holds the report files written for one run.
type Paths struct {
	Workbook string
	Summary  string
}

// Write writes the workbook and the text summary of a run into dir.
//
// PARAMETERS:
//   - r: The run report.
//   - dir: The report directory. It is created if needed.
//
// RETURNS:
//   - The paths of both files.
//   - An error if either file cannot be written.
func Write(r *processor.Report, dir string) (Paths, error) {
	if err := utils.NewFileManager("", "", "", dir).EnsureDirectories(); err != nil {
		return Paths{}, err
	}

	base := BaseName(r)
	paths := Paths{
		Workbook: filepath.Join(dir, base+".xlsx"),
		Summary:  filepath.Join(dir, base+".txt"),
	}

	if err := WriteWorkbook(r, paths.Workbook); err != nil {
		return Paths{}, err
	}
	if err := WriteSummaryLog(r, paths.Summary); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// BaseName returns the file name, without extension, of a run's reports.
func BaseName(r *processor.Report) string {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return utils.GenerateOutputFileName(FileNameFormat, map[string]string{"run": id})
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// status returns the display status of a result.
func status(res processor.YearResult) string {
	if res.OK() {
		return "ok"
	}
	return "failed"
}

// errorDetail returns the multi-line detail of a schema mismatch, or the
// error text.
func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	var mismatch *validation.SchemaMismatchError
	if errors.As(err, &mismatch) {
		return mismatch.Detail()
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}
