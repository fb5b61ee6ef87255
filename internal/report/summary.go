package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
)

const rule = "================================================================================\n"
const thinRule = "--------------------------------------------------------------------------------\n"

// WriteSummaryLog writes the run summary as plain text.
//
// PARAMETERS:
//   - r: The run report.
//   - path: The summary file path.
//
// RETURNS:
//   - An error if writing fails.
func WriteSummaryLog(r *processor.Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	failures := r.Failures()
	fmt.Fprintf(writer, "OPT Observatory ETL - Run Summary\n"+rule+"\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Workers:        %d\n"+
		"  Keep CPT:       %t\n\n"+
		"Statistics:\n"+
		"  Years Combined: %d\n"+
		"  Years Cleaned:  %d\n"+
		"  Failed:         %d\n\n",
		r.RunID,
		formatTime(r.Started),
		formatTime(r.Finished),
		r.Duration().String(),
		r.Workers,
		r.Options.KeepCPT,
		countOK(r.Combine),
		countOK(r.Clean),
		len(failures))

	writeStage(writer, "Combine Stage", r.Combine)
	writeStage(writer, "Clean Stage", r.Clean)

	if r.DirectoryCheck != nil {
		writer.WriteString("Directory Check:\n" + thinRule)
		writer.WriteString(errorDetail(r.DirectoryCheck) + "\n")
	}

	if len(failures) > 0 {
		writer.WriteString("Failed Years:\n" + thinRule)
		for _, res := range failures {
			fmt.Fprintf(writer, "  Year:      %s (%s)\n", res.Year, res.Stage)
			fmt.Fprintf(writer, "  Failed At: %s\n", res.FailedAt)
			fmt.Fprintf(writer, "  Error:     %v\n\n", res.Err)
		}
	}

	writer.WriteString(rule + "End of Summary\n")

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}

func writeStage(w *bufio.Writer, title string, results []processor.YearResult) {
	var ok []processor.YearResult
	for _, res := range results {
		if res.OK() {
			ok = append(ok, res)
		}
	}
	if len(ok) == 0 {
		return
	}

	w.WriteString(title + ":\n" + thinRule)
	for _, res := range ok {
		s := res.Stats
		fmt.Fprintf(w, "  Year:         %s\n", res.Year)
		fmt.Fprintf(w, "  Output:       %s (%s)\n", res.OutputPath, humanize.Bytes(uint64(res.BytesOut)))
		fmt.Fprintf(w, "  Files:        %d combined, %d skipped\n", s.FilesCombined, len(s.FilesSkipped))
		fmt.Fprintf(w, "  Rows:         %s in, %s out\n", humanize.Comma(int64(s.InitialRows)), humanize.Comma(int64(s.FinalRows)))
		if res.Stage == processor.StageClean {
			fmt.Fprintf(w, "  Duplicates:   %s\n", humanize.Comma(int64(s.DuplicateRowsRemoved)))
			fmt.Fprintf(w, "  CPT Removed:  %s\n", humanize.Comma(int64(s.CPTRowsRemoved)))
			fmt.Fprintf(w, "  Dates Cut:    %d future, %d historic\n", s.FutureDatesNullified, s.HistoricDatesNullified)
			fmt.Fprintf(w, "  ZIPs Padded:  %s\n", humanize.Comma(int64(s.ZipsPadded)))
			for _, d := range s.Degraded {
				fmt.Fprintf(w, "  Degraded:     %s\n", d)
			}
		}
		if len(s.Review) > 0 {
			fmt.Fprintf(w, "  For Review:   %d column pair(s)\n", len(s.Review))
		}
		fmt.Fprintf(w, "  Process Time: %s\n\n", res.Duration)
	}
}

func countOK(results []processor.YearResult) int {
	n := 0
	for _, res := range results {
		if res.OK() {
			n++
		}
	}
	return n
}
