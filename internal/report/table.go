package report

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// RenderTable writes one row per year and stage to w.
func RenderTable(w io.Writer, r *processor.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"Stage", "Year", "Status", "Rows In", "Rows Out", "Duplicates", "CPT", "Skipped", "Output", "Time"})
	for _, res := range r.Results() {
		s := res.Stats
		size := ""
		if res.BytesOut > 0 {
			size = humanize.Bytes(uint64(res.BytesOut))
		}
		state := status(res)
		if !res.OK() {
			state += " (" + res.FailedAt.String() + ")"
		}
		t.AppendRow(table.Row{
			res.Stage.String(), res.Year, state,
			humanize.Comma(int64(s.InitialRows)), humanize.Comma(int64(s.FinalRows)),
			humanize.Comma(int64(s.DuplicateRowsRemoved)), humanize.Comma(int64(s.CPTRowsRemoved)),
			len(s.FilesSkipped), size, res.Duration.Round(time.Millisecond).String(),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "failures", len(r.Failures())})
	t.Render()
}

// RenderRows writes the first rows of a table, missing cells shown as null.
func RenderRows(w io.Writer, tbl *types.Table, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, tbl.Width())
	for i, name := range tbl.Names() {
		header[i] = name
	}
	t.AppendHeader(header)

	if limit > 0 {
		tbl = tbl.Head(limit)
	}
	cols := tbl.Columns()
	for i := 0; i < tbl.Rows(); i++ {
		row := make(table.Row, len(cols))
		for j, col := range cols {
			if v, ok := col.Value(i); ok {
				row[j] = v
			} else {
				row[j] = "null"
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}
