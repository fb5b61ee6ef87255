// =============================================================================
// OPT Observatory ETL - Inspect Command
// =============================================================================
//
// This file defines the 'inspect' command group, read-only access to the
// cleaned output for quick exploration.
//
// COMMAND USAGE:
//   optetl inspect years
//   optetl inspect columns [year]
//   optetl inspect info [year...]
//   optetl inspect sample <year> [-n 1000] [--columns A,B]
//   optetl inspect head <year> [-n 10] [--columns A,B]
//
// =============================================================================

package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/opt-observatory-etl/internal/loader"
	"github.com/ginjaninja78/opt-observatory-etl/internal/report"
)

var (
	inspectDir     string
	sampleRows     int
	headRows       int
	inspectColumns []string
)

// inspectCmd represents the 'inspect' command group.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Explore the cleaned yearly files",
}

var inspectYearsCmd = &cobra.Command{
	Use:   "years",
	Short: "List the cleaned years",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLoader(cmd)
		if err != nil {
			return err
		}
		for _, year := range l.Years() {
			fmt.Fprintln(cmd.OutOrStdout(), year)
		}
		return nil
	},
}

var inspectColumnsCmd = &cobra.Command{
	Use:   "columns [year]",
	Short: "List the columns of a year (default the most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLoader(cmd)
		if err != nil {
			return err
		}
		year := ""
		if len(args) == 1 {
			year = args[0]
		}
		cols, err := l.Columns(year)
		if err != nil {
			return err
		}
		for i, col := range cols {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s\n", i+1, col)
		}
		return nil
	},
}

var inspectInfoCmd = &cobra.Command{
	Use:   "info [year...]",
	Short: "Describe cleaned files (default every year)",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLoader(cmd)
		if err != nil {
			return err
		}
		years := args
		if len(years) == 0 {
			years = l.Years()
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Year", "File", "Size", "Rows (est.)", "Columns"})
		for _, year := range years {
			info, err := l.Info(year)
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{info.Year, info.Path, info.SizeHuman, humanize.Comma(int64(info.EstimatedRows)), info.Columns})
		}
		t.Render()
		return nil
	},
}

var inspectSampleCmd = &cobra.Command{
	Use:   "sample <year>",
	Short: "Print a reproducible random sample of a year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLoader(cmd)
		if err != nil {
			return err
		}
		sample, err := l.Sample(args[0], sampleRows, inspectColumns)
		if err != nil {
			return err
		}
		report.RenderRows(cmd.OutOrStdout(), sample, 0)
		return nil
	},
}

var inspectHeadCmd = &cobra.Command{
	Use:   "head <year>",
	Short: "Print the first rows of a year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLoader(cmd)
		if err != nil {
			return err
		}
		rows, err := l.LoadYear(args[0], loader.Options{Columns: inspectColumns, Limit: headRows})
		if err != nil {
			return err
		}
		report.RenderRows(cmd.OutOrStdout(), rows, 0)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectYearsCmd, inspectColumnsCmd, inspectInfoCmd, inspectSampleCmd, inspectHeadCmd)

	inspectCmd.PersistentFlags().StringVar(&inspectDir, "dir", "", "Cleaned data directory (default paths.cleaned_dir)")

	inspectSampleCmd.Flags().IntVarP(&sampleRows, "rows", "n", 1000, "Number of rows")
	inspectHeadCmd.Flags().IntVarP(&headRows, "rows", "n", 10, "Number of rows")
	for _, c := range []*cobra.Command{inspectSampleCmd, inspectHeadCmd} {
		c.Flags().StringSliceVar(&inspectColumns, "columns", nil, "Columns to show, comma-separated")
	}
}

// openLoader opens the cleaned directory named by --dir or the configuration.
func openLoader(cmd *cobra.Command) (*loader.Loader, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dir := cfg.Paths.CleanedDir
	if inspectDir != "" {
		dir = inspectDir
	}

	for i, col := range inspectColumns {
		inspectColumns[i] = strings.TrimSpace(col)
	}

	l, err := loader.New(dir, cfg.CSVSettings)
	if err != nil {
		return nil, err
	}
	return l.WithLogger(newLogger(cfg)), nil
}
