// =============================================================================
// OPT Observatory ETL - Run Command
// =============================================================================
//
// This file defines the 'run' command, the main command of the pipeline.
//
// COMMAND USAGE:
//   optetl run [--combine] [--clean] [flags]
//
// FLAGS:
//   --combine   : Combine each raw year directory into <year>_all.csv
//   --clean     : Clean each combined file into cleaned_<year>_all.csv
//   --years     : Restrict the run to some years ("2019,2021" or "2015-2018")
//   --keep-cpt  : Keep CPT records in the cleaned output
//   --workers   : Override processing.max_workers
//   --no-report : Skip the workbook and text summary
//
// PROCESSING PIPELINE:
//   1. Load configuration (fatal on error)
//   2. Combine stage, one worker per year
//   3. Directory-level consistency check of the combined files
//   4. Clean stage, one worker per year
//   5. Print the result table and write the run reports
//
// The command exits non-zero when any year failed, after every year has
// finished and the reports are written.
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
	"github.com/ginjaninja78/opt-observatory-etl/internal/report"
	"github.com/ginjaninja78/opt-observatory-etl/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runCombine  bool
	runClean    bool
	runYears    string
	runKeepCPT  bool
	runWorkers  int
	runNoReport bool
)

// =============================================================================
// RUN COMMAND DEFINITION
// =============================================================================

// runCmd represents the 'run' command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Combine and/or clean the yearly files",
	Long: `The run command executes the combine stage, the clean stage, or both.

Combine reads every source file of raw_dir/<year>/, checks that their headers
reconcile to the same columns, resolves duplicate columns and writes
combined_dir/<year>_all.csv.

Clean reads each combined file, normalizes text, expands state abbreviations,
pads ZIP codes, parses and bounds dates, drops duplicate and CPT rows and
writes cleaned_dir/cleaned_<year>_all.csv.

Years are processed concurrently. A failed year never stops the others.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd)
	},
}

// init registers the run command with the root command and sets up flags.
func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runCombine, "combine", false, "Run the combine stage")
	runCmd.Flags().BoolVar(&runClean, "clean", false, "Run the clean stage")
	runCmd.Flags().StringVar(&runYears, "years", "", "Comma-separated years or ranges to process (default all)")
	runCmd.Flags().BoolVar(&runKeepCPT, "keep-cpt", false, "Keep CPT records in the cleaned output")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Maximum concurrent years (default processing.max_workers)")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "Do not write the run workbook and summary")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runPipeline(cmd *cobra.Command) error {
	if !runCombine && !runClean {
		return fmt.Errorf("nothing to do: pass --combine, --clean, or both")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	years, err := utils.ParseYearFilter(runYears)
	if err != nil {
		return err
	}

	driver, err := processor.NewDriver(cfg, log)
	if err != nil {
		return err
	}

	rep, err := driver.Run(cmd.Context(), processor.Options{
		Combine: runCombine,
		Clean:   runClean,
		Years:   years,
		KeepCPT: runKeepCPT,
		Workers: runWorkers,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report.RenderTable(out, rep)

	if !runNoReport {
		paths, err := report.Write(rep, cfg.Paths.ReportDir)
		if err != nil {
			log.Error("failed to write run report", slog.Any("error", err))
		} else {
			fmt.Fprintf(out, "\nReport:  %s\nSummary: %s\n", paths.Workbook, paths.Summary)
		}
	}

	if failures := rep.Failures(); len(failures) > 0 {
		return fmt.Errorf("%d year(s) failed", len(failures))
	}
	return nil
}
