// =============================================================================
// OPT Observatory ETL - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks the configuration and
// the header consistency of a group of files without writing any output.
//
// COMMAND USAGE:
//   optetl validate                 # every raw year directory
//   optetl validate --dir combined  # every file of one directory as a group
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/opt-observatory-etl/internal/processor"
	"github.com/ginjaninja78/opt-observatory-etl/internal/validation"
	"github.com/ginjaninja78/opt-observatory-etl/pkg/utils"
)

var (
	validateDir   string
	validateYears string
)

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and file header consistency",
	Long: `The validate command loads the configuration, then reconciles the header
rows of a group of files and reports every mismatch. Nothing is written except
an error log in report_dir when mismatches are found.

Without --dir, each raw year directory is checked as its own group. With --dir,
every delimited file directly inside the directory forms one group, which is
how the combined and cleaned directories are checked.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDir, "dir", "", "Check every file in this directory as one group")
	validateCmd.Flags().StringVar(&validateYears, "years", "", "Raw years to check (default all)")
}

func runValidate(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration OK (%d excluded column entries, %d date formats)\n",
		len(cfg.ExcludeColumns), len(cfg.DateFormats))

	driver, err := processor.NewDriver(cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	var mismatches []*validation.SchemaMismatchError
	var failed int

	if validateDir != "" {
		files, err := utils.ListSourceFiles(validateDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Checking %d file(s) in %s\n", len(files), validateDir)

		if err := driver.Processor(false).CheckConsistency(validateDir, files); err != nil {
			failed++
			var mismatch *validation.SchemaMismatchError
			if errors.As(err, &mismatch) {
				mismatches = append(mismatches, mismatch)
			}
		}
	} else {
		years, err := driver.Files().DiscoverYears()
		if err != nil {
			return err
		}
		filter, err := utils.ParseYearFilter(validateYears)
		if err != nil {
			return err
		}
		years = utils.FilterYears(years, filter)

		failures, err := driver.CheckYears(years)
		if err != nil {
			return err
		}
		for _, year := range years {
			yearErr, bad := failures[year]
			if !bad {
				fmt.Fprintf(out, "  ok      %s\n", year)
				continue
			}
			failed++
			fmt.Fprintf(out, "  failed  %s: %v\n", year, yearErr)
			var mismatch *validation.SchemaMismatchError
			if errors.As(yearErr, &mismatch) {
				mismatches = append(mismatches, mismatch)
			}
		}
	}

	if failed == 0 {
		fmt.Fprintln(out, "All headers consistent.")
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, validation.FormatErrors(mismatches))

	if len(mismatches) > 0 {
		if err := driver.Files().EnsureDirectories(); err == nil {
			logPath := filepath.Join(cfg.Paths.ReportDir, utils.GenerateOutputFileName("validation_{timestamp}.log", nil))
			if err := validation.WriteErrorLog(mismatches, logPath); err == nil {
				fmt.Fprintf(out, "Error log: %s\n", logPath)
			}
		}
	}

	return fmt.Errorf("%d group(s) failed validation", failed)
}
