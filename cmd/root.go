// =============================================================================
// OPT Observatory ETL - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (optetl)
//   ├── runCmd      (optetl run)
//   ├── validateCmd (optetl validate)
//   ├── inspectCmd  (optetl inspect years|columns|info|sample|head)
//   └── versionCmd  (optetl version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration for the subcommands
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/logger"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
// This can be overridden using the --config flag or OPTETL_CONFIG.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "optetl",
	Short: "OPT Observatory ETL - Combine and clean yearly OPT record exports",
	Long: `optetl turns yearly directories of raw OPT record exports into one combined
file and one cleaned file per fiscal year.

Key Features:
  - Header reconciliation across inconsistently named source files
  - Schema consistency checks that fail loudly on mismatched files
  - Duplicate-column resolution with a manual review list
  - Text, state, ZIP and date cleaning driven by config.yaml
  - Years processed in parallel with per-year failure isolation

Example Usage:
  optetl run --combine --clean          # Run both stages for every year
  optetl run --clean --years 2019-2021  # Re-clean some years
  optetl validate                       # Check configuration and raw headers
  optetl inspect info 2020              # Describe a cleaned year`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print the help message.
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main(). An interrupt
// cancels the context handed to the commands.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// init sets up the global flags.
func init() {
	// Persistent flags are available to this command and all subcommands.
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads .env, resolves the configuration path and loads the
// configuration. --verbose forces debug logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	path := config.ResolvePath(cfgFile, cmd.Flags().Changed("config"))
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the logger described by the configuration.
func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Writer:    os.Stderr,
		Format:    cfg.Logging.Format,
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: verbose,
	})
}
