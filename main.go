// =============================================================================
// OPT Observatory ETL - Main Entry Point
// =============================================================================
//
// This is the main entry point for the optetl CLI application. It delegates
// command execution to the cmd package.
//
// USAGE:
//   optetl run --combine --clean  - Combine and clean every year
//   optetl validate               - Check configuration and file headers
//   optetl inspect years          - Explore the cleaned output
//   optetl version                - Display the application version
//
// ARCHITECTURE:
//   - cmd/      : CLI command definitions (Cobra)
//   - internal/ : Pipeline stages, configuration, reports
//   - pkg/      : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/opt-observatory-etl/cmd"
)

func main() {
	cmd.Execute()
}
