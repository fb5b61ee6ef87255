// =============================================================================
// OPT Observatory ETL - Version Command
// =============================================================================
//
// This file defines the 'version' command.
//
// COMMAND USAGE:
//   optetl version
//
// OUTPUT:
//   OPT Observatory ETL 1.2.0
//   Commit:     3f9c2e1 (modified)
//   Built:      2026-03-02T10:14:00Z
//   Go Version: go1.24.11 linux/amd64
//
// Version may be stamped with:
//   -ldflags "-X 'github.com/ginjaninja78/opt-observatory-etl/cmd.Version=1.2.0'"
// Commit and build time come from the VCS stamp the Go toolchain embeds.
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is the application version.
var Version = "dev"

// buildInfo is the VCS stamp of the running binary.
type buildInfo struct {
	commit   string
	modified bool
	time     string
}

func readBuildInfo() buildInfo {
	info := buildInfo{commit: "unknown", time: "unknown"}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.commit = s.Value
			if len(info.commit) > 7 {
				info.commit = info.commit[:7]
			}
		case "vcs.modified":
			info.modified = s.Value == "true"
		case "vcs.time":
			info.time = s.Value
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info := readBuildInfo()

		commit := info.commit
		if info.modified {
			commit += " (modified)"
		}

		fmt.Fprintf(out, "OPT Observatory ETL %s\n", Version)
		fmt.Fprintf(out, "Commit:     %s\n", commit)
		fmt.Fprintf(out, "Built:      %s\n", info.time)
		fmt.Fprintf(out, "Go Version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
