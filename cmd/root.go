package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// General exit codes for CLI commands. A `run` that completes exits with
// the bitfield from report.ExitCode instead.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "testforge",
	Short: "Expand, schedule, and report on parameterized test suites",
	Long: `testforge expands parameterized test definitions into a dependency
DAG of concrete cases, admits them against a typed resource pool, and
drives them to completion concurrently or through an HPC batch scheduler.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main at
// build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the CLI entry point called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "testforge version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLocationCmd())
	rootCmd.AddCommand(newRebaselineCmd())
}
