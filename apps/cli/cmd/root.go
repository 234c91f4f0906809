package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "greq",
	Short: "Declarative HTTP requests with built-in assertions",
	Long: `greq executes HTTP requests described in plain .greq files and
checks the responses against the expectations written in the same file.
A file can extend another file and depend on the response of another
request, so whole flows stay readable as a set of small text files.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
