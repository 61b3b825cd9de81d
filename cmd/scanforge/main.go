package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/cmd/scanforge/commands"
	"github.com/scanforge/scanforge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "scanforge",
	Short: "scanforge - CI static analysis pipeline coordinator",
	Long: `scanforge coordinates the stages of a static analysis pipeline run.

Each stage is a separate process invocation; state crosses stages through
a persisted configuration snapshot in the job temp directory.

Stages, in order:
  init       - resolve inputs and tools, persist the snapshot, create databases
  autobuild  - build the project for traced languages
  analyze    - finalize databases, run queries, produce SARIF
  upload     - push results to the platform and await processing

Examples:
  scanforge init --languages go,java --tools linked
  scanforge autobuild
  scanforge analyze
  scanforge upload --repository acme/app --commit $SHA`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON for machine collection")

	rootCmd.AddCommand(commands.InitCmd)
	rootCmd.AddCommand(commands.AutobuildCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.UploadCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
