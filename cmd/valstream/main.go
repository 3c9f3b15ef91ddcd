package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/valstream/cmd/valstream/commands"
	"github.com/teranos/valstream/logger"
)

var rootCmd = &cobra.Command{
	Use:   "valstream",
	Short: "valstream - streaming shape validation of SPARQL query results",
	Long: `valstream runs a SPARQL query, validates the target instances against
a network of shapes and streams every result row with its validation verdicts.

Available commands:
  run     - Execute one query and print its rows
  serve   - Start the HTTP front end
  am      - Show configuration ("I am")
  version - Show build information

Examples:
  valstream run "SELECT ?x WHERE { ?x a <http://ex.org/Actor> }" --target-shape Actor
  valstream serve -v
  valstream am show`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "Configuration file (default: system, user and project am.toml)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
