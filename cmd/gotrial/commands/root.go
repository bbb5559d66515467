package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	env     string
	format  string
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gotrial",
	Short: "CLI tool for managing recommendation experiments",
	Long: `Gotrial is a command-line tool for managing experiments in the gotrial service.

It provides commands for creating, inspecting, activating and deleting
experiments, as well as importing and exporting experiment definitions.

Examples:
  gotrial list --env prod
  gotrial create experiment.yaml --env prod
  gotrial status <id> ACTIVE --env prod
  gotrial export --env prod --output experiments.yaml
  gotrial import experiments.yaml --env staging`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the gotrial API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Named deployment from the config file")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}
