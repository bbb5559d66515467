package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
)

var (
	importDryRun bool
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import experiments from a file",
	Long: `Import experiment definitions from a YAML or JSON file.

Imported experiments keep the ids in the file; clear the id field to let the
server assign fresh ones.

Examples:
  gotrial import experiments.yaml --env prod
  gotrial import experiments.yaml --env staging --dry-run
  gotrial import experiments.yaml --env prod --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		var importData ExportFormat
		if err := yaml.Unmarshal(data, &importData); err != nil {
			return fmt.Errorf("failed to parse file: %w", err)
		}
		if len(importData.Experiments) == 0 {
			return fmt.Errorf("no experiments found in file")
		}

		if verbose {
			fmt.Printf("Found %d experiment(s) to import\n", len(importData.Experiments))
		}

		if importDryRun {
			fmt.Println("Dry run mode - the following experiments would be imported:")
			for _, exp := range importData.Experiments {
				fmt.Printf("  - %s/%s (type: %s, status: %s, variations: %d)\n",
					exp.Feature, exp.Name, exp.Type, exp.Status, len(exp.Variations))
			}
			return nil
		}

		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		ctx := context.Background()

		successCount := 0
		errorCount := 0

		for _, exp := range importData.Experiments {
			if verbose {
				fmt.Printf("Importing experiment: %s/%s\n", exp.Feature, exp.Name)
			}

			if _, err := c.CreateExperiment(ctx, exp); err != nil {
				errorCount++
				fmt.Fprintf(os.Stderr, "Failed to import experiment '%s/%s': %v\n", exp.Feature, exp.Name, err)
				if !importForce {
					return fmt.Errorf("import failed, use --force to continue on errors")
				}
			} else {
				successCount++
			}
		}

		if !quiet {
			fmt.Printf("Import complete: %d succeeded, %d failed\n", successCount, errorCount)
		}

		if errorCount > 0 && !importForce {
			return fmt.Errorf("import completed with errors")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without importing")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Continue on errors")
}
