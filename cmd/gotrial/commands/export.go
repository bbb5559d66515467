package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
	"github.com/mbolshakov/gotrial/internal/store"
)

var (
	exportOutput  string
	exportFeature string
)

// ExportFormat represents the structure for exporting experiments
type ExportFormat struct {
	Experiments []store.Experiment `yaml:"experiments" json:"experiments"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export experiments to a file",
	Long: `Export experiment definitions to a YAML or JSON file.

Examples:
  gotrial export --env prod --output experiments.yaml
  gotrial export --env prod --feature home_product_recs --format json
  gotrial export --env prod > backup.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		experiments, err := c.ListExperiments(context.Background(), exportFeature)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		exportData := ExportFormat{Experiments: experiments}

		var output *os.File
		if exportOutput == "" || exportOutput == "-" {
			output = os.Stdout
		} else {
			output, err = os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer output.Close()
		}

		switch format {
		case "json":
			encoder := json.NewEncoder(output)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(exportData); err != nil {
				return fmt.Errorf("failed to encode JSON: %w", err)
			}
		case "yaml", "table":
			// Default to YAML for export
			encoder := yaml.NewEncoder(output)
			defer encoder.Close()
			encoder.SetIndent(2)
			if err := encoder.Encode(exportData); err != nil {
				return fmt.Errorf("failed to encode YAML: %w", err)
			}
		default:
			return fmt.Errorf("unsupported export format: %s", format)
		}

		if exportOutput != "" && exportOutput != "-" && !quiet {
			fmt.Fprintf(os.Stderr, "Successfully exported %d experiment(s) to %s\n", len(experiments), exportOutput)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportFeature, "feature", "", "Export only one feature's experiments")
}
