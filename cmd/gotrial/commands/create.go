package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
	"github.com/mbolshakov/gotrial/internal/store"
)

var (
	createActivate bool
)

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create an experiment from a definition file",
	Long: `Create an experiment from a YAML definition file.

The file holds one experiment: feature, name, type (ab, interleaving, mab,
external), optional audience, and the variation resolver configs.

Examples:
  gotrial create experiment.yaml --env prod
  gotrial create experiment.yaml --env prod --activate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		var exp store.Experiment
		if err := yaml.Unmarshal(data, &exp); err != nil {
			return fmt.Errorf("failed to parse file: %w", err)
		}
		if createActivate {
			exp.Status = store.StatusActive
		}

		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		created, err := c.CreateExperiment(context.Background(), exp)
		if err != nil {
			return fmt.Errorf("failed to create experiment: %w", err)
		}

		if !quiet {
			return cli.PrintExperiment(created, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().BoolVar(&createActivate, "activate", false, "Create the experiment in ACTIVE status")
}
