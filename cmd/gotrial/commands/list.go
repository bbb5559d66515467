package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
	"github.com/mbolshakov/gotrial/internal/store"
)

var (
	listFeature    string
	listActiveOnly bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	Long: `List experiments, optionally filtered by feature.

Examples:
  gotrial list --env prod
  gotrial list --env prod --feature home_product_recs
  gotrial list --env prod --active-only --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		experiments, err := c.ListExperiments(context.Background(), listFeature)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if listActiveOnly {
			var active []store.Experiment
			for _, e := range experiments {
				if e.Status == store.StatusActive {
					active = append(active, e)
				}
			}
			experiments = active
		}

		if !quiet {
			if len(experiments) == 0 {
				fmt.Println("No experiments found")
				return nil
			}
			return cli.PrintExperiments(experiments, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFeature, "feature", "", "Filter by feature")
	listCmd.Flags().BoolVar(&listActiveOnly, "active-only", false, "Show only active experiments")
}
