package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a single experiment",
	Long: `Get one experiment by id, including per-variation counters.

Examples:
  gotrial get 4f1c2d9a-... --env prod
  gotrial get 4f1c2d9a-... --env prod --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		exp, err := c.GetExperiment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		if !quiet {
			return cli.PrintExperiment(exp, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
