package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an experiment",
	Long: `Delete an experiment and its counters.

Examples:
  gotrial delete 4f1c2d9a-... --env prod --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteForce {
			return fmt.Errorf("deleting discards the experiment's counters, pass --force to confirm")
		}

		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		if err := c.DeleteExperiment(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete experiment: %w", err)
		}

		if !quiet {
			fmt.Printf("Deleted experiment %s\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Confirm deletion")
}
