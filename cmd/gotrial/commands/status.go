package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbolshakov/gotrial/internal/cli"
	"github.com/mbolshakov/gotrial/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <DRAFT|ACTIVE|EXPIRED>",
	Short: "Transition an experiment's status",
	Long: `Transition an experiment between DRAFT, ACTIVE and EXPIRED.

Activating fails when the experiment's feature already has another active
experiment; expire that one first.

Examples:
  gotrial status 4f1c2d9a-... ACTIVE --env prod
  gotrial status 4f1c2d9a-... EXPIRED --env prod`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)

		status := strings.ToUpper(args[1])
		if err := c.SetStatus(context.Background(), args[0], status); err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}

		if !quiet {
			fmt.Printf("Experiment %s is now %s\n", args[0], status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
