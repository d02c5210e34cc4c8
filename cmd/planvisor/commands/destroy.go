package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// protectedMarkets are the live markets destroy refuses to touch.
var protectedMarkets = map[string]bool{
	"Market":         true,
	"Market_Default": true,
}

func newDestroyCommand() *cobra.Command {
	var scenarioID string

	cmd := &cobra.Command{
		Use:   "destroy <market-id>",
		Short: "Delete a plan market",
		Long: `Delete a plan market and, optionally, the scenario it was created
from. The live market and the default market are refused.`,
		Example: `  # Delete a plan market
  planvisor destroy 214846774991220

  # Delete the market and its scenario
  planvisor destroy 214846774991220 --scenario 214846774991184`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			marketID := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, nil)
			if err != nil {
				return err
			}

			m, err := client.Market(ctx, marketID)
			if err != nil {
				return err
			}
			if protectedMarkets[m.DisplayName] || protectedMarkets[marketID] {
				return fmt.Errorf("refusing to delete system market %s", m.DisplayName)
			}

			if err := client.DeleteMarket(ctx, marketID); err != nil {
				return err
			}
			log.Info().Str("market_id", marketID).Msg("Plan market deleted")

			if scenarioID != "" {
				if err := client.DeleteScenario(ctx, scenarioID); err != nil {
					return fmt.Errorf("market deleted but scenario removal failed: %w", err)
				}
				log.Info().Str("scenario_id", scenarioID).Msg("Scenario deleted")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioID, "scenario", "", "scenario UUID to delete as well")
	return cmd
}
