package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <market-id>",
		Short: "Stop a running plan market",
		Long: `Request a stop of a running plan market. The stop is asynchronous on
the server side; the market moves to a stopped state once the analysis
engine notices the request.`,
		Example: `  planvisor stop 214846774991220`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, nil)
			if err != nil {
				return err
			}

			if err := client.StopMarket(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Info().Str("market_id", args[0]).Msg("Stop requested")
			return nil
		},
	}
	return cmd
}
