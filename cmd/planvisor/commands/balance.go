package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/planvisor/planvisor/pkg/plan"
	"github.com/planvisor/planvisor/pkg/plans"
)

func newBalanceCommand() *cobra.Command {
	var (
		name  string
		scope []string
		async bool
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Run a cluster-balance plan",
		Long: `Run the standard cluster-balance plan used for headroom analysis.

The plan is an on-premises optimization with the automation settings
disabled, so the market can only redistribute the existing load across
the scoped clusters. Without --scope the plan covers every cluster in
the live market.`,
		Example: `  # Balance all clusters
  planvisor balance

  # Balance specific clusters
  planvisor balance --scope cluster-uuid-1 --scope cluster-uuid-2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			metrics, shutdownTracing, err := setupTelemetry(cfg)
			if err != nil {
				return err
			}
			defer shutdownTracing()

			client, err := newClient(cfg, metrics)
			if err != nil {
				return err
			}

			p, err := plans.NewClusterBalance(ctx, client, name, scope,
				plan.WithLogger(log.Logger), plan.WithMetrics(metrics))
			if err != nil {
				return err
			}

			var state plan.MarketState
			if async {
				state, err = p.RunAsync(ctx)
			} else {
				state, err = p.Run(ctx)
			}
			if err != nil {
				return err
			}
			return printResult(p, state)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "scenario display name")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "cluster UUIDs to balance (default: all clusters)")
	cmd.Flags().BoolVar(&async, "async", false, "submit the plan without waiting for completion")

	return cmd
}
