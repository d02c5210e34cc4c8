package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/planvisor/planvisor/pkg/config"
	"github.com/planvisor/planvisor/pkg/plan"
	"github.com/planvisor/planvisor/pkg/stores"
)

func newRunCommand() *cobra.Command {
	var (
		async        bool
		teardown     bool
		keepScenario bool
		baseMarket   string
		marketName   string
	)

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Run a capacity plan",
		Long: `Submit a plan document to the analysis service and supervise the run.

The plan document is compiled for the server's protocol version, checked
against the configured policies, and applied to the base market. The
command polls the plan market until it reaches a terminal state, retrying
recoverable failures with fresh remote resources.`,
		Example: `  # Run a plan and wait for the result
  planvisor run hardware-refresh.yaml

  # Submit without waiting
  planvisor run hardware-refresh.yaml --async

  # Run and remove the plan market afterwards
  planvisor run hardware-refresh.yaml --delete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pf, err := config.LoadPlanFile(args[0])
			if err != nil {
				return err
			}
			spec, err := pf.ToSpec()
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

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			opts := []plan.Option{plan.WithLogger(log.Logger), plan.WithMetrics(metrics)}
			if baseMarket == "" {
				baseMarket = cfg.Connection.BaseMarket
			}
			if baseMarket != "" {
				opts = append(opts, plan.WithBaseMarket(baseMarket))
			}
			if marketName != "" {
				opts = append(opts, plan.WithMarketName(marketName))
			}

			p, err := plan.NewPlan(ctx, client, spec, opts...)
			if err != nil {
				return err
			}

			engine, err := newPolicyEngine(ctx, cfg)
			if err != nil {
				return err
			}
			if engine != nil {
				dto, err := spec.Render("")
				if err != nil {
					return err
				}
				if err := checkPolicies(ctx, engine, cfg, dto, spec.Version, spec.IgnoreConstraints); err != nil {
					return err
				}
			}

			runID := recordRunStart(ctx, store, p)

			if async {
				state, err := p.RunAsync(ctx)
				recordRunMarket(ctx, store, runID, p)
				if err != nil {
					recordRunEnd(ctx, store, runID, p, err)
					return err
				}
				log.Info().
					Str("market_id", p.MarketID()).
					Str("state", string(state)).
					Msg("Plan submitted; not waiting for completion")
				return printResult(p, state)
			}

			state, err := p.Run(ctx)
			recordRunMarket(ctx, store, runID, p)
			recordRunEnd(ctx, store, runID, p, err)
			if err != nil {
				return err
			}

			log.Info().
				Str("market_id", p.MarketID()).
				Str("state", string(state)).
				Bool("unplaced", p.UnplacedEntities()).
				Dur("duration", p.Duration()).
				Msg("Plan finished")

			if teardown {
				if err := p.Delete(ctx, keepScenario); err != nil {
					return err
				}
				log.Info().Str("market_id", p.MarketID()).Msg("Plan market removed")
			}
			return printResult(p, state)
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "submit the plan without waiting for completion")
	cmd.Flags().BoolVar(&teardown, "delete", false, "delete the plan market after completion")
	cmd.Flags().BoolVar(&keepScenario, "keep-scenario", false, "keep the scenario when deleting the market")
	cmd.Flags().StringVar(&baseMarket, "base-market", "", "market to apply the scenario to")
	cmd.Flags().StringVar(&marketName, "market-name", "", "display name for the plan market")

	return cmd
}

// recordRunStart opens the history record. A nil store records nothing.
func recordRunStart(ctx context.Context, store stores.Store, p *plan.Plan) string {
	if store == nil {
		return ""
	}
	runID := uuid.NewString()
	run := &stores.PlanRun{
		ID:            runID,
		PlanName:      p.Spec().Name,
		PlanType:      string(p.Spec().Type),
		ServerVersion: p.Spec().Version,
		Outcome:       stores.RunOutcomeRunning,
		StartedAt:     time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Debug().Err(err).Msg("failed to record run start")
		return ""
	}
	appendRunEvent(ctx, store, runID, stores.EventLevelInfo, "plan submitted")
	return runID
}

func appendRunEvent(ctx context.Context, store stores.Store, runID string, level stores.EventLevel, msg string) {
	if store == nil || runID == "" {
		return
	}
	event := &stores.RunEvent{
		RunID:     &runID,
		Level:     level,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		log.Debug().Err(err).Msg("failed to append run event")
	}
}

func recordRunMarket(ctx context.Context, store stores.Store, runID string, p *plan.Plan) {
	if store == nil || runID == "" {
		return
	}
	if err := store.UpdateRunMarket(ctx, runID, p.ScenarioID(), p.MarketID(), p.MarketName()); err != nil {
		log.Debug().Err(err).Msg("failed to record run market")
	}
}

func recordRunEnd(ctx context.Context, store stores.Store, runID string, p *plan.Plan, runErr error) {
	if store == nil || runID == "" {
		return
	}
	outcome := stores.RunOutcomeSucceeded
	var errMsg *string
	switch {
	case plan.IsKind(runErr, plan.KindTimeout):
		outcome = stores.RunOutcomeTimeout
	case runErr != nil:
		outcome = stores.RunOutcomeFailed
	case p.Result() != plan.StateSucceeded:
		outcome = stores.RunOutcomeStopped
	}
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := store.FinishRun(ctx, runID, outcome, errMsg, p.Attempts(), p.Duration()); err != nil {
		log.Debug().Err(err).Msg("failed to record run end")
	}
	level := stores.EventLevelInfo
	if runErr != nil {
		level = stores.EventLevelError
	}
	appendRunEvent(ctx, store, runID, level, fmt.Sprintf("plan finished: %s", outcome))
}

func printResult(p *plan.Plan, state plan.MarketState) error {
	if jsonOutput {
		out := map[string]any{
			"plan":        p.Spec().Name,
			"scenario_id": p.ScenarioID(),
			"market_id":   p.MarketID(),
			"market_name": p.MarketName(),
			"state":       state,
			"unplaced":    p.UnplacedEntities(),
			"duration_ms": p.Duration().Milliseconds(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Printf("%s: %s (market %s)\n", p.Spec().Name, state, p.MarketID())
	return nil
}
