package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/planvisor/planvisor/pkg/config"
	"github.com/planvisor/planvisor/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var serverVersion string

	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan document against the configured policies",
		Long: `Parse a plan document, compile it, and evaluate the result against
the builtin and configured policies without contacting the service.`,
		Example: `  # Check a plan before running it
  planvisor validate hardware-refresh.yaml --server-version 7.22.0`,
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
			dto, err := spec.Render(serverVersion)
			if err != nil {
				return err
			}

			engine, err := policyEngineFromConfig(ctx, cfg)
			if err != nil {
				return err
			}

			result, err := engine.Evaluate(ctx, &policy.Input{
				Scenario: dto,
				Context: &policy.Context{
					ServerVersion:     serverVersion,
					IgnoreConstraints: spec.IgnoreConstraints,
					Operation:         "validate",
				},
			})
			if err != nil {
				return err
			}

			for _, w := range result.Warnings {
				log.Warn().Msg(w)
			}
			for _, v := range result.Violations {
				fmt.Printf("%s [%s] %s\n", v.Policy, v.Severity, v.Message)
			}
			if !result.Allowed {
				return fmt.Errorf("plan rejected by %d policy violation(s)", len(result.Violations))
			}

			fmt.Printf("%s: ok (%d policies evaluated)\n", args[0], len(result.EvaluatedPolicies))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverVersion, "server-version", "", "protocol version to compile for (required)")
	cmd.MarkFlagRequired("server-version")

	return cmd
}
