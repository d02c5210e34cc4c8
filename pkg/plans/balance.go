// Package plans provides canned scenario builders on top of the plan
// package.
package plans

import (
	"context"

	"github.com/planvisor/planvisor/pkg/api"
	"github.com/planvisor/planvisor/pkg/plan"
)

// Service is the analysis-service surface the canned builders need. An
// api.Client satisfies it.
type Service interface {
	plan.Service
	SearchEntities(ctx context.Context, entityType string, scope []string) ([]api.Entity, error)
}

// balanceSettings are the automation settings a balance plan disables so the
// market redistributes the existing load instead of resizing or provisioning
// its way out.
var balanceSettings = []plan.AutomationSetting{
	plan.ProvisionStorage,
	plan.SuspendStorage,
	plan.ProvisionHost,
	plan.SuspendHost,
	plan.Resize,
}

// BalanceSpec builds the standard cluster-balance specification used for
// headroom analysis: an on-prem optimization over the given cluster scope
// with all automation disabled.
func BalanceSpec(name string, scope []string) (*plan.Spec, error) {
	spec := plan.NewSpec(name)
	spec.Type = plan.OptimizeOnprem
	spec.SetScope(scope...)
	for _, s := range balanceSettings {
		if err := spec.ChangeAutomationSetting(s, false); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// NewClusterBalance creates a cluster-balance plan against svc. A nil scope
// is resolved to every cluster in the base market.
func NewClusterBalance(ctx context.Context, svc Service, name string, scope []string, opts ...plan.Option) (*plan.Plan, error) {
	if scope == nil {
		clusters, err := svc.SearchEntities(ctx, "Cluster", []string{"Market"})
		if err != nil {
			return nil, plan.NewPlanError("unable to enumerate clusters for balance plan", err)
		}
		for _, c := range clusters {
			scope = append(scope, c.UUID)
		}
	}

	spec, err := BalanceSpec(name, scope)
	if err != nil {
		return nil, err
	}
	return plan.NewPlan(ctx, svc, spec, opts...)
}
