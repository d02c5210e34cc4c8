package plans

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/planvisor/planvisor/pkg/api"
	"github.com/planvisor/planvisor/pkg/plan"
)

type fakeService struct {
	clusters    []api.Entity
	searchErr   error
	searchCalls int
	lastScope   []string
}

func (f *fakeService) Version(ctx context.Context) (string, error) { return "6.1.0", nil }

func (f *fakeService) CreateScenario(ctx context.Context, dto map[string]any) (*api.Resource, error) {
	return &api.Resource{UUID: "scenario-1"}, nil
}

func (f *fakeService) CreateScenarioNamed(ctx context.Context, name string, dto map[string]any) (*api.Resource, error) {
	return &api.Resource{UUID: "scenario-1", DisplayName: name}, nil
}

func (f *fakeService) ApplyScenario(ctx context.Context, baseMarket, scenarioID string, params url.Values) (*api.Resource, error) {
	return &api.Resource{UUID: "market-1"}, nil
}

func (f *fakeService) Market(ctx context.Context, id string) (*api.Market, error) {
	return &api.Market{UUID: id, State: "SUCCEEDED"}, nil
}

func (f *fakeService) StopMarket(ctx context.Context, id string) error    { return nil }
func (f *fakeService) DeleteMarket(ctx context.Context, id string) error  { return nil }
func (f *fakeService) DeleteScenario(ctx context.Context, id string) error { return nil }

func (f *fakeService) LookupEntity(ctx context.Context, id string) (*api.Entity, error) {
	return &api.Entity{UUID: id}, nil
}

func (f *fakeService) SearchEntities(ctx context.Context, entityType string, scope []string) ([]api.Entity, error) {
	f.searchCalls++
	f.lastScope = scope
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.clusters, nil
}

func TestBalanceSpec(t *testing.T) {
	spec, err := BalanceSpec("balance", []string{"cluster-1", "cluster-2"})
	if err != nil {
		t.Fatalf("BalanceSpec failed: %v", err)
	}
	if spec.Type != plan.OptimizeOnprem {
		t.Errorf("expected OPTIMIZE_ONPREM, got %s", spec.Type)
	}

	spec.Version = "6.1.0"
	dto, err := spec.Render("")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	scope, ok := dto["scope"].([]any)
	if !ok || len(scope) != 2 {
		t.Fatalf("expected 2 scope entries, got %v", dto["scope"])
	}

	cfg, ok := dto["configChanges"].(map[string]any)
	if !ok {
		t.Fatalf("expected configChanges, got %v", dto["configChanges"])
	}
	settings, ok := cfg["automationSettingList"].([]any)
	if !ok || len(settings) != len(balanceSettings) {
		t.Fatalf("expected %d automation settings, got %v", len(balanceSettings), cfg["automationSettingList"])
	}
	for _, s := range settings {
		entry := s.(map[string]any)
		if entry["value"] != false {
			t.Errorf("expected automation disabled, got %v", entry)
		}
	}
}

func TestNewClusterBalanceResolvesScope(t *testing.T) {
	svc := &fakeService{clusters: []api.Entity{
		{UUID: "cluster-1", DisplayName: "Cluster A", ClassName: "Cluster"},
		{UUID: "cluster-2", DisplayName: "Cluster B", ClassName: "Cluster"},
	}}

	p, err := NewClusterBalance(context.Background(), svc, "auto-scope", nil)
	if err != nil {
		t.Fatalf("NewClusterBalance failed: %v", err)
	}
	if svc.searchCalls != 1 {
		t.Errorf("expected one cluster search, got %d", svc.searchCalls)
	}
	if len(svc.lastScope) != 1 || svc.lastScope[0] != "Market" {
		t.Errorf("expected search scoped to the live market, got %v", svc.lastScope)
	}

	dto, err := p.Spec().Render("")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	scope := dto["scope"].([]any)
	if len(scope) != 2 {
		t.Errorf("expected both clusters in scope, got %v", scope)
	}
}

func TestNewClusterBalanceExplicitScopeSkipsSearch(t *testing.T) {
	svc := &fakeService{}
	_, err := NewClusterBalance(context.Background(), svc, "explicit", []string{"cluster-9"})
	if err != nil {
		t.Fatalf("NewClusterBalance failed: %v", err)
	}
	if svc.searchCalls != 0 {
		t.Errorf("expected no cluster search, got %d", svc.searchCalls)
	}
}

func TestNewClusterBalanceSearchFailure(t *testing.T) {
	svc := &fakeService{searchErr: errors.New("search unavailable")}
	_, err := NewClusterBalance(context.Background(), svc, "no-clusters", nil)
	if !plan.IsKind(err, plan.KindPlan) {
		t.Fatalf("expected plan error, got %v", err)
	}
}
