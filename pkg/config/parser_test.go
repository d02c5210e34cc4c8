package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/planvisor/planvisor/pkg/plan"
)

const samplePlan = `
name: hardware-refresh
type: CUSTOM
timeout: 2h
poll_interval: 30s
max_attempts: 5
scope:
  - cluster-1
  - cluster-2
projection_days: [30, 60, 90]
changes:
  - action: add
    targets: [vm-template-1]
    count: 10
    projection: [30]
  - action: replace
    targets: [host-1, host-2]
    new_target: host-template-new
automation:
  - setting: provisionPM
    enabled: false
  - setting: utilTarget
    value: 80
max_utilization:
  - targets: [host-3]
    percentage: 75
`

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write plan file: %v", err)
	}
	return path
}

func TestLoadPlanFile(t *testing.T) {
	pf, err := LoadPlanFile(writePlanFile(t, samplePlan))
	if err != nil {
		t.Fatalf("LoadPlanFile failed: %v", err)
	}

	if pf.Name != "hardware-refresh" {
		t.Errorf("expected name hardware-refresh, got %s", pf.Name)
	}
	if pf.Timeout.Std() != 2*time.Hour {
		t.Errorf("expected 2h timeout, got %s", pf.Timeout.Std())
	}
	if pf.PollInterval.Std() != 30*time.Second {
		t.Errorf("expected 30s poll interval, got %s", pf.PollInterval.Std())
	}
	if pf.MaxAttempts != 5 {
		t.Errorf("expected 5 max attempts, got %d", pf.MaxAttempts)
	}
	if len(pf.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(pf.Changes))
	}
	if pf.Changes[0].Count != 10 {
		t.Errorf("expected count 10, got %d", pf.Changes[0].Count)
	}
}

func TestLoadPlanFileNotFound(t *testing.T) {
	if _, err := LoadPlanFile("/nonexistent/plan.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParsePlanFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad action", "changes:\n  - action: clone\n    targets: [vm-1]\n"},
		{"no targets", "changes:\n  - action: add\n    targets: []\n"},
		{"bad setting", "automation:\n  - setting: warp\n    enabled: true\n"},
		{"bad type", "type: IMPOSSIBLE\n"},
		{"bad duration", "timeout: soon\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePlanFile([]byte(tt.yaml)); err == nil {
				t.Errorf("expected parse error for %s", tt.name)
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	pf, err := ParsePlanFile([]byte("timeout: 90\n"))
	if err != nil {
		t.Fatalf("ParsePlanFile failed: %v", err)
	}
	if pf.Timeout.Std() != 90*time.Second {
		t.Errorf("expected bare number to mean seconds, got %s", pf.Timeout.Std())
	}
}

func TestToSpec(t *testing.T) {
	pf, err := ParsePlanFile([]byte(samplePlan))
	if err != nil {
		t.Fatalf("ParsePlanFile failed: %v", err)
	}

	spec, err := pf.ToSpec()
	if err != nil {
		t.Fatalf("ToSpec failed: %v", err)
	}

	if spec.Name != "hardware-refresh" {
		t.Errorf("expected name hardware-refresh, got %s", spec.Name)
	}
	if spec.Type != plan.Custom {
		t.Errorf("expected CUSTOM type, got %s", spec.Type)
	}
	if spec.MaxAttempts != 5 {
		t.Errorf("expected 5 max attempts, got %d", spec.MaxAttempts)
	}

	days := spec.ProjectionDays()
	want := []int{0, 30, 60, 90}
	if len(days) != len(want) {
		t.Fatalf("expected projection days %v, got %v", want, days)
	}
	for i, d := range want {
		if days[i] != d {
			t.Fatalf("expected projection days %v, got %v", want, days)
		}
	}

	dto, err := spec.Render("6.1.0")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	scope, ok := dto["scope"].([]any)
	if !ok || len(scope) != 2 {
		t.Errorf("expected 2 scope entries, got %v", dto["scope"])
	}
}

func TestToSpecIgnoreConstraints(t *testing.T) {
	pf, err := ParsePlanFile([]byte("name: unconstrained\nignore_constraints: true\n"))
	if err != nil {
		t.Fatalf("ParsePlanFile failed: %v", err)
	}
	spec, err := pf.ToSpec()
	if err != nil {
		t.Fatalf("ToSpec failed: %v", err)
	}
	if !spec.IgnoreConstraints {
		t.Error("expected IgnoreConstraints set on spec")
	}
	if got := spec.MarketParams().Get("ignore_constraints"); got != "true" {
		t.Errorf("expected ignore_constraints market param, got %q", got)
	}
}

func TestToSpecRelievePressure(t *testing.T) {
	doc := `
name: rebalance
relieve_pressure:
  sources: [cluster-hot]
  destinations: [cluster-cold]
  projection: 7
`
	pf, err := ParsePlanFile([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePlanFile failed: %v", err)
	}
	spec, err := pf.ToSpec()
	if err != nil {
		t.Fatalf("ToSpec failed: %v", err)
	}

	dto, err := spec.Render("6.1.0")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	scope, ok := dto["scope"].([]any)
	if !ok || len(scope) != 2 {
		t.Errorf("expected both clusters in scope, got %v", dto["scope"])
	}
}

func TestToSpecAutomationRequiresValue(t *testing.T) {
	pf, err := ParsePlanFile([]byte("automation:\n  - setting: resize\n"))
	if err != nil {
		t.Fatalf("ParsePlanFile failed: %v", err)
	}
	if _, err := pf.ToSpec(); err == nil {
		t.Error("expected error for automation entry without enabled or value")
	}
}

func TestLoadAppConfig(t *testing.T) {
	doc := `
connection:
  base_url: https://analysis.example.com/api/v3
  username: observer
policy:
  enabled: true
history:
  enabled: true
  path: /tmp/history.db
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Connection.BaseURL != "https://analysis.example.com/api/v3" {
		t.Errorf("unexpected base url %s", cfg.Connection.BaseURL)
	}
	if cfg.Connection.BaseMarket != "Market" {
		t.Errorf("expected default base market, got %s", cfg.Connection.BaseMarket)
	}
	if cfg.Policy.Mode != "enforcing" {
		t.Errorf("expected default enforcing mode, got %s", cfg.Policy.Mode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadAppConfigEnvOverlay(t *testing.T) {
	t.Setenv("PLANVISOR_PASSWORD", "s3cret")
	doc := "connection:\n  base_url: https://analysis.example.com/api/v3\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Connection.Password != "s3cret" {
		t.Error("expected password from environment")
	}
}

func TestLoadAppConfigInvalidURL(t *testing.T) {
	doc := "connection:\n  base_url: not-a-url\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadAppConfig(path); err == nil {
		t.Error("expected validation error for bad base url")
	}
}
