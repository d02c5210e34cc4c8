package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/planvisor/planvisor/pkg/plan"
)

var validate = validator.New()

// LoadPlanFile reads and validates a plan document from path.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}
	return ParsePlanFile(data)
}

// ParsePlanFile parses and validates a YAML plan document.
func ParsePlanFile(data []byte) (*PlanFile, error) {
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if err := validate.Struct(&pf); err != nil {
		return nil, fmt.Errorf("invalid plan file: %w", err)
	}
	return &pf, nil
}

// LoadAppConfig reads and validates the application configuration from path.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyEnv()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

// DefaultAppConfig returns the application configuration defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Connection: ConnectionConfig{
			BaseMarket: "Market",
		},
		Policy: PolicyConfig{
			Mode: "enforcing",
		},
		History: HistoryConfig{
			Path: "planvisor.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9090",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}

// FromEnv returns the defaults with credentials overlaid from the
// environment, for running without a config file.
func FromEnv() *AppConfig {
	cfg := DefaultAppConfig()
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays credentials from the environment so they can stay out of
// the config file.
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("PLANVISOR_URL"); v != "" {
		c.Connection.BaseURL = v
	}
	if v := os.Getenv("PLANVISOR_USERNAME"); v != "" {
		c.Connection.Username = v
	}
	if v := os.Getenv("PLANVISOR_PASSWORD"); v != "" {
		c.Connection.Password = v
	}
	if v := os.Getenv("PLANVISOR_TOKEN"); v != "" {
		c.Connection.Token = v
	}
}

// ToSpec compiles the plan document into a scenario specification.
func (pf *PlanFile) ToSpec() (*plan.Spec, error) {
	spec := plan.NewSpec(pf.Name)
	if pf.Type != "" {
		spec.Type = plan.PlanType(pf.Type)
	}
	spec.Version = pf.Version
	spec.Timeout = pf.Timeout.Std()
	spec.PollInterval = pf.PollInterval.Std()
	if pf.MaxAttempts > 0 {
		spec.MaxAttempts = pf.MaxAttempts
	}
	if pf.IgnoreConstraints {
		spec.RemoveConstraints(nil, "", 0)
	}

	if len(pf.Scope) > 0 {
		spec.SetScope(pf.Scope...)
	}
	if len(pf.ProjectionDays) > 0 {
		spec.ExtendProjection(pf.ProjectionDays...)
	}

	for _, c := range pf.Changes {
		err := spec.ChangeEntity(plan.EntityChange{
			Action:     plan.EntityAction(c.Action),
			Targets:    c.Targets,
			Projection: c.Projection,
			Count:      c.Count,
			NewTarget:  c.NewTarget,
		})
		if err != nil {
			return nil, err
		}
	}

	for _, a := range pf.Automation {
		var value any
		switch {
		case a.Value != nil:
			value = *a.Value
		case a.Enabled != nil:
			value = *a.Enabled
		default:
			return nil, fmt.Errorf("automation setting %s requires enabled or value", a.Setting)
		}
		if err := spec.ChangeAutomationSetting(plan.AutomationSetting(a.Setting), value); err != nil {
			return nil, err
		}
	}

	for _, u := range pf.MaxUtilization {
		spec.ChangeMaxUtilization(u.Targets, u.Commodity, u.Percentage, u.Projection)
	}
	for _, u := range pf.Utilization {
		spec.ChangeUtilization(u.Targets, u.Percentage, u.Projection)
	}

	if b := pf.Baseline; b != nil {
		if b.Historical != 0 {
			spec.SetHistoricalBaseline(b.Historical)
		}
		if b.Peak != nil {
			spec.SetPeakBaseline(b.Peak.Targets, b.Peak.Date)
		}
	}

	if rc := pf.RemoveConstraints; rc != nil {
		if rc.All {
			spec.RemoveConstraints(nil, "", 0)
		} else {
			spec.RemoveConstraints(rc.Targets, plan.ConstraintCommodity(rc.Commodity), rc.Projection)
		}
	}

	if rp := pf.RelievePressure; rp != nil {
		spec.RelievePressure(rp.Sources, rp.Destinations, rp.Projection)
	}

	if p := pf.OSProfile; p != nil {
		profile := plan.OSProfile{
			MatchSource: p.MatchSource,
			Unlicensed:  p.Unlicensed,
			Source:      plan.CloudOS(p.Source),
			Target:      plan.CloudOS(p.Target),
		}
		for _, m := range p.Custom {
			profile.Custom = append(profile.Custom, plan.OSMigration{
				Source:     plan.CloudOS(m.Source),
				Target:     plan.CloudOS(m.Target),
				Unlicensed: m.Unlicensed,
			})
		}
		spec.CloudOSProfile(profile)
	}

	if pf.AddHistorical != nil {
		spec.AddHistorical(*pf.AddHistorical)
	}
	if pf.IncludeReserved != nil {
		spec.IncludeReserved(*pf.IncludeReserved)
	}

	return spec, nil
}
