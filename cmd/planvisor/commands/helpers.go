package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/planvisor/planvisor/pkg/api"
	"github.com/planvisor/planvisor/pkg/config"
	"github.com/planvisor/planvisor/pkg/policy"
	"github.com/planvisor/planvisor/pkg/stores"
	"github.com/planvisor/planvisor/pkg/telemetry"
)

// loadConfig resolves the application configuration: the --config flag, a
// planvisor.yaml in the working directory, or defaults with environment
// credentials.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	applyLogging(cfg)
	return cfg, nil
}

func resolveConfig() (*config.AppConfig, error) {
	if configPath != "" {
		return config.LoadAppConfig(configPath)
	}
	for _, p := range []string{"planvisor.yaml", "planvisor.yml"} {
		if _, err := os.Stat(p); err == nil {
			return config.LoadAppConfig(p)
		}
	}
	return config.FromEnv(), nil
}

// applyLogging replaces the bootstrap logger with one built from the loaded
// configuration. The --verbose flag overrides the configured level.
func applyLogging(cfg *config.AppConfig) {
	lcfg := telemetry.DefaultConfig().Logging
	if cfg.Logging.Level != "" {
		lcfg.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	if verbose {
		lcfg.Level = "debug"
	}
	logger, err := telemetry.NewLogger(lcfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to configure logging")
		return
	}
	log.Logger = logger
}

func newClient(cfg *config.AppConfig, metrics *telemetry.Metrics) (*api.Client, error) {
	if cfg.Connection.BaseURL == "" {
		return nil, fmt.Errorf("no service URL configured; set connection.base_url or PLANVISOR_URL")
	}
	return api.NewClient(api.Config{
		BaseURL:            cfg.Connection.BaseURL,
		Username:           cfg.Connection.Username,
		Password:           cfg.Connection.Password,
		Token:              cfg.Connection.Token,
		InsecureSkipVerify: cfg.Connection.InsecureSkipVerify,
		RequestTimeout:     cfg.Connection.RequestTimeout.Std(),
		Logger:             log.Logger,
		Metrics:            metrics,
	})
}

// setupTelemetry builds the logger, metrics collector, and tracer from the
// application configuration and installs the logger as the process-wide
// default. The shutdown function flushes the tracer and is safe to call when
// telemetry is disabled.
func setupTelemetry(cfg *config.AppConfig) (*telemetry.Metrics, func(), error) {
	tcfg := telemetryConfig(cfg)
	tel, err := telemetry.New(tcfg)
	if err != nil {
		return nil, nil, err
	}
	log.Logger = tel.Logger

	if err := tel.StartMetricsServer(); err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			log.Debug().Err(err).Msg("tracer shutdown failed")
		}
	}
	return tel.Metrics, shutdown, nil
}

// telemetryConfig maps the application configuration onto the telemetry
// defaults, which keep their values wherever the user left a field empty.
func telemetryConfig(cfg *config.AppConfig) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = buildVersion
	if cfg.Logging.Level != "" {
		tcfg.Logging.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		tcfg.Logging.Format = cfg.Logging.Format
	}
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	tcfg.Metrics.Enabled = cfg.Metrics.Enabled
	if cfg.Metrics.ListenAddress != "" {
		tcfg.Metrics.ListenAddress = cfg.Metrics.ListenAddress
	}
	tcfg.Tracing.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		tcfg.Tracing.Exporter = cfg.Tracing.Exporter
	}
	tcfg.Tracing.Endpoint = cfg.Tracing.Endpoint
	return tcfg
}

// openStore opens the run-history store, or returns nil when history is
// disabled.
func openStore(ctx context.Context, cfg *config.AppConfig) (stores.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newPolicyEngine builds the policy engine, or returns nil when enforcement
// is disabled.
func newPolicyEngine(ctx context.Context, cfg *config.AppConfig) (*policy.Engine, error) {
	if !cfg.Policy.Enabled {
		return nil, nil
	}
	return policyEngineFromConfig(ctx, cfg)
}

// policyEngineFromConfig builds an engine with the builtin policies plus the
// configured policy paths and bundles, regardless of the enforcement toggle.
func policyEngineFromConfig(ctx context.Context, cfg *config.AppConfig) (*policy.Engine, error) {
	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	if len(cfg.Policy.Bundles) > 0 {
		if err := engine.LoadBundles(ctx, cfg.Policy.Bundles); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// checkPolicies evaluates the rendered scenario against the policy engine.
// Violations fail the check in enforcing mode and only warn in advisory mode.
func checkPolicies(ctx context.Context, engine *policy.Engine, cfg *config.AppConfig, scenario map[string]any, serverVersion string, ignoreConstraints bool) error {
	if engine == nil {
		return nil
	}
	result, err := engine.Evaluate(ctx, &policy.Input{
		Scenario: scenario,
		Context: &policy.Context{
			ServerVersion:     serverVersion,
			IgnoreConstraints: ignoreConstraints,
			Operation:         "run",
		},
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, w := range result.Warnings {
		log.Warn().Msg(w)
	}
	for _, v := range result.Violations {
		log.Warn().
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Str("field", v.Field).
			Msg(v.Message)
	}
	if !result.Allowed && cfg.Policy.Mode != "advisory" {
		return fmt.Errorf("scenario rejected by %d policy violation(s)", len(result.Violations))
	}
	return nil
}
