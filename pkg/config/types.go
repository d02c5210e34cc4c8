package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30m" or "2h", or from a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds int64
	if err := node.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PlanFile is the YAML document describing one capacity plan.
type PlanFile struct {
	// Name is the scenario display name. Empty generates a timestamped one.
	Name string `yaml:"name"`

	// Type is the plan scenario type (e.g., "CUSTOM", "OPTIMIZE_ONPREM").
	Type string `yaml:"type,omitempty" validate:"omitempty,oneof=ADD_WORKLOAD ALLEVIATE_PRESSURE CLOUD_MIGRATION CUSTOM DECOMMISSION_HOST OPTIMIZE_ONPREM PROJECTION RECONFIGURE_HARDWARE WORKLOAD_MIGRATION"`

	// Version pins the server protocol version; empty resolves it from the
	// server at run time.
	Version string `yaml:"version,omitempty"`

	// Scope lists the entity or group UUIDs the plan runs against.
	Scope []string `yaml:"scope,omitempty"`

	// ProjectionDays lists extra projection-day offsets.
	ProjectionDays []int `yaml:"projection_days,omitempty"`

	// Timeout bounds plan execution; zero disables the bound.
	Timeout Duration `yaml:"timeout,omitempty"`

	// PollInterval fixes the status polling interval; zero selects the
	// adaptive interval.
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	// MaxAttempts bounds the retry envelope.
	MaxAttempts int `yaml:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`

	// IgnoreConstraints runs the whole plan without placement constraints.
	IgnoreConstraints bool `yaml:"ignore_constraints,omitempty"`

	// Changes are the workload changes applied by the plan.
	Changes []EntityChangeConfig `yaml:"changes,omitempty" validate:"dive"`

	// Automation toggles automation settings for the plan.
	Automation []AutomationConfig `yaml:"automation,omitempty" validate:"dive"`

	// MaxUtilization caps commodity utilization on targets.
	MaxUtilization []UtilizationConfig `yaml:"max_utilization,omitempty" validate:"dive"`

	// Utilization shifts load on targets by a percentage.
	Utilization []UtilizationConfig `yaml:"utilization,omitempty" validate:"dive"`

	// Baseline loads utilization history into the plan.
	Baseline *BaselineConfig `yaml:"baseline,omitempty"`

	// RemoveConstraints removes placement constraints from targets.
	RemoveConstraints *ConstraintConfig `yaml:"remove_constraints,omitempty"`

	// RelievePressure migrates load from hot to cold clusters.
	RelievePressure *RelievePressureConfig `yaml:"relieve_pressure,omitempty"`

	// OSProfile configures the OS migration profile for cloud migration
	// plans.
	OSProfile *OSProfileConfig `yaml:"os_profile,omitempty"`

	// AddHistorical adds workload based on the previous month.
	AddHistorical *bool `yaml:"add_historical,omitempty"`

	// IncludeReserved includes reserved workloads.
	IncludeReserved *bool `yaml:"include_reserved,omitempty"`
}

// EntityChangeConfig describes one workload change.
type EntityChangeConfig struct {
	// Action is the change kind (add, migrate, remove, replace).
	Action string `yaml:"action" validate:"required,oneof=add migrate remove replace"`

	// Targets are the entity or group UUIDs the change applies to.
	Targets []string `yaml:"targets" validate:"required,min=1"`

	// Projection lists the days at which the change takes effect.
	Projection []int `yaml:"projection,omitempty"`

	// Count is the number of copies to add (add only).
	Count int `yaml:"count,omitempty" validate:"omitempty,min=1"`

	// NewTarget is the replacement template or migration destination.
	NewTarget string `yaml:"new_target,omitempty"`
}

// AutomationConfig toggles one automation setting.
type AutomationConfig struct {
	// Setting is the automation setting uuid (e.g., "provisionPM",
	// "resize", "utilTarget").
	Setting string `yaml:"setting" validate:"required,oneof=provisionDS provisionPM resize suspendDS suspendPM utilTarget targetBand"`

	// Enabled toggles boolean settings.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Value carries the numeric value for utilTarget and targetBand.
	Value *int `yaml:"value,omitempty"`
}

// UtilizationConfig caps or shifts utilization on targets.
type UtilizationConfig struct {
	// Targets are the entity UUIDs the setting applies to.
	Targets []string `yaml:"targets" validate:"required,min=1"`

	// Percentage is the utilization percentage.
	Percentage int `yaml:"percentage" validate:"min=-100,max=100"`

	// Commodity is the commodity type, honored by legacy servers only.
	Commodity string `yaml:"commodity,omitempty"`

	// Projection is the projection day the setting applies to.
	Projection int `yaml:"projection,omitempty"`
}

// BaselineConfig loads utilization history.
type BaselineConfig struct {
	// Historical is the epoch timestamp (seconds or milliseconds) of the
	// historical baseline.
	Historical int64 `yaml:"historical,omitempty"`

	// Peak loads a peak baseline for specific clusters.
	Peak *PeakBaselineConfig `yaml:"peak,omitempty"`
}

// PeakBaselineConfig loads a peak baseline for cluster targets.
type PeakBaselineConfig struct {
	// Date is the epoch timestamp of the peak window.
	Date int64 `yaml:"date" validate:"required"`

	// Targets are the cluster UUIDs.
	Targets []string `yaml:"targets" validate:"required,min=1"`
}

// ConstraintConfig removes placement constraints.
type ConstraintConfig struct {
	// All ignores constraints market-wide.
	All bool `yaml:"all,omitempty"`

	// Targets are the entity UUIDs to unconstrain.
	Targets []string `yaml:"targets,omitempty"`

	// Commodity is the constraint to remove (e.g., "ClusterCommodity").
	Commodity string `yaml:"commodity,omitempty" validate:"omitempty,oneof=ClusterCommodity NetworkCommodity StorageClusterCommodity DataCenterCommodity"`

	// Projection is the projection day the removal applies to.
	Projection int `yaml:"projection,omitempty"`
}

// RelievePressureConfig migrates load from hot to cold clusters.
type RelievePressureConfig struct {
	// Sources are the overutilized cluster UUIDs.
	Sources []string `yaml:"sources" validate:"required,min=1"`

	// Destinations are the underutilized cluster UUIDs.
	Destinations []string `yaml:"destinations" validate:"required,min=1"`

	// Projection is the projection day the migration applies to.
	Projection int `yaml:"projection,omitempty"`
}

// OSProfileConfig configures the OS migration profile.
type OSProfileConfig struct {
	// MatchSource keeps the source OS on migration.
	MatchSource *bool `yaml:"match_source,omitempty"`

	// Unlicensed treats all OSes as bring-your-own-license.
	Unlicensed *bool `yaml:"unlicensed,omitempty"`

	// Source and Target map one OS to another.
	Source string `yaml:"source,omitempty" validate:"omitempty,oneof=LINUX RHEL SLES WINDOWS"`
	Target string `yaml:"target,omitempty" validate:"omitempty,oneof=LINUX RHEL SLES WINDOWS"`

	// Custom lists explicit per-OS mappings.
	Custom []OSMigrationConfig `yaml:"custom,omitempty" validate:"dive"`
}

// OSMigrationConfig maps one source OS to a target OS.
type OSMigrationConfig struct {
	Source     string `yaml:"source" validate:"required,oneof=LINUX RHEL SLES WINDOWS"`
	Target     string `yaml:"target" validate:"required,oneof=LINUX RHEL SLES WINDOWS"`
	Unlicensed *bool  `yaml:"unlicensed,omitempty"`
}

// AppConfig is the client application configuration.
type AppConfig struct {
	// Connection configures the analysis-service endpoint.
	Connection ConnectionConfig `yaml:"connection" validate:"required"`

	// Policy configures pre-submission policy enforcement.
	Policy PolicyConfig `yaml:"policy,omitempty"`

	// History configures the local run-history store.
	History HistoryConfig `yaml:"history,omitempty"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// Tracing configures distributed tracing.
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// ConnectionConfig configures the analysis-service endpoint.
type ConnectionConfig struct {
	// BaseURL is the service API root (e.g., "https://host/api/v3").
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Username and Password authenticate with basic auth.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Token authenticates with a bearer token and takes precedence over
	// basic auth.
	Token string `yaml:"token,omitempty"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`

	// RequestTimeout bounds individual API requests.
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`

	// BaseMarket is the market scenarios are applied to.
	BaseMarket string `yaml:"base_market,omitempty"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `yaml:"enabled,omitempty"`

	// Paths lists extra policy file paths.
	Paths []string `yaml:"paths,omitempty"`

	// Bundles lists JSON policy bundle paths.
	Bundles []string `yaml:"bundles,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `yaml:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	// Enabled indicates if run history is recorded.
	Enabled bool `yaml:"enabled,omitempty"`

	// Path is the SQLite database path.
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level.
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=console json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	ListenAddress string `yaml:"listen_address,omitempty"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Exporter string `yaml:"exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint string `yaml:"endpoint,omitempty"`
}
