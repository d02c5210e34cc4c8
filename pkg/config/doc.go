// Package config loads and validates the YAML plan documents and the
// application configuration.
//
// A plan document describes one capacity-plan scenario declaratively: scope,
// projection horizon, workload changes, automation settings, baselines, and
// run parameters. ToSpec compiles the document into a plan.Spec ready for
// submission.
//
// The application configuration carries connection credentials, policy
// enforcement, run-history, and telemetry settings. Credentials may be
// overlaid from the PLANVISOR_URL, PLANVISOR_USERNAME, PLANVISOR_PASSWORD,
// and PLANVISOR_TOKEN environment variables.
package config
