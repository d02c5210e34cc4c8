// Package telemetry provides observability instrumentation for the plan
// engine.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and Prometheus metrics into a unified system for
// monitoring plan runs and the API calls behind them.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "planvisor"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// The Metrics type is nil-safe: components accept a *Metrics and may be
// handed nil when collection is disabled. Never log credentials or tokens,
// and use TLS for trace exporters in production.
package telemetry
