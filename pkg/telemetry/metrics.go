package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the plan engine. A nil *Metrics is
// valid and records nothing, as is one built with Enabled false.
type Metrics struct {
	config MetricsConfig

	// API client metrics
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	// Plan run metrics
	plansStarted   prometheus.Counter
	plansCompleted *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec
	planRetries    prometheus.Counter
	pollCycles     prometheus.Counter

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activePlans prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of analysis-service API calls",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of analysis-service API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "endpoint"},
		),

		plansStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_started_total",
				Help:      "Total number of plan markets submitted",
			},
		),
		plansCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_completed_total",
				Help:      "Total number of plan runs reaching a terminal state",
			},
			[]string{"result"},
		),
		planDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_duration_seconds",
				Help:      "Duration of plan runs in seconds",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"result"},
		),
		planRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_retries_total",
				Help:      "Total number of plan run attempts after the first",
			},
		),
		pollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_poll_cycles_total",
				Help:      "Total number of market state poll cycles",
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of plan engine errors by kind",
			},
			[]string{"kind"},
		),

		activePlans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_plans",
				Help:      "Current number of plans being polled",
			},
		),
	}

	registry.MustRegister(
		m.apiCalls,
		m.apiDuration,
		m.plansStarted,
		m.plansCompleted,
		m.planDuration,
		m.planRetries,
		m.pollCycles,
		m.errorsByKind,
		m.activePlans,
	)

	return m, nil
}

// RecordAPICall records one analysis-service request with its outcome.
func (m *Metrics) RecordAPICall(method, endpoint string, status int, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	m.apiCalls.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPlanStarted records a plan market submission.
func (m *Metrics) RecordPlanStarted() {
	if m == nil || m.plansStarted == nil {
		return
	}
	m.plansStarted.Inc()
	m.activePlans.Inc()
}

// RecordPlanCompleted records a plan run reaching a terminal state.
func (m *Metrics) RecordPlanCompleted(result string, duration time.Duration) {
	if m == nil || m.plansCompleted == nil {
		return
	}
	m.plansCompleted.WithLabelValues(result).Inc()
	m.planDuration.WithLabelValues(result).Observe(duration.Seconds())
	m.activePlans.Dec()
}

// RecordPlanRetry records a retried plan run attempt.
func (m *Metrics) RecordPlanRetry() {
	if m == nil || m.planRetries == nil {
		return
	}
	m.planRetries.Inc()
}

// RecordPollCycle records one market state poll.
func (m *Metrics) RecordPollCycle() {
	if m == nil || m.pollCycles == nil {
		return
	}
	m.pollCycles.Inc()
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
