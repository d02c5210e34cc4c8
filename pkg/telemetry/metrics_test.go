package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics

	// Components hold a *Metrics that may be nil when collection is
	// disabled; every recorder must tolerate that.
	m.RecordPlanStarted()
	m.RecordPlanCompleted("SUCCEEDED", time.Minute)
	m.RecordPlanRetry()
	m.RecordPollCycle()
	m.RecordAPICall(http.MethodGet, "markets", 200, time.Second)
	m.RecordError("transport")
}

func TestDisabledMetricsIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordPlanStarted()
	m.RecordPlanCompleted("SUCCEEDED", time.Minute)
	m.RecordAPICall(http.MethodGet, "markets", 200, time.Second)

	if err := m.StartMetricsServer(); err != nil {
		t.Fatalf("StartMetricsServer on disabled metrics failed: %v", err)
	}
}

func TestEnabledMetricsExposesFamilies(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "planvisor",
	})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordPlanStarted()
	m.RecordPlanCompleted("SUCCEEDED", 90*time.Second)
	m.RecordAPICall(http.MethodPost, "scenarios", 200, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	body := rec.Body.String()
	for _, family := range []string{
		"planvisor_plans_started_total",
		"planvisor_plans_completed_total",
		"planvisor_api_calls_total",
	} {
		if !strings.Contains(body, family) {
			t.Errorf("metrics output missing %s", family)
		}
	}
}

func TestTimerMeasuresElapsed(t *testing.T) {
	timer := NewTimer()
	if d := timer.Duration(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}
