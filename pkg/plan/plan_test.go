package plan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/planvisor/planvisor/pkg/api"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type fakeService struct {
	version string

	scenarioCalls int
	namedCalls    int
	lastDTO       map[string]any

	applyCalls int
	applyErrs  []error

	states     []string
	stateCalls int
	market     api.Market

	stopCalls int
	stopErr   error

	deletedMarkets    []string
	deleteMarketErr   error
	deletedScenarios  []string
	deleteScenarioErr error

	entities map[string]*api.Entity
}

func (f *fakeService) Version(ctx context.Context) (string, error) {
	if f.version == "" {
		return "", errors.New("no version configured")
	}
	return f.version, nil
}

func (f *fakeService) CreateScenario(ctx context.Context, dto map[string]any) (*api.Resource, error) {
	f.scenarioCalls++
	f.lastDTO = dto
	return &api.Resource{
		UUID:        fmt.Sprintf("scenario-%d", f.scenarioCalls),
		DisplayName: "test scenario",
	}, nil
}

func (f *fakeService) CreateScenarioNamed(ctx context.Context, name string, dto map[string]any) (*api.Resource, error) {
	f.namedCalls++
	f.lastDTO = dto
	return &api.Resource{UUID: fmt.Sprintf("scenario-%d", f.namedCalls), DisplayName: name}, nil
}

func (f *fakeService) ApplyScenario(ctx context.Context, baseMarket, scenarioID string, params url.Values) (*api.Resource, error) {
	f.applyCalls++
	if len(f.applyErrs) > 0 {
		err := f.applyErrs[0]
		f.applyErrs = f.applyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &api.Resource{UUID: "market-1", DisplayName: params.Get("plan_market_name")}, nil
}

func (f *fakeService) Market(ctx context.Context, id string) (*api.Market, error) {
	i := f.stateCalls
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.stateCalls++
	m := f.market
	if m.UUID == "" {
		m.UUID = id
	}
	m.State = f.states[i]
	return &m, nil
}

func (f *fakeService) StopMarket(ctx context.Context, id string) error {
	f.stopCalls++
	return f.stopErr
}

func (f *fakeService) DeleteMarket(ctx context.Context, id string) error {
	if f.deleteMarketErr != nil {
		return f.deleteMarketErr
	}
	f.deletedMarkets = append(f.deletedMarkets, id)
	return nil
}

func (f *fakeService) DeleteScenario(ctx context.Context, id string) error {
	if f.deleteScenarioErr != nil {
		return f.deleteScenarioErr
	}
	f.deletedScenarios = append(f.deletedScenarios, id)
	return nil
}

func (f *fakeService) LookupEntity(ctx context.Context, id string) (*api.Entity, error) {
	if e, ok := f.entities[id]; ok {
		return e, nil
	}
	return nil, &api.StatusError{StatusCode: 404, Method: "GET", Path: "entities/" + id}
}

func newTestPlan(t *testing.T, svc *fakeService, spec *Spec) (*Plan, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	p, err := NewPlan(context.Background(), svc, spec, WithClock(clock), WithMarketName("test-market"))
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}
	return p, clock
}

func TestNewPlanResolvesVersion(t *testing.T) {
	svc := &fakeService{version: "7.22.1"}
	spec := NewSpec("resolve-version")
	p, _ := newTestPlan(t, svc, spec)

	if spec.Version != "7.22.1" {
		t.Errorf("expected resolved version 7.22.1, got %s", spec.Version)
	}
	if p.Phase() != PhaseNew {
		t.Errorf("expected NEW phase, got %s", p.Phase())
	}
}

func TestNewPlanVersionResolutionFails(t *testing.T) {
	svc := &fakeService{}
	_, err := NewPlan(context.Background(), svc, NewSpec("no-version"))
	if !IsKind(err, KindPlan) {
		t.Fatalf("expected plan error, got %v", err)
	}
}

func TestNewPlanRejectsOldServer(t *testing.T) {
	svc := &fakeService{version: "5.8.5"}
	_, err := NewPlan(context.Background(), svc, NewSpec("old-server"))
	if err == nil || !strings.Contains(err.Error(), "below the supported minimum") {
		t.Fatalf("expected minimum version error, got %v", err)
	}
}

func TestRunSucceeds(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"READY_TO_START", "RUNNING", "SUCCEEDED"},
		market: api.Market{
			UUID:            "market-1",
			DisplayName:     "test-market",
			RunDate:         "2026-03-01T09:00:00+0000",
			RunCompleteDate: "2026-03-01T09:05:00+0000",
		},
	}
	spec := NewSpec("happy-path")
	spec.PollInterval = 10 * time.Second
	p, _ := newTestPlan(t, svc, spec)

	state, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", state)
	}
	if p.Phase() != PhaseSucceeded {
		t.Errorf("expected SUCCEEDED phase, got %s", p.Phase())
	}
	if p.MarketID() != "market-1" {
		t.Errorf("expected market-1, got %s", p.MarketID())
	}
	if !p.Initialized() {
		t.Error("expected plan to be initialized")
	}
	if svc.scenarioCalls != 1 || svc.namedCalls != 0 {
		t.Errorf("expected one generic scenario creation, got %d generic, %d named",
			svc.scenarioCalls, svc.namedCalls)
	}
	if got := p.ServerDuration(); got != 5*time.Minute {
		t.Errorf("expected 5m server duration, got %s", got)
	}
	if p.Duration() != 5*time.Minute {
		t.Errorf("expected Duration to prefer the server value, got %s", p.Duration())
	}
}

func TestRunUsesNamedScenarioOnLegacyServer(t *testing.T) {
	svc := &fakeService{version: "5.9.0", states: []string{"SUCCEEDED"}}
	p, _ := newTestPlan(t, svc, NewSpec("legacy"))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if svc.namedCalls != 1 || svc.scenarioCalls != 0 {
		t.Errorf("expected one named scenario creation, got %d named, %d generic",
			svc.namedCalls, svc.scenarioCalls)
	}
}

func TestRunStuckPlanFailsAfterOnePoll(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"CREATED"}}
	spec := NewSpec("stuck")
	spec.PollInterval = 5 * time.Second
	spec.MaxAttempts = 1
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to initialize") {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if p.Phase() != PhaseFailed {
		t.Errorf("expected FAILED phase, got %s", p.Phase())
	}
	// one poll before the wait, one after; a plan still CREATED then never
	// starts
	if svc.stateCalls != 2 {
		t.Errorf("expected exactly 2 state polls, got %d", svc.stateCalls)
	}
}

func TestRunTimeoutStopsMarket(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"RUNNING"}}
	spec := NewSpec("slow")
	spec.Timeout = 10 * time.Minute
	spec.PollInterval = time.Minute
	spec.MaxAttempts = 1
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "plan execution exceeded 10m0s") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if svc.stopCalls != 1 {
		t.Errorf("expected one stop request, got %d", svc.stopCalls)
	}
	if p.Phase() != PhaseFailed {
		t.Errorf("expected FAILED phase, got %s", p.Phase())
	}
}

func TestRunTimeoutSwallowsBusyServerOnStop(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"RUNNING"},
		stopErr: &api.StatusError{StatusCode: 502, Method: "PUT", Path: "markets/market-1"},
	}
	spec := NewSpec("busy-stop")
	spec.Timeout = 10 * time.Minute
	spec.PollInterval = time.Minute
	spec.MaxAttempts = 1
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "plan execution exceeded") {
		t.Fatalf("expected the timeout error despite the 502, got %v", err)
	}
}

func TestRunTimeoutEscalatesServerErrorOnStop(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"RUNNING"},
		stopErr: &api.StatusError{StatusCode: 500, Method: "PUT", Path: "markets/market-1"},
	}
	spec := NewSpec("broken-stop")
	spec.Timeout = 10 * time.Minute
	spec.PollInterval = time.Minute
	spec.MaxAttempts = 1
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server error stopping plan") {
		t.Fatalf("expected stop escalation, got %v", err)
	}
}

func TestRunRetriesTransientFailure(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"SUCCEEDED"},
		applyErrs: []error{
			&api.StatusError{StatusCode: 503, Method: "POST", Path: "markets"},
		},
	}
	spec := NewSpec("retry")
	spec.MaxAttempts = 3
	p, _ := newTestPlan(t, svc, spec)

	state, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", state)
	}
	// the first attempt's scenario is discarded before the retry
	if len(svc.deletedScenarios) != 1 || svc.deletedScenarios[0] != "scenario-1" {
		t.Errorf("expected scenario-1 discarded, got %v", svc.deletedScenarios)
	}
	if p.ScenarioID() != "scenario-2" {
		t.Errorf("expected fresh scenario-2 on retry, got %s", p.ScenarioID())
	}
}

func TestRunRetryExhaustion(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"SUCCEEDED"},
		applyErrs: []error{
			&api.StatusError{StatusCode: 503, Method: "POST", Path: "markets"},
			&api.StatusError{StatusCode: 503, Method: "POST", Path: "markets"},
		},
	}
	spec := NewSpec("exhausted")
	spec.MaxAttempts = 2
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "retry limit reached after 2 attempts") {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected the last failure in the chain, got %v", err)
	}
	if p.Phase() != PhaseFailed {
		t.Errorf("expected FAILED phase, got %s", p.Phase())
	}
}

func TestRunDoesNotRetryClientError(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"SUCCEEDED"},
		applyErrs: []error{
			&api.StatusError{StatusCode: 404, Method: "POST", Path: "markets"},
		},
	}
	spec := NewSpec("client-error")
	spec.MaxAttempts = 3
	p, _ := newTestPlan(t, svc, spec)

	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if svc.applyCalls != 1 {
		t.Errorf("expected no retry on a 404, got %d apply calls", svc.applyCalls)
	}
}

func TestRunHooks(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"SUCCEEDED"}}
	p, _ := newTestPlan(t, svc, NewSpec("hooks"))

	preCalls, postCalls := 0, 0
	p.SetPreHook(func(ctx context.Context, p *Plan) error {
		preCalls++
		return nil
	})
	p.SetPostHook(func(ctx context.Context, p *Plan) error {
		postCalls++
		return nil
	})

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if preCalls != 1 || postCalls != 1 {
		t.Errorf("expected each hook to run once, got pre=%d post=%d", preCalls, postCalls)
	}
}

func TestRunPreHookFailureAborts(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"SUCCEEDED"}}
	p, _ := newTestPlan(t, svc, NewSpec("pre-hook-fail"))
	p.SetPreHook(func(ctx context.Context, p *Plan) error {
		return errors.New("boom")
	})

	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "pre-processing hook failed") {
		t.Fatalf("expected pre-hook failure, got %v", err)
	}
	if svc.scenarioCalls != 0 {
		t.Errorf("expected no scenario creation after hook failure, got %d", svc.scenarioCalls)
	}
}

func TestRunAsyncReturnsImmediately(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"READY_TO_START"}}
	p, clock := newTestPlan(t, svc, NewSpec("async"))

	state, err := p.RunAsync(context.Background())
	if err != nil {
		t.Fatalf("RunAsync failed: %v", err)
	}
	if state != StateReadyToStart {
		t.Errorf("expected READY_TO_START, got %s", state)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no polling, got %d sleeps", len(clock.sleeps))
	}
	if !p.Initialized() {
		t.Error("expected plan to be initialized")
	}
}

func TestScopeAugmentationWindow(t *testing.T) {
	svc := &fakeService{
		version: "7.21.2",
		states:  []string{"SUCCEEDED"},
		entities: map[string]*api.Entity{
			"cluster-1": {UUID: "cluster-1", DisplayName: "Cluster A", ClassName: "Cluster"},
		},
	}
	spec := NewSpec("augmented")
	spec.SetScope("cluster-1")
	p, _ := newTestPlan(t, svc, spec)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	scope, ok := svc.lastDTO["scope"].([]any)
	if !ok || len(scope) != 1 {
		t.Fatalf("expected one scope entry, got %v", svc.lastDTO["scope"])
	}
	entry, ok := scope[0].(map[string]any)
	if !ok {
		t.Fatalf("expected a scope reference map, got %T", scope[0])
	}
	if entry["displayName"] != "Cluster A" || entry["className"] != "Cluster" {
		t.Errorf("expected augmented scope entry, got %v", entry)
	}
}

func TestScopeAugmentationSkippedOutsideWindow(t *testing.T) {
	svc := &fakeService{version: "7.22.0", states: []string{"SUCCEEDED"}}
	spec := NewSpec("plain-scope")
	spec.SetScope("cluster-1")
	p, _ := newTestPlan(t, svc, spec)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	entry := svc.lastDTO["scope"].([]any)[0].(map[string]any)
	if _, found := entry["displayName"]; found {
		t.Errorf("expected bare scope reference, got %v", entry)
	}
}

func TestStop(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"RUNNING", "STOPPED"}}
	spec := NewSpec("stoppable")
	p, _ := newTestPlan(t, svc, spec)
	p.marketID = "market-1"
	p.initialized = true

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if p.Phase() != PhaseStopped {
		t.Errorf("expected STOPPED phase, got %s", p.Phase())
	}
	if svc.stopCalls != 1 {
		t.Errorf("expected one stop request, got %d", svc.stopCalls)
	}
}

func TestStopServerErrorIsReturnedRaw(t *testing.T) {
	svc := &fakeService{
		version: "6.1.0",
		states:  []string{"RUNNING"},
		stopErr: &api.StatusError{StatusCode: 500, Method: "PUT", Path: "markets/market-1"},
	}
	p, _ := newTestPlan(t, svc, NewSpec("stop-500"))
	p.marketID = "market-1"

	err := p.Stop(context.Background())
	var se *api.StatusError
	if !errors.As(err, &se) || se.StatusCode != 500 {
		t.Fatalf("expected the raw 500, got %v", err)
	}
}

func TestStopTimesOut(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"RUNNING"}}
	spec := NewSpec("wont-stop")
	spec.AbortTimeout = 10 * time.Second
	spec.AbortPollInterval = 5 * time.Second
	p, _ := newTestPlan(t, svc, spec)
	p.marketID = "market-1"

	err := p.Stop(context.Background())
	if err == nil || !strings.Contains(err.Error(), "did not stop within 10s") {
		t.Fatalf("expected abort timeout, got %v", err)
	}
}

func TestDeleteRefusesSystemMarket(t *testing.T) {
	svc := &fakeService{version: "6.1.0"}
	spec := NewSpec("protected")
	clock := &fakeClock{now: time.Now()}
	for _, name := range []string{"Market", "Market_Default"} {
		p, err := NewPlan(context.Background(), svc, spec, WithClock(clock), WithMarketName(name))
		if err != nil {
			t.Fatalf("NewPlan failed: %v", err)
		}
		p.initialized = true
		if err := p.Delete(context.Background(), false); !IsKind(err, KindInvalidMarket) {
			t.Errorf("expected invalid-market error for %s, got %v", name, err)
		}
	}
}

func TestDeleteRequiresInitializedMarket(t *testing.T) {
	svc := &fakeService{version: "6.1.0"}
	p, _ := newTestPlan(t, svc, NewSpec("uninitialized"))

	err := p.Delete(context.Background(), false)
	if !IsKind(err, KindInvalidMarket) {
		t.Fatalf("expected invalid-market error, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc := &fakeService{version: "6.1.0"}
	p, _ := newTestPlan(t, svc, NewSpec("deletable"))
	p.initialized = true
	p.marketID = "market-1"
	p.scenarioID = "scenario-1"

	if err := p.Delete(context.Background(), false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(svc.deletedMarkets) != 1 || len(svc.deletedScenarios) != 1 {
		t.Errorf("expected market and scenario deleted, got %v / %v",
			svc.deletedMarkets, svc.deletedScenarios)
	}
	if p.Initialized() {
		t.Error("expected plan to be deinitialized")
	}
}

func TestDeleteKeepsScenario(t *testing.T) {
	svc := &fakeService{version: "6.1.0"}
	p, _ := newTestPlan(t, svc, NewSpec("keep-scenario"))
	p.initialized = true
	p.marketID = "market-1"
	p.scenarioID = "scenario-1"

	if err := p.Delete(context.Background(), true); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(svc.deletedScenarios) != 0 {
		t.Errorf("expected scenario kept, got %v", svc.deletedScenarios)
	}
}

func TestPollDelay(t *testing.T) {
	svc := &fakeService{version: "6.1.0"}
	spec := NewSpec("delays")
	p, clock := newTestPlan(t, svc, spec)
	p.start = clock.now

	tests := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{30 * time.Second, 5 * time.Second},
		{60 * time.Second, 5 * time.Second},
		{2 * time.Minute, 10 * time.Second},
		{9 * time.Minute, 45 * time.Second},
		{599 * time.Second, 50 * time.Second},
		{10 * time.Minute, 60 * time.Second},
		{time.Hour, 60 * time.Second},
	}
	for _, tt := range tests {
		clock.now = p.start.Add(tt.elapsed)
		if got := p.pollDelay(); got != tt.want {
			t.Errorf("pollDelay at %s: expected %s, got %s", tt.elapsed, tt.want, got)
		}
	}

	spec.PollInterval = 7 * time.Second
	clock.now = p.start.Add(time.Hour)
	if got := p.pollDelay(); got != 7*time.Second {
		t.Errorf("expected fixed 7s interval, got %s", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	svc := &fakeService{version: "6.1.0", states: []string{"RUNNING"}}
	spec := NewSpec("cancelled")
	spec.PollInterval = time.Second
	spec.MaxAttempts = 3
	p, _ := newTestPlan(t, svc, spec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if svc.applyCalls > 1 {
		t.Errorf("expected no retry after cancellation, got %d apply calls", svc.applyCalls)
	}
}
