package plan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/planvisor/planvisor/pkg/api"
	"github.com/planvisor/planvisor/pkg/telemetry"
)

// Service is the analysis-service handle the plan engine drives. api.Client
// is the production implementation.
type Service interface {
	Version(ctx context.Context) (string, error)
	CreateScenario(ctx context.Context, dto map[string]any) (*api.Resource, error)
	CreateScenarioNamed(ctx context.Context, name string, dto map[string]any) (*api.Resource, error)
	ApplyScenario(ctx context.Context, baseMarket, scenarioID string, params url.Values) (*api.Resource, error)
	Market(ctx context.Context, id string) (*api.Market, error)
	StopMarket(ctx context.Context, id string) error
	DeleteMarket(ctx context.Context, id string) error
	DeleteScenario(ctx context.Context, id string) error
	LookupEntity(ctx context.Context, id string) (*api.Entity, error)
}

// Phase is the local lifecycle phase of a plan run.
type Phase string

const (
	PhaseNew             Phase = "NEW"
	PhaseScenarioCreated Phase = "SCENARIO_CREATED"
	PhaseRunning         Phase = "RUNNING"
	PhaseAborting        Phase = "ABORTING"
	PhaseSucceeded       Phase = "SUCCEEDED"
	PhaseStopped         Phase = "STOPPED"
	PhaseFailed          Phase = "FAILED"
)

// minServerVersion is the oldest protocol generation the engine can render.
const minServerVersion = "5.9.0"

// namedScenarioCutover is the version at which scenario creation moved from
// the name-addressed path to the generic path.
const namedScenarioCutover = "5.9.1"

// scopeAugmentLow and scopeAugmentHigh bound the server versions whose
// scenario endpoint rejects scope references without display names. Within
// the window the client copies the entity identity onto each scope entry
// before submission.
const (
	scopeAugmentLow  = "7.21.0"
	scopeAugmentHigh = "7.21.5"
)

// systemMarkets are protected markets the engine refuses to delete.
var systemMarkets = []string{"Market", "Market_Default"}

const serverTimeFormat = "2006-01-02T15:04:05-0700"

// Hook runs around a plan run. The pre hook runs once before the first
// attempt; the post hook runs once after a successful terminal result. Hooks
// are not re-invoked per retry.
type Hook func(ctx context.Context, p *Plan) error

// Plan binds a Spec to a remote service handle and supervises one scenario
// and market through the run lifecycle. A Plan is driven by a single caller;
// only Stop is safe to call from another goroutine while Run is polling.
type Plan struct {
	svc     Service
	spec    *Spec
	log     zerolog.Logger
	clock   Clock
	metrics *telemetry.Metrics

	baseMarket string
	marketName string

	// createScenario is the version-selected creation strategy, chosen once
	// at construction and never mutated.
	createScenario func(ctx context.Context, dto map[string]any) (*api.Resource, error)
	augmentScope   bool

	phase        Phase
	attempts     int
	initialized  bool
	scenarioID   string
	scenarioName string
	marketID     string

	start          time.Time
	scriptDuration time.Duration
	serverDuration time.Duration
	unplaced       bool
	result         MarketState

	preHook  Hook
	postHook Hook
}

// Option configures a Plan at construction.
type Option func(*Plan)

// WithLogger injects the plan's logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Plan) { p.log = log }
}

// WithClock substitutes the time source, for tests.
func WithClock(c Clock) Option {
	return func(p *Plan) { p.clock = c }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Plan) { p.metrics = m }
}

// WithBaseMarket sets the market the scenario is applied to. Defaults to the
// live market.
func WithBaseMarket(name string) Option {
	return func(p *Plan) { p.baseMarket = name }
}

// WithMarketName sets the plan market display name. Defaults to a generated
// one.
func WithMarketName(name string) Option {
	return func(p *Plan) { p.marketName = name }
}

// NewPlan builds a plan for the given spec. The spec's target version is
// resolved from the service when unset, and the scenario-creation strategy is
// selected from it.
func NewPlan(ctx context.Context, svc Service, spec *Spec, opts ...Option) (*Plan, error) {
	p := &Plan{
		svc:        svc,
		spec:       spec,
		log:        zerolog.Nop(),
		clock:      SystemClock,
		baseMarket: "Market",
		phase:      PhaseNew,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.marketName == "" {
		p.marketName = fmt.Sprintf("CUSTOM_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
	}

	if spec.Version == "" {
		v, err := svc.Version(ctx)
		if err != nil {
			return nil, NewPlanError("unable to resolve server version", err)
		}
		spec.Version = v
	}
	if CompareVersions(spec.Version, minServerVersion) < 0 {
		return nil, NewPlanError(fmt.Sprintf("server version %s is below the supported minimum %s", spec.Version, minServerVersion), nil)
	}

	if CompareVersions(spec.Version, namedScenarioCutover) >= 0 {
		p.createScenario = func(ctx context.Context, dto map[string]any) (*api.Resource, error) {
			return svc.CreateScenario(ctx, dto)
		}
	} else {
		p.createScenario = func(ctx context.Context, dto map[string]any) (*api.Resource, error) {
			return svc.CreateScenarioNamed(ctx, spec.Name, dto)
		}
	}
	p.augmentScope = CompareVersions(spec.Version, scopeAugmentLow) >= 0 &&
		CompareVersions(spec.Version, scopeAugmentHigh) < 0

	p.log.Debug().Str("version", spec.Version).Str("market_name", p.marketName).Msg("plan initialized")
	return p, nil
}

// Spec returns the plan's specification.
func (p *Plan) Spec() *Spec { return p.spec }

// Phase returns the local lifecycle phase.
func (p *Plan) Phase() Phase { return p.phase }

// Attempts returns the number of run attempts made so far.
func (p *Plan) Attempts() int { return p.attempts }

// Initialized reports whether the remote market exists and is usable.
func (p *Plan) Initialized() bool { return p.initialized }

// ScenarioID returns the remote scenario UUID for the current attempt.
func (p *Plan) ScenarioID() string { return p.scenarioID }

// ScenarioName returns the remote scenario display name.
func (p *Plan) ScenarioName() string { return p.scenarioName }

// MarketID returns the remote market UUID for the current attempt.
func (p *Plan) MarketID() string { return p.marketID }

// MarketName returns the plan market display name.
func (p *Plan) MarketName() string { return p.marketName }

// Start returns the start time of the last run attempt.
func (p *Plan) Start() time.Time { return p.start }

// Result returns the terminal market state of the last successful run.
func (p *Plan) Result() MarketState { return p.result }

// UnplacedEntities reports whether the completed plan left entities
// unplaced.
func (p *Plan) UnplacedEntities() bool { return p.unplaced }

// Duration returns the server-reported run duration when available, falling
// back to the locally observed one.
func (p *Plan) Duration() time.Duration {
	if p.serverDuration > 0 {
		return p.serverDuration
	}
	return p.scriptDuration
}

// ServerDuration returns the run duration the server reported, or zero.
func (p *Plan) ServerDuration() time.Duration { return p.serverDuration }

// ScriptDuration returns the locally observed run duration.
func (p *Plan) ScriptDuration() time.Duration { return p.scriptDuration }

// SetPreHook registers a hook invoked once before the first run attempt.
func (p *Plan) SetPreHook(h Hook) { p.preHook = h }

// SetPostHook registers a hook invoked once after a successful run.
func (p *Plan) SetPostHook(h Hook) { p.postHook = h }

// IsSystemMarket reports whether the plan market is a protected system
// market.
func (p *Plan) IsSystemMarket() bool {
	for _, m := range systemMarkets {
		if p.marketName == m {
			return true
		}
	}
	return false
}

// State fetches the current remote market state.
func (p *Plan) State(ctx context.Context) (MarketState, error) {
	m, err := p.svc.Market(ctx, p.marketID)
	if err != nil {
		return "", err
	}
	p.initialized = true
	st, err := ParseMarketState(m.State)
	if err != nil {
		return "", NewPlanError("unexpected market state", err)
	}
	return st, nil
}

// Run compiles the spec, creates the remote scenario and market, and polls
// until a terminal state. Recoverable failures re-run the whole creation and
// polling sequence with fresh remote resources, up to the spec's attempt
// limit; exhausting it surfaces a consolidated error carrying the last
// failure.
func (p *Plan) Run(ctx context.Context) (MarketState, error) {
	ctx, span := telemetry.StartSpan(ctx, "plan.run",
		attribute.String("scenario.name", p.spec.Name),
		attribute.String("market.name", p.marketName))
	defer span.End()

	if p.preHook != nil {
		if err := p.preHook(ctx, p); err != nil {
			return "", NewPlanError("pre-processing hook failed", err)
		}
	}

	attempts := p.spec.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	p.result = ""
	for attempt := 1; attempt <= attempts; attempt++ {
		p.attempts = attempt
		if attempt > 1 {
			p.discardAttempt(ctx)
			p.metrics.RecordPlanRetry()
		}
		state, err := p.execute(ctx, false)
		if err == nil {
			p.result = state
			break
		}
		if !retryable(err) {
			p.phase = PhaseFailed
			return "", err
		}
		lastErr = err
		p.log.Warn().Err(err).Int("attempt", attempt).Msg("plan attempt failed")
	}

	if p.result == "" {
		p.phase = PhaseFailed
		return "", NewPlanError(fmt.Sprintf("retry limit reached after %d attempts", attempts), lastErr)
	}

	p.metrics.RecordPlanCompleted(string(p.result), p.Duration())
	if p.postHook != nil {
		if err := p.postHook(ctx, p); err != nil {
			return p.result, NewPlanError("post-processing hook failed", err)
		}
	}
	return p.result, nil
}

// RunAsync performs only the creation steps and returns the market state
// immediately. Polling, timeout enforcement, duration tracking, retry, and
// hooks do not apply.
func (p *Plan) RunAsync(ctx context.Context) (MarketState, error) {
	return p.execute(ctx, true)
}

// execute is one full create-and-poll attempt.
func (p *Plan) execute(ctx context.Context, async bool) (MarketState, error) {
	dto, err := p.spec.Render("")
	if err != nil {
		return "", err
	}
	if p.augmentScope {
		if err := p.augmentScopeEntries(ctx, dto); err != nil {
			return "", err
		}
	}

	scenario, err := p.createScenario(ctx, dto)
	if err != nil {
		return "", err
	}
	p.scenarioID = scenario.UUID
	p.scenarioName = scenario.DisplayName
	p.phase = PhaseScenarioCreated

	params := url.Values{"plan_market_name": []string{p.marketName}}
	for k, vs := range p.spec.MarketParams() {
		params[k] = vs
	}
	market, err := p.svc.ApplyScenario(ctx, p.baseMarket, p.scenarioID, params)
	if err != nil {
		return "", err
	}
	p.marketID = market.UUID
	p.marketName = market.DisplayName
	p.initialized = true
	p.start = p.clock.Now()
	p.phase = PhaseRunning
	p.metrics.RecordPlanStarted()
	p.log.Info().
		Str("scenario_id", p.scenarioID).
		Str("market_id", p.marketID).
		Msg("plan submitted")

	if async {
		return p.State(ctx)
	}

	if err := p.waitForPlan(ctx); err != nil {
		return "", err
	}
	p.syncServerData(ctx)
	p.scriptDuration = p.clock.Now().Sub(p.start)

	st, err := p.State(ctx)
	if err != nil {
		return "", err
	}
	switch st {
	case StateSucceeded:
		p.phase = PhaseSucceeded
	default:
		p.phase = PhaseStopped
	}
	return st, nil
}

// waitForPlan polls the market until a terminal state, enforcing the
// execution timeout and detecting plans that never start.
func (p *Plan) waitForPlan(ctx context.Context) error {
	waited := false
	for {
		st, err := p.State(ctx)
		if err != nil {
			return err
		}
		if st.terminal() {
			return nil
		}
		// a plan still in its initial state after the first wait never
		// started
		if waited && st == StateCreated {
			return NewRunFailure(
				fmt.Sprintf("plan failed to initialize; market %s, scenario %s", p.marketID, p.scenarioID),
				p.scenarioID, p.marketID)
		}

		if p.spec.Timeout > 0 && p.clock.Now().Sub(p.start) >= p.spec.Timeout {
			p.phase = PhaseAborting
			if err := p.stopOnTimeout(ctx); err != nil {
				return err
			}
			return NewTimeoutExceeded(fmt.Sprintf("plan execution exceeded %s, market state: %s", p.spec.Timeout, st))
		}

		if err := p.clock.Sleep(ctx, p.pollDelay()); err != nil {
			return err
		}
		waited = true
		p.metrics.RecordPollCycle()
	}
}

// pollDelay returns the caller-configured interval, or an adaptive one:
// one-twelfth of the elapsed time rounded up to the next 5s multiple, flat
// 60s once ten minutes have elapsed.
func (p *Plan) pollDelay() time.Duration {
	if p.spec.PollInterval > 0 {
		return p.spec.PollInterval
	}
	elapsed := p.clock.Now().Sub(p.start).Seconds()
	if elapsed >= 600 {
		return 60 * time.Second
	}
	return time.Duration(roundUp(elapsed/12, 5)) * time.Second
}

func roundUp(v float64, multiple int) int {
	n := int(math.Ceil(v)) + multiple - 1
	return n - n%multiple
}

// stopOnTimeout issues the stop request for an expired plan. A transient 502
// is swallowed; a 500 and any other transport failure escalate.
func (p *Plan) stopOnTimeout(ctx context.Context) error {
	err := p.svc.StopMarket(ctx, p.marketID)
	switch {
	case err == nil, api.IsTransient(err):
		return nil
	case api.StatusOf(err) == 500:
		return NewPlanError("server error stopping plan", err)
	default:
		return NewPlanError("plan stop command error", err)
	}
}

// Stop requests a stop of the running market and waits for it to take
// effect, bounded by the spec's abort timeout.
func (p *Plan) Stop(ctx context.Context) error {
	p.phase = PhaseAborting
	if err := p.svc.StopMarket(ctx, p.marketID); err != nil {
		if api.StatusOf(err) == 500 {
			return err
		}
		return NewPlanError("error stopping plan", err)
	}
	if err := p.waitForStop(ctx); err != nil {
		return err
	}
	p.scriptDuration = p.clock.Now().Sub(p.start)
	p.phase = PhaseStopped
	return nil
}

func (p *Plan) waitForStop(ctx context.Context) error {
	interval := p.spec.AbortPollInterval
	if p.spec.AbortTimeout < interval {
		interval = p.spec.AbortTimeout
	}
	begin := p.clock.Now()
	for {
		st, err := p.State(ctx)
		if err != nil {
			return err
		}
		if st.terminal() {
			return nil
		}
		if p.clock.Now().Sub(begin) > p.spec.AbortTimeout {
			return NewPlanError(fmt.Sprintf("plan did not stop within %s", p.spec.AbortTimeout), nil)
		}
		if err := p.clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Delete removes the plan market and, unless keepScenario is set, the
// scenario. Protected system markets and uninitialized plans are refused.
func (p *Plan) Delete(ctx context.Context, keepScenario bool) error {
	if p.IsSystemMarket() {
		return NewInvalidMarketError("refusing to delete a system market")
	}
	if !p.initialized {
		return NewInvalidMarketError("market does not exist")
	}
	if err := p.svc.DeleteMarket(ctx, p.marketID); err != nil {
		return NewDeprovisionError("failed to delete plan market", err)
	}
	if !keepScenario {
		if err := p.svc.DeleteScenario(ctx, p.scenarioID); err != nil {
			return NewDeprovisionError("market deleted but scenario removal failed", err)
		}
	}
	p.initialized = false
	return nil
}

// discardAttempt releases the remote resources of a failed attempt before a
// retry. Failures here are logged and ignored; the retry proceeds with fresh
// resources either way.
func (p *Plan) discardAttempt(ctx context.Context) {
	if p.marketID != "" {
		if err := p.svc.DeleteMarket(ctx, p.marketID); err != nil {
			p.log.Debug().Err(err).Str("market_id", p.marketID).Msg("failed to discard market")
		}
	}
	if p.scenarioID != "" {
		if err := p.svc.DeleteScenario(ctx, p.scenarioID); err != nil {
			p.log.Debug().Err(err).Str("scenario_id", p.scenarioID).Msg("failed to discard scenario")
		}
	}
	p.marketID = ""
	p.scenarioID = ""
	p.scenarioName = ""
	p.initialized = false
	p.phase = PhaseNew
}

// augmentScopeEntries copies entity display names and class names onto the
// DTO's scope references for server versions that reject bare UUID scopes.
func (p *Plan) augmentScopeEntries(ctx context.Context, dto map[string]any) error {
	scope, ok := dto["scope"].([]any)
	if !ok {
		return nil
	}
	for _, entry := range scope {
		ref, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id, _ := ref["uuid"].(string)
		if id == "" {
			continue
		}
		ent, err := p.svc.LookupEntity(ctx, id)
		if err != nil {
			return NewPlanError(fmt.Sprintf("unable to resolve scope entity %s", id), err)
		}
		ref["displayName"] = ent.DisplayName
		ref["className"] = ent.ClassName
	}
	return nil
}

// syncServerData refreshes market identity, placement, and server-side
// timing after a run. Parse failures are ignored; the locally observed
// duration still applies.
func (p *Plan) syncServerData(ctx context.Context) {
	m, err := p.svc.Market(ctx, p.marketID)
	if err != nil {
		p.log.Debug().Err(err).Msg("unable to sync market data")
		return
	}
	p.marketID = m.UUID
	p.marketName = m.DisplayName
	p.unplaced = m.UnplacedEntities

	started, err1 := time.Parse(serverTimeFormat, m.RunDate)
	finished, err2 := time.Parse(serverTimeFormat, m.RunCompleteDate)
	if err1 == nil && err2 == nil {
		p.serverDuration = finished.Sub(started)
	}
}

// retryable reports whether the outer envelope may re-run after err:
// plan-domain errors that are not caller mistakes, and server-side 5xx
// transport errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return api.IsServerError(err)
}
