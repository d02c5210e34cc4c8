package plan

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"time"
)

// Default run parameters, matching the server's own polling expectations.
const (
	DefaultAbortTimeout      = 5 * time.Minute
	DefaultAbortPollInterval = 5 * time.Second
	DefaultMaxAttempts       = 3
)

// defaults the server applies to the desired-state band; seeded so a partial
// change still renders a complete setting.
const (
	defaultDesiredStateCenter   = 70
	defaultDesiredStateDiameter = 10
)

// Spec is a plan scenario specification. It owns the setting registry and is
// mutated through named operations; a Plan consumes it once per compilation.
// A Spec is not safe for concurrent mutation.
type Spec struct {
	// Name is the scenario display name.
	Name string
	// Type is the plan scenario type.
	Type PlanType
	// Version is the target protocol version. Resolved from the server by
	// the Plan when left empty.
	Version string
	// IgnoreConstraints requests a market-wide constraint-free run.
	IgnoreConstraints bool

	// Timeout bounds plan execution; zero disables the bound.
	Timeout time.Duration
	// PollInterval fixes the status polling interval; zero selects the
	// adaptive interval.
	PollInterval time.Duration
	// AbortTimeout bounds the wait for a stop request to take effect.
	AbortTimeout time.Duration
	// AbortPollInterval is the polling interval while waiting for a stop.
	AbortPollInterval time.Duration
	// MaxAttempts bounds the outer retry envelope.
	MaxAttempts int

	registry   Registry
	scope      []any
	projection map[int]struct{}
}

// NewSpec creates a specification with default run parameters. An empty name
// generates a timestamped one.
func NewSpec(name string) *Spec {
	if name == "" {
		name = "CUSTOM_" + time.Now().Format("20060102_150405")
	}
	return &Spec{
		Name:              name,
		Type:              Custom,
		AbortTimeout:      DefaultAbortTimeout,
		AbortPollInterval: DefaultAbortPollInterval,
		MaxAttempts:       DefaultMaxAttempts,
		scope:             []any{},
		projection:        map[int]struct{}{0: {}},
	}
}

// Registry exposes the underlying setting registry.
func (s *Spec) Registry() *Registry {
	return &s.registry
}

// SetScope replaces the plan scope with the given entity or group UUIDs.
func (s *Spec) SetScope(targets ...string) {
	s.scope = valueRefs(targets)
}

// ExtendScope appends targets to the current scope.
func (s *Spec) ExtendScope(targets ...string) {
	s.scope = append(s.scope, valueRefs(targets)...)
}

// EntityChange describes one workload change for ChangeEntity.
type EntityChange struct {
	Action EntityAction
	// Targets are entity or group UUIDs the change applies to.
	Targets []string
	// Projection lists the days at which the change takes effect; nil means
	// day zero.
	Projection []int
	// Count is the number of copies to add; zero means one.
	Count int
	// NewTarget is the replacement template for ActionReplace, or the
	// destination for ActionMigrate.
	NewTarget string
}

// ChangeEntity adds, removes, replaces, or migrates entities in the plan.
func (s *Spec) ChangeEntity(c EntityChange) error {
	if len(c.Targets) == 0 {
		return NewPlanError("entity change requires at least one target", nil)
	}
	if (c.Action == ActionReplace || c.Action == ActionMigrate) && c.NewTarget == "" {
		return NewPlanError(fmt.Sprintf("entity %s requires a new target", c.Action), nil)
	}
	projection := c.Projection
	if len(projection) == 0 {
		projection = []int{0}
	}
	s.addProjection(projection...)

	for _, id := range c.Targets {
		fields := Fields{"target": id}
		switch c.Action {
		case ActionAdd:
			count := c.Count
			if count == 0 {
				count = 1
			}
			fields["count"] = count
			fields["projection"] = projection
		case ActionReplace:
			fields["template"] = c.NewTarget
			fields["projection"] = projection[0]
		case ActionMigrate:
			fields["source"] = id
			fields["destination"] = c.NewTarget
			fields["projection"] = projection[0]
		case ActionRemove:
			fields["projection"] = projection[0]
		default:
			return NewPlanError(fmt.Sprintf("unknown entity action %q", c.Action), nil)
		}
		s.registry.Add(c.Action.tag(), fields)
	}
	return nil
}

// ChangeAutomationSetting toggles an automation setting, or adjusts the
// desired-state band when given UtilTarget or TargetBand with a numeric
// value.
func (s *Spec) ChangeAutomationSetting(setting AutomationSetting, value any) error {
	switch setting {
	case UtilTarget, TargetBand:
		if !isNumber(value) {
			return NewPlanError(fmt.Sprintf("%s requires a numeric value", setting), nil)
		}
		label := "center"
		if setting == TargetBand {
			label = "diameter"
		}
		if !s.registry.Has(TagDesiredState) {
			s.registry.Add(TagDesiredState, Fields{
				"center":   defaultDesiredStateCenter,
				"diameter": defaultDesiredStateDiameter,
			})
		}
		s.registry.Update(TagDesiredState, Fields{label: value}, nil)
		return nil

	case Resize:
		enabled, ok := value.(bool)
		if !ok {
			return NewPlanError(fmt.Sprintf("%s requires a boolean value", setting), nil)
		}
		state := "DISABLED"
		if enabled {
			state = "ENABLED"
		}
		s.registry.Update(setting.tag(), Fields{
			"uuid":  string(setting),
			"value": enabled,
			"type":  state,
			"desc":  "Resize " + state,
		}, nil)
		return nil

	case ProvisionHost, SuspendHost, ProvisionStorage, SuspendStorage:
		enabled, ok := value.(bool)
		if !ok {
			return NewPlanError(fmt.Sprintf("%s requires a boolean value", setting), nil)
		}
		s.registry.Add(setting.tag(), Fields{"uuid": string(setting), "value": enabled})
		return nil
	}
	return NewPlanError(fmt.Sprintf("unknown automation setting %q", setting), nil)
}

// ChangeMaxUtilization caps the percentage of a commodity's capacity the
// targets may consume. The commodity type is only honored by legacy protocol
// generations. Repeated calls for the same target overwrite in place.
func (s *Spec) ChangeMaxUtilization(targets []string, commodity string, value, projection int) {
	for _, id := range targets {
		s.registry.Update(TagMaxUtilization, Fields{
			"uuid":       id,
			"util":       value,
			"projection": projection,
			"type":       commodity,
		}, Fields{"uuid": id})
	}
}

// ChangeUtilization shifts the targets' load by the given percentage.
// Repeated calls for the same target overwrite in place.
func (s *Spec) ChangeUtilization(targets []string, value, projection int) {
	for _, id := range targets {
		s.registry.Update(TagUtilization, Fields{
			"uuid":       id,
			"util":       value,
			"projection": projection,
		}, Fields{"uuid": id})
	}
}

// RemoveConstraints removes the given placement constraint from the targets.
// With no targets and no commodity the whole market runs unconstrained.
func (s *Spec) RemoveConstraints(targets []string, commodity ConstraintCommodity, projection int) {
	if len(targets) > 0 && commodity != "" {
		for _, id := range targets {
			s.registry.Update(TagConstraint, Fields{
				"uuid":       id,
				"name":       string(commodity),
				"value":      false,
				"projection": projection,
			}, Fields{"uuid": id})
		}
		return
	}
	if len(targets) == 0 && commodity == "" {
		s.IgnoreConstraints = true
	}
}

// RelievePressure migrates workload from hot source clusters to cold
// destination clusters. Both sides join the plan scope.
func (s *Spec) RelievePressure(sources, destinations []string, projection int) {
	s.ExtendScope(sources...)
	s.ExtendScope(destinations...)
	s.registry.Add(TagRelievePressure, Fields{
		"source":      valueRefs(sources),
		"destination": valueRefs(destinations),
		"projection":  projection,
	})
	s.addProjection(projection)
}

// SetHistoricalBaseline loads used and peak utilization from historical data
// at the given epoch timestamp (seconds or milliseconds).
func (s *Spec) SetHistoricalBaseline(epoch int64) {
	s.registry.Update(TagHistBaseline, Fields{
		"value": epoch,
		"date":  epochToTimestamp(epoch),
	}, nil)
}

// SetPeakBaseline loads a peak baseline from history for the given cluster
// targets.
func (s *Spec) SetPeakBaseline(targets []string, epoch int64) {
	for _, id := range targets {
		s.registry.Update(TagPeakBaseline, Fields{
			"uuid":  id,
			"value": epoch,
			"date":  epochToTimestamp(epoch),
		}, Fields{"uuid": id})
	}
}

// AddHistorical adds workload based on the previous month.
func (s *Spec) AddHistorical(value bool) {
	s.registry.Update(TagAddHistorical, Fields{"value": value}, nil)
}

// IncludeReserved includes reserved workloads in the plan.
func (s *Spec) IncludeReserved(value bool) {
	s.registry.Update(TagIncludeReserved, Fields{"value": value}, nil)
}

// OSMigration maps one source OS to a target OS in a custom migration
// profile.
type OSMigration struct {
	Source     CloudOS
	Target     CloudOS
	Unlicensed *bool
}

// OSProfile configures the OS migration profile for cloud migration plans.
// Exactly one of Custom, the Source/Target pair, or the MatchSource /
// Unlicensed defaults applies, checked in that order.
type OSProfile struct {
	MatchSource *bool
	Unlicensed  *bool
	Source      CloudOS
	Target      CloudOS
	Custom      []OSMigration
}

// CloudOSProfile applies an OS migration profile to the plan.
func (s *Spec) CloudOSProfile(p OSProfile) {
	switch {
	case len(p.Custom) > 0:
		match := false
		s.CloudOSProfile(OSProfile{MatchSource: &match})
		for _, m := range p.Custom {
			s.updateOSSetting(m.Source.targetSetting(), string(m.Target))
			if m.Unlicensed != nil {
				s.updateOSSetting(m.Source.licenseSetting(), *m.Unlicensed)
			}
		}

	case p.Source != "" && p.Target != "":
		s.updateOSSetting(p.Source.targetSetting(), string(p.Target))
		if p.Unlicensed != nil {
			s.updateOSSetting(p.Source.licenseSetting(), *p.Unlicensed)
		}

	default:
		if p.MatchSource != nil {
			s.updateOSSetting("matchToSource", *p.MatchSource)
		}
		if p.Unlicensed != nil {
			for _, os := range []CloudOS{OSLinux, OSRHEL, OSSLES, OSWindows} {
				s.updateOSSetting(os.licenseSetting(), *p.Unlicensed)
			}
		}
	}
}

func (s *Spec) updateOSSetting(uuid string, value any) {
	s.registry.Update(TagOSMigration, Fields{"uuid": uuid, "value": value}, Fields{"uuid": uuid})
}

// MarketParams returns the extra query parameters applied when the plan
// market is created.
func (s *Spec) MarketParams() url.Values {
	if !s.IgnoreConstraints {
		return nil
	}
	return url.Values{"ignore_constraints": []string{"true"}}
}

// ProjectionDays returns the requested projection-day offsets, deduplicated
// and sorted; day zero is always present.
func (s *Spec) ProjectionDays() []int {
	days := make([]int, 0, len(s.projection))
	for d := range s.projection {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// ExtendProjection adds projection-day offsets beyond the ones implied by
// entity changes.
func (s *Spec) ExtendProjection(days ...int) {
	s.addProjection(days...)
}

func (s *Spec) addProjection(days ...int) {
	for _, d := range days {
		s.projection[d] = struct{}{}
	}
}

// settings assembles the full ordered entry list for compilation: the
// scenario identity entries followed by the registry in insertion order.
func (s *Spec) settings() []*Setting {
	out := []*Setting{
		{Tag: TagName, Fields: Fields{"value": s.Name}},
		{Tag: TagProjection, Fields: Fields{"list": s.ProjectionDays()}},
		{Tag: TagScope, Fields: Fields{"scope": s.scope}},
		{Tag: TagType, Fields: Fields{"value": string(s.Type)}},
	}
	return append(out, s.registry.Entries()...)
}

// Render compiles the specification into the wire DTO for the given protocol
// version. An empty version falls back to the spec's resolved version.
func (s *Spec) Render(version string) (map[string]any, error) {
	if version == "" {
		version = s.Version
	}
	if version == "" {
		return nil, NewPlanError("unable to map settings without a target version", nil)
	}

	gen, err := lookupGeneration(version)
	if err != nil {
		return nil, err
	}

	settings := s.settings()
	if len(gen.collations) > 0 {
		settings = collate(settings, gen.collations)
	}

	dto, err := Compile(gen.defs, settings)
	if err != nil {
		return nil, err
	}
	if gen.legacyAddFix {
		fixLegacyRepeatedAdds(dto)
	}
	return dto, nil
}

// RenderJSON compiles the specification and serializes it canonically.
func (s *Spec) RenderJSON(version string) ([]byte, error) {
	dto, err := s.Render(version)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(dto, "", "  ")
}

// fixLegacyRepeatedAdds rewrites multi-projection ADDED changes to the
// ADD_REPEAT type the legacy generation expects.
func fixLegacyRepeatedAdds(dto map[string]any) {
	changes, ok := dto["changes"].([]any)
	if !ok {
		return
	}
	for _, c := range changes {
		change, ok := c.(map[string]any)
		if !ok || change["type"] != "ADDED" {
			continue
		}
		days := reflect.ValueOf(change["projectionDays"])
		if days.Kind() == reflect.Slice && days.Len() > 1 {
			change["type"] = "ADD_REPEAT"
		}
	}
}

// valueRefs wraps ids into the {"value": id} reference form group expansion
// iterates over.
func valueRefs(ids []string) []any {
	refs := make([]any, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, Fields{"value": id})
	}
	return refs
}

// epochToTimestamp renders an epoch value given in seconds or milliseconds
// as an ISO 8601 timestamp.
func epochToTimestamp(epoch int64) string {
	if epoch > 9999999999 {
		epoch /= 1000
	}
	return time.Unix(epoch, 0).UTC().Format("2006-01-02T15:04:05Z")
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
