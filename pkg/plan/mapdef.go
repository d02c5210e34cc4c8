package plan

import "fmt"

// Definition is one map-definition node: a tree keyed by wire field name.
// Leaf values are literals, substitution references ("$field"), or translated
// references ("@field:table"). A []any value is a list node whose elements
// render once per entry, or once per item of a named group collection when
// the key carries a "[group]" label ("targets[ids]"). Definitions are
// immutable, version-scoped constants.
type Definition map[string]any

// defs590 is the legacy wire shape. Every setting renders into the flat
// "changes" list and same-tag entries are collated before rendering.
var defs590 = map[SettingTag]Definition{
	TagName: {"displayName": "$value"},
	TagType: {"type": "$value"},

	TagScope:           {"changes": []any{Definition{"type": "SCOPE", "scope[scope]": []any{Definition{"uuid": "$value"}}}}},
	TagProjection:      {"changes": []any{Definition{"type": "PROJECTION_PERIODS", "projectionDays": "$list"}}},
	TagDesiredState:    {"changes": []any{Definition{"type": "SET", "projectionDays": []any{0}, "center": "$center", "diameter": "$diameter"}}},
	TagHistBaseline:    {"changes": []any{Definition{"type": "SET_HIST_BASELINE", "value": "$value"}}},
	TagPeakBaseline:    {"changes": []any{Definition{"type": "SET_PEAK_BASELINE", "value": "$value", "targets[ids]": []any{Definition{"uuid": "$uuid"}}}}},
	TagAddHistorical:   {"changes": []any{Definition{"type": "ADD_HIST", "enable": "$value"}}},
	TagIncludeReserved: {"changes": []any{Definition{"type": "INCLUDE_RESERVED", "enable": "$value"}}},
	TagMaxUtilization:  {"changes": []any{Definition{"type": "SET_MAX_UTILIZATION", "maxUtilType": "$type", "value": "$util", "targets[ids]": []any{Definition{"uuid": "$uuid"}}}}},
	TagUtilization:     {"changes": []any{Definition{"type": "SET_USED", "value": "$util", "projectionDays": []any{"$projection"}, "targets[ids]": []any{Definition{"uuid": "$uuid"}}}}},

	ProvisionHost.tag():    {"changes": []any{Definition{"type": "SET_ACTION_SETTING", "name": "provision", "value": "PhysicalMachine", "enable": "$value"}}},
	SuspendHost.tag():      {"changes": []any{Definition{"type": "SET_ACTION_SETTING", "name": "suspend", "value": "PhysicalMachine", "enable": "$value"}}},
	ProvisionStorage.tag(): {"changes": []any{Definition{"type": "SET_ACTION_SETTING", "name": "provision", "value": "Storage", "enable": "$value"}}},
	SuspendStorage.tag():   {"changes": []any{Definition{"type": "SET_ACTION_SETTING", "name": "suspend", "value": "Storage", "enable": "$value"}}},
	Resize.tag():           {"changes": []any{Definition{"type": "$type", "name": "resize", "enable": "$value", "description": "$desc"}}},

	TagConstraint: {"changes": []any{Definition{"type": "CONSTRAINTCHANGED", "projectionDays": []any{"$projection"}, "name": "$name", "enable": "$value", "targets": []any{Definition{"uuid": "$uuid"}}}}},

	ActionAdd.tag():     {"changes": []any{Definition{"type": "ADDED", "projectionDays": "$projection", "targets": []any{Definition{"uuid": "$target"}}}}},
	ActionMigrate.tag(): {"changes": []any{Definition{"type": "MIGRATION", "projectionDays": "$projection", "targets": []any{Definition{"uuid": "$source"}, Definition{"uuid": "$destination"}}}}},
	ActionRemove.tag():  {"changes": []any{Definition{"type": "REMOVED", "projectionDays": "$projection", "targets": []any{Definition{"uuid": "$target"}}}}},
	ActionReplace.tag(): {"changes": []any{Definition{"type": "REPLACED", "projectionDays": "$projection", "targets": []any{Definition{"uuid": "$target"}, Definition{"uuid": "$template"}}}}},
}

// collations590 folds repeated per-target entries into the grouped arrays the
// legacy shape expects.
var collations590 = map[SettingTag]Collation{
	TagMaxUtilization: {Groups: []CollationGroup{{Label: "ids", Fields: []string{"uuid"}}}, KeepLast: true},
	TagUtilization:    {Groups: []CollationGroup{{Label: "ids", Fields: []string{"uuid"}}}, KeepLast: true},
	TagPeakBaseline:   {Groups: []CollationGroup{{Label: "ids", Fields: []string{"uuid"}}}, KeepLast: true},
}

// defs610 is the structured wire shape: settings render into the
// configChanges / loadChanges / topologyChanges / timebasedTopologyChanges
// sections.
var defs610 = map[SettingTag]Definition{
	TagName:       {"displayName": "$value"},
	TagType:       {"type": "$value"},
	TagScope:      {"scope[scope]": []any{Definition{"uuid": "$value"}}},
	TagProjection: {"projectionDays": "$list"},

	TagDesiredState: {"configChanges": Definition{"automationSettingList": []any{
		Definition{"uuid": "utilTarget", "value": "$center"},
		Definition{"uuid": "targetBand", "value": "$diameter"},
	}}},
	ProvisionHost.tag():    {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "$uuid", "value": "$value", "entityType": "PhysicalMachine"}}}},
	SuspendHost.tag():      {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "$uuid", "value": "$value", "entityType": "PhysicalMachine"}}}},
	ProvisionStorage.tag(): {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "$uuid", "value": "$value", "entityType": "Storage"}}}},
	SuspendStorage.tag():   {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "$uuid", "value": "$value", "entityType": "Storage"}}}},
	Resize.tag():           {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "$uuid", "value": "$value", "entityType": "VirtualMachine"}}}},

	TagOSMigration: {"configChanges": Definition{"osMigrationSettingsList": []any{Definition{"uuid": "$uuid", "value": "$value"}}}},
	TagConstraint:  {"configChanges": Definition{"removeConstraintList": []any{Definition{"projectionDay": "$projection", "constraintType": "$name", "target": Definition{"uuid": "$uuid"}}}}},

	TagHistBaseline:   {"loadChanges": Definition{"baselineDate": "$date"}},
	TagPeakBaseline:   {"loadChanges": Definition{"peakBaselineList": []any{Definition{"date": "$date", "target": Definition{"uuid": "$uuid"}}}}},
	TagMaxUtilization: {"loadChanges": Definition{"maxUtilizationList": []any{Definition{"maxPercentage": "$util", "projectionDay": "$projection", "target": Definition{"uuid": "$uuid"}}}}},
	TagUtilization:    {"loadChanges": Definition{"utilizationList": []any{Definition{"percentage": "$util", "projectionDay": "$projection", "target": Definition{"uuid": "$uuid"}}}}},

	TagAddHistorical:   {"timebasedTopologyChanges": Definition{"addHistoryVMs": "$value"}},
	TagIncludeReserved: {"timebasedTopologyChanges": Definition{"includeReservation": "$value"}},

	ActionAdd.tag():     {"topologyChanges": Definition{"addList": []any{Definition{"count": "$count", "projectionDays": "$projection", "target": Definition{"uuid": "$target"}}}}},
	ActionMigrate.tag(): {"topologyChanges": Definition{"migrateList": []any{Definition{"projectionDay": "$projection", "source": Definition{"uuid": "$source"}, "destination": Definition{"uuid": "$destination"}}}}},
	ActionRemove.tag():  {"topologyChanges": Definition{"removeList": []any{Definition{"projectionDay": "$projection", "target": Definition{"uuid": "$target"}}}}},
	ActionReplace.tag(): {"topologyChanges": Definition{"replaceList": []any{Definition{"projectionDay": "$projection", "target": Definition{"uuid": "$target"}, "template": Definition{"uuid": "$template"}}}}},

	TagRelievePressure: {"topologyChanges": Definition{"relievePressureList": []any{Definition{"projectionDay": "$projection", "sources[source]": []any{Definition{"uuid": "$value"}}, "destinations[destination]": []any{Definition{"uuid": "$value"}}}}}},
}

// patch721 overrides the automation toggles for servers that expect
// enumerated setting values instead of booleans.
var patch721 = map[SettingTag]Definition{
	ProvisionHost.tag():    {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "provision", "value": "@value:ENABLED;DISABLED", "entityType": "PhysicalMachine"}}}},
	SuspendHost.tag():      {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "suspend", "value": "@value:ENABLED;DISABLED", "entityType": "PhysicalMachine"}}}},
	ProvisionStorage.tag(): {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "provision", "value": "@value:ENABLED;DISABLED", "entityType": "Storage"}}}},
	SuspendStorage.tag():   {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "suspend", "value": "@value:ENABLED;DISABLED", "entityType": "Storage"}}}},
	Resize.tag():           {"configChanges": Definition{"automationSettingList": []any{Definition{"uuid": "resize", "value": "@value:ENABLED;DISABLED", "entityType": "VirtualMachine"}}}},
}

// generation describes one protocol generation in the version table.
type generation struct {
	// min is the lowest server version this generation applies to.
	min  string
	defs map[SettingTag]Definition

	// patches are version-specific overrides applied on top of defs.
	patches []patch

	collations map[SettingTag]Collation

	// legacyAddFix rewrites multi-projection ADDED changes to ADD_REPEAT
	// after rendering.
	legacyAddFix bool
}

type patch struct {
	min  string
	defs map[SettingTag]Definition
}

// generations is ordered by ascending minimum version; selection picks the
// highest threshold not exceeding the server's reported version.
var generations = []generation{
	{
		min:          "5.9.0",
		defs:         defs590,
		collations:   collations590,
		legacyAddFix: true,
	},
	{
		min:     "6.1.0",
		defs:    defs610,
		patches: []patch{{min: "7.21", defs: patch721}},
	},
}

// resolvedGeneration is a generation with its patches folded in for a
// concrete server version.
type resolvedGeneration struct {
	defs         map[SettingTag]Definition
	collations   map[SettingTag]Collation
	legacyAddFix bool
}

// lookupGeneration selects and resolves the map definition set for the given
// server version.
func lookupGeneration(version string) (*resolvedGeneration, error) {
	var sel *generation
	for i := range generations {
		if CompareVersions(version, generations[i].min) >= 0 {
			sel = &generations[i]
		}
	}
	if sel == nil {
		return nil, NewPlanError(fmt.Sprintf("no settings map for version %s", version), nil)
	}

	defs := sel.defs
	for _, p := range sel.patches {
		if CompareVersions(version, p.min) < 0 {
			continue
		}
		merged := make(map[SettingTag]Definition, len(defs))
		for k, v := range defs {
			merged[k] = v
		}
		for k, v := range p.defs {
			merged[k] = v
		}
		defs = merged
	}

	return &resolvedGeneration{
		defs:         defs,
		collations:   sel.collations,
		legacyAddFix: sel.legacyAddFix,
	}, nil
}
