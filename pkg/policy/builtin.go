package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		scenarioScopePolicy(),
		projectionHorizonPolicy(),
		scenarioNamingPolicy(),
		automationLockoutPolicy(),
		topologyChangePolicy(),
	}
}

// scenarioScopePolicy requires plans to run against an explicit scope.
func scenarioScopePolicy() Policy {
	return Policy{
		Name:        "scenario-scope",
		Description: "Requires a non-empty scope so plans never run against the full market by accident",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"scope", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package planvisor.policies.scope

import rego.v1

# Plans must not run against the entire market
deny contains violation if {
	not input.scenario.scope
	violation := {
		"message": "scenario must define a scope; unscoped plans run against the full market",
		"severity": "error",
		"field": "scope",
	}
}

deny contains violation if {
	count(input.scenario.scope) == 0
	violation := {
		"message": "scenario scope is empty; unscoped plans run against the full market",
		"severity": "error",
		"field": "scope",
	}
}

deny contains violation if {
	some entry in input.scenario.scope
	not entry.uuid
	violation := {
		"message": "scenario scope entry is missing its uuid",
		"severity": "error",
		"field": "scope",
	}
}
`,
	}
}

// projectionHorizonPolicy bounds how far into the future a plan projects.
func projectionHorizonPolicy() Policy {
	return Policy{
		Name:        "projection-horizon",
		Description: "Limits projection periods to a two-year horizon",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"projection"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package planvisor.policies.projection

import rego.v1

max_projection_days := 730

deny contains violation if {
	some day in input.scenario.projectionDays
	day > max_projection_days
	violation := {
		"message": sprintf("projection day %d exceeds the %d day horizon", [day, max_projection_days]),
		"severity": "error",
		"field": "projectionDays",
	}
}

deny contains violation if {
	some day in input.scenario.projectionDays
	day < 0
	violation := {
		"message": sprintf("projection day %d is negative", [day]),
		"severity": "error",
		"field": "projectionDays",
	}
}
`,
	}
}

// scenarioNamingPolicy enforces scenario display-name conventions.
func scenarioNamingPolicy() Policy {
	return Policy{
		Name:        "scenario-naming",
		Description: "Requires a display name and keeps it within server limits",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package planvisor.policies.naming

import rego.v1

deny contains violation if {
	not input.scenario.displayName
	violation := {
		"message": "scenario must have a display name",
		"severity": "error",
		"field": "displayName",
	}
}

deny contains violation if {
	name := input.scenario.displayName
	count(name) > 255
	violation := {
		"message": sprintf("scenario name '%s' exceeds 255 characters", [name]),
		"severity": "error",
		"field": "displayName",
	}
}

# Reserved market names must never be used for plan scenarios
deny contains violation if {
	name := input.scenario.displayName
	name in {"Market", "Market_Default"}
	violation := {
		"message": sprintf("scenario name '%s' collides with a protected market", [name]),
		"severity": "critical",
		"field": "displayName",
	}
}
`,
	}
}

// automationLockoutPolicy flags risky automation combinations.
func automationLockoutPolicy() Policy {
	return Policy{
		Name:        "automation-lockout",
		Description: "Flags host provisioning automation combined with constraint-free placement",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"automation", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package planvisor.policies.automation

import rego.v1

enabled_values := {"true", "ENABLED", true}

deny contains violation if {
	input.context.ignore_constraints == true
	some setting in input.scenario.configChanges.automationSettingList
	setting.uuid == "provision"
	setting.entityType == "PhysicalMachine"
	setting.value in enabled_values
	violation := {
		"message": "host provisioning automation with constraints ignored can size unbounded hardware",
		"severity": "warning",
		"field": "configChanges",
	}
}
`,
	}
}

// topologyChangePolicy bounds the size of workload additions.
func topologyChangePolicy() Policy {
	return Policy{
		Name:        "topology-change-limit",
		Description: "Caps per-template workload addition counts",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"topology"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package planvisor.policies.topology

import rego.v1

max_add_count := 10000

deny contains violation if {
	some change in input.scenario.topologyChanges.addList
	change.count > max_add_count
	violation := {
		"message": sprintf("adding %d instances of %s exceeds the %d instance cap", [change.count, change.target.uuid, max_add_count]),
		"severity": "warning",
		"field": "topologyChanges",
	}
}
`,
	}
}
