// Package policy provides Open Policy Agent (OPA) guardrails for plan
// submission.
//
// This package evaluates Rego policies against compiled scenario documents
// before they are sent to the analysis service. It includes built-in
// policies for common governance requirements and supports custom policy
// loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine and evaluating a scenario:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := eng.Evaluate(ctx, &policy.Input{
//	    Scenario: scenarioDTO,
//	    Context:  &policy.Context{Operation: "submit"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/planvisor/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = eng.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. scenario-scope - Requires a non-empty, well-formed scope
//  2. projection-horizon - Limits projection periods to two years
//  3. scenario-naming - Display-name requirements and protected names
//  4. automation-lockout - Flags risky automation combinations
//  5. topology-change-limit - Caps workload addition counts
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.projection
//
//	import rego.v1
//
//	deny contains violation if {
//	    some day in input.scenario.projectionDays
//	    day > 180
//
//	    violation := {
//	        "message": "plans beyond 180 days need capacity-team sign-off",
//	        "severity": "error",
//	        "field": "projectionDays",
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block submission
//  - error: Issues that block submission
//  - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery for optimal performance. Caching is
// implemented at both the loader and engine levels.
package policy
