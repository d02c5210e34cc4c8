package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const scopeRego = `# Requires every scenario to carry a scope.
# Unscoped plans run against the full market.
package planvisor.scope

deny[msg] {
	count(input.scenario.scope) == 0
	msg := "scenario has no scope"
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromPathsRegoFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scope.rego", scopeRego)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "scope" {
		t.Errorf("expected name from file name, got %q", p.Name)
	}
	if p.Description != "Requires every scenario to carry a scope. Unscoped plans run against the full market." {
		t.Errorf("unexpected description %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("expected default warning severity, got %s", p.Severity)
	}
	if !p.Enabled {
		t.Error("expected loaded policy to be enabled")
	}
}

func TestLoadFromPathsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scope.rego", scopeRego)
	writeFile(t, dir, "horizon.json", `{"name": "horizon", "rego": "package planvisor.horizon\n", "severity": "error"}`)
	writeFile(t, dir, "notes.txt", "not a policy")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}

	byName := map[string]Policy{}
	for _, p := range policies {
		byName[p.Name] = p
	}
	if byName["horizon"].Severity != SeverityError {
		t.Errorf("expected JSON severity to be kept, got %s", byName["horizon"].Severity)
	}
	if _, ok := byName["scope"]; !ok {
		t.Error("rego policy missing from directory load")
	}
}

func TestLoadFromPathsSkipsBrokenFilesInDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scope.rego", scopeRego)
	writeFile(t, dir, "broken.json", "{not json")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "scope" {
		t.Fatalf("expected the broken file to be skipped, got %v", policies)
	}
}

func TestLoadFromPathsMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/no/such/policy.rego"}); err == nil {
		t.Fatal("expected error for a missing path")
	}
}

func TestLoadFromPathsBrokenSingleFileFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", "{not json")

	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
		t.Fatal("expected error for an explicitly named broken file")
	}
}

func TestJSONPolicyDefaults(t *testing.T) {
	p, err := policyFromJSON([]byte(`{"name": "bare", "rego": "package planvisor.bare\n"}`))
	if err != nil {
		t.Fatalf("policyFromJSON failed: %v", err)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("expected default severity, got %s", p.Severity)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be defaulted")
	}
}

func TestRegoDescriptionStopsAtCode(t *testing.T) {
	src := "# First line.\npackage x\n# Not part of the description.\n"
	if got := regoDescription(src); got != "First line." {
		t.Errorf("expected description to end at the first code line, got %q", got)
	}
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := Bundle{
		Name:    "baseline",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "scope", Rego: scopeRego, Severity: SeverityError, Enabled: true},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}
	path := writeFile(t, dir, "baseline.json", string(data))

	loader := NewLoader(zerolog.Nop())
	loaded, err := loader.LoadBundle(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if loaded.Name != "baseline" || len(loaded.Policies) != 1 {
		t.Fatalf("unexpected bundle %+v", loaded)
	}
	if loaded.Policies[0].Severity != SeverityError {
		t.Errorf("expected bundle policy severity to survive, got %s", loaded.Policies[0].Severity)
	}
}

func TestLoadBundleInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", "{not a bundle")

	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadBundle(context.Background(), path); err == nil {
		t.Fatal("expected error for malformed bundle")
	}
}
