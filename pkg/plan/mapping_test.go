package plan

import "testing"

func TestCompileSubstitution(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"name": "$value", "kind": "literal"},
	}
	dto, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"value": "x"}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if dto["name"] != "x" || dto["kind"] != "literal" {
		t.Errorf("unexpected dto %v", dto)
	}
}

func TestCompileUnknownTag(t *testing.T) {
	_, err := Compile(map[SettingTag]Definition{}, []*Setting{{Tag: "t", Fields: Fields{}}})
	if !IsKind(err, KindCompilation) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestCompileMissingSubstitution(t *testing.T) {
	defs := map[SettingTag]Definition{"t": {"name": "$value"}}
	_, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{}}})
	if !IsKind(err, KindCompilation) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestCompileListsAccumulate(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"items": []any{Definition{"id": "$id"}}},
	}
	settings := []*Setting{
		{Tag: "t", Fields: Fields{"id": "a"}},
		{Tag: "t", Fields: Fields{"id": "b"}},
	}
	dto, err := Compile(defs, settings)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	items := dto["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected accumulated items, got %v", items)
	}
}

func TestCompileNestedSectionsMerge(t *testing.T) {
	defs := map[SettingTag]Definition{
		"a": {"section": Definition{"left": "$v"}},
		"b": {"section": Definition{"right": "$v"}},
	}
	settings := []*Setting{
		{Tag: "a", Fields: Fields{"v": 1}},
		{Tag: "b", Fields: Fields{"v": 2}},
	}
	dto, err := Compile(defs, settings)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	sec := dto["section"].(map[string]any)
	if sec["left"] != 1 || sec["right"] != 2 {
		t.Errorf("expected merged section, got %v", sec)
	}
}

func TestCompileGroupExpansion(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"targets[ids]": []any{Definition{"uuid": "$uuid"}}},
	}
	fields := Fields{"ids": []any{Fields{"uuid": "a"}, Fields{"uuid": "b"}}}
	dto, err := Compile(defs, []*Setting{{Tag: "t", Fields: fields}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	targets := dto["targets"].([]any)
	if len(targets) != 2 {
		t.Fatalf("expected one element per group item, got %v", targets)
	}
	if targets[1].(map[string]any)["uuid"] != "b" {
		t.Errorf("expected group order preserved, got %v", targets)
	}
}

func TestCompileGroupEmptyCollection(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"targets[ids]": []any{Definition{"uuid": "$uuid"}}},
	}
	dto, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"ids": []any{}}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	targets, ok := dto["targets"].([]any)
	if !ok || targets == nil {
		t.Fatalf("expected an empty list, got %#v", dto["targets"])
	}
	if len(targets) != 0 {
		t.Errorf("expected no elements, got %v", targets)
	}
}

func TestCompileGroupMissingCollection(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"targets[ids]": []any{Definition{"uuid": "$uuid"}}},
	}
	_, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{}}})
	if !IsKind(err, KindCompilation) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestCompileTranslation(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"state": "@on:ENABLED;DISABLED"},
	}
	dto, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"on": true}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if dto["state"] != "ENABLED" {
		t.Errorf("expected ENABLED, got %v", dto["state"])
	}

	dto, err = Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"on": false}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if dto["state"] != "DISABLED" {
		t.Errorf("expected DISABLED, got %v", dto["state"])
	}

	// A boolean pair table only resolves boolean values.
	_, err = Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"on": "unexpected"}}})
	if !IsKind(err, KindCompilation) {
		t.Fatalf("expected compilation error for non-boolean value, got %v", err)
	}
}

func TestCompileTranslationPairs(t *testing.T) {
	defs := map[SettingTag]Definition{
		"t": {"mode": "@m:fast=TURBO;slow=ECO"},
	}
	dto, err := Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"m": "slow"}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if dto["mode"] != "ECO" {
		t.Errorf("expected ECO, got %v", dto["mode"])
	}

	_, err = Compile(defs, []*Setting{{Tag: "t", Fields: Fields{"m": "medium"}}})
	if !IsKind(err, KindCompilation) {
		t.Fatalf("expected compilation error for unmapped value, got %v", err)
	}
}
