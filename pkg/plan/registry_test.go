package plan

import "testing"

func TestRegistryAddAndHas(t *testing.T) {
	var r Registry
	if r.Has("tag.a") {
		t.Error("empty registry should not have any tag")
	}
	r.Add("tag.a", Fields{"x": 1})
	r.Add("tag.a", Fields{"x": 2})
	if !r.Has("tag.a") || r.Len() != 2 {
		t.Errorf("expected 2 entries of tag.a, got %d", r.Len())
	}
}

func TestRegistryUpdateMergesMatches(t *testing.T) {
	var r Registry
	r.Add("tag.a", Fields{"uuid": "one", "value": 1})
	r.Add("tag.a", Fields{"uuid": "two", "value": 2})

	r.Update("tag.a", Fields{"value": 9}, Fields{"uuid": "two"})
	if r.Entries()[0].Fields["value"] != 1 {
		t.Error("expected the unmatched entry untouched")
	}
	if r.Entries()[1].Fields["value"] != 9 {
		t.Error("expected the matched entry updated")
	}
	if r.Len() != 2 {
		t.Errorf("expected no new entry, got %d", r.Len())
	}
}

func TestRegistryUpdateAppendsWhenNothingMatches(t *testing.T) {
	var r Registry
	r.Update("tag.a", Fields{"uuid": "one"}, Fields{"uuid": "one"})
	if r.Len() != 1 {
		t.Fatalf("expected appended entry, got %d", r.Len())
	}
}

func TestRegistryUpdateNilFilterMatchesAll(t *testing.T) {
	var r Registry
	r.Add("tag.a", Fields{"value": 1})
	r.Add("tag.a", Fields{"value": 2})
	r.Update("tag.a", Fields{"value": 0}, nil)
	for _, e := range r.Entries() {
		if e.Fields["value"] != 0 {
			t.Errorf("expected every entry updated, got %v", e.Fields)
		}
	}
}

func TestRegistryDottedPaths(t *testing.T) {
	var r Registry
	r.Add("tag.a", Fields{"target": Fields{"uuid": "one"}})

	r.Update("tag.a", Fields{"target.name": "renamed"}, Fields{"target.uuid": "one"})
	target := r.Entries()[0].Fields["target"].(Fields)
	if target["name"] != "renamed" {
		t.Errorf("expected nested assignment, got %v", target)
	}

	r.Update("tag.a", Fields{"v": 1}, Fields{"target.uuid": "missing"})
	if r.Len() != 2 {
		t.Errorf("expected unmatched dotted filter to append, got %d entries", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	var r Registry
	r.Add("tag.a", Fields{"uuid": "one"})
	r.Add("tag.a", Fields{"uuid": "two"})
	r.Add("tag.b", Fields{"uuid": "three"})

	r.Remove("tag.a", Fields{"uuid": "one"})
	if r.Len() != 2 {
		t.Errorf("expected 2 entries after filtered remove, got %d", r.Len())
	}
	r.Remove("tag.a", nil)
	if r.Len() != 1 || !r.Has("tag.b") {
		t.Errorf("expected only tag.b left, got %d entries", r.Len())
	}
}
