package plan

import "testing"

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"5.9.0", "5.9.0", 0},
		{"5.9.0", "5.9.1", -1},
		{"6.1.0", "5.9.1", 1},
		{"7.21.5", "7.21.0", 1},
		{"7.21", "7.21.0", 0},
		{"8.0.6-SNAPSHOT", "8.0.6", 0},
		{"v6.4.2", "6.4.2", 0},
		{" 6.1.0 ", "6.1.0", 0},
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLookupGeneration(t *testing.T) {
	legacy, err := lookupGeneration("5.9.5")
	if err != nil {
		t.Fatalf("lookupGeneration failed: %v", err)
	}
	if !legacy.legacyAddFix {
		t.Error("expected the legacy generation for 5.9.5")
	}

	current, err := lookupGeneration("7.22.0")
	if err != nil {
		t.Fatalf("lookupGeneration failed: %v", err)
	}
	if current.legacyAddFix {
		t.Error("expected the structured generation for 7.22.0")
	}

	if _, err := lookupGeneration("4.0.0"); err == nil {
		t.Error("expected error below the oldest generation")
	}
}
