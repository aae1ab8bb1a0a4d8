package taskset

import (
	"sort"
	"testing"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "1", 0},
		{"1", "2", -1},
		{"2", "10", -1},
		{"10", "2", 1},
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"1", "1.1", -1},
		{"1.1", "1", 1},
		{"3.1.4", "3.1.5", -1},
		{"3.1.4", "3.1.4", 0},
		{"a", "b", -1},
		{"1.a", "1.b", -1},
		{"2", "a", -1}, // numeric vs non-numeric falls back to string order
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompareIDs_SortsHierarchically(t *testing.T) {
	ids := []string{"2.1", "1", "10", "1.10", "1.2", "2"}
	sort.Slice(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })

	want := []string{"1", "1.2", "1.10", "2", "2.1", "10"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted ids = %v, want %v", ids, want)
		}
	}
}

func TestParentID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"1", ""},
		{"1.2", "1"},
		{"3.1.4", "3.1"},
	}
	for _, tt := range tests {
		if got := ParentID(tt.id); got != tt.want {
			t.Errorf("ParentID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
