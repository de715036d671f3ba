package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	active := StatusActive
	done := StatusDone

	tests := []struct {
		name     string
		old      *Snapshot
		new      *Snapshot
		wantDiff *SnapshotDiff // nil means no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Snapshot{
				ID:            "i-1",
				Configuration: []string{"a"},
				Status:        StatusActive,
				Context:       Context{"n": 1},
			},
			wantDiff: &SnapshotDiff{
				ID:      "i-1",
				Entered: []string{"a"},
				Status:  &active,
				Context: map[string]any{"n": 1},
			},
		},
		{
			name: "No Changes",
			old: &Snapshot{
				ID:            "i-1",
				Configuration: []string{"a"},
				Status:        StatusActive,
				Context:       Context{"n": 1},
			},
			new: &Snapshot{
				ID:            "i-1",
				Configuration: []string{"a"},
				Status:        StatusActive,
				Context:       Context{"n": 1},
			},
			wantDiff: nil,
		},
		{
			name: "Transition To Final",
			old: &Snapshot{
				ID:            "i-1",
				Configuration: []string{"b"},
				Status:        StatusActive,
			},
			new: &Snapshot{
				ID:            "i-1",
				Configuration: []string{"c"},
				Status:        StatusDone,
			},
			wantDiff: &SnapshotDiff{
				ID:      "i-1",
				Entered: []string{"c"},
				Exited:  []string{"b"},
				Status:  &done,
			},
		},
		{
			name: "Nested Entry Keeps Parent",
			old: &Snapshot{
				Configuration: []string{"work", "work.a"},
			},
			new: &Snapshot{
				Configuration: []string{"work", "work.b"},
			},
			wantDiff: &SnapshotDiff{
				Entered: []string{"work.b"},
				Exited:  []string{"work.a"},
			},
		},
		{
			name: "Context Added, Modified & Deleted",
			old: &Snapshot{
				Context: Context{"a": 1, "b": "old", "gone": true},
			},
			new: &Snapshot{
				Context: Context{"a": 1, "b": "new", "c": true},
			},
			wantDiff: &SnapshotDiff{
				Context: map[string]any{"b": "new", "c": true, "gone": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}

			if got.ID != tt.wantDiff.ID {
				t.Errorf("Diff().ID = %v, want %v", got.ID, tt.wantDiff.ID)
			}
			if !reflect.DeepEqual(got.Context, tt.wantDiff.Context) {
				t.Errorf("Diff().Context = %v, want %v", got.Context, tt.wantDiff.Context)
			}
			if !reflect.DeepEqual(got.Entered, tt.wantDiff.Entered) {
				t.Errorf("Diff().Entered = %v, want %v", got.Entered, tt.wantDiff.Entered)
			}
			if !reflect.DeepEqual(got.Exited, tt.wantDiff.Exited) {
				t.Errorf("Diff().Exited = %v, want %v", got.Exited, tt.wantDiff.Exited)
			}
			if !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Empty Context Omitted", func(t *testing.T) {
		s1 := &Snapshot{Configuration: []string{"a"}, Context: Context{"a": 1}}
		s2 := &Snapshot{Configuration: []string{"b"}, Context: Context{"a": 1}}
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"context"`) {
			t.Errorf("JSON should not contain 'context' when empty, got: %s", string(bytes))
		}
	})

	t.Run("Deletions as Null", func(t *testing.T) {
		s1 := &Snapshot{Context: Context{"a": 1, "b": 2}}
		s2 := &Snapshot{Context: Context{"a": 1}}
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
