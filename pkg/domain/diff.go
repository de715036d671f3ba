package domain

import (
	"reflect"
	"slices"
)

// SnapshotDiff represents the changes between two snapshots.
// It is designed to be serialized to JSON for compact traces.
type SnapshotDiff struct {
	ID string `json:"id"`

	Entered []string `json:"entered,omitempty"`
	Exited  []string `json:"exited,omitempty"`

	Status *Status `json:"status,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context map[string]any `json:"context,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap.
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{ID: newSnap.ID}

	var oldConfig []string
	if oldSnap != nil {
		oldConfig = oldSnap.Configuration
	}
	for _, p := range newSnap.Configuration {
		if !slices.Contains(oldConfig, p) {
			diff.Entered = append(diff.Entered, p)
		}
	}
	for _, p := range oldConfig {
		if !slices.Contains(newSnap.Configuration, p) {
			diff.Exited = append(diff.Exited, p)
		}
	}

	if oldSnap == nil || oldSnap.Status != newSnap.Status {
		diff.Status = &newSnap.Status
	}

	diff.Context = diffContext(oldSnap, newSnap)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffContext(old *Snapshot, new *Snapshot) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Context {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range new.Context {
		oldVal, exists := old.Context[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Context {
		if _, exists := new.Context[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return len(d.Entered) == 0 &&
		len(d.Exited) == 0 &&
		d.Status == nil &&
		len(d.Context) == 0
}
