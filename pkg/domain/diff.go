package domain

import (
	"reflect"
)

// HistoryDiff represents the changes between two views of the same history.
// It is designed to be serialized to JSON for partial updates on the client.
type HistoryDiff struct {
	// Session is always present to identify the target.
	Session string `json:"session"`

	Limit   *int  `json:"limit,omitempty"`
	Current *int  `json:"current,omitempty"`
	CanUndo *bool `json:"can_undo,omitempty"`
	CanRedo *bool `json:"can_redo,omitempty"`

	// Length is set when entries were added or dropped.
	// Clients truncate their local list to Length before merging Steps.
	Length *int `json:"length,omitempty"`

	// Steps contains only new or modified entries, keyed by their Index.
	Steps []HistoryStep `json:"steps,omitempty"`
}

// Diff calculates the difference between oldView and newView.
// If oldView is nil, it returns a diff representing the entire newView (initial load).
// It returns nil when nothing changed.
func Diff(oldView, newView *HistoryView) *HistoryDiff {
	if newView == nil {
		return nil
	}

	diff := &HistoryDiff{
		Session: newView.Session,
	}

	if oldView == nil || oldView.Limit != newView.Limit {
		diff.Limit = &newView.Limit
	}
	if oldView == nil || oldView.Current != newView.Current {
		diff.Current = &newView.Current
	}
	if oldView == nil || oldView.CanUndo != newView.CanUndo {
		diff.CanUndo = &newView.CanUndo
	}
	if oldView == nil || oldView.CanRedo != newView.CanRedo {
		diff.CanRedo = &newView.CanRedo
	}

	diff.Length, diff.Steps = diffSteps(oldView, newView)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffSteps(old, new *HistoryView) (*int, []HistoryStep) {
	if old == nil {
		n := len(new.Steps)
		return &n, new.Steps
	}

	var length *int
	if len(old.Steps) != len(new.Steps) {
		n := len(new.Steps)
		length = &n
	}

	// Eviction shifts every index, so entries are compared position by position.
	var changed []HistoryStep
	for i, step := range new.Steps {
		if i >= len(old.Steps) || !reflect.DeepEqual(old.Steps[i], step) {
			changed = append(changed, step)
		}
	}
	return length, changed
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *HistoryDiff) IsEmpty() bool {
	return d.Limit == nil &&
		d.Current == nil &&
		d.CanUndo == nil &&
		d.CanRedo == nil &&
		d.Length == nil &&
		len(d.Steps) == 0
}
