package undo

import (
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
)

// Checkpoint represents a point in history that can be returned to.
type Checkpoint struct {
	entry Undoable // newest applied entry when the checkpoint was taken, nil for an empty history
}

// Checkpoint records the current history position. The newest applied entry is
// sealed: later additions are not combined into it, so returning to the
// checkpoint restores exactly the state observed now.
func (m *Manager) Checkpoint() Checkpoint {
	if m.current < 0 {
		return Checkpoint{}
	}
	m.sealed = m.queue[m.current]
	return Checkpoint{entry: m.sealed}
}

// UndoTo undoes groups until the checkpoint's entry is the newest applied entry
// again. A checkpoint whose entry has left the history cannot be reached.
func (m *Manager) UndoTo(cp Checkpoint) error {
	for {
		if cp.entry == nil {
			if !m.CanUndo() {
				return nil
			}
		} else {
			idx := m.indexOf(cp.entry)
			if idx < 0 {
				return fmt.Errorf("undo to checkpoint: %w: entry %q left the history", domain.ErrInvalidState, cp.entry.Name())
			}
			if m.current <= idx || !m.CanUndo() {
				return nil
			}
		}
		if err := m.Undo(); err != nil {
			return err
		}
	}
}

// RedoTo redoes groups until the checkpoint's entry is applied again.
func (m *Manager) RedoTo(cp Checkpoint) error {
	if cp.entry == nil {
		return nil
	}
	for {
		idx := m.indexOf(cp.entry)
		if idx < 0 {
			return fmt.Errorf("redo to checkpoint: %w: entry %q left the history", domain.ErrInvalidState, cp.entry.Name())
		}
		if m.current >= idx || !m.CanRedo() {
			return nil
		}
		if err := m.Redo(); err != nil {
			return err
		}
	}
}

func (m *Manager) indexOf(e Undoable) int {
	for i, existing := range m.queue {
		if existing == e {
			return i
		}
	}
	return -1
}
